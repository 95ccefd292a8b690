package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Media.LinkStaleAfter != 12*time.Hour {
		t.Errorf("expected 12h link threshold, got %s", cfg.Media.LinkStaleAfter)
	}
	if cfg.Media.ThumbnailStaleAfter != 3*time.Hour {
		t.Errorf("expected 3h thumbnail threshold, got %s", cfg.Media.ThumbnailStaleAfter)
	}
	if cfg.Media.BulkInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms bulk interval, got %s", cfg.Media.BulkInterval)
	}
	if cfg.APIBaseURL() != "http://localhost:8080" {
		t.Errorf("unexpected dev API origin %s", cfg.APIBaseURL())
	}
}

func TestLoad_ProductionRequiresDriveCredentials(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("DRIVE_ACCESS_KEY", "")
	t.Setenv("DRIVE_SECRET_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing drive credentials")
	}
}

func TestLoad_ProductionUsesBaseURL(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DRIVE_ACCESS_KEY", "key")
	t.Setenv("DRIVE_SECRET_KEY", "secret")
	t.Setenv("BASE_URL", "https://atlas.example.org/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL() != "https://atlas.example.org" {
		t.Errorf("expected base URL origin, got %s", cfg.APIBaseURL())
	}
}

func TestLoad_APIOverride(t *testing.T) {
	t.Setenv("ATLAS_API_URL", "http://staging:8080/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL() != "http://staging:8080" {
		t.Errorf("expected override, got %s", cfg.APIBaseURL())
	}
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("MEDIA_LINK_STALE_AFTER", "1h")
	t.Setenv("MEDIA_THUMBNAIL_STALE_AFTER", "2h")
	if _, err := Load(); err == nil {
		t.Fatal("expected threshold validation error")
	}
}

func TestDSN_AppendsDefaultPort(t *testing.T) {
	d := DatabaseConfig{Host: "mariadb", User: "u", Password: "p@ss", Name: "atlas"}
	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(mariadb:3306)") {
		t.Errorf("expected default port in DSN, got %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime in DSN, got %s", dsn)
	}
}
