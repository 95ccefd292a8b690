package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/keyxmakerx/atlas/internal/entity"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// entityEnumPattern matches the ENUM definition of any *_type column that
// stores an entity type.
var entityEnumPattern = regexp.MustCompile(`(?m)^\s*(entity_type|source_type|target_type|member_type)\s+ENUM\(([^)]*)\)`)

// TestMigrations_EntityTypeEnumsMatchRegistry keeps the database ENUMs in
// step with the entity registry. A type missing from an ENUM surfaces as
// "Data truncated for column" (Error 1265) on the first insert.
func TestMigrations_EntityTypeEnumsMatchRegistry(t *testing.T) {
	dir := migrationsDir(t)
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration files found")
	}

	want := make(map[string]bool)
	for _, info := range entity.All() {
		want[string(info.Type)] = true
	}

	found := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		for _, match := range entityEnumPattern.FindAllStringSubmatch(string(data), -1) {
			found++
			got := make(map[string]bool)
			for _, v := range strings.Split(match[2], ",") {
				got[strings.Trim(strings.TrimSpace(v), "'")] = true
			}
			for typ := range want {
				if !got[typ] {
					t.Errorf("%s: column %s ENUM is missing %q", filepath.Base(f), match[1], typ)
				}
			}
			for typ := range got {
				if !want[typ] {
					t.Errorf("%s: column %s ENUM has unregistered value %q", filepath.Base(f), match[1], typ)
				}
			}
		}
	}
	if found == 0 {
		t.Fatal("no entity type ENUM columns found in migrations")
	}
}

// TestMigrations_GroupTypesAreGroups checks group_members.group_type only
// lists registry types flagged as groups.
func TestMigrations_GroupTypesAreGroups(t *testing.T) {
	dir := migrationsDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "000002_relations.up.sql"))
	if err != nil {
		t.Fatalf("reading relations migration: %v", err)
	}
	m := regexp.MustCompile(`group_type\s+ENUM\(([^)]*)\)`).FindStringSubmatch(string(data))
	if m == nil {
		t.Fatal("group_type ENUM not found")
	}
	for _, v := range strings.Split(m[1], ",") {
		typ := entity.Type(strings.Trim(strings.TrimSpace(v), "'"))
		info, ok := entity.Lookup(typ)
		if !ok || !info.IsGroup {
			t.Errorf("group_type ENUM value %q is not a registered group type", typ)
		}
	}
}

// TestMigrations_PairsExist ensures every up migration has a down migration.
func TestMigrations_PairsExist(t *testing.T) {
	dir := migrationsDir(t)
	ups, _ := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}
