package sanitize

import "testing"

func TestText_StripsMarkup(t *testing.T) {
	got := Text(`  Lateral view <script>alert(1)</script><b>deltoid</b> & trapezius `)
	if got != "Lateral view deltoid & trapezius" {
		t.Errorf("unexpected sanitized text %q", got)
	}
}

func TestText_Empty(t *testing.T) {
	if Text("") != "" {
		t.Error("expected empty output")
	}
}

func TestFileName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":        "passwd",
		`C:\scans\psoas.png`:      "psoas.png",
		"<i>biceps</i>.jpg":       "biceps.jpg",
		"..":                      "file",
		"gluteus\u0007medius.mp4": "gluteusmedius.mp4",
	}
	for in, want := range cases {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
