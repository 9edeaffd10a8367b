package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindRoot(t *testing.T) {
	base := t.TempDir()

	mkdir := func(parts ...string) string {
		p := filepath.Join(append([]string{base}, parts...)...)
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatal(err)
		}
		return p
	}

	mirror := mkdir("mirror")
	mkdir("mirror", ".marl")
	subdir := mkdir("mirror", "subdir")
	inner := mkdir("mirror", "subdir", "inner")
	mkdir("mirror", "subdir", "inner", ".marl")
	deep := mkdir("mirror", "subdir", "inner", "deep")

	// A plain file named .marl is not a system directory.
	decoy := mkdir("decoy")
	if err := os.WriteFile(filepath.Join(decoy, ".marl"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		start string
		want  string
		ok    bool
	}{
		{"Finds Marker at Start", mirror, mirror, true},
		{"Walks Up From Subdir", subdir, mirror, true},
		{"Closest Marker Wins", deep, inner, true},
		{"Plain File Is Not a Marker", decoy, "", false},
		{"No Marker Anywhere", mkdir("empty"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindRoot(tt.start)
			if tt.ok && err != nil {
				t.Fatalf("FindRoot() unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("FindRoot() = %v, want error", got)
				}
				return
			}
			if filepath.Clean(got) != filepath.Clean(tt.want) {
				t.Errorf("FindRoot() = %v, want %v", got, tt.want)
			}
		})
	}
}
