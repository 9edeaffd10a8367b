package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// IsDevRun reports whether the running binary came out of `go run` or
// `go test`. Test binaries carry a .test suffix; `go run` builds into
// the system temp directory.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	if strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir()))
}

// ResolveMirrorPath applies the dev sandbox to userPath. With forceTemp
// unset the path passes through untouched. Otherwise it is re-rooted
// under a marl-dev namespace in the system temp directory, so accidental
// dev runs never touch real notes. Paths already under the temp
// directory (a t.TempDir(), an explicit scratch dir) are trusted as is.
func ResolveMirrorPath(userPath string, forceTemp bool) string {
	if !forceTemp {
		if userPath == "" {
			return "."
		}
		return userPath
	}

	clean := filepath.Clean(userPath)
	if underTemp(clean) {
		return clean
	}

	name := filepath.Base(clean)
	if userPath == "" || name == "." || name == string(os.PathSeparator) {
		name = "default"
	}
	return filepath.Join(os.TempDir(), "marl-dev", name)
}

func underTemp(path string) bool {
	rel, err := filepath.Rel(os.TempDir(), path)
	return err == nil && !strings.HasPrefix(rel, "..")
}
