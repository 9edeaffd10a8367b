package fs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/marl/pkg/core"
)

func TestTokenFileRoundTrip(t *testing.T) {
	vault := NewTokenFile(filepath.Join(t.TempDir(), ".marl", "token"))

	if _, err := vault.LoadToken(); !errors.Is(err, core.ErrNoToken) {
		t.Fatalf("empty vault error = %v, want ErrNoToken", err)
	}

	if err := vault.StoreToken("aas_et/secret-master-token"); err != nil {
		t.Fatalf("StoreToken failed: %v", err)
	}

	token, err := vault.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "aas_et/secret-master-token" {
		t.Errorf("token = %q", token)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(vault.Path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
		}
	}

	if err := vault.ClearToken(); err != nil {
		t.Fatalf("ClearToken failed: %v", err)
	}
	if _, err := vault.LoadToken(); !errors.Is(err, core.ErrNoToken) {
		t.Errorf("cleared vault error = %v, want ErrNoToken", err)
	}

	// Clearing twice is fine.
	if err := vault.ClearToken(); err != nil {
		t.Errorf("second ClearToken returned error: %v", err)
	}
}

func TestTokenFileBlankIsNoToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokenFile(path).LoadToken(); !errors.Is(err, core.ErrNoToken) {
		t.Errorf("blank token error = %v, want ErrNoToken", err)
	}
}
