package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "refresh-token")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, "  token-value\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	token, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if token != "token-value" {
		t.Errorf("token = %q, want trimmed %q", token, "token-value")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh-token")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	for _, token := range []string{"first", "second"} {
		if err := store.Write(ctx, token); err != nil {
			t.Fatalf("Write(%q): %v", token, err)
		}
	}

	token, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if token != "second" {
		t.Errorf("token = %q, want %q", token, "second")
	}
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh-token")
	if err := os.WriteFile(path, []byte("token-value\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Read(context.Background()); err == nil {
		t.Fatal("Read succeeded on world-readable file, want error")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "refresh-token"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Read(context.Background()); err == nil {
		t.Fatal("Read succeeded on missing file, want error")
	}
}

func TestFileStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh-token")
	if err := os.WriteFile(path, []byte("\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Read(context.Background()); err == nil {
		t.Fatal("Read succeeded on empty file, want error")
	}
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh-token")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, "token-value"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("token file still exists after Delete")
	}
	// Deleting an already-missing token is not an error
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatal("NewFileStore(\"\") succeeded, want error")
	}
}

func TestEnvStoreIsReadOnly(t *testing.T) {
	t.Setenv("CURB_TEST_REFRESH_TOKEN", "env-token")

	store, err := NewEnvStore("CURB_TEST_REFRESH_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore: %v", err)
	}
	ctx := context.Background()

	token, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if token != "env-token" {
		t.Errorf("token = %q, want %q", token, "env-token")
	}

	if err := store.Write(ctx, "other"); err == nil {
		t.Error("Write succeeded on env store, want error")
	}
	if err := store.Delete(ctx); err == nil {
		t.Error("Delete succeeded on env store, want error")
	}
}

func TestEnvStoreMissingVariable(t *testing.T) {
	if _, err := NewEnvStore("CURB_TEST_UNSET_TOKEN"); err == nil {
		t.Fatal("NewEnvStore succeeded on unset variable, want error")
	}
}
