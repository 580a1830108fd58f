package copystore

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystemStore_Open(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "guppi_55562_wigglez1hr_centre_0012_0001.fits")
	if err := os.WriteFile(path, []byte("raw bytes"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	store, err := NewFileSystemStore("gbt-archive", root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if store.Host() != "gbt-archive" {
		t.Errorf("Host() = %q, want gbt-archive", store.Host())
	}

	r, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading copy: %v", err)
	}
	if string(data) != "raw bytes" {
		t.Errorf("copy content = %q, want %q", data, "raw bytes")
	}
}

func TestFileSystemStore_OutsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStore("gbt-archive", root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	if _, err := store.Open("/etc/passwd"); err == nil {
		t.Error("Open() outside root did not fail")
	}
	if _, err := store.Open(filepath.Join(root, "..", "escape")); err == nil {
		t.Error("Open() with traversal did not fail")
	}
}

func TestFileSystemStore_MissingRoot(t *testing.T) {
	if _, err := NewFileSystemStore("h", "/nonexistent/store/root"); err == nil {
		t.Error("NewFileSystemStore() with missing root did not fail")
	}
}

func TestFileSystemStore_MissingFile(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStore("h", root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if _, err := store.Open(filepath.Join(root, "missing.fits")); err == nil {
		t.Error("Open() on missing file did not fail")
	}
}
