package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	catalog := filepath.Join(t.TempDir(), "catalog.db")
	l, err := Acquire(catalog)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	if l.Path() != catalog+".lock" {
		t.Fatalf("Path() = %q", l.Path())
	}
	pid, ok := Holder(catalog)
	if !ok || pid != os.Getpid() {
		t.Fatalf("Holder() = %d, %v; want %d", pid, ok, os.Getpid())
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	catalog := filepath.Join(t.TempDir(), "nested", "catalog.db")
	first, err := Acquire(catalog)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := Acquire(catalog); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := Acquire(catalog)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquireEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Acquire(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
