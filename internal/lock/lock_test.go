package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "LOCK")

	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Verify lock file exists and contains PID.
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "LOCK")

	l1, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(lockPath)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var heldErr *HeldError
	if !errors.As(err, &heldErr) {
		t.Errorf("expected HeldError, got %T: %v", err, err)
	}
	if heldErr.PID != os.Getpid() {
		t.Errorf("HeldError.PID = %d, want %d", heldErr.PID, os.Getpid())
	}
}

func TestAcquireCreatesParentDir(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "nested", "LOCK")

	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	if _, err := os.Stat(filepath.Dir(lockPath)); err != nil {
		t.Errorf("parent dir not created: %v", err)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "LOCK")

	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
