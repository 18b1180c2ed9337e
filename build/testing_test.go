package build

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestCopyFile checks that CopyFile copies file contents byte for byte.
func TestCopyFile(t *testing.T) {
	root := TempDir("build", "TestCopyFile")
	if err := os.MkdirAll(root, 0700); err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 4e3)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(root, "f1")
	if err := os.WriteFile(source, data, 0700); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(root, "f1-copy")
	if err := CopyFile(source, dest); err != nil {
		t.Fatal(err)
	}

	copied, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(copied, data) {
		t.Error("copied file contents did not match source")
	}
}

// TestRetry checks that Retry stops as soon as fn succeeds, and otherwise
// exhausts all of its attempts before returning the final error.
func TestRetry(t *testing.T) {
	attempts := 0
	err := Retry(3, time.Millisecond, func() error {
		attempts++
		if attempts == 2 {
			return nil
		}
		return errors.New("not yet")
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Errorf("expected fn to be called 2 times, was called %d times", attempts)
	}

	attempts = 0
	err = Retry(3, time.Millisecond, func() error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected Retry to return the final error")
	}
	if attempts != 3 {
		t.Errorf("expected fn to be called 3 times, was called %d times", attempts)
	}
}
