package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandHome(t *testing.T) {
	r := NewResolver(0)
	home, _ := os.UserHomeDir()

	if got := r.Expand("~/.claude"); got != filepath.Join(home, ".claude") {
		t.Errorf("Expand(~/.claude) = %q", got)
	}
	if got := r.Expand("~"); got != home {
		t.Errorf("Expand(~) = %q", got)
	}
	if got := r.Expand("/tmp/x"); got != "/tmp/x" {
		t.Errorf("absolute path should pass through, got %q", got)
	}
	if got := r.Expand("relative/path"); got != "relative/path" {
		t.Errorf("relative path should pass through, got %q", got)
	}
	// Nonexistent paths expand fine; expansion never stats.
	if got := r.Expand("~/no/such/dir"); got != filepath.Join(home, "no/such/dir") {
		t.Errorf("Expand nonexistent = %q", got)
	}
}

func TestSizeOfMissing(t *testing.T) {
	r := NewResolver(0)
	if got := r.SizeOf(filepath.Join(t.TempDir(), "nope")); got != 0 {
		t.Errorf("missing path size = %d, want 0", got)
	}
}

func TestSizeOfFileAndDir(t *testing.T) {
	r := NewResolver(0)
	dir := t.TempDir()

	f := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(f, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := r.SizeOf(f); got != 5 {
		t.Errorf("file size = %d, want 5", got)
	}

	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.txt"), []byte("1234567"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := r.SizeOf(dir); got != 12 {
		t.Errorf("dir size = %d, want 12", got)
	}
}

func TestSizeOfDoesNotFollowSymlinkCycles(t *testing.T) {
	r := NewResolver(0)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A directory symlink pointing back at its parent must not be
	// descended into.
	if err := os.Symlink(dir, filepath.Join(dir, "loop")); err != nil {
		t.Fatal(err)
	}

	done := make(chan int64, 1)
	go func() { done <- r.SizeOf(dir) }()
	select {
	case size := <-done:
		if size < 3 {
			t.Errorf("size = %d, want at least 3", size)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SizeOf did not return; symlink cycle followed")
	}
}

func TestSizeOfCacheTTL(t *testing.T) {
	r := NewResolver(time.Minute)
	current := time.Unix(1000, 0)
	r.now = func() time.Time { return current }

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := r.SizeOf(dir); got != 3 {
		t.Fatalf("initial size = %d, want 3", got)
	}

	// Mutation inside the TTL is invisible: the cache is invalidated by
	// time only.
	if err := os.WriteFile(filepath.Join(dir, "g"), []byte("defg"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := r.SizeOf(dir); got != 3 {
		t.Errorf("size within TTL = %d, want stale 3", got)
	}

	current = current.Add(2 * time.Minute)
	if got := r.SizeOf(dir); got != 7 {
		t.Errorf("size after TTL = %d, want 7", got)
	}
}
