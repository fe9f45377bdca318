package cleanup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/paths"
)

func testCleaner(t *testing.T, policy Policy) *Cleaner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	// Nanosecond TTL so size measurements in one test never go stale.
	return New(paths.NewResolver(time.Nanosecond), logger, policy)
}

func writeLines(t *testing.T, path string, n int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "{\"record\":%d}\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "\n")
}

func TestTruncateKeepTailBelowMinimum(t *testing.T) {
	// A 5-line file is never truncated, regardless of its byte size:
	// the record-count gate binds, not bytes.
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeLines(t, path, 5)
	before, _ := os.ReadFile(path)

	saved, err := truncateKeepTail(path, 0.3, 10)
	if err != nil {
		t.Fatalf("truncateKeepTail: %v", err)
	}
	if saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file below minimum record count must be untouched")
	}
}

func TestTruncateKeepTailRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeLines(t, path, 1000)

	saved, err := truncateKeepTail(path, 0.3, 10)
	if err != nil {
		t.Fatalf("truncateKeepTail: %v", err)
	}
	if saved <= 0 {
		t.Error("expected bytes saved")
	}
	if got := countLines(t, path); got != 300 {
		t.Errorf("kept %d lines, want exactly 300", got)
	}

	// The tail is the newest records.
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), `{"record":700}`) {
		t.Errorf("tail starts with %q, want record 700", strings.SplitN(string(data), "\n", 2)[0])
	}
	if !strings.Contains(string(data), `{"record":999}`) {
		t.Error("last record missing from tail")
	}
}

func TestTruncateKeepTailMinimumFloor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeLines(t, path, 20)

	// 20 * 0.3 = 6, below the minimum of 10: the floor wins.
	if _, err := truncateKeepTail(path, 0.3, 10); err != nil {
		t.Fatalf("truncateKeepTail: %v", err)
	}
	if got := countLines(t, path); got != 10 {
		t.Errorf("kept %d lines, want the minimum 10", got)
	}
}

func TestCleanCachesThreshold(t *testing.T) {
	policy := DefaultPolicy()
	policy.CacheRules = []Rule{
		{Path: "file-history", MaxBytes: 100},
		{Path: "todos", MaxBytes: 1 << 20},
	}
	c := testCleaner(t, policy)
	dir := t.TempDir()

	big := filepath.Join(dir, "file-history")
	if err := os.MkdirAll(big, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(big, "blob"), make([]byte, 500), 0o644); err != nil {
		t.Fatal(err)
	}
	small := filepath.Join(dir, "todos")
	if err := os.MkdirAll(small, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(small, "todo"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c.CleanCaches(dir)

	if _, err := os.Stat(big); !os.IsNotExist(err) {
		t.Error("over-threshold subtree must be deleted")
	}
	if _, err := os.Stat(small); err != nil {
		t.Error("under-threshold subtree must survive")
	}
}

func TestCleanCachesHistoryLineGate(t *testing.T) {
	policy := DefaultPolicy()
	policy.CacheRules = []Rule{
		{Path: "history.jsonl", MaxBytes: 10, Truncate: true},
	}
	c := testCleaner(t, policy)
	dir := t.TempDir()

	// Over the byte threshold but only 5 records: the line-count gate
	// binds and the file stays whole.
	history := filepath.Join(dir, "history.jsonl")
	writeLines(t, history, 5)
	c.CleanCaches(dir)
	if got := countLines(t, history); got != 5 {
		t.Errorf("small history truncated to %d lines", got)
	}

	writeLines(t, history, 1000)
	c.CleanCaches(dir)
	if got := countLines(t, history); got != 300 {
		t.Errorf("history kept %d lines, want 300", got)
	}
}

func TestTruncateSessions(t *testing.T) {
	policy := DefaultPolicy()
	policy.SessionMaxBytes = 1000
	c := testCleaner(t, policy)
	dir := t.TempDir()

	big := filepath.Join(dir, "projects", "proj-a", "session.jsonl")
	writeLines(t, big, 200) // well over 1000 bytes
	small := filepath.Join(dir, "projects", "proj-b", "session.jsonl")
	writeLines(t, small, 5)
	notTranscript := filepath.Join(dir, "projects", "proj-a", "notes.txt")
	writeLines(t, notTranscript, 200)

	cleaned, saved := c.TruncateSessions(dir)
	if cleaned != 1 {
		t.Errorf("cleaned = %d, want 1", cleaned)
	}
	if saved <= 0 {
		t.Error("expected bytes saved")
	}
	if got := countLines(t, big); got != 40 {
		t.Errorf("big transcript kept %d lines, want 200*0.2 = 40", got)
	}
	if got := countLines(t, small); got != 5 {
		t.Errorf("small transcript modified: %d lines", got)
	}
	if got := countLines(t, notTranscript); got != 200 {
		t.Errorf("non-transcript file modified: %d lines", got)
	}
}

func TestTruncateSessionsMissingTree(t *testing.T) {
	c := testCleaner(t, DefaultPolicy())
	cleaned, saved := c.TruncateSessions(t.TempDir())
	if cleaned != 0 || saved != 0 {
		t.Errorf("missing projects dir: cleaned=%d saved=%d", cleaned, saved)
	}
}

func TestResetMemory(t *testing.T) {
	c := testCleaner(t, DefaultPolicy())
	dir := t.TempDir()

	for _, target := range []string{"projects", "todos"} {
		p := filepath.Join(dir, target, "data")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, make([]byte, 100), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	keep := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(keep, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	freed := c.ResetMemory(dir)
	if freed < 200 {
		t.Errorf("freed = %d, want at least 200", freed)
	}
	for _, target := range []string{"projects", "todos"} {
		if _, err := os.Stat(filepath.Join(dir, target)); !os.IsNotExist(err) {
			t.Errorf("%s must be wiped", target)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("non-target files must survive a reset")
	}

	// Resetting an already-clean directory frees nothing and does not
	// fail.
	if freed := c.ResetMemory(dir); freed != 0 {
		t.Errorf("second reset freed %d", freed)
	}
}
