// Package testutil provides shared test helpers for setting up state
// databases and config directory trees.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/state"
)

// TestStateDB creates a temporary state database that is automatically
// cleaned up.
func TestStateDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// WriteFile writes content at path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestCanonicalTree creates a temporary canonical config directory
// populated with a commands directory, a CLAUDE.md file and a settings
// file, returning its path.
func TestCanonicalTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "commands"), 0o755); err != nil {
		t.Fatal(err)
	}
	WriteFile(t, filepath.Join(dir, "commands", "review.md"), "review command\n")
	WriteFile(t, filepath.Join(dir, "CLAUDE.md"), "# shared instructions\n")
	WriteFile(t, filepath.Join(dir, "settings.json"), "{}\n")
	return dir
}
