package state

import (
	"path/filepath"
	"testing"
	"time"
)

func tempDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLastResetUnknownKey(t *testing.T) {
	db := tempDB(t)
	_, ok, err := db.LastReset("glm")
	if err != nil {
		t.Fatalf("LastReset: %v", err)
	}
	if ok {
		t.Error("unknown key should have no row")
	}
}

func TestSetAndGetLastReset(t *testing.T) {
	db := tempDB(t)
	at := time.UnixMilli(1700000000000)
	if err := db.SetLastReset("glm", at); err != nil {
		t.Fatalf("SetLastReset: %v", err)
	}
	got, ok, err := db.LastReset("glm")
	if err != nil || !ok {
		t.Fatalf("LastReset: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Errorf("last reset = %v, want %v", got, at)
	}

	// Upsert overwrites.
	later := at.Add(time.Hour)
	if err := db.SetLastReset("glm", later); err != nil {
		t.Fatalf("SetLastReset: %v", err)
	}
	got, _, _ = db.LastReset("glm")
	if !got.Equal(later) {
		t.Errorf("after upsert = %v, want %v", got, later)
	}
}

func TestShouldResetLifecycle(t *testing.T) {
	db := tempDB(t)
	interval := 24 * time.Hour
	now := time.UnixMilli(1700000000000)

	// Never-seen key is due.
	due, err := db.ShouldReset("glm", interval, now)
	if err != nil {
		t.Fatalf("ShouldReset: %v", err)
	}
	if !due {
		t.Error("unseen key must be due")
	}

	// Immediately after recording a reset: not due.
	if err := db.SetLastReset("glm", now); err != nil {
		t.Fatal(err)
	}
	due, _ = db.ShouldReset("glm", interval, now)
	if due {
		t.Error("fresh timestamp must not be due")
	}

	// Still inside the interval: not due.
	due, _ = db.ShouldReset("glm", interval, now.Add(23*time.Hour))
	if due {
		t.Error("within the interval must not be due")
	}

	// Past the interval: due again.
	due, _ = db.ShouldReset("glm", interval, now.Add(25*time.Hour))
	if !due {
		t.Error("stale timestamp must be due")
	}
}

func TestConcurrentOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer a.Close()
	b, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer b.Close()

	if err := a.SetLastReset("glm", time.UnixMilli(1000)); err != nil {
		t.Fatalf("write via first handle: %v", err)
	}
	got, ok, err := b.LastReset("glm")
	if err != nil || !ok {
		t.Fatalf("read via second handle: ok=%v err=%v", ok, err)
	}
	if got.UnixMilli() != 1000 {
		t.Errorf("got %d", got.UnixMilli())
	}
}
