package kvstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := store.SetValue("test", payload{Name: "alpha", Count: 3}); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}

	var got payload
	if err := store.GetValue("test", &got); err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	if got.Name != "alpha" || got.Count != 3 {
		t.Errorf("GetValue() = %+v, want {alpha 3}", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	var out string
	if err := store.GetValue("absent", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetValue(absent) error = %v, want ErrNotFound", err)
	}
}

func TestSetOverwrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if err := store.SetValue("key", "first"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := store.SetValue("key", "second"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}

	var got string
	if err := store.GetValue("key", &got); err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	if got != "second" {
		t.Errorf("GetValue() = %q, want %q", got, "second")
	}
}

func TestDeleteValue(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if err := store.SetValue("key", 42); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := store.DeleteValue("key"); err != nil {
		t.Fatalf("DeleteValue() error = %v", err)
	}

	var out int
	if err := store.GetValue("key", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetValue after delete error = %v, want ErrNotFound", err)
	}

	// Deleting an absent key is not an error.
	if err := store.DeleteValue("key"); err != nil {
		t.Errorf("DeleteValue(absent) error = %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.SetValue("key", "survives"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer reopened.Close()

	var got string
	if err := reopened.GetValue("key", &got); err != nil {
		t.Fatalf("GetValue() after reopen error = %v", err)
	}
	if got != "survives" {
		t.Errorf("GetValue() = %q, want %q", got, "survives")
	}
}

func TestLastUpdateClock(t *testing.T) {
	t.Parallel()

	clock := NewLastUpdateClock(newTestStore(t))

	if _, ok := clock.LastSuccessfulUpdate(); ok {
		t.Error("fresh store should have no last update")
	}

	stamp := time.Date(2025, 5, 30, 9, 15, 0, 0, time.UTC)
	if err := clock.SetLastSuccessfulUpdate(stamp); err != nil {
		t.Fatalf("SetLastSuccessfulUpdate() error = %v", err)
	}

	got, ok := clock.LastSuccessfulUpdate()
	if !ok {
		t.Fatal("LastSuccessfulUpdate() not found after set")
	}
	if !got.Equal(stamp) {
		t.Errorf("LastSuccessfulUpdate() = %v, want %v", got, stamp)
	}
}
