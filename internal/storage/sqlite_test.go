package storage

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenAppliesMigrations(t *testing.T) {
	store := newTestStore(t)

	for _, table := range []string{"forecasts", "alerts", "product_vectors", "model_records"} {
		var name string
		err := store.db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.migrate(); err != nil {
		t.Fatalf("second migrate pass: %v", err)
	}

	var applied int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&applied); err != nil {
		t.Fatalf("count schema versions: %v", err)
	}
	if applied == 0 {
		t.Fatal("no migrations recorded")
	}
}
