package testutil

import (
	"testing"

	"photo-ingest/internal/database"
)

// NewTestStore creates a new in-memory store with the schema applied.
// The store is closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(database.Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
