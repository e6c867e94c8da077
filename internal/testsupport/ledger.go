package testsupport

import (
	"path/filepath"
	"testing"

	"spritebatch/internal/ledger"
)

// MustOpenLedger opens a ledger.Store in a temp directory and registers cleanup.
func MustOpenLedger(t testing.TB) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "spritebatch.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
