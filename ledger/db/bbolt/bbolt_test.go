package ledgerbbolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/Ethernal-Tech/chronicle/ledger/db/dbtest"
	"github.com/stretchr/testify/require"
)

func TestDatabase(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) ledger.Database {
		t.Helper()

		db, err := NewDatabase(filepath.Join(t.TempDir(), "chronicle.db"), time.Second)
		require.NoError(t, err)

		return db
	})
}

func TestNewDatabase(t *testing.T) {
	t.Run("reopen keeps data", func(t *testing.T) {
		filePath := filepath.Join(t.TempDir(), "chronicle.db")

		db, err := NewDatabase(filePath, time.Second)
		require.NoError(t, err)
		require.NoError(t, db.UpsertBlock(context.Background(), &ledger.BlockRecord{ID: ledger.Hash{7}, Slot: 3}))
		require.NoError(t, db.Close())

		db, err = NewDatabase(filePath, time.Second)
		require.NoError(t, err)

		defer db.Close()

		block, err := db.GetBlock(context.Background(), ledger.Hash{7})
		require.NoError(t, err)
		require.Equal(t, uint64(3), block.Slot)
	})

	t.Run("locked file", func(t *testing.T) {
		filePath := filepath.Join(t.TempDir(), "chronicle.db")

		db, err := NewDatabase(filePath, time.Second)
		require.NoError(t, err)

		defer db.Close()

		_, err = NewDatabase(filePath, 50*time.Millisecond)

		var perr *ledger.PersistenceError

		require.ErrorAs(t, err, &perr)
		require.Equal(t, ledger.PersistenceServerSelection, perr.Kind)
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := NewDatabase(filepath.Join(t.TempDir(), "missing", "dir", "chronicle.db"), time.Second)

		var perr *ledger.PersistenceError

		require.ErrorAs(t, err, &perr)
	})
}
