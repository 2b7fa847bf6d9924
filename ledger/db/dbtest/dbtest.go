// Package dbtest holds the behaviour every ledger.Database backend must share.
package dbtest

import (
	"context"
	"testing"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/stretchr/testify/require"
)

// Run exercises a backend. open must return an empty database; it is closed by the suite.
func Run(t *testing.T, open func(t *testing.T) ledger.Database) {
	t.Helper()

	ctx := context.Background()

	t.Run("GetBlockNotFound", func(t *testing.T) {
		db := open(t)
		defer db.Close()

		_, err := db.GetBlock(ctx, ledger.Hash{1})
		require.ErrorIs(t, err, ledger.ErrNotFound)

		_, err = db.GetMilestone(ctx, 1)
		require.ErrorIs(t, err, ledger.ErrNotFound)

		_, err = db.GetLatestMilestone(ctx)
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("UpsertBlock", func(t *testing.T) {
		db := open(t)
		defer db.Close()

		block := &ledger.BlockRecord{ID: ledger.Hash{1}, Slot: 10, Number: 1, EraID: 5, ParentID: &ledger.Hash{9}}

		require.NoError(t, db.UpsertBlock(ctx, block))
		require.NoError(t, db.UpsertBlock(ctx, block))

		stored, err := db.GetBlock(ctx, block.ID)
		require.NoError(t, err)
		require.Equal(t, block, stored)

		block.Slot = 11
		require.NoError(t, db.UpsertBlock(ctx, block))

		stored, err = db.GetBlock(ctx, block.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(11), stored.Slot)
	})

	t.Run("UpsertMilestone", func(t *testing.T) {
		db := open(t)
		defer db.Close()

		require.NoError(t, db.UpsertBlock(ctx, &ledger.BlockRecord{ID: ledger.Hash{1}, Slot: 10, Number: 1}))
		require.NoError(t, db.UpsertBlock(ctx, &ledger.BlockRecord{ID: ledger.Hash{2}, Slot: 11, Number: 2}))

		milestone := &ledger.MilestoneRecord{
			Index: 1, Timestamp: 1700000000, Slot: 11, BlockIDs: []ledger.Hash{{1}, {2}, {3}},
		}

		require.NoError(t, db.UpsertMilestone(ctx, milestone))
		require.NoError(t, db.UpsertMilestone(ctx, milestone))

		stored, err := db.GetMilestone(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, milestone, stored)

		for _, id := range []ledger.Hash{{1}, {2}} {
			block, err := db.GetBlock(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, block.MilestoneIndex)
			require.Equal(t, uint32(1), *block.MilestoneIndex)
		}

		// the referenced block was not stored, the milestone does not create it
		_, err = db.GetBlock(ctx, ledger.Hash{3})
		require.ErrorIs(t, err, ledger.ErrNotFound)

		// a later block upsert keeps the milestone reference
		require.NoError(t, db.UpsertBlock(ctx, &ledger.BlockRecord{ID: ledger.Hash{1}, Slot: 10, Number: 1}))

		block, err := db.GetBlock(ctx, ledger.Hash{1})
		require.NoError(t, err)
		require.NotNil(t, block.MilestoneIndex)
	})

	t.Run("Milestones", func(t *testing.T) {
		db := open(t)
		defer db.Close()

		for i := uint32(1); i <= 300; i++ {
			require.NoError(t, db.UpsertMilestone(ctx, &ledger.MilestoneRecord{
				Index:    i,
				Slot:     uint64(i) * 20,
				BlockIDs: []ledger.Hash{{byte(i), 1}, {byte(i), 2}},
			}))
		}

		latest, err := db.GetLatestMilestone(ctx)
		require.NoError(t, err)
		require.Equal(t, uint32(300), latest.Index)

		milestones, err := db.GetMilestones(ctx, 254, 258)
		require.NoError(t, err)
		require.Len(t, milestones, 5)

		for i, ms := range milestones {
			require.Equal(t, uint32(254+i), ms.Index)
		}

		milestones, err = db.GetMilestones(ctx, 299, 1000)
		require.NoError(t, err)
		require.Len(t, milestones, 2)

		milestones, err = db.GetMilestones(ctx, 400, 500)
		require.NoError(t, err)
		require.Empty(t, milestones)

		_, err = db.GetMilestones(ctx, 5, 4)
		require.ErrorIs(t, err, ledger.ErrInvalidRange)
	})

	t.Run("BlockAnalytics", func(t *testing.T) {
		db := open(t)
		defer db.Close()

		for i := uint32(1); i <= 10; i++ {
			ids := make([]ledger.Hash, i)
			for j := range ids {
				ids[j] = ledger.Hash{byte(i), byte(j + 1)}
			}

			require.NoError(t, db.UpsertMilestone(ctx, &ledger.MilestoneRecord{Index: i, Slot: uint64(i) * 100, BlockIDs: ids}))
		}

		result, err := db.BlockAnalytics(ctx, 3, 5)
		require.NoError(t, err)
		require.Equal(t, &ledger.BlockAnalytics{
			StartIndex: 3, EndIndex: 5, Milestones: 3, Blocks: 12, FirstSlot: 300, LastSlot: 500,
		}, result)

		result, err = db.BlockAnalytics(ctx, 20, 30)
		require.NoError(t, err)
		require.Equal(t, &ledger.BlockAnalytics{StartIndex: 20, EndIndex: 30}, result)

		_, err = db.BlockAnalytics(ctx, 2, 1)
		require.ErrorIs(t, err, ledger.ErrInvalidRange)
	})

	t.Run("Cancelled", func(t *testing.T) {
		db := open(t)
		defer db.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		require.ErrorIs(t, db.UpsertBlock(cancelled, &ledger.BlockRecord{ID: ledger.Hash{1}}), context.Canceled)
	})

	t.Run("UseAfterClose", func(t *testing.T) {
		db := open(t)
		require.NoError(t, db.Close())

		err := db.UpsertBlock(ctx, &ledger.BlockRecord{ID: ledger.Hash{1}})

		var perr *ledger.PersistenceError

		require.ErrorAs(t, err, &perr)
		require.True(t, perr.IsTransient())
	})
}
