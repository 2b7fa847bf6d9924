package broker

import (
	"context"
	"os"
	"testing"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/Ethernal-Tech/chronicle/actor/actortest"
	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sendAll(records ...any) func(context.Context, *actor.Address[*Broker]) {
	return func(_ context.Context, addr *actor.Address[*Broker]) {
		for _, r := range records {
			_ = addr.Send(r)
		}
	}
}

func TestBroker(t *testing.T) {
	block := &ledger.BlockRecord{ID: ledger.Hash{1}, Slot: 10}
	milestone := &ledger.MilestoneRecord{Index: 1, Slot: 10, BlockIDs: []ledger.Hash{{1}}}

	t.Run("stores records until the store fails", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())
		storeErr := ledger.WrapError("upsert milestone", os.ErrClosed)

		db := &ledger.DatabaseMock{}
		db.On("UpsertBlock", mock.Anything, block).Return(nil).Once()
		db.On("UpsertMilestone", mock.Anything, milestone).Return(storeErr).Once()

		report := actortest.Run(t, New(db, metrics), sendAll(block, milestone, block))

		db.AssertExpectations(t)

		brokerErr, ok := actor.AsResult[*Error](report.Err)
		require.True(t, ok)
		require.Equal(t, kindMilestone, brokerErr.Record)

		var perr *ledger.PersistenceError

		require.ErrorAs(t, report.Err, &perr)
		require.Equal(t, ledger.PersistenceIo, perr.Kind)

		require.Equal(t, 1.0, testutil.ToFloat64(metrics.records.WithLabelValues(kindBlock, statusOk)))
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.records.WithLabelValues(kindMilestone, statusFailed)))
	})

	t.Run("skips invalid records", func(t *testing.T) {
		metrics := NewMetrics(nil)

		db := &ledger.DatabaseMock{}
		db.On("UpsertBlock", mock.Anything, block).Return(ledger.ErrInvalidRecord).Once()

		report := actortest.Run(t, New(db, metrics), sendAll(&ledger.BlockRecord{}, &ledger.MilestoneRecord{}, block))

		db.AssertExpectations(t)
		db.AssertNumberOfCalls(t, "UpsertBlock", 1)

		_, ok := actor.AsResult[*Error](report.Err)
		require.True(t, ok)
		require.False(t, ledger.IsTransientError(report.Err))
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.records.WithLabelValues(kindBlock, statusInvalid)))
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.records.WithLabelValues(kindMilestone, statusInvalid)))
	})

	t.Run("store calls carry the actor context", func(t *testing.T) {
		db := &ledger.DatabaseMock{
			UpsertBlockFn: func(ctx context.Context, _ *ledger.BlockRecord) error {
				<-ctx.Done()

				return ctx.Err()
			},
		}
		db.On("UpsertBlock", mock.Anything, block).Return(nil)

		report := actortest.Run(t, New(db, nil), func(_ context.Context, addr *actor.Address[*Broker]) {
			_ = addr.Send(block)

			addr.Shutdown()
		})

		require.True(t, report.Err.IsAborted())
	})
}
