package db

import (
	"context"
	"sync"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/hashicorp/go-hclog"
)

// Handle is the database shared by the actors of the node. Reopen replaces the underlying
// store after a transient failure; every holder of the handle uses the new store from then on.
type Handle struct {
	config Config
	logger hclog.Logger

	lock sync.RWMutex
	db   ledger.Database
}

var _ ledger.Database = (*Handle)(nil)

func Open(ctx context.Context, config Config, logger hclog.Logger) (*Handle, error) {
	db, err := NewDatabase(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	return &Handle{config: config, logger: logger, db: db}, nil
}

// Reopen closes the current store and opens a fresh one from the same config.
// Operations in flight complete on the old store first.
func (h *Handle) Reopen(ctx context.Context) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.db != nil {
		if err := h.db.Close(); err != nil {
			h.logger.Warn("Error while closing database", "err", err)
		}

		h.db = nil
	}

	db, err := NewDatabase(ctx, h.config, h.logger)
	if err != nil {
		return err
	}

	h.db = db

	return nil
}

func (h *Handle) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.db == nil {
		return nil
	}

	err := h.db.Close()
	h.db = nil

	return err
}

func (h *Handle) UpsertBlock(ctx context.Context, block *ledger.BlockRecord) error {
	return withDB(h, "upsert block", func(db ledger.Database) error {
		return db.UpsertBlock(ctx, block)
	})
}

func (h *Handle) UpsertMilestone(ctx context.Context, milestone *ledger.MilestoneRecord) error {
	return withDB(h, "upsert milestone", func(db ledger.Database) error {
		return db.UpsertMilestone(ctx, milestone)
	})
}

func (h *Handle) GetBlock(ctx context.Context, id ledger.Hash) (result *ledger.BlockRecord, err error) {
	err = withDB(h, "get block", func(db ledger.Database) (err error) {
		result, err = db.GetBlock(ctx, id)

		return err
	})

	return result, err
}

func (h *Handle) GetMilestone(ctx context.Context, index uint32) (result *ledger.MilestoneRecord, err error) {
	err = withDB(h, "get milestone", func(db ledger.Database) (err error) {
		result, err = db.GetMilestone(ctx, index)

		return err
	})

	return result, err
}

func (h *Handle) GetLatestMilestone(ctx context.Context) (result *ledger.MilestoneRecord, err error) {
	err = withDB(h, "get latest milestone", func(db ledger.Database) (err error) {
		result, err = db.GetLatestMilestone(ctx)

		return err
	})

	return result, err
}

func (h *Handle) GetMilestones(ctx context.Context, from, to uint32) (result []*ledger.MilestoneRecord, err error) {
	err = withDB(h, "get milestones", func(db ledger.Database) (err error) {
		result, err = db.GetMilestones(ctx, from, to)

		return err
	})

	return result, err
}

func (h *Handle) BlockAnalytics(ctx context.Context, start, end uint32) (result *ledger.BlockAnalytics, err error) {
	err = withDB(h, "block analytics", func(db ledger.Database) (err error) {
		result, err = db.BlockAnalytics(ctx, start, end)

		return err
	})

	return result, err
}

func withDB(h *Handle, op string, fn func(db ledger.Database) error) error {
	h.lock.RLock()
	defer h.lock.RUnlock()

	if h.db == nil {
		// closed, or the last reopen failed
		return &ledger.PersistenceError{Kind: ledger.PersistenceServerSelection, Op: op, Err: ErrNoDatabase}
	}

	return fn(h.db)
}
