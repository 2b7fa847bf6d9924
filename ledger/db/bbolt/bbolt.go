package ledgerbbolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"go.etcd.io/bbolt"
)

type BBoltDatabase struct {
	db *bbolt.DB
}

var (
	blocksBucket     = []byte("Blocks")
	milestonesBucket = []byte("Milestones")
)

var _ ledger.Database = (*BBoltDatabase)(nil)

// NewDatabase opens or creates the database file. timeout bounds the wait for the file lock
// held by another handle, zero waits forever.
func NewDatabase(filePath string, timeout time.Duration) (*BBoltDatabase, error) {
	db, err := bbolt.Open(filePath, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, ledger.WrapError("open", fmt.Errorf("could not open db: %w", err), classify)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bn := range [][]byte{blocksBucket, milestonesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bn); err != nil {
				return fmt.Errorf("could not create bucket: %s, err: %w", string(bn), err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, ledger.WrapError("open", err, classify)
	}

	return &BBoltDatabase{db: db}, nil
}

func (bd *BBoltDatabase) Close() error {
	return bd.db.Close()
}

func (bd *BBoltDatabase) UpsertBlock(ctx context.Context, block *ledger.BlockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := bd.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)

		record := *block
		if record.MilestoneIndex == nil {
			// keep the reference set by an earlier milestone
			if data := bucket.Get(block.ID[:]); len(data) > 0 {
				existing, err := ledger.DecodeRecord[ledger.BlockRecord](data)
				if err != nil {
					return err
				}

				record.MilestoneIndex = existing.MilestoneIndex
			}
		}

		bytes, err := ledger.EncodeRecord(&record)
		if err != nil {
			return err
		}

		return bucket.Put(block.ID[:], bytes)
	})

	return ledger.WrapError("upsert block", err, classify)
}

func (bd *BBoltDatabase) UpsertMilestone(ctx context.Context, milestone *ledger.MilestoneRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := bd.db.Update(func(tx *bbolt.Tx) error {
		bytes, err := ledger.EncodeRecord(milestone)
		if err != nil {
			return err
		}

		if err := tx.Bucket(milestonesBucket).Put(ledger.MilestoneKey(milestone.Index), bytes); err != nil {
			return fmt.Errorf("could not put milestone: %w", err)
		}

		blocks := tx.Bucket(blocksBucket)

		for _, id := range milestone.BlockIDs {
			data := blocks.Get(id[:])
			if len(data) == 0 {
				continue
			}

			block, err := ledger.DecodeRecord[ledger.BlockRecord](data)
			if err != nil {
				return err
			}

			index := milestone.Index
			block.MilestoneIndex = &index

			bytes, err := ledger.EncodeRecord(block)
			if err != nil {
				return err
			}

			if err := blocks.Put(id[:], bytes); err != nil {
				return fmt.Errorf("could not mark block %s: %w", id, err)
			}
		}

		return nil
	})

	return ledger.WrapError("upsert milestone", err, classify)
}

func (bd *BBoltDatabase) GetBlock(ctx context.Context, id ledger.Hash) (result *ledger.BlockRecord, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = bd.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(blocksBucket).Get(id[:])
		if len(data) == 0 {
			return ledger.ErrNotFound
		}

		result, err = ledger.DecodeRecord[ledger.BlockRecord](data)

		return err
	})
	if err != nil {
		return nil, ledger.WrapError("get block", err, classify)
	}

	return result, nil
}

func (bd *BBoltDatabase) GetMilestone(ctx context.Context, index uint32) (result *ledger.MilestoneRecord, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = bd.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(milestonesBucket).Get(ledger.MilestoneKey(index))
		if len(data) == 0 {
			return ledger.ErrNotFound
		}

		result, err = ledger.DecodeRecord[ledger.MilestoneRecord](data)

		return err
	})
	if err != nil {
		return nil, ledger.WrapError("get milestone", err, classify)
	}

	return result, nil
}

func (bd *BBoltDatabase) GetLatestMilestone(ctx context.Context) (result *ledger.MilestoneRecord, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = bd.db.View(func(tx *bbolt.Tx) error {
		k, v := tx.Bucket(milestonesBucket).Cursor().Last()
		if k == nil {
			return ledger.ErrNotFound
		}

		result, err = ledger.DecodeRecord[ledger.MilestoneRecord](v)

		return err
	})
	if err != nil {
		return nil, ledger.WrapError("get latest milestone", err, classify)
	}

	return result, nil
}

func (bd *BBoltDatabase) GetMilestones(ctx context.Context, from, to uint32) ([]*ledger.MilestoneRecord, error) {
	if err := ledger.ValidateRange(from, to); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*ledger.MilestoneRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(milestonesBucket).Cursor()

		for k, v := cursor.Seek(ledger.MilestoneKey(from)); k != nil; k, v = cursor.Next() {
			if ledger.MilestoneIndexFromKey(k) > to {
				break
			}

			milestone, err := ledger.DecodeRecord[ledger.MilestoneRecord](v)
			if err != nil {
				return err
			}

			result = append(result, milestone)
		}

		return nil
	})
	if err != nil {
		return nil, ledger.WrapError("get milestones", err, classify)
	}

	return result, nil
}

func (bd *BBoltDatabase) BlockAnalytics(ctx context.Context, start, end uint32) (*ledger.BlockAnalytics, error) {
	milestones, err := bd.GetMilestones(ctx, start, end)
	if err != nil {
		return nil, err
	}

	return ledger.ComputeBlockAnalytics(start, end, milestones), nil
}

func classify(err error) (ledger.PersistenceErrorKind, bool) {
	switch {
	case errors.Is(err, bbolt.ErrTimeout):
		return ledger.PersistenceServerSelection, true
	case errors.Is(err, bbolt.ErrDatabaseNotOpen), errors.Is(err, bbolt.ErrTxClosed):
		return ledger.PersistenceIo, true
	case errors.Is(err, bbolt.ErrDatabaseReadOnly), errors.Is(err, bbolt.ErrInvalid),
		errors.Is(err, bbolt.ErrVersionMismatch), errors.Is(err, bbolt.ErrChecksum):
		return ledger.PersistenceOther, true
	default:
		return 0, false
	}
}
