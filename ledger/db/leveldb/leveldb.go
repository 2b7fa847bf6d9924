package ledgerleveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/syndtr/goleveldb/leveldb"
	lvlerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBDatabase struct {
	db *leveldb.DB
}

var (
	blocksBucket     = []byte("P1_")
	milestonesBucket = []byte("P2_")

	syncWrite = &opt.WriteOptions{
		NoWriteMerge: false,
		Sync:         true,
	}
)

var _ ledger.Database = (*LevelDBDatabase)(nil)

func NewDatabase(filePath string) (*LevelDBDatabase, error) {
	db, err := leveldb.OpenFile(filePath, nil)
	if err != nil {
		return nil, ledger.WrapError("open", fmt.Errorf("could not open db: %w", err), classify)
	}

	return &LevelDBDatabase{db: db}, nil
}

func (lvldb *LevelDBDatabase) Close() error {
	return lvldb.db.Close()
}

func (lvldb *LevelDBDatabase) UpsertBlock(ctx context.Context, block *ledger.BlockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := *block
	if record.MilestoneIndex == nil {
		existing, err := lvldb.getBlock(block.ID)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return ledger.WrapError("upsert block", err, classify)
		}

		if existing != nil {
			record.MilestoneIndex = existing.MilestoneIndex
		}
	}

	bytes, err := ledger.EncodeRecord(&record)
	if err != nil {
		return ledger.WrapError("upsert block", err, classify)
	}

	err = lvldb.db.Put(bucketKey(blocksBucket, block.ID[:]), bytes, syncWrite)

	return ledger.WrapError("upsert block", err, classify)
}

func (lvldb *LevelDBDatabase) UpsertMilestone(ctx context.Context, milestone *ledger.MilestoneRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := new(leveldb.Batch)

	bytes, err := ledger.EncodeRecord(milestone)
	if err != nil {
		return ledger.WrapError("upsert milestone", err, classify)
	}

	batch.Put(bucketKey(milestonesBucket, ledger.MilestoneKey(milestone.Index)), bytes)

	for _, id := range milestone.BlockIDs {
		block, err := lvldb.getBlock(id)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		} else if err != nil {
			return ledger.WrapError("upsert milestone", err, classify)
		}

		index := milestone.Index
		block.MilestoneIndex = &index

		bytes, err := ledger.EncodeRecord(block)
		if err != nil {
			return ledger.WrapError("upsert milestone", err, classify)
		}

		batch.Put(bucketKey(blocksBucket, id[:]), bytes)
	}

	return ledger.WrapError("upsert milestone", lvldb.db.Write(batch, syncWrite), classify)
}

func (lvldb *LevelDBDatabase) GetBlock(ctx context.Context, id ledger.Hash) (*ledger.BlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	block, err := lvldb.getBlock(id)
	if err != nil {
		return nil, ledger.WrapError("get block", err, classify)
	}

	return block, nil
}

func (lvldb *LevelDBDatabase) GetMilestone(ctx context.Context, index uint32) (*ledger.MilestoneRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bytes, err := lvldb.db.Get(bucketKey(milestonesBucket, ledger.MilestoneKey(index)), nil)
	if err != nil {
		return nil, ledger.WrapError("get milestone", processNotFoundErr(err), classify)
	}

	milestone, err := ledger.DecodeRecord[ledger.MilestoneRecord](bytes)
	if err != nil {
		return nil, ledger.WrapError("get milestone", err, classify)
	}

	return milestone, nil
}

func (lvldb *LevelDBDatabase) GetLatestMilestone(ctx context.Context) (*ledger.MilestoneRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter := lvldb.db.NewIterator(util.BytesPrefix(milestonesBucket), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, ledger.WrapError("get latest milestone", err, classify)
		}

		return nil, ledger.ErrNotFound
	}

	milestone, err := ledger.DecodeRecord[ledger.MilestoneRecord](iter.Value())
	if err != nil {
		return nil, ledger.WrapError("get latest milestone", err, classify)
	}

	return milestone, nil
}

func (lvldb *LevelDBDatabase) GetMilestones(ctx context.Context, from, to uint32) ([]*ledger.MilestoneRecord, error) {
	if err := ledger.ValidateRange(from, to); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*ledger.MilestoneRecord

	iter := lvldb.db.NewIterator(&util.Range{
		Start: bucketKey(milestonesBucket, ledger.MilestoneKey(from)),
		Limit: bucketKey(milestonesBucket, ledger.MilestoneKeyAfter(to)),
	}, nil)
	defer iter.Release()

	for iter.Next() {
		milestone, err := ledger.DecodeRecord[ledger.MilestoneRecord](iter.Value())
		if err != nil {
			return nil, ledger.WrapError("get milestones", err, classify)
		}

		result = append(result, milestone)
	}

	if err := iter.Error(); err != nil {
		return nil, ledger.WrapError("get milestones", err, classify)
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) BlockAnalytics(ctx context.Context, start, end uint32) (*ledger.BlockAnalytics, error) {
	milestones, err := lvldb.GetMilestones(ctx, start, end)
	if err != nil {
		return nil, err
	}

	return ledger.ComputeBlockAnalytics(start, end, milestones), nil
}

func (lvldb *LevelDBDatabase) getBlock(id ledger.Hash) (*ledger.BlockRecord, error) {
	bytes, err := lvldb.db.Get(bucketKey(blocksBucket, id[:]), nil)
	if err != nil {
		return nil, processNotFoundErr(err)
	}

	return ledger.DecodeRecord[ledger.BlockRecord](bytes)
}

func bucketKey(bucket []byte, key []byte) []byte {
	const separator = "_#_"

	outputKey := make([]byte, len(bucket)+len(separator)+len(key))
	copy(outputKey, bucket)
	copy(outputKey[len(bucket):], []byte(separator))
	copy(outputKey[len(bucket)+len(separator):], key)

	return outputKey
}

func processNotFoundErr(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return ledger.ErrNotFound
	}

	return err
}

func classify(err error) (ledger.PersistenceErrorKind, bool) {
	switch {
	case errors.Is(err, leveldb.ErrClosed), errors.Is(err, leveldb.ErrSnapshotReleased),
		errors.Is(err, leveldb.ErrIterReleased):
		return ledger.PersistenceIo, true
	case lvlerrors.IsCorrupted(err):
		return ledger.PersistenceOther, true
	default:
		return 0, false
	}
}
