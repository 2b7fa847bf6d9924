package ledgerpostgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS blocks (
		id BYTEA PRIMARY KEY,
		slot BIGINT NOT NULL,
		number BIGINT NOT NULL,
		era SMALLINT NOT NULL,
		parent_id BYTEA,
		milestone_index BIGINT
	);
	CREATE TABLE IF NOT EXISTS milestones (
		idx BIGINT PRIMARY KEY,
		ts BIGINT NOT NULL,
		slot BIGINT NOT NULL,
		block_ids BYTEA[] NOT NULL
	);
`

// PostgresDatabase stores records in PostgreSQL through a connection pool.
type PostgresDatabase struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

var _ ledger.Database = (*PostgresDatabase)(nil)

func NewDatabase(ctx context.Context, connStr string) (*PostgresDatabase, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, &ledger.PersistenceError{Kind: ledger.PersistenceOther, Op: "open", Err: err}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, ledger.WrapError("open", err, classify)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, ledger.WrapError("open", err, classify)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()

		return nil, ledger.WrapError("open", fmt.Errorf("create tables: %w", err), classify)
	}

	return &PostgresDatabase{pool: pool}, nil
}

func (p *PostgresDatabase) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}

	return nil
}

func (p *PostgresDatabase) UpsertBlock(ctx context.Context, block *ledger.BlockRecord) error {
	if err := p.check(ctx, "upsert block"); err != nil {
		return err
	}

	var parentID []byte
	if block.ParentID != nil {
		parentID = block.ParentID[:]
	}

	var milestoneIndex *int64
	if block.MilestoneIndex != nil {
		value := int64(*block.MilestoneIndex)
		milestoneIndex = &value
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO blocks (id, slot, number, era, parent_id, milestone_index)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			slot = EXCLUDED.slot,
			number = EXCLUDED.number,
			era = EXCLUDED.era,
			parent_id = EXCLUDED.parent_id,
			milestone_index = COALESCE(EXCLUDED.milestone_index, blocks.milestone_index)`,
		block.ID[:], int64(block.Slot), int64(block.Number), int16(block.EraID), parentID, milestoneIndex, //nolint:gosec
	)

	return ledger.WrapError("upsert block", err, classify)
}

func (p *PostgresDatabase) UpsertMilestone(ctx context.Context, milestone *ledger.MilestoneRecord) error {
	if err := p.check(ctx, "upsert milestone"); err != nil {
		return err
	}

	ids := make([][]byte, len(milestone.BlockIDs))
	for i := range milestone.BlockIDs {
		ids[i] = milestone.BlockIDs[i][:]
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO milestones (idx, ts, slot, block_ids)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (idx) DO UPDATE SET ts = EXCLUDED.ts, slot = EXCLUDED.slot, block_ids = EXCLUDED.block_ids`,
			int64(milestone.Index), milestone.Timestamp, int64(milestone.Slot), ids, //nolint:gosec
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `UPDATE blocks SET milestone_index = $1 WHERE id = ANY($2)`, int64(milestone.Index), ids)

		return err
	})

	return ledger.WrapError("upsert milestone", err, classify)
}

func (p *PostgresDatabase) GetBlock(ctx context.Context, id ledger.Hash) (*ledger.BlockRecord, error) {
	if err := p.check(ctx, "get block"); err != nil {
		return nil, err
	}

	var (
		slot, number   int64
		era            int16
		parentID       []byte
		milestoneIndex *int64
	)

	err := p.pool.QueryRow(ctx,
		`SELECT slot, number, era, parent_id, milestone_index FROM blocks WHERE id = $1`, id[:],
	).Scan(&slot, &number, &era, &parentID, &milestoneIndex)
	if err != nil {
		return nil, ledger.WrapError("get block", processNotFoundErr(err), classify)
	}

	block := &ledger.BlockRecord{
		ID:     id,
		Slot:   uint64(slot),   //nolint:gosec
		Number: uint64(number), //nolint:gosec
		EraID:  uint8(era),     //nolint:gosec
	}

	if parentID != nil {
		parent, err := ledger.NewHashFromBytes(parentID)
		if err != nil {
			return nil, ledger.WrapError("get block", err, classify)
		}

		block.ParentID = &parent
	}

	if milestoneIndex != nil {
		index := uint32(*milestoneIndex) //nolint:gosec
		block.MilestoneIndex = &index
	}

	return block, nil
}

func (p *PostgresDatabase) GetMilestone(ctx context.Context, index uint32) (*ledger.MilestoneRecord, error) {
	if err := p.check(ctx, "get milestone"); err != nil {
		return nil, err
	}

	milestone, err := scanMilestone(p.pool.QueryRow(ctx,
		`SELECT idx, ts, slot, block_ids FROM milestones WHERE idx = $1`, int64(index)))
	if err != nil {
		return nil, ledger.WrapError("get milestone", err, classify)
	}

	return milestone, nil
}

func (p *PostgresDatabase) GetLatestMilestone(ctx context.Context) (*ledger.MilestoneRecord, error) {
	if err := p.check(ctx, "get latest milestone"); err != nil {
		return nil, err
	}

	milestone, err := scanMilestone(p.pool.QueryRow(ctx,
		`SELECT idx, ts, slot, block_ids FROM milestones ORDER BY idx DESC LIMIT 1`))
	if err != nil {
		return nil, ledger.WrapError("get latest milestone", err, classify)
	}

	return milestone, nil
}

func (p *PostgresDatabase) GetMilestones(ctx context.Context, from, to uint32) ([]*ledger.MilestoneRecord, error) {
	if err := ledger.ValidateRange(from, to); err != nil {
		return nil, err
	}

	if err := p.check(ctx, "get milestones"); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT idx, ts, slot, block_ids FROM milestones WHERE idx BETWEEN $1 AND $2 ORDER BY idx`,
		int64(from), int64(to))
	if err != nil {
		return nil, ledger.WrapError("get milestones", err, classify)
	}
	defer rows.Close()

	var result []*ledger.MilestoneRecord

	for rows.Next() {
		milestone, err := scanMilestone(rows)
		if err != nil {
			return nil, ledger.WrapError("get milestones", err, classify)
		}

		result = append(result, milestone)
	}

	if err := rows.Err(); err != nil {
		return nil, ledger.WrapError("get milestones", err, classify)
	}

	return result, nil
}

func (p *PostgresDatabase) BlockAnalytics(ctx context.Context, start, end uint32) (*ledger.BlockAnalytics, error) {
	if err := ledger.ValidateRange(start, end); err != nil {
		return nil, err
	}

	if err := p.check(ctx, "block analytics"); err != nil {
		return nil, err
	}

	var milestones, blocks, firstSlot, lastSlot int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cardinality(block_ids)), 0), COALESCE(MIN(slot), 0), COALESCE(MAX(slot), 0)
		 FROM milestones WHERE idx BETWEEN $1 AND $2`,
		int64(start), int64(end),
	).Scan(&milestones, &blocks, &firstSlot, &lastSlot)
	if err != nil {
		return nil, ledger.WrapError("block analytics", err, classify)
	}

	return &ledger.BlockAnalytics{
		StartIndex: start,
		EndIndex:   end,
		Milestones: uint64(milestones), //nolint:gosec
		Blocks:     uint64(blocks),     //nolint:gosec
		FirstSlot:  uint64(firstSlot),  //nolint:gosec
		LastSlot:   uint64(lastSlot),   //nolint:gosec
	}, nil
}

func (p *PostgresDatabase) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.closed.Load() {
		return ledger.WrapError(op, os.ErrClosed)
	}

	return nil
}

func scanMilestone(row pgx.Row) (*ledger.MilestoneRecord, error) {
	var (
		index, ts, slot int64
		ids             [][]byte
	)

	if err := row.Scan(&index, &ts, &slot, &ids); err != nil {
		return nil, processNotFoundErr(err)
	}

	milestone := &ledger.MilestoneRecord{
		Index:     uint32(index), //nolint:gosec
		Timestamp: ts,
		Slot:      uint64(slot), //nolint:gosec
		BlockIDs:  make([]ledger.Hash, len(ids)),
	}

	for i, id := range ids {
		hash, err := ledger.NewHashFromBytes(id)
		if err != nil {
			return nil, err
		}

		milestone.BlockIDs[i] = hash
	}

	return milestone, nil
}

func processNotFoundErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}

	return err
}

func classify(err error) (ledger.PersistenceErrorKind, bool) {
	var (
		connectErr *pgconn.ConnectError
		pgErr      *pgconn.PgError
	)

	switch {
	case errors.As(err, &connectErr), pgconn.Timeout(err):
		return ledger.PersistenceServerSelection, true
	case errors.As(err, &pgErr):
		return classifySQLState(pgErr.Code), true
	case pgconn.SafeToRetry(err):
		return ledger.PersistenceIo, true
	default:
		return 0, false
	}
}

// classifySQLState maps a server reported error by its SQLSTATE class.
func classifySQLState(code string) ledger.PersistenceErrorKind {
	if len(code) < 2 {
		return ledger.PersistenceOther
	}

	switch code[:2] {
	case "08": // connection exception
		return ledger.PersistenceIo
	case "53", "57": // insufficient resources, operator intervention
		return ledger.PersistenceServerSelection
	default:
		return ledger.PersistenceOther
	}
}
