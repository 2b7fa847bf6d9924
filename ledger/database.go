package ledger

import "context"

// Database is the persistence service of the node. Upserts are idempotent: a record is keyed by
// block id or milestone index and storing it again replaces the previous version.
// Failures are returned as *PersistenceError, lookups of absent records as ErrNotFound.
// Implementations are safe for concurrent use and shared by every actor holding them.
type Database interface {
	UpsertBlock(ctx context.Context, block *BlockRecord) error
	// UpsertMilestone stores the milestone and marks the referenced blocks already stored.
	UpsertMilestone(ctx context.Context, milestone *MilestoneRecord) error

	GetBlock(ctx context.Context, id Hash) (*BlockRecord, error)
	GetMilestone(ctx context.Context, index uint32) (*MilestoneRecord, error)
	GetLatestMilestone(ctx context.Context) (*MilestoneRecord, error)
	// GetMilestones returns the stored milestones with from <= index <= to, ordered by index.
	GetMilestones(ctx context.Context, from, to uint32) ([]*MilestoneRecord, error)
	BlockAnalytics(ctx context.Context, start, end uint32) (*BlockAnalytics, error)

	Close() error
}

// ValidateRange checks a milestone index range used by GetMilestones and BlockAnalytics.
func ValidateRange(from, to uint32) error {
	if from > to {
		return ErrInvalidRange
	}

	return nil
}
