package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type DatabaseMock struct {
	mock.Mock
	UpsertBlockFn     func(ctx context.Context, block *BlockRecord) error
	UpsertMilestoneFn func(ctx context.Context, milestone *MilestoneRecord) error
}

var _ Database = (*DatabaseMock)(nil)

// UpsertBlock implements Database.
func (m *DatabaseMock) UpsertBlock(ctx context.Context, block *BlockRecord) error {
	args := m.Called(ctx, block)

	if m.UpsertBlockFn != nil {
		return m.UpsertBlockFn(ctx, block)
	}

	return args.Error(0)
}

// UpsertMilestone implements Database.
func (m *DatabaseMock) UpsertMilestone(ctx context.Context, milestone *MilestoneRecord) error {
	args := m.Called(ctx, milestone)

	if m.UpsertMilestoneFn != nil {
		return m.UpsertMilestoneFn(ctx, milestone)
	}

	return args.Error(0)
}

// GetBlock implements Database.
func (m *DatabaseMock) GetBlock(ctx context.Context, id Hash) (*BlockRecord, error) {
	args := m.Called(ctx, id)

	result, _ := args.Get(0).(*BlockRecord)

	return result, args.Error(1)
}

// GetMilestone implements Database.
func (m *DatabaseMock) GetMilestone(ctx context.Context, index uint32) (*MilestoneRecord, error) {
	args := m.Called(ctx, index)

	result, _ := args.Get(0).(*MilestoneRecord)

	return result, args.Error(1)
}

// GetLatestMilestone implements Database.
func (m *DatabaseMock) GetLatestMilestone(ctx context.Context) (*MilestoneRecord, error) {
	args := m.Called(ctx)

	result, _ := args.Get(0).(*MilestoneRecord)

	return result, args.Error(1)
}

// GetMilestones implements Database.
func (m *DatabaseMock) GetMilestones(ctx context.Context, from, to uint32) ([]*MilestoneRecord, error) {
	args := m.Called(ctx, from, to)

	result, _ := args.Get(0).([]*MilestoneRecord)

	return result, args.Error(1)
}

// BlockAnalytics implements Database.
func (m *DatabaseMock) BlockAnalytics(ctx context.Context, start, end uint32) (*BlockAnalytics, error) {
	args := m.Called(ctx, start, end)

	result, _ := args.Get(0).(*BlockAnalytics)

	return result, args.Error(1)
}

// Close implements Database.
func (m *DatabaseMock) Close() error {
	return m.Called().Error(0)
}
