package gouroboros

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ethernal-Tech/chronicle/common"
	"github.com/Ethernal-Tech/chronicle/ledger"
)

var ErrRollbackTooDeep = errors.New("rollback beyond a confirmed block")

// tracker holds the newest blocks until they are ConfirmationCount deep and groups
// confirmed blocks into milestones. It is driven by the chain sync callbacks, one at a time.
type tracker struct {
	confirmationCount int
	milestoneInterval int
	nextIndex         uint32
	now               func() time.Time

	unconfirmed   common.CircularQueue[*ledger.BlockRecord]
	tip           *ledger.BlockRecord
	lastConfirmed *ledger.BlockRecord
	pending       []ledger.Hash
}

func newTracker(confirmationCount, milestoneInterval int, firstIndex uint32) *tracker {
	if firstIndex == 0 {
		firstIndex = 1
	}

	return &tracker{
		confirmationCount: confirmationCount,
		milestoneInterval: milestoneInterval,
		nextIndex:         firstIndex,
		now:               time.Now,
		unconfirmed:       common.NewCircularQueue[*ledger.BlockRecord](confirmationCount + 1),
	}
}

// rollForward adds the new tip and returns, in order, the blocks it confirmed and the milestones they completed.
func (t *tracker) rollForward(block *ledger.BlockRecord) ([]any, error) {
	if t.tip != nil {
		parentID := t.tip.ID
		block.ParentID = &parentID
	}

	// confirming below always leaves one free slot
	if err := t.unconfirmed.Push(block); err != nil {
		return nil, err
	}

	t.tip = block

	var records []any

	for t.unconfirmed.Len() > t.confirmationCount {
		confirmed := t.unconfirmed.Pop()

		t.lastConfirmed = confirmed
		t.pending = append(t.pending, confirmed.ID)
		records = append(records, confirmed)

		if len(t.pending) == t.milestoneInterval {
			records = append(records, &ledger.MilestoneRecord{
				Index:     t.nextIndex,
				Timestamp: t.now().Unix(),
				Slot:      confirmed.Slot,
				BlockIDs:  t.pending,
			})

			t.nextIndex++
			t.pending = nil
		}
	}

	return records, nil
}

// rollBackward drops the unconfirmed blocks after slot.
func (t *tracker) rollBackward(slot uint64) error {
	if t.lastConfirmed != nil && slot < t.lastConfirmed.Slot {
		return fmt.Errorf("%w: slot %d, confirmed up to %d", ErrRollbackTooDeep, slot, t.lastConfirmed.Slot)
	}

	if idx := t.unconfirmed.Find(func(b *ledger.BlockRecord) bool { return b.Slot > slot }); idx >= 0 {
		t.unconfirmed.ClearFrom(idx)
	}

	t.tip = t.lastConfirmed
	if t.unconfirmed.Len() > 0 {
		t.tip = t.unconfirmed.Last()
	}

	return nil
}
