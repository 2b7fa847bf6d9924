package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const HashSize = 32

type Hash [HashSize]byte

// NewHashFromHexString parses a hex encoded hash, with or without the 0x prefix.
func NewHashFromHexString(s string) (h Hash, err error) {
	bytes, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}

	return NewHashFromBytes(bytes)
}

func NewHashFromBytes(bytes []byte) (h Hash, err error) {
	if len(bytes) != HashSize {
		return h, fmt.Errorf("invalid hash length: expected %d got %d", HashSize, len(bytes))
	}

	copy(h[:], bytes)

	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) (err error) {
	*h, err = NewHashFromHexString(string(text))

	return err
}

// BlockRecord is a block observed on the upstream chain.
type BlockRecord struct {
	ID       Hash   `json:"id" cbor:"1,keyasint"`
	Slot     uint64 `json:"slot" cbor:"2,keyasint"`
	Number   uint64 `json:"number" cbor:"3,keyasint"`
	EraID    uint8  `json:"era" cbor:"4,keyasint"`
	ParentID *Hash  `json:"parentId,omitempty" cbor:"5,keyasint,omitempty"`
	// MilestoneIndex is set once a milestone referencing the block was stored.
	MilestoneIndex *uint32 `json:"milestoneIndex,omitempty" cbor:"6,keyasint,omitempty"`
}

func (b *BlockRecord) Validate() error {
	if b.ID.IsZero() {
		return fmt.Errorf("%w: block without id", ErrInvalidRecord)
	}

	return nil
}

// MilestoneRecord confirms the set of blocks that became final since the previous milestone.
type MilestoneRecord struct {
	Index     uint32 `json:"index" cbor:"1,keyasint"`
	Timestamp int64  `json:"timestamp" cbor:"2,keyasint"`
	Slot      uint64 `json:"slot" cbor:"3,keyasint"`
	BlockIDs  []Hash `json:"blockIds" cbor:"4,keyasint"`
}

func (m *MilestoneRecord) Validate() error {
	if m.Index == 0 {
		return fmt.Errorf("%w: milestone index starts at 1", ErrInvalidRecord)
	}

	for i, id := range m.BlockIDs {
		if id.IsZero() {
			return fmt.Errorf("%w: milestone %d references an empty block id at %d", ErrInvalidRecord, m.Index, i)
		}
	}

	return nil
}

// BlockAnalytics summarizes the blocks confirmed by the milestones of an index range.
type BlockAnalytics struct {
	StartIndex uint32 `json:"startIndex"`
	EndIndex   uint32 `json:"endIndex"`
	Milestones uint64 `json:"milestones"`
	Blocks     uint64 `json:"blocks"`
	FirstSlot  uint64 `json:"firstSlot"`
	LastSlot   uint64 `json:"lastSlot"`
}

// ComputeBlockAnalytics aggregates milestones already filtered to [start, end].
func ComputeBlockAnalytics(start, end uint32, milestones []*MilestoneRecord) *BlockAnalytics {
	result := &BlockAnalytics{
		StartIndex: start,
		EndIndex:   end,
	}

	for _, ms := range milestones {
		if result.Milestones == 0 || ms.Slot < result.FirstSlot {
			result.FirstSlot = ms.Slot
		}

		result.LastSlot = max(result.LastSlot, ms.Slot)
		result.Milestones++
		result.Blocks += uint64(len(ms.BlockIDs))
	}

	return result
}

// MilestoneKey converts a milestone index to an 8 byte big endian key so keys sort by index.
func MilestoneKey(index uint32) []byte {
	bytes := make([]byte, 8)

	binary.BigEndian.PutUint64(bytes, uint64(index))

	return bytes
}

// MilestoneKeyAfter is the exclusive upper bound of the keys up to and including index.
func MilestoneKeyAfter(index uint32) []byte {
	bytes := make([]byte, 8)

	binary.BigEndian.PutUint64(bytes, uint64(index)+1)

	return bytes
}

func MilestoneIndexFromKey(key []byte) uint32 {
	return uint32(binary.BigEndian.Uint64(key)) //nolint:gosec
}
