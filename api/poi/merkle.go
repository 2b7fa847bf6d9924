// Package poi computes Merkle roots over the blocks confirmed by a milestone.
package poi

import (
	"math/bits"

	"github.com/Ethernal-Tech/chronicle/ledger"
	"golang.org/x/crypto/blake2b"
)

const (
	leafHashPrefix byte = 0
	nodeHashPrefix byte = 1
)

// Hash returns the Merkle root of data. Every element is a leaf; the tree splits
// at the largest power of two smaller than the number of leaves.
func Hash(data [][]byte) ledger.Hash {
	switch len(data) {
	case 0:
		return HashEmpty()
	case 1:
		return HashLeaf(data[0])
	default:
		k := largestPowerOfTwo(uint32(len(data))) //nolint:gosec

		l := Hash(data[:k])
		r := Hash(data[k:])

		return HashNode(l[:], r[:])
	}
}

// HashBlockIDs returns the Merkle root of the block IDs in the given order.
func HashBlockIDs(ids []ledger.Hash) ledger.Hash {
	data := make([][]byte, len(ids))
	for i := range ids {
		data[i] = ids[i][:]
	}

	return Hash(data)
}

func HashEmpty() ledger.Hash {
	return blake2b.Sum256(nil)
}

func HashLeaf(l []byte) ledger.Hash {
	return sum(leafHashPrefix, l)
}

func HashNode(l, r []byte) ledger.Hash {
	return sum(nodeHashPrefix, l, r)
}

func sum(prefix byte, parts ...[]byte) (h ledger.Hash) {
	// a nil key never fails
	hasher, _ := blake2b.New256(nil)

	_, _ = hasher.Write([]byte{prefix})

	for _, p := range parts {
		_, _ = hasher.Write(p)
	}

	copy(h[:], hasher.Sum(nil))

	return h
}

// largestPowerOfTwo returns the largest power of two less than n. n must be greater than 1.
func largestPowerOfTwo(n uint32) uint32 {
	return 1 << (bits.Len32(n-1) - 1)
}
