package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
)

// Merkle computes the root of a binary merkle tree over the given digests.
// An odd element on any level is promoted to the next level unchanged. The
// root of an empty list is the zero hash; a single digest is its own root.
func Merkle(digests []hash.Hash) hash.Hash {
	if len(digests) == 0 {
		return hash.Hash{}
	}
	level := make([]hash.Hash, len(digests))
	copy(level, digests)

	for len(level) > 1 {
		next := make([]hash.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, hash.Of(level[i].Bytes(), level[i+1].Bytes()))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// IncrementalMerkle is an append-only merkle accumulator. Appending N
// leaves maintains at most log2(N)+1 peaks (one per set bit of the leaf
// count); the root folds the peaks from the lowest level upwards.
//
// The dynamic global properties carry one of these as the running merkle
// root over all past block ids, which every block commits to in its
// BlockMRoot header field.
type IncrementalMerkle struct {
	Count uint64
	Peaks []hash.Hash
}

// Append adds a leaf digest to the accumulator.
func (m *IncrementalMerkle) Append(leaf hash.Hash) {
	carry := leaf
	count := m.Count
	for count&1 == 1 {
		top := m.Peaks[len(m.Peaks)-1]
		m.Peaks = m.Peaks[:len(m.Peaks)-1]
		carry = hash.Of(top.Bytes(), carry.Bytes())
		count >>= 1
	}
	m.Peaks = append(m.Peaks, carry)
	m.Count++
}

// GetRoot folds the current peaks into a single root. Empty accumulator
// yields the zero hash.
func (m *IncrementalMerkle) GetRoot() hash.Hash {
	if len(m.Peaks) == 0 {
		return hash.Hash{}
	}
	root := m.Peaks[len(m.Peaks)-1]
	for i := len(m.Peaks) - 2; i >= 0; i-- {
		root = hash.Of(m.Peaks[i].Bytes(), root.Bytes())
	}
	return root
}

// Copy returns a deep copy of the accumulator.
func (m IncrementalMerkle) Copy() IncrementalMerkle {
	cp := m
	cp.Peaks = make([]hash.Hash, len(m.Peaks))
	copy(cp.Peaks, m.Peaks)
	return cp
}
