package forkdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-dawn-chain/inter"
)

// makeBlock builds a block extending prev at the given timestamp (the
// timestamp differentiates siblings).
func makeBlock(prev inter.BlockID, ts inter.Timestamp) *inter.SignedBlock {
	b := &inter.SignedBlock{}
	b.Previous = prev
	b.Timestamp = ts
	b.Producer = "producer0"
	return b
}

func TestPushBlockTracksLongestChain(t *testing.T) {
	require := require.New(t)

	db := New(100)
	b1 := makeBlock(inter.BlockID{}, 1)
	head, err := db.PushBlock(b1)
	require.NoError(err)
	require.Equal(b1.ID(), head.ID)

	b2 := makeBlock(b1.ID(), 2)
	head, err = db.PushBlock(b2)
	require.NoError(err)
	require.Equal(b2.ID(), head.ID)

	// an equal-height sibling does not displace the head unless its id is
	// lexicographically smaller
	sibling := makeBlock(b1.ID(), 3)
	head, err = db.PushBlock(sibling)
	require.NoError(err)
	expected := b2.ID()
	if less(sibling.ID(), b2.ID()) {
		expected = sibling.ID()
	}
	require.Equal(expected, head.ID)

	// a longer branch wins
	b3 := makeBlock(sibling.ID(), 4)
	head, err = db.PushBlock(b3)
	require.NoError(err)
	require.Equal(b3.ID(), head.ID)
}

func less(a, b inter.BlockID) bool {
	return lessID(a, b)
}

func TestPushUnlinkableBlock(t *testing.T) {
	require := require.New(t)

	db := New(100)
	b1 := makeBlock(inter.BlockID{}, 1)
	_, err := db.PushBlock(b1)
	require.NoError(err)

	var unknown inter.BlockID
	unknown[31] = 0xff
	orphan := makeBlock(unknown, 2)
	_, err = db.PushBlock(orphan)
	require.True(errors.Is(err, ErrUnlinkableBlock))
}

func TestFetchBranchFrom(t *testing.T) {
	require := require.New(t)

	db := New(100)
	b1 := makeBlock(inter.BlockID{}, 1)
	db.PushBlock(b1)

	// branch A: b1 <- a2 <- a3, branch B: b1 <- b2 <- b3 <- b4
	a2 := makeBlock(b1.ID(), 10)
	a3 := makeBlock(a2.ID(), 11)
	b2 := makeBlock(b1.ID(), 20)
	b3 := makeBlock(b2.ID(), 21)
	b4 := makeBlock(b3.ID(), 22)
	for _, b := range []*inter.SignedBlock{a2, a3, b2, b3, b4} {
		_, err := db.PushBlock(b)
		require.NoError(err)
	}

	first, second, err := db.FetchBranchFrom(b4.ID(), a3.ID())
	require.NoError(err)

	// child to parent, common ancestor (b1) excluded
	require.Len(first, 3)
	require.Equal(b4.ID(), first[0].ID)
	require.Equal(b3.ID(), first[1].ID)
	require.Equal(b2.ID(), first[2].ID)

	require.Len(second, 2)
	require.Equal(a3.ID(), second[0].ID)
	require.Equal(a2.ID(), second[1].ID)

	// both sides end at siblings below the common ancestor
	require.Equal(first[2].Block.Previous, second[1].Block.Previous)
}

func TestRemoveDeletesDescendants(t *testing.T) {
	require := require.New(t)

	db := New(100)
	b1 := makeBlock(inter.BlockID{}, 1)
	b2 := makeBlock(b1.ID(), 2)
	b3 := makeBlock(b2.ID(), 3)
	for _, b := range []*inter.SignedBlock{b1, b2, b3} {
		db.PushBlock(b)
	}

	db.Remove(b2.ID())
	require.True(db.IsKnownBlock(b1.ID()))
	require.False(db.IsKnownBlock(b2.ID()))
	require.False(db.IsKnownBlock(b3.ID()))

	// head fell back to the surviving item
	require.Equal(b1.ID(), db.Head().ID)
}

func TestPopBlock(t *testing.T) {
	require := require.New(t)

	db := New(100)
	b1 := makeBlock(inter.BlockID{}, 1)
	b2 := makeBlock(b1.ID(), 2)
	db.PushBlock(b1)
	db.PushBlock(b2)

	db.PopBlock()
	require.Equal(b1.ID(), db.Head().ID)
	// the popped item stays available for re-application
	require.True(db.IsKnownBlock(b2.ID()))
}

func TestSetMaxSizePrunes(t *testing.T) {
	require := require.New(t)

	db := New(100)
	prev := inter.BlockID{}
	var blocks []*inter.SignedBlock
	for i := 0; i < 10; i++ {
		b := makeBlock(prev, inter.Timestamp(i+1))
		db.PushBlock(b)
		blocks = append(blocks, b)
		prev = b.ID()
	}

	db.SetMaxSize(3) // keep numbers 7..10
	require.False(db.IsKnownBlock(blocks[5].ID()))
	require.True(db.IsKnownBlock(blocks[6].ID()))
	require.True(db.IsKnownBlock(blocks[9].ID()))
}
