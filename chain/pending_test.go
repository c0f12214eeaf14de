package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-dawn-chain/inter"
)

func trxWithScopes(read, write []inter.Name) *inter.Transaction {
	return &inter.Transaction{ReadScope: read, WriteScope: write}
}

func TestCycleSchedulerDisjointShards(t *testing.T) {
	require := require.New(t)

	pc := newPendingCycle()

	// disjoint transactions each get their own shard of the same cycle
	require.Equal(0, pc.Schedule(trxWithScopes(nil, []inter.Name{"alice"})))
	require.Equal(1, pc.Schedule(trxWithScopes(nil, []inter.Name{"bob"})))
	require.Equal(2, pc.Schedule(trxWithScopes([]inter.Name{"dave"}, []inter.Name{"carol"})))
}

func TestCycleSchedulerConflicts(t *testing.T) {
	tests := []struct {
		name   string
		first  *inter.Transaction
		second *inter.Transaction
		want   int
	}{
		{
			"write-write overlap",
			trxWithScopes(nil, []inter.Name{"alice"}),
			trxWithScopes(nil, []inter.Name{"alice"}),
			-1,
		},
		{
			"read of a written scope",
			trxWithScopes(nil, []inter.Name{"alice"}),
			trxWithScopes([]inter.Name{"alice"}, []inter.Name{"bob"}),
			-1,
		},
		{
			"write of a read scope",
			trxWithScopes([]inter.Name{"alice"}, []inter.Name{"bob"}),
			trxWithScopes(nil, []inter.Name{"alice"}),
			-1,
		},
		{
			"shared reads are fine",
			trxWithScopes([]inter.Name{"alice"}, []inter.Name{"bob"}),
			trxWithScopes([]inter.Name{"alice"}, []inter.Name{"carol"}),
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := newPendingCycle()
			require.Equal(t, 0, pc.Schedule(tt.first))
			require.Equal(t, tt.want, pc.Schedule(tt.second))
		})
	}
}

func TestConflictingTransactionsLandInDifferentCycles(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	trx1 := signedTransfer(t, c, nil, []inter.Name{"producer0"})
	_, err := c.PushTransaction(trx1, SkipNothing)
	require.NoError(err)

	// same write scope conflicts: a new cycle opens
	trx2 := signedTransfer(t, c, nil, []inter.Name{"producer0"})
	trx2.Expiration += inter.Timestamp(time.Second) // distinct id
	trx2.Signatures = nil
	require.NoError(trx2.Sign(producerKey(t, "producer0"), c.ChainID()))
	_, err = c.PushTransaction(trx2, SkipNothing)
	require.NoError(err)

	cycles := c.pendingBlock.Regions[0].CyclesSummary
	require.Len(cycles, 2)
	require.Equal(trx1.ID(), cycles[0][0][0].ID)
	require.Equal(trx2.ID(), cycles[1][0][0].ID)

	// a disjoint transaction joins the open cycle in its own shard
	trx3 := signedTransfer(t, c, nil, []inter.Name{"producer1"})
	_, err = c.PushTransaction(trx3, SkipNothing)
	require.NoError(err)

	cycles = c.pendingBlock.Regions[0].CyclesSummary
	require.Len(cycles, 2)
	require.Len(cycles[1], 2)
	require.Equal(trx3.ID(), cycles[1][1][0].ID)

	// the produced block replays cleanly on a fresh controller
	block := produceNext(t, c)
	require.Len(block.InputTransactions, 3)

	fresh := newTestController(t, 3)
	require.NoError(fresh.PushBlock(block, SkipNothing))
	require.Equal(c.StateFingerprint(), fresh.StateFingerprint())
}
