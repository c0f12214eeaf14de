package chain

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/dawn/genesis"
	"github.com/rony4d/go-dawn-chain/inter"
)

// genesisTime is divisible by the fake network block interval.
const genesisTime = inter.Timestamp(1600000000 * uint64(time.Second))

func newTestController(t *testing.T, producers int) *Controller {
	t.Helper()
	dir, err := ioutil.TempDir("", "dawn-chain")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	c, err := New(Config{
		Rules:       dawn.FakeNetRules(),
		Genesis:     genesis.FakeGenesis(producers, genesisTime),
		BlockLogDir: dir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// producerKey resolves the signing key of a fake producer by name.
func producerKey(t *testing.T, name inter.Name) *ecdsa.PrivateKey {
	t.Helper()
	var i int
	_, err := fmt.Sscanf(string(name), "producer%d", &i)
	require.NoError(t, err)
	return genesis.FakeKey(i)
}

// produceAtSlot generates a block at the given relative slot with the
// producer scheduled for it.
func produceAtSlot(t *testing.T, c *Controller, slot uint32) *inter.SignedBlock {
	t.Helper()
	when := c.GetSlotTime(slot)
	name := c.GetScheduledProducer(slot)
	b, err := c.GenerateBlock(when, name, producerKey(t, name), SkipNothing)
	require.NoError(t, err)
	return b
}

func produceNext(t *testing.T, c *Controller) *inter.SignedBlock {
	return produceAtSlot(t, c, 1)
}

// signedTransfer builds a signed transaction with the given write scopes,
// authorized by the first write scope's account.
func signedTransfer(t *testing.T, c *Controller, readScope, writeScope []inter.Name) *inter.SignedTransaction {
	t.Helper()
	trx := &inter.SignedTransaction{}
	trx.ReadScope = readScope
	trx.WriteScope = writeScope
	trx.Expiration = c.HeadBlockTime() + inter.Timestamp(time.Minute)
	trx.SetReferenceBlock(c.HeadBlockID())
	actor := writeScope[0]
	trx.Actions = []inter.Action{{
		Scope:         actor,
		Name:          "transfer",
		Authorization: []inter.PermissionLevel{{Actor: actor, Permission: dawn.ActiveName}},
		Payload:       []byte{1},
	}}
	require.NoError(t, trx.Sign(producerKey(t, actor), c.ChainID()))
	return trx
}

func TestGenesisOnly(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 1)

	require.Equal(uint32(0), c.HeadBlockNum())
	require.True(c.HeadBlockID().IsZero())
	require.Equal(genesisTime, c.HeadBlockTime())
	require.Equal(uint32(0), c.LastIrreversibleBlockNum())

	// the full TaPoS ring exists
	require.Equal(0x10000, c.db.BlockSummaryCount())

	// the genesis transaction was applied under the all-encompassing
	// write scope and is recorded
	gtrx := c.buildGenesisTransaction()
	require.Equal([]inter.Name{dawn.AllScope}, gtrx.WriteScope)
	require.True(c.IsKnownTransaction(gtrx.ID()))

	// genesis accounts and producers exist
	require.NotNil(c.db.FindAccount("producer0"))
	require.NotNil(c.db.FindProducer("producer0"))
	require.NotNil(c.db.FindAccount(dawn.SystemAccountName))
	require.NotNil(c.db.FindPermission(dawn.ProducersAccountName, dawn.ActiveName))
}

func TestTwoControllersAreDeterministic(t *testing.T) {
	require := require.New(t)

	a := newTestController(t, 3)
	b := newTestController(t, 3)
	require.Equal(a.ChainID(), b.ChainID())
	require.Equal(a.StateFingerprint(), b.StateFingerprint())

	// feed the same blocks to both
	for i := 0; i < 5; i++ {
		block := produceNext(t, a)
		require.NoError(b.PushBlock(block, SkipNothing))
	}
	require.Equal(a.HeadBlockID(), b.HeadBlockID())
	require.Equal(a.StateFingerprint(), b.StateFingerprint())
}

func TestSingleBlock(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 1)

	b := produceAtSlot(t, c, 1)
	require.Equal(uint32(1), c.HeadBlockNum())
	require.Equal(b.ID(), c.HeadBlockID())
	require.True(b.Previous.IsZero())
	require.Equal(genesisTime+c.rules.Blocks.Interval, c.HeadBlockTime())

	dgp := c.GetDynamicGlobalProperties()
	require.Equal(uint64(1), dgp.CurrentAbsoluteSlot)
	require.Equal(uint64(1), dgp.RecentSlotsFilled&1)
	require.Equal(uint32(dawn.Percent100), c.ProducerParticipationRate())
}

func TestMissedSlots(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 2)

	b := produceAtSlot(t, c, 5)
	require.Equal(uint32(1), c.HeadBlockNum())

	dgp := c.GetDynamicGlobalProperties()
	require.Equal(uint64(5), dgp.CurrentAbsoluteSlot)
	// bitmap shifted by the missed slots; of the low five bits only the
	// produced slot's bit is set
	require.Equal(uint64(0x01), dgp.RecentSlotsFilled&0x1f)

	// slots 1..4 belonged alternately to the two producers; only the
	// non-signing producer accumulates misses
	signer := b.Producer
	for _, name := range []inter.Name{"producer0", "producer1"} {
		producer, err := c.GetProducer(name)
		require.NoError(err)
		if name == signer {
			require.Equal(uint32(0), producer.TotalMissed)
		} else {
			require.Equal(uint32(2), producer.TotalMissed)
		}
	}
}

func TestDuplicateTransactionRejected(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
	_, err := c.PushTransaction(trx, SkipNothing)
	require.NoError(err)

	before := c.StateFingerprint()
	pendingLen := len(c.pendingBlock.InputTransactions)

	_, err = c.PushTransaction(trx, SkipNothing)
	require.ErrorIs(err, ErrTxDuplicate)

	// the second call left no trace
	require.Equal(before, c.StateFingerprint())
	require.Equal(pendingLen, len(c.pendingBlock.InputTransactions))
}

func TestFailedPushRestoresState(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	before := c.StateFingerprint()

	// unsorted write scope fails structural validation
	trx := signedTransfer(t, c, nil, []inter.Name{"producer1", "producer0"})
	_, err := c.PushTransaction(trx, SkipNothing)
	require.ErrorIs(err, ErrTransaction)
	require.Equal(before, c.StateFingerprint())
}

func TestAuthorizationFailures(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	t.Run("missing signature", func(t *testing.T) {
		trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
		trx.Signatures = nil
		_, err := c.PushTransaction(trx, SkipNothing)
		require.ErrorIs(err, ErrTxMissingSigs)
	})

	t.Run("irrelevant signature", func(t *testing.T) {
		trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
		require.NoError(trx.Sign(genesis.FakeKey(1), c.ChainID()))
		_, err := c.PushTransaction(trx, SkipNothing)
		require.ErrorIs(err, ErrTxIrrelevantSig)
	})

	t.Run("authorizing account outside write scope", func(t *testing.T) {
		trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
		trx.Actions[0].Authorization[0].Actor = "producer1"
		trx.Signatures = nil
		require.NoError(trx.Sign(genesis.FakeKey(1), c.ChainID()))
		_, err := c.PushTransaction(trx, SkipNothing)
		require.ErrorIs(err, ErrTransaction)
	})

	t.Run("unknown account", func(t *testing.T) {
		trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
		trx.Actions[0].Scope = "nobody"
		trx.Signatures = nil
		require.NoError(trx.Sign(genesis.FakeKey(0), c.ChainID()))
		_, err := c.PushTransaction(trx, SkipNothing)
		require.ErrorIs(err, ErrAccountNotFound)
	})
}

func TestReadWriteScopeOverlapRejected(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	trx := signedTransfer(t, c, []inter.Name{"producer0"}, []inter.Name{"producer0"})
	_, err := c.PushTransaction(trx, SkipNothing)
	require.ErrorIs(err, ErrTransaction)
}

func TestTaposMismatchRejected(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
	trx.RefBlockPrefix++
	trx.Signatures = nil
	require.NoError(trx.Sign(genesis.FakeKey(0), c.ChainID()))
	_, err := c.PushTransaction(trx, SkipNothing)
	require.ErrorIs(err, ErrTransaction)
}

func TestExpirationBounds(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	t.Run("expired", func(t *testing.T) {
		trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
		trx.Expiration = genesisTime - 1
		trx.Signatures = nil
		require.NoError(trx.Sign(genesis.FakeKey(0), c.ChainID()))
		_, err := c.PushTransaction(trx, SkipNothing)
		require.ErrorIs(err, ErrTransaction)
	})

	t.Run("too far in the future", func(t *testing.T) {
		trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
		trx.Expiration = genesisTime + inter.Timestamp(100*time.Hour)
		trx.Signatures = nil
		require.NoError(trx.Sign(genesis.FakeKey(0), c.ChainID()))
		_, err := c.PushTransaction(trx, SkipNothing)
		require.ErrorIs(err, ErrTransaction)
	})
}

func TestGeneratedBlockCarriesTransactions(t *testing.T) {
	require := require.New(t)
	a := newTestController(t, 3)
	b := newTestController(t, 3)

	trx := signedTransfer(t, a, nil, []inter.Name{"producer0"})
	_, err := a.PushTransaction(trx, SkipNothing)
	require.NoError(err)

	block := produceNext(t, a)
	require.Len(block.InputTransactions, 1)
	require.Equal(trx.ID(), block.InputTransactions[0].ID())

	// a fresh controller accepts the block and reaches the same state
	require.NoError(b.PushBlock(block, SkipNothing))
	require.Equal(a.StateFingerprint(), b.StateFingerprint())
	require.True(b.IsKnownTransaction(trx.ID()))
}

func TestPushPopRoundtrip(t *testing.T) {
	require := require.New(t)
	a := newTestController(t, 3)
	b := newTestController(t, 3)

	block := produceNext(t, a)

	before := b.StateFingerprint()
	require.NoError(b.PushBlock(block, SkipNothing))
	require.Equal(block.ID(), b.HeadBlockID())

	require.NoError(b.PopBlock())
	require.Equal(uint32(0), b.HeadBlockNum())
	require.Equal(before, b.StateFingerprint())
}

func TestPopEmptyChain(t *testing.T) {
	c := newTestController(t, 3)
	require.ErrorIs(t, c.PopBlock(), ErrPopEmptyChain)
}

func TestForkSwitch(t *testing.T) {
	require := require.New(t)
	a := newTestController(t, 3)
	b := newTestController(t, 3)

	// common prefix
	b1 := produceNext(t, a)
	require.NoError(b.PushBlock(b1, SkipNothing))

	// A extends with B2, B3; B builds a sibling branch at later slots
	produceNext(t, a)
	produceNext(t, a)
	require.Equal(uint32(3), a.HeadBlockNum())

	var branch []*inter.SignedBlock
	for i := 0; i < 3; i++ {
		branch = append(branch, produceAtSlot(t, b, 3))
	}
	require.Equal(uint32(4), b.HeadBlockNum())

	// B2', B3' are not longer than A's head: stored without switching
	require.NoError(a.PushBlock(branch[0], SkipNothing))
	require.NoError(a.PushBlock(branch[1], SkipNothing))
	require.Equal(uint32(3), a.HeadBlockNum())

	// B4' makes the sibling branch longer: A switches
	require.NoError(a.PushBlock(branch[2], SkipNothing))
	require.Equal(branch[2].ID(), a.HeadBlockID())
	require.Equal(uint32(4), a.HeadBlockNum())

	// state equals a fresh apply of the winning branch
	require.Equal(b.StateFingerprint(), a.StateFingerprint())
}

func TestFailedForkSwitchRestoresCanonicalChain(t *testing.T) {
	require := require.New(t)
	a := newTestController(t, 3)
	b := newTestController(t, 3)

	b1 := produceNext(t, a)
	require.NoError(b.PushBlock(b1, SkipNothing))

	produceNext(t, a)
	produceNext(t, a)
	headBefore := a.HeadBlockID()
	stateBefore := a.StateFingerprint()

	var branch []*inter.SignedBlock
	for i := 0; i < 3; i++ {
		branch = append(branch, produceAtSlot(t, b, 3))
	}

	require.NoError(a.PushBlock(branch[0], SkipNothing))
	require.NoError(a.PushBlock(branch[1], SkipNothing))

	// corrupt the branch tip so it fails to apply
	bad := *branch[2]
	bad.ActionMRoot = bad.Digest()
	name := bad.Producer
	require.NoError(bad.Sign(producerKey(t, name)))

	err := a.PushBlock(&bad, SkipNothing)
	require.ErrorIs(err, ErrBlockValidate)

	// the canonical chain is fully restored
	require.Equal(headBefore, a.HeadBlockID())
	require.Equal(stateBefore, a.StateFingerprint())

	// the bad branch was removed from the fork database
	require.False(a.forkDB.IsKnownBlock(branch[0].ID()))
	require.False(a.forkDB.IsKnownBlock(branch[1].ID()))
	require.False(a.forkDB.IsKnownBlock(bad.ID()))
}

func TestNewProducersOutsideRoundRejected(t *testing.T) {
	require := require.New(t)
	a := newTestController(t, 3)
	b := newTestController(t, 3)

	b1 := produceNext(t, a)
	require.NoError(b.PushBlock(b1, SkipNothing))

	// block 2 is not a round boundary (round length 3); stamping a
	// producer schedule into it must be rejected
	b2 := produceNext(t, a)
	bad := *b2
	schedule := a.GetGlobalProperties().ActiveProducers
	bad.NewProducers = &schedule
	require.NoError(bad.Sign(producerKey(t, bad.Producer)))

	err := b.PushBlock(&bad, SkipNothing)
	require.ErrorIs(err, ErrBlockValidate)
}

func TestIrreversibilityFlushesBlockLog(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 1)

	// with a single producer every block is immediately confirmed
	var blocks []*inter.SignedBlock
	for i := 0; i < 3; i++ {
		blocks = append(blocks, produceNext(t, c))
	}
	require.Equal(uint32(3), c.LastIrreversibleBlockNum())
	require.NotNil(c.blockLog.Head())
	require.Equal(uint32(3), c.blockLog.Head().Num())

	for i, b := range blocks {
		got, err := c.blockLog.ReadBlockByNum(uint32(i + 1))
		require.NoError(err)
		require.Equal(b.ID(), got.ID())
	}
}

func TestReplayReproducesState(t *testing.T) {
	require := require.New(t)

	dir, err := ioutil.TempDir("", "dawn-replay")
	require.NoError(err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := Config{
		Rules:       dawn.FakeNetRules(),
		Genesis:     genesis.FakeGenesis(1, genesisTime),
		BlockLogDir: dir,
	}

	a, err := New(cfg)
	require.NoError(err)
	for i := 0; i < 4; i++ {
		produceNext(t, a)
	}
	head := a.HeadBlockID()
	state := a.StateFingerprint()
	require.NoError(a.Close())

	// a fresh controller over the same block log replays to the same state
	b, err := New(cfg)
	require.NoError(err)
	defer b.Close()

	require.Equal(uint32(4), b.HeadBlockNum())
	require.Equal(head, b.HeadBlockID())
	require.Equal(state, b.StateFingerprint())
	require.Equal(int64(4), b.db.Revision())
}

func TestAppliedBlockEvents(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 1)

	var applied []uint32
	var irreversible []uint32
	var pending int
	c.SubscribeAppliedBlock(func(trace *inter.BlockTrace) {
		applied = append(applied, trace.Block.Num())
	})
	c.SubscribeAppliedIrreversibleBlock(func(b *inter.SignedBlock) {
		irreversible = append(irreversible, b.Num())
	})
	c.SubscribePendingTransaction(func(*inter.SignedTransaction) {
		pending++
	})

	trx := signedTransfer(t, c, nil, []inter.Name{"producer0"})
	_, err := c.PushTransaction(trx, SkipNothing)
	require.NoError(err)
	produceNext(t, c)
	produceNext(t, c)

	require.Equal([]uint32{1, 2}, applied)
	require.Equal([]uint32{1, 2}, irreversible)
	require.Equal(1, pending)
}

func TestSkipFlagOverrideRestores(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 1)

	require.Equal(SkipNothing, c.skipFlags)
	_ = c.withSkipFlags(SkipTaposCheck, func() error {
		require.Equal(SkipTaposCheck, c.skipFlags)
		_ = c.withSkipFlags(SkipMerkleCheck, func() error {
			// assignment semantics: the inner override replaces, not ORs
			require.Equal(SkipMerkleCheck, c.skipFlags)
			return nil
		})
		require.Equal(SkipTaposCheck, c.skipFlags)
		return fmt.Errorf("boom")
	})
	require.Equal(SkipNothing, c.skipFlags)
}

func TestScheduleRotation(t *testing.T) {
	require := require.New(t)
	c := newTestController(t, 3)

	produceNext(t, c)
	produceNext(t, c)

	// shift the vote ranking before the round boundary at block 3
	vote := c.db.FindProducerVote("producer2")
	require.NotNil(vote)
	vote.Votes = 100

	b3 := produceNext(t, c)
	require.NotNil(b3.NewProducers)
	require.Equal(uint32(1), b3.NewProducers.Version)
	require.Equal(inter.Name("producer2"), b3.NewProducers.Producers[0].ProducerName)

	gpo := c.GetGlobalProperties()
	require.Len(gpo.PendingActiveProducers, 1)
	require.Equal(uint32(3), gpo.PendingActiveProducers[0].BlockNum)
	require.Equal(uint32(0), gpo.ActiveProducers.Version)

	// once irreversibility crosses block 3 the pending schedule activates
	for i := 0; i < 9; i++ {
		produceNext(t, c)
	}
	require.True(c.LastIrreversibleBlockNum() > 3)
	gpo = c.GetGlobalProperties()
	require.Equal(uint32(1), gpo.ActiveProducers.Version)
	require.Equal(inter.Name("producer2"), gpo.ActiveProducers.Producers[0].ProducerName)
}
