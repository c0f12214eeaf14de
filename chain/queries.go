package chain

import (
	"fmt"
	"math/bits"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

// Read-only queries. The public forms take a shared reader lock; the
// unexported forms are for internal use under the writer lock.

func (c *Controller) headBlockNum() uint32 {
	return c.db.FindDynamicGlobalProperties().HeadBlockNumber
}

func (c *Controller) headBlockID() inter.BlockID {
	return c.db.FindDynamicGlobalProperties().HeadBlockID
}

func (c *Controller) headBlockTime() inter.Timestamp {
	return c.db.FindDynamicGlobalProperties().Time
}

// HeadBlockNum returns the current head block number.
func (c *Controller) HeadBlockNum() (num uint32) {
	_ = c.db.WithReadLock(func() error {
		num = c.headBlockNum()
		return nil
	})
	return
}

// HeadBlockID returns the current head block id.
func (c *Controller) HeadBlockID() (id inter.BlockID) {
	_ = c.db.WithReadLock(func() error {
		id = c.headBlockID()
		return nil
	})
	return
}

// HeadBlockTime returns the current head block timestamp.
func (c *Controller) HeadBlockTime() (t inter.Timestamp) {
	_ = c.db.WithReadLock(func() error {
		t = c.headBlockTime()
		return nil
	})
	return
}

// HeadBlockProducer returns the producer of the current head block.
func (c *Controller) HeadBlockProducer() (producer inter.Name) {
	_ = c.db.WithReadLock(func() error {
		if item := c.forkDB.FetchBlock(c.headBlockID()); item != nil {
			producer = item.Block.Producer
			return nil
		}
		b, _ := c.fetchBlockByID(c.headBlockID())
		if b != nil {
			producer = b.Producer
		}
		return nil
	})
	return
}

// LastIrreversibleBlockNum returns the highest block number that can no
// longer be reorganized away.
func (c *Controller) LastIrreversibleBlockNum() (num uint32) {
	_ = c.db.WithReadLock(func() error {
		num = c.db.FindDynamicGlobalProperties().LastIrreversibleBlockNum
		return nil
	})
	return
}

// GetDynamicGlobalProperties returns a copy of the dynamic properties.
func (c *Controller) GetDynamicGlobalProperties() (dgp statedb.DynamicGlobalPropertyObject) {
	_ = c.db.WithReadLock(func() error {
		dgp = *c.db.FindDynamicGlobalProperties()
		dgp.BlockMerkleRoot = dgp.BlockMerkleRoot.Copy()
		return nil
	})
	return
}

// GetGlobalProperties returns a copy of the global properties.
func (c *Controller) GetGlobalProperties() (gpo statedb.GlobalPropertyObject) {
	_ = c.db.WithReadLock(func() error {
		gpo = *c.db.FindGlobalProperties()
		gpo.ActiveProducers = gpo.ActiveProducers.Copy()
		pending := make([]statedb.PendingSchedule, len(gpo.PendingActiveProducers))
		for i, p := range gpo.PendingActiveProducers {
			pending[i] = statedb.PendingSchedule{BlockNum: p.BlockNum, Schedule: p.Schedule.Copy()}
		}
		gpo.PendingActiveProducers = pending
		return nil
	})
	return
}

// IsKnownBlock reports whether the block is in the fork database or the
// block log.
func (c *Controller) IsKnownBlock(id inter.BlockID) (known bool) {
	_ = c.db.WithReadLock(func() error {
		if c.forkDB.IsKnownBlock(id) {
			known = true
			return nil
		}
		b, _ := c.blockLog.ReadBlockByID(id)
		known = b != nil
		return nil
	})
	return
}

// IsKnownTransaction reports whether the transaction is recorded and not
// yet expired. Very old transactions return false; query by block instead.
func (c *Controller) IsKnownTransaction(id inter.TransactionID) (known bool) {
	_ = c.db.WithReadLock(func() error {
		known = c.db.FindTransaction(id) != nil
		return nil
	})
	return
}

func (c *Controller) fetchBlockByID(id inter.BlockID) (*inter.SignedBlock, error) {
	if item := c.forkDB.FetchBlock(id); item != nil {
		return item.Block, nil
	}
	return c.blockLog.ReadBlockByID(id)
}

// FetchBlockByID returns the block with the given id from the fork
// database or the block log, or nil.
func (c *Controller) FetchBlockByID(id inter.BlockID) (b *inter.SignedBlock, err error) {
	_ = c.db.WithReadLock(func() error {
		b, err = c.fetchBlockByID(id)
		return nil
	})
	return
}

func (c *Controller) fetchBlockByNumber(num uint32) (*inter.SignedBlock, error) {
	if b, err := c.blockLog.ReadBlockByNum(num); b != nil || err != nil {
		return b, err
	}
	// not in the block log, so it must be since the last irreversible
	// block; walk the fork database instead
	if num <= c.headBlockNum() {
		item := c.forkDB.FetchBlock(c.headBlockID())
		for item != nil && item.Num > num {
			item = c.forkDB.FetchBlock(item.Prev)
		}
		if item != nil && item.Num == num {
			return item.Block, nil
		}
	}
	return nil, nil
}

// FetchBlockByNumber returns the block with the given number on the
// canonical chain, or nil.
func (c *Controller) FetchBlockByNumber(num uint32) (b *inter.SignedBlock, err error) {
	_ = c.db.WithReadLock(func() error {
		b, err = c.fetchBlockByNumber(num)
		return nil
	})
	return
}

// GetBlockIDForNum returns the id of the canonical block with the given
// number; ErrUnknownBlock if there is none.
func (c *Controller) GetBlockIDForNum(num uint32) (inter.BlockID, error) {
	b, err := c.FetchBlockByNumber(num)
	if err != nil {
		return inter.BlockID{}, err
	}
	if b == nil {
		return inter.BlockID{}, fmt.Errorf("%w: number %d", ErrUnknownBlock, num)
	}
	return b.ID(), nil
}

// GetBlockIDsOnFork returns the ids from the given fork head back to (and
// including) the common ancestor with the canonical chain.
func (c *Controller) GetBlockIDsOnFork(headOfFork inter.BlockID) (ids []inter.BlockID, err error) {
	_ = c.db.WithReadLock(func() error {
		_, forkBranch, branchErr := c.forkDB.FetchBranchFrom(c.headBlockID(), headOfFork)
		if branchErr != nil {
			err = branchErr
			return nil
		}
		for _, item := range forkBranch {
			ids = append(ids, item.ID)
		}
		if len(forkBranch) > 0 {
			ids = append(ids, forkBranch[len(forkBranch)-1].Block.Previous)
		} else {
			ids = append(ids, c.headBlockID())
		}
		return nil
	})
	return
}

// ProducerParticipationRate returns the fraction of the last 64 slots that
// produced a block, in dawn.Percent100 fixed point.
func (c *Controller) ProducerParticipationRate() (rate uint32) {
	_ = c.db.WithReadLock(func() error {
		filled := c.db.FindDynamicGlobalProperties().RecentSlotsFilled
		rate = uint32(uint64(dawn.Percent100) * uint64(bits.OnesCount64(filled)) / 64)
		return nil
	})
	return
}

// GetProducer returns the producer record for the given account name.
func (c *Controller) GetProducer(owner inter.Name) (obj statedb.ProducerObject, err error) {
	_ = c.db.WithReadLock(func() error {
		p := c.db.FindProducer(owner)
		if p == nil {
			err = fmt.Errorf("%w: producer %s", ErrAccountNotFound, owner)
			return nil
		}
		obj = *p
		return nil
	})
	return
}

// StateFingerprint hashes the entire object store deterministically; two
// replicas fed the same blocks report equal fingerprints.
func (c *Controller) StateFingerprint() (fp hash.Hash) {
	_ = c.db.WithReadLock(func() error {
		fp = c.db.Fingerprint()
		return nil
	})
	return
}
