package chain

import (
	"crypto/ecdsa"
	"fmt"
	"sort"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

const (
	// usageWindow is the decay window of the bandwidth, compute, and block
	// size accumulators.
	usageWindow = inter.Timestamp(time.Minute)

	// bandwidthPerStakedUnit scales staked balance into an accumulated
	// bandwidth allowance when enforcement is enabled.
	bandwidthPerStakedUnit = 1024
)

// applyBlock runs the block through checkpoint filtering and the full
// application pipeline under the caller's undo session.
func (c *Controller) applyBlock(b *inter.SignedBlock, skip SkipFlags) error {
	blockNum := b.Num()
	if len(c.checkpoints) > 0 {
		if id, ok := c.checkpoints[blockNum]; ok {
			if b.ID() != id {
				return fmt.Errorf("%w: block %d does not match checkpoint %s",
					ErrBlockValidate, blockNum, id)
			}
		}
		if c.lastCheckpointNum() >= blockNum {
			skip = SkipEverything // trusted: below the latest checkpoint
		}
	}

	prevApplying := c.applyingBlock
	c.applyingBlock = true
	defer func() {
		c.applyingBlock = prevApplying
	}()

	return c.withSkipFlags(skip, func() error {
		return c.doApplyBlock(b)
	})
}

func (c *Controller) doApplyBlock(b *inter.SignedBlock) error {
	skip := c.skipFlags

	if _, err := c.validateBlockHeader(skip, b); err != nil {
		return err
	}

	// regions must be listed in order
	for i := 1; i < len(b.Regions); i++ {
		if b.Regions[i-1].Region >= b.Regions[i].Region {
			return fmt.Errorf("%w: region ids must be strictly increasing", ErrBlockValidate)
		}
	}

	// cache the input transactions so receipts can be resolved
	trxIndex := make(map[inter.TransactionID]*inter.SignedTransaction, len(b.InputTransactions))
	for i := range b.InputTransactions {
		trx := &b.InputTransactions[i]
		trxIndex[trx.ID()] = trx
	}

	blockTrace := &inter.BlockTrace{Block: b}
	for _, region := range b.Regions {
		regionTrace := inter.RegionTrace{}
		for cycleIndex, cycle := range region.CyclesSummary {
			cycleTrace := inter.CycleTrace{}
			for shardIndex, shard := range cycle {
				shardTrace := inter.ShardTrace{}
				for _, receipt := range shard {
					if receipt.Status != inter.TransactionExecuted {
						continue
					}
					trx, ok := trxIndex[receipt.ID]
					if !ok {
						return fmt.Errorf("%w: deferred transactions not supported",
							ErrBlockValidate)
					}
					meta := newTransactionMetadata(trx, region.Region,
						uint32(cycleIndex), uint32(shardIndex))
					result, err := c.applyTransaction(meta)
					if err != nil {
						return err
					}
					shardTrace.Append(*result)
				}
				shardTrace.CalculateRoot()
				cycleTrace.ShardTraces = append(cycleTrace.ShardTraces, shardTrace)
			}
			c.applyCycleTrace(&cycleTrace)
			regionTrace.CycleTraces = append(regionTrace.CycleTraces, cycleTrace)
		}
		blockTrace.RegionTraces = append(blockTrace.RegionTraces, regionTrace)
	}

	if !skip.Has(SkipMerkleCheck) {
		if b.ActionMRoot != blockTrace.CalculateActionMRoot() {
			return fmt.Errorf("%w: action merkle root does not match", ErrBlockValidate)
		}
	}

	return c.finalizeBlock(blockTrace)
}

// validateBlockHeader checks the header against the current head and the
// producer schedule, and returns the signing producer.
func (c *Controller) validateBlockHeader(skip SkipFlags, b *inter.SignedBlock) (*statedb.ProducerObject, error) {
	if c.headBlockID() != b.Previous {
		return nil, fmt.Errorf("%w: previous %s is not head %s",
			ErrBlockValidate, b.Previous, c.headBlockID())
	}
	if c.headBlockTime() >= b.Timestamp {
		return nil, fmt.Errorf("%w: timestamp %s not after head %s",
			ErrBlockValidate, b.Timestamp, c.headBlockTime())
	}
	if !c.isStartOfRound(b.Num()) && b.NewProducers != nil {
		return nil, fmt.Errorf("%w: producer changes may only occur at the end of a round",
			ErrBlockValidate)
	}

	producerName := c.getScheduledProducer(c.getSlotAtTime(b.Timestamp))
	producer := c.db.FindProducer(producerName)
	if producer == nil {
		return nil, fmt.Errorf("%w: scheduled producer %s", ErrAccountNotFound, producerName)
	}

	if !skip.Has(SkipProducerSignature) {
		if !b.ValidateSignee(producer.SigningKey) {
			return nil, fmt.Errorf("%w: incorrect block producer key", ErrBlockValidate)
		}
	}
	if !skip.Has(SkipProducerScheduleCheck) {
		if b.Producer != producer.Owner {
			return nil, fmt.Errorf("%w: producer %s produced block at %s's time",
				ErrBlockValidate, b.Producer, producer.Owner)
		}
	}
	if !skip.Has(SkipMerkleCheck) {
		if b.CalculateTransactionMRoot() != b.TransactionMRoot {
			return nil, fmt.Errorf("%w: transaction merkle root does not match", ErrBlockValidate)
		}
	}
	return producer, nil
}

// finalizeBlock runs after all transactions applied successfully: it
// updates the global and dynamic properties, producer statistics, and
// irreversibility, refreshes the block summary ring, clears expired
// transactions, and emits the applied-block events.
func (c *Controller) finalizeBlock(trace *inter.BlockTrace) error {
	b := trace.Block

	signingProducer, err := c.validateBlockHeader(c.skipFlags, b)
	if err != nil {
		return err
	}

	if err := c.updateGlobalProperties(b); err != nil {
		return err
	}
	if err := c.updateGlobalDynamicData(b); err != nil {
		return err
	}
	c.updateSigningProducer(signingProducer, b)
	if err := c.updateLastIrreversibleBlock(); err != nil {
		return err
	}

	c.createBlockSummary(b)
	c.clearExpiredTransactions()

	c.emitAppliedBlock(trace)
	if c.replaying {
		c.emitAppliedIrreversibleBlock(b)
	}
	return nil
}

// updateGlobalProperties rotates the producer schedule at round boundaries
// and refreshes the producers account authority.
func (c *Controller) updateGlobalProperties(b *inter.SignedBlock) error {
	if !c.isStartOfRound(b.Num()) {
		return nil
	}

	schedule := c.calculateProducerSchedule()
	if b.NewProducers != nil && !schedule.Equal(b.NewProducers) {
		return fmt.Errorf("%w: pending producer set different than expected", ErrBlockValidate)
	}
	if !c.headProducerSchedule().Equal(&schedule) && b.NewProducers == nil {
		return fmt.Errorf("%w: pending producer set changed but block did not indicate it",
			ErrBlockValidate)
	}

	c.db.ModifyGlobalProperties(func(gpo *statedb.GlobalPropertyObject) {
		n := len(gpo.PendingActiveProducers)
		if n > 0 && gpo.PendingActiveProducers[n-1].BlockNum == b.Num() {
			gpo.PendingActiveProducers[n-1].Schedule = schedule
		} else {
			gpo.PendingActiveProducers = append(gpo.PendingActiveProducers, statedb.PendingSchedule{
				BlockNum: b.Num(),
				Schedule: schedule,
			})
		}
	})

	// the producers account speaks with a supermajority of the active set
	gpo := c.db.FindGlobalProperties()
	auth := inter.Authority{
		Threshold: uint32(len(gpo.ActiveProducers.Producers))*2/3 + 1,
	}
	for _, pk := range gpo.ActiveProducers.Producers {
		auth.Accounts = append(auth.Accounts, inter.AccountWeight{
			Permission: inter.PermissionLevel{Actor: pk.ProducerName, Permission: dawn.ActiveName},
			Weight:     1,
		})
	}
	po := c.db.FindPermission(dawn.ProducersAccountName, dawn.ActiveName)
	if po == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, dawn.ProducersAccountName)
	}
	c.db.ModifyPermission(po, func(po *statedb.PermissionObject) {
		po.Auth = auth
	})
	return nil
}

// updateGlobalDynamicData advances the dynamic properties: head fields,
// absolute slot, participation bitmap, missed-block statistics, block
// merkle accumulator, and average block size.
func (c *Controller) updateGlobalDynamicData(b *inter.SignedBlock) error {
	dgp := c.db.FindDynamicGlobalProperties()

	if bmroot := dgp.BlockMerkleRoot.GetRoot(); bmroot != b.BlockMRoot {
		return fmt.Errorf("%w: block merkle root does not match expected value", ErrBlockValidate)
	}

	slot := c.getSlotAtTime(b.Timestamp)
	missed := uint64(0)
	if slot > 0 {
		missed = uint64(slot) - 1
	}

	for i := uint64(0); i < missed; i++ {
		producerMissed := c.db.FindProducer(c.getScheduledProducer(uint32(i + 1)))
		if producerMissed == nil || producerMissed.Owner == b.Producer {
			continue
		}
		c.db.ModifyProducer(producerMissed, func(p *statedb.ProducerObject) {
			p.TotalMissed++
		})
	}

	c.db.ModifyDynamicGlobalProperties(func(dgp *statedb.DynamicGlobalPropertyObject) {
		dgp.HeadBlockNumber = b.Num()
		dgp.HeadBlockID = b.ID()
		dgp.Time = b.Timestamp
		dgp.CurrentProducer = b.Producer
		dgp.CurrentAbsoluteSlot += missed + 1
		dgp.AvgBlockSize.AddUsage(b.PackedSize(), b.Timestamp, usageWindow)

		// if we missed more slots than the bitmap stores, reset it
		if missed < 64 {
			dgp.RecentSlotsFilled <<= missed + 1
			dgp.RecentSlotsFilled += 1
		} else {
			dgp.RecentSlotsFilled = 0
		}
		dgp.BlockMerkleRoot.Append(hash.BytesToHash(b.ID().Bytes()))
	})

	c.forkDB.SetMaxSize(dgp.HeadBlockNumber - dgp.LastIrreversibleBlockNum + 1)
	return nil
}

// updateSigningProducer records the producer's latest slot and confirmed
// block.
func (c *Controller) updateSigningProducer(producer *statedb.ProducerObject, b *inter.SignedBlock) {
	dgp := c.db.FindDynamicGlobalProperties()
	newBlockAslot := dgp.CurrentAbsoluteSlot + uint64(c.getSlotAtTime(b.Timestamp))

	c.db.ModifyProducer(producer, func(p *statedb.ProducerObject) {
		p.LastAslot = newBlockAslot
		p.LastConfirmedBlockNum = b.Num()
	})
}

// updateLastIrreversibleBlock advances irreversibility to the block number
// confirmed by the producer threshold, appends newly irreversible blocks to
// the block log, promotes pending producer schedules, and trims the fork
// database and undo history.
func (c *Controller) updateLastIrreversibleBlock() error {
	gpo := c.db.FindGlobalProperties()
	dgp := c.db.FindDynamicGlobalProperties()

	confirmed := make([]uint32, 0, len(gpo.ActiveProducers.Producers))
	for _, pk := range gpo.ActiveProducers.Producers {
		producer := c.db.FindProducer(pk.ProducerName)
		if producer == nil {
			return fmt.Errorf("%w: producer %s", ErrAccountNotFound, pk.ProducerName)
		}
		confirmed = append(confirmed, producer.LastConfirmedBlockNum)
	}
	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i] < confirmed[j] })

	offset := len(confirmed) * int(dawn.Percent100-c.rules.Blocks.IrreversibleThresholdPercent) /
		int(dawn.Percent100)
	newLIB := confirmed[offset]

	if newLIB > dgp.LastIrreversibleBlockNum {
		c.db.ModifyDynamicGlobalProperties(func(dgp *statedb.DynamicGlobalPropertyObject) {
			dgp.LastIrreversibleBlockNum = newLIB
		})
	}

	// write newly irreversible blocks to disk
	lastOnDisk := uint32(0)
	if head := c.blockLog.Head(); head != nil {
		lastOnDisk = head.Num()
	}
	for num := lastOnDisk + 1; num <= newLIB && !c.blockLog.IsReadOnly(); num++ {
		block, err := c.fetchBlockByNumber(num)
		if err != nil {
			return err
		}
		if block == nil {
			return fmt.Errorf("%w: irreversible block %d not found", ErrUnknownBlock, num)
		}
		if err := c.blockLog.Append(block); err != nil {
			return err
		}
		c.emitAppliedIrreversibleBlock(block)
	}

	// promote the pending schedule staged before the irreversibility point
	var promoted *inter.ProducerSchedule
	for i := range gpo.PendingActiveProducers {
		if gpo.PendingActiveProducers[i].BlockNum < newLIB {
			promoted = &gpo.PendingActiveProducers[i].Schedule
		}
	}
	if promoted != nil {
		schedule := promoted.Copy()
		c.db.ModifyGlobalProperties(func(gpo *statedb.GlobalPropertyObject) {
			kept := gpo.PendingActiveProducers[:0]
			for _, p := range gpo.PendingActiveProducers {
				if p.BlockNum >= newLIB {
					kept = append(kept, p)
				}
			}
			gpo.PendingActiveProducers = kept
			gpo.ActiveProducers = schedule
		})
	}

	// trim fork database and undo histories
	c.forkDB.SetMaxSize(c.headBlockNum() - newLIB + 1)
	c.db.Commit(int64(newLIB))
	return nil
}

// createBlockSummary refreshes the TaPoS ring entry at the block's
// position.
func (c *Controller) createBlockSummary(b *inter.SignedBlock) {
	c.db.SetBlockSummary(uint16(b.Num()&0xffff), b.ID())
}

// clearExpiredTransactions removes dedup and generated records expired by
// more than two forking windows. Behind a policy gate, off by default.
func (c *Controller) clearExpiredTransactions() {
	if !c.rules.PruneExpiredTransactions {
		return
	}
	window := inter.Timestamp(uint64(2*c.blocksPerRound())) * c.rules.Blocks.Interval
	now := c.headBlockTime()
	for _, obj := range c.db.TransactionsByExpiration() {
		if obj.Expiration+window >= now {
			break
		}
		c.db.RemoveTransaction(obj.TrxID)
	}
	for _, obj := range c.db.GeneratedTransactionsByExpiration() {
		if obj.Expiration+window >= now {
			break
		}
		c.db.RemoveGeneratedTransaction(obj.TrxID)
	}
}

// GenerateBlock finalizes the pending block for the given slot time and
// producer, signs it, applies its finalization, and inserts it into the
// fork database. Partial pending state is left intact on failure; callers
// typically ClearPending afterwards.
func (c *Controller) GenerateBlock(when inter.Timestamp, producer inter.Name,
	signingKey *ecdsa.PrivateKey, skip SkipFlags) (b *inter.SignedBlock, err error) {

	err = c.withSkipFlags(skip, func() error {
		return c.db.WithWriteLock(func() error {
			var innerErr error
			b, innerErr = c.generateBlock(when, producer, signingKey)
			return innerErr
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Controller) generateBlock(when inter.Timestamp, producerName inter.Name,
	signingKey *ecdsa.PrivateKey) (*inter.SignedBlock, error) {

	skip := c.skipFlags

	slot := c.getSlotAtTime(when)
	if slot == 0 {
		return nil, fmt.Errorf("%w: %s is not an open slot", ErrBlockValidate, when)
	}
	scheduled := c.getScheduledProducer(slot)
	if scheduled != producerName {
		return nil, fmt.Errorf("%w: %s is not scheduled for slot %d (%s is)",
			ErrBlockValidate, producerName, slot, scheduled)
	}
	producer := c.db.FindProducer(scheduled)
	if producer == nil {
		return nil, fmt.Errorf("%w: producer %s", ErrAccountNotFound, scheduled)
	}

	if c.pendingBlock == nil {
		c.startPendingBlock()
	}
	c.finalizePendingCycle()

	if !skip.Has(SkipProducerSignature) {
		if producer.SigningKey != inter.PubKeyFromECDSA(&signingKey.PublicKey) {
			return nil, fmt.Errorf("%w: signing key does not match producer key", ErrBlockValidate)
		}
	}

	b := c.pendingBlock
	b.Timestamp = when
	b.Producer = producer.Owner
	b.Previous = c.headBlockID()
	b.BlockMRoot = c.db.FindDynamicGlobalProperties().BlockMerkleRoot.GetRoot()
	b.TransactionMRoot = b.CalculateTransactionMRoot()
	b.ActionMRoot = c.pendingBlockTrace.CalculateActionMRoot()

	if c.isStartOfRound(b.Num()) {
		schedule := c.calculateProducerSchedule()
		if !schedule.Equal(c.headProducerSchedule()) {
			b.NewProducers = &schedule
		}
	}

	if !skip.Has(SkipProducerSignature) {
		if err := b.Sign(signingKey); err != nil {
			return nil, err
		}
	}

	// the block enters the fork database before finalization so that, if
	// it becomes irreversible immediately, the block log can resolve it
	if !skip.Has(SkipForkDB) {
		if _, err := c.forkDB.PushBlock(b); err != nil {
			return nil, err
		}
	}

	if err := c.finalizeBlock(c.pendingBlockTrace); err != nil {
		if !skip.Has(SkipForkDB) {
			c.forkDB.Remove(b.ID())
		}
		return nil, err
	}

	c.pendingBlockSession.Push()
	c.resetPending()
	return b, nil
}
