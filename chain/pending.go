package chain

import (
	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

// Pending block assembly. The pending block accumulates pushed
// transactions as regions, cycles, and shards; its effects live in a
// dedicated undo session that is pushed when the block is generated and
// dropped when the pending state is cleared.

// shardScopes tracks the read and write scope sets scheduled into one
// shard of the open cycle.
type shardScopes struct {
	read  map[inter.Name]bool
	write map[inter.Name]bool
	count int
}

func newShardScopes() *shardScopes {
	return &shardScopes{
		read:  make(map[inter.Name]bool),
		write: make(map[inter.Name]bool),
	}
}

// conflicts reports whether the transaction cannot share a cycle with this
// shard: its reads overlap the shard's writes, or its writes overlap the
// shard's reads or writes.
func (s *shardScopes) conflicts(trx *inter.Transaction) bool {
	for _, scope := range trx.ReadScope {
		if s.write[scope] {
			return true
		}
	}
	for _, scope := range trx.WriteScope {
		if s.read[scope] || s.write[scope] {
			return true
		}
	}
	return false
}

func (s *shardScopes) absorb(trx *inter.Transaction) {
	for _, scope := range trx.ReadScope {
		s.read[scope] = true
	}
	for _, scope := range trx.WriteScope {
		s.write[scope] = true
	}
	s.count++
}

// pendingCycle schedules transactions into the shards of the open cycle.
type pendingCycle struct {
	shards []*shardScopes
}

func newPendingCycle() *pendingCycle {
	return &pendingCycle{}
}

// Schedule returns the shard index the transaction belongs to, or -1 if
// its scopes conflict with a shard already scheduled in this cycle — the
// caller then closes the cycle and schedules into a fresh one. A
// non-conflicting transaction goes to the open shard if that shard is
// still empty, otherwise to a new shard, so shards of one cycle stay
// pairwise disjoint and may execute in parallel.
func (pc *pendingCycle) Schedule(trx *inter.Transaction) int {
	for _, shard := range pc.shards {
		if shard.conflicts(trx) {
			return -1
		}
	}
	idx := len(pc.shards) - 1
	if idx < 0 || pc.shards[idx].count > 0 {
		idx = len(pc.shards)
		pc.shards = append(pc.shards, newShardScopes())
	}
	pc.shards[idx].absorb(trx)
	return idx
}

// startPendingBlock installs an empty block with one region and opens its
// first cycle and shard.
func (c *Controller) startPendingBlock() {
	c.pendingBlock = &inter.SignedBlock{
		Regions: []inter.Region{{Region: 0}},
	}
	c.pendingBlockTrace = &inter.BlockTrace{
		Block:        c.pendingBlock,
		RegionTraces: make([]inter.RegionTrace, 1),
	}
	c.pendingBlockSession = c.db.StartUndoSession(true)
	c.startPendingCycle()
}

// startPendingCycle appends an empty cycles-summary slot and opens its
// first shard.
func (c *Controller) startPendingCycle() {
	region := &c.pendingBlock.Regions[len(c.pendingBlock.Regions)-1]
	region.CyclesSummary = append(region.CyclesSummary, inter.Cycle{})
	c.pendingCycle = newPendingCycle()
	c.pendingCycleTrace = &inter.CycleTrace{}
	c.startPendingShard()
}

// startPendingShard appends an empty shard to the current cycle.
func (c *Controller) startPendingShard() {
	region := &c.pendingBlock.Regions[len(c.pendingBlock.Regions)-1]
	cycle := &region.CyclesSummary[len(region.CyclesSummary)-1]
	*cycle = append(*cycle, inter.Shard{})

	c.pendingCycleTrace.ShardTraces = append(c.pendingCycleTrace.ShardTraces, inter.ShardTrace{})
}

// finalizePendingCycle computes every shard's merkle root, persists the
// cycle's side effects, and folds its trace into the region trace.
func (c *Controller) finalizePendingCycle() {
	if c.pendingCycleTrace == nil {
		return
	}
	for i := range c.pendingCycleTrace.ShardTraces {
		c.pendingCycleTrace.ShardTraces[i].CalculateRoot()
	}
	c.applyCycleTrace(c.pendingCycleTrace)

	regionTrace := &c.pendingBlockTrace.RegionTraces[len(c.pendingBlockTrace.RegionTraces)-1]
	regionTrace.CycleTraces = append(regionTrace.CycleTraces, *c.pendingCycleTrace)
	c.pendingCycleTrace = nil
	c.pendingCycle = nil
}

// applyCycleTrace persists deferred transactions generated during the
// cycle and relays any console output produced by action handlers.
func (c *Controller) applyCycleTrace(trace *inter.CycleTrace) {
	for si := range trace.ShardTraces {
		for ti := range trace.ShardTraces[si].TransactionTraces {
			tr := &trace.ShardTraces[si].TransactionTraces[ti]
			for _, dt := range tr.DeferredTransactions {
				packed, err := rlpEncodeDeferred(&dt)
				if err != nil {
					log.WithError(err).Error("failed to pack deferred transaction")
					continue
				}
				c.db.CreateGeneratedTransaction(statedb.GeneratedTransactionObject{
					TrxID:      dt.ID(),
					Sender:     dt.Sender,
					SenderID:   dt.SenderID,
					Expiration: dt.Expiration,
					DelayUntil: dt.ExecuteAfter,
					PackedTrx:  packed,
				})
			}
			for _, at := range tr.ActionTraces {
				if at.Console != "" {
					log.WithField("action", string(at.Act.Scope)+"::"+string(at.Act.Name)).
						Debug(at.Console)
				}
			}
		}
	}
}
