package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
)

// Execution traces form a tree mirroring the block structure:
// BlockTrace > RegionTrace > CycleTrace > ShardTrace > TransactionTrace >
// ActionTrace. Traces are plain records with owned child lists; they are
// what subscribers observe and what the action merkle root commits to.

// ActionTrace records the execution of a single action by its receiver.
type ActionTrace struct {
	Receiver   Name
	Act        Action
	Console    string
	RegionID   RegionID
	CycleIndex uint32
}

// TransactionTrace records the execution of one transaction.
type TransactionTrace struct {
	ID                   TransactionID
	Status               TransactionStatus
	ActionTraces         []ActionTrace
	DeferredTransactions []DeferredTransaction
}

// Digest returns the transaction trace's contribution to its shard root.
func (t *TransactionTrace) Digest() hash.Hash {
	return hash.Of(t.ID[:], []byte{byte(t.Status)})
}

// ShardTrace aggregates the traces of one shard.
type ShardTrace struct {
	TransactionTraces []TransactionTrace
	ShardRoot         hash.Hash
}

// Append adds a transaction trace to the shard.
func (s *ShardTrace) Append(tr TransactionTrace) {
	s.TransactionTraces = append(s.TransactionTraces, tr)
}

// CalculateRoot computes and stores the merkle root over the shard's
// transaction traces.
func (s *ShardTrace) CalculateRoot() hash.Hash {
	digests := make([]hash.Hash, len(s.TransactionTraces))
	for i := range s.TransactionTraces {
		digests[i] = s.TransactionTraces[i].Digest()
	}
	s.ShardRoot = Merkle(digests)
	return s.ShardRoot
}

// CycleTrace aggregates the shard traces of one cycle.
type CycleTrace struct {
	ShardTraces []ShardTrace
}

// RegionTrace aggregates the cycle traces of one region.
type RegionTrace struct {
	CycleTraces []CycleTrace
}

// BlockTrace is the root of the trace tree for one applied block.
type BlockTrace struct {
	Block        *SignedBlock
	RegionTraces []RegionTrace
}

// CalculateActionMRoot computes the action merkle root: the merkle over all
// shard roots in region, cycle, shard order.
func (b *BlockTrace) CalculateActionMRoot() hash.Hash {
	var roots []hash.Hash
	for i := range b.RegionTraces {
		for j := range b.RegionTraces[i].CycleTraces {
			for k := range b.RegionTraces[i].CycleTraces[j].ShardTraces {
				roots = append(roots, b.RegionTraces[i].CycleTraces[j].ShardTraces[k].ShardRoot)
			}
		}
	}
	return Merkle(roots)
}
