// Package statedb is the versioned in-memory object database of the chain
// controller. It holds the full typed index set (accounts, permissions,
// producers, properties, dedup records, usage, contract tables) and layers
// a stack of undo sessions on top, so that any failed operation restores
// the store to a byte-identical pre-call state.
package statedb

import (
	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
)

// AccountObject is the existence record of an account.
type AccountObject struct {
	Name         inter.Name
	CreationDate inter.Timestamp
}

// PermissionObject is a node of an account's permission tree. Parent 0 with
// Name "owner" marks the root.
type PermissionObject struct {
	ID     uint64
	Parent uint64
	Owner  inter.Name
	Name   inter.PermissionName
	Auth   inter.Authority
}

// PermissionLinkObject maps (account, contract scope, action) to the
// permission the account requires for that action. An empty MessageType is
// the contract-wide default link.
type PermissionLinkObject struct {
	Account            inter.Name
	Code               inter.Name
	MessageType        inter.ActionName
	RequiredPermission inter.PermissionName
}

// LinkKey indexes permission links by their action-name triple.
type LinkKey struct {
	Account     inter.Name
	Code        inter.Name
	MessageType inter.ActionName
}

// ProducerObject is the consensus-facing record of a block producer.
type ProducerObject struct {
	Owner                 inter.Name
	SigningKey            inter.PubKey
	LastAslot             uint64
	TotalMissed           uint32
	LastConfirmedBlockNum uint32
}

// ProducerVoteObject carries the vote tally that elects producers into the
// schedule.
type ProducerVoteObject struct {
	OwnerName inter.Name
	Votes     uint64
}

// PendingSchedule is a producer schedule staged at a round boundary,
// promoted to active once irreversibility crosses its block number.
type PendingSchedule struct {
	BlockNum uint32
	Schedule inter.ProducerSchedule
}

// GlobalPropertyObject holds configuration that is immutable within a
// round.
type GlobalPropertyObject struct {
	Configuration          dawn.ChainConfig
	ActiveProducers        inter.ProducerSchedule
	PendingActiveProducers []PendingSchedule
}

// UsageAccumulator is a decaying average over a fixed time window, used for
// bandwidth, compute, and block size accounting. The arithmetic is pure
// integer math so all replicas agree.
type UsageAccumulator struct {
	Value      uint64
	LastUpdate inter.Timestamp
}

// AddUsage folds units into the average at time now over the given window.
func (a *UsageAccumulator) AddUsage(units uint64, now inter.Timestamp, window inter.Timestamp) {
	if window == 0 {
		a.Value = units
		a.LastUpdate = now
		return
	}
	var elapsed inter.Timestamp
	if now > a.LastUpdate {
		elapsed = now - a.LastUpdate
	}
	if elapsed >= window {
		a.Value = units
	} else {
		a.Value = a.Value*uint64(window-elapsed)/uint64(window) + units
	}
	a.LastUpdate = now
}

// DynamicGlobalPropertyObject holds the per-block mutable chain state.
type DynamicGlobalPropertyObject struct {
	HeadBlockNumber          uint32
	HeadBlockID              inter.BlockID
	Time                     inter.Timestamp
	CurrentProducer          inter.Name
	CurrentAbsoluteSlot      uint64
	// RecentSlotsFilled is a participation bitmap: bit i (LSB = most
	// recent) is set iff the slot i ago produced a block.
	RecentSlotsFilled        uint64
	LastIrreversibleBlockNum uint32
	BlockMerkleRoot          inter.IncrementalMerkle
	AvgBlockSize             UsageAccumulator
}

// TransactionObject is the dedup record of an applied transaction, kept
// until expiry.
type TransactionObject struct {
	TrxID      inter.TransactionID
	Expiration inter.Timestamp
}

// GeneratedTransactionObject records a deferred transaction emitted by an
// action handler. Recorded but not yet dispatched.
type GeneratedTransactionObject struct {
	TrxID      inter.TransactionID
	Sender     inter.Name
	SenderID   uint64
	Expiration inter.Timestamp
	DelayUntil inter.Timestamp
	PackedTrx  []byte
}

// BandwidthUsageObject tracks an account's network bandwidth consumption.
type BandwidthUsageObject struct {
	Owner inter.Name
	Bytes UsageAccumulator
}

// ComputeUsageObject tracks an account's compute consumption.
type ComputeUsageObject struct {
	Owner inter.Name
	Units UsageAccumulator
}

// StakedBalanceObject is an account's stake, read by the bandwidth policy.
type StakedBalanceObject struct {
	Owner         inter.Name
	StakedBalance uint64
}

// ScopeSequenceObject is a per-scope counter bumped by every transaction
// writing that scope.
type ScopeSequenceObject struct {
	Scope    inter.Name
	Sequence uint64
}

// Contract table keys, one per supported key layout.

type KeyValueKey struct {
	Code  inter.Name
	Scope inter.Name
	Table inter.Name
	Key   uint64
}

type KeyStrValueKey struct {
	Code  inter.Name
	Scope inter.Name
	Table inter.Name
	Key   string
}

type Key128x128Key struct {
	Code  inter.Name
	Scope inter.Name
	Table inter.Name
	// 128-bit keys as (hi, lo) pairs
	PrimaryHi   uint64
	PrimaryLo   uint64
	SecondaryHi uint64
	SecondaryLo uint64
}

type Key64x64x64Key struct {
	Code      inter.Name
	Scope     inter.Name
	Table     inter.Name
	Primary   uint64
	Secondary uint64
	Tertiary  uint64
}
