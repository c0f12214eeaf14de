package chain

import (
	"github.com/rony4d/go-dawn-chain/inter"
)

// Subscription points of the controller. Subscribers are invoked
// synchronously on the writer thread, in registration order, while the
// write lock is held; they must not reenter the controller.

// SubscribeAppliedBlock registers fn to run after every applied block.
func (c *Controller) SubscribeAppliedBlock(fn func(*inter.BlockTrace)) {
	c.appliedBlockSubs = append(c.appliedBlockSubs, fn)
}

// SubscribeAppliedIrreversibleBlock registers fn to run when a block
// becomes irreversible (or is re-applied during replay).
func (c *Controller) SubscribeAppliedIrreversibleBlock(fn func(*inter.SignedBlock)) {
	c.appliedIrreversibleSubs = append(c.appliedIrreversibleSubs, fn)
}

// SubscribePendingTransaction registers fn to run after a transaction is
// accepted into the pending block.
func (c *Controller) SubscribePendingTransaction(fn func(*inter.SignedTransaction)) {
	c.pendingTransactionSubs = append(c.pendingTransactionSubs, fn)
}

func (c *Controller) emitAppliedBlock(trace *inter.BlockTrace) {
	for _, fn := range c.appliedBlockSubs {
		fn(trace)
	}
}

func (c *Controller) emitAppliedIrreversibleBlock(b *inter.SignedBlock) {
	for _, fn := range c.appliedIrreversibleSubs {
		fn(b)
	}
}

func (c *Controller) emitPendingTransaction(trx *inter.SignedTransaction) {
	for _, fn := range c.pendingTransactionSubs {
		fn(trx)
	}
}
