// Package chain implements the chain controller: a deterministic state
// machine that ingests signed blocks and transactions, applies them against
// the versioned object store, maintains the fork tree of unconfirmed
// branches, resolves the canonical chain by the delegated-proof-of-stake
// rule, and flushes irreversible blocks to the block log.
package chain

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-dawn-chain/blocklog"
	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/dawn/genesis"
	"github.com/rony4d/go-dawn-chain/forkdb"
	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

var log = logrus.WithField("module", "chain")

// Controller is the chain controller. All mutating operations acquire the
// object store's writer lock for the full call and unwind through undo
// sessions on failure, so a failed call leaves the observable state
// byte-identical to the pre-call state.
type Controller struct {
	db       *statedb.DB
	forkDB   *forkdb.DB
	blockLog *blocklog.Log

	rules   dawn.Rules
	genesis *genesis.Genesis
	chainID hash.Hash

	// pending block assembly state; nil when no block is being built
	pendingBlock        *inter.SignedBlock
	pendingBlockTrace   *inter.BlockTrace
	pendingBlockSession *statedb.Session
	pendingCycle        *pendingCycle
	pendingCycleTrace   *inter.CycleTrace

	skipFlags     SkipFlags
	applyingBlock bool
	replaying     bool

	checkpoints   map[uint32]inter.BlockID
	applyHandlers map[handlerKey]ApplyHandler

	appliedBlockSubs        []func(*inter.BlockTrace)
	appliedIrreversibleSubs []func(*inter.SignedBlock)
	pendingTransactionSubs  []func(*inter.SignedTransaction)
}

// New opens the block log, initializes a fresh store from genesis, rewinds
// to the last irreversible state, seeds the fork database, and replays any
// blocks the log is ahead by.
func New(cfg Config) (*Controller, error) {
	if cfg.Genesis == nil {
		return nil, fmt.Errorf("chain: genesis document is required")
	}
	if err := cfg.Genesis.Validate(cfg.Rules); err != nil {
		return nil, err
	}

	blockLog, err := blocklog.Open(cfg.BlockLogDir, cfg.ReadOnly)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		db:            statedb.New(),
		forkDB:        forkdb.New(1024),
		blockLog:      blockLog,
		rules:         cfg.Rules,
		genesis:       cfg.Genesis,
		chainID:       cfg.Genesis.Hash(),
		checkpoints:   make(map[uint32]inter.BlockID),
		applyHandlers: make(map[handlerKey]ApplyHandler),
	}
	c.registerNativeHandlers()

	if err := c.initializeChain(); err != nil {
		blockLog.Close()
		return nil, err
	}
	if err := c.spinupDB(); err != nil {
		blockLog.Close()
		return nil, err
	}
	if err := c.spinupForkDB(); err != nil {
		blockLog.Close()
		return nil, err
	}

	if head := c.blockLog.Head(); head != nil && c.HeadBlockNum() < head.Num() {
		if err := c.Replay(); err != nil {
			blockLog.Close()
			return nil, err
		}
	}
	return c, nil
}

// Close drops any pending state and flushes the store and log.
func (c *Controller) Close() error {
	_ = c.db.WithWriteLock(func() error {
		c.clearPending()
		c.db.Flush()
		return nil
	})
	return c.blockLog.Close()
}

// ChainID returns the chain id derived from the genesis document.
func (c *Controller) ChainID() hash.Hash {
	return c.chainID
}

// IsApplyingBlock reports whether a block apply is in flight on the
// writer thread. Action handlers can use it to distinguish pushed
// transactions from block replays.
func (c *Controller) IsApplyingBlock() bool {
	return c.applyingBlock
}

// IsReplaying reports whether the controller is replaying the block log.
func (c *Controller) IsReplaying() bool {
	return c.replaying
}

// Rules returns the network rules of this controller.
func (c *Controller) Rules() dawn.Rules {
	return c.rules
}

// spinupDB rewinds the store to the last irreversible block.
func (c *Controller) spinupDB() error {
	return c.db.WithWriteLock(func() error {
		if err := c.db.UndoAll(); err != nil {
			return err
		}
		if c.db.Revision() != int64(c.headBlockNum()) {
			return fmt.Errorf("chain: store revision %d does not match head block %d",
				c.db.Revision(), c.headBlockNum())
		}
		return nil
	})
}

// spinupForkDB seeds the fork database from the block log head.
func (c *Controller) spinupForkDB() error {
	head, err := c.blockLog.ReadHead()
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}
	c.forkDB.StartBlock(head)
	if head.ID() != c.headBlockID() && c.headBlockNum() != 0 {
		return fmt.Errorf("chain: block log head %s does not match chain state head %s",
			head.ID(), c.headBlockID())
	}
	return nil
}

// AddCheckpoints pins the given block numbers to exact ids. Below the
// latest checkpoint all block verification is skipped.
func (c *Controller) AddCheckpoints(checkpts map[uint32]inter.BlockID) {
	for num, id := range checkpts {
		c.checkpoints[num] = id
	}
}

// BeforeLastCheckpoint reports whether the head is at or below the latest
// pinned checkpoint. It is false when no checkpoint is pinned.
func (c *Controller) BeforeLastCheckpoint() bool {
	return len(c.checkpoints) > 0 && c.lastCheckpointNum() >= c.HeadBlockNum()
}

func (c *Controller) lastCheckpointNum() uint32 {
	last := uint32(0)
	for num := range c.checkpoints {
		if num > last {
			last = num
		}
	}
	return last
}

// PushBlock validates and applies a block. If the block extends the current
// head it is applied in one nested session; if it makes a sibling branch
// longer than the head, the controller switches forks, restoring the old
// branch if any block of the new branch fails.
func (c *Controller) PushBlock(b *inter.SignedBlock, skip SkipFlags) error {
	return c.withSkipFlags(skip, func() error {
		return c.withoutPendingTransactions(func() error {
			return c.db.WithWriteLock(func() error {
				return c.pushBlock(b)
			})
		})
	})
}

// withoutPendingTransactions drops the pending block and re-pushes its
// input transactions after fn completes, so they are not lost when a
// received block flushes the pending state.
func (c *Controller) withoutPendingTransactions(fn func() error) error {
	var oldInput []inter.SignedTransaction
	_ = c.db.WithWriteLock(func() error {
		if c.pendingBlock != nil {
			oldInput = c.pendingBlock.InputTransactions
		}
		c.clearPending()
		return nil
	})
	defer func() {
		for i := range oldInput {
			trx := oldInput[i]
			if _, err := c.PushTransaction(&trx, c.skipFlags); err != nil {
				log.WithError(err).WithField("trx", trx.ID()).
					Debug("dropped pending transaction after block push")
			}
		}
	}()
	return fn()
}

func (c *Controller) pushBlock(b *inter.SignedBlock) error {
	skip := c.skipFlags

	if !skip.Has(SkipForkDB) {
		newHead, err := c.forkDB.PushBlock(b)
		if err != nil {
			return err
		}
		if newHead.Block.Previous != c.headBlockID() {
			// the longest chain does not build off the current head
			if newHead.Num <= c.headBlockNum() {
				return nil // shorter or equal-height sibling; nothing to do
			}
			return c.switchForks(newHead, skip)
		}
	}

	session := c.db.StartUndoSession(true)
	if err := c.applyBlock(b, skip); err != nil {
		log.WithError(err).WithField("id", b.ID()).Error("failed to push new block")
		session.Undo()
		c.forkDB.Remove(b.ID())
		return err
	}
	session.Push()
	return nil
}

// switchForks pops back to the common ancestor of the current head and the
// new head, then applies the new branch. If any block of the new branch
// fails, the bad branch is removed from the fork database, the old branch
// is restored, and the failure is returned.
func (c *Controller) switchForks(newHead *forkdb.Item, skip SkipFlags) error {
	log.WithFields(logrus.Fields{
		"id":  newHead.ID,
		"num": newHead.Num,
	}).Warn("switching to fork")

	newBranch, oldBranch, err := c.forkDB.FetchBranchFrom(newHead.ID, c.headBlockID())
	if err != nil {
		return err
	}
	if len(oldBranch) == 0 {
		return fmt.Errorf("%w: fork branches do not diverge from head", ErrUnknownBlock)
	}
	ancestorID := oldBranch[len(oldBranch)-1].Block.Previous

	// pop blocks until we hit the forked block, keeping the fork database
	// head in step with the chain state
	c.forkDB.SetHead(oldBranch[0])
	for c.headBlockID() != ancestorID {
		if err := c.popBlock(); err != nil {
			return err
		}
	}

	// push all blocks of the new fork, oldest first
	for i := len(newBranch) - 1; i >= 0; i-- {
		item := newBranch[i]
		log.WithFields(logrus.Fields{
			"num": item.Num,
			"id":  item.ID,
		}).Info("pushing block from fork")

		session := c.db.StartUndoSession(true)
		err := c.applyBlock(item.Block, skip)
		if err == nil {
			session.Push()
			continue
		}
		log.WithError(err).Warn("exception thrown while switching forks")
		session.Undo()

		// pop whatever part of the bad fork was applied
		for c.headBlockID() != ancestorID {
			if popErr := c.popBlock(); popErr != nil {
				return popErr
			}
		}

		// the new branch is invalid; blacklist all of it
		for j := len(newBranch) - 1; j >= 0; j-- {
			c.forkDB.Remove(newBranch[j].ID)
		}

		// restore all blocks of the good fork
		for k := len(oldBranch) - 1; k >= 0; k-- {
			restore := c.db.StartUndoSession(true)
			if restoreErr := c.applyBlock(oldBranch[k].Block, skip); restoreErr != nil {
				restore.Undo()
				return fmt.Errorf("restoring canonical branch: %v (after %w)", restoreErr, err)
			}
			restore.Push()
		}
		c.forkDB.SetHead(oldBranch[0])
		return err
	}
	c.forkDB.SetHead(c.forkDB.FetchBlock(newHead.ID))
	return nil
}

// PopBlock removes the most recent block and undoes the changes it made.
func (c *Controller) PopBlock() error {
	return c.db.WithWriteLock(func() error {
		return c.popBlock()
	})
}

func (c *Controller) popBlock() error {
	if c.pendingBlockSession != nil {
		c.pendingBlockSession.Discard()
		c.resetPending()
	}
	headID := c.headBlockID()
	headBlock, err := c.fetchBlockByID(headID)
	if err != nil {
		return err
	}
	if headBlock == nil {
		return ErrPopEmptyChain
	}
	c.forkDB.PopBlock()
	return c.db.Undo()
}

// ClearPending discards the pending block and its session.
func (c *Controller) ClearPending() {
	_ = c.db.WithWriteLock(func() error {
		c.clearPending()
		return nil
	})
}

func (c *Controller) clearPending() {
	if c.pendingBlockSession != nil {
		c.pendingBlockSession.Discard()
	}
	c.resetPending()
}

func (c *Controller) resetPending() {
	c.pendingBlock = nil
	c.pendingBlockTrace = nil
	c.pendingBlockSession = nil
	c.pendingCycle = nil
	c.pendingCycleTrace = nil
}

// Replay re-applies every block of the block log against a fresh state,
// verifying only structural invariants. A missing or inapplicable block
// aborts startup.
func (c *Controller) Replay() error {
	log.Info("replaying blockchain")
	c.replaying = true
	defer func() {
		c.replaying = false
	}()

	last, err := c.blockLog.ReadHead()
	if err != nil {
		return err
	}
	if last == nil {
		log.Error("no blocks in block log; skipping replay")
		return nil
	}
	lastNum := last.Num()

	return c.db.WithWriteLock(func() error {
		for num := uint32(1); num <= lastNum; num++ {
			if num%5000 == 0 {
				log.WithFields(logrus.Fields{
					"num":  num,
					"last": lastNum,
				}).Info("replaying blocks")
			}
			b, err := c.blockLog.ReadBlockByNum(num)
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("%w: block %d missing from block log", ErrUnknownBlock, num)
			}
			err = c.applyBlock(b, SkipProducerSignature|
				SkipTransactionSignatures|
				SkipTransactionDupeCheck|
				SkipTaposCheck|
				SkipProducerScheduleCheck|
				SkipAuthorityCheck|
				ReceivedBlock)
			if err != nil {
				return fmt.Errorf("replaying block %d: %w", num, err)
			}
		}
		log.WithField("blocks", lastNum).Info("done replaying blocks")
		return c.db.SetRevision(int64(c.headBlockNum()))
	})
}
