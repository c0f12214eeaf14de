package chain

import (
	"fmt"

	"github.com/rony4d/go-dawn-chain/authority"
	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

// transactionMetadata carries a transaction together with its position in
// the block being built or replayed.
type transactionMetadata struct {
	trx        *inter.SignedTransaction
	id         inter.TransactionID
	regionID   inter.RegionID
	cycleIndex uint32
	shardIndex uint32
}

func newTransactionMetadata(trx *inter.SignedTransaction, region inter.RegionID, cycle, shard uint32) *transactionMetadata {
	return &transactionMetadata{
		trx:        trx,
		id:         trx.ID(),
		regionID:   region,
		cycleIndex: cycle,
		shardIndex: shard,
	}
}

// PushTransaction validates, authorizes, schedules, and applies a
// transaction against the pending block. On failure the nested session is
// dropped and the pending block is unaffected.
func (c *Controller) PushTransaction(trx *inter.SignedTransaction, skip SkipFlags) (trace *inter.TransactionTrace, err error) {
	err = c.withSkipFlags(skip, func() error {
		return c.db.WithWriteLock(func() error {
			var innerErr error
			trace, innerErr = c.pushTransaction(trx)
			return innerErr
		})
	})
	if err != nil {
		return nil, err
	}
	return trace, nil
}

func (c *Controller) pushTransaction(trx *inter.SignedTransaction) (*inter.TransactionTrace, error) {
	// the first transaction pushed after a block starts a new pending
	// block, so we can quickly rewind to the head state if a block arrives
	if c.pendingBlock == nil {
		c.startPendingBlock()
	}

	tempSession := c.db.StartUndoSession(true)
	defer tempSession.Discard()

	if !c.skipFlags.Has(SkipBlockSizeCheck) {
		size := c.pendingBlock.PackedSize() + trx.PackedSize()
		if size > c.db.FindGlobalProperties().Configuration.MaxBlockSize {
			return nil, fmt.Errorf("%w: pending block would exceed maximum size", ErrTransaction)
		}
	}

	if err := c.validateReferencedAccounts(&trx.Transaction); err != nil {
		return nil, err
	}
	if err := c.checkTransactionAuthorization(trx, false); err != nil {
		return nil, err
	}

	shardNum := c.pendingCycle.Schedule(&trx.Transaction)
	cycleNum := uint32(len(c.currentRegion().CyclesSummary) - 1)
	if shardNum == -1 {
		cycleNum++
	}

	meta := newTransactionMetadata(trx, c.currentRegion().Region, cycleNum, 0)
	result, err := c.applyTransaction(meta)
	if err != nil {
		return nil, err
	}

	if shardNum == -1 {
		// schedule conflict: close this cycle and open a new one
		c.finalizePendingCycle()
		c.startPendingCycle()
		shardNum = c.pendingCycle.Schedule(&trx.Transaction)
	}

	cycle := c.currentCycle()
	for shardNum >= len(*cycle) {
		c.startPendingShard()
		cycle = c.currentCycle()
	}

	(*cycle)[shardNum] = append((*cycle)[shardNum], inter.TransactionReceipt{
		Status: inter.TransactionExecuted,
		ID:     meta.id,
	})
	c.pendingCycleTrace.ShardTraces[shardNum].Append(*result)
	c.pendingBlock.InputTransactions = append(c.pendingBlock.InputTransactions, *trx)

	// the transaction applied; merge its changes into the pending block
	tempSession.Squash()

	c.emitPendingTransaction(trx)
	return result, nil
}

func (c *Controller) currentRegion() *inter.Region {
	return &c.pendingBlock.Regions[len(c.pendingBlock.Regions)-1]
}

func (c *Controller) currentCycle() *inter.Cycle {
	region := c.currentRegion()
	return &region.CyclesSummary[len(region.CyclesSummary)-1]
}

// applyTransaction validates the transaction's structure against chain
// state, executes its actions, and charges bandwidth and compute usage to
// the authorizing accounts.
func (c *Controller) applyTransaction(meta *transactionMetadata) (*inter.TransactionTrace, error) {
	trx := meta.trx

	if !c.skipFlags.Has(SkipScopeCheck) {
		if err := c.validateScope(&trx.Transaction); err != nil {
			return nil, err
		}
	}
	if err := c.validateExpiration(&trx.Transaction); err != nil {
		return nil, err
	}
	if !c.skipFlags.Has(SkipTaposCheck) {
		if err := c.validateTapos(&trx.Transaction); err != nil {
			return nil, err
		}
	}
	if !c.skipFlags.Has(SkipTransactionDupeCheck) {
		if err := c.validateUniqueness(meta.id); err != nil {
			return nil, err
		}
	}

	result := &inter.TransactionTrace{
		ID:     meta.id,
		Status: inter.TransactionExecuted,
	}
	for i := range trx.Actions {
		ctx := c.newApplyContext(&trx.Transaction, &trx.Actions[i])
		actionTrace, err := ctx.exec()
		if err != nil {
			return nil, err
		}
		result.ActionTraces = append(result.ActionTraces, actionTrace)
		result.DeferredTransactions = append(result.DeferredTransactions, ctx.generated...)
	}
	for i := range result.ActionTraces {
		result.ActionTraces[i].RegionID = meta.regionID
		result.ActionTraces[i].CycleIndex = meta.cycleIndex
	}

	c.recordTransaction(meta.id, trx.Expiration)
	if err := c.chargeUsage(trx); err != nil {
		return nil, err
	}

	for _, scope := range trx.WriteScope {
		if scope == dawn.AllScope || scope == dawn.AuthScope {
			continue
		}
		c.db.BumpScopeSequence(scope)
	}

	return result, nil
}

// chargeUsage bills every authorizing account for the transaction's packed
// size plus a fixed overhead, and one compute unit per action. With
// Rules.EnforceBandwidthLimits set, an account whose usage exceeds its staked
// allowance fails the transaction.
func (c *Controller) chargeUsage(trx *inter.SignedTransaction) error {
	authorizing := make(map[inter.Name]bool)
	for _, act := range trx.Actions {
		for _, auth := range act.Authorization {
			authorizing[auth.Actor] = true
		}
	}
	if len(authorizing) == 0 {
		return nil
	}

	cfg := c.db.FindGlobalProperties().Configuration
	trxSize := trx.PackedSize() + cfg.FixedBandwidthOverheadPerTransaction
	headTime := c.headBlockTime()

	for account := range authorizing {
		buo := c.db.FindBandwidthUsage(account)
		if buo == nil {
			buo = c.db.CreateBandwidthUsage(account)
		}
		buo.Bytes.AddUsage(trxSize, headTime, usageWindow)

		cuo := c.db.FindComputeUsage(account)
		if cuo == nil {
			cuo = c.db.CreateComputeUsage(account)
		}
		cuo.Units.AddUsage(uint64(len(trx.Actions)), headTime, usageWindow)
	}

	if c.rules.EnforceBandwidthLimits {
		for account := range authorizing {
			buo := c.db.FindBandwidthUsage(account)
			sbo := c.db.FindStakedBalance(account)
			staked := uint64(0)
			if sbo != nil {
				staked = sbo.StakedBalance
			}
			if buo.Bytes.Value > staked*bandwidthPerStakedUnit {
				return fmt.Errorf("%w: account %s exceeded its bandwidth limit",
					ErrTransaction, account)
			}
		}
	}
	return nil
}

// recordTransaction inserts the dedup record; replay with the dupe check
// skipped tolerates an existing record.
func (c *Controller) recordTransaction(id inter.TransactionID, expiration inter.Timestamp) {
	if c.db.FindTransaction(id) == nil {
		c.db.CreateTransaction(id, expiration)
	}
}

// validateScope enforces the structural scope invariants: each scope list
// strictly sorted, no overlap between the two, and every authorizing
// account present in write scope (write access is needed to update its
// bandwidth usage).
func (c *Controller) validateScope(trx *inter.Transaction) error {
	if !trx.ValidateScopes() {
		return fmt.Errorf("%w: scopes must be sorted and unique", ErrTransaction)
	}
	if both := trx.ScopeIntersection(); len(both) != 0 {
		return fmt.Errorf("%w: scope %s redeclared in read scope", ErrTransaction, both[0])
	}
	for _, act := range trx.Actions {
		for _, auth := range act.Authorization {
			if !trx.HasWriteScope(auth.Actor) {
				return fmt.Errorf("%w: write scope of authorizing account %s is required",
					ErrTransaction, auth.Actor)
			}
		}
	}
	return nil
}

// validateExpiration rejects expired transactions and expirations too far
// in the future.
func (c *Controller) validateExpiration(trx *inter.Transaction) error {
	now := c.headBlockTime()
	maxLifetime := c.db.FindGlobalProperties().Configuration.MaxTransactionLifetime
	if trx.Expiration > now+maxLifetime {
		return fmt.Errorf("%w: expiration too far in the future", ErrTransaction)
	}
	if now > trx.Expiration {
		return fmt.Errorf("%w: transaction is expired", ErrTransaction)
	}
	return nil
}

// validateTapos checks the transaction's reference block against the block
// summary ring.
func (c *Controller) validateTapos(trx *inter.Transaction) error {
	summary := c.db.GetBlockSummary(uint16(trx.RefBlockNum))
	if !trx.VerifyReferenceBlock(summary) {
		return fmt.Errorf("%w: reference block does not match; transaction from a different fork?",
			ErrTransaction)
	}
	return nil
}

// validateUniqueness rejects transactions whose id is already recorded and
// not yet expired.
func (c *Controller) validateUniqueness(id inter.TransactionID) error {
	if c.db.FindTransaction(id) != nil {
		return fmt.Errorf("%w: %s", ErrTxDuplicate, id)
	}
	return nil
}

// validateReferencedAccounts requires every scope and every authorizing
// actor to resolve to an account. Built-in scopes bypass the account
// check.
func (c *Controller) validateReferencedAccounts(trx *inter.Transaction) error {
	for _, scope := range trx.ReadScope {
		if err := c.requireScope(scope); err != nil {
			return err
		}
	}
	for _, scope := range trx.WriteScope {
		if err := c.requireScope(scope); err != nil {
			return err
		}
	}
	for _, act := range trx.Actions {
		if err := c.requireAccount(act.Scope); err != nil {
			return err
		}
		for _, auth := range act.Authorization {
			if err := c.requireAccount(auth.Actor); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) requireScope(scope inter.Name) error {
	if scope == dawn.AllScope || scope == dawn.AuthScope {
		return nil
	}
	return c.requireAccount(scope)
}

func (c *Controller) requireAccount(name inter.Name) error {
	if c.db.FindAccount(name) == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return nil
}

// checkTransactionAuthorization verifies that each action's declared
// authority is at least the minimum required permission and is satisfied
// by the transaction's signature keys; unless allowed, signatures
// irrelevant to every declared authority are rejected.
func (c *Controller) checkTransactionAuthorization(trx *inter.SignedTransaction, allowUnusedSignatures bool) error {
	keys, err := trx.SignatureKeys(c.chainID)
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %v", ErrTransaction, err)
	}
	return c.checkAuthorization(&trx.Transaction, keys, allowUnusedSignatures, nil)
}

func (c *Controller) checkAuthorization(trx *inter.Transaction, providedKeys []inter.PubKey,
	allowUnusedSignatures bool, providedAccounts []inter.Name) error {

	checker := authority.NewChecker(
		c.permissionLookup(),
		c.db.FindGlobalProperties().Configuration.MaxAuthorityDepth,
		providedKeys,
		providedAccounts,
	)

	for _, act := range trx.Actions {
		for _, declared := range act.Authorization {
			if !c.skipFlags.Has(SkipAuthorityCheck) {
				minPermission, err := c.lookupMinimumPermission(declared.Actor, act.Scope, act.Name)
				if err != nil {
					return err
				}
				declaredPermission := c.db.FindPermission(declared.Actor, declared.Permission)
				if declaredPermission == nil {
					return fmt.Errorf("%w: permission %s of %s",
						ErrAccountNotFound, declared.Permission, declared.Actor)
				}
				if !c.db.PermissionSatisfies(declaredPermission, minPermission) {
					return fmt.Errorf("%w: declared %s@%s, minimum is %s",
						ErrTxIrrelevantAuth, declared.Actor, declared.Permission, minPermission.Name)
				}
			}
			if !c.skipFlags.Has(SkipTransactionSignatures) {
				if !checker.Satisfied(declared) {
					return fmt.Errorf("%w: authority %s@%s",
						ErrTxMissingSigs, declared.Actor, declared.Permission)
				}
			}
		}
	}

	if !allowUnusedSignatures && !c.skipFlags.Has(SkipTransactionSignatures) {
		if !checker.AllKeysUsed() {
			return fmt.Errorf("%w: %d unused keys", ErrTxIrrelevantSig, len(checker.UnusedKeys()))
		}
	}
	return nil
}

func (c *Controller) permissionLookup() authority.PermissionLookup {
	return func(level inter.PermissionLevel) (inter.Authority, error) {
		po := c.db.FindPermission(level.Actor, level.Permission)
		if po == nil {
			return inter.Authority{}, fmt.Errorf("%w: permission %s of %s",
				ErrAccountNotFound, level.Permission, level.Actor)
		}
		return po.Auth, nil
	}
}

// lookupMinimumPermission resolves the weakest permission that may
// authorize (authorizer, scope, action): a specific link, else the
// contract-wide default link, else the active permission.
func (c *Controller) lookupMinimumPermission(authorizer, scope inter.Name, action inter.ActionName) (*statedb.PermissionObject, error) {
	link := c.db.FindPermissionLink(authorizer, scope, action)
	if link == nil {
		link = c.db.FindPermissionLink(authorizer, scope, "")
	}

	permissionName := dawn.ActiveName
	if link != nil {
		permissionName = link.RequiredPermission
	}
	po := c.db.FindPermission(authorizer, permissionName)
	if po == nil {
		return nil, fmt.Errorf("%w: permission %s of %s", ErrAccountNotFound, permissionName, authorizer)
	}
	return po, nil
}

// GetRequiredKeys returns the subset of candidate keys that suffice to
// authorize the transaction; ErrTxMissingSigs if the candidates cannot.
func (c *Controller) GetRequiredKeys(trx *inter.Transaction, candidateKeys []inter.PubKey) (keys []inter.PubKey, err error) {
	_ = c.db.WithReadLock(func() error {
		checker := authority.NewChecker(
			c.permissionLookup(),
			c.db.FindGlobalProperties().Configuration.MaxAuthorityDepth,
			candidateKeys,
			nil,
		)
		for _, act := range trx.Actions {
			for _, declared := range act.Authorization {
				if !checker.Satisfied(declared) {
					err = fmt.Errorf("%w: authority %s@%s",
						ErrTxMissingSigs, declared.Actor, declared.Permission)
					return nil
				}
			}
		}
		keys = checker.UsedKeys()
		return nil
	})
	return
}
