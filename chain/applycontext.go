package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

// ApplyHandler executes one action inside the action loop. Handlers are
// registered per (receiver, scope, action) and must be deterministic; they
// may enqueue deferred transactions on the context. A handler error
// propagates out of the transaction applier as a transaction failure.
type ApplyHandler func(*ApplyContext) error

type handlerKey struct {
	Receiver inter.Name
	Scope    inter.Name
	Action   inter.ActionName
}

// SetApplyHandler registers a handler for the given receiver, scope, and
// action name.
func (c *Controller) SetApplyHandler(receiver, scope inter.Name, action inter.ActionName, handler ApplyHandler) {
	c.applyHandlers[handlerKey{receiver, scope, action}] = handler
}

// FindApplyHandler returns the registered handler, or nil.
func (c *Controller) FindApplyHandler(receiver, scope inter.Name, action inter.ActionName) ApplyHandler {
	return c.applyHandlers[handlerKey{receiver, scope, action}]
}

// ApplyContext is the execution environment of one action.
type ApplyContext struct {
	Controller *Controller
	DB         *statedb.DB
	Trx        *inter.Transaction
	Act        *inter.Action
	Receiver   inter.Name

	console   strings.Builder
	generated []inter.DeferredTransaction
}

func (c *Controller) newApplyContext(trx *inter.Transaction, act *inter.Action) *ApplyContext {
	return &ApplyContext{
		Controller: c,
		DB:         c.db,
		Trx:        trx,
		Act:        act,
		Receiver:   act.Scope,
	}
}

// RequireAuthorization asserts that the action declares authorization of
// the given account.
func (ctx *ApplyContext) RequireAuthorization(account inter.Name) error {
	for _, auth := range ctx.Act.Authorization {
		if auth.Actor == account {
			return nil
		}
	}
	return fmt.Errorf("%w: missing authorization of %s", ErrTxMissingSigs, account)
}

// RequireScope asserts that the transaction declares the given scope,
// read or write.
func (ctx *ApplyContext) RequireScope(scope inter.Name) error {
	for _, s := range ctx.Trx.WriteScope {
		if s == scope {
			return nil
		}
	}
	for _, s := range ctx.Trx.ReadScope {
		if s == scope {
			return nil
		}
	}
	return fmt.Errorf("%w: scope %s not declared", ErrTransaction, scope)
}

// RequireWriteScope asserts that the transaction declares write access to
// the given scope.
func (ctx *ApplyContext) RequireWriteScope(scope inter.Name) error {
	for _, s := range ctx.Trx.WriteScope {
		if s == scope {
			return nil
		}
	}
	return fmt.Errorf("%w: write scope %s not declared", ErrTransaction, scope)
}

// ConsolePrintf appends formatted text to the action's console output.
func (ctx *ApplyContext) ConsolePrintf(format string, args ...interface{}) {
	fmt.Fprintf(&ctx.console, format, args...)
}

// GenerateTransaction enqueues a deferred transaction. It is recorded in
// the store when the cycle finalizes; dispatch is not yet implemented.
func (ctx *ApplyContext) GenerateTransaction(dtx inter.DeferredTransaction) {
	ctx.generated = append(ctx.generated, dtx)
}

// exec dispatches the action to its registered handler (a missing handler
// is a no-op) and returns the resulting action trace.
func (ctx *ApplyContext) exec() (inter.ActionTrace, error) {
	handler := ctx.Controller.FindApplyHandler(ctx.Receiver, ctx.Act.Scope, ctx.Act.Name)
	if handler != nil {
		if err := handler(ctx); err != nil {
			return inter.ActionTrace{}, err
		}
	}
	return inter.ActionTrace{
		Receiver: ctx.Receiver,
		Act:      *ctx.Act,
		Console:  ctx.console.String(),
	}, nil
}

func rlpEncodeDeferred(dt *inter.DeferredTransaction) ([]byte, error) {
	return rlp.EncodeToBytes(dt)
}
