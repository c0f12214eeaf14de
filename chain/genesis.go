package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
	"github.com/rony4d/go-dawn-chain/statedb"
)

// Native action payloads of the system contract. The genesis transaction
// is built from these; the same actions remain available to the contract
// layer afterwards.

type newAccountPayload struct {
	Name          inter.Name
	OwnerKey      inter.PubKey
	ActiveKey     inter.PubKey
	StakedBalance uint64
}

type setProducerPayload struct {
	Name       inter.Name
	SigningKey inter.PubKey
}

func (c *Controller) registerNativeHandlers() {
	sys := dawn.SystemAccountName
	c.SetApplyHandler(sys, sys, "newaccount", applyNewAccount)
	c.SetApplyHandler(sys, sys, "setproducer", applySetProducer)
}

func applyNewAccount(ctx *ApplyContext) error {
	var payload newAccountPayload
	if err := rlp.DecodeBytes(ctx.Act.Payload, &payload); err != nil {
		return fmt.Errorf("%w: malformed newaccount payload: %v", ErrTransaction, err)
	}
	if ctx.DB.FindAccount(payload.Name) != nil {
		return fmt.Errorf("%w: account %s already exists", ErrTransaction, payload.Name)
	}

	ctx.DB.CreateAccount(payload.Name, ctx.Controller.headBlockTime())
	owner := ctx.DB.CreatePermission(payload.Name, dawn.OwnerName, 0,
		inter.SingleKeyAuthority(payload.OwnerKey))
	ctx.DB.CreatePermission(payload.Name, dawn.ActiveName, owner.ID,
		inter.SingleKeyAuthority(payload.ActiveKey))
	ctx.DB.CreateBandwidthUsage(payload.Name)
	ctx.DB.CreateComputeUsage(payload.Name)
	ctx.DB.CreateStakedBalance(payload.Name, payload.StakedBalance)
	return nil
}

func applySetProducer(ctx *ApplyContext) error {
	var payload setProducerPayload
	if err := rlp.DecodeBytes(ctx.Act.Payload, &payload); err != nil {
		return fmt.Errorf("%w: malformed setproducer payload: %v", ErrTransaction, err)
	}
	if ctx.DB.FindAccount(payload.Name) == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, payload.Name)
	}

	if producer := ctx.DB.FindProducer(payload.Name); producer != nil {
		ctx.DB.ModifyProducer(producer, func(p *statedb.ProducerObject) {
			p.SigningKey = payload.SigningKey
		})
	} else {
		ctx.DB.CreateProducer(payload.Name, payload.SigningKey)
	}
	if ctx.DB.FindProducerVote(payload.Name) == nil {
		ctx.DB.CreateProducerVote(payload.Name, 0)
	}
	return nil
}

// initializeChain sets up a fresh store: properties, the block summary
// ring, the system accounts, and the genesis transaction that creates the
// initial accounts and producers. Behaves as though it were applying a
// block (it is the genesis block).
func (c *Controller) initializeChain() error {
	if c.db.FindGlobalProperties() != nil {
		return nil
	}
	return c.db.WithWriteLock(func() error {
		g := c.genesis

		c.db.CreateGlobalProperties(statedb.GlobalPropertyObject{
			Configuration: g.Config,
		})
		c.db.CreateDynamicGlobalProperties(statedb.DynamicGlobalPropertyObject{
			Time:              g.Timestamp,
			RecentSlotsFilled: ^uint64(0),
		})
		c.db.InitBlockSummaries()

		c.createSystemAccount(dawn.SystemAccountName)
		c.createSystemAccount(dawn.ProducersAccountName)

		gtrx := c.buildGenesisTransaction()
		log.Info("applying genesis transaction")
		err := c.withSkipFlags(SkipScopeCheck|SkipTransactionSignatures|SkipAuthorityCheck|ReceivedBlock,
			func() error {
				meta := newTransactionMetadata(gtrx, 0, 0, 0)
				_, applyErr := c.applyTransaction(meta)
				return applyErr
			})
		if err != nil {
			return fmt.Errorf("chain: applying genesis transaction: %w", err)
		}

		// install the initial producer schedule at version 0
		schedule := c.calculateProducerSchedule()
		schedule.Version = 0
		c.db.ModifyGlobalProperties(func(gpo *statedb.GlobalPropertyObject) {
			gpo.ActiveProducers = schedule
		})
		if len(schedule.Producers) == 0 {
			return fmt.Errorf("chain: genesis produced an empty producer schedule")
		}
		return nil
	})
}

// createSystemAccount creates a chain-owned account whose permissions no
// key can satisfy directly.
func (c *Controller) createSystemAccount(name inter.Name) {
	c.db.CreateAccount(name, c.genesis.Timestamp)
	locked := inter.Authority{Threshold: 1}
	owner := c.db.CreatePermission(name, dawn.OwnerName, 0, locked)
	c.db.CreatePermission(name, dawn.ActiveName, owner.ID, locked)
	c.db.CreateBandwidthUsage(name)
	c.db.CreateComputeUsage(name)
	c.db.CreateStakedBalance(name, 0)
}

// buildGenesisTransaction assembles the setup transaction: one newaccount
// action per initial account and one setproducer per initial producer,
// under the all-encompassing write scope.
func (c *Controller) buildGenesisTransaction() *inter.SignedTransaction {
	g := c.genesis
	trx := &inter.SignedTransaction{}
	trx.WriteScope = []inter.Name{dawn.AllScope}
	trx.Expiration = g.Timestamp

	for _, account := range g.InitialAccounts {
		payload, err := rlp.EncodeToBytes(&newAccountPayload{
			Name:          account.Name,
			OwnerKey:      account.OwnerKey,
			ActiveKey:     account.ActiveKey,
			StakedBalance: account.StakedBalance,
		})
		if err != nil {
			panic("can't encode: " + err.Error())
		}
		trx.Actions = append(trx.Actions, inter.Action{
			Scope:   dawn.SystemAccountName,
			Name:    "newaccount",
			Payload: payload,
		})
	}
	for _, producer := range g.InitialProducers {
		payload, err := rlp.EncodeToBytes(&setProducerPayload{
			Name:       producer.ProducerName,
			SigningKey: producer.BlockSigningKey,
		})
		if err != nil {
			panic("can't encode: " + err.Error())
		}
		trx.Actions = append(trx.Actions, inter.Action{
			Scope:   dawn.SystemAccountName,
			Name:    "setproducer",
			Payload: payload,
		})
	}
	return trx
}
