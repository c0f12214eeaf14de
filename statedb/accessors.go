package statedb

import (
	"sort"

	"github.com/rony4d/go-dawn-chain/inter"
)

// Typed accessors over the current state. Find* returns nil when the object
// does not exist; Get* callers are expected to have checked existence.
// Mutation through the returned pointers and Modify* helpers is legal only
// under the writer lock; the enclosing session snapshot guarantees undo.

// Accounts

func (db *DB) CreateAccount(name inter.Name, at inter.Timestamp) *AccountObject {
	obj := &AccountObject{Name: name, CreationDate: at}
	db.cur.accounts[name] = obj
	return obj
}

func (db *DB) FindAccount(name inter.Name) *AccountObject {
	return db.cur.accounts[name]
}

// Permissions

func (db *DB) CreatePermission(owner inter.Name, name inter.PermissionName, parent uint64, auth inter.Authority) *PermissionObject {
	obj := &PermissionObject{
		ID:     db.cur.nextPermissionID,
		Parent: parent,
		Owner:  owner,
		Name:   name,
		Auth:   auth.Copy(),
	}
	db.cur.nextPermissionID++
	db.cur.permissions[obj.ID] = obj
	db.cur.permissionByOwner[ownerKey{owner, name}] = obj.ID
	return obj
}

func (db *DB) FindPermission(owner inter.Name, name inter.PermissionName) *PermissionObject {
	id, ok := db.cur.permissionByOwner[ownerKey{owner, name}]
	if !ok {
		return nil
	}
	return db.cur.permissions[id]
}

func (db *DB) FindPermissionByID(id uint64) *PermissionObject {
	return db.cur.permissions[id]
}

func (db *DB) ModifyPermission(obj *PermissionObject, fn func(*PermissionObject)) {
	fn(obj)
}

// PermissionSatisfies reports whether the declared permission is the
// required one or one of its ancestors (ancestors are stronger).
func (db *DB) PermissionSatisfies(declared, required *PermissionObject) bool {
	if declared.Owner != required.Owner {
		return false
	}
	for p := required; p != nil; {
		if p.ID == declared.ID {
			return true
		}
		if p.Parent == 0 {
			return false
		}
		p = db.cur.permissions[p.Parent]
	}
	return false
}

// Permission links

func (db *DB) CreatePermissionLink(link PermissionLinkObject) *PermissionLinkObject {
	obj := link
	db.cur.permissionLinks[LinkKey{link.Account, link.Code, link.MessageType}] = &obj
	return &obj
}

func (db *DB) FindPermissionLink(account, code inter.Name, action inter.ActionName) *PermissionLinkObject {
	return db.cur.permissionLinks[LinkKey{account, code, action}]
}

// Producers

func (db *DB) CreateProducer(owner inter.Name, key inter.PubKey) *ProducerObject {
	obj := &ProducerObject{Owner: owner, SigningKey: key}
	db.cur.producers[owner] = obj
	return obj
}

func (db *DB) FindProducer(owner inter.Name) *ProducerObject {
	return db.cur.producers[owner]
}

func (db *DB) ModifyProducer(obj *ProducerObject, fn func(*ProducerObject)) {
	fn(obj)
}

func (db *DB) CreateProducerVote(owner inter.Name, votes uint64) *ProducerVoteObject {
	obj := &ProducerVoteObject{OwnerName: owner, Votes: votes}
	db.cur.producerVotes[owner] = obj
	return obj
}

func (db *DB) FindProducerVote(owner inter.Name) *ProducerVoteObject {
	return db.cur.producerVotes[owner]
}

// ProducersByVote returns producer votes ordered by descending vote count,
// ties broken by name, so every replica elects the same schedule.
func (db *DB) ProducersByVote() []*ProducerVoteObject {
	votes := make([]*ProducerVoteObject, 0, len(db.cur.producerVotes))
	for _, v := range db.cur.producerVotes {
		votes = append(votes, v)
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].Votes != votes[j].Votes {
			return votes[i].Votes > votes[j].Votes
		}
		return votes[i].OwnerName < votes[j].OwnerName
	})
	return votes
}

// Global and dynamic global properties

func (db *DB) CreateGlobalProperties(obj GlobalPropertyObject) *GlobalPropertyObject {
	cp := obj
	db.cur.global = &cp
	return &cp
}

func (db *DB) FindGlobalProperties() *GlobalPropertyObject {
	return db.cur.global
}

func (db *DB) ModifyGlobalProperties(fn func(*GlobalPropertyObject)) {
	fn(db.cur.global)
}

func (db *DB) CreateDynamicGlobalProperties(obj DynamicGlobalPropertyObject) *DynamicGlobalPropertyObject {
	cp := obj
	db.cur.dynamic = &cp
	return &cp
}

func (db *DB) FindDynamicGlobalProperties() *DynamicGlobalPropertyObject {
	return db.cur.dynamic
}

func (db *DB) ModifyDynamicGlobalProperties(fn func(*DynamicGlobalPropertyObject)) {
	fn(db.cur.dynamic)
}

// Block summary ring

// InitBlockSummaries allocates the full TaPoS ring of zero ids.
func (db *DB) InitBlockSummaries() {
	db.cur.summaries = make([]inter.BlockID, BlockSummaryRingSize)
	db.cur.summariesShared = false
}

func (db *DB) BlockSummaryCount() int {
	return len(db.cur.summaries)
}

func (db *DB) GetBlockSummary(pos uint16) inter.BlockID {
	return db.cur.summaries[pos]
}

func (db *DB) SetBlockSummary(pos uint16, id inter.BlockID) {
	db.cur.ownSummaries()
	db.cur.summaries[pos] = id
}

// Transaction dedup records

func (db *DB) CreateTransaction(id inter.TransactionID, expiration inter.Timestamp) *TransactionObject {
	obj := &TransactionObject{TrxID: id, Expiration: expiration}
	db.cur.transactions[id] = obj
	return obj
}

func (db *DB) FindTransaction(id inter.TransactionID) *TransactionObject {
	return db.cur.transactions[id]
}

func (db *DB) RemoveTransaction(id inter.TransactionID) {
	delete(db.cur.transactions, id)
}

// TransactionsByExpiration returns dedup records ordered by ascending
// expiration, ties by id.
func (db *DB) TransactionsByExpiration() []*TransactionObject {
	objs := make([]*TransactionObject, 0, len(db.cur.transactions))
	for _, v := range db.cur.transactions {
		objs = append(objs, v)
	}
	sort.Slice(objs, func(i, j int) bool {
		if objs[i].Expiration != objs[j].Expiration {
			return objs[i].Expiration < objs[j].Expiration
		}
		return lessTrxID(objs[i].TrxID, objs[j].TrxID)
	})
	return objs
}

// Generated (deferred) transactions

func (db *DB) CreateGeneratedTransaction(obj GeneratedTransactionObject) *GeneratedTransactionObject {
	cp := obj
	cp.PackedTrx = append([]byte(nil), obj.PackedTrx...)
	db.cur.generated[obj.TrxID] = &cp
	return &cp
}

func (db *DB) FindGeneratedTransaction(id inter.TransactionID) *GeneratedTransactionObject {
	return db.cur.generated[id]
}

func (db *DB) RemoveGeneratedTransaction(id inter.TransactionID) {
	delete(db.cur.generated, id)
}

func (db *DB) GeneratedTransactionsByExpiration() []*GeneratedTransactionObject {
	objs := make([]*GeneratedTransactionObject, 0, len(db.cur.generated))
	for _, v := range db.cur.generated {
		objs = append(objs, v)
	}
	sort.Slice(objs, func(i, j int) bool {
		if objs[i].Expiration != objs[j].Expiration {
			return objs[i].Expiration < objs[j].Expiration
		}
		return lessTrxID(objs[i].TrxID, objs[j].TrxID)
	})
	return objs
}

// Usage and stake

func (db *DB) CreateBandwidthUsage(owner inter.Name) *BandwidthUsageObject {
	obj := &BandwidthUsageObject{Owner: owner}
	db.cur.bandwidth[owner] = obj
	return obj
}

func (db *DB) FindBandwidthUsage(owner inter.Name) *BandwidthUsageObject {
	return db.cur.bandwidth[owner]
}

func (db *DB) ModifyBandwidthUsage(obj *BandwidthUsageObject, fn func(*BandwidthUsageObject)) {
	fn(obj)
}

func (db *DB) CreateComputeUsage(owner inter.Name) *ComputeUsageObject {
	obj := &ComputeUsageObject{Owner: owner}
	db.cur.compute[owner] = obj
	return obj
}

func (db *DB) FindComputeUsage(owner inter.Name) *ComputeUsageObject {
	return db.cur.compute[owner]
}

func (db *DB) CreateStakedBalance(owner inter.Name, balance uint64) *StakedBalanceObject {
	obj := &StakedBalanceObject{Owner: owner, StakedBalance: balance}
	db.cur.staked[owner] = obj
	return obj
}

func (db *DB) FindStakedBalance(owner inter.Name) *StakedBalanceObject {
	return db.cur.staked[owner]
}

// Scope sequences

func (db *DB) BumpScopeSequence(scope inter.Name) uint64 {
	obj := db.cur.scopeSeq[scope]
	if obj == nil {
		obj = &ScopeSequenceObject{Scope: scope}
		db.cur.scopeSeq[scope] = obj
	}
	obj.Sequence++
	return obj.Sequence
}

func (db *DB) FindScopeSequence(scope inter.Name) *ScopeSequenceObject {
	return db.cur.scopeSeq[scope]
}

// Contract tables

func (db *DB) SetKeyValue(key KeyValueKey, value []byte) {
	db.cur.keyValue[key] = append([]byte(nil), value...)
}

func (db *DB) GetKeyValue(key KeyValueKey) ([]byte, bool) {
	v, ok := db.cur.keyValue[key]
	return v, ok
}

func (db *DB) RemoveKeyValue(key KeyValueKey) {
	delete(db.cur.keyValue, key)
}

func (db *DB) SetKeyStrValue(key KeyStrValueKey, value []byte) {
	db.cur.keyStrValue[key] = append([]byte(nil), value...)
}

func (db *DB) GetKeyStrValue(key KeyStrValueKey) ([]byte, bool) {
	v, ok := db.cur.keyStrValue[key]
	return v, ok
}

func (db *DB) SetKey128x128Value(key Key128x128Key, value []byte) {
	db.cur.key128x128[key] = append([]byte(nil), value...)
}

func (db *DB) GetKey128x128Value(key Key128x128Key) ([]byte, bool) {
	v, ok := db.cur.key128x128[key]
	return v, ok
}

func (db *DB) SetKey64x64x64Value(key Key64x64x64Key, value []byte) {
	db.cur.key64x64x64[key] = append([]byte(nil), value...)
}

func (db *DB) GetKey64x64x64Value(key Key64x64x64Key) ([]byte, bool) {
	v, ok := db.cur.key64x64x64[key]
	return v, ok
}

func lessTrxID(a, b inter.TransactionID) bool {
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
