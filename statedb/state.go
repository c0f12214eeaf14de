package statedb

import (
	"sort"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-dawn-chain/inter"
)

// BlockSummaryRingSize is the number of entries of the TaPoS block summary
// ring. Positions are block numbers modulo this size.
const BlockSummaryRingSize = 0x10000

// state is one version of the complete object store. Undo sessions
// snapshot it wholesale; all contained objects are owned by exactly one
// state, except the summary ring, which is shared copy-on-write because of
// its size.
type state struct {
	accounts          map[inter.Name]*AccountObject
	permissions       map[uint64]*PermissionObject
	permissionByOwner map[ownerKey]uint64
	permissionLinks   map[LinkKey]*PermissionLinkObject
	producers         map[inter.Name]*ProducerObject
	producerVotes     map[inter.Name]*ProducerVoteObject
	global            *GlobalPropertyObject
	dynamic           *DynamicGlobalPropertyObject
	summaries         []inter.BlockID
	summariesShared   bool
	transactions      map[inter.TransactionID]*TransactionObject
	generated         map[inter.TransactionID]*GeneratedTransactionObject
	bandwidth         map[inter.Name]*BandwidthUsageObject
	compute           map[inter.Name]*ComputeUsageObject
	staked            map[inter.Name]*StakedBalanceObject
	scopeSeq          map[inter.Name]*ScopeSequenceObject
	keyValue          map[KeyValueKey][]byte
	keyStrValue       map[KeyStrValueKey][]byte
	key128x128        map[Key128x128Key][]byte
	key64x64x64       map[Key64x64x64Key][]byte

	nextPermissionID uint64
}

type ownerKey struct {
	Owner inter.Name
	Name  inter.PermissionName
}

func newState() *state {
	return &state{
		accounts:          make(map[inter.Name]*AccountObject),
		permissions:       make(map[uint64]*PermissionObject),
		permissionByOwner: make(map[ownerKey]uint64),
		permissionLinks:   make(map[LinkKey]*PermissionLinkObject),
		producers:         make(map[inter.Name]*ProducerObject),
		producerVotes:     make(map[inter.Name]*ProducerVoteObject),
		transactions:      make(map[inter.TransactionID]*TransactionObject),
		generated:         make(map[inter.TransactionID]*GeneratedTransactionObject),
		bandwidth:         make(map[inter.Name]*BandwidthUsageObject),
		compute:           make(map[inter.Name]*ComputeUsageObject),
		staked:            make(map[inter.Name]*StakedBalanceObject),
		scopeSeq:          make(map[inter.Name]*ScopeSequenceObject),
		keyValue:          make(map[KeyValueKey][]byte),
		keyStrValue:       make(map[KeyStrValueKey][]byte),
		key128x128:        make(map[Key128x128Key][]byte),
		key64x64x64:       make(map[Key64x64x64Key][]byte),
		nextPermissionID:  1,
	}
}

// clone deep-copies the state. The summary ring is shared and marked
// copy-on-write on both sides instead; a later write through either state
// copies the ring first.
func (s *state) clone() *state {
	cp := newState()
	cp.nextPermissionID = s.nextPermissionID

	for k, v := range s.accounts {
		obj := *v
		cp.accounts[k] = &obj
	}
	for k, v := range s.permissions {
		obj := *v
		obj.Auth = v.Auth.Copy()
		cp.permissions[k] = &obj
	}
	for k, v := range s.permissionByOwner {
		cp.permissionByOwner[k] = v
	}
	for k, v := range s.permissionLinks {
		obj := *v
		cp.permissionLinks[k] = &obj
	}
	for k, v := range s.producers {
		obj := *v
		cp.producers[k] = &obj
	}
	for k, v := range s.producerVotes {
		obj := *v
		cp.producerVotes[k] = &obj
	}
	if s.global != nil {
		obj := *s.global
		obj.ActiveProducers = s.global.ActiveProducers.Copy()
		obj.PendingActiveProducers = make([]PendingSchedule, len(s.global.PendingActiveProducers))
		for i, p := range s.global.PendingActiveProducers {
			obj.PendingActiveProducers[i] = PendingSchedule{
				BlockNum: p.BlockNum,
				Schedule: p.Schedule.Copy(),
			}
		}
		cp.global = &obj
	}
	if s.dynamic != nil {
		obj := *s.dynamic
		obj.BlockMerkleRoot = s.dynamic.BlockMerkleRoot.Copy()
		cp.dynamic = &obj
	}

	s.summariesShared = true
	cp.summaries = s.summaries
	cp.summariesShared = true

	for k, v := range s.transactions {
		obj := *v
		cp.transactions[k] = &obj
	}
	for k, v := range s.generated {
		obj := *v
		obj.PackedTrx = append([]byte(nil), v.PackedTrx...)
		cp.generated[k] = &obj
	}
	for k, v := range s.bandwidth {
		obj := *v
		cp.bandwidth[k] = &obj
	}
	for k, v := range s.compute {
		obj := *v
		cp.compute[k] = &obj
	}
	for k, v := range s.staked {
		obj := *v
		cp.staked[k] = &obj
	}
	for k, v := range s.scopeSeq {
		obj := *v
		cp.scopeSeq[k] = &obj
	}
	for k, v := range s.keyValue {
		cp.keyValue[k] = append([]byte(nil), v...)
	}
	for k, v := range s.keyStrValue {
		cp.keyStrValue[k] = append([]byte(nil), v...)
	}
	for k, v := range s.key128x128 {
		cp.key128x128[k] = append([]byte(nil), v...)
	}
	for k, v := range s.key64x64x64 {
		cp.key64x64x64[k] = append([]byte(nil), v...)
	}
	return cp
}

// ownSummaries makes the summary ring writable, copying it if shared.
func (s *state) ownSummaries() {
	if !s.summariesShared {
		return
	}
	cp := make([]inter.BlockID, len(s.summaries))
	copy(cp, s.summaries)
	s.summaries = cp
	s.summariesShared = false
}

// fingerprint hashes the entire state deterministically. Two replicas that
// applied the same blocks have equal fingerprints.
func (s *state) fingerprint() hash.Hash {
	var chunks [][]byte
	add := func(b []byte) {
		chunks = append(chunks, b)
	}
	addRLP := func(v interface{}) {
		raw, err := rlp.EncodeToBytes(v)
		if err != nil {
			panic("can't hash: " + err.Error())
		}
		add(raw)
	}

	names := make([]string, 0, len(s.accounts))
	for n := range s.accounts {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.accounts[inter.Name(n)])
	}

	permIDs := make([]uint64, 0, len(s.permissions))
	for id := range s.permissions {
		permIDs = append(permIDs, id)
	}
	sort.Slice(permIDs, func(i, j int) bool { return permIDs[i] < permIDs[j] })
	for _, id := range permIDs {
		addRLP(s.permissions[id])
	}

	linkKeys := make([]LinkKey, 0, len(s.permissionLinks))
	for k := range s.permissionLinks {
		linkKeys = append(linkKeys, k)
	}
	sort.Slice(linkKeys, func(i, j int) bool {
		a, b := linkKeys[i], linkKeys[j]
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.MessageType < b.MessageType
	})
	for _, k := range linkKeys {
		addRLP(s.permissionLinks[k])
	}

	names = names[:0]
	for n := range s.producers {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.producers[inter.Name(n)])
	}

	names = names[:0]
	for n := range s.producerVotes {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.producerVotes[inter.Name(n)])
	}

	if s.global != nil {
		addRLP(s.global)
	}
	if s.dynamic != nil {
		addRLP(s.dynamic)
	}
	for _, id := range s.summaries {
		add(id.Bytes())
	}

	trxIDs := make([]inter.TransactionID, 0, len(s.transactions))
	for id := range s.transactions {
		trxIDs = append(trxIDs, id)
	}
	sortTrxIDs(trxIDs)
	for _, id := range trxIDs {
		addRLP(s.transactions[id])
	}

	trxIDs = trxIDs[:0]
	for id := range s.generated {
		trxIDs = append(trxIDs, id)
	}
	sortTrxIDs(trxIDs)
	for _, id := range trxIDs {
		addRLP(s.generated[id])
	}

	names = names[:0]
	for n := range s.bandwidth {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.bandwidth[inter.Name(n)])
	}

	names = names[:0]
	for n := range s.compute {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.compute[inter.Name(n)])
	}

	names = names[:0]
	for n := range s.staked {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.staked[inter.Name(n)])
	}

	names = names[:0]
	for n := range s.scopeSeq {
		names = append(names, string(n))
	}
	sort.Strings(names)
	for _, n := range names {
		addRLP(s.scopeSeq[inter.Name(n)])
	}

	kvKeys := make([]KeyValueKey, 0, len(s.keyValue))
	for k := range s.keyValue {
		kvKeys = append(kvKeys, k)
	}
	sort.Slice(kvKeys, func(i, j int) bool {
		a, b := kvKeys[i], kvKeys[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Key < b.Key
	})
	for _, k := range kvKeys {
		add([]byte(k.Code))
		add([]byte(k.Scope))
		add([]byte(k.Table))
		add(bigendian.Uint64ToBytes(k.Key))
		add(s.keyValue[k])
	}

	strKeys := make([]KeyStrValueKey, 0, len(s.keyStrValue))
	for k := range s.keyStrValue {
		strKeys = append(strKeys, k)
	}
	sort.Slice(strKeys, func(i, j int) bool {
		a, b := strKeys[i], strKeys[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Key < b.Key
	})
	for _, k := range strKeys {
		add([]byte(k.Code))
		add([]byte(k.Scope))
		add([]byte(k.Table))
		add([]byte(k.Key))
		add(s.keyStrValue[k])
	}

	k128Keys := make([]Key128x128Key, 0, len(s.key128x128))
	for k := range s.key128x128 {
		k128Keys = append(k128Keys, k)
	}
	sort.Slice(k128Keys, func(i, j int) bool { return less128(k128Keys[i], k128Keys[j]) })
	for _, k := range k128Keys {
		add([]byte(k.Code))
		add([]byte(k.Scope))
		add([]byte(k.Table))
		add(bigendian.Uint64ToBytes(k.PrimaryHi))
		add(bigendian.Uint64ToBytes(k.PrimaryLo))
		add(bigendian.Uint64ToBytes(k.SecondaryHi))
		add(bigendian.Uint64ToBytes(k.SecondaryLo))
		add(s.key128x128[k])
	}

	k64Keys := make([]Key64x64x64Key, 0, len(s.key64x64x64))
	for k := range s.key64x64x64 {
		k64Keys = append(k64Keys, k)
	}
	sort.Slice(k64Keys, func(i, j int) bool { return less64x3(k64Keys[i], k64Keys[j]) })
	for _, k := range k64Keys {
		add([]byte(k.Code))
		add([]byte(k.Scope))
		add([]byte(k.Table))
		add(bigendian.Uint64ToBytes(k.Primary))
		add(bigendian.Uint64ToBytes(k.Secondary))
		add(bigendian.Uint64ToBytes(k.Tertiary))
		add(s.key64x64x64[k])
	}

	add(bigendian.Uint64ToBytes(s.nextPermissionID))

	return hash.Of(chunks...)
}

func less128(a, b Key128x128Key) bool {
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	if a.Table != b.Table {
		return a.Table < b.Table
	}
	if a.PrimaryHi != b.PrimaryHi {
		return a.PrimaryHi < b.PrimaryHi
	}
	if a.PrimaryLo != b.PrimaryLo {
		return a.PrimaryLo < b.PrimaryLo
	}
	if a.SecondaryHi != b.SecondaryHi {
		return a.SecondaryHi < b.SecondaryHi
	}
	return a.SecondaryLo < b.SecondaryLo
}

func less64x3(a, b Key64x64x64Key) bool {
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	if a.Table != b.Table {
		return a.Table < b.Table
	}
	if a.Primary != b.Primary {
		return a.Primary < b.Primary
	}
	if a.Secondary != b.Secondary {
		return a.Secondary < b.Secondary
	}
	return a.Tertiary < b.Tertiary
}

func sortTrxIDs(ids []inter.TransactionID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		for x := 0; x < len(a); x++ {
			if a[x] != b[x] {
				return a[x] < b[x]
			}
		}
		return false
	})
}
