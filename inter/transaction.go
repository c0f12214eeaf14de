package inter

import (
	"crypto/ecdsa"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TransactionID is the digest of a transaction's unsigned body.
type TransactionID [32]byte

func (id TransactionID) Bytes() []byte {
	return id[:]
}

func (id TransactionID) String() string {
	return hexutil.Encode(id[:])
}

// Action is one unit of work inside a transaction: a named operation of a
// contract (Scope), authorized by one or more account permissions.
type Action struct {
	Scope         Name
	Name          ActionName
	Authorization []PermissionLevel
	Payload       []byte
}

// Transaction is the unsigned transaction body.
//
// ReadScope and WriteScope declare the account state the transaction
// touches; each must be strictly sorted and the two sets must be disjoint.
// RefBlockNum and RefBlockPrefix pin the transaction to a recent block
// (TaPoS), bounding the forks it can be valid on.
type Transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     Timestamp
	ReadScope      []Name
	WriteScope     []Name
	Actions        []Action
}

// SignedTransaction is a transaction plus its authorizing signatures.
type SignedTransaction struct {
	Transaction
	Signatures [][]byte
}

// ID returns the digest of the unsigned body.
func (t *Transaction) ID() TransactionID {
	raw, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic("can't encode: " + err.Error())
	}
	return TransactionID(hash.Of(raw))
}

// SigDigest returns the digest signatures are made over: the chain id
// bound together with the unsigned body, so signatures cannot be replayed
// across chains.
func (t *Transaction) SigDigest(chainID hash.Hash) hash.Hash {
	raw, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic("can't encode: " + err.Error())
	}
	return hash.Of(chainID.Bytes(), raw)
}

// SetReferenceBlock pins the transaction to the given block id.
func (t *Transaction) SetReferenceBlock(id BlockID) {
	t.RefBlockNum = uint16(id.Num())
	t.RefBlockPrefix = id.Prefix()
}

// VerifyReferenceBlock reports whether the transaction's TaPoS fields match
// the given block id.
func (t *Transaction) VerifyReferenceBlock(id BlockID) bool {
	return t.RefBlockNum == uint16(id.Num()) && t.RefBlockPrefix == id.Prefix()
}

// ValidateScopes checks that read and write scopes are each strictly sorted
// (which implies uniqueness).
func (t *Transaction) ValidateScopes() bool {
	sorted := func(ss []Name) bool {
		for i := 1; i < len(ss); i++ {
			if !(ss[i-1] < ss[i]) {
				return false
			}
		}
		return true
	}
	return sorted(t.ReadScope) && sorted(t.WriteScope)
}

// HasWriteScope reports whether name is declared in the write scope.
func (t *Transaction) HasWriteScope(name Name) bool {
	i := sort.Search(len(t.WriteScope), func(i int) bool { return t.WriteScope[i] >= name })
	return i < len(t.WriteScope) && t.WriteScope[i] == name
}

// ScopeIntersection returns the scopes declared in both read and write
// scope. A valid transaction has none.
func (t *Transaction) ScopeIntersection() []Name {
	var both []Name
	for _, s := range t.ReadScope {
		if t.HasWriteScope(s) {
			both = append(both, s)
		}
	}
	return both
}

// Sign appends a signature over the transaction's chain-bound digest.
func (t *SignedTransaction) Sign(key *ecdsa.PrivateKey, chainID hash.Hash) error {
	digest := t.SigDigest(chainID)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return err
	}
	t.Signatures = append(t.Signatures, sig)
	return nil
}

// SignatureKeys recovers the set of public keys that signed the
// transaction.
func (t *SignedTransaction) SignatureKeys(chainID hash.Hash) ([]PubKey, error) {
	digest := t.SigDigest(chainID)
	keys := make([]PubKey, 0, len(t.Signatures))
	for _, sig := range t.Signatures {
		pub, err := crypto.SigToPub(digest.Bytes(), sig)
		if err != nil {
			return nil, err
		}
		keys = append(keys, PubKeyFromECDSA(pub))
	}
	return keys, nil
}

// DeferredTransaction is a transaction generated by an action handler for
// later execution. The chain records these but does not yet dispatch them.
type DeferredTransaction struct {
	Transaction
	Sender       Name
	SenderID     uint64
	ExecuteAfter Timestamp
}
