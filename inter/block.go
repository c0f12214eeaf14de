package inter

import (
	"crypto/ecdsa"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockID is a 256-bit block identifier. The high 32 bits carry the block
// number, so both ordering and number are recoverable from the id alone;
// the remaining bits come from the header digest.
type BlockID [32]byte

// Num extracts the block number embedded in the id.
func (id BlockID) Num() uint32 {
	return bigendian.BytesToUint32(id[:4])
}

// Prefix returns the 32-bit TaPoS prefix of the id (the bits right after
// the embedded number). Transactions pin themselves to a recent block by
// number and prefix.
func (id BlockID) Prefix() uint32 {
	return bigendian.BytesToUint32(id[4:8])
}

// IsZero reports whether the id is the zero id (the pre-genesis "block 0").
func (id BlockID) IsZero() bool {
	return id == BlockID{}
}

func (id BlockID) Bytes() []byte {
	return id[:]
}

func (id BlockID) String() string {
	return hexutil.Encode(id[:])
}

// BytesToBlockID converts raw bytes to a BlockID.
func BytesToBlockID(b []byte) BlockID {
	var id BlockID
	copy(id[:], b)
	return id
}

// TransactionStatus is the disposition of a transaction receipt within a
// shard.
type TransactionStatus uint8

const (
	// TransactionExecuted means the transaction succeeded and its body is
	// carried in the block's input transactions.
	TransactionExecuted TransactionStatus = iota
	// TransactionSoftFail reserves a slot for a transaction whose handler
	// failed but whose error handler succeeded.
	TransactionSoftFail
	// TransactionHardFail reserves a slot for a transaction whose error
	// handler failed too.
	TransactionHardFail
	// TransactionDelayed reserves a slot for a deferred transaction.
	TransactionDelayed
)

// TransactionReceipt records the outcome of one transaction inside a shard.
type TransactionReceipt struct {
	Status TransactionStatus
	ID     TransactionID
}

// Digest returns the receipt's contribution to the transaction merkle root.
func (r TransactionReceipt) Digest() hash.Hash {
	return hash.Of([]byte{byte(r.Status)}, r.ID[:])
}

// Shard is an ordered list of receipts whose scopes do not conflict with
// any other shard of the same cycle.
type Shard []TransactionReceipt

// Cycle is a sequential step within a region; all shards of a cycle execute
// as if in parallel.
type Cycle []Shard

// Region is the top-level partition of a block. Region ids within a block
// are strictly increasing.
type Region struct {
	Region        RegionID
	CyclesSummary []Cycle
}

// BlockHeader carries the consensus-visible commitments of a block.
type BlockHeader struct {
	Previous         BlockID
	Timestamp        Timestamp
	Producer         Name
	TransactionMRoot hash.Hash
	ActionMRoot      hash.Hash
	BlockMRoot       hash.Hash
	NewProducers     *ProducerSchedule `rlp:"nil"`
}

// Num returns the number this header's block will occupy.
func (h *BlockHeader) Num() uint32 {
	return h.Previous.Num() + 1
}

// Digest returns the signing digest of the header.
func (h *BlockHeader) Digest() hash.Hash {
	raw, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic("can't encode: " + err.Error())
	}
	return hash.Of(raw)
}

// ID derives the block id: the header digest with the high 32 bits
// replaced by the block number.
func (h *BlockHeader) ID() BlockID {
	id := BlockID(h.Digest())
	copy(id[:4], bigendian.Uint32ToBytes(h.Num()))
	return id
}

// SignedBlockHeader is a header plus the producer's signature over its
// digest.
type SignedBlockHeader struct {
	BlockHeader
	ProducerSignature []byte
}

// Sign signs the header digest with the producer's block signing key.
func (h *SignedBlockHeader) Sign(key *ecdsa.PrivateKey) error {
	digest := h.Digest()
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return err
	}
	h.ProducerSignature = sig
	return nil
}

// SigneeKey recovers the public key that signed the header.
func (h *SignedBlockHeader) SigneeKey() (PubKey, error) {
	digest := h.Digest()
	pub, err := crypto.SigToPub(digest.Bytes(), h.ProducerSignature)
	if err != nil {
		return PubKey{}, err
	}
	return PubKeyFromECDSA(pub), nil
}

// ValidateSignee reports whether the header was signed by the given key.
func (h *SignedBlockHeader) ValidateSignee(key PubKey) bool {
	signee, err := h.SigneeKey()
	if err != nil {
		return false
	}
	return signee == key
}

// SignedBlock is a complete block: header, the region/cycle/shard receipt
// tree, and the bodies of all executed input transactions.
type SignedBlock struct {
	SignedBlockHeader
	Regions           []Region
	InputTransactions []SignedTransaction
}

// CalculateTransactionMRoot computes the merkle root over all receipts in
// region, cycle, shard, receipt order.
func (b *SignedBlock) CalculateTransactionMRoot() hash.Hash {
	var digests []hash.Hash
	for _, r := range b.Regions {
		for _, cycle := range r.CyclesSummary {
			for _, shard := range cycle {
				for _, receipt := range shard {
					digests = append(digests, receipt.Digest())
				}
			}
		}
	}
	return Merkle(digests)
}

// PackedSize returns the serialized size of the block, used for the average
// block size accounting.
func (b *SignedBlock) PackedSize() uint64 {
	raw, err := rlp.EncodeToBytes(b)
	if err != nil {
		panic("can't encode: " + err.Error())
	}
	return uint64(len(raw))
}
