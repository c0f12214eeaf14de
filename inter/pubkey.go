package inter

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PubKeyLen is the length of an uncompressed secp256k1 public key.
const PubKeyLen = 65

// PubKey is an uncompressed secp256k1 public key. The zero value means
// "no key" (e.g. a producer who has not published a signing key).
type PubKey [PubKeyLen]byte

// PubKeyFromECDSA converts an ecdsa public key to its wire form.
func PubKeyFromECDSA(key *ecdsa.PublicKey) PubKey {
	var pk PubKey
	copy(pk[:], crypto.FromECDSAPub(key))
	return pk
}

// BytesToPubKey converts raw bytes to a PubKey. Short input yields a
// zero-padded key.
func BytesToPubKey(b []byte) PubKey {
	var pk PubKey
	copy(pk[:], b)
	return pk
}

// Empty reports whether the key is unset.
func (pk PubKey) Empty() bool {
	return pk == PubKey{}
}

func (pk PubKey) Bytes() []byte {
	return pk[:]
}

func (pk PubKey) String() string {
	return hexutil.Encode(pk[:])
}
