// Package signature implements signing and recovery for transactions and
// hashing for blocks. Signing is recoverable ECDSA over secp256k1, the
// account that signed a value is recovered from the signature itself so no
// public key ever travels on the wire.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash is the hash of the implicit genesis block and the previous hash
// of the first mined block.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// tallyID is added to the recovery id byte of every signature so a
// signature produced here can't be replayed on a chain that uses the plain
// Ethereum offset of 27.
const tallyID = 29

// =============================================================================

// Hash returns the hex encoded sha256 digest of the value's canonical JSON
// encoding. Field order in the encoded struct is fixed, any implementation
// hashing the same logical content gets the same digest.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign signs the value with the private key and returns the signature in
// its V, R, S parts with the tally id applied to V.
func Sign(value any, privateKey *ecdsa.PrivateKey) (v, r, s *big.Int, err error) {
	data, err := stamp(value)
	if err != nil {
		return nil, nil, nil, err
	}

	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	// Recover the public key back out of the fresh signature. A signature
	// the signer itself can't verify must never leave this function.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, nil, nil, err
	}
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, sig[:crypto.RecoveryIDOffset]) {
		return nil, nil, nil, errors.New("invalid signature produced")
	}

	v, r, s = toSignatureValues(sig)

	return v, r, s, nil
}

// VerifySignature checks the V, R, S parts form a well formed signature
// carrying the tally id. It says nothing about who signed, recovery does.
func VerifySignature(v, r, s *big.Int) error {
	uintV := v.Uint64() - tallyID
	if uintV != 0 && uintV != 1 {
		return errors.New("invalid recovery id")
	}

	if !crypto.ValidateSignatureValues(byte(uintV), r, s, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// FromAddress recovers the address of the account that signed the value.
func FromAddress(value any, v, r, s *big.Int) (string, error) {
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(data, ToSignatureBytes(v, r, s))
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// SignatureString returns the hex encoded 65 byte signature with the tally
// id kept in the final byte.
func SignatureString(v, r, s *big.Int) string {
	return hexutil.Encode(ToSignatureBytesWithTallyID(v, r, s))
}

// ToVRSFromHexSignature splits a hex encoded signature back into its V, R,
// S parts.
func ToVRSFromHexSignature(sigStr string) (v, r, s *big.Int, err error) {
	sig, err := hexutil.Decode(sigStr)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, nil, nil, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes(sig[64:])

	return v, r, s, nil
}

// =============================================================================

// stamp produces the 32 byte digest that actually gets signed. The value's
// JSON encoding is hashed first so arbitrary sized values sign uniformly,
// then hashed again under a ledger specific prefix so a tally signature can
// never double as a signature over raw user data elsewhere.
func stamp(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	prefix := []byte("\x19Tally Signed Message:\n32")

	return crypto.Keccak256(prefix, crypto.Keccak256(data)), nil
}

// toSignatureValues splits a 65 byte [R|S|V] signature into parts, adding
// the tally id to V.
func toSignatureValues(sig []byte) (v, r, s *big.Int) {
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64] + tallyID})

	return v, r, s
}

// ToSignatureBytes rebuilds the 65 byte [R|S|V] signature with the plain
// 0 or 1 recovery id, the form the crypto package recovers from.
func ToSignatureBytes(v, r, s *big.Int) []byte {
	sig := make([]byte, crypto.SignatureLength)

	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[64] = byte(v.Uint64() - tallyID)

	return sig
}

// ToSignatureBytesWithTallyID rebuilds the 65 byte signature keeping the
// tally id in the recovery byte.
func ToSignatureBytesWithTallyID(v, r, s *big.Int) []byte {
	sig := ToSignatureBytes(v, r, s)
	sig[64] = byte(v.Uint64())

	return sig
}
