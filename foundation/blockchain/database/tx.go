package database

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/tallyledger/tally/foundation/blockchain/signature"
)

// Tx is the transactional data submitted by an account holder. The field
// order is fixed, this struct is the canonical encoding that gets signed
// and hashed.
type Tx struct {
	ChainID uint16    `json:"chain_id"` // The chain id the transaction is bound to.
	FromID  AccountID `json:"from"`     // Account sending the funds.
	ToID    AccountID `json:"to"`       // Account receiving the funds.
	Amount  uint64    `json:"amount"`   // Amount being transferred, must be positive.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, fromID AccountID, toID AccountID, amount uint64) (Tx, error) {
	if !fromID.IsAccountID() {
		return Tx{}, fmt.Errorf("from account is not properly formatted")
	}
	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("to account is not properly formatted")
	}
	if amount == 0 {
		return Tx{}, fmt.Errorf("amount must be a positive value")
	}

	tx := Tx{
		ChainID: chainID,
		FromID:  fromID,
		ToID:    toID,
		Amount:  amount,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {

	// Sign the transaction with the private key to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how peers and
// wallets send transactions for inclusion into the chain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards and was signed by the account claiming to send the funds. It
// also checks the transaction data is consistent on its own.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("transaction invalid, wrong chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	if !tx.FromID.IsAccountID() {
		return fmt.Errorf("from account is not properly formatted")
	}
	if !tx.ToID.IsAccountID() {
		return fmt.Errorf("to account is not properly formatted")
	}
	if tx.FromID == tx.ToID {
		return fmt.Errorf("transaction invalid, sending money to yourself, from %s, to %s", tx.FromID, tx.ToID)
	}

	if tx.Amount == 0 {
		return fmt.Errorf("amount must be a positive value")
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	// Recover the address from the signature and check it is the account
	// claiming to send the funds. Absence of a match is a normal rejection,
	// not a fault.
	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if address != string(tx.FromID) {
		return fmt.Errorf("%w: signature address doesn't match from account", ErrInvalidSignature)
	}

	return nil
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Amount)
}

// =============================================================================

// BlockTx represents the transaction as recorded inside a block.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // The time the transaction was received.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
	}
}
