package database

import "errors"

// Set of rejection outcomes for blocks, chains and transactions. None of
// these are fatal to the node. The rejected input is discarded and the node
// continues on its prior valid state.
var (
	// ErrHashMismatch is returned when the hash stored with a block does not
	// match the recomputed digest of its fields.
	ErrHashMismatch = errors.New("block hash doesn't match recomputed hash")

	// ErrDifficultyNotMet is returned when a block hash does not satisfy the
	// proof of work difficulty predicate.
	ErrDifficultyNotMet = errors.New("block hash doesn't meet difficulty")

	// ErrBrokenLink is returned when a block's previous hash does not match
	// the hash of the block it claims to extend.
	ErrBrokenLink = errors.New("block isn't linked to its parent")

	// ErrIndexMismatch is returned when a block's number is not the next
	// number in the chain.
	ErrIndexMismatch = errors.New("block number isn't the next number")

	// ErrInvalidSignature is returned when a transaction signature does not
	// verify against the claimed from account.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrInsufficientFunds is returned when the from account can't cover the
	// transaction amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrChainNotLonger is returned when a candidate chain does not strictly
	// exceed the length of the chain we already hold. Ties favor the
	// incumbent chain.
	ErrChainNotLonger = errors.New("candidate chain isn't longer than the current chain")
)
