// Package database handles all the lower level support for maintaining the
// blockchain in memory and maintaining the account balances derived from it.
package database

import (
	"fmt"
	"sync"

	"github.com/tallyledger/tally/foundation/blockchain/genesis"
)

// Database manages the chain of blocks and the account balances derived
// from applying those blocks in order. Balances are a derived, not primary,
// data structure, they can always be rebuilt by replaying the chain.
type Database struct {
	mu sync.RWMutex

	genesis  genesis.Genesis
	blocks   []Block
	accounts map[AccountID]Account

	evHandler func(v string, args ...any)
}

// New constructs a new database applying the genesis balances.
func New(genesis genesis.Genesis, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:   genesis,
		evHandler: evHandler,
	}

	accounts, err := genesisAccounts(genesis)
	if err != nil {
		return nil, err
	}
	db.accounts = accounts

	return &db, nil
}

// Write validates the specified block against the current chain tip and, if
// it passes, applies its transactions and appends it to the chain. The
// validation and ledger application are a single atomic step, a block whose
// payload fails to apply leaves no trace in the chain or the balances.
func (db *Database) Write(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := block.ValidateBlock(db.latestBlock(), db.genesis.Difficulty, db.evHandler); err != nil {
		return err
	}

	// Apply the transactions against a copy of the balances so a failing
	// transaction rolls the whole block back.
	accounts := copyAccounts(db.accounts)
	for _, tx := range block.Trans {
		if err := applyTransaction(accounts, tx, db.genesis.ChainID); err != nil {
			return err
		}
	}

	db.accounts = accounts
	db.blocks = append(db.blocks, block)

	return nil
}

// Replace runs the fork resolution rule against a candidate chain. The
// candidate is adopted as the new canonical chain iff every block in it
// validates from its own genesis and its length strictly exceeds the local
// chain's length. Adoption rebuilds the balances from scratch by replaying
// every block.
func (db *Database) Replace(blocks []Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Equal-length candidates are always rejected. The tie-break favors the
	// incumbent which avoids needless reorganizations and oscillation.
	if len(blocks) <= len(db.blocks) {
		return fmt.Errorf("%w: got %d blocks, have %d", ErrChainNotLonger, len(blocks), len(db.blocks))
	}

	// Validate the candidate from its genesis forward and replay the
	// balances as we go. Nothing local changes until the whole chain checks
	// out.
	accounts, err := genesisAccounts(db.genesis)
	if err != nil {
		return err
	}

	var prevBlock Block
	for _, block := range blocks {
		if err := block.ValidateBlock(prevBlock, db.genesis.Difficulty, db.evHandler); err != nil {
			return err
		}

		for _, tx := range block.Trans {
			if err := applyTransaction(accounts, tx, db.genesis.ChainID); err != nil {
				return err
			}
		}

		prevBlock = block
	}

	db.blocks = make([]Block, len(blocks))
	copy(db.blocks, blocks)
	db.accounts = accounts

	return nil
}

// LatestBlock returns the current tip of the chain. For a fresh node this is
// the zero valued genesis block whose hash is the zero hash sentinel.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock()
}

// Height returns the number of mined blocks in the chain. The implicit
// genesis block is not counted.
func (db *Database) Height() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.blocks))
}

// CopyBlocks returns a copy of the chain of mined blocks from oldest to
// newest.
func (db *Database) CopyBlocks() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blocks := make([]Block, len(db.blocks))
	copy(blocks, db.blocks)

	return blocks
}

// GetBlock returns the block with the specified number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if num == 0 || num > uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("block %d does not exist", num)
	}

	return db.blocks[num-1], nil
}

// CopyAccounts makes a copy of the current account balances.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return copyAccounts(db.accounts)
}

// Query returns a copy of the account from the database.
func (db *Database) Query(accountID AccountID) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	if !exists {
		return Account{}, fmt.Errorf("account %s does not exist", accountID)
	}

	return account, nil
}

// ApplicableTransactions runs the candidate transactions in order against a
// copy of the current balances and splits them into the ones that apply and
// the ones that cannot. Transactions individually covered at admission time
// can still jointly overdraw an account once combined into one payload, a
// rejected transaction will never apply against the current tip and should
// be evicted from the pool.
func (db *Database) ApplicableTransactions(trans []BlockTx) (applicable []BlockTx, rejected []BlockTx) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := copyAccounts(db.accounts)
	for _, tx := range trans {
		if err := applyTransaction(accounts, tx, db.genesis.ChainID); err != nil {
			rejected = append(rejected, tx)
			continue
		}
		applicable = append(applicable, tx)
	}

	return applicable, rejected
}

// ValidateTransaction checks a transaction can be applied against the
// current balances. This is used for admission into the mempool, the final
// check happens again when the transaction is mined into a block.
func (db *Database) ValidateTransaction(tx SignedTx) error {
	if err := tx.Validate(db.genesis.ChainID); err != nil {
		return err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	account := db.accounts[tx.FromID]
	if account.Balance < tx.Amount {
		return fmt.Errorf("%w: bal %d, needed %d", ErrInsufficientFunds, account.Balance, tx.Amount)
	}

	return nil
}

// =============================================================================

// applyTransaction performs the business logic for applying a transaction
// to the specified balances. Either the full transaction applies or none of
// it does.
func applyTransaction(accounts map[AccountID]Account, tx BlockTx, chainID uint16) error {
	if err := tx.Validate(chainID); err != nil {
		return err
	}

	if err := debit(accounts, tx.FromID, tx.Amount); err != nil {
		return err
	}
	credit(accounts, tx.ToID, tx.Amount)

	return nil
}

// debit removes the amount from the specified account.
func debit(accounts map[AccountID]Account, fromID AccountID, amount uint64) error {
	from, exists := accounts[fromID]
	if !exists || from.Balance < amount {
		return fmt.Errorf("%w: bal %d, needed %d", ErrInsufficientFunds, from.Balance, amount)
	}

	from.Balance -= amount
	accounts[fromID] = from

	return nil
}

// credit adds the amount to the specified account, creating the account on
// demand.
func credit(accounts map[AccountID]Account, toID AccountID, amount uint64) {
	to, exists := accounts[toID]
	if !exists {
		to = newAccount(toID, 0)
	}

	to.Balance += amount
	accounts[toID] = to
}

// genesisAccounts builds the starting balances from the genesis file.
func genesisAccounts(genesis genesis.Genesis) (map[AccountID]Account, error) {
	accounts := make(map[AccountID]Account)
	for accountStr, balance := range genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}
		accounts[accountID] = newAccount(accountID, balance)
	}

	return accounts, nil
}

// copyAccounts makes a copy of the specified balances.
func copyAccounts(accounts map[AccountID]Account) map[AccountID]Account {
	cpy := make(map[AccountID]Account, len(accounts))
	for accountID, account := range accounts {
		cpy[accountID] = account
	}

	return cpy
}

// latestBlock returns the tip without taking the lock.
func (db *Database) latestBlock() Block {
	if len(db.blocks) == 0 {
		return Block{}
	}

	return db.blocks[len(db.blocks)-1]
}
