package state

import (
	"context"
	"errors"

	"github.com/tallyledger/tally/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are no transactions in the mempool.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	// Pick the next set of transactions from the mempool and drop any that
	// can no longer apply against the current balances. A transaction that
	// was covered at admission time can be stale by now, or a set of
	// transactions can jointly overdraw an account. Mining such a payload
	// would burn the full proof of work on a block that is rejected on
	// application, and the same doomed payload would be picked again.
	trans := s.mempool.PickBest(int(s.genesis.TransPerBlock))

	trans, rejected := s.db.ApplicableTransactions(trans)
	for _, tx := range rejected {
		s.evHandler("state: MineNewBlock: MINING: WARNING: evict stale tx[%s]", tx)
		s.mempool.Delete(tx)
	}

	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Attempt to create a new block by solving the POW puzzle. This can be
	// cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		Difficulty: s.genesis.Difficulty,
		PrevBlock:  s.db.LatestBlock(),
		Trans:      trans,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessPeerBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain.
func (s *State) ProcessPeerBlock(block database.Block) error {
	s.evHandler("state: ProcessPeerBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, block.Hash(), len(block.Trans))
	defer s.evHandler("state: ProcessPeerBlock: completed: newBlk[%s]", block.Hash())

	// If a mining operation is running it is mining against a tip that is
	// about to go stale. The G executing the mining operation will not
	// return until done is called, which lets this function complete its
	// state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessPeerBlock: signal mining to terminate")
		done()
	}()

	// Validate the block and then update the blockchain database.
	return s.validateUpdateDatabase(block)
}

// =============================================================================

// validateUpdateDatabase takes the block and validates it against the
// consensus rules. If the block passes, the state of the node is updated.
func (s *State) validateUpdateDatabase(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: validate and apply block")

	// Validation and ledger application are one atomic step. A block whose
	// payload fails to apply is never appended.
	if err := s.db.Write(block); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: remove block txs from mempool")

	// The transactions in this block are no longer pending.
	for _, tx := range block.Trans {
		s.evHandler("state: validateUpdateDatabase: tx[%s] remove", tx)
		s.mempool.Delete(tx)
	}

	return nil
}
