package state

import (
	"github.com/tallyledger/tally/foundation/blockchain/database"
)

// ProcessPeerChain takes a whole chain received from a peer and runs the
// fork resolution rule against it. The candidate is adopted only when every
// block validates from its own genesis and its length strictly exceeds the
// local chain's length. Adoption rebuilds the account balances from scratch
// by replaying the new chain.
func (s *State) ProcessPeerChain(blocks []database.Block) error {
	s.evHandler("state: ProcessPeerChain: started: candidate length[%d] local length[%d]", len(blocks), s.db.Height())
	defer s.evHandler("state: ProcessPeerChain: completed")

	// Any in-flight mining attempt is extending a chain that may be about
	// to be replaced. Stop it before touching the database.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessPeerChain: signal mining to terminate")
		done()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Replace(blocks); err != nil {
		return err
	}

	// Transactions that made it into the adopted chain are no longer
	// pending. The rest stay in the pool for the next mining attempt.
	for _, block := range blocks {
		for _, tx := range block.Trans {
			s.mempool.Delete(tx)
		}
	}

	return nil
}
