package state

import (
	"github.com/tallyledger/tally/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion
// into the chain. Valid transactions are shared with the known peers and a
// mining operation is signaled.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) error {
	s.evHandler("state: SubmitWalletTransaction: started: tx[%s]", signedTx)
	defer s.evHandler("state: SubmitWalletTransaction: completed")

	// The signature must verify and the from account must be able to cover
	// the amount against the current balances. Balances can change before
	// the transaction is mined, so this check runs again at mining time.
	if err := s.db.ValidateTransaction(signedTx); err != nil {
		return err
	}

	tx := database.NewBlockTx(signedTx)
	s.mempool.Upsert(tx)

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}

// ProcessPeerTransaction accepts a transaction gossiped by a peer. An
// invalid transaction is dropped without a response, a stale balance is not
// an offense worth reporting to the sender.
func (s *State) ProcessPeerTransaction(tx database.BlockTx) error {
	s.evHandler("state: ProcessPeerTransaction: started: tx[%s]", tx)
	defer s.evHandler("state: ProcessPeerTransaction: completed")

	if err := s.db.ValidateTransaction(tx.SignedTx); err != nil {
		return err
	}

	s.mempool.Upsert(tx)
	s.Worker.SignalStartMining()

	return nil
}
