package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tallyledger/tally/foundation/blockchain/database"
	"github.com/tallyledger/tally/foundation/blockchain/genesis"
	"github.com/tallyledger/tally/foundation/blockchain/peer"
	"github.com/tallyledger/tally/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	fromID   = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	toID     = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

// stubWorker satisfies the state.Worker interface so the state api can be
// exercised without goroutines or network traffic.
type stubWorker struct {
	startMining int
	shareTx     int
}

func (w *stubWorker) Shutdown()                      {}
func (w *stubWorker) Sync()                          {}
func (w *stubWorker) SignalStartMining()             { w.startMining++ }
func (w *stubWorker) SignalCancelMining() func()     { return func() {} }
func (w *stubWorker) SignalShareTx(database.BlockTx) { w.shareTx++ }

func Test_SubmitAndMine(t *testing.T) {
	t.Log("Given the need to accept a transaction and mine it into a block.")
	{
		t.Logf("\tTest 0:\tWhen submitting a wallet transaction.")
		{
			st, w := newState(t)

			signedTx := sign(t, 10)

			if err := st.SubmitWalletTransaction(signedTx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to submit the transaction.", success)

			if w.shareTx != 1 || w.startMining != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould signal sharing and mining.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould signal sharing and mining.", success)

			if st.QueryMempoolLength() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have the transaction in the mempool.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have the transaction in the mempool.", success)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			block, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine a block.", success)

			if block.Header.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have block number 1, got %d.", failed, block.Header.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould have block number 1.", success)

			if st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have an empty mempool after mining.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have an empty mempool after mining.", success)

			account, err := st.QueryAccount(toID)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould have the receiving account: %v", failed, err)
			}
			if account.Balance != 10 {
				t.Fatalf("\t%s\tTest 0:\tShould have balance 10, got %d.", failed, account.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould have balance 10.", success)
		}

		t.Logf("\tTest 1:\tWhen mining with an empty mempool.")
		{
			st, _ := newState(t)

			_, err := st.MineNewBlock(context.Background())
			if !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse to mine an empty block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse to mine an empty block.", success)
		}
	}
}

func Test_JointOverdraw(t *testing.T) {
	t.Log("Given the need to mine transactions that jointly overdraw an account.")
	{
		t.Logf("\tTest 0:\tWhen two admitted transactions exceed the balance together.")
		{
			st, _ := newState(t)

			// Each transaction alone is covered by the balance of 100, so
			// both clear admission into the mempool.
			if err := st.SubmitWalletTransaction(sign(t, 80)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit the first transaction: %v", failed, err)
			}
			if err := st.SubmitWalletTransaction(sign(t, 70)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit the second transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to submit both transactions.", success)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			// Mining applies whichever transaction still fits and evicts the
			// other instead of burning work on a payload that can't apply.
			block, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine a block.", success)

			if len(block.Trans) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have one transaction in the block, got %d.", failed, len(block.Trans))
			}
			t.Logf("\t%s\tTest 0:\tShould have one transaction in the block.", success)

			if st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have evicted the overdrawing transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have evicted the overdrawing transaction.", success)

			amount := block.Trans[0].Amount
			account, err := st.QueryAccount(fromID)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould have the sending account: %v", failed, err)
			}
			if account.Balance != 100-amount {
				t.Fatalf("\t%s\tTest 0:\tShould have balance %d, got %d.", failed, 100-amount, account.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould have the correct remaining balance.", success)

			// The next mining attempt finds nothing, the pool is clean.
			if _, err := st.MineNewBlock(ctx); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest 0:\tShould have nothing left to mine, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould have nothing left to mine.", success)
		}
	}
}

func Test_SeenDigests(t *testing.T) {
	t.Log("Given the need to track gossip digests without poisoning retries.")
	{
		t.Logf("\tTest 0:\tWhen checking a digest before acceptance.")
		{
			st, _ := newState(t)

			digest := "0x00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa"

			// Checking must not record, a rejected block has to stay
			// processable when it is re-announced.
			if st.Seen(digest) {
				t.Fatalf("\t%s\tTest 0:\tShould not have seen a new digest.", failed)
			}
			if st.Seen(digest) {
				t.Fatalf("\t%s\tTest 0:\tShould still not have seen the digest.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not record a digest on check.", success)

			if !st.MarkSeen(digest) {
				t.Fatalf("\t%s\tTest 0:\tShould record a new digest.", failed)
			}
			if !st.Seen(digest) {
				t.Fatalf("\t%s\tTest 0:\tShould have seen a marked digest.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould record a digest on mark.", success)
		}
	}
}

func Test_ProcessPeerBlock(t *testing.T) {
	t.Log("Given the need to process blocks received from peers.")
	{
		t.Logf("\tTest 0:\tWhen receiving the block a peer mined.")
		{
			minerState, _ := newState(t)
			receiverState, _ := newState(t)

			if err := minerState.SubmitWalletTransaction(sign(t, 10)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit the transaction: %v", failed, err)
			}

			block, err := minerState.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine a block.", success)

			if err := receiverState.ProcessPeerBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to process the peer block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to process the peer block.", success)

			if receiverState.RetrieveLatestBlock().Hash() != block.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould have the peer block as the tip.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have the peer block as the tip.", success)

			// A second delivery of the same block is stale and rejected.
			err = receiverState.ProcessPeerBlock(block)
			if err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a stale block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a stale block.", success)
		}
	}
}

// =============================================================================

func newState(t *testing.T) (*state.State, *stubWorker) {
	t.Helper()

	gen := genesis.Genesis{
		Date:          time.Now().UTC(),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    1,
		Balances:      map[string]uint64{fromID: 100},
	}

	st, err := state.New(state.Config{
		Host:       "localhost:9080",
		Genesis:    gen,
		KnownPeers: peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("unable to construct state: %s", err)
	}

	w := stubWorker{}
	st.Worker = &w

	return st, &w
}

func sign(t *testing.T, amount uint64) database.SignedTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("unable to parse private key: %s", err)
	}

	tx, err := database.NewTx(1, fromID, toID, amount)
	if err != nil {
		t.Fatalf("unable to construct transaction: %s", err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("unable to sign transaction: %s", err)
	}

	return signedTx
}
