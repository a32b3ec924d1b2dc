package mempool_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tallyledger/tally/foundation/blockchain/database"
	"github.com/tallyledger/tally/foundation/blockchain/mempool"
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

// sign constructs a block transaction with a fixed timestamp so the tests
// control the arrival order.
func sign(amount uint64, ts uint64) (database.BlockTx, error) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		return database.BlockTx{}, err
	}

	tx, err := database.NewTx(1, fromID, toID, amount)
	if err != nil {
		return database.BlockTx{}, err
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		return database.BlockTx{}, err
	}

	return database.BlockTx{SignedTx: signedTx, TimeStamp: ts}, nil
}

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate the mempool api.")
	{
		t.Logf("\tTest 0:\tWhen handling a set of transactions.")
		{
			mp := mempool.New()

			amounts := []uint64{30, 10, 20}
			txs := make([]database.BlockTx, len(amounts))
			for i, amount := range amounts {
				tx, err := sign(amount, uint64(100+i))
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
				}
				txs[i] = tx

				mp.Upsert(tx)
				t.Logf("\t%s\tTest 0:\tShould be able to add new transaction: %d", success, amount)
			}

			if c := mp.Count(); c != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould have 3 transactions in the pool, got %d.", failed, c)
			}
			t.Logf("\t%s\tTest 0:\tShould have 3 transactions in the pool.", success)

			// The same transaction gossiped again must not take a second slot.
			mp.Upsert(txs[0])
			if c := mp.Count(); c != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould still have 3 transactions in the pool, got %d.", failed, c)
			}
			t.Logf("\t%s\tTest 0:\tShould still have 3 transactions in the pool.", success)

			best := mp.PickBest(2)
			if len(best) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould pick 2 transactions, got %d.", failed, len(best))
			}
			if best[0].Amount != 30 || best[1].Amount != 10 {
				t.Logf("\t%s\tTest 0:\tgot: %d, %d", failed, best[0].Amount, best[1].Amount)
				t.Logf("\t%s\tTest 0:\texp: 30, 10", failed)
				t.Fatalf("\t%s\tTest 0:\tShould pick the oldest transactions first.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould pick the oldest transactions first.", success)

			all := mp.PickBest(-1)
			if len(all) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould pick all transactions, got %d.", failed, len(all))
			}
			t.Logf("\t%s\tTest 0:\tShould pick all transactions.", success)

			mp.Delete(txs[1])
			if c := mp.Count(); c != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould be able to remove a transaction, got %d.", failed, c)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to remove a transaction.", success)

			mp.Truncate()
			if c := mp.Count(); c != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould be able to truncate the mempool, got %d.", failed, c)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to truncate the mempool.", success)
		}
	}
}
