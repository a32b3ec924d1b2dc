package database_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tallyledger/tally/foundation/blockchain/database"
	"github.com/tallyledger/tally/foundation/blockchain/genesis"
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

var nop = func(v string, args ...any) {}

// =============================================================================

func Test_TransferScenario(t *testing.T) {
	t.Log("Given the need to apply a mined block against the balances.")
	{
		t.Logf("\tTest 0:\tWhen transferring 10 from an account holding 100.")
		{
			db, err := database.New(newGenesis(map[string]uint64{fromID: 100}), nop)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open database.", success)

			tx := sign(t, 10)

			if err := db.ValidateTransaction(tx.SignedTx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to validate the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to validate the transaction.", success)

			block := mine(t, db.LatestBlock(), []database.BlockTx{tx})

			if err := db.Write(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to write the block.", success)

			if h := db.Height(); h != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have chain height 1, got %d.", failed, h)
			}
			t.Logf("\t%s\tTest 0:\tShould have chain height 1.", success)

			checkBalance(t, db, fromID, 90)
			checkBalance(t, db, toID, 10)
		}
	}
}

func Test_InsufficientFunds(t *testing.T) {
	t.Log("Given the need to reject a transfer exceeding the balance.")
	{
		t.Logf("\tTest 0:\tWhen transferring 1000 from an account holding 100.")
		{
			db, err := database.New(newGenesis(map[string]uint64{fromID: 100}), nop)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open database.", success)

			tx := sign(t, 1000)

			err = db.ValidateTransaction(tx.SignedTx)
			if !errors.Is(err, database.ErrInsufficientFunds) {
				t.Fatalf("\t%s\tTest 0:\tShould get insufficient funds, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get insufficient funds.", success)

			// A block carrying the overdraft must not leave any trace.
			block := mine(t, db.LatestBlock(), []database.BlockTx{tx})

			if err := db.Write(block); !errors.Is(err, database.ErrInsufficientFunds) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to write the block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not be able to write the block.", success)

			if h := db.Height(); h != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould still have chain height 0, got %d.", failed, h)
			}
			t.Logf("\t%s\tTest 0:\tShould still have chain height 0.", success)

			checkBalance(t, db, fromID, 100)
		}
	}
}

func Test_BlockValidation(t *testing.T) {
	t.Log("Given the need to validate blocks before they extend the chain.")
	{
		db, err := database.New(newGenesis(map[string]uint64{fromID: 100}), nop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
		}

		tx := sign(t, 10)
		b1 := mine(t, db.LatestBlock(), []database.BlockTx{tx})

		t.Logf("\tTest 0:\tWhen the block number is past the next position.")
		{
			ahead := b1
			ahead.Header.Number = 3

			err := db.Write(ahead)
			if !errors.Is(err, database.ErrIndexMismatch) {
				t.Fatalf("\t%s\tTest 0:\tShould get an index mismatch, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get an index mismatch.", success)
		}

		t.Logf("\tTest 1:\tWhen the block hash does not meet the difficulty.")
		{
			unsolved := b1
			for strings.HasPrefix(unsolved.Hash(), "0x0") {
				unsolved.Header.Nonce++
			}

			err := db.Write(unsolved)
			if !errors.Is(err, database.ErrDifficultyNotMet) {
				t.Fatalf("\t%s\tTest 1:\tShould get difficulty not met, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get difficulty not met.", success)
		}

		t.Logf("\tTest 2:\tWhen the block does not link to the chain tip.")
		{
			if err := db.Write(b1); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to write a valid block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould be able to write a valid block.", success)

			fakeParent := b1
			fakeParent.Header.TimeStamp++
			orphan := mine(t, fakeParent, nil)

			err := db.Write(orphan)
			if !errors.Is(err, database.ErrBrokenLink) {
				t.Fatalf("\t%s\tTest 2:\tShould get a broken link, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get a broken link.", success)
		}

		t.Logf("\tTest 3:\tWhen the serialized block carries a bad hash.")
		{
			blockData := database.NewBlockData(b1)
			blockData.Hash = "0x0badbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbad"

			_, err := database.ToBlock(blockData)
			if !errors.Is(err, database.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest 3:\tShould get a hash mismatch, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould get a hash mismatch.", success)
		}

		t.Logf("\tTest 4:\tWhen the serialized block carries a tampered payload.")
		{
			blockData := database.NewBlockData(b1)
			blockData.Trans[0].Amount = 99

			_, err := database.ToBlock(blockData)
			if !errors.Is(err, database.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest 4:\tShould get a hash mismatch, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould get a hash mismatch.", success)
		}
	}
}

func Test_DifficultyBinding(t *testing.T) {
	t.Log("Given the need to bind the work proof to the network difficulty.")
	{
		db, err := database.New(newGenesis(map[string]uint64{fromID: 100}), nop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
		}

		// forge builds a block that declares its own difficulty and does no
		// mining at all.
		forge := func(parent database.Block, difficulty uint16) database.Block {
			return database.Block{
				Header: database.BlockHeader{
					Number:        parent.Header.Number + 1,
					TimeStamp:     uint64(time.Now().UTC().Unix()) + (parent.Header.Number+1)*10,
					PrevBlockHash: parent.Hash(),
					Difficulty:    difficulty,
					TransRoot:     database.PayloadHash(nil),
				},
			}
		}

		t.Logf("\tTest 0:\tWhen a block declares difficulty zero.")
		{
			err := db.Write(forge(db.LatestBlock(), 0))
			if !errors.Is(err, database.ErrDifficultyNotMet) {
				t.Fatalf("\t%s\tTest 0:\tShould get difficulty not met, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get difficulty not met.", success)
		}

		t.Logf("\tTest 1:\tWhen a whole chain is forged at difficulty zero.")
		{
			f1 := forge(database.Block{}, 0)
			f2 := forge(f1, 0)

			err := db.Replace([]database.Block{f1, f2})
			if !errors.Is(err, database.ErrDifficultyNotMet) {
				t.Fatalf("\t%s\tTest 1:\tShould get difficulty not met, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get difficulty not met.", success)

			if h := db.Height(); h != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould not adopt the forged chain, got height %d.", failed, h)
			}
			t.Logf("\t%s\tTest 1:\tShould not adopt the forged chain.", success)
		}

		t.Logf("\tTest 2:\tWhen a block declares an absurd difficulty.")
		{
			err := db.Write(forge(db.LatestBlock(), 100))
			if !errors.Is(err, database.ErrDifficultyNotMet) {
				t.Fatalf("\t%s\tTest 2:\tShould get difficulty not met, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get difficulty not met.", success)
		}
	}
}

func Test_ForkResolution(t *testing.T) {
	t.Log("Given the need to resolve competing chains by strict length.")
	{
		gen := newGenesis(map[string]uint64{fromID: 100})

		db, err := database.New(gen, nop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
		}

		// Local chain of two empty blocks.
		b1 := mine(t, db.LatestBlock(), nil)
		if err := db.Write(b1); err != nil {
			t.Fatalf("\t%s\tShould be able to write block 1: %v", failed, err)
		}
		b2 := mine(t, b1, nil)
		if err := db.Write(b2); err != nil {
			t.Fatalf("\t%s\tShould be able to write block 2: %v", failed, err)
		}

		// Competing chain of three blocks built from the same genesis. It
		// carries a transfer so the replay is visible in the balances.
		tx := sign(t, 25)
		c1 := mine(t, database.Block{}, []database.BlockTx{tx})
		c2 := mine(t, c1, nil)
		c3 := mine(t, c2, nil)
		candidate := []database.Block{c1, c2, c3}

		t.Logf("\tTest 0:\tWhen the candidate chain has the same length.")
		{
			err := db.Replace(candidate[:2])
			if !errors.Is(err, database.ErrChainNotLonger) {
				t.Fatalf("\t%s\tTest 0:\tShould reject an equal length chain, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject an equal length chain.", success)

			if h := db.Height(); h != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the local chain, got height %d.", failed, h)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the local chain.", success)
		}

		t.Logf("\tTest 1:\tWhen the candidate chain is strictly longer.")
		{
			if err := db.Replace(candidate); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould adopt the longer chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould adopt the longer chain.", success)

			if h := db.Height(); h != 3 {
				t.Fatalf("\t%s\tTest 1:\tShould have chain height 3, got %d.", failed, h)
			}
			t.Logf("\t%s\tTest 1:\tShould have chain height 3.", success)

			if db.LatestBlock().Hash() != c3.Hash() {
				t.Fatalf("\t%s\tTest 1:\tShould have the candidate tip.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould have the candidate tip.", success)

			// The balances come from replaying the adopted chain, not from
			// patching the old ones.
			checkBalance(t, db, fromID, 75)
			checkBalance(t, db, toID, 25)
		}

		t.Logf("\tTest 2:\tWhen the candidate chain has a tampered block.")
		{
			bad := mine(t, c3, nil)
			bad.Header.PrevBlockHash = b1.Hash()
			err := db.Replace([]database.Block{c1, c2, c3, bad})
			if err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a chain that does not validate.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a chain that does not validate.", success)

			if h := db.Height(); h != 3 {
				t.Fatalf("\t%s\tTest 2:\tShould keep the adopted chain, got height %d.", failed, h)
			}
			t.Logf("\t%s\tTest 2:\tShould keep the adopted chain.", success)
		}
	}
}

func Test_SignedTxValidation(t *testing.T) {
	t.Log("Given the need to validate signed transactions.")
	{
		pk, err := crypto.HexToECDSA(pkHexKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to parse the private key: %v", failed, err)
		}

		t.Logf("\tTest 0:\tWhen the transaction is properly signed.")
		{
			tx, err := database.NewTx(1, fromID, toID, 10)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct a transaction: %v", failed, err)
			}

			signedTx, err := tx.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the transaction: %v", failed, err)
			}

			if err := signedTx.Validate(1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to validate the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to validate the transaction.", success)

			if err := signedTx.Validate(2); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject the wrong chain id.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the wrong chain id.", success)
		}

		t.Logf("\tTest 1:\tWhen the from account does not match the signer.")
		{
			tx, err := database.NewTx(1, toID, fromID, 10)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to construct a transaction: %v", failed, err)
			}

			signedTx, err := tx.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to sign the transaction: %v", failed, err)
			}

			err = signedTx.Validate(1)
			if !errors.Is(err, database.ErrInvalidSignature) {
				t.Fatalf("\t%s\tTest 1:\tShould get an invalid signature, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get an invalid signature.", success)
		}

		t.Logf("\tTest 2:\tWhen the transaction data is malformed.")
		{
			if _, err := database.NewTx(1, fromID, toID, 0); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a zero amount.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a zero amount.", success)

			if _, err := database.NewTx(1, "bogus", toID, 10); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a malformed account.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a malformed account.", success)

			tx, err := database.NewTx(1, fromID, fromID, 10)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to construct a transaction: %v", failed, err)
			}
			signedTx, err := tx.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to sign the transaction: %v", failed, err)
			}
			if err := signedTx.Validate(1); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a self transfer.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a self transfer.", success)
		}
	}
}

// =============================================================================

func newGenesis(balances map[string]uint64) genesis.Genesis {
	return genesis.Genesis{
		Date:          time.Now().UTC(),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    1,
		Balances:      balances,
	}
}

func sign(t *testing.T, amount uint64) database.BlockTx {
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

	return database.NewBlockTx(signedTx)
}

// mine builds a block on top of the specified parent and solves the work
// puzzle by hand so the block timestamps stay under the test's control.
func mine(t *testing.T, parent database.Block, trans []database.BlockTx) database.Block {
	t.Helper()

	block := database.Block{
		Header: database.BlockHeader{
			Number:        parent.Header.Number + 1,
			TimeStamp:     parent.Header.TimeStamp + 10,
			PrevBlockHash: parent.Hash(),
			Difficulty:    1,
			TransRoot:     database.PayloadHash(trans),
		},
		Trans: trans,
	}
	if block.Header.Number == 1 {
		block.Header.TimeStamp = uint64(time.Now().UTC().Unix())
	}

	for !strings.HasPrefix(block.Hash(), "0x0") {
		block.Header.Nonce++
	}

	return block
}

func checkBalance(t *testing.T, db *database.Database, accountID string, want uint64) {
	t.Helper()

	account, err := db.Query(database.AccountID(accountID))
	if err != nil {
		t.Fatalf("\t%s\tShould have account %s in balances: %v", failed, accountID, err)
	}

	if account.Balance != want {
		t.Logf("\t%s\tgot: %d", failed, account.Balance)
		t.Logf("\t%s\texp: %d", failed, want)
		t.Fatalf("\t%s\tShould have the correct balance for %s.", failed, accountID)
	}
	t.Logf("\t%s\tShould have the correct balance for %s.", success, accountID)
}
