package database

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/tallyledger/tally/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block. The
// field order is fixed, this struct is the canonical encoding that gets
// hashed for the proof of work.
type BlockHeader struct {
	Number        uint64 `json:"number"`          // Block number in the chain, 0 is the genesis block.
	TimeStamp     uint64 `json:"timestamp"`       // Time the block was mined, strictly after the parent.
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
	Difficulty    uint16 `json:"difficulty"`      // Number of leading 0's needed to solve the hash solution.
	TransRoot     string `json:"trans_root"`      // Digest over the ordered transaction payload.
}

// Block represents a group of transactions bundled together.
type Block struct {
	Header BlockHeader
	Trans  []BlockTx
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Difficulty uint16
	PrevBlock  Block
	Trans      []BlockTx
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The ctx allows the search to be
// cancelled when a competing block or chain arrives.
func POW(ctx context.Context, args POWArgs) (Block, error) {

	// When mining the first block, the previous block's hash will be zero.
	prevBlockHash := signature.ZeroHash
	if args.PrevBlock.Header.Number > 0 {
		prevBlockHash = args.PrevBlock.Hash()
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			PrevBlockHash: prevBlockHash,
			Nonce:         0, // Will be identified by the POW algorithm.
			Difficulty:    args.Difficulty,
			TransRoot:     PayloadHash(args.Trans),
		},
		Trans: args.Trans,
	}

	// Perform the proof of work mining operation.
	if err := nb.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	for _, tx := range b.Trans {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	// Loop until we find a solution or we are told to stop because another
	// node found one first.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Were we cancelled by the arrival of a competing block.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block. The digest only covers the
// header since the header already commits to the payload through the
// transaction root.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	return signature.Hash(b.Header)
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain after the specified previous block. The difficulty is the
// configured network difficulty, the block's declared difficulty must match
// it or the proof of work proves nothing.
func (b Block) ValidateBlock(previousBlock Block, difficulty uint16, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: blk[%d]: check: block number is the next number", b.Header.Number)

	// A block numbered past the next position means the sender's chain is
	// ahead of ours. Report the index mismatch before the linkage check so
	// the caller can tell "peer is ahead" apart from a broken chain.
	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number > nextNumber {
		return fmt.Errorf("%w: got %d, exp %d", ErrIndexMismatch, b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: blk[%d]: check: block difficulty is the network difficulty", b.Header.Number)

	if b.Header.Difficulty != difficulty {
		return fmt.Errorf("%w: block difficulty %d, network difficulty %d", ErrDifficultyNotMet, b.Header.Difficulty, difficulty)
	}

	evHandler("database: ValidateBlock: blk[%d]: check: block hash has been solved", b.Header.Number)

	if !isHashSolved(b.Header.Difficulty, b.Hash()) {
		return fmt.Errorf("%w: %s", ErrDifficultyNotMet, b.Hash())
	}

	evHandler("database: ValidateBlock: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("%w: got %s, exp %s", ErrBrokenLink, b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if b.Header.Number != nextNumber {
		return fmt.Errorf("%w: got %d, exp %d", ErrIndexMismatch, b.Header.Number, nextNumber)
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

		parentTime := time.Unix(int64(previousBlock.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		if !blockTime.After(parentTime) {
			return fmt.Errorf("block timestamp is before parent block, parent %s, block %s", parentTime, blockTime)
		}
	}

	return nil
}

// PayloadHash returns the digest over the ordered transaction payload.
func PayloadHash(trans []BlockTx) string {
	if len(trans) == 0 {
		trans = []BlockTx{}
	}
	return signature.Hash(trans)
}

// isHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0's.
func isHashSolved(difficulty uint16, hash string) bool {
	const match = "0x00000000000000000"

	if int(difficulty) > len(match)-2 {
		return false
	}

	if len(hash) != 66 {
		return false
	}

	return strings.HasPrefix(hash, match[:2+difficulty])
}

// =============================================================================

// BlockData represents what is serialized over the wire and to disk. It
// carries the block's stored hash so receivers can audit the block before
// any other processing.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans,
	}

	return blockData
}

// ToBlock converts a BlockData into a Block. The stored hash must be the
// recomputed digest of the other fields, a block failing that audit is
// rejected before any other check.
func ToBlock(blockData BlockData) (Block, error) {
	nb := Block{
		Header: blockData.Header,
		Trans:  blockData.Trans,
	}

	if blockData.Header.TransRoot != PayloadHash(blockData.Trans) {
		return Block{}, fmt.Errorf("%w: payload digest doesn't match trans root", ErrHashMismatch)
	}

	if blockData.Hash != nb.Hash() {
		return Block{}, fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, blockData.Hash, nb.Hash())
	}

	return nb, nil
}
