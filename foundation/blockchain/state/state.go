// Package state is the core API for the ledger and implements all the
// business rules and processing.
package state

import (
	"sync"

	"github.com/tallyledger/tally/foundation/blockchain/database"
	"github.com/tallyledger/tally/foundation/blockchain/genesis"
	"github.com/tallyledger/tally/foundation/blockchain/mempool"
	"github.com/tallyledger/tally/foundation/blockchain/peer"
)

// The number of gossip digests remembered for deduplication. Old digests
// are evicted once a message can no longer plausibly still be in flight.
const seenDigestLimit = 10_000

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(blockTx database.BlockTx)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Host       string
	Genesis    genesis.Genesis
	KnownPeers *peer.PeerSet
	EvHandler  EventHandler
}

// State manages the blockchain database. All chain and ledger mutation is
// serialized through this value, no two blocks are validated and applied
// concurrently against the same chain state.
type State struct {
	mu sync.Mutex

	host      string
	evHandler EventHandler

	genesis    genesis.Genesis
	knownPeers *peer.PeerSet
	seen       *peer.DigestSet
	mempool    *mempool.Mempool
	db         *database.Database

	Worker Worker
}

// New constructs a new blockchain node for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Access the database for the blockchain. A fresh node starts with the
	// genesis-only chain and the genesis balances.
	db, err := database.New(cfg.Genesis, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		host:      cfg.Host,
		evHandler: ev,

		genesis:    cfg.Genesis,
		knownPeers: cfg.KnownPeers,
		seen:       peer.NewDigestSet(seenDigestLimit),
		mempool:    mempool.New(),
		db:         db,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// MarkSeen records a gossip digest. It returns true when the digest is new
// to this node. Only accepted messages are marked, a message rejected for a
// transient reason can be re-processed when it is legitimately re-announced.
func (s *State) MarkSeen(digest string) bool {
	return s.seen.Add(digest)
}

// Seen reports whether a gossip digest has already been processed.
func (s *State) Seen(digest string) bool {
	return s.seen.Has(digest)
}
