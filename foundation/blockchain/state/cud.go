package state

import (
	"github.com/tallyledger/tally/foundation/blockchain/peer"
)

// AddKnownPeer provides the ability to add a new peer. It returns true when
// the peer wasn't already known.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer that has become
// unresponsive.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}
