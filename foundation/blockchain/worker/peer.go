package worker

import (
	"github.com/tallyledger/tally/foundation/blockchain/peer"
)

// peerOperations handles the refreshing of the peer list and catching up on
// blocks this node missed through gossip.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list and catches up on missed blocks.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer. A peer that won't answer is
		// dropped from the set until it introduces itself again.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: runPeersOperation: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			w.state.RemoveKnownPeer(pr)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)

		// A peer further ahead than us means we missed gossip. Ask for
		// its chain and run fork resolution.
		if peerStatus.LatestBlockNumber > w.state.RetrieveLatestBlock().Header.Number {
			blocks, err := w.state.NetRequestPeerChain(pr)
			if err != nil {
				w.evHandler("worker: runPeersOperation: retrievePeerChain: %s: ERROR: %s", pr.Host, err)
				continue
			}

			if err := w.state.ProcessPeerChain(blocks); err != nil {
				w.evHandler("worker: runPeersOperation: retrievePeerChain: %s: chain rejected: %s", pr.Host, err)
			}
		}
	}

	// Let the latest peer list know this node is available.
	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetRequestAddPeer(pr); err != nil {
			w.evHandler("worker: runPeersOperation: addPeer: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// addNewPeers takes the list of known peers and makes sure they are included
// in this node's list of known peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	w.evHandler("worker: addNewPeers: started")
	defer w.evHandler("worker: addNewPeers: completed")

	for _, pr := range knownPeers {

		// Don't add this running node to the known peer list.
		if pr.Match(w.state.RetrieveHost()) {
			continue
		}

		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: adding peer-node %s", pr)
		}
	}
}
