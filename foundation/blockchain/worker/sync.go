package worker

// Sync updates the peer list, mempool and blocks from the known peers. It
// runs once at startup before any other operation begins.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)

		// Retrieve the pending transactions from the peer.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			w.evHandler("worker: sync: retrievePeerMempool: %s: add tx: %s", pr.Host, tx)
			if err := w.state.ProcessPeerTransaction(tx); err != nil {
				w.evHandler("worker: sync: retrievePeerMempool: %s: tx dropped: %s", pr.Host, err)
			}
		}

		// If this peer has a longer chain than we do, adopt it.
		if peerStatus.LatestBlockNumber > w.state.RetrieveLatestBlock().Header.Number {
			w.evHandler("worker: sync: retrievePeerChain: %s: latestBlockNumber[%d]", pr.Host, peerStatus.LatestBlockNumber)

			blocks, err := w.state.NetRequestPeerChain(pr)
			if err != nil {
				w.evHandler("worker: sync: retrievePeerChain: %s: ERROR: %s", pr.Host, err)
				continue
			}

			if err := w.state.ProcessPeerChain(blocks); err != nil {
				w.evHandler("worker: sync: retrievePeerChain: %s: chain rejected: %s", pr.Host, err)
			}
		}
	}
}
