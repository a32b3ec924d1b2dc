// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	v1 "github.com/tallyledger/tally/business/web/v1"
	"github.com/tallyledger/tally/foundation/blockchain/database"
	"github.com/tallyledger/tally/foundation/blockchain/peer"
	"github.com/tallyledger/tally/foundation/blockchain/state"
	"github.com/tallyledger/tally/foundation/nameservice"
	"github.com/tallyledger/tally/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.RetrieveLatestBlock()

	status := peer.PeerStatus{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		KnownPeers:        h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Chain returns the mined blocks of the local chain so a peer can run
// fork resolution against it.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.RetrieveChain()

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// ProposeBlock takes a block received from a peer, validates it and if
// that passes, adds the block to the local blockchain and forwards the
// announcement to the remaining peers.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var msg state.ProposeBlock
	if err := web.Decode(r, &msg); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	// A block announcement travels the network along many paths. An arrival
	// this node already accepted is acknowledged and dropped. The digest is
	// marked only on acceptance so a block rejected for a transient reason
	// can be re-processed when it is re-announced.
	if h.State.Seen(msg.Block.Hash) {
		resp := struct {
			Status string `json:"status"`
		}{
			Status: "already seen",
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}

	block, err := database.ToBlock(msg.Block)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("unable to decode block: %w", err), http.StatusBadRequest)
	}

	sender := peer.New(msg.Host)

	if err := h.State.ProcessPeerBlock(block); err != nil {

		// A block numbered past the next slot means the sender knows a
		// longer chain than ours. Pull its whole chain and run fork
		// resolution instead of rejecting the block.
		latestNumber := h.State.RetrieveLatestBlock().Header.Number
		if errors.Is(err, database.ErrIndexMismatch) && block.Header.Number > latestNumber+1 {
			if err := h.catchUp(sender); err != nil {
				return v1.NewRequestError(err, http.StatusNotAcceptable)
			}
			h.State.MarkSeen(msg.Block.Hash)

			resp := struct {
				Status string `json:"status"`
			}{
				Status: "chain adopted",
			}
			return web.Respond(ctx, w, resp, http.StatusOK)
		}

		return v1.NewRequestError(errors.New("block not accepted"), http.StatusNotAcceptable)
	}

	// Keep the announcement moving, minus the peer it came from.
	h.State.MarkSeen(msg.Block.Hash)
	h.State.NetSendBlockToPeers(block, sender)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeChain takes a whole chain received from a peer and runs fork
// resolution against it. The chain is adopted only when it is strictly
// longer than the local chain and every block validates.
func (h Handlers) ProposeChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var msg state.ProposeChain
	if err := web.Decode(r, &msg); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	blocks := make([]database.Block, len(msg.Blocks))
	for i, blockData := range msg.Blocks {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return v1.NewRequestError(fmt.Errorf("unable to decode block: %w", err), http.StatusBadRequest)
		}
		blocks[i] = block
	}

	if err := h.State.ProcessPeerChain(blocks); err != nil {

		// A chain that is not strictly longer loses to the incumbent.
		// That is the rule working, not a protocol offense.
		if errors.Is(err, database.ErrChainNotLonger) {
			resp := struct {
				Status string `json:"status"`
			}{
				Status: "chain not adopted",
			}
			return web.Respond(ctx, w, resp, http.StatusOK)
		}

		return v1.NewRequestError(errors.New("chain not accepted"), http.StatusNotAcceptable)
	}

	// The adopted tip is news to everyone but the peer who sent it.
	latestBlock := h.State.RetrieveLatestBlock()
	h.State.MarkSeen(latestBlock.Hash())
	h.State.NetSendBlockToPeers(latestBlock, peer.New(msg.Host))

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "chain adopted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitNodeTransaction adds a transaction gossiped by a peer to the
// mempool. An invalid transaction is dropped without complaint since the
// sender may simply hold a different view of the balances.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.BlockTx
	if err := web.Decode(r, &tx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add peer tran", "traceid", v.TraceID, "tx", tx, "to", tx.ToID, "amount", tx.Amount)

	status := "transaction added to mempool"
	if err := h.State.ProcessPeerTransaction(tx); err != nil {
		h.Log.Infow("add peer tran", "traceid", v.TraceID, "tx", tx, "DROPPED", err)
		status = "transaction dropped"
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: status,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// AddPeer adds the calling node to the known peer list.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "peer already known",
	}
	if h.State.AddKnownPeer(pr) {
		resp.Status = "peer added"
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// catchUp pulls the whole chain from the specified peer and hands it to
// fork resolution.
func (h Handlers) catchUp(pr peer.Peer) error {
	blocks, err := h.State.NetRequestPeerChain(pr)
	if err != nil {
		return err
	}

	return h.State.ProcessPeerChain(blocks)
}
