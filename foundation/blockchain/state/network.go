package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tallyledger/tally/foundation/blockchain/database"
	"github.com/tallyledger/tally/foundation/blockchain/peer"
)

const baseURL = "http://%s/v1/node"

// ProposeBlock is the message sent between nodes to announce a new block.
// The host lets the receiver ask the sender for its full chain when the
// block shows the sender is ahead.
type ProposeBlock struct {
	Host  string             `json:"host"`
	Block database.BlockData `json:"block"`
}

// ProposeChain is the message sent between nodes to offer a whole chain
// for fork resolution.
type ProposeChain struct {
	Host   string               `json:"host"`
	Blocks []database.BlockData `json:"blocks"`
}

// =============================================================================

// NetSendBlockToPeers announces the block to the known peers, skipping any
// peer in the exclude list (usually the peer the block came from).
func (s *State) NetSendBlockToPeers(block database.Block, exclude ...peer.Peer) {
	s.evHandler("state: NetSendBlockToPeers: started: blk[%s]", block.Hash())
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	msg := ProposeBlock{
		Host:  s.host,
		Block: database.NewBlockData(block),
	}

	for _, pr := range s.RetrieveKnownPeers() {
		if excluded(pr, exclude) {
			continue
		}

		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))
		if err := send(http.MethodPost, url, msg, nil); err != nil {
			s.evHandler("state: NetSendBlockToPeers: WARNING: peer[%s]: %s", pr.Host, err)
		}
	}
}

// NetSendChainToPeers offers this node's whole chain to the known peers,
// skipping any peer in the exclude list.
func (s *State) NetSendChainToPeers(exclude ...peer.Peer) {
	s.evHandler("state: NetSendChainToPeers: started")
	defer s.evHandler("state: NetSendChainToPeers: completed")

	blocks := s.RetrieveChain()
	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	msg := ProposeChain{
		Host:   s.host,
		Blocks: blockData,
	}

	for _, pr := range s.RetrieveKnownPeers() {
		if excluded(pr, exclude) {
			continue
		}

		url := fmt.Sprintf("%s/chain/propose", fmt.Sprintf(baseURL, pr.Host))
		if err := send(http.MethodPost, url, msg, nil); err != nil {
			s.evHandler("state: NetSendChainToPeers: WARNING: peer[%s]: %s", pr.Host, err)
		}
	}
}

// NetSendTxToPeers shares a new transaction with the known peers.
func (s *State) NetSendTxToPeers(tx database.BlockTx) {
	s.evHandler("state: NetSendTxToPeers: started: tx[%s]", tx)
	defer s.evHandler("state: NetSendTxToPeers: completed")

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		if err := send(http.MethodPost, url, tx, nil); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: peer[%s]: %s", pr.Host, err)
		}
	}
}

// NetRequestPeerStatus asks a peer for its current tip and peer list.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := send(http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: latest-blknum[%d]: peer-list[%s]", pr, ps.LatestBlockNumber, ps.KnownPeers)

	return ps, nil
}

// NetRequestPeerMempool asks the peer for the transactions in its mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]database.BlockTx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var pool []database.BlockTx
	if err := send(http.MethodGet, url, nil, &pool); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(pool))

	return pool, nil
}

// NetRequestPeerChain asks a peer for its whole chain. Every block is
// audited against its stored hash as it is decoded, the remaining
// validation happens during fork resolution.
func (s *State) NetRequestPeerChain(pr peer.Peer) ([]database.Block, error) {
	s.evHandler("state: NetRequestPeerChain: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerChain: completed: %s", pr)

	url := fmt.Sprintf("%s/chain/list", fmt.Sprintf(baseURL, pr.Host))

	var blockData []database.BlockData
	if err := send(http.MethodGet, url, nil, &blockData); err != nil {
		return nil, err
	}

	blocks := make([]database.Block, len(blockData))
	for i, bd := range blockData {
		block, err := database.ToBlock(bd)
		if err != nil {
			return nil, err
		}
		blocks[i] = block
	}

	s.evHandler("state: NetRequestPeerChain: found blocks[%d]", len(blocks))

	return blocks, nil
}

// NetRequestAddPeer introduces this node to the specified peer.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	s.evHandler("state: NetRequestAddPeer: started: %s", pr)
	defer s.evHandler("state: NetRequestAddPeer: completed: %s", pr)

	url := fmt.Sprintf("%s/peer/add", fmt.Sprintf(baseURL, pr.Host))

	return send(http.MethodPost, url, peer.New(s.host), nil)
}

// =============================================================================

// excluded reports whether the peer is in the exclude list.
func excluded(pr peer.Peer, exclude []peer.Peer) bool {
	for _, ex := range exclude {
		if pr.Match(ex.Host) {
			return true
		}
	}
	return false
}

// send is a helper function to send an HTTP request to a node.
func send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	var client http.Client
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
