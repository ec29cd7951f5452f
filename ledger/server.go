package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"minibtc/core"
	"minibtc/p2p"
)

// Server is a Ledger wired to a peer overlay: BROADCAST packets carry
// TRANSACT/SUBMIT_BLOCK gossip, PRIVATE packets carry the read-only queries
// a wallet makes (§4.4). It is the direct analogue of the teacher's
// FullNode, built on p2p.Node's callback slots instead of inheritance.
type Server struct {
	*Ledger
	node *p2p.Node
	log  *log.Logger
}

// NewServer builds a Server whose ledger starts with an empty chain and whose
// overlay is not yet listening — call Start to bind the socket.
func NewServer(cfg p2p.Config, difficulty int) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		Ledger: New(difficulty),
		node:   p2p.New(cfg),
		log:    logger,
	}
	s.node.OnBroadcast = s.handleBroadcast
	s.node.OnPrivate = s.handlePrivate
	return s
}

// Node exposes the underlying overlay so callers can Connect/Shutdown it,
// or so a miner can install its own OnTransact hook via s.Ledger.
func (s *Server) Node() *p2p.Node { return s.node }

// Start begins listening for peer connections.
func (s *Server) Start() error { return s.node.Start() }

// Shutdown stops listening and waits for in-flight handlers.
func (s *Server) Shutdown() error { return s.node.Shutdown() }

// Connect joins an existing network through a seed peer.
func (s *Server) Connect(host string, port int) error { return s.node.Connect(host, port) }

// BroadcastTransaction gossips tx to the network so every node buffers it
// as a mining candidate (§4.4 "TRANSACT").
func (s *Server) BroadcastTransaction(tx *core.Transaction) error {
	return s.node.Broadcast(transactBody{Request: RequestTransact, Transaction: *tx})
}

// BroadcastBlock gossips a freshly mined block for every node to adopt.
func (s *Server) BroadcastBlock(b *core.Block) error {
	return s.node.Broadcast(submitBlockBody{Request: RequestSubmitBlock, Block: *b})
}

func (s *Server) handleBroadcast(from p2p.Addr, id string, body json.RawMessage) {
	var hdr requestHeader
	if err := json.Unmarshal(body, &hdr); err != nil {
		s.log.Debug("malformed broadcast body", "err", err)
		return
	}

	switch hdr.Request {
	case RequestTransact:
		var msg transactBody
		if err := json.Unmarshal(body, &msg); err != nil {
			s.log.Debug("malformed TRANSACT", "err", err)
			return
		}
		if err := s.AddCandidate(&msg.Transaction); err != nil {
			s.log.Debug("rejecting gossiped transaction", "hash", msg.Transaction.Hash, "err", err)
		}
	case RequestSubmitBlock:
		var msg submitBlockBody
		if err := json.Unmarshal(body, &msg); err != nil {
			s.log.Debug("malformed SUBMIT_BLOCK", "err", err)
			return
		}
		if err := s.AddBlock(&msg.Block); err != nil {
			s.log.Debug("rejecting gossiped block", "index", msg.Block.Index, "err", err)
		} else {
			s.log.Info("accepted block", "index", msg.Block.Index, "from", from.Host)
		}
	default:
		s.log.Debug("unknown broadcast request", "request", hdr.Request)
	}
}

func (s *Server) handlePrivate(from p2p.Addr, body json.RawMessage) (interface{}, error) {
	var hdr requestHeader
	if err := json.Unmarshal(body, &hdr); err != nil {
		return errorReply{Error: "malformed request"}, nil
	}

	switch hdr.Request {
	case RequestGetBlocks:
		var msg getBlocksBody
		if err := json.Unmarshal(body, &msg); err != nil {
			return errorReply{Error: "malformed GET_BLOCKS"}, nil
		}
		blocks, err := s.BlocksFrom(msg.AfterHash)
		if err != nil {
			return errorReply{Error: err.Error()}, nil
		}
		return getBlocksReply{Blocks: blocks}, nil

	case RequestListBlocks:
		blocks := s.Blocks()
		summaries := make([]blockSummary, len(blocks))
		for i, b := range blocks {
			summaries[i] = blockSummary{Index: b.Index, Hash: b.Hash, Root: b.Root}
		}
		return listBlocksReply{Blocks: summaries}, nil

	case RequestGetBalance:
		var msg getBalanceBody
		if err := json.Unmarshal(body, &msg); err != nil {
			return errorReply{Error: "malformed GET_BALANCE"}, nil
		}
		return getBalanceReply{Address: msg.Address, UTXO: s.TransactionsFor(msg.Address)}, nil

	case RequestGetProof:
		var msg getProofBody
		if err := json.Unmarshal(body, &msg); err != nil {
			return errorReply{Error: "malformed GET_PROOF"}, nil
		}
		index, proof, err := s.GetProof(msg.TxHash)
		if err != nil {
			return errorReply{Error: err.Error()}, nil
		}
		return getProofReply{TxHash: msg.TxHash, Index: index, Proof: proof}, nil

	default:
		return errorReply{Error: fmt.Sprintf("unknown request %q", hdr.Request)}, nil
	}
}
