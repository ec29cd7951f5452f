package ledger

import "minibtc/core"

// Wire body shapes for the BROADCAST and PRIVATE requests a ledger server
// understands (§4.4). BROADCAST bodies are fire-and-forget gossip;
// PRIVATE bodies get a synchronous reply over the same connection.

const (
	RequestTransact    = "TRANSACT"
	RequestSubmitBlock = "SUBMIT_BLOCK"

	RequestGetBlocks  = "GET_BLOCKS"
	RequestListBlocks = "LIST_BLOCKS"
	RequestGetBalance = "GET_BALANCE"
	RequestGetProof   = "GET_PROOF"
)

// transactBody carries a newly created transaction for the network to buffer.
type transactBody struct {
	Request     string          `json:"request"`
	Transaction core.Transaction `json:"transaction"`
}

// submitBlockBody carries a freshly mined block for the network to adopt.
type submitBlockBody struct {
	Request string     `json:"request"`
	Block   core.Block `json:"block"`
}

// getBlocksBody asks for every block mined after AfterHash (empty for the
// whole chain).
type getBlocksBody struct {
	Request   string `json:"request"`
	AfterHash string `json:"afterHash"`
}

type getBlocksReply struct {
	Blocks []core.Block `json:"blocks"`
}

// listBlocksBody asks for a lightweight summary of the chain (index, hash
// and Merkle root per block) — cheaper than GET_BLOCKS for a wallet just
// checking height.
type listBlocksBody struct {
	Request string `json:"request"`
}

type blockSummary struct {
	Index int64   `json:"index"`
	Hash  *string `json:"hash"`
	Root  string  `json:"root"`
}

type listBlocksReply struct {
	Blocks []blockSummary `json:"blocks"`
}

type getBalanceBody struct {
	Request string `json:"request"`
	Address string `json:"address"`
}

// getBalanceReply carries the address's UTXO set as full transactions
// (§3's UTXO index is a mapping from address to a set of transactions, not
// flattened outpoints) — a wallet sums the matching output of each itself
// and already has everything it needs to sign a later spend from the same
// set, with no separate transaction fetch.
type getBalanceReply struct {
	Address string             `json:"address"`
	UTXO    []core.Transaction `json:"utxo"`
}

type getProofBody struct {
	Request string `json:"request"`
	TxHash  string `json:"txHash"`
}

// getProofReply carries only the sibling hashes and the block they belong
// to. It does not carry that block's Merkle root: a wallet verifies against
// the root in its own locally synced header, never one supplied alongside
// the proof by the same node that is being asked to prove something.
type getProofReply struct {
	TxHash string   `json:"txHash"`
	Index  int64    `json:"index"`
	Proof  []string `json:"proof"`
}

// errorReply is sent back for a PRIVATE request that fails validation, so
// the caller gets a structured reason instead of a dropped connection.
type errorReply struct {
	Error string `json:"error"`
}

// requestHeader peeks at a raw body's "request" discriminator without
// committing to a concrete shape — every wire body above embeds it.
type requestHeader struct {
	Request string `json:"request"`
}
