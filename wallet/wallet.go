// Package wallet implements the lightweight client of §4.6: it holds one
// keypair, talks to a full node over the peer overlay for balance and
// history queries, and assembles and signs its own transactions rather
// than trusting a full node to do it. It keeps no chain or UTXO state of
// its own beyond what it has just fetched.
package wallet

import (
	"crypto/dsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"minibtc/core"
	"minibtc/ledger"
	"minibtc/merkle"
	"minibtc/p2p"
)

// keyFilePerm restricts the on-disk private key to the owning user, the
// only state a wallet persists (§6 "Persisted state").
const keyFilePerm = 0o600

// blockHeader is a wallet's local, trusted record of a synced block: the
// transaction list is elided, but the Merkle root is kept so a later proof
// can be checked against a root the wallet obtained itself rather than one
// the node supplying the proof also supplied (§3 "Wallet state").
type blockHeader struct {
	Hash *string
	Root string
}

// proofRecord is a Merkle inclusion proof received for a txid, cached until
// VerifyProof checks it against the matching locally-trusted header.
type proofRecord struct {
	Index int64
	Proof []string
}

// Wallet is a peer-overlay participant that never mines and never keeps a
// ledger of its own — it is itself a p2p.Node so it can gossip TRANSACT and
// be reached for relay, but every balance/history question is answered by
// asking a remote full node.
type Wallet struct {
	node *p2p.Node
	priv *dsa.PrivateKey
	pub  *dsa.PublicKey

	address       string
	encodedPubKey string
	lock          string

	remoteHost string
	remotePort int

	mu      sync.Mutex
	utxo    []core.Transaction // cached transactions with an output paying this wallet
	headers []blockHeader      // local trusted header cache, index i holds block i
	proofs  map[string]proofRecord
	book    *addressBook

	log *log.Logger
}

// Generate creates a fresh keypair and wraps it in a Wallet bound to cfg.
func Generate(cfg p2p.Config) (*Wallet, error) {
	priv, err := core.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generating key: %w", err)
	}
	return newWallet(cfg, priv)
}

// Load reads a DER-encoded private key from path and wraps it in a Wallet
// bound to cfg.
func Load(cfg p2p.Config, path string) (*Wallet, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: reading key file: %w", err)
	}
	priv, err := core.ParsePrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("wallet: parsing key file: %w", err)
	}
	return newWallet(cfg, priv)
}

// Save writes w's private key to path in DER form.
func (w *Wallet) Save(path string) error {
	der, err := core.MarshalPrivateKey(w.priv)
	if err != nil {
		return fmt.Errorf("wallet: marshaling key: %w", err)
	}
	return os.WriteFile(path, der, keyFilePerm)
}

func newWallet(cfg p2p.Config, priv *dsa.PrivateKey) (*Wallet, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	pub := &priv.PublicKey
	address, err := core.Address(pub)
	if err != nil {
		return nil, fmt.Errorf("wallet: deriving address: %w", err)
	}
	encoded, err := core.EncodePublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("wallet: encoding public key: %w", err)
	}

	w := &Wallet{
		node:          p2p.New(cfg),
		priv:          priv,
		pub:           pub,
		address:       address,
		encodedPubKey: encoded,
		lock:          core.CheckSigLock(encoded),
		proofs:        make(map[string]proofRecord),
		log:           logger,
	}
	return w, nil
}

// Start opens the wallet's listening socket so it can receive relayed
// broadcasts and PRIVATE replies.
func (w *Wallet) Start() error { return w.node.Start() }

// Shutdown closes the wallet's socket.
func (w *Wallet) Shutdown() error { return w.node.Shutdown() }

// Connect joins the network through a full node at host:port and remembers
// it as the node future queries are sent to.
func (w *Wallet) Connect(host string, port int) error {
	if err := w.node.Connect(host, port); err != nil {
		return err
	}
	w.remoteHost, w.remotePort = host, port
	return nil
}

// Address returns the wallet's base58 address.
func (w *Wallet) Address() string { return w.address }

// EncodedPublicKey returns the wallet's base58-wrapped DER public key.
func (w *Wallet) EncodedPublicKey() string { return w.encodedPubKey }

// Balance sums the value of every cached UTXO that pays the wallet's own
// address, taking for each transaction only the output that matches (§4.5
// "get_balance"). Call UpdateBalance first to populate the cache.
func (w *Wallet) Balance() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total int64
	for i := range w.utxo {
		if idx := w.utxo[i].OutputIndexFor(w.address); idx >= 0 {
			total += w.utxo[i].Output[idx].Value
		}
	}
	return total
}

// UpdateBalance queries the remote node for every transaction with an
// output paying the wallet's address and replaces the local UTXO cache with
// the reply — the same cache Transfer later spends from, so no separate
// fetch of a prior transaction is ever needed to sign a spend.
func (w *Wallet) UpdateBalance() (int64, error) {
	raw, err := w.node.Send(w.remoteHost, w.remotePort, map[string]string{"request": ledger.RequestGetBalance, "address": w.address})
	if err != nil {
		return 0, err
	}
	var reply struct {
		UTXO  []core.Transaction `json:"utxo"`
		Error string             `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, fmt.Errorf("wallet: decoding balance reply: %w", err)
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("wallet: %s", reply.Error)
	}
	w.mu.Lock()
	w.utxo = reply.UTXO
	w.mu.Unlock()
	return w.Balance(), nil
}

// SyncBlockCount fetches the remote node's current block list and replaces
// the local header cache wholesale, keeping only index/hash/root for each
// block (§4.5 "sync_block": transaction lists are stripped).
func (w *Wallet) SyncBlockCount() (int64, error) {
	raw, err := w.node.Send(w.remoteHost, w.remotePort, map[string]string{"request": ledger.RequestListBlocks})
	if err != nil {
		return 0, err
	}
	var reply struct {
		Blocks []struct {
			Index int64   `json:"index"`
			Hash  *string `json:"hash"`
			Root  string  `json:"root"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, fmt.Errorf("wallet: decoding block list: %w", err)
	}
	headers := make([]blockHeader, len(reply.Blocks))
	for _, b := range reply.Blocks {
		if b.Index < 0 || int(b.Index) >= len(headers) {
			continue
		}
		headers[b.Index] = blockHeader{Hash: b.Hash, Root: b.Root}
	}
	height := int64(len(headers)) - 1
	w.mu.Lock()
	w.headers = headers
	w.mu.Unlock()
	return height, nil
}

// BlockCount returns the height most recently fetched by SyncBlockCount.
func (w *Wallet) BlockCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(len(w.headers)) - 1
}

// GetProof fetches the Merkle inclusion proof for txHash from the remote
// node and caches it for a later VerifyProof call. The reply carries no
// root: only the sibling hashes and the block index they belong to.
func (w *Wallet) GetProof(txHash string) (blockIndex int64, proof []string, err error) {
	raw, err := w.node.Send(w.remoteHost, w.remotePort, map[string]string{"request": ledger.RequestGetProof, "txHash": txHash})
	if err != nil {
		return 0, nil, err
	}
	var reply struct {
		Index int64    `json:"index"`
		Proof []string `json:"proof"`
		Error string   `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, nil, fmt.Errorf("wallet: decoding proof reply: %w", err)
	}
	if reply.Error != "" {
		return 0, nil, fmt.Errorf("wallet: %s", reply.Error)
	}
	w.mu.Lock()
	w.proofs[txHash] = proofRecord{Index: reply.Index, Proof: reply.Proof}
	w.mu.Unlock()
	return reply.Index, reply.Proof, nil
}

// ProofHashes lists every txid with a cached proof, for callers that want
// to verify everything fetched so far rather than naming one txid.
func (w *Wallet) ProofHashes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	hashes := make([]string, 0, len(w.proofs))
	for hash := range w.proofs {
		hashes = append(hashes, hash)
	}
	return hashes
}

// VerifyProof checks txHash's most recently fetched Merkle proof against the
// root of the wallet's own locally-synced header for that block (§4.5
// "verify_proof") — never against a root carried alongside the proof by the
// same node being asked to prove inclusion. Call SyncBlockCount first so
// the matching header is present.
func (w *Wallet) VerifyProof(txHash string) bool {
	w.mu.Lock()
	rec, ok := w.proofs[txHash]
	if !ok {
		w.mu.Unlock()
		return false
	}
	if rec.Index < 0 || int(rec.Index) >= len(w.headers) {
		w.mu.Unlock()
		return false
	}
	header := w.headers[rec.Index]
	w.mu.Unlock()
	for _, h := range append([]string{txHash, header.Root}, rec.Proof...) {
		if _, err := hex.DecodeString(h); err != nil || h == "" {
			return false
		}
	}
	return merkle.VerifyProof(txHash, header.Root, rec.Proof)
}
