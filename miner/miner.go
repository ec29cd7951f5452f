// Package miner implements the mining loop of §4.5: collect buffered
// candidate transactions, pack them with a coinbase reward into a block,
// search for a valid proof-of-work nonce, and broadcast the result —
// abandoning the search early if a competing block from the network makes
// the one in progress stale.
package miner

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"minibtc/core"
	"minibtc/ledger"
	"minibtc/merkle"
)

// maxNonce bounds the nonce search per attempt, mirroring the teacher's
// pow.go maxNonce guard against looping forever on an unsatisfiable target.
const maxNonce = int64(1) << 62

// Miner packs buffered transactions from a ledger.Server into blocks and
// mines them. It holds no state of its own beyond what it needs to run the
// loop — the chain and UTXO set it mines against live in the Server.
type Miner struct {
	server  *ledger.Server
	address string
	lock    string
	batch   int // number of non-coinbase transactions per block
	log     *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool

	stale atomic.Bool // set when the current attempt's tip has been superseded
}

// New builds a Miner that rewards address (locked with lock, the
// "<pubkey> CHECKSIG" script only that address's key can satisfy) and packs
// batch non-coinbase transactions per block.
func New(server *ledger.Server, address, lock string, batch int, logger *log.Logger) *Miner {
	if logger == nil {
		logger = log.Default()
	}
	m := &Miner{server: server, address: address, lock: lock, batch: batch, log: logger}
	m.cond = sync.NewCond(&m.mu)

	server.OnTransact = func(tx *core.Transaction) { m.cond.Signal() }
	server.SetOnBlockAdded(func(b *core.Block) {
		m.stale.Store(true)
		m.cond.Signal()
	})
	return m
}

// Run blocks, repeatedly mining blocks until Stop is called. Callers
// typically run it in its own goroutine.
func (m *Miner) Run() {
	for {
		candidates := m.awaitBatch()
		if candidates == nil {
			return
		}
		m.mineOnce(candidates)
	}
}

// Stop ends the mining loop after the attempt in progress, if any, returns.
func (m *Miner) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cond.Signal()
}

// awaitBatch blocks until at least m.batch valid candidates are buffered,
// or Stop has been called (in which case it returns nil).
func (m *Miner) awaitBatch() []*core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if m.stopped {
			return nil
		}
		if batch := m.server.SelectCandidates(m.batch); len(batch) >= m.batch {
			return batch
		}
		m.cond.Wait()
	}
}

// mineOnce assembles one candidate block from txs plus a coinbase reward,
// searches for a valid nonce, and broadcasts the result if found before the
// tip moves out from under it.
func (m *Miner) mineOnce(txs []*core.Transaction) {
	index, prevHash := m.server.NextBlockTemplate()

	coinbase := core.NewCoinbaseTransaction(m.address, m.lock, core.CoinbaseReward)
	all := append([]core.Transaction{*coinbase}, derefAll(txs)...)

	tree := merkle.New(hashesOf(all))
	block := core.Block{
		Index: index,
		Hash:  prevHash,
		Nonce: 0,
		Trans: all,
		Root:  tree.Root(),
	}

	m.stale.Store(false)
	m.log.Info("mining block", "index", block.Index, "txs", len(all))

	nonce, found := m.search(&block)
	if !found {
		m.log.Debug("mining attempt abandoned, tip moved", "index", block.Index)
		return
	}
	block.Nonce = nonce

	if err := m.server.AddBlock(&block); err != nil {
		m.log.Warn("mined block rejected locally", "err", err)
		return
	}
	if err := m.server.BroadcastBlock(&block); err != nil {
		m.log.Warn("broadcasting mined block failed", "err", err)
	}
	m.log.Info("mined block", "index", block.Index, "nonce", block.Nonce, "txsHash", block.HashingAllTxs())
}

// search tries nonces in order until block.Sha256() satisfies the chain's
// difficulty, or the attempt is abandoned because a competing block arrived.
func (m *Miner) search(block *core.Block) (int64, bool) {
	difficulty := m.server.Difficulty()
	for nonce := int64(0); nonce < maxNonce; nonce++ {
		if m.stale.Load() {
			return 0, false
		}
		block.Nonce = nonce
		if block.HasValidProofOfWork(difficulty) {
			return nonce, true
		}
	}
	return 0, false
}

func derefAll(txs []*core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = *tx
	}
	return out
}

func hashesOf(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash
	}
	return out
}
