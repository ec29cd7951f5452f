// Package ledger holds the chain of accepted blocks, the UTXO set derived
// from it, and the buffer of not-yet-mined candidate transactions — the
// FullNode responsibilities of §4.4, minus any networking concern (that
// lives in server.go, which wraps a *p2p.Node around this state machine).
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"minibtc/core"
	"minibtc/merkle"
)

var (
	// ErrUnknownTx is returned by GetTransaction/GetProof lookups.
	ErrUnknownTx = errors.New("ledger: transaction not found")
	// ErrDuplicateCandidate is returned by AddCandidate for a hash already buffered.
	ErrDuplicateCandidate = errors.New("ledger: transaction already buffered")
)

// Ledger is safe for concurrent use; every public method takes mu.
type Ledger struct {
	mu sync.Mutex

	difficulty int
	blocks     []core.Block
	blockIndex map[string]int // block hash (Block.Sha256) -> index
	txIndex    map[string]*core.Transaction

	utxo       *utxoSet
	candidates map[string]*core.Transaction

	// OnTransact, when set, is invoked after a transaction is durably added
	// to the candidate buffer — the miner package installs this to wake its
	// mining loop rather than polling the buffer (§4.5 "wake on enough
	// candidates").
	OnTransact func(tx *core.Transaction)

	onBlockAdded blockAddedHook
}

// New creates a Ledger with an empty chain (§3 "Ledger"; §4.4 "Genesis").
// The index-0 block is not pre-seeded: it is mined and appended through the
// normal AddBlock path like every other block, the same way _check_chain's
// empty-ledger branch treats len(ledger)==0 as the base case rather than a
// block that already exists.
func New(difficulty int) *Ledger {
	l := &Ledger{
		difficulty: difficulty,
		blocks:     []core.Block{},
		blockIndex: make(map[string]int),
		txIndex:    make(map[string]*core.Transaction),
		utxo:       newUTXOSet(),
		candidates: make(map[string]*core.Transaction),
	}
	return l
}

// Height returns the index of the most recently accepted block, or -1 if
// the chain is still empty.
func (l *Ledger) Height() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) == 0 {
		return -1
	}
	return l.blocks[len(l.blocks)-1].Index
}

// Tip returns a copy of the most recently accepted block, and false if the
// chain is still empty.
func (l *Ledger) Tip() (core.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) == 0 {
		return core.Block{}, false
	}
	return l.blocks[len(l.blocks)-1], true
}

// NextBlockTemplate returns the index and previous-block hash a freshly
// assembled candidate block must carry: 0 and a nil hash for the first
// block ever mined, or one past the tip chained to it otherwise (§4.4 step
// 6, "{index: ledger.len, hash: null|sha256(ledger.last), ...}").
func (l *Ledger) NextBlockTemplate() (index int64, prevHash *string) {
	tip, ok := l.Tip()
	if !ok {
		return 0, nil
	}
	h := tip.Sha256()
	return tip.Index + 1, &h
}

// Blocks returns a snapshot of the full chain, oldest first.
func (l *Ledger) Blocks() []core.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// BlocksFrom returns every block after the one whose hash is afterHash,
// oldest first — the catch-up sync a reconnecting peer asks for (mirrors
// the teacher's getblocks/inv exchange, minus the wire framing). An empty
// afterHash returns the whole chain including genesis.
func (l *Ledger) BlocksFrom(afterHash string) ([]core.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if afterHash == "" {
		out := make([]core.Block, len(l.blocks))
		copy(out, l.blocks)
		return out, nil
	}
	idx, ok := l.blockIndex[afterHash]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown block hash %q", afterHash)
	}
	out := make([]core.Block, len(l.blocks)-idx-1)
	copy(out, l.blocks[idx+1:])
	return out, nil
}

// Difficulty returns the proof-of-work difficulty blocks must satisfy.
func (l *Ledger) Difficulty() int {
	return l.difficulty
}

// GetTransaction looks up a transaction by hash in O(1), across both mined
// blocks and the candidate buffer, per SPEC_FULL's index suggestion.
func (l *Ledger) GetTransaction(hash string) (*core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx, ok := l.txIndex[hash]; ok {
		return tx, nil
	}
	if tx, ok := l.candidates[hash]; ok {
		return tx, nil
	}
	return nil, ErrUnknownTx
}

// Balance sums the value of every unspent output owned by address.
func (l *Ledger) Balance(address string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, u := range l.utxo.forAddress(address) {
		total += u.Value
	}
	return total
}

// UTXOsFor returns the unspent outputs owned by address, for coin selection.
func (l *Ledger) UTXOsFor(address string) []UTXO {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.utxo.forAddress(address)
}

// TransactionsFor returns, deduplicated by hash, the transaction behind
// every unspent output address owns. This is the server-side half of
// GET_BALANCE's BALANCE{address, utxo: [...]} reply (§4.3): the wallet
// caches these and sums the matching output itself, rather than trusting a
// server-computed balance.
func (l *Ledger) TransactionsFor(address string) []core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{})
	var out []core.Transaction
	for _, u := range l.utxo.forAddress(address) {
		if _, ok := seen[u.TxHash]; ok {
			continue
		}
		seen[u.TxHash] = struct{}{}
		if tx, ok := l.txIndex[u.TxHash]; ok {
			out = append(out, *tx)
		}
	}
	return out
}

// GetProof returns the index of the block containing txHash and the
// inclusion proof for that transaction within it (§4.6). It deliberately
// does not return the Merkle root: a caller must check the proof against a
// root it already trusts (e.g. a wallet's own synced block headers), not
// one carried alongside the proof on the same untrusted reply (§4.5
// "verify_proof").
func (l *Ledger) GetProof(txHash string) (blockIndex int64, proof []string, err error) {
	l.mu.Lock()
	block, ok := l.blockContaining(txHash)
	l.mu.Unlock()
	if !ok {
		return 0, nil, ErrUnknownTx
	}
	tree := merkle.New(block.TxHashes())
	proof, found := tree.GetProof(txHash)
	if !found {
		return 0, nil, ErrUnknownTx
	}
	return block.Index, proof, nil
}

func (l *Ledger) blockContaining(txHash string) (*core.Block, bool) {
	for i := range l.blocks {
		for j := range l.blocks[i].Trans {
			if l.blocks[i].Trans[j].Hash == txHash {
				return &l.blocks[i], true
			}
		}
	}
	return nil, false
}

// AddCandidate validates tx against the current UTXO set and buffers it for
// mining, deduplicating by hash (§4.4 "TRANSACT").
func (l *Ledger) AddCandidate(tx *core.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.candidates[tx.Hash]; ok {
		return ErrDuplicateCandidate
	}
	if _, ok := l.txIndex[tx.Hash]; ok {
		return ErrDuplicateCandidate
	}
	if err := l.checkTxLocked(tx); err != nil {
		return err
	}
	l.candidates[tx.Hash] = tx

	if l.OnTransact != nil {
		l.OnTransact(tx)
	}
	return nil
}

// Candidates returns a snapshot of the currently buffered, not-yet-mined
// transactions.
func (l *Ledger) Candidates() []*core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*core.Transaction, 0, len(l.candidates))
	for _, tx := range l.candidates {
		out = append(out, tx)
	}
	return out
}

// DiscardCandidates removes buffered transactions by hash. Nothing in the
// module calls it: AddBlock already evicts every candidate a block packs.
func (l *Ledger) DiscardCandidates(hashes []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range hashes {
		delete(l.candidates, h)
	}
}

// checkTxLocked validates tx against the UTXO set as it stands right now.
// Callers must hold l.mu.
func (l *Ledger) checkTxLocked(tx *core.Transaction) error {
	if tx.ComputeHash() != tx.Hash {
		return fmt.Errorf("ledger: transaction hash mismatch")
	}
	if tx.IsEmpty() {
		return nil
	}
	if !tx.DistinctOutputAddresses() {
		return fmt.Errorf("ledger: duplicate output address")
	}
	if len(tx.Input) == 0 {
		return fmt.Errorf("ledger: transaction has no inputs")
	}

	var totalIn, totalOut int64
	for _, out := range tx.Output {
		if out.Value <= 0 {
			return fmt.Errorf("ledger: non-positive output value")
		}
		totalOut += out.Value
	}

	seenInputs := make(map[string]struct{}, len(tx.Input))
	for _, in := range tx.Input {
		key := outpoint(in.PrevTxHash, in.Index)
		if _, dup := seenInputs[key]; dup {
			return fmt.Errorf("ledger: double-spend within transaction")
		}
		seenInputs[key] = struct{}{}

		u, ok := l.utxo.lookup(in.PrevTxHash, in.Index)
		if !ok {
			return fmt.Errorf("ledger: input %s references unspent-or-unknown output", key)
		}
		prevTx, ok := l.txIndex[in.PrevTxHash]
		if !ok {
			return fmt.Errorf("ledger: input references unknown prior transaction")
		}
		if core.ExecuteScript(in.Unlock, u.Lock, prevTx) != "true" {
			return fmt.Errorf("ledger: input %s failed script verification", key)
		}
		totalIn += u.Value
	}

	if totalIn != totalOut {
		return fmt.Errorf("ledger: inputs (%d) do not match outputs (%d)", totalIn, totalOut)
	}
	return nil
}

// blockAddedHook, installed with SetOnBlockAdded, is invoked after a block
// is durably appended —
// the miner package installs this to cancel an in-flight nonce search
// against a now-stale tip (§4.5 "abandon mining on a competing block").
// It fires after the ledger's lock is released, so the hook may safely
// call back into the Ledger.
type blockAddedHook = func(b *core.Block)

// CandidateCount returns the number of transactions currently buffered.
func (l *Ledger) CandidateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.candidates)
}

// SelectCandidates returns up to n buffered transactions that still pass
// validation against the current UTXO set, discarding any that no longer
// do (e.g. because a just-accepted block already spent one of their
// inputs).
func (l *Ledger) SelectCandidates(n int) []*core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*core.Transaction, 0, n)
	for hash, tx := range l.candidates {
		if len(out) >= n {
			break
		}
		if err := l.checkTxLocked(tx); err != nil {
			delete(l.candidates, hash)
			continue
		}
		out = append(out, tx)
	}
	return out
}

// SetOnBlockAdded installs the hook invoked after AddBlock durably appends a
// block, once the ledger's lock has been released.
func (l *Ledger) SetOnBlockAdded(hook blockAddedHook) { l.onBlockAdded = hook }

// AddBlock validates b against the chain tip and, if valid, appends it,
// patches the UTXO set, indexes its transactions, and evicts any buffered
// candidates it packed (§4.3 "block validation").
func (l *Ledger) AddBlock(b *core.Block) error {
	if err := l.addBlockLocked(b); err != nil {
		return err
	}
	if l.onBlockAdded != nil {
		l.onBlockAdded(b)
	}
	return nil
}

func (l *Ledger) addBlockLocked(b *core.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prevHash string
	if len(l.blocks) == 0 {
		// _check_chain's empty-ledger branch (§4.4 "Genesis"): no predecessor
		// to chain to, so only the shape of the first block is constrained.
		if b.Index != 0 {
			return fmt.Errorf("ledger: first block must have index 0, got %d", b.Index)
		}
		if b.Hash != nil {
			return fmt.Errorf("ledger: first block must have a nil hash")
		}
	} else {
		tip := l.blocks[len(l.blocks)-1]
		if b.Index != tip.Index+1 {
			return fmt.Errorf("ledger: block index %d does not follow tip %d", b.Index, tip.Index)
		}
		prevHash = tip.Sha256()
		if b.Hash == nil || *b.Hash != prevHash {
			return fmt.Errorf("ledger: block does not chain to the current tip")
		}
	}
	if !b.HasValidProofOfWork(l.difficulty) {
		return fmt.Errorf("ledger: block does not satisfy difficulty %d", l.difficulty)
	}
	if b.CoinbaseCount() > 1 {
		return fmt.Errorf("ledger: block has more than one coinbase transaction")
	}

	for i := range b.Trans {
		if b.Trans[i].ComputeHash() != b.Trans[i].Hash {
			return fmt.Errorf("ledger: transaction hash mismatch in block")
		}
	}
	tree := merkle.New(b.TxHashes())
	if tree.Root() != b.Root {
		return fmt.Errorf("ledger: block Merkle root does not match its transactions")
	}

	for i := range b.Trans {
		tx := &b.Trans[i]
		if tx.IsCoinbase() {
			if tx.Output[0].Value > core.CoinbaseReward {
				return fmt.Errorf("ledger: coinbase output exceeds the reward")
			}
			continue
		}
		if err := l.checkTxLocked(tx); err != nil {
			return fmt.Errorf("ledger: invalid transaction in block: %w", err)
		}
	}

	l.blocks = append(l.blocks, *b)
	l.blockIndex[b.Sha256()] = len(l.blocks) - 1
	l.utxo.applyBlock(b)

	for i := range b.Trans {
		tx := &b.Trans[i]
		l.txIndex[tx.Hash] = tx
		delete(l.candidates, tx.Hash)
	}
	return nil
}
