package core

import "time"

// CoinbaseReward is the fixed reward a miner pays itself per mined block
// (§6 "Constants"). Unlike the teacher's decaying reward, SPEC_FULL fixes
// this as a flat constant — see SPEC_FULL.md "Supplemented features".
const CoinbaseReward = 50

// TxInput references one output of a previous transaction and carries the
// script fragment that must unlock it.
type TxInput struct {
	PrevTxHash string `json:"prevTxHash"`
	Index      int    `json:"index"`
	Unlock     string `json:"unlock"`
}

// TxOutput assigns value to an address, spendable by whoever satisfies Lock.
type TxOutput struct {
	Address string `json:"address"`
	Value   int64  `json:"value"`
	Lock    string `json:"lock"`
}

// Transaction is the wire and hash representation defined in §3 "Transaction".
type Transaction struct {
	Locktime float64   `json:"locktime"`
	Input    []TxInput `json:"input"`
	Output   []TxOutput `json:"output"`
	Hash     string    `json:"hash"`
}

// txForHash is the subset of Transaction fields hashed to produce Hash — the
// Hash field itself is excluded, since it doesn't exist yet when computed.
type txForHash struct {
	Locktime float64    `json:"locktime"`
	Input    []TxInput  `json:"input"`
	Output   []TxOutput `json:"output"`
}

// ComputeHash returns the canonical hash of tx's content, ignoring
// whatever is currently in tx.Hash.
func (tx *Transaction) ComputeHash() string {
	return Sha256(txForHash{Locktime: tx.Locktime, Input: tx.Input, Output: tx.Output})
}

// SetHash recomputes and stores tx.Hash. Callers must call this once a
// transaction's inputs/outputs/locktime are finalized and before it is
// signed, broadcast or hashed into a block.
func (tx *Transaction) SetHash() {
	tx.Hash = tx.ComputeHash()
}

// NewEmptyTransaction builds the zero-input, zero-output transaction used
// to bootstrap mining (§3 "An empty transaction...").
func NewEmptyTransaction() *Transaction {
	tx := &Transaction{
		Locktime: nowLocktime(),
		Input:    []TxInput{},
		Output:   []TxOutput{},
	}
	tx.SetHash()
	return tx
}

// NewCoinbaseTransaction builds the miner's self-reward transaction: zero
// inputs, one output of value <= CoinbaseReward locked to address.
func NewCoinbaseTransaction(address, lock string, value int64) *Transaction {
	tx := &Transaction{
		Locktime: nowLocktime(),
		Input:    []TxInput{},
		Output: []TxOutput{
			{Address: address, Value: value, Lock: lock},
		},
	}
	tx.SetHash()
	return tx
}

// IsEmpty reports whether tx is the bootstrap empty transaction.
func (tx *Transaction) IsEmpty() bool {
	return len(tx.Input) == 0 && len(tx.Output) == 0
}

// IsCoinbase reports whether tx has the shape of a coinbase transaction:
// zero inputs and exactly one output. Whether that output's value is within
// the allowed reward is checked separately at block-validation time (§4.3),
// since it's a block-level invariant ("at most one coinbase tx"), not a
// per-transaction one.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Input) == 0 && len(tx.Output) == 1
}

// OutputIndexFor returns the index of tx's output paying address, or -1 if
// none exists. A transaction has at most one output per address (§3,
// "output addresses are distinct").
func (tx *Transaction) OutputIndexFor(address string) int {
	for i, out := range tx.Output {
		if out.Address == address {
			return i
		}
	}
	return -1
}

// DistinctOutputAddresses reports whether every output address in tx is unique.
func (tx *Transaction) DistinctOutputAddresses() bool {
	seen := make(map[string]struct{}, len(tx.Output))
	for _, out := range tx.Output {
		if _, ok := seen[out.Address]; ok {
			return false
		}
		seen[out.Address] = struct{}{}
	}
	return true
}

// signablePriorTx is the subset of a transaction's fields an input's
// unlock script signs over: everything except the Hash field, per §4.1
// ("signed object") and §4.3's CHECKSIG, which verifies against "the prior
// transaction with its hash field removed".
type signablePriorTx struct {
	Locktime float64    `json:"locktime"`
	Input    []TxInput  `json:"input"`
	Output   []TxOutput `json:"output"`
}

// SignablePriorTx returns the payload a wallet signs (and CHECKSIG verifies
// against) when spending one of tx's outputs.
func SignablePriorTx(tx *Transaction) interface{} {
	return signablePriorTx{Locktime: tx.Locktime, Input: tx.Input, Output: tx.Output}
}

func nowLocktime() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
