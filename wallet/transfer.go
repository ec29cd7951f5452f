package wallet

import (
	"fmt"

	"minibtc/core"
	"minibtc/ledger"
)

// selection pairs a cached prior transaction with the index of the output
// within it that pays the wallet, so a spend can be signed against the
// prior transaction directly, with no separate fetch.
type selection struct {
	prevTx      core.Transaction
	outputIndex int
}

// selectUTXOs greedily walks the wallet's cached UTXO transactions in order,
// accumulating inputs until their total value covers amount. Unlike the
// utxo[i+1:] slicing the original implementation used — which skips the
// output right after whichever one satisfies the target and silently drops
// it from consideration — this walks every candidate once, in order, and
// stops as soon as the running total is enough.
func selectUTXOs(utxos []core.Transaction, address string, amount int64) (selected []selection, total int64, ok bool) {
	for _, tx := range utxos {
		idx := tx.OutputIndexFor(address)
		if idx < 0 {
			continue
		}
		selected = append(selected, selection{prevTx: tx, outputIndex: idx})
		total += tx.Output[idx].Value
		if total >= amount {
			return selected, total, true
		}
	}
	return nil, total, false
}

// Transfer builds, signs, and broadcasts a transaction paying amount to
// toAddress, locking that output with the recipient's encoded public key
// (looked up in the wallet's address book — a CHECKSIG lock can only name
// a public key, never a bare address). Inputs are selected from the
// wallet's own unspent outputs, with any leftover value returned to itself
// as a change output (§4.6 "Transfer").
func (w *Wallet) Transfer(toAddress string, amount int64) (*core.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("wallet: transfer amount must be positive")
	}
	toPubKey, ok := w.AddressBook().Lookup(toAddress)
	if !ok {
		return nil, fmt.Errorf("wallet: unknown recipient %s, register its public key first", toAddress)
	}

	w.mu.Lock()
	cached := w.utxo
	w.mu.Unlock()

	selected, total, ok := selectUTXOs(cached, w.address, amount)
	if !ok {
		return nil, fmt.Errorf("wallet: insufficient funds: have %d, need %d", total, amount)
	}

	tx := &core.Transaction{
		Input:  make([]core.TxInput, len(selected)),
		Output: []core.TxOutput{{Address: toAddress, Value: amount, Lock: core.CheckSigLock(toPubKey)}},
	}
	if change := total - amount; change > 0 {
		tx.Output = append(tx.Output, core.TxOutput{Address: w.address, Value: change, Lock: w.lock})
	}
	if err := w.finishTransfer(tx, selected); err != nil {
		return nil, err
	}
	w.evictUTXOs(selected)
	return tx, nil
}

// finishTransfer signs every input of tx against the prior transaction it
// spends from — already in the wallet's cache, so no separate fetch is
// needed — finalizes tx's hash, and broadcasts it.
func (w *Wallet) finishTransfer(tx *core.Transaction, selected []selection) error {
	for i, s := range selected {
		sig, err := core.Sign(w.priv, core.SignablePriorTx(&s.prevTx))
		if err != nil {
			return fmt.Errorf("wallet: signing input %d: %w", i, err)
		}
		tx.Input[i] = core.TxInput{
			PrevTxHash: s.prevTx.Hash,
			Index:      s.outputIndex,
			Unlock:     sig,
		}
	}
	tx.SetHash()

	return w.node.Broadcast(struct {
		Request     string           `json:"request"`
		Transaction core.Transaction `json:"transaction"`
	}{Request: ledger.RequestTransact, Transaction: *tx})
}

// evictUTXOs removes just-spent transactions from the local cache so a
// second Transfer in the same session doesn't try to spend them again
// before the next UpdateBalance (§4.5 "Evict consumed UTXOs").
func (w *Wallet) evictUTXOs(spent []selection) {
	spentHash := make(map[string]struct{}, len(spent))
	for _, s := range spent {
		spentHash[s.prevTx.Hash] = struct{}{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.utxo[:0]
	for _, tx := range w.utxo {
		if _, gone := spentHash[tx.Hash]; !gone {
			kept = append(kept, tx)
		}
	}
	w.utxo = kept
}

// EmptyTransfer broadcasts the bootstrap empty transaction (§3), used to
// exercise the network without moving any value.
func (w *Wallet) EmptyTransfer() error {
	tx := core.NewEmptyTransaction()
	return w.node.Broadcast(struct {
		Request     string           `json:"request"`
		Transaction core.Transaction `json:"transaction"`
	}{Request: ledger.RequestTransact, Transaction: *tx})
}
