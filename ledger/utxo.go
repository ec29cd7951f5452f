package ledger

import (
	"strconv"

	"minibtc/core"
)

// UTXO is one spendable output: the prior transaction's hash and output
// index, plus the fields copied out of that output for convenience.
type UTXO struct {
	TxHash  string
	Index   int
	Address string
	Value   int64
	Lock    string
}

func outpoint(txHash string, index int) string {
	return txHash + ":" + strconv.Itoa(index)
}

// utxoSet indexes unspent outputs both by owning address (for balance and
// coin selection) and by outpoint (for O(1) spend checks during CheckTx).
type utxoSet struct {
	byAddress  map[string][]UTXO
	byOutpoint map[string]UTXO
}

func newUTXOSet() *utxoSet {
	return &utxoSet{
		byAddress:  make(map[string][]UTXO),
		byOutpoint: make(map[string]UTXO),
	}
}

func (s *utxoSet) add(u UTXO) {
	s.byOutpoint[outpoint(u.TxHash, u.Index)] = u
	s.byAddress[u.Address] = append(s.byAddress[u.Address], u)
}

func (s *utxoSet) spend(txHash string, index int) (UTXO, bool) {
	key := outpoint(txHash, index)
	u, ok := s.byOutpoint[key]
	if !ok {
		return UTXO{}, false
	}
	delete(s.byOutpoint, key)
	list := s.byAddress[u.Address]
	for i, candidate := range list {
		if candidate.TxHash == u.TxHash && candidate.Index == u.Index {
			s.byAddress[u.Address] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return u, true
}

func (s *utxoSet) lookup(txHash string, index int) (UTXO, bool) {
	u, ok := s.byOutpoint[outpoint(txHash, index)]
	return u, ok
}

func (s *utxoSet) forAddress(address string) []UTXO {
	out := make([]UTXO, len(s.byAddress[address]))
	copy(out, s.byAddress[address])
	return out
}

// applyBlock patches the UTXO set for one newly accepted block: every
// non-coinbase input spends an existing output, every output becomes new.
func (s *utxoSet) applyBlock(b *core.Block) {
	for i := range b.Trans {
		tx := &b.Trans[i]
		for _, in := range tx.Input {
			s.spend(in.PrevTxHash, in.Index)
		}
		for idx, out := range tx.Output {
			s.add(UTXO{TxHash: tx.Hash, Index: idx, Address: out.Address, Value: out.Value, Lock: out.Lock})
		}
	}
}
