package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Block is the wire and hash representation defined in §3 "Block". Hash is
// nil for the genesis block (index 0) and otherwise holds the SHA-256 hex
// digest of the previous block. Root is the Merkle root over Trans' hashes
// (§4.6); callers that assemble a block are responsible for computing it
// (via the merkle package) since core itself stays free of that dependency.
type Block struct {
	Index int64         `json:"index"`
	Hash  *string       `json:"hash"`
	Nonce int64         `json:"nonce"`
	Trans []Transaction `json:"trans"`
	Root  string        `json:"root"`
}

// TxHashes returns the ordered list of transaction hashes in b, the leaf
// list a Merkle tree is built over.
func (b *Block) TxHashes() []string {
	hashes := make([]string, len(b.Trans))
	for i, tx := range b.Trans {
		hashes[i] = tx.Hash
	}
	return hashes
}

// Sha256 returns the proof-of-work hash of b: SHA-256 over the canonical
// encoding of the whole block, exactly as stored (including Hash and Root).
func (b *Block) Sha256() string {
	return Sha256(b)
}

// HasValidProofOfWork reports whether b.Sha256() has a prefix of difficulty
// zero hex digits (§3 block invariant, §4.3 "Le hash du bloc...").
func (b *Block) HasValidProofOfWork(difficulty int) bool {
	return strings.HasPrefix(b.Sha256(), strings.Repeat("0", difficulty))
}

// CoinbaseCount returns the number of coinbase-shaped transactions in b.
// A valid block has at most one (§3 block invariant).
func (b *Block) CoinbaseCount() int {
	n := 0
	for i := range b.Trans {
		if b.Trans[i].IsCoinbase() {
			n++
		}
	}
	return n
}

// HashingAllTxs fingerprints a block's transaction set independent of its
// header fields (index, hash, nonce) — unlike the PoW/chain-link hash, which
// hashes the whole Block per spec §3, this only covers Trans. The miner logs
// it alongside a mined block's nonce to identify the exact tx set mined.
func (b *Block) HashingAllTxs() string {
	joined := strings.Join(b.TxHashes(), "")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

