// Package core implements the data model shared by every minibtc component:
// transactions, blocks, the lock/unlock script language and the DSA
// key/address primitives. It has no knowledge of the network or the ledger —
// those live in p2p, ledger, miner and wallet — and the Merkle tree lives in
// package merkle.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"math/big"
)

// Sha256 hashes obj's canonical JSON encoding and returns the hex digest.
//
// Canonical here means: struct fields are emitted in their Go declaration
// order (fixed at compile time, identical across every minibtc binary) and
// map keys are sorted (encoding/json always does this). That single rule is
// the canonical form every node in a network must share to interoperate —
// the Python original left this as an open question by not sorting keys at
// all; minibtc picks one fixed rule and applies it everywhere a hash is
// computed.
func Sha256(obj interface{}) string {
	encoded, err := json.Marshal(obj)
	if err != nil {
		log.Panicf("core: cannot canonicalize %T for hashing: %v", obj, err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// SumHash combines two hex-encoded hashes by hashing the decimal string of
// their sum as big integers. Commutative by construction: SumHash(a, b) ==
// SumHash(b, a), which is what lets a Merkle proof omit sibling orientation.
func SumHash(h1, h2 string) string {
	a, ok := new(big.Int).SetString(h1, 16)
	if !ok {
		log.Panicf("core: %q is not a valid hex hash", h1)
	}
	b, ok := new(big.Int).SetString(h2, 16)
	if !ok {
		log.Panicf("core: %q is not a valid hex hash", h2)
	}
	sum := new(big.Int).Add(a, b)
	digest := sha256.Sum256([]byte(sum.String()))
	return hex.EncodeToString(digest[:])
}
