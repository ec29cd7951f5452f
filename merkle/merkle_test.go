package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"minibtc/core"
)

func leaves(n int) []string {
	hashes := make([]string, n)
	for i := range hashes {
		hashes[i] = core.Sha256(fmt.Sprintf("leaf-%d", i))
	}
	return hashes
}

func TestRootOfSingleLeafIsTheLeaf(t *testing.T) {
	h := leaves(1)
	tree := New(h)
	require.Equal(t, h[0], tree.Root())

	proof, ok := tree.GetProof(h[0])
	require.True(t, ok)
	require.Empty(t, proof)
	require.True(t, VerifyProof(h[0], tree.Root(), proof))
}

func TestRootOfEmptyTreeIsEmptyString(t *testing.T) {
	tree := New(nil)
	require.Equal(t, "", tree.Root())
}

func TestProofRoundTripPowerOfTwo(t *testing.T) {
	h := leaves(4)
	tree := New(h)
	for _, leaf := range h {
		proof, ok := tree.GetProof(leaf)
		require.True(t, ok)
		require.True(t, VerifyProof(leaf, tree.Root(), proof))
	}
}

func TestProofRoundTripOddLeafCount(t *testing.T) {
	h := leaves(3)
	tree := New(h)
	for _, leaf := range h {
		proof, ok := tree.GetProof(leaf)
		require.True(t, ok, "missing proof for %s", leaf)
		require.True(t, VerifyProof(leaf, tree.Root(), proof), "proof failed to verify for %s", leaf)
	}
}

func TestProofRoundTripLargerOddCount(t *testing.T) {
	h := leaves(7)
	tree := New(h)
	for _, leaf := range h {
		proof, ok := tree.GetProof(leaf)
		require.True(t, ok)
		require.True(t, VerifyProof(leaf, tree.Root(), proof))
	}
}

func TestGetProofRejectsUnknownLeaf(t *testing.T) {
	tree := New(leaves(4))
	_, ok := tree.GetProof(core.Sha256("not-a-leaf"))
	require.False(t, ok)
}

func TestVerifyProofRejectsTamperedLeaf(t *testing.T) {
	h := leaves(4)
	tree := New(h)
	proof, ok := tree.GetProof(h[0])
	require.True(t, ok)
	require.False(t, VerifyProof(core.Sha256("different"), tree.Root(), proof))
}

func TestRootChangesWhenLeafOrderChanges(t *testing.T) {
	h := leaves(4)
	swapped := append([]string(nil), h...)
	// Swap across pairs: SumHash is commutative, so swapping the two leaves
	// of one pair (0 and 1) leaves the root unchanged by construction.
	swapped[0], swapped[2] = swapped[2], swapped[0]

	require.NotEqual(t, New(h).Root(), New(swapped).Root())
}
