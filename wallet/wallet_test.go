package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"minibtc/p2p"
)

func TestGenerateProducesDistinctAddresses(t *testing.T) {
	a, err := Generate(p2p.Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	b, err := Generate(p2p.Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	require.NotEqual(t, a.Address(), b.Address())
}

func TestSaveLoadRoundTripsIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.key")

	original, err := Generate(p2p.Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	require.NoError(t, original.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(p2p.Config{Host: "127.0.0.1", Port: 0}, path)
	require.NoError(t, err)
	require.Equal(t, original.Address(), loaded.Address())
	require.Equal(t, original.EncodedPublicKey(), loaded.EncodedPublicKey())
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(p2p.Config{Host: "127.0.0.1", Port: 0}, "/nonexistent/path/key")
	require.Error(t, err)
}

func TestUpdateBalanceFetchesFromRemote(t *testing.T) {
	server := newTestServer(t, 0)
	w := newTestWallet(t)
	require.NoError(t, w.Connect(server.Node().Self().Host, server.Node().Self().Port))

	mineCoinbaseBlock(t, server, w.Address(), w.lock)

	balance, err := w.UpdateBalance()
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
	require.Equal(t, int64(50), w.Balance())
}

func TestSyncBlockCountMatchesServerHeight(t *testing.T) {
	server := newTestServer(t, 0)
	w := newTestWallet(t)
	require.NoError(t, w.Connect(server.Node().Self().Host, server.Node().Self().Port))

	mineCoinbaseBlock(t, server, "addr", "addr CHECKSIG")
	mineCoinbaseBlock(t, server, "addr", "addr CHECKSIG")

	height, err := w.SyncBlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), height)
	require.Equal(t, int64(1), w.BlockCount())
}

func TestGetProofAndVerifyProofRoundTrip(t *testing.T) {
	server := newTestServer(t, 0)
	w := newTestWallet(t)
	require.NoError(t, w.Connect(server.Node().Self().Host, server.Node().Self().Port))

	mineCoinbaseBlock(t, server, w.Address(), w.lock)
	txHash := server.Blocks()[0].Trans[0].Hash

	_, err := w.SyncBlockCount()
	require.NoError(t, err)

	_, _, err = w.GetProof(txHash)
	require.NoError(t, err)
	require.True(t, w.VerifyProof(txHash))
}

func TestVerifyProofRejectsWithoutSyncedHeader(t *testing.T) {
	server := newTestServer(t, 0)
	w := newTestWallet(t)
	require.NoError(t, w.Connect(server.Node().Self().Host, server.Node().Self().Port))

	mineCoinbaseBlock(t, server, w.Address(), w.lock)
	txHash := server.Blocks()[0].Trans[0].Hash

	_, _, err := w.GetProof(txHash)
	require.NoError(t, err)
	require.False(t, w.VerifyProof(txHash), "a proof can't be checked before the wallet has synced the matching header")
}

func TestGetProofUnknownTransactionErrors(t *testing.T) {
	server := newTestServer(t, 0)
	w := newTestWallet(t)
	require.NoError(t, w.Connect(server.Node().Self().Host, server.Node().Self().Port))

	_, _, err := w.GetProof("nonexistent")
	require.Error(t, err)
}
