package wallet

import (
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"minibtc/core"
	"minibtc/ledger"
	"minibtc/merkle"
	"minibtc/p2p"
)

func txPaying(t *testing.T, address string, value int64) core.Transaction {
	t.Helper()
	tx := core.NewCoinbaseTransaction(address, address+" CHECKSIG", value)
	return *tx
}

func TestSelectUTXOsStopsAsSoonAsCovered(t *testing.T) {
	utxos := []core.Transaction{txPaying(t, "addr", 10), txPaying(t, "addr", 10), txPaying(t, "addr", 10)}
	selected, total, ok := selectUTXOs(utxos, "addr", 15)
	require.True(t, ok)
	require.Equal(t, int64(20), total)
	require.Len(t, selected, 2)
}

func TestSelectUTXOsDoesNotSkipTheOutputAfterTheCoveringOne(t *testing.T) {
	// A regression check for the original's utxo[i+1:] slicing bug: once the
	// second output alone already covers the target, every earlier output
	// must still have been considered, not silently dropped.
	utxos := []core.Transaction{txPaying(t, "addr", 1), txPaying(t, "addr", 100), txPaying(t, "addr", 1)}
	selected, total, ok := selectUTXOs(utxos, "addr", 1)
	require.True(t, ok)
	require.Equal(t, int64(1), total)
	require.Len(t, selected, 1)
	require.Equal(t, utxos[0].Hash, selected[0].prevTx.Hash)
}

func TestSelectUTXOsInsufficientFunds(t *testing.T) {
	utxos := []core.Transaction{txPaying(t, "addr", 5)}
	_, _, ok := selectUTXOs(utxos, "addr", 10)
	require.False(t, ok)
}

func TestSelectUTXOsEmptySet(t *testing.T) {
	_, _, ok := selectUTXOs(nil, "addr", 1)
	require.False(t, ok)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T, difficulty int) *ledger.Server {
	t.Helper()
	s := ledger.NewServer(p2p.Config{Host: "127.0.0.1", Port: 0, Logger: log.New(discardWriter{})}, difficulty)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := Generate(p2p.Config{Host: "127.0.0.1", Port: 0, Logger: log.New(discardWriter{})})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Shutdown() })
	return w
}

func mineCoinbaseBlock(t *testing.T, s *ledger.Server, address, lock string) {
	t.Helper()
	index, prevHash := s.NextBlockTemplate()
	coinbase := core.NewCoinbaseTransaction(address, lock, core.CoinbaseReward)
	tree := merkle.New([]string{coinbase.Hash})
	block := &core.Block{Index: index, Hash: prevHash, Trans: []core.Transaction{*coinbase}, Root: tree.Root()}
	require.NoError(t, s.AddBlock(block))
}

func TestTransferEndToEndAgainstARealServer(t *testing.T) {
	server := newTestServer(t, 0)

	sender := newTestWallet(t)
	require.NoError(t, sender.Connect(server.Node().Self().Host, server.Node().Self().Port))
	receiver := newTestWallet(t)

	mineCoinbaseBlock(t, server, sender.Address(), sender.lock)
	_, err := sender.UpdateBalance()
	require.NoError(t, err)

	require.NoError(t, sender.AddressBook().Register(receiver.Address(), receiver.EncodedPublicKey()))

	tx, err := sender.Transfer(receiver.Address(), core.CoinbaseReward)
	require.NoError(t, err)
	require.NotEmpty(t, tx.Hash)

	require.Eventually(t, func() bool {
		return server.CandidateCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	mineCoinbaseBlock(t, server, "miner", "miner CHECKSIG") // pure coinbase; doesn't pack tx
	candidates := server.Candidates()
	require.Len(t, candidates, 1, "transfer must still be a pending candidate, unaffected by an unrelated block")
	require.Equal(t, tx.Hash, candidates[0].Hash)
}

func TestTransferRejectsUnregisteredRecipient(t *testing.T) {
	server := newTestServer(t, 0)
	sender := newTestWallet(t)
	require.NoError(t, sender.Connect(server.Node().Self().Host, server.Node().Self().Port))
	mineCoinbaseBlock(t, server, sender.Address(), sender.lock)

	_, err := sender.Transfer("unregistered-address", 10)
	require.Error(t, err)
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	server := newTestServer(t, 0)
	sender := newTestWallet(t)
	require.NoError(t, sender.Connect(server.Node().Self().Host, server.Node().Self().Port))

	_, err := sender.Transfer("someone", 0)
	require.Error(t, err)
}

func TestTransferRejectsInsufficientFunds(t *testing.T) {
	server := newTestServer(t, 0)
	sender := newTestWallet(t)
	receiver := newTestWallet(t)
	require.NoError(t, sender.Connect(server.Node().Self().Host, server.Node().Self().Port))
	require.NoError(t, sender.AddressBook().Register(receiver.Address(), receiver.EncodedPublicKey()))

	_, err := sender.Transfer(receiver.Address(), 10)
	require.Error(t, err)
}
