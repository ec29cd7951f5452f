package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"minibtc/core"
	"minibtc/p2p"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T, difficulty int) *Server {
	t.Helper()
	s := NewServer(p2p.Config{Host: "127.0.0.1", Port: 0, Logger: log.New(discardWriter{})}, difficulty)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestHandlePrivateGetBalanceUnknownAddress(t *testing.T) {
	s := newTestServer(t, 0)
	reply, err := s.handlePrivate(p2p.Addr{}, mustMarshal(getBalanceBody{Request: RequestGetBalance, Address: "nobody"}))
	require.NoError(t, err)
	require.Equal(t, getBalanceReply{Address: "nobody", UTXO: nil}, reply)
}

func TestHandlePrivateUnknownRequestReturnsErrorReply(t *testing.T) {
	s := newTestServer(t, 0)
	reply, err := s.handlePrivate(p2p.Addr{}, mustMarshal(requestHeader{Request: "NONSENSE"}))
	require.NoError(t, err)
	_, ok := reply.(errorReply)
	require.True(t, ok)
}

func TestHandlePrivateListBlocksReturnsMinedBlock(t *testing.T) {
	s := newTestServer(t, 0)
	mineBlock(t, s.Ledger, "addr", "addr CHECKSIG", nil)
	reply, err := s.handlePrivate(p2p.Addr{}, mustMarshal(listBlocksBody{Request: RequestListBlocks}))
	require.NoError(t, err)
	summary, ok := reply.(listBlocksReply)
	require.True(t, ok)
	require.Len(t, summary.Blocks, 1)
	require.Equal(t, int64(0), summary.Blocks[0].Index)
	require.NotEmpty(t, summary.Blocks[0].Root)
}

func TestHandleBroadcastTransactRejectsInvalidCandidate(t *testing.T) {
	s := newTestServer(t, 0)
	addr, lock := "addr", "addr CHECKSIG"
	mineBlock(t, s.Ledger, addr, lock, nil)
	utxo := s.UTXOsFor(addr)[0]

	tx := &core.Transaction{
		Input:  []core.TxInput{{PrevTxHash: utxo.TxHash, Index: utxo.Index, Unlock: "junk"}},
		Output: []core.TxOutput{{Address: "out", Value: core.CoinbaseReward, Lock: "x CHECKSIG"}},
	}
	tx.SetHash()

	s.handleBroadcast(p2p.Addr{}, "id1", mustMarshal(transactBody{Request: RequestTransact, Transaction: *tx}))
	require.Equal(t, 0, s.CandidateCount(), "a transaction with an unsatisfiable unlock script must be rejected")
}

func TestHandleBroadcastSubmitBlockRejectsInvalid(t *testing.T) {
	s := newTestServer(t, 5)
	mineBlock(t, s.Ledger, "addr", "addr CHECKSIG", nil)

	coinbase := core.NewCoinbaseTransaction("addr", "addr CHECKSIG", core.CoinbaseReward)
	_, prevHash := s.NextBlockTemplate()
	bad := &core.Block{Index: 1, Hash: prevHash, Trans: []core.Transaction{*coinbase}, Nonce: 0, Root: ""}

	s.handleBroadcast(p2p.Addr{}, "id2", mustMarshal(submitBlockBody{Request: RequestSubmitBlock, Block: *bad}))
	require.Equal(t, int64(0), s.Height(), "an invalid gossiped block must not advance the chain")
}

func TestServerConnectSyncsOverTheWire(t *testing.T) {
	a := newTestServer(t, 0)
	mineBlock(t, a.Ledger, "addr", "addr CHECKSIG", nil)

	b := newTestServer(t, 0)
	require.NoError(t, b.Connect(a.Node().Self().Host, a.Node().Self().Port))

	raw, err := b.Node().Send(a.Node().Self().Host, a.Node().Self().Port, getBlocksBody{Request: RequestGetBlocks, AfterHash: ""})
	require.NoError(t, err)

	var reply getBlocksReply
	require.NoError(t, json.Unmarshal(raw, &reply))
	require.Len(t, reply.Blocks, 1)
}

func TestServerBroadcastBlockPropagatesToNeighbor(t *testing.T) {
	a := newTestServer(t, 0)
	b := newTestServer(t, 0)
	require.NoError(t, a.Connect(b.Node().Self().Host, b.Node().Self().Port))

	block := mineBlock(t, a.Ledger, "addr", "addr CHECKSIG", nil)
	require.NoError(t, a.BroadcastBlock(block))

	require.Eventually(t, func() bool {
		return b.Height() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
