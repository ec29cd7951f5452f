package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMinerFileOverridesOnlyMentionedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
pubkey = "abc123"
listen_port = 9000
difficulty = 4
`), 0o644))

	cfg := &MinerConfig{ListenHost: "0.0.0.0", BlockSize: 10}
	require.NoError(t, LoadMinerFile(path, cfg))

	require.Equal(t, "abc123", cfg.PubKey)
	require.Equal(t, 9000, cfg.ListenPort)
	require.Equal(t, 4, cfg.Difficulty)
	require.Equal(t, "0.0.0.0", cfg.ListenHost, "fields the file doesn't mention must stay untouched")
	require.Equal(t, 10, cfg.BlockSize)
}

func TestLoadMinerFileMissingPathErrors(t *testing.T) {
	err := LoadMinerFile("/nonexistent/minerd.toml", &MinerConfig{})
	require.Error(t, err)
}

func TestLoadWalletFileOverridesOnlyMentionedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
wallet_file = "my.key"
remote_port = 7000
`), 0o644))

	cfg := &WalletConfig{ListenHost: "127.0.0.1"}
	require.NoError(t, LoadWalletFile(path, cfg))

	require.Equal(t, "my.key", cfg.WalletFile)
	require.Equal(t, 7000, cfg.RemotePort)
	require.Equal(t, "127.0.0.1", cfg.ListenHost)
}

func TestLoadFileRejectsMalformedToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	err := LoadMinerFile(path, &MinerConfig{})
	require.Error(t, err)
}
