// Package config loads node configuration from an optional TOML file and
// layers command-line flags on top of it, flags always winning — the
// layering a cobra-based CLI wants but neither cobra nor naoina/toml
// provide by themselves.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// MinerConfig configures a mining full node (cmd/minerd).
type MinerConfig struct {
	PubKey     string `toml:"pubkey"`
	ListenHost string `toml:"listen_host"`
	ListenPort int    `toml:"listen_port"`
	RemoteHost string `toml:"remote_host"`
	RemotePort int    `toml:"remote_port"`
	MaxNodes   int    `toml:"max_nodes"`
	BlockSize  int    `toml:"block_size"`
	Difficulty int    `toml:"difficulty"`
	SeenTTL    int    `toml:"seen_ttl_seconds"`
	Verbose    int    `toml:"verbose"`
}

// WalletConfig configures a wallet client (cmd/wallet).
type WalletConfig struct {
	WalletFile string `toml:"wallet_file"`
	ListenHost string `toml:"listen_host"`
	ListenPort int    `toml:"listen_port"`
	RemoteHost string `toml:"remote_host"`
	RemotePort int    `toml:"remote_port"`
	Verbose    int    `toml:"verbose"`
}

// LoadMinerFile reads a TOML file into the fields of cfg the file mentions,
// leaving fields the file doesn't mention untouched so command-line flag
// defaults can seed them first.
func LoadMinerFile(path string, cfg *MinerConfig) error {
	return loadFile(path, cfg)
}

// LoadWalletFile reads a TOML file into the fields of cfg the file mentions.
func LoadWalletFile(path string, cfg *WalletConfig) error {
	return loadFile(path, cfg)
}

func loadFile(path string, cfg interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return nil
}
