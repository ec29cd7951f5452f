// Command minerd runs a full mining node: it maintains a ledger, gossips
// and validates transactions and blocks over the peer overlay, and mines
// new blocks once enough candidates have buffered (§4.5).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"minibtc/config"
	"minibtc/core"
	"minibtc/ledger"
	"minibtc/miner"
	"minibtc/p2p"
)

func main() {
	cfg := config.MinerConfig{
		ListenHost: "localhost",
		ListenPort: 9000,
		MaxNodes:   10,
		BlockSize:  3,
		Difficulty: 5,
	}
	var configFile string

	root := &cobra.Command{
		Use:   "minerd",
		Short: "Run a minibtc mining full node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				set := map[string]string{}
				for _, name := range []string{"pubkey", "listen-host", "listen-port", "remote-host", "remote-port", "max-nodes", "block-size", "difficulty", "seen-ttl", "verbose"} {
					if cmd.Flags().Changed(name) {
						set[name] = cmd.Flags().Lookup(name).Value.String()
					}
				}
				if err := config.LoadMinerFile(configFile, &cfg); err != nil {
					return err
				}
				for name, v := range set {
					if err := cmd.Flags().Set(name, v); err != nil {
						return err
					}
				}
			}
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&cfg.PubKey, "pubkey", "p", cfg.PubKey, "base58 encoded public key to receive mining rewards")
	flags.StringVarP(&cfg.ListenHost, "listen-host", "l", cfg.ListenHost, "host to listen on")
	flags.IntVarP(&cfg.ListenPort, "listen-port", "L", cfg.ListenPort, "port to listen on")
	flags.StringVarP(&cfg.RemoteHost, "remote-host", "r", cfg.RemoteHost, "seed peer host to join through")
	flags.IntVarP(&cfg.RemotePort, "remote-port", "R", cfg.RemotePort, "seed peer port to join through")
	flags.IntVarP(&cfg.MaxNodes, "max-nodes", "n", cfg.MaxNodes, "maximum neighbor count")
	flags.IntVarP(&cfg.BlockSize, "block-size", "b", cfg.BlockSize, "transactions per block, including the coinbase")
	flags.IntVarP(&cfg.Difficulty, "difficulty", "d", cfg.Difficulty, "required leading hex zeros of a block's hash")
	flags.IntVar(&cfg.SeenTTL, "seen-ttl", cfg.SeenTTL, "seconds before a gossiped broadcast id is forgotten (0 = unbounded)")
	flags.CountVarP(&cfg.Verbose, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVarP(&configFile, "config", "c", "", "optional TOML config file, flags override it")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.MinerConfig) error {
	if cfg.PubKey == "" {
		return fmt.Errorf("minerd: --pubkey is required")
	}
	address, err := core.AddressFromEncodedPublicKey(cfg.PubKey)
	if err != nil {
		return fmt.Errorf("minerd: invalid --pubkey: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch {
	case cfg.Verbose >= 2:
		logger.SetLevel(log.DebugLevel)
	case cfg.Verbose == 1:
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}

	p2pCfg := p2pConfig(cfg, logger)
	server := ledger.NewServer(p2pCfg, cfg.Difficulty)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Shutdown()

	if cfg.RemoteHost != "" {
		if err := server.Connect(cfg.RemoteHost, cfg.RemotePort); err != nil {
			return fmt.Errorf("minerd: joining network: %w", err)
		}
		logger.Info("joined network", "via", fmt.Sprintf("%s:%d", cfg.RemoteHost, cfg.RemotePort))
	}

	m := miner.New(server, address, core.CheckSigLock(cfg.PubKey), cfg.BlockSize-1, logger)
	logger.Info("mining started", "address", address, "difficulty", cfg.Difficulty)
	m.Run()
	return nil
}

func p2pConfig(cfg config.MinerConfig, logger *log.Logger) p2p.Config {
	return p2p.Config{
		Host:     cfg.ListenHost,
		Port:     cfg.ListenPort,
		MaxNodes: cfg.MaxNodes,
		SeenTTL:  time.Duration(cfg.SeenTTL) * time.Second,
		Logger:   logger,
	}
}
