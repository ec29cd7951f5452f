// Command wallet runs an interactive client: it joins the network through
// a remote full node and offers a small REPL for checking balances,
// transferring funds, and verifying inclusion proofs (§4.6).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"minibtc/config"
	"minibtc/p2p"
	"minibtc/wallet"
)

func main() {
	cfg := config.WalletConfig{
		WalletFile: "wallet.key",
		ListenHost: "localhost",
		ListenPort: 8000,
		RemoteHost: "localhost",
	}
	var configFile string

	root := &cobra.Command{
		Use:   "wallet",
		Short: "Run an interactive minibtc wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				set := map[string]string{}
				for _, name := range []string{"wallet-file", "listen-host", "listen-port", "remote-host", "remote-port", "verbose"} {
					if cmd.Flags().Changed(name) {
						set[name] = cmd.Flags().Lookup(name).Value.String()
					}
				}
				if err := config.LoadWalletFile(configFile, &cfg); err != nil {
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
	flags.StringVarP(&cfg.WalletFile, "wallet-file", "w", cfg.WalletFile, "path to the wallet's private key file")
	flags.StringVarP(&cfg.ListenHost, "listen-host", "l", cfg.ListenHost, "host to listen on")
	flags.IntVarP(&cfg.ListenPort, "listen-port", "L", cfg.ListenPort, "port to listen on")
	flags.StringVarP(&cfg.RemoteHost, "remote-host", "r", cfg.RemoteHost, "full node host to join through")
	flags.IntVarP(&cfg.RemotePort, "remote-port", "R", cfg.RemotePort, "full node port to join through")
	flags.CountVarP(&cfg.Verbose, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVarP(&configFile, "config", "c", "", "optional TOML config file, flags override it")
	root.MarkFlagRequired("remote-port")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.WalletConfig) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch {
	case cfg.Verbose >= 2:
		logger.SetLevel(log.DebugLevel)
	case cfg.Verbose == 1:
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}

	p2pCfg := p2p.Config{Host: cfg.ListenHost, Port: cfg.ListenPort, Logger: logger}

	var w *wallet.Wallet
	var err error
	if _, statErr := os.Stat(cfg.WalletFile); statErr == nil {
		w, err = wallet.Load(p2pCfg, cfg.WalletFile)
	} else {
		w, err = wallet.Generate(p2pCfg)
		if err == nil {
			err = w.Save(cfg.WalletFile)
		}
	}
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}

	if err := w.Start(); err != nil {
		return err
	}
	defer w.Shutdown()

	if err := w.Connect(cfg.RemoteHost, cfg.RemotePort); err != nil {
		return fmt.Errorf("wallet: joining network: %w", err)
	}

	fmt.Printf("address: %s\n", w.Address())
	repl(w)
	return nil
}

func repl(w *wallet.Wallet) {
	const helpText = `commands:
  help                                show this text
  update_balance                      fetch and cache the current balance
  get_balance                         print the cached balance
  register ADDRESS PUBKEY             remember a recipient's public key
  transfer ADDRESS AMOUNT             send AMOUNT to ADDRESS
  sync_block                          fetch the current chain height
  block_count                         print the cached chain height
  get_proof TXHASH                    fetch a transaction's inclusion proof
  verify_proof [TXHASH]               verify a fetched proof (all, if omitted)
  exit                                quit`

	fmt.Println(helpText)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := dispatch(w, fields[0], fields[1:], helpText); err != nil {
			if err == errExit {
				return
			}
			fmt.Println("error:", err)
		}
	}
}

var errExit = fmt.Errorf("exit")

func dispatch(w *wallet.Wallet, cmd string, args []string, helpText string) error {
	switch cmd {
	case "help":
		fmt.Println(helpText)
	case "exit", "quit":
		return errExit
	case "update_balance":
		balance, err := w.UpdateBalance()
		if err != nil {
			return err
		}
		fmt.Println(balance)
	case "get_balance":
		fmt.Println(w.Balance())
	case "register":
		if len(args) != 2 {
			return fmt.Errorf("usage: register ADDRESS PUBKEY")
		}
		return w.AddressBook().Register(args[0], args[1])
	case "transfer":
		if len(args) != 2 {
			return fmt.Errorf("usage: transfer ADDRESS AMOUNT")
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		tx, err := w.Transfer(args[0], amount)
		if err != nil {
			return err
		}
		fmt.Println(tx.Hash)
	case "sync_block":
		height, err := w.SyncBlockCount()
		if err != nil {
			return err
		}
		fmt.Println(height)
	case "block_count":
		fmt.Println(w.BlockCount())
	case "get_proof":
		if len(args) != 1 {
			return fmt.Errorf("usage: get_proof TXHASH")
		}
		index, proof, err := w.GetProof(args[0])
		if err != nil {
			return err
		}
		fmt.Println(index, strings.Join(proof, " "))
	case "verify_proof":
		if len(args) > 1 {
			return fmt.Errorf("usage: verify_proof [TXHASH]")
		}
		hashes := args
		if len(hashes) == 0 {
			hashes = w.ProofHashes()
		}
		for _, hash := range hashes {
			fmt.Println(hash, w.VerifyProof(hash))
		}
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}
