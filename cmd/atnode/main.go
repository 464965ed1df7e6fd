package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"qortal.dev/node/atrunner"
	"qortal.dev/node/node"
	"qortal.dev/node/node/store"
	"qortal.dev/node/repository"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("atnode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.ChainIDHex, "chain-id", defaults.ChainIDHex, "hex-encoded chain id")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	maxSteps := fs.Uint64("max-steps-per-round", uint64(defaults.MaxStepsPerRound), "AT step budget per block")
	minutesPerBlock := fs.Uint64("minutes-per-block", uint64(defaults.MinutesPerBlock), "network's minutes-per-block constant")
	runBlocks := fs.Int("run-blocks", 0, "advance the AT engine N blocks locally after startup")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.MaxStepsPerRound = uint32(*maxSteps)
	cfg.MinutesPerBlock = uint32(*minutesPerBlock)

	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	logger := node.NewLogger(cfg)

	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	db, err := store.Open(cfg.DataDir, cfg.ChainIDHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	if err := ensureGenesisBlock(db); err != nil {
		_, _ = fmt.Fprintf(stderr, "genesis block failed: %v\n", err)
		return 2
	}

	runnerCfg := atrunner.Config{MaxStepsPerRound: cfg.MaxStepsPerRound, MinutesPerBlock: cfg.MinutesPerBlock}
	for i := 0; i < *runBlocks; i++ {
		if i > 0 {
			if err := appendNextBlock(db); err != nil {
				_, _ = fmt.Fprintf(stderr, "append block failed: %v\n", err)
				return 2
			}
		}
		height, err := db.BlockchainHeight()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "blockchain height failed: %v\n", err)
			return 2
		}
		results, emissions, err := atrunner.RunBlock(db, height, runnerCfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "run block %d failed: %v\n", height, err)
			return 2
		}
		for _, r := range results {
			logger.Info("AT round", "address", r.Address, "ran", r.Ran, "faulted", r.Faulted, "emissions", len(r.Emissions))
		}
		for _, emitted := range emissions {
			if err := db.PutTransaction(emitted); err != nil {
				_, _ = fmt.Fprintf(stderr, "store emitted transaction failed: %v\n", err)
				return 2
			}
		}
		_, _ = fmt.Fprintf(stdout, "block %d: %d AT(s) processed, %d transaction(s) emitted\n", height, len(results), len(emissions))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *runBlocks > 0 {
		return 0
	}

	_, _ = fmt.Fprintln(stdout, "atnode running")
	<-ctx.Done()
	_, _ = fmt.Fprintln(stdout, "atnode stopped")
	return 0
}

func asUint64(p *uint32) *uint64 {
	v := uint64(*p)
	return &v
}

// ensureGenesisBlock seeds height 0 on a brand new chain directory so the
// AT runner always has a previous/current block pair to read timestamps
// and height from.
func ensureGenesisBlock(db *store.DB) error {
	if _, err := db.BlockByHeight(0); err == nil {
		return nil
	}
	return db.AppendBlock(repository.BlockSummary{
		Height:    0,
		Timestamp: uint64(repository.NewTimestamp(0, 0)),
	})
}

func appendNextBlock(db *store.DB) error {
	height, err := db.BlockchainHeight()
	if err != nil {
		return err
	}
	next := height + 1
	return db.AppendBlock(repository.BlockSummary{
		Height:    next,
		Timestamp: uint64(repository.NewTimestamp(next, 0)),
	})
}

func printConfig(w io.Writer, cfg node.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
