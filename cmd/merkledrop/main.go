// Command merkledrop computes an airdrop distribution from historical
// on-chain state and commits it into a Merkle tree.
//
// Usage:
//
//	merkledrop [flags]
//
// Flags:
//
//	--rpc           Ethereum JSON-RPC endpoint, archive node required
//	--datadir       Artifact directory (default: ~/.merkledrop)
//	--db            Artifact backend: json, pebble (default: json)
//	--start         First block of the aggregation range
//	--snapshot      Snapshot block, inclusive
//	--batch         Blocks per log query (default: 1000)
//	--workers       Parallel chain queries (default: 10)
//	--distribution  Total distributed amount in base units
//	--minvalue      Dust threshold in base units
//	--verbosity     Log level 0-5 (default: 3)
//	--version       Print version and exit
//
// Every pipeline stage persists its result under datadir; re-running with
// the same datadir resumes after the last completed stage.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/merkledrop/merkledrop/artifact"
	"github.com/merkledrop/merkledrop/chain"
	"github.com/merkledrop/merkledrop/log"
	"github.com/merkledrop/merkledrop/snapshot"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := log.New(os.Stderr, log.VerbosityLevel(cfg.Verbosity))
	log.SetDefault(logger)

	logger.Info("merkledrop starting", "version", version)
	logger.Info("configuration",
		"rpc", cfg.RPC,
		"datadir", cfg.DataDir,
		"db", cfg.DB,
		"blocks", fmt.Sprintf("%d..%d", cfg.Snapshot.StartBlock, cfg.Snapshot.SnapshotBlock),
		"batch", cfg.Snapshot.BatchSize,
		"workers", cfg.Snapshot.Workers)

	if err := cfg.validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		logger.Error("failed to connect to RPC endpoint", "err", err)
		return 1
	}
	defer backend.Close()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open artifact store", "err", err)
		return 1
	}
	defer closeStore()

	reader := chain.NewClient(backend, chain.DefaultOptions(), logger)
	pipeline, err := snapshot.New(cfg.Snapshot, reader, store, logger)
	if err != nil {
		logger.Error("failed to assemble pipeline", "err", err)
		return 1
	}

	dist, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("snapshot failed", "err", err)
		return 1
	}

	fmt.Printf("merkle root: %s\n", dist.MerkleRoot)
	fmt.Printf("claims:      %d\n", len(dist.Claims))
	fmt.Printf("total:       %s\n", dist.TokenTotal.ToInt())
	return 0
}

// cliConfig is the full resolved configuration of one invocation.
type cliConfig struct {
	RPC       string
	DataDir   string
	DB        string
	Verbosity int
	Snapshot  snapshot.Config
}

func (c *cliConfig) validate() error {
	if c.RPC == "" {
		return fmt.Errorf("--rpc is required")
	}
	switch c.DB {
	case "json", "pebble":
	default:
		return fmt.Errorf("unknown artifact backend %q (want json or pebble)", c.DB)
	}
	return c.Snapshot.Validate()
}

// openStore opens the configured artifact backend under the data directory.
func openStore(cfg cliConfig) (artifact.Store, func(), error) {
	switch cfg.DB {
	case "pebble":
		store, err := artifact.NewPebbleStore(filepath.Join(cfg.DataDir, "artifacts.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		store, err := artifact.NewFSStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// parseFlags parses CLI arguments into a cliConfig. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (cliConfig, bool, int) {
	cfg := cliConfig{
		DataDir:   defaultDataDir(),
		DB:        "json",
		Verbosity: 3,
		Snapshot:  snapshot.DefaultConfig(),
	}

	fs := flag.NewFlagSet("merkledrop", flag.ContinueOnError)
	fs.StringVar(&cfg.RPC, "rpc", cfg.RPC, "Ethereum JSON-RPC endpoint (archive node)")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "artifact directory")
	fs.StringVar(&cfg.DB, "db", cfg.DB, "artifact backend (json, pebble)")
	fs.Uint64Var(&cfg.Snapshot.StartBlock, "start", cfg.Snapshot.StartBlock, "first block of the aggregation range")
	fs.Uint64Var(&cfg.Snapshot.SnapshotBlock, "snapshot", cfg.Snapshot.SnapshotBlock, "snapshot block (inclusive)")
	fs.Uint64Var(&cfg.Snapshot.BatchSize, "batch", cfg.Snapshot.BatchSize, "blocks per log query")
	fs.IntVar(&cfg.Snapshot.Workers, "workers", cfg.Snapshot.Workers, "parallel chain queries")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	distribution := fs.String("distribution", cfg.Snapshot.DistributionAmount.String(), "total distributed amount in base units")
	minValue := fs.String("minvalue", cfg.Snapshot.MinValue.String(), "dust threshold in base units")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("merkledrop %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	var ok bool
	if cfg.Snapshot.DistributionAmount, ok = new(big.Int).SetString(*distribution, 10); !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid --distribution value %q\n", *distribution)
		return cfg, true, 2
	}
	if cfg.Snapshot.MinValue, ok = new(big.Int).SetString(*minValue, 10); !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid --minvalue value %q\n", *minValue)
		return cfg, true, 2
	}

	return cfg, false, 0
}

// defaultDataDir resolves ~/.merkledrop, falling back to the working
// directory when the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".merkledrop"
	}
	return filepath.Join(home, ".merkledrop")
}
