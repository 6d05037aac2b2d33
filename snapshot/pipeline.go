package snapshot

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/merkledrop/merkledrop/artifact"
	"github.com/merkledrop/merkledrop/chain"
	"github.com/merkledrop/merkledrop/log"
	"github.com/merkledrop/merkledrop/merkle"
)

// Stage artifact keys, in pipeline order.
const (
	StageBalances     = "01-balances"
	StageNormalized   = "02-normalized"
	StageContracts    = "03-contracts"
	StageReplacements = "04-pool-replacements"
	StageMerged       = "05-merged"
	StageAllocations  = "06-allocations"
	StageDistribution = "07-distribution"
)

// ChainReader is the read-only chain collaborator the stages consume.
// chain.Client satisfies it.
type ChainReader interface {
	TransferLogs(ctx context.Context, token common.Address, fromBlock, toBlock uint64) ([]chain.TransferEvent, error)
	CallAt(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error)
	CallLatest(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error)
}

// Pipeline runs the snapshot stages in order, persisting each result as a
// write-once artifact. A stage whose artifact already exists is loaded and
// trusted as-is, with no external queries issued. That makes an interrupted
// run resumable; it also means stale artifacts must be removed by hand
// after fixing an upstream bug.
type Pipeline struct {
	cfg    Config
	chain  ChainReader
	store  artifact.Store
	logger *log.Logger
}

// New validates the configuration and assembles a pipeline.
func New(cfg Config, reader ChainReader, store artifact.Store, logger *log.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		chain:  reader,
		store:  store,
		logger: logger.Module("pipeline"),
	}, nil
}

// Run executes all stages and returns the final distribution artifact.
func (p *Pipeline) Run(ctx context.Context) (*merkle.Distribution, error) {
	balances, err := runStage(p, ctx, StageBalances, p.aggregateBalances)
	if err != nil {
		return nil, err
	}

	normalized, err := runStage(p, ctx, StageNormalized, func(ctx context.Context) (Values, error) {
		return p.normalizeBalances(ctx, balances)
	})
	if err != nil {
		return nil, err
	}

	contracts, err := runStage(p, ctx, StageContracts, func(ctx context.Context) (Values, error) {
		return p.classifyContracts(ctx, normalized)
	})
	if err != nil {
		return nil, err
	}

	replacements, err := runStage(p, ctx, StageReplacements, func(ctx context.Context) (Replacements, error) {
		return p.resolvePools(ctx, contracts)
	})
	if err != nil {
		return nil, err
	}

	merged, err := runStage(p, ctx, StageMerged, func(context.Context) (Values, error) {
		return mergeReplacements(normalized, replacements), nil
	})
	if err != nil {
		return nil, err
	}

	allocations, err := runStage(p, ctx, StageAllocations, func(context.Context) (Values, error) {
		return allocate(merged, p.cfg.MinValue, p.cfg.DistributionAmount)
	})
	if err != nil {
		return nil, err
	}

	dist, err := runStage(p, ctx, StageDistribution, func(context.Context) (*merkle.Distribution, error) {
		return merkle.BuildDistribution(allocations.bigMap())
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("distribution committed",
		"root", dist.MerkleRoot,
		"claims", len(dist.Claims),
		"tokenTotal", (*big.Int)(dist.TokenTotal))
	return dist, nil
}

// runStage loads the artifact if present, otherwise computes and persists
// it. Artifacts are written only on full stage success.
func runStage[T any](p *Pipeline, ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	if p.store.Exists(key) {
		if err := p.store.Load(key, &out); err != nil {
			return out, err
		}
		p.logger.Info("artifact exists, skipping stage", "stage", key)
		return out, nil
	}

	p.logger.Info("running stage", "stage", key)
	out, err := fn(ctx)
	if err != nil {
		return out, fmt.Errorf("stage %s: %w", key, err)
	}
	if err := p.store.Save(key, out); err != nil {
		return out, err
	}
	return out, nil
}

type holderResult struct {
	holder common.Address
	value  *big.Int
}

// fanOut runs query for every holder in src with bounded parallelism and
// folds the results on a single goroutine. Because the fold is commutative,
// the outcome is independent of query completion order. The first failure
// cancels the remaining in-flight queries and fails the call.
func (p *Pipeline) fanOut(ctx context.Context, src Values,
	query func(ctx context.Context, holder common.Address, value *big.Int) (*big.Int, error),
	fold func(holder common.Address, value *big.Int),
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	results := make(chan holderResult)

	go func() {
		for holder, value := range src {
			holder, value := holder, (*big.Int)(value)
			g.Go(func() error {
				out, err := query(gctx, holder, value)
				if err != nil {
					return err
				}
				select {
				case results <- holderResult{holder, out}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		g.Wait()
		close(results)
	}()

	for r := range results {
		fold(r.holder, r.value)
	}
	return g.Wait()
}

// sortedHolders returns the holders of v in ascending address order, for
// deterministic iteration where ordering is observable.
func sortedHolders(v Values) []common.Address {
	holders := make([]common.Address, 0, len(v))
	for addr := range v {
		holders = append(holders, addr)
	}
	sortAddresses(holders)
	return holders
}
