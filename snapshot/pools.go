package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolKind is the closed set of pooled-liquidity shapes the resolver
// recognizes. Anything else passes through unresolved.
type PoolKind int

const (
	// UnknownShape is a contract holder that matched no probe. It keeps
	// its aggregate value as a single entry.
	UnknownShape PoolKind = iota
	// ConstantProductPool is a Uniswap V2 style pair.
	ConstantProductPool
	// WeightedPool is a Balancer style weighted pool.
	WeightedPool
)

func (k PoolKind) String() string {
	switch k {
	case ConstantProductPool:
		return "constant-product"
	case WeightedPool:
		return "weighted"
	default:
		return "unknown"
	}
}

// balancerColor is the bytes32 a Balancer pool of the snapshot era returns
// from getColor().
var balancerColor = [32]byte(common.RightPadBytes([]byte("BRONZE"), 32))

// resolvePools unwinds recognized pooled-liquidity vehicles (stage 04).
// For each recognized pool the resolver replays the pool's own share-token
// transfer history and splits the pool's already-known aggregate value
// pro-rata across its share holders. There is no need to inspect the pool's
// reserves: the normalized value of the pool's holdings is exactly what
// stage 02 already assigned to it.
//
// Shares divide the value by exact integer arithmetic with a single final
// floor per holder, so the split can only lose dust, never create value.
// The conservation bound is asserted, not assumed.
func (p *Pipeline) resolvePools(ctx context.Context, contracts Values) (Replacements, error) {
	replacements := make(Replacements)
	for _, pool := range sortedHolders(contracts) {
		kind := p.classifyPool(ctx, pool)
		// A cancelled context makes every probe fail, which would silently
		// classify the pool as unknown; distinguish teardown from mismatch.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if kind == UnknownShape {
			continue
		}
		p.logger.Info("recognized pool", "pool", pool, "kind", kind.String())

		shares, err := p.transfersToBalances(ctx, pool)
		if err != nil {
			return nil, err
		}
		supply := shares.Total()
		if supply.Sign() == 0 {
			p.logger.Warn("pool has no share supply, passing through", "pool", pool)
			continue
		}

		poolValue := contracts.Get(pool)
		split := make(Values, len(shares))
		distributed := new(big.Int)
		for holder, share := range shares {
			// floor(share / supply * poolValue), computed as one integer
			// multiply-then-divide so the only rounding is the final floor.
			sub := new(big.Int).Mul(share.ToInt(), poolValue)
			sub.Quo(sub, supply)
			split.Set(holder, sub)
			distributed.Add(distributed, sub)
		}
		if distributed.Cmp(poolValue) > 0 {
			return nil, integrityf(StageReplacements, "pool %s split %s exceeds pool value %s",
				pool, distributed, poolValue)
		}
		replacements[pool] = split
	}

	p.logger.Info("pools resolved", "count", len(replacements))
	return replacements, nil
}

// classifyPool probes the closed shape set in order. A probe that fails or
// returns unexpected data is a non-match, never an error: arbitrary
// contracts are expected to revert on foreign selectors.
func (p *Pipeline) classifyPool(ctx context.Context, addr common.Address) PoolKind {
	if p.isConstantProduct(ctx, addr) {
		return ConstantProductPool
	}
	if p.isWeighted(ctx, addr) {
		return WeightedPool
	}
	return UnknownShape
}

// isConstantProduct recognizes a Uniswap V2 pair: factory() must answer
// with the canonical factory address.
func (p *Pipeline) isConstantProduct(ctx context.Context, addr common.Address) bool {
	out, err := p.chain.CallAt(ctx, addr, factoryData(), p.cfg.SnapshotBlock)
	if err != nil {
		return false
	}
	factory, err := unpackAddress("factory", out)
	if err != nil {
		return false
	}
	return factory == p.cfg.UniswapFactory
}

// isWeighted recognizes a Balancer pool: getColor() must answer BRONZE.
func (p *Pipeline) isWeighted(ctx context.Context, addr common.Address) bool {
	out, err := p.chain.CallAt(ctx, addr, getColorData(), p.cfg.SnapshotBlock)
	if err != nil {
		return false
	}
	color, err := unpackBytes32("getColor", out)
	if err != nil {
		return false
	}
	return color == balancerColor
}
