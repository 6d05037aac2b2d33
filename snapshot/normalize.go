package snapshot

import (
	"bytes"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// normalizeBalances values every (asset, holder, balance) triple through
// the bonding-curve oracle at the snapshot block and sums per holder
// (stage 02). Oracle calls are independent, so they fan out with bounded
// parallelism; the per-holder sum is commutative, so the result does not
// depend on completion order. Any oracle failure aborts the stage: later
// stages assume a complete table.
func (p *Pipeline) normalizeBalances(ctx context.Context, ledger Ledger) (Values, error) {
	if err := p.ensureArchiveNode(ctx); err != nil {
		return nil, err
	}

	totals := make(Values)
	for _, asset := range p.cfg.Assets {
		balances := ledger[asset.Symbol]
		p.logger.Info("normalizing balances", "asset", asset.Symbol, "holders", len(balances))

		err := p.fanOut(ctx, balances,
			func(ctx context.Context, _ common.Address, balance *big.Int) (*big.Int, error) {
				return p.convertToBase(ctx, asset, balance)
			},
			func(holder common.Address, value *big.Int) {
				totals.Add(holder, value)
			})
		if err != nil {
			return nil, err
		}
	}

	totals.PruneZero()
	p.logger.Info("normalized", "holders", len(totals), "totalEther", weiToEther(totals.Total()))
	return totals, nil
}

// convertToBase asks the asset's bonding curve what burning the balance
// would return. Two-step assets pay out in the base asset first, so the
// intermediate amount takes a second hop through the base curve.
func (p *Pipeline) convertToBase(ctx context.Context, asset Asset, balance *big.Int) (*big.Int, error) {
	out, err := p.chain.CallAt(ctx, asset.Address, burnReturnData(balance), p.cfg.SnapshotBlock)
	if err != nil {
		return nil, err
	}
	value, err := unpackUint("calculateContinuousBurnReturn", out)
	if err != nil {
		return nil, err
	}
	if !asset.TwoStep {
		return value, nil
	}

	out, err = p.chain.CallAt(ctx, p.cfg.BaseAsset, burnReturnData(value), p.cfg.SnapshotBlock)
	if err != nil {
		return nil, err
	}
	return unpackUint("calculateContinuousBurnReturn", out)
}

// ensureArchiveNode verifies the backing node can serve state at the
// snapshot block by comparing the base asset's supply now and then. Equal
// responses mean the node silently substituted latest state, which would
// poison every valuation. Not recoverable by retrying.
func (p *Pipeline) ensureArchiveNode(ctx context.Context) error {
	fresh, err := p.chain.CallLatest(ctx, p.cfg.BaseAsset, totalSupplyData())
	if err != nil {
		return err
	}
	old, err := p.chain.CallAt(ctx, p.cfg.BaseAsset, totalSupplyData(), p.cfg.SnapshotBlock)
	if err != nil {
		return err
	}
	if bytes.Equal(fresh, old) {
		return &PreconditionError{Reason: "node does not serve historical state (archive node required)"}
	}
	return nil
}

// weiToEther renders a wei quantity in whole ether for logging.
func weiToEther(wei *big.Int) string {
	return new(big.Int).Div(wei, ether).String()
}
