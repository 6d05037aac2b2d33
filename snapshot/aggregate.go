package snapshot

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// zeroAddress is the mint/burn sentinel: transfers from it create value,
// transfers to it destroy value, and it never appears in any ledger.
var zeroAddress common.Address

// aggregateBalances folds each configured asset's transfer history into a
// holder balance table (stage 01).
func (p *Pipeline) aggregateBalances(ctx context.Context) (Ledger, error) {
	ledger := make(Ledger, len(p.cfg.Assets))
	for _, asset := range p.cfg.Assets {
		p.logger.Info("aggregating transfers", "asset", asset.Symbol)
		balances, err := p.transfersToBalances(ctx, asset.Address)
		if err != nil {
			return nil, err
		}
		p.logger.Info("aggregated", "asset", asset.Symbol, "holders", len(balances))
		ledger[asset.Symbol] = balances
	}
	return ledger, nil
}

// transfersToBalances replays a token's Transfer events over the configured
// block range: debit the sender, credit the recipient, skip the mint/burn
// sentinel on either side. Logs are fetched in fixed-size batches purely to
// respect provider limits; the fold is a commutative sum, so the result is
// identical for any batch size.
//
// A negative final balance means the event range is incomplete or the token
// violates the accounting assumption; either way the run must not continue.
func (p *Pipeline) transfersToBalances(ctx context.Context, token common.Address) (Values, error) {
	balances := make(Values)
	for start := p.cfg.StartBlock; start <= p.cfg.SnapshotBlock; start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize - 1
		if end > p.cfg.SnapshotBlock {
			end = p.cfg.SnapshotBlock
		}
		events, err := p.chain.TransferLogs(ctx, token, start, end)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.From != zeroAddress {
				balances.Sub(ev.From, ev.Amount)
			}
			if ev.To != zeroAddress {
				balances.Add(ev.To, ev.Amount)
			}
		}
	}

	for holder, balance := range balances {
		if balance.ToInt().Sign() < 0 {
			return nil, integrityf(StageBalances, "negative balance %s for holder %s of token %s",
				balance.ToInt(), holder, token)
		}
	}
	balances.PruneZero()
	return balances, nil
}
