package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// classifyContracts partitions the normalized holder set into externally
// owned accounts and contracts by probing for code at the snapshot block
// (stage 03). The artifact records the contract side of the partition,
// keeping each contract's normalized value; the EOA side is the remainder.
// Re-running against the same chain state yields the same partition.
func (p *Pipeline) classifyContracts(ctx context.Context, normalized Values) (Values, error) {
	contracts := make(Values)
	err := p.fanOut(ctx, normalized,
		func(ctx context.Context, holder common.Address, value *big.Int) (*big.Int, error) {
			code, err := p.chain.CodeAt(ctx, holder, p.cfg.SnapshotBlock)
			if err != nil {
				return nil, err
			}
			if len(code) == 0 {
				return nil, nil // externally owned
			}
			return value, nil
		},
		func(holder common.Address, value *big.Int) {
			if value != nil {
				contracts.Set(holder, value)
			}
		})
	if err != nil {
		return nil, err
	}

	p.logger.Info("contracts found", "count", len(contracts), "of", len(normalized))
	return contracts, nil
}
