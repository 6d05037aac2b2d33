package snapshot

import (
	"errors"
	"math/big"
)

// allocate computes each holder's share of the fixed distribution total
// (stage 06). Holders below the dust threshold are discarded first and the
// eligible total S is recomputed over the survivors; each one then receives
// floor(value / S * total).
//
// The division is a single integer multiply-then-floor per holder: no
// floating point anywhere, no compounding rounding. The floored remainders
// stay undistributed, so the allocation sum can fall short of the total but
// must never exceed it.
func allocate(merged Values, minValue, total *big.Int) (Values, error) {
	eligible := make(Values)
	for holder, value := range merged {
		if value.ToInt().Cmp(minValue) >= 0 {
			eligible.Set(holder, value.ToInt())
		}
	}
	if len(eligible) == 0 {
		return nil, errors.New("snapshot: no holders above the dust threshold")
	}

	sum := eligible.Total()
	allocations := make(Values, len(eligible))
	allocated := new(big.Int)
	for holder, value := range eligible {
		amount := new(big.Int).Mul(value.ToInt(), total)
		amount.Quo(amount, sum)
		allocations.Set(holder, amount)
		allocated.Add(allocated, amount)
	}
	if allocated.Cmp(total) > 0 {
		return nil, integrityf(StageAllocations, "allocated %s exceeds distribution total %s",
			allocated, total)
	}
	return allocations, nil
}
