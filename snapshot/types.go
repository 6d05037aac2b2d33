// Package snapshot implements the airdrop distribution pipeline: six pure
// transformation stages turning historical transfer logs into a final
// claims table, committed into a Merkle tree by the merkle package. Each
// stage's output is persisted as a write-once artifact, making the whole
// run idempotent and resumable.
package snapshot

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Asset identifies one fungible token tracked during aggregation.
type Asset struct {
	Symbol  string         `json:"symbol"`
	Address common.Address `json:"address"`

	// TwoStep marks assets whose valuation needs a second hop through the
	// base asset's bonding curve. This is explicit per-asset configuration,
	// never inferred.
	TwoStep bool `json:"twoStep"`
}

// Values maps holders to integer quantities. Addresses marshal to their
// canonical 0x-hex form and quantities to 0x-hex strings, so artifacts
// survive JSON without precision loss.
type Values map[common.Address]*hexutil.Big

// Ledger maps asset symbols to per-holder balances (stage 01 output).
type Ledger map[string]Values

// Replacements maps a resolved pool to the pro-rata split of its value
// across the pool's own holders (stage 04 output).
type Replacements map[common.Address]Values

// Get returns a copy of the holder's value, or zero if absent.
func (v Values) Get(addr common.Address) *big.Int {
	if x, ok := v[addr]; ok {
		return new(big.Int).Set((*big.Int)(x))
	}
	return new(big.Int)
}

// Add accumulates delta into the holder's value.
func (v Values) Add(addr common.Address, delta *big.Int) {
	cur := v.Get(addr)
	v[addr] = (*hexutil.Big)(cur.Add(cur, delta))
}

// Sub subtracts delta from the holder's value.
func (v Values) Sub(addr common.Address, delta *big.Int) {
	cur := v.Get(addr)
	v[addr] = (*hexutil.Big)(cur.Sub(cur, delta))
}

// Set assigns the holder's value.
func (v Values) Set(addr common.Address, x *big.Int) {
	v[addr] = (*hexutil.Big)(new(big.Int).Set(x))
}

// Total sums all values.
func (v Values) Total() *big.Int {
	total := new(big.Int)
	for _, x := range v {
		total.Add(total, (*big.Int)(x))
	}
	return total
}

// PruneZero removes zero-valued entries. Run by producing stages before the
// table is persisted; holders that netted out to nothing carry no claim.
func (v Values) PruneZero() {
	for addr, x := range v {
		if (*big.Int)(x).Sign() == 0 {
			delete(v, addr)
		}
	}
}

// sortAddresses orders addresses by ascending byte value.
func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}

// bigMap converts to the plain big.Int map the merkle package consumes.
func (v Values) bigMap() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(v))
	for addr, x := range v {
		out[addr] = (*big.Int)(x)
	}
	return out
}
