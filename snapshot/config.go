package snapshot

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all parameters of a snapshot run. The zero value is not
// usable; start from DefaultConfig and override.
type Config struct {
	// Assets are the tokens whose holder balances are aggregated.
	Assets []Asset

	// BaseAsset is the bonding-curve hub: two-step assets are valued
	// through it, and it anchors the archive-node precondition check.
	BaseAsset common.Address

	// UniswapFactory is the canonical factory a constant-product pool must
	// report to be recognized.
	UniswapFactory common.Address

	// StartBlock..SnapshotBlock is the inclusive block range aggregated.
	// SnapshotBlock is also the reference point for every valuation, code
	// and pool-shape query.
	StartBlock    uint64
	SnapshotBlock uint64

	// BatchSize is the number of blocks per log query. It exists only to
	// respect provider limits; results are identical for any batch size.
	BatchSize uint64

	// Workers bounds the parallelism of external read-only queries.
	Workers int

	// DistributionAmount is the fixed total T split pro-rata.
	DistributionAmount *big.Int

	// MinValue is the dust threshold: holders below it receive nothing and
	// are not part of any proof set.
	MinValue *big.Int
}

// ether is 10^18 base units.
var ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// DefaultConfig returns the historical recovery-drop parameters: the six
// Eminence tokens snapshotted at block 10954410, valued in DAI, with
// 8,000,000 DAI distributed above a 1 DAI dust threshold.
func DefaultConfig() Config {
	return Config{
		Assets: []Asset{
			{Symbol: "EMN", Address: common.HexToAddress("0x5ade7ae8660293f2ebfcefaba91d141d72d221e8")},
			{Symbol: "eCRV", Address: common.HexToAddress("0xb387e90367f1e621e656900ed2a762dc7d71da8c"), TwoStep: true},
			{Symbol: "eLINK", Address: common.HexToAddress("0xe4ffd682380c571a6a07dd8f20b402412e02830e"), TwoStep: true},
			{Symbol: "eAAVE", Address: common.HexToAddress("0xc08f38f43adb64d16fe9f9efcc2949d9eddec198"), TwoStep: true},
			{Symbol: "eYFI", Address: common.HexToAddress("0xed35197cadf01fcbfe6cfc11081f299cffb095bf"), TwoStep: true},
			{Symbol: "eSNX", Address: common.HexToAddress("0xd77c2ab1cd0faa4b79e16a0e7472cb222a9ee175"), TwoStep: true},
		},
		BaseAsset:          common.HexToAddress("0x5ade7ae8660293f2ebfcefaba91d141d72d221e8"),
		UniswapFactory:     common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		StartBlock:         10950650,
		SnapshotBlock:      10954410,
		BatchSize:          1000,
		Workers:            10,
		DistributionAmount: new(big.Int).Mul(big.NewInt(8_000_000), ether),
		MinValue:           new(big.Int).Set(ether),
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return errors.New("config: no assets configured")
	}
	seen := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("config: asset %s has no symbol", a.Address)
		}
		if seen[a.Symbol] {
			return fmt.Errorf("config: duplicate asset symbol %q", a.Symbol)
		}
		seen[a.Symbol] = true
		if a.Address == (common.Address{}) {
			return fmt.Errorf("config: asset %s has no address", a.Symbol)
		}
	}
	if c.BaseAsset == (common.Address{}) {
		return errors.New("config: base asset not set")
	}
	if c.StartBlock >= c.SnapshotBlock {
		return fmt.Errorf("config: start block %d not before snapshot block %d", c.StartBlock, c.SnapshotBlock)
	}
	if c.BatchSize == 0 {
		return errors.New("config: batch size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: invalid worker count %d", c.Workers)
	}
	if c.DistributionAmount == nil || c.DistributionAmount.Sign() <= 0 {
		return errors.New("config: distribution amount must be positive")
	}
	if c.MinValue == nil || c.MinValue.Sign() < 0 {
		return errors.New("config: min value must be non-negative")
	}
	return nil
}
