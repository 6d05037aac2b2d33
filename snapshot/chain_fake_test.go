package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/merkledrop/merkledrop/artifact"
	"github.com/merkledrop/merkledrop/chain"
)

// fakeChain is an in-memory ChainReader: scripted transfer histories,
// bonding-curve rates, code presence and pool shapes. It counts queries so
// tests can assert the skip-on-exists contract.
type fakeChain struct {
	mu sync.Mutex

	// transfers[token] is the token's full event history with block numbers.
	transfers map[common.Address][]fakeTransfer

	// rate[contract] multiplies the burn amount to produce the oracle value.
	rate map[common.Address]int64

	// contracts hosts code.
	contracts map[common.Address]bool

	// uniswapFactory[pool] is what the pool's factory() probe answers.
	uniswapFactory map[common.Address]common.Address

	// balancerColor[pool] is what the pool's getColor() probe answers.
	balancerColor map[common.Address][32]byte

	// archiveSupplyDiffers controls the precondition check; true means the
	// node serves distinct historical state.
	archiveSupplyDiffers bool

	// failCallsTo makes eth_call against this address fail.
	failCallsTo common.Address

	queries int
}

type fakeTransfer struct {
	block uint64
	ev    chain.TransferEvent
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		transfers:            make(map[common.Address][]fakeTransfer),
		rate:                 make(map[common.Address]int64),
		contracts:            make(map[common.Address]bool),
		uniswapFactory:       make(map[common.Address]common.Address),
		balancerColor:        make(map[common.Address][32]byte),
		archiveSupplyDiffers: true,
	}
}

func (f *fakeChain) addTransfer(token common.Address, block uint64, from, to common.Address, amount int64) {
	f.transfers[token] = append(f.transfers[token], fakeTransfer{
		block: block,
		ev:    chain.TransferEvent{From: from, To: to, Amount: big.NewInt(amount)},
	})
}

func (f *fakeChain) count() {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()
}

func (f *fakeChain) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func (f *fakeChain) TransferLogs(ctx context.Context, token common.Address, fromBlock, toBlock uint64) ([]chain.TransferEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.count()
	var events []chain.TransferEvent
	for _, t := range f.transfers[token] {
		if t.block >= fromBlock && t.block <= toBlock {
			events = append(events, t.ev)
		}
	}
	return events, nil
}

func (f *fakeChain) CallAt(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.count()
	return f.call(to, data, false)
}

func (f *fakeChain) CallLatest(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.count()
	return f.call(to, data, true)
}

func (f *fakeChain) call(to common.Address, data []byte, latest bool) ([]byte, error) {
	if to == f.failCallsTo && to != (common.Address{}) {
		return nil, errors.New("fake: injected call failure")
	}
	if len(data) < 4 {
		return nil, errors.New("fake: short call data")
	}
	selector := data[:4]

	switch {
	case bytes.Equal(selector, callABI.Methods["calculateContinuousBurnReturn"].ID):
		rate, ok := f.rate[to]
		if !ok {
			return nil, fmt.Errorf("fake: no oracle at %s", to)
		}
		args, err := callABI.Methods["calculateContinuousBurnReturn"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		amount := args[0].(*big.Int)
		value := new(big.Int).Mul(amount, big.NewInt(rate))
		return callABI.Methods["calculateContinuousBurnReturn"].Outputs.Pack(value)

	case bytes.Equal(selector, callABI.Methods["totalSupply"].ID):
		supply := big.NewInt(1000)
		if latest && f.archiveSupplyDiffers {
			supply = big.NewInt(2000)
		}
		return callABI.Methods["totalSupply"].Outputs.Pack(supply)

	case bytes.Equal(selector, callABI.Methods["factory"].ID):
		factory, ok := f.uniswapFactory[to]
		if !ok {
			return nil, errors.New("fake: execution reverted")
		}
		return callABI.Methods["factory"].Outputs.Pack(factory)

	case bytes.Equal(selector, callABI.Methods["getColor"].ID):
		color, ok := f.balancerColor[to]
		if !ok {
			return nil, errors.New("fake: execution reverted")
		}
		return callABI.Methods["getColor"].Outputs.Pack(color)
	}
	return nil, errors.New("fake: unknown selector")
}

func (f *fakeChain) CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.count()
	if f.contracts[addr] {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

// addr builds a deterministic test address.
func addr(n byte) common.Address {
	return common.BytesToAddress([]byte{0xab, n})
}

// testConfig returns a small config pointed at the fake chain's range.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Assets = []Asset{{Symbol: "EMN", Address: addr(1)}}
	cfg.BaseAsset = addr(1)
	cfg.StartBlock = 100
	cfg.SnapshotBlock = 200
	cfg.BatchSize = 50
	cfg.Workers = 4
	cfg.DistributionAmount = big.NewInt(600)
	cfg.MinValue = big.NewInt(1)
	return cfg
}

// testPipeline wires a pipeline over the fake chain and a memory store.
func testPipeline(t interface{ Fatalf(string, ...any) }, cfg Config, fc *fakeChain) *Pipeline {
	p, err := New(cfg, fc, artifact.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}
