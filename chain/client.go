// Package chain wraps read-only Ethereum node access for the snapshot
// pipeline: historical log fetches, eth_call pinned to a block and code
// presence checks. All queries target a fixed historical range, so the
// backing node must be able to serve archive state.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/merkledrop/merkledrop/log"
)

// TransferEvent is one decoded ERC-20 Transfer log.
type TransferEvent struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Backend is the subset of ethclient.Client the pipeline needs. It is an
// interface so tests can substitute an in-memory chain.
type Backend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

const transferEventABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

// transferTopic is the topic0 of the canonical ERC-20 Transfer event.
var transferTopic common.Hash

func init() {
	parsed, err := abi.JSON(strings.NewReader(transferEventABI))
	if err != nil {
		panic(fmt.Sprintf("chain: parse transfer ABI: %v", err))
	}
	transferTopic = parsed.Events["Transfer"].ID
}

// Options tunes the per-query retry behavior.
type Options struct {
	// Retries is the number of attempts per query beyond the first.
	Retries int
	// Backoff is the initial delay between attempts; it doubles each retry.
	Backoff time.Duration
}

// DefaultOptions matches the behavior expected of a public RPC provider:
// a few retries with a short growing delay.
func DefaultOptions() Options {
	return Options{Retries: 3, Backoff: 500 * time.Millisecond}
}

// Client issues read-only chain queries with bounded retry. Transient RPC
// failures are retried per individual query; exhaustion escalates to the
// caller, which aborts the stage.
type Client struct {
	backend Backend
	opts    Options
	logger  *log.Logger
}

// NewClient wraps a backend (typically *ethclient.Client).
func NewClient(backend Backend, opts Options, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Client{backend: backend, opts: opts, logger: logger.Module("chain")}
}

// TransferLogs fetches and decodes the ERC-20 Transfer events emitted by
// token in the inclusive block range [fromBlock, toBlock].
func (c *Client) TransferLogs(ctx context.Context, token common.Address, fromBlock, toBlock uint64) ([]TransferEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{transferTopic}},
	}

	var logs []types.Log
	err := c.withRetry(ctx, "eth_getLogs", func() error {
		var err error
		logs, err = c.backend.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain: logs for %s [%d,%d]: %w", token, fromBlock, toBlock, err)
	}

	events := make([]TransferEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		if len(l.Topics) < 3 {
			// from/to not indexed: the token does not follow the standard
			// accounting assumption, fail fast rather than miscount.
			return nil, fmt.Errorf("chain: non-standard transfer log from %s at block %d", l.Address, l.BlockNumber)
		}
		events = append(events, TransferEvent{
			From:   common.BytesToAddress(l.Topics[1].Bytes()),
			To:     common.BytesToAddress(l.Topics[2].Bytes()),
			Amount: new(big.Int).SetBytes(l.Data),
		})
	}
	return events, nil
}

// CallAt performs eth_call against to with the given call data, pinned to a
// historical block.
func (c *Client) CallAt(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error) {
	return c.call(ctx, to, data, new(big.Int).SetUint64(block))
}

// CallLatest performs eth_call against the latest block.
func (c *Client) CallLatest(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.call(ctx, to, data, nil)
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	var out []byte
	err := c.withRetry(ctx, "eth_call", func() error {
		var err error
		out, err = c.backend.CallContract(ctx, msg, block)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to, err)
	}
	return out, nil
}

// CodeAt reports the code hosted at addr at a historical block. An empty
// result means the address is externally owned.
func (c *Client) CodeAt(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	var code []byte
	err := c.withRetry(ctx, "eth_getCode", func() error {
		var err error
		code, err = c.backend.CodeAt(ctx, addr, new(big.Int).SetUint64(block))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain: code at %s: %w", addr, err)
	}
	return code, nil
}

// withRetry runs fn up to 1+Retries times with exponential backoff.
// Context cancellation is never retried: the stage is being torn down.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := c.opts.Backoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= c.opts.Retries {
			return err
		}
		c.logger.Warn("query failed, retrying", "op", op, "attempt", attempt+1, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
