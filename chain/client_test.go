package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeBackend scripts responses and counts calls.
type fakeBackend struct {
	failuresLeft int
	logs         []types.Log
	callResult   []byte
	code         []byte

	filterCalls int
	callCalls   int
	codeCalls   int
}

var errFlaky = errors.New("connection reset")

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.filterCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errFlaky
	}
	return f.logs, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.callCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errFlaky
	}
	return f.callResult, nil
}

func (f *fakeBackend) CodeAt(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	f.codeCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errFlaky
	}
	return f.code, nil
}

func fastOpts() Options {
	return Options{Retries: 3, Backoff: time.Millisecond}
}

func transferLog(token, from, to common.Address, amount int64) types.Log {
	return types.Log{
		Address: token,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.BigToHash(big.NewInt(amount)).Bytes(),
	}
}

func TestTransferLogs_Decoding(t *testing.T) {
	token := common.HexToAddress("0x01")
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")
	backend := &fakeBackend{logs: []types.Log{transferLog(token, a, b, 1234)}}
	c := NewClient(backend, fastOpts(), nil)

	events, err := c.TransferLogs(context.Background(), token, 100, 200)
	if err != nil {
		t.Fatalf("TransferLogs: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.From != a || ev.To != b || ev.Amount.Cmp(big.NewInt(1234)) != 0 {
		t.Fatalf("decoded event = %+v", ev)
	}
}

func TestTransferLogs_RejectsNonStandardLog(t *testing.T) {
	token := common.HexToAddress("0x01")
	backend := &fakeBackend{logs: []types.Log{{
		Address: token,
		Topics:  []common.Hash{transferTopic}, // from/to not indexed
	}}}
	c := NewClient(backend, fastOpts(), nil)

	if _, err := c.TransferLogs(context.Background(), token, 0, 1); err == nil {
		t.Fatal("expected error for non-standard transfer log")
	}
}

func TestTransferLogs_SkipsRemoved(t *testing.T) {
	token := common.HexToAddress("0x01")
	l := transferLog(token, common.HexToAddress("0xaa"), common.HexToAddress("0xbb"), 1)
	l.Removed = true
	backend := &fakeBackend{logs: []types.Log{l}}
	c := NewClient(backend, fastOpts(), nil)

	events, err := c.TransferLogs(context.Background(), token, 0, 1)
	if err != nil {
		t.Fatalf("TransferLogs: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
}

func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	backend := &fakeBackend{failuresLeft: 2, callResult: []byte{0x01}}
	c := NewClient(backend, fastOpts(), nil)

	out, err := c.CallAt(context.Background(), common.HexToAddress("0x02"), nil, 100)
	if err != nil {
		t.Fatalf("CallAt: %v", err)
	}
	if len(out) != 1 || out[0] != 0x01 {
		t.Fatalf("result = %x", out)
	}
	if backend.callCalls != 3 {
		t.Fatalf("backend called %d times, want 3", backend.callCalls)
	}
}

func TestWithRetry_Exhaustion(t *testing.T) {
	backend := &fakeBackend{failuresLeft: 100}
	c := NewClient(backend, fastOpts(), nil)

	_, err := c.CodeAt(context.Background(), common.HexToAddress("0x02"), 100)
	if !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v, want wrapped errFlaky", err)
	}
	// 1 initial attempt + 3 retries.
	if backend.codeCalls != 4 {
		t.Fatalf("backend called %d times, want 4", backend.codeCalls)
	}
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	backend := &fakeBackend{failuresLeft: 100}
	c := NewClient(backend, Options{Retries: 100, Backoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CallLatest(ctx, common.HexToAddress("0x02"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if backend.callCalls != 1 {
		t.Fatalf("backend called %d times after cancel, want 1", backend.callCalls)
	}
}
