// Package multicall coalesces read-only contract calls into Multicall3
// aggregate3 round trips.
package multicall

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/position-fetchers/internal/contracts"
	"github.com/web3-frozen/position-fetchers/internal/metrics"
	"github.com/web3-frozen/position-fetchers/internal/position"
)

const defaultChunkSize = 500

var (
	// ErrCallFailed is returned by a Result whose call reverted.
	ErrCallFailed  = errors.New("multicall: call reverted")
	errNotExecuted = errors.New("multicall: batch not executed")
)

// Caller executes a single eth_call. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3 struct {
	Success    bool
	ReturnData []byte
}

// Batch collects calls to be executed together. Identical calls (same
// target and calldata) share one Result.
type Batch struct {
	results []*Result
	index   map[string]*Result
}

func NewBatch() *Batch {
	return &Batch{index: make(map[string]*Result)}
}

// Add queues contract.method(args...) on target and returns its pending
// Result. Values are available after Reader.Execute.
func (b *Batch) Add(target common.Address, contract *abi.ABI, method string, args ...interface{}) *Result {
	r := &Result{target: target, contract: contract, method: method}

	data, err := contract.Pack(method, args...)
	if err != nil {
		r.err = fmt.Errorf("pack %s: %w", method, err)
		r.done = true
		return r
	}
	r.calldata = data

	key := target.Hex() + ":" + hex.EncodeToString(data)
	if existing, ok := b.index[key]; ok {
		return existing
	}
	b.index[key] = r
	b.results = append(b.results, r)
	return r
}

// Len returns the number of distinct calls queued.
func (b *Batch) Len() int { return len(b.results) }

// Reader executes batches against one network.
type Reader struct {
	network   position.Network
	caller    Caller
	address   common.Address
	chunkSize int
	closeFn   func()
}

type Option func(*Reader)

// WithAddress overrides the Multicall3 contract address.
func WithAddress(addr common.Address) Option {
	return func(r *Reader) { r.address = addr }
}

// WithChunkSize caps the number of calls per aggregate3 round trip.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

func NewReader(network position.Network, caller Caller, opts ...Option) *Reader {
	r := &Reader{
		network:   network,
		caller:    caller,
		address:   contracts.Multicall3Address,
		chunkSize: defaultChunkSize,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reader) Network() position.Network { return r.network }

// Close releases the underlying RPC client when the reader owns one.
func (r *Reader) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}

// Execute runs every pending call of b. Chunks are sent concurrently. A
// transport failure fails the whole batch; a reverted call only fails its own
// Result.
func (r *Reader) Execute(ctx context.Context, b *Batch) error {
	pending := make([]*Result, 0, len(b.results))
	for _, res := range b.results {
		if !res.done {
			pending = append(pending, res)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(pending); start += r.chunkSize {
		end := min(start+r.chunkSize, len(pending))
		chunk := pending[start:end]
		g.Go(func() error { return r.aggregate(gctx, chunk) })
	}
	return g.Wait()
}

func (r *Reader) aggregate(ctx context.Context, chunk []*Result) error {
	calls := make([]call3, len(chunk))
	for i, res := range chunk {
		calls[i] = call3{Target: res.target, AllowFailure: true, CallData: res.calldata}
	}

	input, err := contracts.Multicall3.Pack("aggregate3", calls)
	if err != nil {
		return fmt.Errorf("pack aggregate3: %w", err)
	}

	start := time.Now()
	to := r.address
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	metrics.MulticallDuration.WithLabelValues(string(r.network)).Observe(time.Since(start).Seconds())
	metrics.MulticallCallsTotal.WithLabelValues(string(r.network)).Add(float64(len(chunk)))
	if err != nil {
		metrics.MulticallRoundTrips.WithLabelValues(string(r.network), "error").Inc()
		return fmt.Errorf("aggregate3 on %s: %w", r.network, err)
	}
	metrics.MulticallRoundTrips.WithLabelValues(string(r.network), "success").Inc()

	unpacked, err := contracts.Multicall3.Unpack("aggregate3", out)
	if err != nil {
		return fmt.Errorf("unpack aggregate3: %w", err)
	}
	results := *abi.ConvertType(unpacked[0], new([]result3)).(*[]result3)
	if len(results) != len(chunk) {
		return fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(chunk))
	}

	for i, res := range results {
		pr := chunk[i]
		pr.done = true
		if !res.Success {
			pr.err = fmt.Errorf("%w: %s on %s", ErrCallFailed, pr.method, pr.target.Hex())
			continue
		}
		vals, err := pr.contract.Unpack(pr.method, res.ReturnData)
		if err != nil {
			pr.err = fmt.Errorf("unpack %s on %s: %w", pr.method, pr.target.Hex(), err)
			continue
		}
		pr.values = vals
	}
	return nil
}
