// Package multicalltest provides an in-memory chain that answers Multicall3
// aggregate3 calls from registered stubs.
package multicalltest

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/web3-frozen/position-fetchers/internal/contracts"
)

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3 struct {
	Success    bool
	ReturnData []byte
}

// Chain implements multicall.Caller. Calls without a stub revert.
type Chain struct {
	// Err, when set, fails every round trip.
	Err error

	mu     sync.RWMutex
	stubs  map[string][]byte
	rounds atomic.Int64
	calls  atomic.Int64
}

func New() *Chain {
	return &Chain{stubs: make(map[string][]byte)}
}

// Stub is a pending registration returned by On.
type Stub struct {
	chain    *Chain
	key      string
	contract *abi.ABI
	method   string
}

// On starts a stub for contract.method(args...) on target.
func (c *Chain) On(target common.Address, contract *abi.ABI, method string, args ...interface{}) *Stub {
	data, err := contract.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("multicalltest: pack %s: %v", method, err))
	}
	return &Stub{chain: c, key: stubKey(target, data), contract: contract, method: method}
}

// Return makes the call succeed with outputs.
func (s *Stub) Return(outputs ...interface{}) {
	data, err := s.contract.Methods[s.method].Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("multicalltest: pack %s outputs: %v", s.method, err))
	}
	s.chain.mu.Lock()
	s.chain.stubs[s.key] = data
	s.chain.mu.Unlock()
}

// Revert removes any stub so the call fails.
func (s *Stub) Revert() {
	s.chain.mu.Lock()
	delete(s.chain.stubs, s.key)
	s.chain.mu.Unlock()
}

// Rounds returns the number of aggregate3 round trips served.
func (c *Chain) Rounds() int { return int(c.rounds.Load()) }

// Calls returns the number of individual calls served.
func (c *Chain) Calls() int { return int(c.calls.Load()) }

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}

	method := contracts.Multicall3.Methods["aggregate3"]
	if len(msg.Data) < 4 || !bytes.Equal(msg.Data[:4], method.ID) {
		return nil, fmt.Errorf("multicalltest: unexpected selector")
	}
	vals, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("multicalltest: unpack calls: %w", err)
	}
	calls := *abi.ConvertType(vals[0], new([]call3)).(*[]call3)

	c.rounds.Add(1)
	c.calls.Add(int64(len(calls)))

	c.mu.RLock()
	results := make([]result3, len(calls))
	for i, call := range calls {
		if data, ok := c.stubs[stubKey(call.Target, call.CallData)]; ok {
			results[i] = result3{Success: true, ReturnData: data}
		} else {
			results[i] = result3{Success: false, ReturnData: []byte{}}
		}
	}
	c.mu.RUnlock()

	return method.Outputs.Pack(results)
}

func stubKey(target common.Address, data []byte) string {
	return strings.ToLower(target.Hex()) + ":" + hex.EncodeToString(data)
}
