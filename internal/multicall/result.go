package multicall

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Result is the pending outcome of one call in a Batch.
type Result struct {
	target   common.Address
	contract *abi.ABI
	method   string
	calldata []byte

	done   bool
	values []interface{}
	err    error
}

// Values returns the decoded outputs of the call.
func (r *Result) Values() ([]interface{}, error) {
	if r.err != nil {
		return nil, r.err
	}
	if !r.done {
		return nil, errNotExecuted
	}
	return r.values, nil
}

func first[T any](r *Result) (T, error) {
	var zero T
	vals, err := r.Values()
	if err != nil {
		return zero, err
	}
	if len(vals) == 0 {
		return zero, fmt.Errorf("%s returned no values", r.method)
	}
	v, ok := vals[0].(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T, want %T", r.method, vals[0], zero)
	}
	return v, nil
}

func (r *Result) AsString() (string, error)   { return first[string](r) }
func (r *Result) AsUint8() (uint8, error)     { return first[uint8](r) }
func (r *Result) AsBigInt() (*big.Int, error) { return first[*big.Int](r) }

// StringOr returns the string output, or def when the call failed.
func (r *Result) StringOr(def string) string {
	v, err := r.AsString()
	if err != nil {
		return def
	}
	return v
}

// Uint8Or returns the uint8 output, or def when the call failed.
func (r *Result) Uint8Or(def uint8) uint8 {
	v, err := r.AsUint8()
	if err != nil {
		return def
	}
	return v
}
