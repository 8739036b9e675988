package multicall

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/position-fetchers/internal/contracts"
	"github.com/web3-frozen/position-fetchers/internal/multicall/multicalltest"
	"github.com/web3-frozen/position-fetchers/internal/position"
)

var (
	token  = common.HexToAddress("0x501ace9c35e60f03a2af4d484f49f9b1efde9f40")
	locker = common.HexToAddress("0x501ace47c5b0c2099c4464f681c3fa2ecd3146c1")
)

func TestExecuteDecodesResults(t *testing.T) {
	chain := multicalltest.New()
	chain.On(token, contracts.ERC20, "symbol").Return("SOLACE")
	chain.On(token, contracts.ERC20, "decimals").Return(uint8(18))
	chain.On(token, contracts.ERC20, "balanceOf", locker).Return(big.NewInt(42))

	r := NewReader(position.Ethereum, chain)
	b := NewBatch()
	sym := b.Add(token, contracts.ERC20, "symbol")
	dec := b.Add(token, contracts.ERC20, "decimals")
	bal := b.Add(token, contracts.ERC20, "balanceOf", locker)

	require.NoError(t, r.Execute(context.Background(), b))
	require.Equal(t, 1, chain.Rounds())

	s, err := sym.AsString()
	require.NoError(t, err)
	require.Equal(t, "SOLACE", s)

	d, err := dec.AsUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(18), d)

	v, err := bal.AsBigInt()
	require.NoError(t, err)
	require.Equal(t, int64(42), v.Int64())
}

func TestBatchDeduplicates(t *testing.T) {
	chain := multicalltest.New()
	chain.On(token, contracts.ERC20, "decimals").Return(uint8(6))

	b := NewBatch()
	first := b.Add(token, contracts.ERC20, "decimals")
	second := b.Add(token, contracts.ERC20, "decimals")
	require.Same(t, first, second)
	require.Equal(t, 1, b.Len())

	require.NoError(t, NewReader(position.Ethereum, chain).Execute(context.Background(), b))
	require.Equal(t, 1, chain.Calls())
}

func TestRevertedCallIsLocal(t *testing.T) {
	chain := multicalltest.New()
	chain.On(token, contracts.ERC20, "decimals").Return(uint8(18))

	b := NewBatch()
	sym := b.Add(token, contracts.ERC20, "symbol")
	dec := b.Add(token, contracts.ERC20, "decimals")

	require.NoError(t, NewReader(position.Ethereum, chain).Execute(context.Background(), b))

	_, err := sym.AsString()
	require.ErrorIs(t, err, ErrCallFailed)
	require.Equal(t, "", sym.StringOr(""))
	require.Equal(t, uint8(18), dec.Uint8Or(0))
}

func TestChunking(t *testing.T) {
	chain := multicalltest.New()
	b := NewBatch()
	var results []*Result
	for i := 0; i < 7; i++ {
		holder := common.BigToAddress(big.NewInt(int64(i + 1)))
		chain.On(token, contracts.ERC20, "balanceOf", holder).Return(big.NewInt(int64(i)))
		results = append(results, b.Add(token, contracts.ERC20, "balanceOf", holder))
	}

	r := NewReader(position.Ethereum, chain, WithChunkSize(3))
	require.NoError(t, r.Execute(context.Background(), b))
	require.Equal(t, 3, chain.Rounds())

	for i, res := range results {
		v, err := res.AsBigInt()
		require.NoError(t, err)
		require.Equal(t, int64(i), v.Int64())
	}
}

func TestTransportErrorFailsBatch(t *testing.T) {
	chain := multicalltest.New()
	chain.Err = errors.New("connection refused")

	b := NewBatch()
	res := b.Add(token, contracts.ERC20, "symbol")
	require.Error(t, NewReader(position.Ethereum, chain).Execute(context.Background(), b))

	_, err := res.AsString()
	require.Error(t, err)
}

func TestPackErrorIsRecorded(t *testing.T) {
	b := NewBatch()
	res := b.Add(token, contracts.ERC20, "balanceOf", "not-an-address")
	require.Equal(t, 0, b.Len())

	_, err := res.AsBigInt()
	require.Error(t, err)
}

func TestReadersFor(t *testing.T) {
	rs := Readers{position.Ethereum: NewReader(position.Ethereum, multicalltest.New())}
	r, err := rs.For(position.Ethereum)
	require.NoError(t, err)
	require.Equal(t, position.Ethereum, r.Network())

	_, err = rs.For(position.Aurora)
	require.Error(t, err)
}
