package multicall

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/web3-frozen/position-fetchers/internal/position"
)

// Readers holds one Reader per network.
type Readers map[position.Network]*Reader

// For returns the reader of network.
func (rs Readers) For(network position.Network) (*Reader, error) {
	r, ok := rs[network]
	if !ok {
		return nil, fmt.Errorf("multicall: no RPC configured for %s", network)
	}
	return r, nil
}

func (rs Readers) Close() {
	for _, r := range rs {
		r.Close()
	}
}

// Dial connects to rpcURL and returns a Reader that owns the client.
func Dial(ctx context.Context, network position.Network, rpcURL string, opts ...Option) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", network, err)
	}
	r := NewReader(network, client, opts...)
	r.closeFn = client.Close
	return r, nil
}

// DialAll dials every network of urls. On failure the readers already
// dialled are closed.
func DialAll(ctx context.Context, urls map[position.Network]string, opts ...Option) (Readers, error) {
	rs := make(Readers, len(urls))
	for network, url := range urls {
		r, err := Dial(ctx, network, url, opts...)
		if err != nil {
			rs.Close()
			return nil, err
		}
		rs[network] = r
	}
	return rs, nil
}
