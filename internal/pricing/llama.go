package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/web3-frozen/position-fetchers/internal/metrics"
	"github.com/web3-frozen/position-fetchers/internal/position"
)

const llamaCoinsAPI = "https://coins.llama.fi"

// Provider resolves the base tokens known for a network, with USD prices.
type Provider interface {
	BaseTokenPrices(ctx context.Context, network position.Network) ([]position.Token, error)
}

// llamaChains maps networks to DefiLlama chain prefixes.
var llamaChains = map[position.Network]string{
	position.Ethereum: "ethereum",
	position.Polygon:  "polygon",
	position.Aurora:   "aurora",
}

type llamaResponse struct {
	Coins map[string]struct {
		Decimals uint8   `json:"decimals"`
		Symbol   string  `json:"symbol"`
		Price    float64 `json:"price"`
	} `json:"coins"`
}

// Llama prices a tracked set of token addresses through the DefiLlama coins
// API. Every call hits the API; nothing is cached.
type Llama struct {
	baseURL string
	client  *http.Client
	tracked map[position.Network][]string
}

func NewLlama(baseURL string, tracked map[position.Network][]string) *Llama {
	if baseURL == "" {
		baseURL = llamaCoinsAPI
	}
	return &Llama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		tracked: tracked,
	}
}

func (l *Llama) BaseTokenPrices(ctx context.Context, network position.Network) ([]position.Token, error) {
	chain, ok := llamaChains[network]
	if !ok {
		return nil, fmt.Errorf("llama: unsupported network %q", network)
	}
	addrs := l.tracked[network]
	if len(addrs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(addrs))
	for i, a := range addrs {
		ids[i] = chain + ":" + strings.ToLower(a)
	}
	url := fmt.Sprintf("%s/prices/current/%s", l.baseURL, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		metrics.VendorRequestsTotal.WithLabelValues("llama", "error").Inc()
		return nil, fmt.Errorf("llama API: %w", err)
	}
	defer resp.Body.Close()
	metrics.VendorRequestsTotal.WithLabelValues("llama", fmt.Sprint(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama API status: %d", resp.StatusCode)
	}

	var data llamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode llama: %w", err)
	}

	tokens := make([]position.Token, 0, len(data.Coins))
	for id, c := range data.Coins {
		addr := strings.TrimPrefix(id, chain+":")
		t := position.NewToken(network, addr, c.Symbol, c.Decimals)
		t.Price = c.Price
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Address < tokens[j].Address })
	return tokens, nil
}
