package fetchers

import (
	"context"
	"encoding/json"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3-frozen/position-fetchers/internal/contracts"
	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/multicall"
	"github.com/web3-frozen/position-fetchers/internal/multicall/multicalltest"
	"github.com/web3-frozen/position-fetchers/internal/position"
)

var (
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	wantAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	synthAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// vendorDocs are the JSON bodies served by the fake vault API.
type vendorDocs struct {
	vaults      []map[string]any
	tokenPrices map[string]map[string]float64
	apy         map[string]float64
	lps         map[string]float64
	prices      map[string]float64
}

func activeVault() map[string]any {
	return map[string]any{
		"id":                  "wnear-aurora",
		"name":                "WANT Vault",
		"earnContractAddress": vaultAddr.Hex(),
		"earnedToken":         "vwWANT",
		"oracleId":            "WANT",
		"tokenAddress":        wantAddr.Hex(),
		"tokenDecimals":       18,
		"pricePerFullShare":   "2000000000000000000",
		"logo":                "",
		"status":              "active",
		"assets":              []string{"WANT", "NEAR"},
	}
}

func defaultDocs() vendorDocs {
	return vendorDocs{
		vaults:      []map[string]any{activeVault()},
		tokenPrices: map[string]map[string]float64{"aurora": {"vwWANT": 6}},
		apy:         map[string]float64{"wnear-aurora": 0.1234},
		lps:         map[string]float64{},
		prices:      map[string]float64{"WANT": 3},
	}
}

func newVaultServer(t *testing.T, docs vendorDocs) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(path string, body any) {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		})
	}
	serve("/vaults", docs.vaults)
	serve("/vaportokenprices", docs.tokenPrices)
	serve("/apy", docs.apy)
	serve("/lps", docs.lps)
	serve("/prices", docs.prices)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func vaultChain() *multicalltest.Chain {
	chain := multicalltest.New()
	chain.On(vaultAddr, contracts.Vault, "symbol").Return("vwWANT")
	chain.On(vaultAddr, contracts.Vault, "decimals").Return(uint8(18))
	chain.On(vaultAddr, contracts.Vault, "totalSupply").Return(ether(5))
	chain.On(vaultAddr, contracts.Vault, "balance").Return(ether(1))
	chain.On(wantAddr, contracts.ERC20, "symbol").Return("WANT")
	chain.On(wantAddr, contracts.ERC20, "decimals").Return(uint8(18))
	return chain
}

func newTestVaultFetcher(t *testing.T, docs vendorDocs, chain *multicalltest.Chain) monitor.Fetcher {
	t.Helper()
	srv := newVaultServer(t, docs)
	cfg := VaporwaveVaults
	cfg.APIBase = srv.URL
	readers := multicall.Readers{position.Aurora: multicall.NewReader(position.Aurora, chain)}
	return NewVaultAPI(cfg, readers, srv.Client(), discard)
}

func TestVaultPosition(t *testing.T) {
	chain := vaultChain()
	f := newTestVaultFetcher(t, defaultDocs(), chain)

	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("positions = %d, want 1", len(got))
	}
	pos := got[0].(*position.AppTokenPosition)

	if pos.Supply != 5 {
		t.Errorf("Supply = %v, want 5", pos.Supply)
	}
	if pos.PricePerShare != 2 {
		t.Errorf("PricePerShare = %v, want 2", pos.PricePerShare)
	}
	if pos.DataProps.Liquidity != 3 {
		t.Errorf("Liquidity = %v, want 3", pos.DataProps.Liquidity)
	}
	if pos.Price != 6 {
		t.Errorf("Price = %v, want 6", pos.Price)
	}
	if pos.Symbol != "vwWANT" || pos.Decimals != 18 {
		t.Errorf("Symbol/Decimals = %s/%d", pos.Symbol, pos.Decimals)
	}
	if pos.Address != "0x00000000000000000000000000000000000000b1" {
		t.Errorf("Address = %q", pos.Address)
	}
	if len(pos.Tokens) != 1 || pos.Tokens[0].Symbol != "WANT" || pos.Tokens[0].Price != 3 {
		t.Errorf("Tokens = %+v", pos.Tokens)
	}
	if pos.Tokens[0].Address != "0x00000000000000000000000000000000000000aa" {
		t.Errorf("want address = %q", pos.Tokens[0].Address)
	}
	if pos.DataProps.APY != 0.1234 {
		t.Errorf("APY = %v", pos.DataProps.APY)
	}

	d := pos.DisplayProps
	if d.Label != "WANT Vault" {
		t.Errorf("Label = %q", d.Label)
	}
	if d.SecondaryLabel == nil || d.SecondaryLabel.Type != "dollar" || d.SecondaryLabel.Value != 6 {
		t.Errorf("SecondaryLabel = %+v", d.SecondaryLabel)
	}
	if d.TertiaryLabel != "12.340% APY" {
		t.Errorf("TertiaryLabel = %q", d.TertiaryLabel)
	}
	wantImages := []string{
		vaporwaveAssets + "single-assets/WANT.svg",
		vaporwaveAssets + "single-assets/NEAR.svg",
	}
	if len(d.Images) != 2 || d.Images[0] != wantImages[0] || d.Images[1] != wantImages[1] {
		t.Errorf("Images = %v", d.Images)
	}
	if len(d.StatsItems) != 2 {
		t.Fatalf("StatsItems = %+v", d.StatsItems)
	}
	if s := d.StatsItems[0]; s.Label != "Liquidity" || s.Value.Type != "dollar" || s.Value.Value != 3 {
		t.Errorf("liquidity stat = %+v", s)
	}
	if s := d.StatsItems[1]; s.Label != "APY" || s.Value.Type != "pct" || math.Abs(s.Value.Value-12.34) > 1e-9 {
		t.Errorf("APY stat = %+v", s)
	}

	if chain.Rounds() != 1 {
		t.Errorf("round trips = %d, want 1", chain.Rounds())
	}
}

func TestVaultMissingTokenDecimals(t *testing.T) {
	tests := []struct {
		name          string
		wantDecimals  bool
		wantLiquidity float64
	}{
		{"want token decimals", true, 3},
		{"no decimals anywhere", false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := defaultDocs()
			delete(docs.vaults[0], "tokenDecimals")
			chain := vaultChain()
			if !tt.wantDecimals {
				chain.On(wantAddr, contracts.ERC20, "decimals").Revert()
			}
			f := newTestVaultFetcher(t, docs, chain)

			got, err := f.GetPositions(context.Background())
			if err != nil {
				t.Fatalf("GetPositions: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("positions = %d, want 1", len(got))
			}
			if l := got[0].Liquidity(); l != tt.wantLiquidity {
				t.Errorf("Liquidity = %v, want %v", l, tt.wantLiquidity)
			}
		})
	}
}

func TestVaultReserveUsesWantDecimals(t *testing.T) {
	docs := defaultDocs()
	delete(docs.vaults[0], "tokenDecimals")
	chain := vaultChain()
	chain.On(wantAddr, contracts.ERC20, "decimals").Return(uint8(6))
	chain.On(vaultAddr, contracts.Vault, "balance").Return(big.NewInt(2_000_000))
	f := newTestVaultFetcher(t, docs, chain)

	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	// 2.0 reserve at 6 decimals.
	if l := got[0].Liquidity(); l != 6 {
		t.Errorf("Liquidity = %v, want 6", l)
	}
}

func TestVaultLogoImage(t *testing.T) {
	docs := defaultDocs()
	docs.vaults[0]["logo"] = "uniswap/want-near.png"
	f := newTestVaultFetcher(t, docs, vaultChain())

	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	images := got[0].(*position.AppTokenPosition).DisplayProps.Images
	if len(images) != 1 || images[0] != vaporwaveAssets+"uniswap/want-near.png" {
		t.Errorf("Images = %v", images)
	}
}

func TestVaultWantPriceOrder(t *testing.T) {
	tests := []struct {
		name      string
		lps       map[string]float64
		prices    map[string]float64
		wantPrice float64
		wantCount int
	}{
		{"per-vault price first", map[string]float64{"wnear-aurora": 4}, map[string]float64{"WANT": 3}, 4, 1},
		{"symbol price second", map[string]float64{}, map[string]float64{"WANT": 3}, 3, 1},
		{"zero per-vault price falls through", map[string]float64{"wnear-aurora": 0}, map[string]float64{"WANT": 3}, 3, 1},
		{"unresolvable price is dropped", map[string]float64{}, map[string]float64{"OTHER": 1}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := defaultDocs()
			docs.lps = tt.lps
			docs.prices = tt.prices
			f := newTestVaultFetcher(t, docs, vaultChain())

			got, err := f.GetPositions(context.Background())
			if err != nil {
				t.Fatalf("GetPositions: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("positions = %d, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			pos := got[0].(*position.AppTokenPosition)
			if pos.Tokens[0].Price != tt.wantPrice {
				t.Errorf("want price = %v, want %v", pos.Tokens[0].Price, tt.wantPrice)
			}
			// 1.0 reserve of the same token.
			if pos.DataProps.Liquidity != tt.wantPrice {
				t.Errorf("Liquidity = %v, want %v", pos.DataProps.Liquidity, tt.wantPrice)
			}
		})
	}
}

func TestVaultInactiveIsDropped(t *testing.T) {
	docs := defaultDocs()
	docs.vaults[0]["status"] = "retired"
	chain := vaultChain()
	f := newTestVaultFetcher(t, docs, chain)

	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("positions = %d, want 0", len(got))
	}
	if chain.Calls() != 0 {
		t.Errorf("inactive vault was read on-chain (%d calls)", chain.Calls())
	}
}

func TestVaultSyntheticAsset(t *testing.T) {
	docs := defaultDocs()
	synth := activeVault()
	synth["id"] = "near-native"
	synth["name"] = "NEAR Vault"
	synth["earnContractAddress"] = synthAddr.Hex()
	synth["tokenAddress"] = ""
	synth["oracleId"] = "NEAR"
	synth["tokenDecimals"] = 24
	docs.vaults = append(docs.vaults, synth)
	docs.prices["NEAR"] = 2

	chain := vaultChain()
	chain.On(synthAddr, contracts.Vault, "symbol").Return("vwNEAR")
	chain.On(synthAddr, contracts.Vault, "decimals").Return(uint8(24))
	chain.On(synthAddr, contracts.Vault, "totalSupply").Return(ether(1))
	chain.On(synthAddr, contracts.Vault, "balance").Return(ether(1))

	f := newTestVaultFetcher(t, docs, chain)
	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("positions = %d, want 2", len(got))
	}
	pos := got[1].(*position.AppTokenPosition)
	want := pos.Tokens[0]
	if want.Address != "" || want.Symbol != "NEAR" || want.Decimals != 18 || want.Price != 2 {
		t.Errorf("synthetic token = %+v", want)
	}
	// 1e18 base units at 24 decimals.
	if l := pos.DataProps.Liquidity; l < 1.99e-6 || l > 2.01e-6 {
		t.Errorf("Liquidity = %v, want 2e-6", l)
	}
}

func TestVaultSyntheticWithoutPriceIsDropped(t *testing.T) {
	docs := defaultDocs()
	docs.vaults[0]["tokenAddress"] = ""
	docs.vaults[0]["oracleId"] = "MISSING"

	f := newTestVaultFetcher(t, docs, vaultChain())
	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("positions = %d, want 0", len(got))
	}
}

func TestVaultReadFailureDropsOnlyThatVault(t *testing.T) {
	docs := defaultDocs()
	broken := activeVault()
	broken["id"] = "broken"
	broken["earnContractAddress"] = synthAddr.Hex()
	docs.vaults = append(docs.vaults, broken)

	f := newTestVaultFetcher(t, docs, vaultChain())
	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(got) != 1 || got[0].PositionAddress() != "0x00000000000000000000000000000000000000b1" {
		t.Errorf("positions = %+v, want only the readable vault", got)
	}
}

func TestVaultWantMetadataFallback(t *testing.T) {
	chain := multicalltest.New()
	chain.On(vaultAddr, contracts.Vault, "symbol").Return("vwWANT")
	chain.On(vaultAddr, contracts.Vault, "decimals").Return(uint8(18))
	chain.On(vaultAddr, contracts.Vault, "totalSupply").Return(ether(5))
	chain.On(vaultAddr, contracts.Vault, "balance").Return(ether(1))

	docs := defaultDocs()
	docs.lps = map[string]float64{"wnear-aurora": 3}
	f := newTestVaultFetcher(t, docs, chain)

	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	want := got[0].(*position.AppTokenPosition).Tokens[0]
	if want.Symbol != "" || want.Decimals != 18 {
		t.Errorf("want token = %+v, want empty symbol and 18 decimals", want)
	}
}

func TestVaultMissingAPY(t *testing.T) {
	docs := defaultDocs()
	docs.apy = map[string]float64{}
	f := newTestVaultFetcher(t, docs, vaultChain())

	got, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	pos := got[0].(*position.AppTokenPosition)
	if pos.DataProps.APY != 0 || pos.DisplayProps.TertiaryLabel != "" {
		t.Errorf("APY = %v, tertiary = %q", pos.DataProps.APY, pos.DisplayProps.TertiaryLabel)
	}
	if stats := pos.DisplayProps.StatsItems; len(stats) != 1 || stats[0].Label != "Liquidity" {
		t.Errorf("StatsItems = %+v, want liquidity only", stats)
	}
}

func TestVaultIsIdempotent(t *testing.T) {
	f := newTestVaultFetcher(t, defaultDocs(), vaultChain())

	first, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("first GetPositions: %v", err)
	}
	second, err := f.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("second GetPositions: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("results differ:\n%s\n%s", a, b)
	}
}

func TestVaultUpstreamFailure(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := VaporwaveVaults
		cfg.APIBase = srv.URL
		readers := multicall.Readers{position.Aurora: multicall.NewReader(position.Aurora, vaultChain())}
		f := NewVaultAPI(cfg, readers, srv.Client(), discard)
		if _, err := f.GetPositions(context.Background()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := VaporwaveVaults
		cfg.APIBase = srv.URL
		readers := multicall.Readers{position.Aurora: multicall.NewReader(position.Aurora, vaultChain())}
		f := NewVaultAPI(cfg, readers, srv.Client(), discard)
		if _, err := f.GetPositions(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCatalog(t *testing.T) {
	fs := Catalog(Deps{Logger: discard, Prices: &fakePrices{}})
	if len(fs) != 2 {
		t.Fatalf("Catalog = %d fetchers, want 2", len(fs))
	}
	keys := map[string]bool{}
	for _, f := range fs {
		keys[f.Registration().Key()] = true
	}
	for _, k := range []string{"solace:xslocker:ethereum", "vaporwave-finance:vault:aurora"} {
		if !keys[k] {
			t.Errorf("Catalog missing %s", k)
		}
	}

	tracked := TrackedTokens()[position.Ethereum]
	if len(tracked) != 1 || tracked[0] != "0x501ace9c35e60f03a2af4d484f49f9b1efde9f40" {
		t.Errorf("TrackedTokens = %v", tracked)
	}
}
