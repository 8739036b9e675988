package fetchers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/position-fetchers/internal/contracts"
	"github.com/web3-frozen/position-fetchers/internal/metrics"
	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/multicall"
	"github.com/web3-frozen/position-fetchers/internal/position"
	"github.com/web3-frozen/position-fetchers/internal/pricing"
	"github.com/web3-frozen/position-fetchers/internal/units"
)

const (
	vaporwaveAPI    = "https://api.vaporwave.farm"
	vaporwaveAssets = "https://raw.githubusercontent.com/VaporwaveFinance/vwave-app-pub/main/src/"

	statusActive = "active"
)

// VaultDetails is one entry of the vendor vault catalog.
type VaultDetails struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	EarnContractAddress string      `json:"earnContractAddress"`
	EarnedToken         string      `json:"earnedToken"`
	OracleID            string      `json:"oracleId"`
	TokenAddress        string      `json:"tokenAddress"`
	TokenDecimals       *uint8      `json:"tokenDecimals"`
	PricePerFullShare   json.Number `json:"pricePerFullShare"`
	Logo                string      `json:"logo"`
	Status              string      `json:"status"`
	Assets              []string    `json:"assets"`
}

// Synthetic reports whether the vault's want asset is not an ERC-20.
func (v *VaultDetails) Synthetic() bool { return v.TokenAddress == "" }

// VaultAPIConfig describes a vault protocol whose catalog and prices come from
// a REST API and whose supply and reserves are read on-chain.
type VaultAPIConfig struct {
	Registration monitor.Registration
	APIBase      string
	AssetBase    string
}

// VaporwaveVaults is the Vaporwave Finance vault catalog on Aurora.
var VaporwaveVaults = VaultAPIConfig{
	Registration: monitor.Registration{
		AppID:   "vaporwave-finance",
		GroupID: "vault",
		Network: position.Aurora,
	},
	APIBase:   vaporwaveAPI,
	AssetBase: vaporwaveAssets,
}

// NewVaultAPI returns a fetcher that builds one app token position per active
// vault of the catalog.
func NewVaultAPI(cfg VaultAPIConfig, readers multicall.Readers, client *http.Client, logger *slog.Logger) monitor.Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	v := &vaultAPI{
		cfg:     cfg,
		base:    strings.TrimRight(cfg.APIBase, "/"),
		readers: readers,
		client:  client,
		logger:  logger,
	}
	return monitor.NewFetcher(cfg.Registration, v.getPositions)
}

type vaultAPI struct {
	cfg     VaultAPIConfig
	base    string
	readers multicall.Readers
	client  *http.Client
	logger  *slog.Logger
}

// vendorData holds the REST documents of one fetch.
type vendorData struct {
	vaults      []VaultDetails
	tokenPrices map[string]map[string]float64
	apy         map[string]float64
	lps         map[string]float64
	prices      map[string]float64
}

// vaultReads are the pending on-chain reads of one vault.
type vaultReads struct {
	symbol, decimals, supply, balance *multicall.Result
	wantSymbol, wantDecimals          *multicall.Result
}

func (v *vaultAPI) getPositions(ctx context.Context) ([]position.Position, error) {
	data, err := v.fetchVendorData(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := v.readers.For(v.cfg.Registration.Network)
	if err != nil {
		return nil, err
	}

	active := make([]VaultDetails, 0, len(data.vaults))
	for _, vault := range data.vaults {
		if vault.Status != statusActive {
			v.drop(vault, "inactive")
			continue
		}
		active = append(active, vault)
	}

	b := multicall.NewBatch()
	reads := make([]vaultReads, len(active))
	for i, vault := range active {
		addr := common.HexToAddress(vault.EarnContractAddress)
		reads[i] = vaultReads{
			symbol:   b.Add(addr, contracts.Vault, "symbol"),
			decimals: b.Add(addr, contracts.Vault, "decimals"),
			supply:   b.Add(addr, contracts.Vault, "totalSupply"),
			balance:  b.Add(addr, contracts.Vault, "balance"),
		}
		if !vault.Synthetic() {
			want := common.HexToAddress(vault.TokenAddress)
			reads[i].wantSymbol = b.Add(want, contracts.ERC20, "symbol")
			reads[i].wantDecimals = b.Add(want, contracts.ERC20, "decimals")
		}
	}
	if err := reader.Execute(ctx, b); err != nil {
		return nil, err
	}

	out := make([]position.Position, 0, len(active))
	for i, vault := range active {
		pos, reason := v.build(vault, reads[i], data)
		if pos == nil {
			v.drop(vault, reason)
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func (v *vaultAPI) build(vault VaultDetails, r vaultReads, data *vendorData) (*position.AppTokenPosition, string) {
	network := v.cfg.Registration.Network

	symbol, err := r.symbol.AsString()
	if err != nil {
		return nil, "read_failed"
	}
	decimals, err := r.decimals.AsUint8()
	if err != nil {
		return nil, "read_failed"
	}
	supplyRaw, err := r.supply.AsBigInt()
	if err != nil {
		return nil, "read_failed"
	}
	balanceRaw, err := r.balance.AsBigInt()
	if err != nil {
		return nil, "read_failed"
	}

	var want position.Token
	if vault.Synthetic() {
		q := pricing.Resolve(pricing.FromMap("prices", data.prices, vault.OracleID))
		if !q.OK() {
			return nil, "no_price"
		}
		want = position.NewToken(network, "", vault.OracleID, units.DefaultDecimals)
		want.Price = q.Price
	} else {
		dec, err := r.wantDecimals.AsUint8()
		want = position.NewToken(network, vault.TokenAddress, r.wantSymbol.StringOr(""), units.DecimalsOr(dec, err == nil))
		q := pricing.Resolve(
			pricing.FromMap("lps", data.lps, vault.ID),
			pricing.FromMap("prices", data.prices, want.Symbol),
		)
		if !q.OK() {
			return nil, "no_price"
		}
		want.Price = q.Price
	}

	pricePerShare, err := sharePrice(vault.PricePerFullShare)
	if err != nil {
		return nil, "malformed"
	}
	price := data.tokenPrices[string(network)][vault.EarnedToken]

	reserve := units.Normalize(balanceRaw, reserveDecimals(vault, want))
	liquidity := reserve * want.Price

	display := position.DisplayProps{
		Label:          vault.Name,
		Images:         v.images(vault),
		SecondaryLabel: ptr(position.DollarDisplayItem(price)),
		StatsItems: []position.StatsItem{
			{Label: "Liquidity", Value: position.DollarDisplayItem(liquidity)},
		},
	}
	apy, hasAPY := data.apy[vault.ID]
	if hasAPY {
		display.TertiaryLabel = fmt.Sprintf("%.3f%% APY", apy*100)
		display.StatsItems = append(display.StatsItems,
			position.StatsItem{Label: "APY", Value: position.PercentageDisplayItem(apy * 100)})
	}

	return &position.AppTokenPosition{
		Type:          position.AppToken,
		AppID:         v.cfg.Registration.AppID,
		GroupID:       v.cfg.Registration.GroupID,
		Address:       strings.ToLower(vault.EarnContractAddress),
		Network:       network,
		Symbol:        symbol,
		Decimals:      decimals,
		Supply:        units.Normalize(supplyRaw, decimals),
		PricePerShare: pricePerShare,
		Price:         price,
		Tokens:        []position.Token{want},
		DataProps: position.DataProps{
			Liquidity: liquidity,
			APY:       apy,
		},
		DisplayProps: display,
	}, ""
}

func (v *vaultAPI) images(vault VaultDetails) []string {
	if vault.Logo != "" {
		return []string{v.cfg.AssetBase + vault.Logo}
	}
	images := make([]string, 0, len(vault.Assets))
	for _, asset := range vault.Assets {
		images = append(images, v.cfg.AssetBase+"single-assets/"+asset+".svg")
	}
	return images
}

func (v *vaultAPI) drop(vault VaultDetails, reason string) {
	key := v.cfg.Registration.Key()
	metrics.EntriesDroppedTotal.WithLabelValues(key, reason).Inc()
	v.logger.Debug("vault skipped", "fetcher", key, "vault", vault.ID, "reason", reason)
}

// fetchVendorData downloads every REST document concurrently. Any failure
// fails the whole fetch.
func (v *vaultAPI) fetchVendorData(ctx context.Context) (*vendorData, error) {
	data := &vendorData{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.getJSON(gctx, "/vaults", &data.vaults) })
	g.Go(func() error { return v.getJSON(gctx, "/vaportokenprices", &data.tokenPrices) })
	g.Go(func() error { return v.getJSON(gctx, "/apy", &data.apy) })
	g.Go(func() error { return v.getJSON(gctx, "/lps", &data.lps) })
	g.Go(func() error { return v.getJSON(gctx, "/prices", &data.prices) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (v *vaultAPI) getJSON(ctx context.Context, path string, out any) error {
	vendor := v.cfg.Registration.AppID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		metrics.VendorRequestsTotal.WithLabelValues(vendor, "error").Inc()
		return fmt.Errorf("%s %s: %w", vendor, path, err)
	}
	defer resp.Body.Close()
	metrics.VendorRequestsTotal.WithLabelValues(vendor, fmt.Sprint(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s status: %d", vendor, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", vendor, path, err)
	}
	return nil
}

// reserveDecimals returns the catalog's tokenDecimals, else the decimals of
// the want token, which already fall back to units.DefaultDecimals.
func reserveDecimals(vault VaultDetails, want position.Token) uint8 {
	if vault.TokenDecimals != nil {
		return *vault.TokenDecimals
	}
	return want.Decimals
}

// sharePrice scales an 18-decimal price per full share. A missing value is 0.
func sharePrice(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	return units.NormalizeString(n.String(), 18)
}

func ptr[T any](v T) *T { return &v }
