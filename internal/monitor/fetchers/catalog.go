// Package fetchers holds the position integrations served by the engine.
//
// Each integration is a config value plus a strategy; adding an app means
// adding a config and listing it in Catalog.
package fetchers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/multicall"
	"github.com/web3-frozen/position-fetchers/internal/position"
	"github.com/web3-frozen/position-fetchers/internal/pricing"
)

// Deps are the shared clients handed to every fetcher.
type Deps struct {
	Readers    multicall.Readers
	Prices     pricing.Provider
	HTTPClient *http.Client
	Logger     *slog.Logger

	// VaporwaveAPI overrides the Vaporwave API base URL when set.
	VaporwaveAPI string
}

// Catalog returns every registered fetcher.
func Catalog(d Deps) []monitor.Fetcher {
	vaults := VaporwaveVaults
	if d.VaporwaveAPI != "" {
		vaults.APIBase = d.VaporwaveAPI
	}
	return []monitor.Fetcher{
		NewLocker(SolaceXSLocker, d.Readers, d.Prices, d.Logger),
		NewVaultAPI(vaults, d.Readers, d.HTTPClient, d.Logger),
	}
}

// TrackedTokens lists the base tokens the pricing provider must quote.
func TrackedTokens() map[position.Network][]string {
	return map[position.Network][]string{
		SolaceXSLocker.Registration.Network: {strings.ToLower(SolaceXSLocker.Token.Hex())},
	}
}
