package config

import (
	"context"
	"log/slog"
	"os"
	"time"

	infisical "github.com/infisical/go-sdk"

	"github.com/web3-frozen/position-fetchers/internal/position"
)

type Config struct {
	Port           string
	DatabaseURL    string
	FrontendOrigin string
	RedisURL       string
	RedisPassword  string
	NatsURL        string

	RefreshSchedule   string
	SnapshotCacheTTL  time.Duration
	SnapshotRetention time.Duration

	EthereumRPCURL   string
	PolygonRPCURL    string
	AuroraRPCURL     string
	MulticallAddress string

	LlamaCoinsURL   string
	VaporwaveAPIURL string
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		NatsURL:        os.Getenv("NATS_URL"),

		RefreshSchedule:   envOr("REFRESH_SCHEDULE", "@every 5m"),
		SnapshotCacheTTL:  durationOr("SNAPSHOT_CACHE_TTL", 15*time.Minute),
		SnapshotRetention: durationOr("SNAPSHOT_RETENTION", 30*24*time.Hour),

		EthereumRPCURL:   os.Getenv("ETHEREUM_RPC_URL"),
		PolygonRPCURL:    os.Getenv("POLYGON_RPC_URL"),
		AuroraRPCURL:     envOr("AURORA_RPC_URL", "https://mainnet.aurora.dev"),
		MulticallAddress: os.Getenv("MULTICALL_ADDRESS"),

		LlamaCoinsURL:   envOr("LLAMA_COINS_URL", "https://coins.llama.fi"),
		VaporwaveAPIURL: envOr("VAPORWAVE_API_URL", "https://api.vaporwave.farm"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

// RPCURLs returns the configured RPC endpoint of each network.
func (c Config) RPCURLs() map[position.Network]string {
	urls := map[position.Network]string{}
	for n, u := range map[position.Network]string{
		position.Ethereum: c.EthereumRPCURL,
		position.Polygon:  c.PolygonRPCURL,
		position.Aurora:   c.AuroraRPCURL,
	} {
		if u != "" {
			urls[n] = u
		}
	}
	return urls
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	// RPC URLs carry provider API keys.
	secrets := map[string]*string{
		"DATABASE_URL":     &cfg.DatabaseURL,
		"REDIS_PASSWORD":   &cfg.RedisPassword,
		"ETHEREUM_RPC_URL": &cfg.EthereumRPCURL,
		"POLYGON_RPC_URL":  &cfg.PolygonRPCURL,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}
