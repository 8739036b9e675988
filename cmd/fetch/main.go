// Command fetch runs one registered fetcher once and prints its positions
// as JSON.
//
//	fetch -app solace -group xslocker -network ethereum
//	fetch -list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3-frozen/position-fetchers/internal/config"
	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/monitor/fetchers"
	"github.com/web3-frozen/position-fetchers/internal/multicall"
	"github.com/web3-frozen/position-fetchers/internal/position"
	"github.com/web3-frozen/position-fetchers/internal/pricing"
)

func main() {
	var (
		appID   = flag.String("app", "", "application id")
		groupID = flag.String("group", "", "position group id")
		network = flag.String("network", "", "network (ethereum, polygon, aurora)")
		list    = flag.Bool("list", false, "list registered fetchers and exit")
		timeout = flag.Duration("timeout", time.Minute, "fetch timeout")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *appID, *groupID, position.Network(*network), *list, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "fetch:", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, appID, groupID string, network position.Network, list bool, timeout time.Duration) error {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	engine := monitor.NewEngine(logger)
	if list {
		for _, f := range fetchers.Catalog(fetchers.Deps{Logger: logger}) {
			if err := engine.Register(f); err != nil {
				return err
			}
		}
		return printJSON(engine.Registrations())
	}

	if appID == "" || groupID == "" || network == "" {
		flag.Usage()
		return fmt.Errorf("-app, -group and -network are required")
	}

	var opts []multicall.Option
	if cfg.MulticallAddress != "" {
		opts = append(opts, multicall.WithAddress(common.HexToAddress(cfg.MulticallAddress)))
	}
	urls := cfg.RPCURLs()
	rpc, ok := urls[network]
	if !ok {
		return fmt.Errorf("no RPC URL configured for %s", network)
	}
	reader, err := multicall.Dial(ctx, network, rpc, opts...)
	if err != nil {
		return err
	}
	defer reader.Close()

	deps := fetchers.Deps{
		Readers:      multicall.Readers{network: reader},
		Prices:       pricing.NewLlama(cfg.LlamaCoinsURL, fetchers.TrackedTokens()),
		Logger:       logger,
		VaporwaveAPI: cfg.VaporwaveAPIURL,
	}
	for _, f := range fetchers.Catalog(deps) {
		if err := engine.Register(f); err != nil {
			return err
		}
	}

	f, ok := engine.Lookup(appID, groupID, network)
	if !ok {
		return fmt.Errorf("%w: %s", monitor.ErrUnknownFetcher, monitor.Key(appID, groupID, network))
	}
	snap, err := engine.Refresh(ctx, f.Registration().Key())
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
