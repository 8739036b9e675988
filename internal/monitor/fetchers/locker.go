package fetchers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3-frozen/position-fetchers/internal/contracts"
	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/multicall"
	"github.com/web3-frozen/position-fetchers/internal/position"
	"github.com/web3-frozen/position-fetchers/internal/pricing"
	"github.com/web3-frozen/position-fetchers/internal/units"
)

// LockerConfig describes a contract that locks a single priced ERC-20.
type LockerConfig struct {
	Registration monitor.Registration
	Token        common.Address
	Locker       common.Address
	Label        string
}

// SolaceXSLocker is the Solace xsLOCK staking locker on Ethereum.
var SolaceXSLocker = LockerConfig{
	Registration: monitor.Registration{
		AppID:        "solace",
		GroupID:      "xslocker",
		Network:      position.Ethereum,
		IncludeInTVL: true,
	},
	Token:  common.HexToAddress("0x501ace9c35e60f03a2af4d484f49f9b1efde9f40"),
	Locker: common.HexToAddress("0x501ace47c5b0c2099c4464f681c3fa2ecd3146c1"),
	Label:  "xsLOCK",
}

// NewLocker returns a fetcher that values the locked token balance of
// cfg.Locker.
func NewLocker(cfg LockerConfig, readers multicall.Readers, prices pricing.Provider, logger *slog.Logger) monitor.Fetcher {
	l := &locker{cfg: cfg, readers: readers, prices: prices, logger: logger}
	return monitor.NewFetcher(cfg.Registration, l.getPositions)
}

type locker struct {
	cfg     LockerConfig
	readers multicall.Readers
	prices  pricing.Provider
	logger  *slog.Logger
}

func (l *locker) getPositions(ctx context.Context) ([]position.Position, error) {
	network := l.cfg.Registration.Network
	key := l.cfg.Registration.Key()

	baseTokens, err := l.prices.BaseTokenPrices(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("base token prices: %w", err)
	}
	token, ok := pricing.FindByAddress(baseTokens, l.cfg.Token.Hex())
	if !ok || !pricing.Found(token.Price, "base").OK() {
		l.logger.Debug("locker token has no price", "fetcher", key, "token", strings.ToLower(l.cfg.Token.Hex()))
		return []position.Position{}, nil
	}

	reader, err := l.readers.For(network)
	if err != nil {
		return nil, err
	}
	b := multicall.NewBatch()
	balRes := b.Add(l.cfg.Token, contracts.ERC20, "balanceOf", l.cfg.Locker)
	decRes := b.Add(l.cfg.Token, contracts.ERC20, "decimals")
	if err := reader.Execute(ctx, b); err != nil {
		return nil, err
	}

	balRaw, err := balRes.AsBigInt()
	if err != nil {
		return nil, fmt.Errorf("locker balance: %w", err)
	}
	dec, err := decRes.AsUint8()
	decimals := units.DecimalsOr(dec, err == nil)

	balance := units.Normalize(balRaw, decimals)
	liquidity := balance * token.Price

	pos := &position.ContractPos{
		Type:    position.ContractPosition,
		AppID:   l.cfg.Registration.AppID,
		GroupID: l.cfg.Registration.GroupID,
		Address: strings.ToLower(l.cfg.Locker.Hex()),
		Network: network,
		Tokens:  []position.RoleToken{position.Supplied(token), position.Claimable(token)},
		DataProps: position.DataProps{
			Liquidity: liquidity,
		},
		DisplayProps: position.DisplayProps{
			Label:  l.cfg.Label,
			Images: position.ImagesFromToken(token),
			StatsItems: []position.StatsItem{
				{Label: "Liquidity", Value: position.DollarDisplayItem(liquidity)},
			},
		},
	}
	return []position.Position{pos}, nil
}
