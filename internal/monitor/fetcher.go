package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/web3-frozen/position-fetchers/internal/position"
)

// Registration identifies a fetcher. It is declarative metadata read at
// startup and never changes while the fetcher runs.
type Registration struct {
	AppID        string           `json:"app_id"`
	GroupID      string           `json:"group_id"`
	Network      position.Network `json:"network"`
	IncludeInTVL bool             `json:"include_in_tvl"`
}

// Key returns "app:group:network".
func (r Registration) Key() string {
	return Key(r.AppID, r.GroupID, r.Network)
}

func Key(appID, groupID string, network position.Network) string {
	return fmt.Sprintf("%s:%s:%s", appID, groupID, network)
}

// Fetcher defines the interface that every position integration implements.
// To add an integration, build one with NewFetcher and register it with the
// Engine.
type Fetcher interface {
	Registration() Registration

	// GetPositions pulls all inputs from upstream and returns freshly built
	// positions. Implementations keep no state between calls.
	GetPositions(ctx context.Context) ([]position.Position, error)
}

// FetchFunc is the strategy body of a fetcher.
type FetchFunc func(ctx context.Context) ([]position.Position, error)

type funcFetcher struct {
	reg Registration
	fn  FetchFunc
}

// NewFetcher binds a strategy to a registration.
func NewFetcher(reg Registration, fn FetchFunc) Fetcher {
	return &funcFetcher{reg: reg, fn: fn}
}

func (f *funcFetcher) Registration() Registration { return f.reg }

func (f *funcFetcher) GetPositions(ctx context.Context) ([]position.Position, error) {
	return f.fn(ctx)
}

// Snapshot is the result of one fetch.
type Snapshot struct {
	ID             uuid.UUID     `json:"id"`
	Registration   Registration  `json:"registration"`
	Positions      position.List `json:"positions"`
	TotalLiquidity float64       `json:"total_liquidity"`
	FetchedAt      time.Time     `json:"fetched_at"`
}

func (s *Snapshot) Key() string { return s.Registration.Key() }

func newSnapshot(reg Registration, positions []position.Position, at time.Time) *Snapshot {
	list := position.List(positions)
	if list == nil {
		list = position.List{}
	}
	return &Snapshot{
		ID:             uuid.New(),
		Registration:   reg,
		Positions:      list,
		TotalLiquidity: list.TotalLiquidity(),
		FetchedAt:      at,
	}
}
