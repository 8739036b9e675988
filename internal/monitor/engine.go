package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/position-fetchers/internal/metrics"
	"github.com/web3-frozen/position-fetchers/internal/position"
)

const defaultConcurrency = 4

var (
	ErrUnknownFetcher   = errors.New("unknown fetcher")
	ErrDuplicateFetcher = errors.New("fetcher already registered")
	ErrNoSnapshot       = errors.New("no snapshot available yet")
)

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context, key string) (*Snapshot, error)
}

// SnapshotCache shares the latest snapshot between replicas.
type SnapshotCache interface {
	PutSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, key string) (*Snapshot, error)
}

// Publisher announces new snapshots.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap *Snapshot) error
}

// Engine is the host side of the fetchers: it keeps the registry, runs
// fetchers on demand and hands snapshots to the configured sinks.
type Engine struct {
	logger      *slog.Logger
	store       SnapshotStore
	cache       SnapshotCache
	publisher   Publisher
	concurrency int

	fetchers map[string]Fetcher
	lastSnap map[string]*Snapshot
	mu       sync.RWMutex
}

type Option func(*Engine)

func WithStore(s SnapshotStore) Option { return func(e *Engine) { e.store = s } }
func WithCache(c SnapshotCache) Option { return func(e *Engine) { e.cache = c } }
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:      logger,
		concurrency: defaultConcurrency,
		fetchers:    make(map[string]Fetcher),
		lastSnap:    make(map[string]*Snapshot),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Register adds a fetcher to the engine.
func (e *Engine) Register(f Fetcher) error {
	key := f.Registration().Key()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.fetchers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFetcher, key)
	}
	e.fetchers[key] = f
	e.logger.Info("registered fetcher", "fetcher", key)
	return nil
}

// Registrations returns every registration, sorted by key.
func (e *Engine) Registrations() []Registration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	regs := make([]Registration, 0, len(e.fetchers))
	for _, f := range e.fetchers {
		regs = append(regs, f.Registration())
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Key() < regs[j].Key() })
	return regs
}

// Lookup returns the fetcher registered for the triple.
func (e *Engine) Lookup(appID, groupID string, network position.Network) (Fetcher, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.fetchers[Key(appID, groupID, network)]
	return f, ok
}

// GetSnapshot returns the latest in-memory snapshot for a fetcher key.
func (e *Engine) GetSnapshot(key string) *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnap[key]
}

// Latest returns the newest snapshot from memory, then the cache, then the
// store.
func (e *Engine) Latest(ctx context.Context, key string) (*Snapshot, error) {
	if snap := e.GetSnapshot(key); snap != nil {
		return snap, nil
	}
	if e.cache != nil {
		snap, err := e.cache.GetSnapshot(ctx, key)
		if err != nil {
			e.logger.Warn("cache read failed", "fetcher", key, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}
	if e.store != nil {
		snap, err := e.store.LatestSnapshot(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", key, err)
		}
		if snap != nil {
			return snap, nil
		}
	}
	return nil, ErrNoSnapshot
}

// Refresh runs one fetcher now and records its snapshot.
func (e *Engine) Refresh(ctx context.Context, key string) (*Snapshot, error) {
	e.mu.RLock()
	f, ok := e.fetchers[key]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFetcher, key)
	}
	return e.run(ctx, f)
}

// RefreshAll runs every fetcher. A failing fetcher is logged and omitted
// from this cycle; the others still complete.
func (e *Engine) RefreshAll(ctx context.Context) {
	e.mu.RLock()
	fetchers := make([]Fetcher, 0, len(e.fetchers))
	for _, f := range e.fetchers {
		fetchers = append(fetchers, f)
	}
	e.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, f := range fetchers {
		g.Go(func() error {
			_, _ = e.run(ctx, f)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) run(ctx context.Context, f Fetcher) (*Snapshot, error) {
	reg := f.Registration()
	key := reg.Key()

	start := time.Now()
	positions, err := f.GetPositions(ctx)
	metrics.FetchDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchTotal.WithLabelValues(key, "error").Inc()
		e.logger.Error("fetch positions failed", "fetcher", key, "error", err)
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	metrics.FetchTotal.WithLabelValues(key, "success").Inc()
	metrics.FetchLastSuccess.WithLabelValues(key).SetToCurrentTime()

	snap := newSnapshot(reg, positions, time.Now())

	e.mu.Lock()
	e.lastSnap[key] = snap
	e.mu.Unlock()

	metrics.PositionsCount.WithLabelValues(key).Set(float64(len(snap.Positions)))
	metrics.Liquidity.WithLabelValues(key, strconv.FormatBool(reg.IncludeInTVL)).Set(snap.TotalLiquidity)
	e.logger.Info("snapshot", "fetcher", key, "positions", len(snap.Positions), "liquidity", snap.TotalLiquidity)

	e.deliver(ctx, snap)
	return snap, nil
}

func (e *Engine) deliver(ctx context.Context, snap *Snapshot) {
	if e.store != nil {
		if err := e.store.SaveSnapshot(ctx, snap); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues("store").Inc()
			e.logger.Error("save snapshot failed", "fetcher", snap.Key(), "error", err)
		}
	}
	if e.cache != nil {
		if err := e.cache.PutSnapshot(ctx, snap); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues("cache").Inc()
			e.logger.Warn("cache snapshot failed", "fetcher", snap.Key(), "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishSnapshot(ctx, snap); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues("publisher").Inc()
			e.logger.Warn("publish snapshot failed", "fetcher", snap.Key(), "error", err)
		}
	}
}
