package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/position"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Fetchers ---

// UpsertFetcher records a registration so snapshots can reference it.
func (s *Store) UpsertFetcher(ctx context.Context, reg monitor.Registration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fetchers (key, app_id, group_id, network, include_in_tvl)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
			SET include_in_tvl = $5, updated_at = now()`,
		reg.Key(), reg.AppID, reg.GroupID, string(reg.Network), reg.IncludeInTVL)
	return err
}

// ListFetchers returns every registration ever recorded.
func (s *Store) ListFetchers(ctx context.Context) ([]monitor.Registration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT app_id, group_id, network, include_in_tvl FROM fetchers ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []monitor.Registration
	for rows.Next() {
		var r monitor.Registration
		var network string
		if err := rows.Scan(&r.AppID, &r.GroupID, &network, &r.IncludeInTVL); err != nil {
			return nil, err
		}
		r.Network = position.Network(network)
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// --- Snapshots ---

// SaveSnapshot stores one fetch result.
func (s *Store) SaveSnapshot(ctx context.Context, snap *monitor.Snapshot) error {
	data, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO position_snapshots (id, fetcher_key, position_count, total_liquidity, positions, fetched_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		snap.ID, snap.Key(), len(snap.Positions), snap.TotalLiquidity, string(data), snap.FetchedAt)
	return err
}

// LatestSnapshot returns the newest stored snapshot of a fetcher, or nil
// when none exists.
func (s *Store) LatestSnapshot(ctx context.Context, key string) (*monitor.Snapshot, error) {
	var (
		snap    monitor.Snapshot
		id      uuid.UUID
		network string
		data    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, f.app_id, f.group_id, f.network, f.include_in_tvl, p.total_liquidity, p.positions, p.fetched_at
		FROM position_snapshots p
		JOIN fetchers f ON f.key = p.fetcher_key
		WHERE p.fetcher_key = $1
		ORDER BY p.fetched_at DESC
		LIMIT 1`, key).
		Scan(&id, &snap.Registration.AppID, &snap.Registration.GroupID, &network,
			&snap.Registration.IncludeInTVL, &snap.TotalLiquidity, &data, &snap.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.ID = id
	snap.Registration.Network = position.Network(network)
	if err := json.Unmarshal(data, &snap.Positions); err != nil {
		return nil, fmt.Errorf("decode positions of %s: %w", key, err)
	}
	return &snap, nil
}

// LiquidityPoint is one sample of a fetcher's total liquidity.
type LiquidityPoint struct {
	Positions int       `json:"positions"`
	Liquidity float64   `json:"liquidity"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LiquidityHistory returns the totals of a fetcher since the given time,
// oldest first.
func (s *Store) LiquidityHistory(ctx context.Context, key string, since time.Time) ([]LiquidityPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT position_count, total_liquidity, fetched_at
		FROM position_snapshots
		WHERE fetcher_key = $1 AND fetched_at > $2
		ORDER BY fetched_at`, key, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []LiquidityPoint{}
	for rows.Next() {
		var p LiquidityPoint
		if err := rows.Scan(&p.Positions, &p.Liquidity, &p.FetchedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CleanupOldSnapshots deletes snapshots older than the given duration.
func (s *Store) CleanupOldSnapshots(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM position_snapshots WHERE fetched_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
