package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS fetchers (
    key TEXT PRIMARY KEY,
    app_id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    network TEXT NOT NULL,
    include_in_tvl BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(app_id, group_id, network)
);

CREATE TABLE IF NOT EXISTS position_snapshots (
    id UUID PRIMARY KEY,
    fetcher_key TEXT NOT NULL REFERENCES fetchers(key) ON DELETE CASCADE,
    position_count INT NOT NULL DEFAULT 0,
    total_liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
    positions JSONB NOT NULL DEFAULT '[]'::jsonb,
    fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_position_snapshots_fetcher_time
    ON position_snapshots (fetcher_key, fetched_at DESC);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
