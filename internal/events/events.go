// Package events announces new position snapshots on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/web3-frozen/position-fetchers/internal/monitor"
)

const SubjectUpdated = "positions.updated"

// PositionsUpdated is the payload published after each successful fetch. It
// carries the totals only; consumers read the positions through the API.
type PositionsUpdated struct {
	SnapshotID     uuid.UUID `json:"snapshot_id"`
	Fetcher        string    `json:"fetcher"`
	AppID          string    `json:"app_id"`
	GroupID        string    `json:"group_id"`
	Network        string    `json:"network"`
	IncludeInTVL   bool      `json:"include_in_tvl"`
	Positions      int       `json:"positions"`
	TotalLiquidity float64   `json:"total_liquidity"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// NewPositionsUpdated builds the event for snap.
func NewPositionsUpdated(snap *monitor.Snapshot) PositionsUpdated {
	return PositionsUpdated{
		SnapshotID:     snap.ID,
		Fetcher:        snap.Key(),
		AppID:          snap.Registration.AppID,
		GroupID:        snap.Registration.GroupID,
		Network:        string(snap.Registration.Network),
		IncludeInTVL:   snap.Registration.IncludeInTVL,
		Positions:      len(snap.Positions),
		TotalLiquidity: snap.TotalLiquidity,
		FetchedAt:      snap.FetchedAt,
	}
}

type conn interface {
	Publish(subj string, data []byte) error
}

// Publisher sends PositionsUpdated events.
type Publisher struct {
	conn    conn
	subject string
	closeFn func()
}

// Connect dials NATS and returns a Publisher that owns the connection.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("position-fetchers"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: nc, subject: SubjectUpdated, closeFn: nc.Close}, nil
}

func (p *Publisher) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}

// PublishSnapshot publishes the event of snap.
func (p *Publisher) PublishSnapshot(_ context.Context, snap *monitor.Snapshot) error {
	data, err := json.Marshal(NewPositionsUpdated(snap))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}
