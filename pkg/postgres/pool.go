// Package postgres provides PostgreSQL connection pooling and the durable
// store for safety events.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skysentry/skysentry/pkg/monitor"
)

// Pool wraps pgxpool.Pool with domain-specific query methods.
type Pool struct {
	*pgxpool.Pool
}

// NewPoolFromURL creates a pool from a connection URL.
func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

const safetyEventsSchema = `
CREATE TABLE IF NOT EXISTS safety_events (
	event_id     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	event_key    TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	severity     TEXT NOT NULL,
	icao_hex     TEXT NOT NULL,
	icao_hex2    TEXT,
	callsign     TEXT,
	callsign2    TEXT,
	message      TEXT NOT NULL,
	details      JSONB,
	aircraft     JSONB,
	aircraft2    JSONB,
	acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	last_seen    TIMESTAMPTZ NOT NULL,
	resolved_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_safety_events_key ON safety_events (event_key);
CREATE INDEX IF NOT EXISTS idx_safety_events_created ON safety_events (created_at DESC);
`

// Migrate creates the safety_events table if it does not exist.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.Exec(ctx, safetyEventsSchema); err != nil {
		return fmt.Errorf("failed to migrate safety_events: %w", err)
	}
	return nil
}

// InsertEvent writes a newly created safety event and returns the opaque
// identifier the database assigned.
func (p *Pool) InsertEvent(ctx context.Context, ev *monitor.SafetyEvent) (string, error) {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return "", fmt.Errorf("failed to marshal details: %w", err)
	}
	aircraft, err := json.Marshal(ev.Aircraft)
	if err != nil {
		return "", fmt.Errorf("failed to marshal aircraft snapshot: %w", err)
	}
	aircraft2, err := json.Marshal(ev.Aircraft2)
	if err != nil {
		return "", fmt.Errorf("failed to marshal second aircraft snapshot: %w", err)
	}

	query := `
		INSERT INTO safety_events (
			event_key, event_type, severity,
			icao_hex, icao_hex2, callsign, callsign2,
			message, details, aircraft, aircraft2,
			acknowledged, created_at, last_seen
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
		RETURNING event_id
	`

	var externalID string
	err = p.QueryRow(ctx, query,
		ev.ID, string(ev.EventType), string(ev.Severity),
		ev.ICAOHex, nullable(ev.ICAOHex2), nullable(ev.Callsign), nullable(ev.Callsign2),
		ev.Message, details, aircraft, aircraft2,
		ev.Acknowledged, ev.CreatedAt, ev.LastSeen,
	).Scan(&externalID)
	if err != nil {
		return "", fmt.Errorf("failed to insert safety event: %w", err)
	}

	return externalID, nil
}

// SetAcknowledged updates the acknowledged flag on the most recent row for
// an event key (or on the row matching an external id).
func (p *Pool) SetAcknowledged(ctx context.Context, id string, acknowledged bool) error {
	query := `
		UPDATE safety_events SET acknowledged = $2
		WHERE event_id IN (
			SELECT event_id FROM safety_events
			WHERE event_key = $1 OR event_id::text = $1
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	if _, err := p.Exec(ctx, query, id, acknowledged); err != nil {
		return fmt.Errorf("failed to set acknowledged: %w", err)
	}
	return nil
}

// ResolveEvent stamps the resolution time on the most recent unresolved row
// for an event key.
func (p *Pool) ResolveEvent(ctx context.Context, id string, resolvedAt time.Time) error {
	query := `
		UPDATE safety_events SET resolved_at = $2
		WHERE event_id IN (
			SELECT event_id FROM safety_events
			WHERE (event_key = $1 OR event_id::text = $1) AND resolved_at IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	if _, err := p.Exec(ctx, query, id, resolvedAt); err != nil {
		return fmt.Errorf("failed to resolve safety event: %w", err)
	}
	return nil
}

// EventRow is a persisted safety event as returned by history queries.
type EventRow struct {
	ExternalID   string          `json:"external_id"`
	EventKey     string          `json:"event_key"`
	EventType    string          `json:"event_type"`
	Severity     string          `json:"severity"`
	ICAOHex      string          `json:"icao_hex"`
	ICAOHex2     *string         `json:"icao_hex2,omitempty"`
	Callsign     *string         `json:"callsign,omitempty"`
	Callsign2    *string         `json:"callsign2,omitempty"`
	Message      string          `json:"message"`
	Details      json.RawMessage `json:"details,omitempty"`
	Acknowledged bool            `json:"acknowledged"`
	CreatedAt    time.Time       `json:"created_at"`
	LastSeen     time.Time       `json:"last_seen"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// EventFilter defines filter options for event history queries.
type EventFilter struct {
	EventType string
	Severity  string
	ICAOHex   string
	Since     *time.Time
	Limit     int
	Offset    int
}

// ListEvents retrieves persisted safety events, newest first.
func (p *Pool) ListEvents(ctx context.Context, filter EventFilter) ([]EventRow, error) {
	query := `
		SELECT
			event_id, event_key, event_type, severity,
			icao_hex, icao_hex2, callsign, callsign2,
			message, details, acknowledged,
			created_at, last_seen, resolved_at
		FROM safety_events
		WHERE TRUE
	`
	args := []interface{}{}
	argNum := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argNum)
		args = append(args, filter.EventType)
		argNum++
	}

	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, filter.Severity)
		argNum++
	}

	if filter.ICAOHex != "" {
		query += fmt.Sprintf(" AND (icao_hex = $%d OR icao_hex2 = $%d)", argNum, argNum)
		args = append(args, filter.ICAOHex)
		argNum++
	}

	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, *filter.Since)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query safety events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		err := rows.Scan(
			&e.ExternalID, &e.EventKey, &e.EventType, &e.Severity,
			&e.ICAOHex, &e.ICAOHex2, &e.Callsign, &e.Callsign2,
			&e.Message, &e.Details, &e.Acknowledged,
			&e.CreatedAt, &e.LastSeen, &e.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan safety event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating safety events: %w", err)
	}

	return events, nil
}

// GetEvent retrieves a single persisted event by external id.
func (p *Pool) GetEvent(ctx context.Context, externalID string) (*EventRow, error) {
	query := `
		SELECT
			event_id, event_key, event_type, severity,
			icao_hex, icao_hex2, callsign, callsign2,
			message, details, acknowledged,
			created_at, last_seen, resolved_at
		FROM safety_events
		WHERE event_id::text = $1
	`

	var e EventRow
	err := p.QueryRow(ctx, query, externalID).Scan(
		&e.ExternalID, &e.EventKey, &e.EventType, &e.Severity,
		&e.ICAOHex, &e.ICAOHex2, &e.Callsign, &e.Callsign2,
		&e.Message, &e.Details, &e.Acknowledged,
		&e.CreatedAt, &e.LastSeen, &e.ResolvedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get safety event: %w", err)
	}

	return &e, nil
}

// CountUnresolved returns the number of rows without a resolution timestamp.
func (p *Pool) CountUnresolved(ctx context.Context) (int64, error) {
	var count int64
	err := p.QueryRow(ctx, "SELECT COUNT(*) FROM safety_events WHERE resolved_at IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved events: %w", err)
	}
	return count, nil
}

// Health verifies database connectivity.
func (p *Pool) Health(ctx context.Context) error {
	return p.Ping(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
