package pgxstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/event"
)

// EventStore implements event.Store with pgx.
type EventStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewEventStore returns a new EventStore.
func NewEventStore(pool *pgxpool.Pool, clk clock.Clock) *EventStore {
	return &EventStore{pool: pool, clock: clk}
}

// Append persists events in one transaction. An event with Version 0 is
// assigned the next version of its aggregate.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.clock.Now().UTC()
	for _, e := range events {
		if e.Version == 0 {
			if err := tx.QueryRow(ctx,
				`SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE aggregate_id = $1`, e.AggregateID,
			).Scan(&e.Version); err != nil {
				return fmt.Errorf("next version (aggregate=%s): %w", e.AggregateID, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (id, aggregate_id, type, data, version, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), e.AggregateID, string(e.Type), string(e.Data), e.Version, now,
		); err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, aggregate_id, type, data::text, version, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return collectEvents(rows)
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, aggregate_id, type, data::text, version, created_at
		 FROM events WHERE type = $1 ORDER BY created_at ASC, version ASC`, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("loading events by type: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]event.Event, error) {
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var typ, data string
		if err := rows.Scan(&e.ID, &e.AggregateID, &typ, &data, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Type = event.Type(typ)
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	return events, rows.Err()
}
