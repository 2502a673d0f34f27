package sqlxstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/event"
)

// eventRow scans data as []byte; sqlite returns JSON text as a string,
// which database/sql will not store into a json.RawMessage.
type eventRow struct {
	ID          string     `db:"id"`
	AggregateID string     `db:"aggregate_id"`
	Type        event.Type `db:"type"`
	Data        []byte     `db:"data"`
	Version     int        `db:"version"`
	CreatedAt   time.Time  `db:"created_at"`
}

func toEvents(rows []eventRow) []event.Event {
	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, event.Event{
			ID:          r.ID,
			AggregateID: r.AggregateID,
			Type:        r.Type,
			Data:        json.RawMessage(r.Data),
			Version:     r.Version,
			CreatedAt:   r.CreatedAt,
		})
	}
	return events
}

// EventStore implements event.Store with sqlx.
type EventStore struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sqlx.DB, clk clock.Clock) *EventStore {
	return &EventStore{db: db, clock: clk}
}

// Append persists events in one transaction. An event with Version 0 is
// assigned the next version of its aggregate.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock.Now().UTC()
	for _, e := range events {
		if e.Version == 0 {
			if err := tx.GetContext(ctx, &e.Version, tx.Rebind(
				`SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE aggregate_id = ?`), e.AggregateID); err != nil {
				return fmt.Errorf("next version (aggregate=%s): %w", e.AggregateID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO events (id, aggregate_id, type, data, version, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
			uuid.NewString(), e.AggregateID, e.Type, string(e.Data), e.Version, now,
		); err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, err)
		}
	}

	return tx.Commit()
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE aggregate_id = ? ORDER BY version ASC`), aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return toEvents(rows), nil
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE type = ? ORDER BY created_at ASC, version ASC`), eventType)
	if err != nil {
		return nil, fmt.Errorf("loading events by type: %w", err)
	}
	return toEvents(rows), nil
}
