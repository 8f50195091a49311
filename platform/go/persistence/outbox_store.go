package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const OutboxEventsTable = "outbox_events"

// Outbox event statuses.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusDispatched = "dispatched"
	OutboxStatusFailed     = "failed"
)

// OutboxEvent represents a row in the outbox_events table.
type OutboxEvent struct {
	EventID       uuid.UUID       `db:"event_id" json:"eventId"`
	EventType     string          `db:"event_type" json:"eventType"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        string          `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time       `db:"next_attempt_at" json:"nextAttemptAt"`
	LastError     *string         `db:"last_error" json:"lastError"`
	DispatchedAt  *time.Time      `db:"dispatched_at" json:"dispatchedAt"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// NewOutboxEventParams captures the fields required to record a domain event.
type NewOutboxEventParams struct {
	EventID   uuid.UUID
	EventType string
	Payload   json.RawMessage
}

// EventOutcome records how the dispatcher handled one claimed event.
// When Dispatched is false the event is rescheduled for NextAttemptAt,
// unless Exhausted marks the retries as spent.
type EventOutcome struct {
	Dispatched    bool
	Exhausted     bool
	Error         string
	NextAttemptAt time.Time
}

// OutboxStore exposes persistence helpers for the outbox_events table.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore returns a store bound to the shared pool.
func NewOutboxStore(pool *pgxpool.Pool) (*OutboxStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &OutboxStore{pool: pool}, nil
}

const outboxColumns = `event_id, event_type, payload, status, attempts, next_attempt_at, last_error, dispatched_at, created_at`

// AppendEvent records a standalone event outside a signing transaction.
func (s *OutboxStore) AppendEvent(ctx context.Context, params NewOutboxEventParams) (OutboxEvent, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := insertOutboxEventTx(ctx, tx, params); err != nil {
		return OutboxEvent{}, err
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE event_id = $1
    `, outboxColumns, OutboxEventsTable), params.EventID)

	event, err := scanOutboxEvent(row)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("fetch outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return OutboxEvent{}, fmt.Errorf("commit outbox tx: %w", err)
	}

	return event, nil
}

// PendingCount returns how many events are waiting for dispatch.
func (s *OutboxStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*) FROM %s WHERE status = $1
    `, OutboxEventsTable), OutboxStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}

	return count, nil
}

// ProcessPending claims up to limit due events with FOR UPDATE SKIP LOCKED, invokes
// handle for each, and records the outcomes before committing. Rows stay locked while
// being handled, so a concurrently running dispatcher never sees the same event, and
// a crash mid-batch leaves the claimed rows pending.
func (s *OutboxStore) ProcessPending(ctx context.Context, limit int, handle func(ctx context.Context, event OutboxEvent) EventOutcome) (int, error) {
	if limit <= 0 {
		limit = 10
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin dispatch tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, err := tx.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE status = $1 AND next_attempt_at <= NOW()
        ORDER BY created_at ASC
        LIMIT $2
        FOR UPDATE SKIP LOCKED
    `, outboxColumns, OutboxEventsTable), OutboxStatusPending, limit)
	if err != nil {
		return 0, fmt.Errorf("claim pending events: %w", err)
	}

	events := make([]OutboxEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanOutboxEvent(rows)
		if scanErr != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox event: %w", scanErr)
		}
		events = append(events, event)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox events: %w", err)
	}

	for _, event := range events {
		outcome := handle(ctx, event)

		switch {
		case outcome.Dispatched:
			_, err = tx.Exec(ctx, fmt.Sprintf(`
                UPDATE %s
                SET status = $2, attempts = attempts + 1, dispatched_at = NOW(), last_error = NULL
                WHERE event_id = $1
            `, OutboxEventsTable), event.EventID, OutboxStatusDispatched)
		case outcome.Exhausted:
			_, err = tx.Exec(ctx, fmt.Sprintf(`
                UPDATE %s
                SET status = $2, attempts = attempts + 1, last_error = $3
                WHERE event_id = $1
            `, OutboxEventsTable), event.EventID, OutboxStatusFailed, outcome.Error)
		default:
			_, err = tx.Exec(ctx, fmt.Sprintf(`
                UPDATE %s
                SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
                WHERE event_id = $1
            `, OutboxEventsTable), event.EventID, outcome.Error, outcome.NextAttemptAt)
		}
		if err != nil {
			return 0, fmt.Errorf("record event outcome: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit dispatch tx: %w", err)
	}

	return len(events), nil
}

func insertOutboxEventTx(ctx context.Context, tx pgx.Tx, params NewOutboxEventParams) error {
	if params.EventID == uuid.Nil {
		return errors.New("event id is required")
	}
	if params.EventType == "" {
		return errors.New("event type is required")
	}
	if len(params.Payload) == 0 {
		return errors.New("event payload is required")
	}

	_, err := tx.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (event_id, event_type, payload)
        VALUES ($1, $2, $3)
    `, OutboxEventsTable), params.EventID, params.EventType, params.Payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

func scanOutboxEvent(row pgx.Row) (OutboxEvent, error) {
	var event OutboxEvent

	if err := row.Scan(
		&event.EventID,
		&event.EventType,
		&event.Payload,
		&event.Status,
		&event.Attempts,
		&event.NextAttemptAt,
		&event.LastError,
		&event.DispatchedAt,
		&event.CreatedAt,
	); err != nil {
		return OutboxEvent{}, err
	}

	return event, nil
}
