package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOutboxStoreProcessPendingOutcomes(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping outbox store integration test in short mode")
	}

	ctx := context.Background()
	pool := mustSigningPool(t)

	store, err := NewOutboxStore(pool)
	require.NoError(t, err)

	okID := uuid.New()
	retryID := uuid.New()
	deadID := uuid.New()

	for _, params := range []NewOutboxEventParams{
		{EventID: okID, EventType: "lease.tenant_signed", Payload: json.RawMessage(`{"n":1}`)},
		{EventID: retryID, EventType: "lease.executed", Payload: json.RawMessage(`{"n":2}`)},
		{EventID: deadID, EventType: "lease.signing_started", Payload: json.RawMessage(`{"n":3}`)},
	} {
		_, err := store.AppendEvent(ctx, params)
		require.NoError(t, err)
	}

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	retryAt := time.Now().Add(30 * time.Minute).UTC()
	handled, err := store.ProcessPending(ctx, 10, func(_ context.Context, event OutboxEvent) EventOutcome {
		switch event.EventID {
		case okID:
			return EventOutcome{Dispatched: true}
		case retryID:
			return EventOutcome{Error: "smtp timeout", NextAttemptAt: retryAt}
		default:
			return EventOutcome{Exhausted: true, Error: "recipient rejected"}
		}
	})
	require.NoError(t, err)
	require.Equal(t, 3, handled)

	// Dispatched and failed rows leave the pending pool; the rescheduled one stays
	// pending but is not due, so a second pass claims nothing.
	count, err = store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	handled, err = store.ProcessPending(ctx, 10, func(_ context.Context, _ OutboxEvent) EventOutcome {
		t.Fatal("no event should be due")
		return EventOutcome{}
	})
	require.NoError(t, err)
	require.Zero(t, handled)

	var status string
	var attempts int
	var lastError *string
	err = pool.QueryRow(ctx, `SELECT status, attempts, last_error FROM outbox_events WHERE event_id = $1`, retryID).
		Scan(&status, &attempts, &lastError)
	require.NoError(t, err)
	require.Equal(t, OutboxStatusPending, status)
	require.Equal(t, 1, attempts)
	require.NotNil(t, lastError)
	require.Equal(t, "smtp timeout", *lastError)

	err = pool.QueryRow(ctx, `SELECT status FROM outbox_events WHERE event_id = $1`, deadID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, OutboxStatusFailed, status)

	var dispatchedAt *time.Time
	err = pool.QueryRow(ctx, `SELECT status, dispatched_at FROM outbox_events WHERE event_id = $1`, okID).
		Scan(&status, &dispatchedAt)
	require.NoError(t, err)
	require.Equal(t, OutboxStatusDispatched, status)
	require.NotNil(t, dispatchedAt)
}
