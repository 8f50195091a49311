package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mustSigningPool provisions a disposable Postgres container, applies the embedded
// migrations, and returns a connected pool. Callers guard with testing.Short().
func mustSigningPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("rentflow"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, connString))

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	return pool
}

// mustCreateLease inserts a draft lease with throwaway party data.
func mustCreateLease(t *testing.T, store *LeaseStore) Lease {
	t.Helper()

	ctx := context.Background()
	endDate := time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC)

	lease, err := store.CreateLease(ctx, CreateLeaseParams{
		LeaseID:         uuid.New(),
		PropertyLabel:   "128 Alder Way, Unit 2B",
		LandlordName:    "Pat Holloway",
		LandlordEmail:   "pat@holloway-props.test",
		TenantName:      "Jordan Reyes",
		TenantEmail:     "jordan.reyes@example.test",
		RentAmountCents: 185000,
		BillingDay:      1,
		StartDate:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         &endDate,
	})
	require.NoError(t, err)

	return lease
}
