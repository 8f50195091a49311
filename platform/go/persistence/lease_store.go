package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const LeasesTable = "leases"

// Lease represents a row in the leases table.
type Lease struct {
	LeaseID          uuid.UUID  `db:"lease_id" json:"leaseId"`
	PropertyLabel    string     `db:"property_label" json:"propertyLabel"`
	LandlordName     string     `db:"landlord_name" json:"landlordName"`
	LandlordEmail    string     `db:"landlord_email" json:"landlordEmail"`
	TenantName       string     `db:"tenant_name" json:"tenantName"`
	TenantEmail      string     `db:"tenant_email" json:"tenantEmail"`
	RentAmountCents  int64      `db:"rent_amount_cents" json:"rentAmountCents"`
	BillingDay       int        `db:"billing_day" json:"billingDay"`
	StartDate        time.Time  `db:"start_date" json:"startDate"`
	EndDate          *time.Time `db:"end_date" json:"endDate"`
	Status           string     `db:"status" json:"status"`
	TenantSignedAt   *time.Time `db:"tenant_signed_at" json:"tenantSignedAt"`
	LandlordSignedAt *time.Time `db:"landlord_signed_at" json:"landlordSignedAt"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrLeaseNotFound indicates a missing lease record.
	ErrLeaseNotFound = errors.New("lease not found")
	// ErrLeaseConflict indicates the lease is not in a state that allows the requested mutation.
	ErrLeaseConflict = errors.New("lease conflict")
)

// LeaseStore exposes persistence helpers for the leases table.
type LeaseStore struct {
	pool *pgxpool.Pool
}

// NewLeaseStore returns a store bound to the shared pool.
func NewLeaseStore(pool *pgxpool.Pool) (*LeaseStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &LeaseStore{pool: pool}, nil
}

// CreateLeaseParams captures the fields required to insert a new lease record.
type CreateLeaseParams struct {
	LeaseID         uuid.UUID
	PropertyLabel   string
	LandlordName    string
	LandlordEmail   string
	TenantName      string
	TenantEmail     string
	RentAmountCents int64
	BillingDay      int
	StartDate       time.Time
	EndDate         *time.Time
}

const leaseColumns = `lease_id, property_label, landlord_name, landlord_email, tenant_name, tenant_email,
        rent_amount_cents, billing_day, start_date, end_date, status,
        tenant_signed_at, landlord_signed_at, created_at, updated_at`

// CreateLease inserts a new lease in draft status and returns the persisted record.
func (s *LeaseStore) CreateLease(ctx context.Context, params CreateLeaseParams) (Lease, error) {
	if params.LeaseID == uuid.Nil {
		return Lease{}, errors.New("lease id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (lease_id, property_label, landlord_name, landlord_email, tenant_name, tenant_email,
                        rent_amount_cents, billing_day, start_date, end_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING %s
    `, LeasesTable, leaseColumns),
		params.LeaseID,
		strings.TrimSpace(params.PropertyLabel),
		strings.TrimSpace(params.LandlordName),
		strings.TrimSpace(params.LandlordEmail),
		strings.TrimSpace(params.TenantName),
		strings.TrimSpace(params.TenantEmail),
		params.RentAmountCents,
		params.BillingDay,
		params.StartDate,
		params.EndDate,
	)

	lease, err := scanLease(row)
	if err != nil {
		return Lease{}, fmt.Errorf("insert lease: %w", err)
	}

	return lease, nil
}

// GetLease returns a single lease by identifier.
func (s *LeaseStore) GetLease(ctx context.Context, id uuid.UUID) (Lease, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE lease_id = $1
    `, leaseColumns, LeasesTable), id)

	lease, err := scanLease(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lease{}, ErrLeaseNotFound
		}
		return Lease{}, err
	}

	return lease, nil
}

// ListLeasesParams captures filters and pagination for ListLeases.
type ListLeasesParams struct {
	Page     int
	PageSize int
	Status   *string
	Sort     *string
}

// ListLeasesResult includes the rows and the total count for pagination metadata.
type ListLeasesResult struct {
	Leases     []Lease
	TotalItems int
}

// ListLeases returns leases matching the filters with pagination applied.
func (s *LeaseStore) ListLeases(ctx context.Context, params ListLeasesParams) (ListLeasesResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"1=1"}
	var args []any

	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		args = append(args, strings.TrimSpace(*params.Status))
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	orderSQL, err := buildLeaseOrderBy(params.Sort)
	if err != nil {
		return ListLeasesResult{}, err
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", LeasesTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListLeasesResult{}, fmt.Errorf("count leases: %w", err)
	}

	result := ListLeasesResult{Leases: []Lease{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	limit := params.PageSize
	offset := (params.Page - 1) * params.PageSize

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, limit, offset)

	query := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE %s
        %s
        LIMIT $%d OFFSET $%d
    `, leaseColumns, LeasesTable, whereSQL, orderSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListLeasesResult{}, fmt.Errorf("list leases: %w", err)
	}
	defer rows.Close()

	leases := make([]Lease, 0)
	for rows.Next() {
		lease, scanErr := scanLease(rows)
		if scanErr != nil {
			return ListLeasesResult{}, fmt.Errorf("scan lease: %w", scanErr)
		}
		leases = append(leases, lease)
	}

	if err = rows.Err(); err != nil {
		return ListLeasesResult{}, fmt.Errorf("iterate leases: %w", err)
	}

	result.Leases = leases
	return result, nil
}

func buildLeaseOrderBy(sort *string) (string, error) {
	const defaultOrder = "ORDER BY created_at DESC"
	if sort == nil || strings.TrimSpace(*sort) == "" {
		return defaultOrder, nil
	}

	fields := strings.Split(strings.TrimSpace(*sort), ",")
	orderClauses := make([]string, 0, len(fields))
	mapping := map[string]string{
		"propertyLabel": "property_label",
		"startDate":     "start_date",
		"status":        "status",
		"createdAt":     "created_at",
		"updatedAt":     "updated_at",
	}

	for _, raw := range fields {
		f := strings.TrimSpace(raw)
		if f == "" {
			continue
		}

		direction := "ASC"
		if strings.HasPrefix(f, "-") {
			direction = "DESC"
			f = strings.TrimPrefix(f, "-")
		}

		column, ok := mapping[f]
		if !ok {
			return "", fmt.Errorf("unsupported sort field %q", f)
		}

		orderClauses = append(orderClauses, fmt.Sprintf("%s %s", column, direction))
	}

	if len(orderClauses) == 0 {
		return defaultOrder, nil
	}

	return "ORDER BY " + strings.Join(orderClauses, ", "), nil
}

func scanLease(row pgx.Row) (Lease, error) {
	var lease Lease

	if err := row.Scan(
		&lease.LeaseID,
		&lease.PropertyLabel,
		&lease.LandlordName,
		&lease.LandlordEmail,
		&lease.TenantName,
		&lease.TenantEmail,
		&lease.RentAmountCents,
		&lease.BillingDay,
		&lease.StartDate,
		&lease.EndDate,
		&lease.Status,
		&lease.TenantSignedAt,
		&lease.LandlordSignedAt,
		&lease.CreatedAt,
		&lease.UpdatedAt,
	); err != nil {
		return Lease{}, err
	}

	return lease, nil
}
