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

const SignatureRequestsTable = "signature_requests"

// Role and status values stored in the signing tables.
const (
	RoleTenant   = "tenant"
	RoleLandlord = "landlord"

	RequestStatusSent   = "sent"
	RequestStatusSigned = "signed"

	LeaseStatusDraft   = "draft"
	LeaseStatusPending = "pending"
	LeaseStatusActive  = "active"
)

// SignatureRequest represents a row in the signature_requests table.
// Rows are never deleted; they form the signing audit trail.
type SignatureRequest struct {
	RequestID        uuid.UUID  `db:"request_id" json:"requestId"`
	LeaseID          uuid.UUID  `db:"lease_id" json:"leaseId"`
	Token            string     `db:"token" json:"token"`
	Role             string     `db:"role" json:"role"`
	Status           string     `db:"status" json:"status"`
	RecipientName    string     `db:"recipient_name" json:"recipientName"`
	RecipientEmail   string     `db:"recipient_email" json:"recipientEmail"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expiresAt"`
	SignerName       *string    `db:"signer_name" json:"signerName"`
	SignerEmail      *string    `db:"signer_email" json:"signerEmail"`
	SignerIP         *string    `db:"signer_ip" json:"signerIp"`
	SignerUserAgent  *string    `db:"signer_user_agent" json:"signerUserAgent"`
	SignedAt         *time.Time `db:"signed_at" json:"signedAt"`
	SignatureDataURL *string    `db:"signature_data_url" json:"signatureDataUrl"`
	InitialsDataURL  *string    `db:"initials_data_url" json:"initialsDataUrl"`
	SignedPDFURL     *string    `db:"signed_pdf_url" json:"signedPdfUrl"`
	AuditLogURL      *string    `db:"audit_log_url" json:"auditLogUrl"`
	DocumentHash     *string    `db:"document_hash" json:"documentHash"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrRequestNotFound indicates a missing signature request (unknown token or id).
	ErrRequestNotFound = errors.New("signature request not found")
	// ErrRequestAlreadySigned indicates the conditional transition matched no pending row,
	// either because the request was already signed or a concurrent submission won the race.
	ErrRequestAlreadySigned = errors.New("signature request already signed")
	// ErrRequestConflict indicates a uniqueness violation (duplicate token or second signed row per role).
	ErrRequestConflict = errors.New("signature request conflict")
)

// SignatureRequestStore exposes persistence helpers for the signature_requests table
// and owns the multi-table signing transactions.
type SignatureRequestStore struct {
	pool *pgxpool.Pool
}

// NewSignatureRequestStore returns a store bound to the shared pool.
func NewSignatureRequestStore(pool *pgxpool.Pool) (*SignatureRequestStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &SignatureRequestStore{pool: pool}, nil
}

const requestColumns = `request_id, lease_id, token, role, status, recipient_name, recipient_email,
        expires_at, signer_name, signer_email, signer_ip, signer_user_agent, signed_at,
        signature_data_url, initials_data_url, signed_pdf_url, audit_log_url, document_hash,
        created_at, updated_at`

// GetRequestByToken returns the signature request addressed by a capability token.
func (s *SignatureRequestStore) GetRequestByToken(ctx context.Context, token string) (SignatureRequest, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE token = $1
    `, requestColumns, SignatureRequestsTable), token)

	request, err := scanSignatureRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SignatureRequest{}, ErrRequestNotFound
		}
		return SignatureRequest{}, err
	}

	return request, nil
}

// GetSignedRequest returns the signed request for a lease and role, if one exists.
func (s *SignatureRequestStore) GetSignedRequest(ctx context.Context, leaseID uuid.UUID, role string) (SignatureRequest, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE lease_id = $1 AND role = $2 AND status = $3
    `, requestColumns, SignatureRequestsTable), leaseID, role, RequestStatusSigned)

	request, err := scanSignatureRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SignatureRequest{}, ErrRequestNotFound
		}
		return SignatureRequest{}, err
	}

	return request, nil
}

// HasRequestForRole reports whether any request exists for the lease and role, regardless of status.
func (s *SignatureRequestStore) HasRequestForRole(ctx context.Context, leaseID uuid.UUID, role string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (SELECT 1 FROM %s WHERE lease_id = $1 AND role = $2)
    `, SignatureRequestsTable), leaseID, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check request existence: %w", err)
	}

	return exists, nil
}

// ListRequestsByLease returns every request recorded for a lease, oldest first.
func (s *SignatureRequestStore) ListRequestsByLease(ctx context.Context, leaseID uuid.UUID) ([]SignatureRequest, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE lease_id = $1
        ORDER BY created_at ASC
    `, requestColumns, SignatureRequestsTable), leaseID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	requests := make([]SignatureRequest, 0)
	for rows.Next() {
		request, scanErr := scanSignatureRequest(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan request: %w", scanErr)
		}
		requests = append(requests, request)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}

	return requests, nil
}

// NewRequestParams captures the fields required to insert a signature request.
type NewRequestParams struct {
	RequestID      uuid.UUID
	LeaseID        uuid.UUID
	Token          string
	Role           string
	RecipientName  string
	RecipientEmail string
	ExpiresAt      *time.Time
}

// StartSigningParams moves a draft lease into the signing phase.
type StartSigningParams struct {
	LeaseID uuid.UUID
	Request NewRequestParams
	Events  []NewOutboxEventParams
}

// StartSigning transitions the lease draft -> pending, creates the first signature
// request, and records the outbox events, all in one transaction.
func (s *SignatureRequestStore) StartSigning(ctx context.Context, params StartSigningParams) (SignatureRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SignatureRequest{}, fmt.Errorf("begin start-signing tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var status string
	lockQuery := fmt.Sprintf(`SELECT status FROM %s WHERE lease_id = $1 FOR UPDATE`, LeasesTable)
	if err := tx.QueryRow(ctx, lockQuery, params.LeaseID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SignatureRequest{}, ErrLeaseNotFound
		}
		return SignatureRequest{}, fmt.Errorf("lock lease: %w", err)
	}
	if status != LeaseStatusDraft {
		return SignatureRequest{}, ErrLeaseConflict
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = NOW() WHERE lease_id = $1`, LeasesTable)
	if _, err := tx.Exec(ctx, updateQuery, params.LeaseID, LeaseStatusPending); err != nil {
		return SignatureRequest{}, fmt.Errorf("mark lease pending: %w", err)
	}

	request, err := insertRequestTx(ctx, tx, params.Request)
	if err != nil {
		return SignatureRequest{}, err
	}

	for _, event := range params.Events {
		if err := insertOutboxEventTx(ctx, tx, event); err != nil {
			return SignatureRequest{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return SignatureRequest{}, fmt.Errorf("commit start-signing tx: %w", err)
	}

	return request, nil
}

// SignerDetails carries the signer-supplied identity plus captured client metadata.
type SignerDetails struct {
	Name             string
	Email            string
	IP               string
	UserAgent        string
	SignatureDataURL string
	InitialsDataURL  *string
}

// SignatureArtifacts references the produced signed document and its audit bundle.
type SignatureArtifacts struct {
	SignedPDFURL string
	AuditLogURL  string
	DocumentHash string
}

// LeaseSigningUpdate lists the lease columns a signing completion sets.
type LeaseSigningUpdate struct {
	TenantSignedAt   *time.Time
	LandlordSignedAt *time.Time
	Status           *string
}

// CompleteSigningParams captures everything the signing commit must apply atomically.
type CompleteSigningParams struct {
	RequestID   uuid.UUID
	LeaseID     uuid.UUID
	SignedAt    time.Time
	Signer      SignerDetails
	Artifacts   SignatureArtifacts
	LeaseUpdate LeaseSigningUpdate
	NextRequest *NewRequestParams
	Events      []NewOutboxEventParams
}

// CompleteSigningResult returns the rows written by the signing commit.
type CompleteSigningResult struct {
	Request SignatureRequest
	Next    *SignatureRequest
}

// CompleteSigning applies the signed transition in one transaction: the request row
// flips sent -> signed via a conditional update (zero rows means a concurrent or prior
// submission already signed it), the lease columns are updated, the follow-up request
// is inserted when provided, and the outbox events are recorded.
func (s *SignatureRequestStore) CompleteSigning(ctx context.Context, params CompleteSigningParams) (CompleteSigningResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CompleteSigningResult{}, fmt.Errorf("begin signing tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	signQuery := fmt.Sprintf(`
        UPDATE %s
        SET status = $2,
            signer_name = $3,
            signer_email = $4,
            signer_ip = $5,
            signer_user_agent = $6,
            signed_at = $7,
            signature_data_url = $8,
            initials_data_url = $9,
            signed_pdf_url = $10,
            audit_log_url = $11,
            document_hash = $12,
            updated_at = NOW()
        WHERE request_id = $1 AND status = $13
        RETURNING %s
    `, SignatureRequestsTable, requestColumns)

	row := tx.QueryRow(ctx, signQuery,
		params.RequestID,
		RequestStatusSigned,
		strings.TrimSpace(params.Signer.Name),
		strings.TrimSpace(params.Signer.Email),
		params.Signer.IP,
		params.Signer.UserAgent,
		params.SignedAt,
		params.Signer.SignatureDataURL,
		params.Signer.InitialsDataURL,
		params.Artifacts.SignedPDFURL,
		params.Artifacts.AuditLogURL,
		params.Artifacts.DocumentHash,
		RequestStatusSent,
	)

	request, err := scanSignatureRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompleteSigningResult{}, ErrRequestAlreadySigned
		}
		if isUniqueViolation(err) {
			return CompleteSigningResult{}, ErrRequestConflict
		}
		return CompleteSigningResult{}, fmt.Errorf("mark request signed: %w", err)
	}

	setParts := []string{"updated_at = NOW()"}
	args := []any{params.LeaseID}

	if params.LeaseUpdate.TenantSignedAt != nil {
		args = append(args, *params.LeaseUpdate.TenantSignedAt)
		setParts = append(setParts, fmt.Sprintf("tenant_signed_at = $%d", len(args)))
	}
	if params.LeaseUpdate.LandlordSignedAt != nil {
		args = append(args, *params.LeaseUpdate.LandlordSignedAt)
		setParts = append(setParts, fmt.Sprintf("landlord_signed_at = $%d", len(args)))
	}
	if params.LeaseUpdate.Status != nil {
		args = append(args, *params.LeaseUpdate.Status)
		setParts = append(setParts, fmt.Sprintf("status = $%d", len(args)))
	}

	leaseQuery := fmt.Sprintf(`UPDATE %s SET %s WHERE lease_id = $1`, LeasesTable, strings.Join(setParts, ", "))
	tag, err := tx.Exec(ctx, leaseQuery, args...)
	if err != nil {
		return CompleteSigningResult{}, fmt.Errorf("update lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return CompleteSigningResult{}, ErrLeaseNotFound
	}

	result := CompleteSigningResult{Request: request}

	if params.NextRequest != nil {
		next, err := insertRequestTx(ctx, tx, *params.NextRequest)
		if err != nil {
			return CompleteSigningResult{}, err
		}
		result.Next = &next
	}

	for _, event := range params.Events {
		if err := insertOutboxEventTx(ctx, tx, event); err != nil {
			return CompleteSigningResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CompleteSigningResult{}, fmt.Errorf("commit signing tx: %w", err)
	}

	return result, nil
}

func insertRequestTx(ctx context.Context, tx pgx.Tx, params NewRequestParams) (SignatureRequest, error) {
	if params.RequestID == uuid.Nil {
		return SignatureRequest{}, errors.New("request id is required")
	}
	if params.Token == "" {
		return SignatureRequest{}, errors.New("token is required")
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (request_id, lease_id, token, role, recipient_name, recipient_email, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING %s
    `, SignatureRequestsTable, requestColumns),
		params.RequestID,
		params.LeaseID,
		params.Token,
		params.Role,
		strings.TrimSpace(params.RecipientName),
		strings.TrimSpace(params.RecipientEmail),
		params.ExpiresAt,
	)

	request, err := scanSignatureRequest(row)
	if err != nil {
		if isUniqueViolation(err) {
			return SignatureRequest{}, ErrRequestConflict
		}
		return SignatureRequest{}, fmt.Errorf("insert request: %w", err)
	}

	return request, nil
}

func scanSignatureRequest(row pgx.Row) (SignatureRequest, error) {
	var request SignatureRequest

	if err := row.Scan(
		&request.RequestID,
		&request.LeaseID,
		&request.Token,
		&request.Role,
		&request.Status,
		&request.RecipientName,
		&request.RecipientEmail,
		&request.ExpiresAt,
		&request.SignerName,
		&request.SignerEmail,
		&request.SignerIP,
		&request.SignerUserAgent,
		&request.SignedAt,
		&request.SignatureDataURL,
		&request.InitialsDataURL,
		&request.SignedPDFURL,
		&request.AuditLogURL,
		&request.DocumentHash,
		&request.CreatedAt,
		&request.UpdatedAt,
	); err != nil {
		return SignatureRequest{}, err
	}

	return request, nil
}
