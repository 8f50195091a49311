// Package service implements the lease administration operations behind the
// internal API: creating leases, listing them, and moving a draft into the
// signing phase.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/outbox"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/token"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/validation"
)

var (
	// ErrNotFound indicates the requested lease does not exist.
	ErrNotFound = errors.New("lease not found")
	// ErrConflict indicates the lease state does not allow the requested transition.
	ErrConflict = errors.New("lease state conflict")
)

// Signing progress values derived for the admin views.
const (
	ProgressNotStarted       = "not_started"
	ProgressAwaitingTenant   = "awaiting_tenant"
	ProgressAwaitingLandlord = "awaiting_landlord"
	ProgressCompleted        = "completed"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Lease is the admin-facing view of a lease record.
type Lease struct {
	LeaseID           uuid.UUID  `json:"leaseId"`
	PropertyLabel     string     `json:"propertyLabel"`
	LandlordName      string     `json:"landlordName"`
	LandlordEmail     string     `json:"landlordEmail"`
	TenantName        string     `json:"tenantName"`
	TenantEmail       string     `json:"tenantEmail"`
	RentAmountCents   int64      `json:"rentAmountCents"`
	BillingDayOfMonth int        `json:"billingDayOfMonth"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	Status            string     `json:"status"`
	SigningProgress   string     `json:"signingProgress"`
	TenantSignedAt    *time.Time `json:"tenantSignedAt"`
	LandlordSignedAt  *time.Time `json:"landlordSignedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// SignatureRequest is the admin-facing view of one signing audit-trail entry.
// The raw signature payloads stay in the database; the trail carries the
// metadata and artifact links.
type SignatureRequest struct {
	RequestID       uuid.UUID  `json:"requestId"`
	LeaseID         uuid.UUID  `json:"leaseId"`
	Token           string     `json:"token"`
	SigningURL      string     `json:"signingUrl"`
	Role            string     `json:"role"`
	Status          string     `json:"status"`
	RecipientName   string     `json:"recipientName"`
	RecipientEmail  string     `json:"recipientEmail"`
	ExpiresAt       *time.Time `json:"expiresAt"`
	SignerName      *string    `json:"signerName"`
	SignerEmail     *string    `json:"signerEmail"`
	SignerIP        *string    `json:"signerIp"`
	SignerUserAgent *string    `json:"signerUserAgent"`
	SignedAt        *time.Time `json:"signedAt"`
	SignedPDFURL    *string    `json:"signedPdfUrl"`
	AuditLogURL     *string    `json:"auditLogUrl"`
	DocumentHash    *string    `json:"documentHash"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CreateInput carries the fields accepted when registering a lease.
type CreateInput struct {
	PropertyLabel     string
	LandlordName      string
	LandlordEmail     string
	TenantName        string
	TenantEmail       string
	RentAmountCents   int64
	BillingDayOfMonth int
	StartDate         time.Time
	EndDate           *time.Time
}

// ListOptions controls filtering and pagination for List.
type ListOptions struct {
	Status   *string
	Page     int
	PageSize int
	Sort     *string
}

// ListResult carries one page of leases plus pagination metadata.
type ListResult struct {
	Leases     []Lease `json:"leases"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalItems int     `json:"totalItems"`
	TotalPages int     `json:"totalPages"`
}

// LeaseStore is the slice of the persistence layer backing lease administration.
type LeaseStore interface {
	CreateLease(ctx context.Context, params persistence.CreateLeaseParams) (persistence.Lease, error)
	GetLease(ctx context.Context, id uuid.UUID) (persistence.Lease, error)
	ListLeases(ctx context.Context, params persistence.ListLeasesParams) (persistence.ListLeasesResult, error)
}

// RequestStore covers the signature-request operations the admin surface drives.
type RequestStore interface {
	StartSigning(ctx context.Context, params persistence.StartSigningParams) (persistence.SignatureRequest, error)
	ListRequestsByLease(ctx context.Context, leaseID uuid.UUID) ([]persistence.SignatureRequest, error)
}

// Config carries the signing-link settings used when entering the signing phase.
type Config struct {
	SigningBaseURL string
	LinkTTL        time.Duration
}

// Service exposes the lease administration operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (Lease, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (Lease, error)
	StartSigning(ctx context.Context, leaseID uuid.UUID) (SignatureRequest, error)
	Requests(ctx context.Context, leaseID uuid.UUID) ([]SignatureRequest, error)
}

type service struct {
	leases   LeaseStore
	requests RequestStore
	cfg      Config
}

// New builds the lease administration service.
func New(leases LeaseStore, requests RequestStore, cfg Config) Service {
	if leases == nil {
		panic("leases service requires a lease store")
	}
	if requests == nil {
		panic("leases service requires a request store")
	}

	return &service{leases: leases, requests: requests, cfg: cfg}
}

func (s *service) Create(ctx context.Context, input CreateInput) (Lease, error) {
	if err := validateCreate(input); err != nil {
		return Lease{}, err
	}

	record, err := s.leases.CreateLease(ctx, persistence.CreateLeaseParams{
		LeaseID:         uuid.New(),
		PropertyLabel:   input.PropertyLabel,
		LandlordName:    input.LandlordName,
		LandlordEmail:   input.LandlordEmail,
		TenantName:      input.TenantName,
		TenantEmail:     input.TenantEmail,
		RentAmountCents: input.RentAmountCents,
		BillingDay:      input.BillingDayOfMonth,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
	})
	if err != nil {
		return Lease{}, mapPersistenceError(err)
	}

	return mapLease(record), nil
}

func (s *service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sort, err := sanitizeSort(opts.Sort)
	if err != nil {
		return ListResult{}, err
	}

	if opts.Status != nil && strings.TrimSpace(*opts.Status) != "" {
		if _, ok := leaseStatuses[strings.TrimSpace(*opts.Status)]; !ok {
			return ListResult{}, validation.NewError("status", fmt.Sprintf("unknown lease status %q", *opts.Status))
		}
	}

	result, err := s.leases.ListLeases(ctx, persistence.ListLeasesParams{
		Page:     page,
		PageSize: pageSize,
		Status:   opts.Status,
		Sort:     sort,
	})
	if err != nil {
		return ListResult{}, mapPersistenceError(err)
	}

	leases := make([]Lease, 0, len(result.Leases))
	for _, record := range result.Leases {
		leases = append(leases, mapLease(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Leases:     leases,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Lease, error) {
	record, err := s.leases.GetLease(ctx, id)
	if err != nil {
		return Lease{}, mapPersistenceError(err)
	}

	return mapLease(record), nil
}

// StartSigning moves a draft lease into the signing phase: the lease flips to
// pending, the tenant's signature request is created with a fresh link token,
// and the invite event is queued, all in one transaction.
func (s *service) StartSigning(ctx context.Context, leaseID uuid.UUID) (SignatureRequest, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return SignatureRequest{}, mapPersistenceError(err)
	}

	tok, err := token.New()
	if err != nil {
		return SignatureRequest{}, err
	}

	expiresAt := time.Now().Add(s.cfg.LinkTTL)
	requestID := uuid.New()

	payload, err := outbox.EventPayload{
		LeaseID:        leaseID,
		RequestID:      requestID,
		PropertyLabel:  lease.PropertyLabel,
		RecipientName:  lease.TenantName,
		RecipientEmail: lease.TenantEmail,
		Role:           persistence.RoleTenant,
		SigningURL:     s.signingURL(tok),
		ExpiresAt:      &expiresAt,
	}.Encode()
	if err != nil {
		return SignatureRequest{}, err
	}

	record, err := s.requests.StartSigning(ctx, persistence.StartSigningParams{
		LeaseID: leaseID,
		Request: persistence.NewRequestParams{
			RequestID:      requestID,
			LeaseID:        leaseID,
			Token:          tok,
			Role:           persistence.RoleTenant,
			RecipientName:  lease.TenantName,
			RecipientEmail: lease.TenantEmail,
			ExpiresAt:      &expiresAt,
		},
		Events: []persistence.NewOutboxEventParams{{
			EventID:   uuid.New(),
			EventType: outbox.EventSigningStarted,
			Payload:   payload,
		}},
	})
	if err != nil {
		return SignatureRequest{}, mapPersistenceError(err)
	}

	return s.mapRequest(record), nil
}

func (s *service) Requests(ctx context.Context, leaseID uuid.UUID) ([]SignatureRequest, error) {
	if _, err := s.leases.GetLease(ctx, leaseID); err != nil {
		return nil, mapPersistenceError(err)
	}

	records, err := s.requests.ListRequestsByLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	requests := make([]SignatureRequest, 0, len(records))
	for _, record := range records {
		requests = append(requests, s.mapRequest(record))
	}

	return requests, nil
}

func (s *service) signingURL(tok string) string {
	return strings.TrimRight(s.cfg.SigningBaseURL, "/") + "/" + tok
}

func (s *service) mapRequest(record persistence.SignatureRequest) SignatureRequest {
	return SignatureRequest{
		RequestID:       record.RequestID,
		LeaseID:         record.LeaseID,
		Token:           record.Token,
		SigningURL:      s.signingURL(record.Token),
		Role:            record.Role,
		Status:          record.Status,
		RecipientName:   record.RecipientName,
		RecipientEmail:  record.RecipientEmail,
		ExpiresAt:       record.ExpiresAt,
		SignerName:      record.SignerName,
		SignerEmail:     record.SignerEmail,
		SignerIP:        record.SignerIP,
		SignerUserAgent: record.SignerUserAgent,
		SignedAt:        record.SignedAt,
		SignedPDFURL:    record.SignedPDFURL,
		AuditLogURL:     record.AuditLogURL,
		DocumentHash:    record.DocumentHash,
		CreatedAt:       record.CreatedAt,
	}
}

func mapLease(record persistence.Lease) Lease {
	return Lease{
		LeaseID:           record.LeaseID,
		PropertyLabel:     record.PropertyLabel,
		LandlordName:      record.LandlordName,
		LandlordEmail:     record.LandlordEmail,
		TenantName:        record.TenantName,
		TenantEmail:       record.TenantEmail,
		RentAmountCents:   record.RentAmountCents,
		BillingDayOfMonth: record.BillingDay,
		StartDate:         record.StartDate,
		EndDate:           record.EndDate,
		Status:            record.Status,
		SigningProgress:   signingProgress(record),
		TenantSignedAt:    record.TenantSignedAt,
		LandlordSignedAt:  record.LandlordSignedAt,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func signingProgress(record persistence.Lease) string {
	switch {
	case record.Status == persistence.LeaseStatusDraft:
		return ProgressNotStarted
	case record.LandlordSignedAt != nil:
		return ProgressCompleted
	case record.TenantSignedAt != nil:
		return ProgressAwaitingLandlord
	default:
		return ProgressAwaitingTenant
	}
}

var leaseStatuses = map[string]struct{}{
	persistence.LeaseStatusDraft:   {},
	persistence.LeaseStatusPending: {},
	persistence.LeaseStatusActive:  {},
}

// sortableFields whitelists the lease list sort keys accepted from clients.
var sortableFields = map[string]struct{}{
	"propertyLabel": {},
	"startDate":     {},
	"status":        {},
	"createdAt":     {},
	"updatedAt":     {},
}

func sanitizeSort(sort *string) (*string, error) {
	if sort == nil || strings.TrimSpace(*sort) == "" {
		return nil, nil
	}

	for _, raw := range strings.Split(*sort, ",") {
		field := strings.TrimPrefix(strings.TrimSpace(raw), "-")
		if field == "" {
			continue
		}
		if _, ok := sortableFields[field]; !ok {
			return nil, validation.NewError("sort", fmt.Sprintf("unsupported sort field %q", field))
		}
	}

	return sort, nil
}

func validateCreate(input CreateInput) error {
	fe := validation.FieldErrors{}

	if strings.TrimSpace(input.PropertyLabel) == "" {
		fe.Add("propertyLabel", "property label is required")
	}
	if strings.TrimSpace(input.LandlordName) == "" {
		fe.Add("landlordName", "landlord name is required")
	}
	if !validation.ValidEmail(input.LandlordEmail) {
		fe.Add("landlordEmail", "a valid landlord email is required")
	}
	if strings.TrimSpace(input.TenantName) == "" {
		fe.Add("tenantName", "tenant name is required")
	}
	if !validation.ValidEmail(input.TenantEmail) {
		fe.Add("tenantEmail", "a valid tenant email is required")
	}
	if input.RentAmountCents <= 0 {
		fe.Add("rentAmountCents", "rent amount must be a positive number of cents")
	}
	if input.BillingDayOfMonth < 1 || input.BillingDayOfMonth > 28 {
		fe.Add("billingDayOfMonth", "billing day must be between 1 and 28")
	}
	if input.StartDate.IsZero() {
		fe.Add("startDate", "start date is required")
	}
	if input.EndDate != nil && !input.EndDate.After(input.StartDate) {
		fe.Add("endDate", "end date must be after the start date")
	}

	if len(fe) > 0 {
		return &validation.Error{Fields: fe}
	}
	return nil
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrLeaseNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrLeaseConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrRequestConflict):
		return ErrConflict
	default:
		return err
	}
}
