// Package service manages the legal document attached to a lease: the
// uploaded-PDF metadata and its signature field positions. Edits stop the
// moment any signature is recorded, because the signed artifact must keep
// matching what the signer saw.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/validation"
)

var (
	// ErrNotFound indicates the lease or its document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrLocked indicates a signature already exists, freezing the document.
	ErrLocked = errors.New("document locked by recorded signature")
)

// Document is the admin-facing view of a lease's legal document. Fields are
// returned parsed, never as raw stored JSON.
type Document struct {
	DocumentID         uuid.UUID        `json:"documentId"`
	LeaseID            uuid.UUID        `json:"leaseId"`
	Name               string           `json:"name"`
	FileURL            *string          `json:"fileUrl"`
	SignatureFields    []fieldset.Field `json:"signatureFields"`
	IsFieldsConfigured bool             `json:"isFieldsConfigured"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// AttachInput carries the uploaded-document metadata; the upload itself
// happens elsewhere and arrives here as a URL.
type AttachInput struct {
	Name    string
	FileURL *string
}

// LeaseStore looks up the lease a document belongs to.
type LeaseStore interface {
	GetLease(ctx context.Context, id uuid.UUID) (persistence.Lease, error)
}

// DocumentStore is the persistence surface for legal documents.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, params persistence.UpsertDocumentParams) (persistence.LegalDocument, error)
	UpdateDocumentFields(ctx context.Context, leaseID uuid.UUID, fields json.RawMessage, configured bool) (persistence.LegalDocument, error)
	GetDocumentByLease(ctx context.Context, leaseID uuid.UUID) (persistence.LegalDocument, error)
}

// RequestStore checks for recorded signatures before allowing edits.
type RequestStore interface {
	ListRequestsByLease(ctx context.Context, leaseID uuid.UUID) ([]persistence.SignatureRequest, error)
}

// Service exposes the legal-document operations.
type Service interface {
	Attach(ctx context.Context, leaseID uuid.UUID, input AttachInput) (Document, error)
	ConfigureFields(ctx context.Context, leaseID uuid.UUID, raw json.RawMessage) (Document, error)
	Get(ctx context.Context, leaseID uuid.UUID) (Document, error)
}

type service struct {
	leases    LeaseStore
	documents DocumentStore
	requests  RequestStore
}

// New builds the document service.
func New(leases LeaseStore, documents DocumentStore, requests RequestStore) Service {
	if leases == nil {
		panic("documents service requires a lease store")
	}
	if documents == nil {
		panic("documents service requires a document store")
	}
	if requests == nil {
		panic("documents service requires a request store")
	}

	return &service{leases: leases, documents: documents, requests: requests}
}

// Attach sets or replaces the document metadata. Replacing the file resets
// any stored field positions at the persistence layer.
func (s *service) Attach(ctx context.Context, leaseID uuid.UUID, input AttachInput) (Document, error) {
	if err := validateAttach(input); err != nil {
		return Document{}, err
	}

	if _, err := s.leases.GetLease(ctx, leaseID); err != nil {
		return Document{}, mapPersistenceError(err)
	}

	if err := s.ensureUnlocked(ctx, leaseID); err != nil {
		return Document{}, err
	}

	record, err := s.documents.UpsertDocument(ctx, persistence.UpsertDocumentParams{
		DocumentID: uuid.New(),
		LeaseID:    leaseID,
		Name:       input.Name,
		FileURL:    input.FileURL,
	})
	if err != nil {
		return Document{}, mapPersistenceError(err)
	}

	return mapDocument(record)
}

// ConfigureFields validates and stores a field-position payload and marks the
// document as configured, which switches signers onto the custom-PDF path.
func (s *service) ConfigureFields(ctx context.Context, leaseID uuid.UUID, raw json.RawMessage) (Document, error) {
	set, err := fieldset.Parse(raw)
	if err != nil {
		if errors.Is(err, fieldset.ErrMalformedFields) {
			return Document{}, validation.NewError("signatureFields", err.Error())
		}
		return Document{}, err
	}

	if _, err := s.leases.GetLease(ctx, leaseID); err != nil {
		return Document{}, mapPersistenceError(err)
	}

	if err := s.ensureUnlocked(ctx, leaseID); err != nil {
		return Document{}, err
	}

	current, err := s.documents.GetDocumentByLease(ctx, leaseID)
	if err != nil {
		return Document{}, mapPersistenceError(err)
	}
	if current.FileURL == nil || strings.TrimSpace(*current.FileURL) == "" {
		return Document{}, validation.NewError("signatureFields", "a document file must be attached before configuring fields")
	}

	encoded, err := set.Encode()
	if err != nil {
		return Document{}, err
	}

	record, err := s.documents.UpdateDocumentFields(ctx, leaseID, encoded, true)
	if err != nil {
		return Document{}, mapPersistenceError(err)
	}

	return mapDocument(record)
}

func (s *service) Get(ctx context.Context, leaseID uuid.UUID) (Document, error) {
	record, err := s.documents.GetDocumentByLease(ctx, leaseID)
	if err != nil {
		return Document{}, mapPersistenceError(err)
	}

	return mapDocument(record)
}

// ensureUnlocked rejects edits once any request for the lease is signed.
func (s *service) ensureUnlocked(ctx context.Context, leaseID uuid.UUID) error {
	requests, err := s.requests.ListRequestsByLease(ctx, leaseID)
	if err != nil {
		return err
	}
	for _, request := range requests {
		if request.Status == persistence.RequestStatusSigned {
			return ErrLocked
		}
	}
	return nil
}

func validateAttach(input AttachInput) error {
	fe := validation.FieldErrors{}

	if strings.TrimSpace(input.Name) == "" {
		fe.Add("name", "document name is required")
	}
	if input.FileURL != nil && strings.TrimSpace(*input.FileURL) != "" {
		parsed, err := url.Parse(*input.FileURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			fe.Add("fileUrl", "must be an absolute http(s) URL")
		}
	}

	if len(fe) > 0 {
		return &validation.Error{Fields: fe}
	}
	return nil
}

func mapDocument(record persistence.LegalDocument) (Document, error) {
	set, err := fieldset.Parse(record.SignatureFields)
	if err != nil {
		return Document{}, err
	}

	return Document{
		DocumentID:         record.DocumentID,
		LeaseID:            record.LeaseID,
		Name:               record.Name,
		FileURL:            record.FileURL,
		SignatureFields:    set.Fields,
		IsFieldsConfigured: record.FieldsConfigured,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}, nil
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrLeaseNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDocumentNotFound):
		return ErrNotFound
	default:
		return err
	}
}
