package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const LegalDocumentsTable = "legal_documents"

// LegalDocument represents a row in the legal_documents table.
// SignatureFields holds the stored field-position JSON verbatim; parsing and
// validation belong to the fieldset package.
type LegalDocument struct {
	DocumentID       uuid.UUID       `db:"document_id" json:"documentId"`
	LeaseID          uuid.UUID       `db:"lease_id" json:"leaseId"`
	Name             string          `db:"name" json:"name"`
	FileURL          *string         `db:"file_url" json:"fileUrl"`
	SignatureFields  json.RawMessage `db:"signature_fields" json:"signatureFields"`
	FieldsConfigured bool            `db:"fields_configured" json:"fieldsConfigured"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrDocumentNotFound indicates no legal document is attached to the lease.
	ErrDocumentNotFound = errors.New("legal document not found")
)

// DocumentStore exposes persistence helpers for the legal_documents table.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore returns a store bound to the shared pool.
func NewDocumentStore(pool *pgxpool.Pool) (*DocumentStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &DocumentStore{pool: pool}, nil
}

const documentColumns = `document_id, lease_id, name, file_url, signature_fields, fields_configured, created_at, updated_at`

// UpsertDocumentParams captures the uploaded-document metadata for a lease.
type UpsertDocumentParams struct {
	DocumentID uuid.UUID
	LeaseID    uuid.UUID
	Name       string
	FileURL    *string
}

// UpsertDocument attaches or replaces the legal document metadata for a lease.
// Replacing the file invalidates any stored field positions, so both are reset.
func (s *DocumentStore) UpsertDocument(ctx context.Context, params UpsertDocumentParams) (LegalDocument, error) {
	if params.DocumentID == uuid.Nil {
		return LegalDocument{}, errors.New("document id is required")
	}
	if params.LeaseID == uuid.Nil {
		return LegalDocument{}, errors.New("lease id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (document_id, lease_id, name, file_url)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (lease_id) DO UPDATE
        SET name = EXCLUDED.name,
            file_url = EXCLUDED.file_url,
            signature_fields = NULL,
            fields_configured = FALSE,
            updated_at = NOW()
        RETURNING %s
    `, LegalDocumentsTable, documentColumns),
		params.DocumentID,
		params.LeaseID,
		strings.TrimSpace(params.Name),
		params.FileURL,
	)

	doc, err := scanLegalDocument(row)
	if err != nil {
		return LegalDocument{}, fmt.Errorf("upsert legal document: %w", err)
	}

	return doc, nil
}

// UpdateDocumentFields stores a validated field-position payload and flips the configured flag.
func (s *DocumentStore) UpdateDocumentFields(ctx context.Context, leaseID uuid.UUID, fields json.RawMessage, configured bool) (LegalDocument, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET signature_fields = $2, fields_configured = $3, updated_at = NOW()
        WHERE lease_id = $1
        RETURNING %s
    `, LegalDocumentsTable, documentColumns), leaseID, fields, configured)

	doc, err := scanLegalDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegalDocument{}, ErrDocumentNotFound
		}
		return LegalDocument{}, fmt.Errorf("update document fields: %w", err)
	}

	return doc, nil
}

// GetDocumentByLease returns the legal document attached to the given lease.
func (s *DocumentStore) GetDocumentByLease(ctx context.Context, leaseID uuid.UUID) (LegalDocument, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE lease_id = $1
    `, documentColumns, LegalDocumentsTable), leaseID)

	doc, err := scanLegalDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegalDocument{}, ErrDocumentNotFound
		}
		return LegalDocument{}, err
	}

	return doc, nil
}

func scanLegalDocument(row pgx.Row) (LegalDocument, error) {
	var doc LegalDocument

	if err := row.Scan(
		&doc.DocumentID,
		&doc.LeaseID,
		&doc.Name,
		&doc.FileURL,
		&doc.SignatureFields,
		&doc.FieldsConfigured,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return LegalDocument{}, err
	}

	return doc, nil
}
