package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/storage"
)

// Mode selects the document-generation strategy for a signing run.
type Mode string

const (
	ModeTemplate  Mode = "html_template"
	ModeCustomPDF Mode = "custom_pdf"
)

// SignatureImage is a validated signer-drawn PNG, kept in both forms: the
// data URL embeds into HTML, the raw bytes stamp onto PDFs.
type SignatureImage struct {
	DataURL string
	PNG     []byte
}

// PriorSignature carries the counterparty's recorded signature so a
// regenerated document can reproduce it.
type PriorSignature struct {
	SignatureDataURL string
	SignerName       string
}

// Job describes one signing execution. The caller has already enforced
// ordering and idempotency and validated the signature payload.
type Job struct {
	LeaseID   uuid.UUID
	RequestID uuid.UUID
	Role      string
	Mode      Mode

	// Template mode. BasePDFURL points at the first signer's artifact when one
	// exists; PriorSignature backs the regeneration fallback.
	LeaseHTML      string
	BasePDFURL     string
	PriorSignature *PriorSignature

	// Custom-PDF mode. Fields are already filtered to the signer's role.
	DocumentURL string
	Fields      []fieldset.Field

	Signature     SignatureImage
	Initials      *SignatureImage
	InitialValues map[string]string
	SignedAt      time.Time
	Audit         AuditRecord
}

// Result is what a completed signing run hands back to the state machine.
type Result struct {
	SignedPDFURL string
	AuditLogURL  string
	DocumentHash string
}

// Engine executes signing jobs end to end: compose the document, stamp the
// execution line, hash, and upload the signed PDF plus its audit record.
type Engine struct {
	converter Converter
	stamper   Stamper
	store     storage.Store
	logger    *zap.Logger
}

func NewEngine(converter Converter, stamper Stamper, store storage.Store, logger *zap.Logger) *Engine {
	if converter == nil {
		panic("pdf engine requires a converter")
	}
	if stamper == nil {
		panic("pdf engine requires a stamper")
	}
	if store == nil {
		panic("pdf engine requires an artifact store")
	}
	if logger == nil {
		panic("pdf engine requires a logger")
	}
	return &Engine{converter: converter, stamper: stamper, store: store, logger: logger}
}

func (e *Engine) Execute(ctx context.Context, job Job) (Result, error) {
	if job.Signature.DataURL == "" {
		return Result{}, fmt.Errorf("signing job requires a signature image")
	}

	var (
		doc []byte
		err error
	)
	switch job.Mode {
	case ModeCustomPDF:
		doc, err = e.stampCustomPDF(ctx, job)
	case ModeTemplate:
		doc, err = e.renderTemplatePDF(ctx, job)
	default:
		return Result{}, fmt.Errorf("unknown signing mode %q", job.Mode)
	}
	if err != nil {
		return Result{}, err
	}

	doc, err = e.stamper.Stamp(ctx, doc, []Placement{executionPlacement(job)})
	if err != nil {
		return Result{}, fmt.Errorf("stamp execution line: %w", err)
	}

	hash := DocumentHash(doc)

	signedKey := storage.ArtifactKey(job.LeaseID, job.RequestID, storage.SignedPDFName)
	signedURL, err := e.store.Put(ctx, signedKey, "application/pdf", doc)
	if err != nil {
		return Result{}, fmt.Errorf("store signed pdf: %w", err)
	}

	audit := job.Audit
	audit.DocumentHash = hash
	auditJSON, err := EncodeAuditRecord(audit)
	if err != nil {
		return Result{}, err
	}

	auditKey := storage.ArtifactKey(job.LeaseID, job.RequestID, storage.AuditLogName)
	auditURL, err := e.store.Put(ctx, auditKey, "application/json", auditJSON)
	if err != nil {
		return Result{}, fmt.Errorf("store audit record: %w", err)
	}

	return Result{SignedPDFURL: signedURL, AuditLogURL: auditURL, DocumentHash: hash}, nil
}

// renderTemplatePDF handles the HTML-template mode. A second signer stamps
// onto the first signer's artifact so that signature survives byte for byte;
// when the base cannot be fetched the document is regenerated from markup
// with both signatures substituted.
func (e *Engine) renderTemplatePDF(ctx context.Context, job Job) ([]byte, error) {
	if job.LeaseHTML == "" {
		return nil, fmt.Errorf("template mode requires rendered lease markup")
	}

	if job.BasePDFURL != "" {
		base, err := e.store.Fetch(ctx, job.BasePDFURL)
		if err == nil {
			stamped, err := e.stamper.Stamp(ctx, base, signatureBlockPlacements(job))
			if err != nil {
				return nil, fmt.Errorf("stamp signature block: %w", err)
			}
			return stamped, nil
		}
		e.logger.Warn("base pdf unavailable, regenerating from template",
			zap.String("lease_id", job.LeaseID.String()),
			zap.String("request_id", job.RequestID.String()),
			zap.Error(err),
		)
	}

	converted, err := e.converter.Convert(ctx, e.composeFinalHTML(job))
	if err != nil {
		return nil, fmt.Errorf("render lease pdf: %w", err)
	}
	return converted, nil
}

// stampCustomPDF handles the coordinate-stamping mode against the uploaded
// document.
func (e *Engine) stampCustomPDF(ctx context.Context, job Job) ([]byte, error) {
	if job.DocumentURL == "" {
		return nil, fmt.Errorf("custom pdf mode requires a document url")
	}

	doc, err := e.store.Fetch(ctx, job.DocumentURL)
	if err != nil {
		return nil, fmt.Errorf("fetch signing document: %w", err)
	}

	placements := make([]Placement, 0, len(job.Fields))
	for _, f := range job.Fields {
		switch f.Type {
		case fieldset.TypeSignature:
			placements = append(placements, Placement{Field: f, ImagePNG: job.Signature.PNG})
		case fieldset.TypeDate:
			placements = append(placements, Placement{Field: f, Text: formatDate(job.SignedAt)})
		}
	}

	stamped, err := e.stamper.Stamp(ctx, doc, placements)
	if err != nil {
		return nil, fmt.Errorf("stamp signature fields: %w", err)
	}
	return stamped, nil
}

// composeFinalHTML resolves every placeholder for a regenerated artifact.
func (e *Engine) composeFinalHTML(job Job) string {
	repl := Replacements{Initials: make(map[int]string, InitialsSlots)}

	sigTag := SignatureImageTag(job.Signature.DataURL)
	switch job.Role {
	case fieldset.RoleTenant:
		repl.TenantSignature = sigTag
	case fieldset.RoleLandlord:
		repl.LandlordSignature = sigTag
		if job.PriorSignature != nil && job.PriorSignature.SignatureDataURL != "" {
			repl.TenantSignature = SignatureImageTag(job.PriorSignature.SignatureDataURL)
		}
	}

	for i := 1; i <= InitialsSlots; i++ {
		if v := job.InitialValues[InitialsSlotID(i)]; v != "" {
			repl.Initials[i] = TypedInitialsTag(v)
		} else if job.Initials != nil && job.Initials.DataURL != "" {
			repl.Initials[i] = InitialsImageTag(job.Initials.DataURL)
		}
	}

	return ReplaceSignatures(job.LeaseHTML, repl)
}

// signatureBlockPlacements lays the current signer's signature and date onto
// an existing artifact using the role's default field positions.
func signatureBlockPlacements(job Job) []Placement {
	placements := make([]Placement, 0, 2)
	for _, f := range fieldset.DefaultFields().ForRole(job.Role) {
		switch f.Type {
		case fieldset.TypeSignature:
			placements = append(placements, Placement{Field: f, ImagePNG: job.Signature.PNG})
		case fieldset.TypeDate:
			placements = append(placements, Placement{Field: f, Text: formatDate(job.SignedAt)})
		}
	}
	return placements
}

// executionPlacement is the final line stamped across the bottom of the last
// page of every artifact.
func executionPlacement(job Job) Placement {
	text := fmt.Sprintf("Electronically signed by %s (%s) on %s, IP %s",
		job.Audit.SignerName, job.Audit.SignerEmail,
		job.SignedAt.UTC().Format(time.RFC3339), job.Audit.SignerIP,
	)
	return Placement{
		Field: fieldset.Field{
			ID:     "execution-line",
			Type:   fieldset.TypeDate,
			Role:   job.Role,
			Page:   fieldset.LastPage,
			X:      36,
			Y:      774,
			Width:  540,
			Height: 12,
		},
		Text: text,
	}
}
