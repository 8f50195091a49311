// Package service implements the public signing flow: resolving a capability
// token into a signing experience, and committing a submitted signature
// through the PDF engine and the transactional persistence layer.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/clientinfo"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/outbox"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/pdf"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/token"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/validation"
)

var (
	// ErrNotFound indicates an unknown token or a missing lease behind it.
	ErrNotFound = errors.New("signature request not found")
	// ErrExpired indicates the signing link TTL has lapsed. Expiry wins over
	// every other state, including already-signed.
	ErrExpired = errors.New("signing link expired")
	// ErrAlreadySigned is the idempotency guard against double submission.
	ErrAlreadySigned = errors.New("signature request already signed")
	// ErrTenantNotSigned rejects a landlord signing ahead of the tenant.
	ErrTenantNotSigned = errors.New("tenant signature required first")
)

// ProcessingError wraps PDF pipeline failures so the handler can surface the
// underlying engine message with an internal status. Nothing was committed
// before the failure, so retrying is safe.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string { return e.Err.Error() }

func (e *ProcessingError) Unwrap() error { return e.Err }

// LeaseDetails is the lease summary shown beside a custom-PDF signing view.
type LeaseDetails struct {
	PropertyLabel     string     `json:"propertyLabel"`
	LandlordName      string     `json:"landlordName"`
	TenantName        string     `json:"tenantName"`
	RentAmountCents   int64      `json:"rentAmountCents"`
	BillingDayOfMonth int        `json:"billingDayOfMonth"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	Status            string     `json:"status"`
}

// SigningPage is everything the signing client needs to render a request.
// For the current signer the markup keeps its placeholder tokens; the
// counterparty's recorded signature is substituted in.
type SigningPage struct {
	LeaseID        uuid.UUID
	Role           string
	RecipientName  string
	RecipientEmail string
	Status         string
	SignedPDFURL   *string
	Source         DocumentSource
	LeaseDetails   LeaseDetails
}

// InitialValue is a typed initials entry keyed by template slot id.
type InitialValue struct {
	ID    string
	Value string
}

// SubmitInput is the signing payload posted by the signer.
type SubmitInput struct {
	SignatureDataURL string
	InitialsDataURL  string
	SignerName       string
	SignerEmail      string
	Consent          bool
	InitialsData     []InitialValue
}

// SubmitResult echoes the artifacts produced by a completed signature.
type SubmitResult struct {
	SignedPDFURL string `json:"signedPdfUrl"`
	AuditLogURL  string `json:"auditLogUrl"`
	DocumentHash string `json:"documentHash"`
}

// RequestStore is the slice of the persistence layer the signing flow reads
// and commits through.
type RequestStore interface {
	GetRequestByToken(ctx context.Context, token string) (persistence.SignatureRequest, error)
	GetSignedRequest(ctx context.Context, leaseID uuid.UUID, role string) (persistence.SignatureRequest, error)
	HasRequestForRole(ctx context.Context, leaseID uuid.UUID, role string) (bool, error)
	CompleteSigning(ctx context.Context, params persistence.CompleteSigningParams) (persistence.CompleteSigningResult, error)
}

// LeaseStore looks up the lease behind a request.
type LeaseStore interface {
	GetLease(ctx context.Context, id uuid.UUID) (persistence.Lease, error)
}

// DocumentStore looks up the legal document configured for a lease.
type DocumentStore interface {
	GetDocumentByLease(ctx context.Context, leaseID uuid.UUID) (persistence.LegalDocument, error)
}

// Engine produces the signed artifact bundle for a submission.
type Engine interface {
	Execute(ctx context.Context, job pdf.Job) (pdf.Result, error)
}

// Config carries the signing-flow settings.
type Config struct {
	SigningBaseURL string
	LinkTTL        time.Duration
	Policy         ConsistencyPolicy
}

// Service drives the public signing flow.
type Service interface {
	Resolve(ctx context.Context, tok string) (SigningPage, error)
	Submit(ctx context.Context, tok string, input SubmitInput) (SubmitResult, error)
}

type service struct {
	requests  RequestStore
	leases    LeaseStore
	documents DocumentStore
	engine    Engine
	logger    *zap.Logger
	cfg       Config
}

// New builds the signing service.
func New(requests RequestStore, leases LeaseStore, documents DocumentStore, engine Engine, logger *zap.Logger, cfg Config) Service {
	if requests == nil {
		panic("signing service requires a request store")
	}
	if leases == nil {
		panic("signing service requires a lease store")
	}
	if documents == nil {
		panic("signing service requires a document store")
	}
	if engine == nil {
		panic("signing service requires a pdf engine")
	}
	if logger == nil {
		panic("signing service requires a logger")
	}

	return &service{
		requests:  requests,
		leases:    leases,
		documents: documents,
		engine:    engine,
		logger:    logger,
		cfg:       cfg,
	}
}

// Resolve turns a signing link into the page the signer sees. A signed
// request still resolves so the artifact stays viewable; only expiry closes
// the link.
func (s *service) Resolve(ctx context.Context, tok string) (SigningPage, error) {
	request, lease, err := s.lookup(ctx, tok)
	if err != nil {
		return SigningPage{}, err
	}

	prior, counterpartySigned, err := s.counterpartySignature(ctx, request)
	if err != nil {
		return SigningPage{}, err
	}

	doc, err := s.document(ctx, request.LeaseID)
	if err != nil {
		return SigningPage{}, err
	}

	source, err := ResolveDocumentSource(lease, doc, request.Role, counterpartySigned, s.cfg.Policy, time.Now())
	if err != nil {
		return SigningPage{}, &ProcessingError{Err: err}
	}

	priorDataURL := ""
	if prior != nil && prior.SignatureDataURL != nil {
		priorDataURL = *prior.SignatureDataURL
	}
	source.LeaseHTML = pdf.PreviewHTML(source.LeaseHTML, request.Role, priorDataURL)

	return SigningPage{
		LeaseID:        request.LeaseID,
		Role:           request.Role,
		RecipientName:  request.RecipientName,
		RecipientEmail: request.RecipientEmail,
		Status:         request.Status,
		SignedPDFURL:   request.SignedPDFURL,
		Source:         source,
		LeaseDetails:   leaseDetails(lease),
	}, nil
}

// Submit records a signature: validate the payload, enforce signer ordering,
// run the PDF engine, then commit the request flip, lease update, follow-up
// request, and notification events in one transaction.
func (s *service) Submit(ctx context.Context, tok string, input SubmitInput) (SubmitResult, error) {
	request, lease, err := s.lookup(ctx, tok)
	if err != nil {
		return SubmitResult{}, err
	}
	if request.Status == persistence.RequestStatusSigned {
		return SubmitResult{}, ErrAlreadySigned
	}

	signature, initials, err := validateSubmit(input)
	if err != nil {
		return SubmitResult{}, err
	}

	prior, counterpartySigned, err := s.counterpartySignature(ctx, request)
	if err != nil {
		return SubmitResult{}, err
	}
	if request.Role == persistence.RoleLandlord && !counterpartySigned {
		return SubmitResult{}, ErrTenantNotSigned
	}

	doc, err := s.document(ctx, request.LeaseID)
	if err != nil {
		return SubmitResult{}, err
	}

	source, err := ResolveDocumentSource(lease, doc, request.Role, counterpartySigned, s.cfg.Policy, time.Now())
	if err != nil {
		return SubmitResult{}, &ProcessingError{Err: err}
	}

	signedAt := time.Now().UTC()
	info := clientinfo.FromContextOrUnknown(ctx)

	job := buildJob(request, source, prior, signature, initials, input, info, signedAt)

	artifacts, err := s.engine.Execute(ctx, job)
	if err != nil {
		return SubmitResult{}, &ProcessingError{Err: err}
	}

	params, err := s.completionParams(ctx, request, lease, signedAt, info, input, artifacts)
	if err != nil {
		return SubmitResult{}, err
	}

	if _, err := s.requests.CompleteSigning(ctx, params); err != nil {
		return SubmitResult{}, s.mapCompletionError(request, err)
	}

	return SubmitResult{
		SignedPDFURL: artifacts.SignedPDFURL,
		AuditLogURL:  artifacts.AuditLogURL,
		DocumentHash: artifacts.DocumentHash,
	}, nil
}

// lookup resolves the token and its lease. Expiry is checked here so it wins
// over every downstream state.
func (s *service) lookup(ctx context.Context, tok string) (persistence.SignatureRequest, persistence.Lease, error) {
	request, err := s.requests.GetRequestByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, persistence.ErrRequestNotFound) {
			return persistence.SignatureRequest{}, persistence.Lease{}, ErrNotFound
		}
		return persistence.SignatureRequest{}, persistence.Lease{}, err
	}

	if request.ExpiresAt != nil && time.Now().After(*request.ExpiresAt) {
		return persistence.SignatureRequest{}, persistence.Lease{}, ErrExpired
	}

	lease, err := s.leases.GetLease(ctx, request.LeaseID)
	if err != nil {
		if errors.Is(err, persistence.ErrLeaseNotFound) {
			return persistence.SignatureRequest{}, persistence.Lease{}, ErrNotFound
		}
		return persistence.SignatureRequest{}, persistence.Lease{}, err
	}

	return request, lease, nil
}

// counterpartySignature loads the other party's signed request when one exists.
func (s *service) counterpartySignature(ctx context.Context, request persistence.SignatureRequest) (*persistence.SignatureRequest, bool, error) {
	other := persistence.RoleTenant
	if request.Role == persistence.RoleTenant {
		other = persistence.RoleLandlord
	}

	signed, err := s.requests.GetSignedRequest(ctx, request.LeaseID, other)
	if err != nil {
		if errors.Is(err, persistence.ErrRequestNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &signed, true, nil
}

func (s *service) document(ctx context.Context, leaseID uuid.UUID) (*persistence.LegalDocument, error) {
	doc, err := s.documents.GetDocumentByLease(ctx, leaseID)
	if err != nil {
		if errors.Is(err, persistence.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// buildJob assembles the engine input for the resolved source. On the
// template path the second signer carries the first artifact as its base plus
// the prior signature for the regeneration fallback.
func buildJob(request persistence.SignatureRequest, source DocumentSource, prior *persistence.SignatureRequest, signature pdf.SignatureImage, initials *pdf.SignatureImage, input SubmitInput, info clientinfo.Info, signedAt time.Time) pdf.Job {
	job := pdf.Job{
		LeaseID:       request.LeaseID,
		RequestID:     request.RequestID,
		Role:          request.Role,
		Signature:     signature,
		Initials:      initials,
		InitialValues: initialValues(input.InitialsData),
		SignedAt:      signedAt,
		Audit: pdf.AuditRecord{
			Token:           request.Token,
			LeaseID:         request.LeaseID,
			RequestID:       request.RequestID,
			Role:            request.Role,
			SignerName:      strings.TrimSpace(input.SignerName),
			SignerEmail:     strings.TrimSpace(input.SignerEmail),
			SignerIP:        info.IPAddress,
			SignerUserAgent: info.UserAgent,
			ConsentGiven:    input.Consent,
			SignedAt:        signedAt,
		},
	}

	switch source.Kind {
	case KindCustomPDF:
		job.Mode = pdf.ModeCustomPDF
		job.DocumentURL = source.DocumentURL
		job.Fields = source.Fields
	case KindHTMLTemplate:
		job.Mode = pdf.ModeTemplate
		job.LeaseHTML = source.LeaseHTML
		if prior != nil {
			if prior.SignedPDFURL != nil {
				job.BasePDFURL = *prior.SignedPDFURL
			}
			priorSignature := pdf.PriorSignature{}
			if prior.SignatureDataURL != nil {
				priorSignature.SignatureDataURL = *prior.SignatureDataURL
			}
			if prior.SignerName != nil {
				priorSignature.SignerName = *prior.SignerName
			}
			job.PriorSignature = &priorSignature
		}
	}

	return job
}

// completionParams assembles the transactional commit: request flip, lease
// columns, the landlord's follow-up request after a tenant signature, and the
// notification events.
func (s *service) completionParams(ctx context.Context, request persistence.SignatureRequest, lease persistence.Lease, signedAt time.Time, info clientinfo.Info, input SubmitInput, artifacts pdf.Result) (persistence.CompleteSigningParams, error) {
	params := persistence.CompleteSigningParams{
		RequestID: request.RequestID,
		LeaseID:   request.LeaseID,
		SignedAt:  signedAt,
		Signer: persistence.SignerDetails{
			Name:             strings.TrimSpace(input.SignerName),
			Email:            strings.TrimSpace(input.SignerEmail),
			IP:               info.IPAddress,
			UserAgent:        info.UserAgent,
			SignatureDataURL: input.SignatureDataURL,
			InitialsDataURL:  optionalString(input.InitialsDataURL),
		},
		Artifacts: persistence.SignatureArtifacts{
			SignedPDFURL: artifacts.SignedPDFURL,
			AuditLogURL:  artifacts.AuditLogURL,
			DocumentHash: artifacts.DocumentHash,
		},
	}

	switch request.Role {
	case persistence.RoleTenant:
		params.LeaseUpdate = persistence.LeaseSigningUpdate{TenantSignedAt: &signedAt}

		exists, err := s.requests.HasRequestForRole(ctx, request.LeaseID, persistence.RoleLandlord)
		if err != nil {
			return persistence.CompleteSigningParams{}, err
		}
		if !exists {
			tok, err := token.New()
			if err != nil {
				return persistence.CompleteSigningParams{}, err
			}
			expiresAt := time.Now().Add(s.cfg.LinkTTL)
			next := persistence.NewRequestParams{
				RequestID:      uuid.New(),
				LeaseID:        request.LeaseID,
				Token:          tok,
				Role:           persistence.RoleLandlord,
				RecipientName:  lease.LandlordName,
				RecipientEmail: lease.LandlordEmail,
				ExpiresAt:      &expiresAt,
			}
			params.NextRequest = &next

			payload, err := outbox.EventPayload{
				LeaseID:        request.LeaseID,
				RequestID:      next.RequestID,
				PropertyLabel:  lease.PropertyLabel,
				RecipientName:  lease.LandlordName,
				RecipientEmail: lease.LandlordEmail,
				Role:           persistence.RoleLandlord,
				SigningURL:     s.signingURL(tok),
				ExpiresAt:      &expiresAt,
			}.Encode()
			if err != nil {
				return persistence.CompleteSigningParams{}, err
			}
			params.Events = append(params.Events, persistence.NewOutboxEventParams{
				EventID:   uuid.New(),
				EventType: outbox.EventTenantSigned,
				Payload:   payload,
			})
		}

	case persistence.RoleLandlord:
		active := persistence.LeaseStatusActive
		params.LeaseUpdate = persistence.LeaseSigningUpdate{LandlordSignedAt: &signedAt, Status: &active}

		// One executed event per recipient so a failed send never double-mails
		// the other party.
		recipients := []struct {
			name  string
			email string
			role  string
		}{
			{lease.TenantName, lease.TenantEmail, persistence.RoleTenant},
			{lease.LandlordName, lease.LandlordEmail, persistence.RoleLandlord},
		}
		for _, recipient := range recipients {
			payload, err := outbox.EventPayload{
				LeaseID:        request.LeaseID,
				RequestID:      request.RequestID,
				PropertyLabel:  lease.PropertyLabel,
				RecipientName:  recipient.name,
				RecipientEmail: recipient.email,
				Role:           recipient.role,
				SignedPDFURL:   artifacts.SignedPDFURL,
			}.Encode()
			if err != nil {
				return persistence.CompleteSigningParams{}, err
			}
			params.Events = append(params.Events, persistence.NewOutboxEventParams{
				EventID:   uuid.New(),
				EventType: outbox.EventLeaseExecuted,
				Payload:   payload,
			})
		}
	}

	return params, nil
}

// mapCompletionError translates commit failures. Losing the conditional
// update to a concurrent submission strands the just-produced artifacts in
// the store; that is tolerated and logged, never retried.
func (s *service) mapCompletionError(request persistence.SignatureRequest, err error) error {
	switch {
	case errors.Is(err, persistence.ErrRequestAlreadySigned), errors.Is(err, persistence.ErrRequestConflict):
		s.logger.Warn("signing commit lost to a concurrent submission",
			zap.String("lease_id", request.LeaseID.String()),
			zap.String("request_id", request.RequestID.String()),
			zap.Error(err),
		)
		return ErrAlreadySigned
	case errors.Is(err, persistence.ErrLeaseNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func validateSubmit(input SubmitInput) (pdf.SignatureImage, *pdf.SignatureImage, error) {
	fe := validation.FieldErrors{}

	if strings.TrimSpace(input.SignerName) == "" {
		fe.Add("signerName", "signer name is required")
	}
	if !validation.ValidEmail(input.SignerEmail) {
		fe.Add("signerEmail", "a valid signer email is required")
	}
	if !input.Consent {
		fe.Add("consent", "consent is required to sign electronically")
	}

	var signature pdf.SignatureImage
	if strings.TrimSpace(input.SignatureDataURL) == "" {
		fe.Add("signatureDataUrl", "a signature image is required")
	} else {
		png, err := pdf.DecodeSignaturePNG(input.SignatureDataURL)
		if err != nil {
			fe.Add("signatureDataUrl", signatureImageMessage(err))
		} else {
			signature = pdf.SignatureImage{DataURL: input.SignatureDataURL, PNG: png}
		}
	}

	var initials *pdf.SignatureImage
	if strings.TrimSpace(input.InitialsDataURL) != "" {
		png, err := pdf.DecodeSignaturePNG(input.InitialsDataURL)
		if err != nil {
			fe.Add("initialsDataUrl", signatureImageMessage(err))
		} else {
			initials = &pdf.SignatureImage{DataURL: input.InitialsDataURL, PNG: png}
		}
	}

	if len(fe) > 0 {
		return pdf.SignatureImage{}, nil, &validation.Error{Fields: fe}
	}

	return signature, initials, nil
}

func signatureImageMessage(err error) string {
	if errors.Is(err, pdf.ErrSignatureTooLarge) {
		return "encoded image exceeds the 5MB limit"
	}
	return "must be a base64 PNG data URL"
}

func initialValues(entries []InitialValue) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Value) == "" {
			continue
		}
		out[entry.ID] = entry.Value
	}
	return out
}

func leaseDetails(lease persistence.Lease) LeaseDetails {
	return LeaseDetails{
		PropertyLabel:     lease.PropertyLabel,
		LandlordName:      lease.LandlordName,
		TenantName:        lease.TenantName,
		RentAmountCents:   lease.RentAmountCents,
		BillingDayOfMonth: lease.BillingDay,
		StartDate:         lease.StartDate,
		EndDate:           lease.EndDate,
		Status:            lease.Status,
	}
}

func (s *service) signingURL(tok string) string {
	return strings.TrimRight(s.cfg.SigningBaseURL, "/") + "/" + tok
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
