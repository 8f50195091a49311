// Package handler exposes the public signing endpoints. Routes are reached by
// capability token only; there is no session or account behind them.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/domains/signing/be/service"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/logging"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/problem"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/validation"
)

const (
	problemTypeValidation = "https://rentflowhq.com/problems/validation-error"
	problemTypeNotFound   = "https://rentflowhq.com/problems/not-found"
	problemTypeExpired    = "https://rentflowhq.com/problems/link-expired"
	problemTypeOrdering   = "https://rentflowhq.com/problems/ordering-violation"
	problemTypeSigned     = "https://rentflowhq.com/problems/already-signed"
	problemTypeProcessing = "https://rentflowhq.com/problems/processing-failure"
	problemTypeInternal   = "https://rentflowhq.com/problems/internal-error"
)

// Stable machine-readable codes carried beside the problem type.
const (
	codeTenantNotSigned = "TENANT_NOT_SIGNED"
	codeAlreadySigned   = "ALREADY_SIGNED"
	codeLinkExpired     = "LINK_EXPIRED"
)

type operation string

const (
	opSignGet    operation = "sign.get"
	opSignSubmit operation = "sign.submit"
)

// Handler serves the token-addressed signing endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New builds the handler.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("signing handler requires a service")
	}
	if logger == nil {
		panic("signing handler requires a logger")
	}

	return &Handler{svc: svc, logger: logger}
}

// Register attaches the signing routes to the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/{token}", h.get)
	r.Post("/{token}", h.submit)
}

// signingPageResponse is the discriminated page payload. The custom-PDF shape
// carries the document, its field positions, and the lease summary; the
// template shape carries only the rendered markup.
type signingPageResponse struct {
	LeaseID          uuid.UUID             `json:"leaseId"`
	Role             string                `json:"role"`
	RecipientName    string                `json:"recipientName"`
	RecipientEmail   string                `json:"recipientEmail"`
	Status           string                `json:"status"`
	SignedPDFURL     *string               `json:"signedPdfUrl,omitempty"`
	DocumentType     string                `json:"documentType"`
	DocumentName     string                `json:"documentName,omitempty"`
	DocumentURL      string                `json:"documentUrl,omitempty"`
	SignatureFields  []fieldset.Field      `json:"signatureFields,omitempty"`
	UseDefaultFields *bool                 `json:"useDefaultFields,omitempty"`
	LeaseHTML        string                `json:"leaseHtml"`
	LeaseDetails     *service.LeaseDetails `json:"leaseDetails,omitempty"`
}

type submitRequest struct {
	SignatureDataURL string         `json:"signatureDataUrl"`
	InitialsDataURL  string         `json:"initialsDataUrl"`
	SignerName       string         `json:"signerName"`
	SignerEmail      string         `json:"signerEmail"`
	Consent          bool           `json:"consent"`
	InitialsData     []initialsItem `json:"initialsData"`
}

type initialsItem struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.respondError(w, r, opSignGet, err)
		return
	}

	writeJSON(w, http.StatusOK, pageResponse(page))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, opSignSubmit, invalidBody(err))
		return
	}

	input := service.SubmitInput{
		SignatureDataURL: body.SignatureDataURL,
		InitialsDataURL:  body.InitialsDataURL,
		SignerName:       body.SignerName,
		SignerEmail:      body.SignerEmail,
		Consent:          body.Consent,
	}
	for _, item := range body.InitialsData {
		input.InitialsData = append(input.InitialsData, service.InitialValue{ID: item.ID, Value: item.Value})
	}

	result, err := h.svc.Submit(r.Context(), chi.URLParam(r, "token"), input)
	if err != nil {
		h.respondError(w, r, opSignSubmit, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func pageResponse(page service.SigningPage) signingPageResponse {
	resp := signingPageResponse{
		LeaseID:        page.LeaseID,
		Role:           page.Role,
		RecipientName:  page.RecipientName,
		RecipientEmail: page.RecipientEmail,
		Status:         page.Status,
		SignedPDFURL:   page.SignedPDFURL,
		DocumentType:   string(page.Source.Kind),
		LeaseHTML:      page.Source.LeaseHTML,
	}

	if page.Source.Kind == service.KindCustomPDF {
		details := page.LeaseDetails
		useDefaults := page.Source.UseDefaultFields
		resp.DocumentName = page.Source.DocumentName
		resp.DocumentURL = page.Source.DocumentURL
		resp.SignatureFields = page.Source.Fields
		resp.UseDefaultFields = &useDefaults
		resp.LeaseDetails = &details
	}

	return resp
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	problem.Write(w, h.problemForError(r.Context(), err, op))
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) problem.Details {
	details := classifyError(err)

	logger := h.loggerFrom(ctx)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", details.Status),
		zap.Error(err),
	}
	switch {
	case details.Status >= http.StatusInternalServerError:
		logger.Error("request failed", fields...)
	case details.Status == http.StatusNotFound:
		logger.Info("request rejected", fields...)
	default:
		logger.Warn("request rejected", fields...)
	}

	return details
}

func classifyError(err error) problem.Details {
	var validationErr *validation.Error
	var processingErr *service.ProcessingError
	switch {
	case errors.As(err, &validationErr):
		return problem.Details{
			Type:   problemTypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "One or more fields failed validation.",
			Errors: fieldErrorsBody(validationErr.Fields),
		}
	case errors.Is(err, service.ErrNotFound):
		return problem.Details{
			Type:   problemTypeNotFound,
			Title:  "Signing link not found",
			Status: http.StatusNotFound,
			Detail: "No signature request matches this link.",
		}
	case errors.Is(err, service.ErrExpired):
		return problem.Details{
			Type:   problemTypeExpired,
			Title:  "Signing link expired",
			Status: http.StatusGone,
			Detail: "This signing link is no longer active.",
			Code:   codeLinkExpired,
		}
	case errors.Is(err, service.ErrAlreadySigned):
		return problem.Details{
			Type:   problemTypeSigned,
			Title:  "Already signed",
			Status: http.StatusBadRequest,
			Detail: "This signature request has already been completed.",
			Code:   codeAlreadySigned,
		}
	case errors.Is(err, service.ErrTenantNotSigned):
		return problem.Details{
			Type:   problemTypeOrdering,
			Title:  "Tenant signature required",
			Status: http.StatusBadRequest,
			Detail: "The landlord can sign only after the tenant has signed.",
			Code:   codeTenantNotSigned,
		}
	case errors.As(err, &processingErr):
		// The engine message goes through so operators can tell a fetch
		// failure from a render failure without the logs.
		return problem.Details{
			Type:   problemTypeProcessing,
			Title:  "Document processing failed",
			Status: http.StatusInternalServerError,
			Detail: processingErr.Error(),
		}
	default:
		return problem.Details{
			Type:   problemTypeInternal,
			Title:  "Internal error",
			Status: http.StatusInternalServerError,
			Detail: "The request could not be processed.",
		}
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := logging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}

func fieldErrorsBody(fields validation.FieldErrors) map[string][]string {
	out := make(map[string][]string, len(fields))
	for field, messages := range fields {
		out[field] = append([]string(nil), messages...)
	}
	return out
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: %v", validation.NewError("body", "must be a JSON document"), err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
