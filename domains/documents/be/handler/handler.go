// Package handler exposes the legal-document endpoints of the internal API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/domains/documents/be/service"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/logging"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/problem"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/validation"
)

const (
	problemTypeValidation = "https://rentflowhq.com/problems/validation-error"
	problemTypeNotFound   = "https://rentflowhq.com/problems/not-found"
	problemTypeConflict   = "https://rentflowhq.com/problems/conflict"
	problemTypeInternal   = "https://rentflowhq.com/problems/internal-error"
)

// maxFieldsBody caps the field-position payload; anything bigger is abuse.
const maxFieldsBody = 1 << 20

type operation string

const (
	opDocumentAttach operation = "documents.attach"
	opDocumentFields operation = "documents.configure_fields"
	opDocumentGet    operation = "documents.get"
)

// Handler serves the legal-document endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New builds the handler.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("documents handler requires a service")
	}
	if logger == nil {
		panic("documents handler requires a logger")
	}

	return &Handler{svc: svc, logger: logger}
}

// Register attaches the document routes to the given router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/{leaseId}/document", h.attach)
	r.Get("/{leaseId}/document", h.get)
	r.Put("/{leaseId}/document/fields", h.configureFields)
}

type attachRequest struct {
	Name    string  `json:"name"`
	FileURL *string `json:"fileUrl"`
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request) {
	id, err := leaseIDParam(r)
	if err != nil {
		h.respondError(w, r, opDocumentAttach, err)
		return
	}

	var body attachRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, opDocumentAttach, invalidBody(err))
		return
	}

	doc, err := h.svc.Attach(r.Context(), id, service.AttachInput{Name: body.Name, FileURL: body.FileURL})
	if err != nil {
		h.respondError(w, r, opDocumentAttach, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) configureFields(w http.ResponseWriter, r *http.Request) {
	id, err := leaseIDParam(r)
	if err != nil {
		h.respondError(w, r, opDocumentFields, err)
		return
	}

	// The payload goes to the service verbatim; fieldset.Parse is the validator.
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFieldsBody))
	if err != nil {
		h.respondError(w, r, opDocumentFields, invalidBody(err))
		return
	}

	doc, err := h.svc.ConfigureFields(r.Context(), id, raw)
	if err != nil {
		h.respondError(w, r, opDocumentFields, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := leaseIDParam(r)
	if err != nil {
		h.respondError(w, r, opDocumentGet, err)
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, opDocumentGet, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
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
			Title:  "Document not found",
			Status: http.StatusNotFound,
			Detail: "No lease or document matches the requested identifier.",
		}
	case errors.Is(err, service.ErrLocked):
		return problem.Details{
			Type:   problemTypeConflict,
			Title:  "Document locked",
			Status: http.StatusConflict,
			Detail: "The document cannot change once a signature has been recorded.",
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

func leaseIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "leaseId"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", validation.NewError("leaseId", "must be a UUID"), err)
	}
	return id, nil
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: %v", validation.NewError("body", "must be a JSON document"), err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
