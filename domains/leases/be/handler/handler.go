// Package handler exposes the lease administration endpoints of the internal API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/domains/leases/be/service"
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

type operation string

const (
	opLeasesCreate  operation = "leases.create"
	opLeasesList    operation = "leases.list"
	opLeasesGet     operation = "leases.get"
	opStartSigning  operation = "leases.start_signing"
	opLeaseRequests operation = "leases.requests"
)

// Handler serves the lease administration endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New builds the handler.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("leases handler requires a service")
	}
	if logger == nil {
		panic("leases handler requires a logger")
	}

	return &Handler{svc: svc, logger: logger}
}

// Register attaches the lease routes to the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{leaseId}", h.get)
	r.Post("/{leaseId}/signing", h.startSigning)
	r.Get("/{leaseId}/requests", h.requests)
}

type createLeaseRequest struct {
	PropertyLabel     string  `json:"propertyLabel"`
	LandlordName      string  `json:"landlordName"`
	LandlordEmail     string  `json:"landlordEmail"`
	TenantName        string  `json:"tenantName"`
	TenantEmail       string  `json:"tenantEmail"`
	RentAmountCents   int64   `json:"rentAmountCents"`
	BillingDayOfMonth int     `json:"billingDayOfMonth"`
	StartDate         string  `json:"startDate"`
	EndDate           *string `json:"endDate"`
}

type requestsResponse struct {
	Requests []service.SignatureRequest `json:"requests"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, opLeasesCreate, invalidBody(err))
		return
	}

	fe := validation.FieldErrors{}
	var start time.Time
	if body.StartDate != "" {
		parsed, err := parseDate(body.StartDate)
		if err != nil {
			fe.Add("startDate", "must be a calendar date (YYYY-MM-DD)")
		} else {
			start = parsed
		}
	}
	var end *time.Time
	if body.EndDate != nil && *body.EndDate != "" {
		parsed, err := parseDate(*body.EndDate)
		if err != nil {
			fe.Add("endDate", "must be a calendar date (YYYY-MM-DD)")
		} else {
			end = &parsed
		}
	}
	if len(fe) > 0 {
		h.respondError(w, r, opLeasesCreate, &validation.Error{Fields: fe})
		return
	}

	lease, err := h.svc.Create(r.Context(), service.CreateInput{
		PropertyLabel:     body.PropertyLabel,
		LandlordName:      body.LandlordName,
		LandlordEmail:     body.LandlordEmail,
		TenantName:        body.TenantName,
		TenantEmail:       body.TenantEmail,
		RentAmountCents:   body.RentAmountCents,
		BillingDayOfMonth: body.BillingDayOfMonth,
		StartDate:         start,
		EndDate:           end,
	})
	if err != nil {
		h.respondError(w, r, opLeasesCreate, err)
		return
	}

	writeJSON(w, http.StatusCreated, lease)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := service.ListOptions{}
	fe := validation.FieldErrors{}

	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fe.Add("page", "must be an integer")
		} else {
			opts.Page = n
		}
	}
	if raw := query.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fe.Add("pageSize", "must be an integer")
		} else {
			opts.PageSize = n
		}
	}
	if raw := query.Get("status"); raw != "" {
		opts.Status = &raw
	}
	if raw := query.Get("sort"); raw != "" {
		opts.Sort = &raw
	}

	if len(fe) > 0 {
		h.respondError(w, r, opLeasesList, &validation.Error{Fields: fe})
		return
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.respondError(w, r, opLeasesList, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := leaseIDParam(r)
	if err != nil {
		h.respondError(w, r, opLeasesGet, err)
		return
	}

	lease, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, opLeasesGet, err)
		return
	}

	writeJSON(w, http.StatusOK, lease)
}

func (h *Handler) startSigning(w http.ResponseWriter, r *http.Request) {
	id, err := leaseIDParam(r)
	if err != nil {
		h.respondError(w, r, opStartSigning, err)
		return
	}

	request, err := h.svc.StartSigning(r.Context(), id)
	if err != nil {
		h.respondError(w, r, opStartSigning, err)
		return
	}

	writeJSON(w, http.StatusCreated, request)
}

func (h *Handler) requests(w http.ResponseWriter, r *http.Request) {
	id, err := leaseIDParam(r)
	if err != nil {
		h.respondError(w, r, opLeaseRequests, err)
		return
	}

	trail, err := h.svc.Requests(r.Context(), id)
	if err != nil {
		h.respondError(w, r, opLeaseRequests, err)
		return
	}

	writeJSON(w, http.StatusOK, requestsResponse{Requests: trail})
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
			Title:  "Lease not found",
			Status: http.StatusNotFound,
			Detail: "No lease matches the requested identifier.",
		}
	case errors.Is(err, service.ErrConflict):
		return problem.Details{
			Type:   problemTypeConflict,
			Title:  "Lease state conflict",
			Status: http.StatusConflict,
			Detail: "The lease state does not allow this operation.",
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

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
