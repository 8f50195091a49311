package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/domains/documents/be/service"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
)

type mockService struct {
	attachFn          func(ctx context.Context, leaseID uuid.UUID, input service.AttachInput) (service.Document, error)
	configureFieldsFn func(ctx context.Context, leaseID uuid.UUID, raw json.RawMessage) (service.Document, error)
	getFn             func(ctx context.Context, leaseID uuid.UUID) (service.Document, error)
}

func (m *mockService) Attach(ctx context.Context, leaseID uuid.UUID, input service.AttachInput) (service.Document, error) {
	if m.attachFn == nil {
		panic("attachFn not configured")
	}
	return m.attachFn(ctx, leaseID, input)
}

func (m *mockService) ConfigureFields(ctx context.Context, leaseID uuid.UUID, raw json.RawMessage) (service.Document, error) {
	if m.configureFieldsFn == nil {
		panic("configureFieldsFn not configured")
	}
	return m.configureFieldsFn(ctx, leaseID, raw)
}

func (m *mockService) Get(ctx context.Context, leaseID uuid.UUID) (service.Document, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, leaseID)
}

func newTestRouter(svc service.Service) chi.Router {
	h := New(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1/leases", h.Register)
	return r
}

func TestAttachDocument(t *testing.T) {
	t.Parallel()

	leaseID := uuid.New()
	fileURL := "https://files.rentflowhq.test/uploads/lease.pdf"
	svc := &mockService{
		attachFn: func(_ context.Context, id uuid.UUID, input service.AttachInput) (service.Document, error) {
			require.Equal(t, leaseID, id)
			require.Equal(t, "Uploaded lease", input.Name)
			require.NotNil(t, input.FileURL)
			return service.Document{
				DocumentID:      uuid.New(),
				LeaseID:         id,
				Name:            input.Name,
				FileURL:         input.FileURL,
				SignatureFields: []fieldset.Field{},
			}, nil
		},
	}

	body := `{"name": "Uploaded lease", "fileUrl": "` + fileURL + `"}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/leases/"+leaseID.String()+"/document", strings.NewReader(body))
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var doc service.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "Uploaded lease", doc.Name)
}

func TestAttachLockedReturnsConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		attachFn: func(context.Context, uuid.UUID, service.AttachInput) (service.Document, error) {
			return service.Document{}, service.ErrLocked
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/leases/"+uuid.NewString()+"/document", strings.NewReader(`{"name":"x"}`))
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var details map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.Equal(t, problemTypeConflict, details["type"])
}

func TestConfigureFieldsPassesRawPayload(t *testing.T) {
	t.Parallel()

	raw := `{"version":1,"fields":[{"id":"f1","type":"signature","role":"tenant","page":1,"x":1,"y":2,"width":10,"height":5}]}`
	svc := &mockService{
		configureFieldsFn: func(_ context.Context, _ uuid.UUID, payload json.RawMessage) (service.Document, error) {
			require.JSONEq(t, raw, string(payload))
			return service.Document{IsFieldsConfigured: true, SignatureFields: []fieldset.Field{{ID: "f1"}}}, nil
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/leases/"+uuid.NewString()+"/document/fields", strings.NewReader(raw))
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var doc service.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.True(t, doc.IsFieldsConfigured)
}

func TestGetDocumentNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		getFn: func(context.Context, uuid.UUID) (service.Document, error) {
			return service.Document{}, service.ErrNotFound
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leases/"+uuid.NewString()+"/document", nil)
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentRoutesRejectMalformedLeaseID(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leases/nope/document", nil)
	newTestRouter(&mockService{}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
