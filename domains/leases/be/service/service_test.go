package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/outbox"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/validation"
)

type mockLeaseStore struct {
	createFn func(ctx context.Context, params persistence.CreateLeaseParams) (persistence.Lease, error)
	getFn    func(ctx context.Context, id uuid.UUID) (persistence.Lease, error)
	listFn   func(ctx context.Context, params persistence.ListLeasesParams) (persistence.ListLeasesResult, error)
}

func (m *mockLeaseStore) CreateLease(ctx context.Context, params persistence.CreateLeaseParams) (persistence.Lease, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, params)
}

func (m *mockLeaseStore) GetLease(ctx context.Context, id uuid.UUID) (persistence.Lease, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockLeaseStore) ListLeases(ctx context.Context, params persistence.ListLeasesParams) (persistence.ListLeasesResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, params)
}

type mockRequestStore struct {
	startFn func(ctx context.Context, params persistence.StartSigningParams) (persistence.SignatureRequest, error)
	listFn  func(ctx context.Context, leaseID uuid.UUID) ([]persistence.SignatureRequest, error)
}

func (m *mockRequestStore) StartSigning(ctx context.Context, params persistence.StartSigningParams) (persistence.SignatureRequest, error) {
	if m.startFn == nil {
		panic("startFn not configured")
	}
	return m.startFn(ctx, params)
}

func (m *mockRequestStore) ListRequestsByLease(ctx context.Context, leaseID uuid.UUID) ([]persistence.SignatureRequest, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, leaseID)
}

var testConfig = Config{
	SigningBaseURL: "https://app.rentflowhq.test/sign",
	LinkTTL:        7 * 24 * time.Hour,
}

func validCreateInput() CreateInput {
	return CreateInput{
		PropertyLabel:     "128 Alder Way, Unit 2B",
		LandlordName:      "Pat Holloway",
		LandlordEmail:     "pat@holloway-props.test",
		TenantName:        "Jordan Reyes",
		TenantEmail:       "jordan.reyes@example.test",
		RentAmountCents:   185000,
		BillingDayOfMonth: 1,
		StartDate:         time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
}

func storedLease(id uuid.UUID) persistence.Lease {
	return persistence.Lease{
		LeaseID:         id,
		PropertyLabel:   "128 Alder Way, Unit 2B",
		LandlordName:    "Pat Holloway",
		LandlordEmail:   "pat@holloway-props.test",
		TenantName:      "Jordan Reyes",
		TenantEmail:     "jordan.reyes@example.test",
		RentAmountCents: 185000,
		BillingDay:      1,
		StartDate:       time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		Status:          persistence.LeaseStatusDraft,
		CreatedAt:       time.Now().Add(-time.Hour),
		UpdatedAt:       time.Now().Add(-time.Hour),
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"missing property label", func(in *CreateInput) { in.PropertyLabel = "  " }, "propertyLabel"},
		{"missing landlord name", func(in *CreateInput) { in.LandlordName = "" }, "landlordName"},
		{"bad landlord email", func(in *CreateInput) { in.LandlordEmail = "not-an-email" }, "landlordEmail"},
		{"missing tenant name", func(in *CreateInput) { in.TenantName = "" }, "tenantName"},
		{"bad tenant email", func(in *CreateInput) { in.TenantEmail = "@example.test" }, "tenantEmail"},
		{"zero rent", func(in *CreateInput) { in.RentAmountCents = 0 }, "rentAmountCents"},
		{"billing day too low", func(in *CreateInput) { in.BillingDayOfMonth = 0 }, "billingDayOfMonth"},
		{"billing day too high", func(in *CreateInput) { in.BillingDayOfMonth = 29 }, "billingDayOfMonth"},
		{"missing start date", func(in *CreateInput) { in.StartDate = time.Time{} }, "startDate"},
		{"end before start", func(in *CreateInput) {
			end := in.StartDate.AddDate(0, -1, 0)
			in.EndDate = &end
		}, "endDate"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// No store functions configured: a store call would panic the test.
			svc := New(&mockLeaseStore{}, &mockRequestStore{}, testConfig)

			input := validCreateInput()
			tc.mutate(&input)

			_, err := svc.Create(context.Background(), input)

			var validationErr *validation.Error
			require.ErrorAs(t, err, &validationErr)
			require.Contains(t, validationErr.Fields, tc.field)
		})
	}
}

func TestCreatePersistsAndMaps(t *testing.T) {
	t.Parallel()

	var captured persistence.CreateLeaseParams
	leases := &mockLeaseStore{
		createFn: func(_ context.Context, params persistence.CreateLeaseParams) (persistence.Lease, error) {
			captured = params
			return storedLease(params.LeaseID), nil
		},
	}

	svc := New(leases, &mockRequestStore{}, testConfig)

	lease, err := svc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, captured.LeaseID)
	require.Equal(t, "128 Alder Way, Unit 2B", captured.PropertyLabel)
	require.Equal(t, int64(185000), captured.RentAmountCents)
	require.Equal(t, 1, captured.BillingDay)

	require.Equal(t, captured.LeaseID, lease.LeaseID)
	require.Equal(t, persistence.LeaseStatusDraft, lease.Status)
	require.Equal(t, ProgressNotStarted, lease.SigningProgress)
}

func TestListClampsPagination(t *testing.T) {
	t.Parallel()

	var captured persistence.ListLeasesParams
	leases := &mockLeaseStore{
		listFn: func(_ context.Context, params persistence.ListLeasesParams) (persistence.ListLeasesResult, error) {
			captured = params
			return persistence.ListLeasesResult{Leases: []persistence.Lease{}, TotalItems: 205}, nil
		},
	}

	svc := New(leases, &mockRequestStore{}, testConfig)

	result, err := svc.List(context.Background(), ListOptions{Page: -4, PageSize: 5000})
	require.NoError(t, err)

	require.Equal(t, 1, captured.Page)
	require.Equal(t, maxPageSize, captured.PageSize)
	require.Equal(t, 1, result.Page)
	require.Equal(t, maxPageSize, result.PageSize)
	require.Equal(t, 205, result.TotalItems)
	require.Equal(t, 3, result.TotalPages)
}

func TestListRejectsUnknownSortField(t *testing.T) {
	t.Parallel()

	svc := New(&mockLeaseStore{}, &mockRequestStore{}, testConfig)

	sort := "-createdAt,rentAmount"
	_, err := svc.List(context.Background(), ListOptions{Sort: &sort})

	var validationErr *validation.Error
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "sort")
}

func TestListRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc := New(&mockLeaseStore{}, &mockRequestStore{}, testConfig)

	status := "cancelled"
	_, err := svc.List(context.Background(), ListOptions{Status: &status})

	var validationErr *validation.Error
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "status")
}

func TestGetMapsNotFound(t *testing.T) {
	t.Parallel()

	leases := &mockLeaseStore{
		getFn: func(context.Context, uuid.UUID) (persistence.Lease, error) {
			return persistence.Lease{}, persistence.ErrLeaseNotFound
		},
	}

	svc := New(leases, &mockRequestStore{}, testConfig)

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStartSigningCreatesTenantRequestAndInvite(t *testing.T) {
	t.Parallel()

	leaseID := uuid.New()
	leases := &mockLeaseStore{
		getFn: func(_ context.Context, id uuid.UUID) (persistence.Lease, error) {
			require.Equal(t, leaseID, id)
			return storedLease(leaseID), nil
		},
	}

	var captured persistence.StartSigningParams
	requests := &mockRequestStore{
		startFn: func(_ context.Context, params persistence.StartSigningParams) (persistence.SignatureRequest, error) {
			captured = params
			now := time.Now()
			return persistence.SignatureRequest{
				RequestID:      params.Request.RequestID,
				LeaseID:        params.LeaseID,
				Token:          params.Request.Token,
				Role:           params.Request.Role,
				Status:         persistence.RequestStatusSent,
				RecipientName:  params.Request.RecipientName,
				RecipientEmail: params.Request.RecipientEmail,
				ExpiresAt:      params.Request.ExpiresAt,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, nil
		},
	}

	svc := New(leases, requests, testConfig)

	request, err := svc.StartSigning(context.Background(), leaseID)
	require.NoError(t, err)

	require.Equal(t, leaseID, captured.LeaseID)
	require.Equal(t, persistence.RoleTenant, captured.Request.Role)
	require.Equal(t, "Jordan Reyes", captured.Request.RecipientName)
	require.Equal(t, "jordan.reyes@example.test", captured.Request.RecipientEmail)
	require.Len(t, captured.Request.Token, 43)
	require.NotNil(t, captured.Request.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(testConfig.LinkTTL), *captured.Request.ExpiresAt, time.Minute)

	require.Len(t, captured.Events, 1)
	require.Equal(t, outbox.EventSigningStarted, captured.Events[0].EventType)

	payload, err := outbox.DecodePayload(captured.Events[0].Payload)
	require.NoError(t, err)
	require.Equal(t, leaseID, payload.LeaseID)
	require.Equal(t, "jordan.reyes@example.test", payload.RecipientEmail)
	require.Contains(t, payload.SigningURL, captured.Request.Token)

	require.Equal(t, persistence.RequestStatusSent, request.Status)
	require.Equal(t, "https://app.rentflowhq.test/sign/"+request.Token, request.SigningURL)
}

func TestStartSigningMapsLeaseConflict(t *testing.T) {
	t.Parallel()

	leaseID := uuid.New()
	leases := &mockLeaseStore{
		getFn: func(context.Context, uuid.UUID) (persistence.Lease, error) {
			lease := storedLease(leaseID)
			lease.Status = persistence.LeaseStatusPending
			return lease, nil
		},
	}
	requests := &mockRequestStore{
		startFn: func(context.Context, persistence.StartSigningParams) (persistence.SignatureRequest, error) {
			return persistence.SignatureRequest{}, persistence.ErrLeaseConflict
		},
	}

	svc := New(leases, requests, testConfig)

	_, err := svc.StartSigning(context.Background(), leaseID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestRequestsReturnsTrailForLease(t *testing.T) {
	t.Parallel()

	leaseID := uuid.New()
	signedAt := time.Now().Add(-time.Hour)
	signerName := "Jordan Reyes"
	hash := "0a1b2c"

	leases := &mockLeaseStore{
		getFn: func(context.Context, uuid.UUID) (persistence.Lease, error) {
			return storedLease(leaseID), nil
		},
	}
	requests := &mockRequestStore{
		listFn: func(_ context.Context, id uuid.UUID) ([]persistence.SignatureRequest, error) {
			require.Equal(t, leaseID, id)
			return []persistence.SignatureRequest{
				{
					RequestID:    uuid.New(),
					LeaseID:      leaseID,
					Token:        "tenant-token",
					Role:         persistence.RoleTenant,
					Status:       persistence.RequestStatusSigned,
					SignerName:   &signerName,
					SignedAt:     &signedAt,
					DocumentHash: &hash,
				},
				{
					RequestID: uuid.New(),
					LeaseID:   leaseID,
					Token:     "landlord-token",
					Role:      persistence.RoleLandlord,
					Status:    persistence.RequestStatusSent,
				},
			}, nil
		},
	}

	svc := New(leases, requests, testConfig)

	trail, err := svc.Requests(context.Background(), leaseID)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	require.Equal(t, persistence.RequestStatusSigned, trail[0].Status)
	require.Equal(t, &hash, trail[0].DocumentHash)
	require.Equal(t, "https://app.rentflowhq.test/sign/tenant-token", trail[0].SigningURL)
	require.Equal(t, persistence.RoleLandlord, trail[1].Role)
}

func TestSigningProgressDerivation(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name     string
		mutate   func(*persistence.Lease)
		expected string
	}{
		{"draft", func(l *persistence.Lease) {}, ProgressNotStarted},
		{"pending unsigned", func(l *persistence.Lease) {
			l.Status = persistence.LeaseStatusPending
		}, ProgressAwaitingTenant},
		{"tenant signed", func(l *persistence.Lease) {
			l.Status = persistence.LeaseStatusPending
			l.TenantSignedAt = &now
		}, ProgressAwaitingLandlord},
		{"fully executed", func(l *persistence.Lease) {
			l.Status = persistence.LeaseStatusActive
			l.TenantSignedAt = &now
			l.LandlordSignedAt = &now
		}, ProgressCompleted},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			lease := storedLease(uuid.New())
			tc.mutate(&lease)
			require.Equal(t, tc.expected, signingProgress(lease))
		})
	}
}
