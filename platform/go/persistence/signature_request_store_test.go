package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSignatureRequestStoreSigningFlow(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping signature request store integration test in short mode")
	}

	ctx := context.Background()
	pool := mustSigningPool(t)

	leaseStore, err := NewLeaseStore(pool)
	require.NoError(t, err)
	requestStore, err := NewSignatureRequestStore(pool)
	require.NoError(t, err)
	outboxStore, err := NewOutboxStore(pool)
	require.NoError(t, err)

	lease := mustCreateLease(t, leaseStore)
	require.Equal(t, LeaseStatusDraft, lease.Status)

	expiry := time.Now().Add(7 * 24 * time.Hour).UTC()
	tenantRequest, err := requestStore.StartSigning(ctx, StartSigningParams{
		LeaseID: lease.LeaseID,
		Request: NewRequestParams{
			RequestID:      uuid.New(),
			LeaseID:        lease.LeaseID,
			Token:          "tok-tenant-0001",
			Role:           RoleTenant,
			RecipientName:  lease.TenantName,
			RecipientEmail: lease.TenantEmail,
			ExpiresAt:      &expiry,
		},
		Events: []NewOutboxEventParams{{
			EventID:   uuid.New(),
			EventType: "lease.signing_started",
			Payload:   json.RawMessage(`{"leaseId":"` + lease.LeaseID.String() + `"}`),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, RequestStatusSent, tenantRequest.Status)
	require.Equal(t, RoleTenant, tenantRequest.Role)

	// The lease left draft, so a second start attempt conflicts.
	_, err = requestStore.StartSigning(ctx, StartSigningParams{
		LeaseID: lease.LeaseID,
		Request: NewRequestParams{
			RequestID:      uuid.New(),
			LeaseID:        lease.LeaseID,
			Token:          "tok-tenant-0002",
			Role:           RoleTenant,
			RecipientName:  lease.TenantName,
			RecipientEmail: lease.TenantEmail,
		},
	})
	require.ErrorIs(t, err, ErrLeaseConflict)

	pending, err := leaseStore.GetLease(ctx, lease.LeaseID)
	require.NoError(t, err)
	require.Equal(t, LeaseStatusPending, pending.Status)

	fetched, err := requestStore.GetRequestByToken(ctx, "tok-tenant-0001")
	require.NoError(t, err)
	require.Equal(t, tenantRequest.RequestID, fetched.RequestID)

	_, err = requestStore.GetRequestByToken(ctx, "tok-nope")
	require.ErrorIs(t, err, ErrRequestNotFound)

	// Tenant signs; the landlord request and the outbox event ride the same commit.
	tenantSignedAt := time.Now().UTC().Truncate(time.Microsecond)
	landlordExpiry := tenantSignedAt.Add(7 * 24 * time.Hour)
	result, err := requestStore.CompleteSigning(ctx, CompleteSigningParams{
		RequestID: tenantRequest.RequestID,
		LeaseID:   lease.LeaseID,
		SignedAt:  tenantSignedAt,
		Signer: SignerDetails{
			Name:             "Jordan Reyes",
			Email:            "jordan.reyes@example.test",
			IP:               "203.0.113.9",
			UserAgent:        "integration-test",
			SignatureDataURL: "data:image/png;base64,aGVsbG8=",
		},
		Artifacts: SignatureArtifacts{
			SignedPDFURL: "https://store.test/leases/x/signed.pdf",
			AuditLogURL:  "https://store.test/leases/x/audit.json",
			DocumentHash: "deadbeef",
		},
		LeaseUpdate: LeaseSigningUpdate{TenantSignedAt: &tenantSignedAt},
		NextRequest: &NewRequestParams{
			RequestID:      uuid.New(),
			LeaseID:        lease.LeaseID,
			Token:          "tok-landlord-0001",
			Role:           RoleLandlord,
			RecipientName:  lease.LandlordName,
			RecipientEmail: lease.LandlordEmail,
			ExpiresAt:      &landlordExpiry,
		},
		Events: []NewOutboxEventParams{{
			EventID:   uuid.New(),
			EventType: "lease.tenant_signed",
			Payload:   json.RawMessage(`{"leaseId":"` + lease.LeaseID.String() + `"}`),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, RequestStatusSigned, result.Request.Status)
	require.NotNil(t, result.Request.SignedAt)
	require.NotNil(t, result.Next)
	require.Equal(t, RoleLandlord, result.Next.Role)
	require.Equal(t, RequestStatusSent, result.Next.Status)

	afterTenant, err := leaseStore.GetLease(ctx, lease.LeaseID)
	require.NoError(t, err)
	require.NotNil(t, afterTenant.TenantSignedAt)
	require.Nil(t, afterTenant.LandlordSignedAt)
	require.Equal(t, LeaseStatusPending, afterTenant.Status)

	// Replaying the tenant transition hits the conditional update and changes nothing.
	_, err = requestStore.CompleteSigning(ctx, CompleteSigningParams{
		RequestID: tenantRequest.RequestID,
		LeaseID:   lease.LeaseID,
		SignedAt:  time.Now().UTC(),
		Signer: SignerDetails{
			Name:             "Jordan Reyes",
			Email:            "jordan.reyes@example.test",
			IP:               "203.0.113.9",
			UserAgent:        "integration-test",
			SignatureDataURL: "data:image/png;base64,aGVsbG8=",
		},
		Artifacts: SignatureArtifacts{
			SignedPDFURL: "https://store.test/other.pdf",
			AuditLogURL:  "https://store.test/other.json",
			DocumentHash: "cafebabe",
		},
		LeaseUpdate: LeaseSigningUpdate{TenantSignedAt: &tenantSignedAt},
	})
	require.ErrorIs(t, err, ErrRequestAlreadySigned)

	unchanged, err := requestStore.GetRequestByToken(ctx, "tok-tenant-0001")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", *unchanged.DocumentHash)

	signedTenant, err := requestStore.GetSignedRequest(ctx, lease.LeaseID, RoleTenant)
	require.NoError(t, err)
	require.Equal(t, tenantRequest.RequestID, signedTenant.RequestID)

	_, err = requestStore.GetSignedRequest(ctx, lease.LeaseID, RoleLandlord)
	require.ErrorIs(t, err, ErrRequestNotFound)

	hasLandlord, err := requestStore.HasRequestForRole(ctx, lease.LeaseID, RoleLandlord)
	require.NoError(t, err)
	require.True(t, hasLandlord)

	// Landlord signs; the lease activates in the same commit.
	landlordSignedAt := time.Now().UTC().Truncate(time.Microsecond)
	activeStatus := LeaseStatusActive
	landlordResult, err := requestStore.CompleteSigning(ctx, CompleteSigningParams{
		RequestID: result.Next.RequestID,
		LeaseID:   lease.LeaseID,
		SignedAt:  landlordSignedAt,
		Signer: SignerDetails{
			Name:             "Pat Holloway",
			Email:            "pat@holloway-props.test",
			IP:               "198.51.100.4",
			UserAgent:        "integration-test",
			SignatureDataURL: "data:image/png;base64,aGVsbG8=",
		},
		Artifacts: SignatureArtifacts{
			SignedPDFURL: "https://store.test/leases/x/final.pdf",
			AuditLogURL:  "https://store.test/leases/x/final-audit.json",
			DocumentHash: "feedface",
		},
		LeaseUpdate: LeaseSigningUpdate{
			LandlordSignedAt: &landlordSignedAt,
			Status:           &activeStatus,
		},
		Events: []NewOutboxEventParams{{
			EventID:   uuid.New(),
			EventType: "lease.executed",
			Payload:   json.RawMessage(`{"leaseId":"` + lease.LeaseID.String() + `"}`),
		}},
	})
	require.NoError(t, err)
	require.Nil(t, landlordResult.Next)

	activated, err := leaseStore.GetLease(ctx, lease.LeaseID)
	require.NoError(t, err)
	require.Equal(t, LeaseStatusActive, activated.Status)
	require.NotNil(t, activated.LandlordSignedAt)

	trail, err := requestStore.ListRequestsByLease(ctx, lease.LeaseID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, RoleTenant, trail[0].Role)
	require.Equal(t, RoleLandlord, trail[1].Role)

	pendingEvents, err := outboxStore.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, pendingEvents)
}

func TestSignatureRequestStoreRejectsDuplicateToken(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping signature request store integration test in short mode")
	}

	ctx := context.Background()
	pool := mustSigningPool(t)

	leaseStore, err := NewLeaseStore(pool)
	require.NoError(t, err)
	requestStore, err := NewSignatureRequestStore(pool)
	require.NoError(t, err)

	first := mustCreateLease(t, leaseStore)
	second := mustCreateLease(t, leaseStore)

	_, err = requestStore.StartSigning(ctx, StartSigningParams{
		LeaseID: first.LeaseID,
		Request: NewRequestParams{
			RequestID:      uuid.New(),
			LeaseID:        first.LeaseID,
			Token:          "tok-shared",
			Role:           RoleTenant,
			RecipientName:  first.TenantName,
			RecipientEmail: first.TenantEmail,
		},
	})
	require.NoError(t, err)

	_, err = requestStore.StartSigning(ctx, StartSigningParams{
		LeaseID: second.LeaseID,
		Request: NewRequestParams{
			RequestID:      uuid.New(),
			LeaseID:        second.LeaseID,
			Token:          "tok-shared",
			Role:           RoleTenant,
			RecipientName:  second.TenantName,
			RecipientEmail: second.TenantEmail,
		},
	})
	require.ErrorIs(t, err, ErrRequestConflict)

	// The failed transaction must not have moved the second lease out of draft.
	recheck, err := leaseStore.GetLease(ctx, second.LeaseID)
	require.NoError(t, err)
	require.Equal(t, LeaseStatusDraft, recheck.Status)
}
