package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLeaseAndDocumentStores(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping lease store integration test in short mode")
	}

	ctx := context.Background()
	pool := mustSigningPool(t)

	leaseStore, err := NewLeaseStore(pool)
	require.NoError(t, err)
	documentStore, err := NewDocumentStore(pool)
	require.NoError(t, err)

	lease := mustCreateLease(t, leaseStore)
	require.Equal(t, LeaseStatusDraft, lease.Status)
	require.Equal(t, int64(185000), lease.RentAmountCents)

	_, err = leaseStore.GetLease(ctx, uuid.New())
	require.ErrorIs(t, err, ErrLeaseNotFound)

	second := mustCreateLease(t, leaseStore)

	listed, err := leaseStore.ListLeases(ctx, ListLeasesParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, listed.TotalItems)
	require.Len(t, listed.Leases, 2)

	draft := LeaseStatusDraft
	filtered, err := leaseStore.ListLeases(ctx, ListLeasesParams{Status: &draft})
	require.NoError(t, err)
	require.Equal(t, 2, filtered.TotalItems)

	badSort := "unknownField"
	_, err = leaseStore.ListLeases(ctx, ListLeasesParams{Sort: &badSort})
	require.Error(t, err)

	// No document attached yet.
	_, err = documentStore.GetDocumentByLease(ctx, lease.LeaseID)
	require.ErrorIs(t, err, ErrDocumentNotFound)

	fileURL := "https://files.test/uploads/lease.pdf"
	doc, err := documentStore.UpsertDocument(ctx, UpsertDocumentParams{
		DocumentID: uuid.New(),
		LeaseID:    lease.LeaseID,
		Name:       "Signed Lease Agreement.pdf",
		FileURL:    &fileURL,
	})
	require.NoError(t, err)
	require.False(t, doc.FieldsConfigured)
	require.Nil(t, doc.SignatureFields)

	fields := json.RawMessage(`{"version":1,"fields":[{"id":"f1","type":"signature","role":"tenant","page":1,"x":72,"y":540,"width":180,"height":48,"required":true}]}`)
	configured, err := documentStore.UpdateDocumentFields(ctx, lease.LeaseID, fields, true)
	require.NoError(t, err)
	require.True(t, configured.FieldsConfigured)
	require.JSONEq(t, string(fields), string(configured.SignatureFields))

	// Replacing the file resets the configured fields.
	replacementURL := "https://files.test/uploads/lease-v2.pdf"
	replaced, err := documentStore.UpsertDocument(ctx, UpsertDocumentParams{
		DocumentID: uuid.New(),
		LeaseID:    lease.LeaseID,
		Name:       "Lease Agreement v2.pdf",
		FileURL:    &replacementURL,
	})
	require.NoError(t, err)
	require.False(t, replaced.FieldsConfigured)
	require.Nil(t, replaced.SignatureFields)
	require.Equal(t, doc.DocumentID, replaced.DocumentID, "upsert keeps the original row")

	_, err = documentStore.UpdateDocumentFields(ctx, second.LeaseID, fields, true)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
