package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
)

type fakeConverter struct {
	calls      int
	lastMarkup string
	err        error
}

func (c *fakeConverter) Convert(_ context.Context, markup string) ([]byte, error) {
	c.calls++
	c.lastMarkup = markup
	if c.err != nil {
		return nil, c.err
	}
	return []byte("converted-pdf"), nil
}

type fakeStamper struct {
	calls [][]Placement
	err   error
}

func (s *fakeStamper) Stamp(_ context.Context, doc []byte, placements []Placement) ([]byte, error) {
	s.calls = append(s.calls, append([]Placement(nil), placements...))
	if s.err != nil {
		return nil, s.err
	}
	out := append([]byte(nil), doc...)
	for _, p := range placements {
		out = append(out, []byte("|"+p.Field.ID)...)
	}
	return out, nil
}

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	url := "mem://" + key
	f.objects[url] = append([]byte(nil), data...)
	return url, nil
}

func (f *fakeStore) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.objects[url]
	if !ok {
		return nil, fmt.Errorf("no object at %s", url)
	}
	return data, nil
}

func (f *fakeStore) Check(context.Context) error { return nil }

func newTestEngine() (*Engine, *fakeConverter, *fakeStamper, *fakeStore) {
	conv := &fakeConverter{}
	stamper := &fakeStamper{}
	store := newFakeStore()
	return NewEngine(conv, stamper, store, zap.NewNop()), conv, stamper, store
}

var (
	testEngineLeaseID   = uuid.MustParse("6f1a4f6e-0c1d-4d2b-9a64-3f0a4a1c9e01")
	testEngineRequestID = uuid.MustParse("9b7c2d10-5a3e-4f8b-8c21-7d9e0b2f4a02")
)

func testJob(role string) Job {
	signedAt := time.Date(2026, 6, 2, 15, 4, 5, 0, time.UTC)
	return Job{
		LeaseID:   testEngineLeaseID,
		RequestID: testEngineRequestID,
		Role:      role,
		Mode:      ModeTemplate,
		LeaseHTML: RenderLeaseHTML(testLeaseParams()),
		Signature: SignatureImage{DataURL: "data:image/png;base64,AAAA", PNG: []byte{1, 2, 3}},
		SignedAt:  signedAt,
		Audit: AuditRecord{
			Token:           "tok-engine",
			LeaseID:         testEngineLeaseID,
			RequestID:       testEngineRequestID,
			Role:            role,
			SignerName:      "Jordan Reyes",
			SignerEmail:     "jordan@example.com",
			SignerIP:        "203.0.113.7",
			SignerUserAgent: "Mozilla/5.0",
			ConsentGiven:    true,
			SignedAt:        signedAt,
		},
	}
}

func TestEngineTemplateFirstSigner(t *testing.T) {
	t.Parallel()

	eng, conv, stamper, store := newTestEngine()
	job := testJob(fieldset.RoleTenant)
	job.InitialValues = map[string]string{"init1": "JR"}

	res, err := eng.Execute(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, 1, conv.calls)
	require.NotContains(t, conv.lastMarkup, "/sig_")
	require.NotContains(t, conv.lastMarkup, "/init")
	require.Contains(t, conv.lastMarkup, `class="signature-image"`)
	require.Contains(t, conv.lastMarkup, "Awaiting landlord signature")
	require.Contains(t, conv.lastMarkup, `<span class="initials-typed">JR</span>`)

	require.Len(t, stamper.calls, 1)
	require.Len(t, stamper.calls[0], 1)
	execution := stamper.calls[0][0]
	require.Equal(t, "execution-line", execution.Field.ID)
	require.Equal(t, fieldset.LastPage, execution.Field.Page)
	require.Contains(t, execution.Text, "Jordan Reyes")
	require.Contains(t, execution.Text, "jordan@example.com")
	require.Contains(t, execution.Text, "2026-06-02T15:04:05Z")
	require.Contains(t, execution.Text, "203.0.113.7")

	wantSignedURL := fmt.Sprintf("mem://leases/%s/%s/signed.pdf", testEngineLeaseID, testEngineRequestID)
	require.Equal(t, wantSignedURL, res.SignedPDFURL)

	signed := store.objects[res.SignedPDFURL]
	require.NotEmpty(t, signed)
	require.Equal(t, DocumentHash(signed), res.DocumentHash)

	var audit AuditRecord
	require.NoError(t, json.Unmarshal(store.objects[res.AuditLogURL], &audit))
	require.Equal(t, res.DocumentHash, audit.DocumentHash)
	require.Equal(t, "Jordan Reyes", audit.SignerName)
	require.Equal(t, "203.0.113.7", audit.SignerIP)
	require.True(t, audit.ConsentGiven)
}

func TestEngineTemplateSecondSignerReusesBasePDF(t *testing.T) {
	t.Parallel()

	eng, conv, stamper, store := newTestEngine()
	store.objects["mem://prior/signed.pdf"] = []byte("tenant-signed-pdf")

	job := testJob(fieldset.RoleLandlord)
	job.BasePDFURL = "mem://prior/signed.pdf"
	job.PriorSignature = &PriorSignature{SignatureDataURL: "data:image/png;base64,BBBB", SignerName: "Jordan Reyes"}

	res, err := eng.Execute(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, 0, conv.calls, "reuse path must not regenerate from markup")

	require.Len(t, stamper.calls, 2)
	block := stamper.calls[0]
	require.Len(t, block, 2)
	require.Equal(t, "default_landlord_signature", block[0].Field.ID)
	require.Equal(t, job.Signature.PNG, block[0].ImagePNG)
	require.Equal(t, "default_landlord_date", block[1].Field.ID)
	require.Equal(t, "June 2, 2026", block[1].Text)

	signed := store.objects[res.SignedPDFURL]
	require.True(t, bytes.HasPrefix(signed, []byte("tenant-signed-pdf")), "first signature must survive byte for byte")
}

func TestEngineTemplateFallbackRegenerates(t *testing.T) {
	t.Parallel()

	eng, conv, _, _ := newTestEngine()

	job := testJob(fieldset.RoleLandlord)
	job.BasePDFURL = "mem://gone/signed.pdf"
	job.PriorSignature = &PriorSignature{SignatureDataURL: "data:image/png;base64,BBBB", SignerName: "Jordan Reyes"}

	_, err := eng.Execute(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, 1, conv.calls, "fetch failure falls back to full regeneration")
	require.Contains(t, conv.lastMarkup, "AAAA")
	require.Contains(t, conv.lastMarkup, "BBBB")
	require.NotContains(t, conv.lastMarkup, "Awaiting tenant signature")
	require.NotContains(t, conv.lastMarkup, "Awaiting landlord signature")
}

func TestEngineCustomPDFMode(t *testing.T) {
	t.Parallel()

	eng, conv, stamper, store := newTestEngine()
	store.objects["mem://uploads/lease.pdf"] = []byte("uploaded-pdf")

	job := testJob(fieldset.RoleTenant)
	job.Mode = ModeCustomPDF
	job.DocumentURL = "mem://uploads/lease.pdf"
	job.Fields = []fieldset.Field{
		{ID: "f-sig", Type: fieldset.TypeSignature, Role: fieldset.RoleTenant, Page: 2, X: 100, Y: 500, Width: 160, Height: 40},
		{ID: "f-date", Type: fieldset.TypeDate, Role: fieldset.RoleTenant, Page: 2, X: 100, Y: 550, Width: 120, Height: 24},
	}

	res, err := eng.Execute(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, 0, conv.calls)
	require.Len(t, stamper.calls, 2)

	fields := stamper.calls[0]
	require.Len(t, fields, 2)
	require.Equal(t, "f-sig", fields[0].Field.ID)
	require.Equal(t, job.Signature.PNG, fields[0].ImagePNG)
	require.Equal(t, "f-date", fields[1].Field.ID)
	require.Equal(t, "June 2, 2026", fields[1].Text)

	signed := store.objects[res.SignedPDFURL]
	require.True(t, bytes.HasPrefix(signed, []byte("uploaded-pdf")))
	require.Equal(t, DocumentHash(signed), res.DocumentHash)
}

func TestEngineCustomPDFFetchFailure(t *testing.T) {
	t.Parallel()

	eng, _, _, store := newTestEngine()

	job := testJob(fieldset.RoleTenant)
	job.Mode = ModeCustomPDF
	job.DocumentURL = "mem://uploads/missing.pdf"

	_, err := eng.Execute(context.Background(), job)
	require.ErrorContains(t, err, "fetch signing document")
	require.Empty(t, store.objects, "nothing may be uploaded after a failure")
}

func TestEngineConverterFailure(t *testing.T) {
	t.Parallel()

	eng, conv, _, store := newTestEngine()
	conv.err = errors.New("wkhtmltopdf exited 1")

	_, err := eng.Execute(context.Background(), testJob(fieldset.RoleTenant))
	require.ErrorContains(t, err, "render lease pdf")
	require.ErrorContains(t, err, "wkhtmltopdf exited 1")
	require.Empty(t, store.objects)
}

func TestEngineRejectsBadJobs(t *testing.T) {
	t.Parallel()

	eng, _, _, _ := newTestEngine()

	job := testJob(fieldset.RoleTenant)
	job.Mode = Mode("fax")
	_, err := eng.Execute(context.Background(), job)
	require.ErrorContains(t, err, "unknown signing mode")

	job = testJob(fieldset.RoleTenant)
	job.Signature = SignatureImage{}
	_, err = eng.Execute(context.Background(), job)
	require.ErrorContains(t, err, "signature image")
}
