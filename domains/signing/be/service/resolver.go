package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/pdf"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
)

// SourceKind discriminates the signing experience presented for a request.
type SourceKind string

const (
	KindCustomPDF    SourceKind = "custom_pdf"
	KindHTMLTemplate SourceKind = "html_template"
)

// DocumentSource is the resolved signing path for one request. GET presents
// it and POST executes it, both through ResolveDocumentSource, so the preview
// and the actual signing path can never diverge.
type DocumentSource struct {
	Kind SourceKind

	// Custom-PDF path. Fields are already filtered to the signer's role;
	// UseDefaultFields marks synthesized positions so clients know they are
	// estimates rather than design-configured values.
	DocumentName     string
	DocumentURL      string
	Fields           []fieldset.Field
	UseDefaultFields bool

	// Rendered lease markup with placeholder tokens intact. The template path
	// signs it; the custom path shows it as the lease summary preview.
	LeaseHTML string
}

// ResolveDocumentSource decides which signing experience a request gets:
//  1. the consistency policy may force the HTML template for the landlord
//     once the tenant has signed;
//  2. otherwise the custom-PDF path applies iff a file is attached and its
//     fields were configured;
//  3. otherwise the HTML template.
func ResolveDocumentSource(lease persistence.Lease, doc *persistence.LegalDocument, role string, counterpartySigned bool, policy ConsistencyPolicy, now time.Time) (DocumentSource, error) {
	markup := pdf.RenderLeaseHTML(templateParams(lease, now))

	if policy.ForcesTemplate(role, counterpartySigned) {
		return DocumentSource{Kind: KindHTMLTemplate, LeaseHTML: markup}, nil
	}

	if doc != nil && doc.FileURL != nil && strings.TrimSpace(*doc.FileURL) != "" && doc.FieldsConfigured {
		set, err := fieldset.Parse(doc.SignatureFields)
		if err != nil {
			return DocumentSource{}, fmt.Errorf("parse configured fields: %w", err)
		}

		fields := set.ForRole(role)
		useDefaults := false
		if len(fields) == 0 {
			fields = fieldset.DefaultFields().ForRole(role)
			useDefaults = true
		}

		return DocumentSource{
			Kind:             KindCustomPDF,
			DocumentName:     doc.Name,
			DocumentURL:      *doc.FileURL,
			Fields:           fields,
			UseDefaultFields: useDefaults,
			LeaseHTML:        markup,
		}, nil
	}

	return DocumentSource{Kind: KindHTMLTemplate, LeaseHTML: markup}, nil
}

func templateParams(lease persistence.Lease, now time.Time) pdf.LeaseTemplateParams {
	return pdf.LeaseTemplateParams{
		PropertyLabel:   lease.PropertyLabel,
		LandlordName:    lease.LandlordName,
		TenantName:      lease.TenantName,
		StartDate:       lease.StartDate,
		EndDate:         lease.EndDate,
		RentAmountCents: lease.RentAmountCents,
		BillingDay:      lease.BillingDay,
		Today:           now,
	}
}
