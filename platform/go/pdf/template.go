package pdf

import (
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/fieldset"
)

// Placeholder tokens embedded in the rendered lease markup. The engine swaps
// them for signature images or status markers; the signing client swaps its
// own party's token for the live signature pad.
const (
	TokenTenantSignature   = "/sig_tenant/"
	TokenLandlordSignature = "/sig_landlord/"
)

// InitialsSlots is the number of per-section initials tokens in the template.
const InitialsSlots = 6

// InitialsToken returns the placeholder for slot n (1-based).
func InitialsToken(n int) string {
	return fmt.Sprintf("/init%d/", n)
}

// InitialsSlotID is the identifier clients send back for slot n.
func InitialsSlotID(n int) string {
	return fmt.Sprintf("init%d", n)
}

// LeaseTemplateParams feeds the lease template. Rendering is pure: identical
// params produce byte-identical markup.
type LeaseTemplateParams struct {
	PropertyLabel   string
	LandlordName    string
	TenantName      string
	StartDate       time.Time
	EndDate         *time.Time
	RentAmountCents int64
	BillingDay      int
	Today           time.Time
}

type leaseTemplateData struct {
	PropertyLabel string
	LandlordName  string
	TenantName    string
	StartDate     string
	TermClause    string
	Rent          string
	BillingDay    int
	GeneratedOn   string
}

var leaseTemplate = template.Must(template.New("lease").Parse(leaseTemplateHTML))

// RenderLeaseHTML produces the standard residential lease markup with all
// placeholder tokens intact.
func RenderLeaseHTML(p LeaseTemplateParams) string {
	data := leaseTemplateData{
		PropertyLabel: p.PropertyLabel,
		LandlordName:  p.LandlordName,
		TenantName:    p.TenantName,
		StartDate:     formatDate(p.StartDate),
		TermClause:    termClause(p.StartDate, p.EndDate),
		Rent:          formatCents(p.RentAmountCents),
		BillingDay:    p.BillingDay,
		GeneratedOn:   formatDate(p.Today),
	}

	var b strings.Builder
	// The template is a compile-time constant; execution cannot fail on it.
	if err := leaseTemplate.Execute(&b, data); err != nil {
		panic(fmt.Sprintf("render lease template: %v", err))
	}
	return b.String()
}

func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

func termClause(start time.Time, end *time.Time) string {
	if end == nil {
		return fmt.Sprintf("commencing on %s and continuing month to month until terminated per the terms below", formatDate(start))
	}
	return fmt.Sprintf("commencing on %s and ending on %s", formatDate(start), formatDate(*end))
}

// formatCents renders an amount in cents as US dollars, e.g. 185000 -> $1,850.00.
func formatCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}

	dollars := strconv.FormatInt(cents/100, 10)
	var grouped strings.Builder
	for i, d := range dollars {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), cents%100)
}

// Replacements carries the visual substitutions applied to rendered lease
// markup when composing a final artifact. Empty signature fragments become
// "awaiting" markers and empty initials slots become blank lines, so no token
// survives into the output.
type Replacements struct {
	TenantSignature   string
	LandlordSignature string
	Initials          map[int]string
}

// ReplaceSignatures resolves every placeholder token in the markup.
func ReplaceSignatures(markup string, r Replacements) string {
	tenant := r.TenantSignature
	if tenant == "" {
		tenant = AwaitingSignatureTag("tenant")
	}
	landlord := r.LandlordSignature
	if landlord == "" {
		landlord = AwaitingSignatureTag("landlord")
	}

	out := strings.ReplaceAll(markup, TokenTenantSignature, tenant)
	out = strings.ReplaceAll(out, TokenLandlordSignature, landlord)

	for i := 1; i <= InitialsSlots; i++ {
		frag := r.Initials[i]
		if frag == "" {
			frag = InitialsBlankTag()
		}
		out = strings.ReplaceAll(out, InitialsToken(i), frag)
	}

	return out
}

// PreviewHTML shows the counterparty's recorded signature in a GET preview
// while leaving the current signer's own tokens for the client to fill.
func PreviewHTML(markup, role string, priorSignatureDataURL string) string {
	if priorSignatureDataURL == "" {
		return markup
	}

	tag := SignatureImageTag(priorSignatureDataURL)
	switch role {
	case fieldset.RoleTenant:
		return strings.ReplaceAll(markup, TokenLandlordSignature, tag)
	case fieldset.RoleLandlord:
		return strings.ReplaceAll(markup, TokenTenantSignature, tag)
	}
	return markup
}

func SignatureImageTag(dataURL string) string {
	return fmt.Sprintf(`<img class="signature-image" src="%s" alt="signature"/>`, html.EscapeString(dataURL))
}

func InitialsImageTag(dataURL string) string {
	return fmt.Sprintf(`<img class="initials-image" src="%s" alt="initials"/>`, html.EscapeString(dataURL))
}

func TypedInitialsTag(value string) string {
	return fmt.Sprintf(`<span class="initials-typed">%s</span>`, html.EscapeString(value))
}

func AwaitingSignatureTag(party string) string {
	return fmt.Sprintf(`<span class="signature-awaiting">Awaiting %s signature</span>`, html.EscapeString(party))
}

func InitialsBlankTag() string {
	return `<span class="initials-blank">______</span>`
}

const leaseTemplateHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 11pt; color: #1a1a1a; margin: 36pt; }
  h1 { font-size: 16pt; text-align: center; margin-bottom: 4pt; }
  .subtitle { text-align: center; font-size: 9pt; color: #555; margin-bottom: 18pt; }
  h2 { font-size: 12pt; margin: 14pt 0 4pt; }
  p { line-height: 1.5; margin: 4pt 0; }
  .initials { text-align: right; font-size: 9pt; color: #555; margin: 6pt 0 2pt; }
  .signatures { width: 100%; margin-top: 28pt; border-collapse: collapse; }
  .signatures td { width: 50%; vertical-align: bottom; padding: 0 12pt; }
  .sig-slot { border-bottom: 1pt solid #1a1a1a; height: 54pt; }
  .sig-label { font-size: 9pt; color: #555; padding-top: 4pt; }
  .signature-image { max-height: 50pt; max-width: 180pt; }
  .initials-image { max-height: 20pt; max-width: 60pt; vertical-align: middle; }
  .signature-awaiting { color: #999; font-style: italic; }
  .initials-typed { font-weight: bold; letter-spacing: 1pt; }
  .initials-blank { letter-spacing: 1pt; color: #999; }
</style>
</head>
<body>
<h1>Residential Lease Agreement</h1>
<p class="subtitle">Prepared {{.GeneratedOn}}</p>

<h2>1. Parties</h2>
<p>This Residential Lease Agreement (the "Agreement") is entered into between
<strong>{{.LandlordName}}</strong> ("Landlord") and <strong>{{.TenantName}}</strong> ("Tenant").</p>
<p class="initials">Initials: /init1/</p>

<h2>2. Premises</h2>
<p>Landlord leases to Tenant the residential premises located at
<strong>{{.PropertyLabel}}</strong> (the "Premises"), for use as a private residence only.</p>
<p class="initials">Initials: /init2/</p>

<h2>3. Term</h2>
<p>The term of this Agreement begins {{.TermClause}}. Tenant shall surrender the
Premises in the condition received, ordinary wear excepted.</p>
<p class="initials">Initials: /init3/</p>

<h2>4. Rent</h2>
<p>Tenant shall pay rent of <strong>{{.Rent}}</strong> per month, due in advance on day
{{.BillingDay}} of each calendar month. Payments received more than five days late may
incur a late charge as permitted by law.</p>
<p class="initials">Initials: /init4/</p>

<h2>5. Maintenance and Condition</h2>
<p>Tenant shall keep the Premises clean and sanitary, promptly report any damage or
needed repair to Landlord, and shall not make alterations without Landlord's prior
written consent. Landlord shall maintain the Premises as required by applicable law.</p>
<p class="initials">Initials: /init5/</p>

<h2>6. Entire Agreement</h2>
<p>This Agreement, beginning {{.StartDate}}, constitutes the entire agreement between
the parties and may be amended only in a writing signed by both. The parties execute
this Agreement by the electronic signatures below, which each party agrees carry the
same force as handwritten signatures.</p>
<p class="initials">Initials: /init6/</p>

<table class="signatures">
<tr>
  <td><div class="sig-slot">/sig_tenant/</div><div class="sig-label">Tenant: {{.TenantName}}</div></td>
  <td><div class="sig-slot">/sig_landlord/</div><div class="sig-label">Landlord: {{.LandlordName}}</div></td>
</tr>
</table>
</body>
</html>
`
