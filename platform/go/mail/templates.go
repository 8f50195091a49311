package mail

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

// SigningInviteParams feeds the "ready to sign" notification sent to whoever
// signs next.
type SigningInviteParams struct {
	RecipientName string
	PropertyLabel string
	SigningURL    string
	ExpiresAt     time.Time
}

// ExecutedParams feeds the "fully executed" notification sent to both parties
// once the landlord has signed.
type ExecutedParams struct {
	RecipientName string
	PropertyLabel string
	SignedPDFURL  string
}

var (
	inviteTemplate   = template.Must(template.New("invite").Parse(inviteHTML))
	executedTemplate = template.Must(template.New("executed").Parse(executedHTML))
)

// RenderSigningInvite builds the signing-link email.
func RenderSigningInvite(to string, p SigningInviteParams) (Message, error) {
	var b strings.Builder
	if err := inviteTemplate.Execute(&b, struct {
		SigningInviteParams
		ExpiresOn string
	}{p, p.ExpiresAt.Format("January 2, 2006")}); err != nil {
		return Message{}, fmt.Errorf("render signing invite: %w", err)
	}

	return Message{
		To:       to,
		ToName:   p.RecipientName,
		Subject:  fmt.Sprintf("Signature requested: %s", p.PropertyLabel),
		HTMLBody: b.String(),
	}, nil
}

// RenderExecuted builds the executed-lease email.
func RenderExecuted(to string, p ExecutedParams) (Message, error) {
	var b strings.Builder
	if err := executedTemplate.Execute(&b, p); err != nil {
		return Message{}, fmt.Errorf("render executed notice: %w", err)
	}

	return Message{
		To:       to,
		ToName:   p.RecipientName,
		Subject:  fmt.Sprintf("Lease fully executed: %s", p.PropertyLabel),
		HTMLBody: b.String(),
	}, nil
}

const inviteHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1a1a1a;">
<p>Hello {{.RecipientName}},</p>
<p>The lease agreement for <strong>{{.PropertyLabel}}</strong> is ready for your signature.</p>
<p><a href="{{.SigningURL}}" style="display:inline-block;padding:10px 18px;background:#2563eb;color:#ffffff;text-decoration:none;border-radius:4px;">Review and sign</a></p>
<p>This link expires on {{.ExpiresOn}}. If the button does not work, copy this address into your browser:<br>{{.SigningURL}}</p>
<p>RentFlowHQ</p>
</body>
</html>
`

const executedHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1a1a1a;">
<p>Hello {{.RecipientName}},</p>
<p>The lease agreement for <strong>{{.PropertyLabel}}</strong> has been signed by all parties and is now fully executed.</p>
<p><a href="{{.SignedPDFURL}}">Download the signed lease</a></p>
<p>Keep this document for your records.</p>
<p>RentFlowHQ</p>
</body>
</html>
`
