package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderSigningInvite(t *testing.T) {
	t.Parallel()

	msg, err := RenderSigningInvite("jordan@example.com", SigningInviteParams{
		RecipientName: "Jordan Reyes",
		PropertyLabel: "128 Alder Way, Unit 2B",
		SigningURL:    "https://app.rentflowhq.com/sign/tok-abc",
		ExpiresAt:     time.Date(2026, 6, 9, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Equal(t, "jordan@example.com", msg.To)
	require.Equal(t, "Jordan Reyes", msg.ToName)
	require.Equal(t, "Signature requested: 128 Alder Way, Unit 2B", msg.Subject)
	require.Contains(t, msg.HTMLBody, "https://app.rentflowhq.com/sign/tok-abc")
	require.Contains(t, msg.HTMLBody, "June 9, 2026")
	require.Contains(t, msg.HTMLBody, "Jordan Reyes")
}

func TestRenderExecuted(t *testing.T) {
	t.Parallel()

	msg, err := RenderExecuted("pat@example.com", ExecutedParams{
		RecipientName: "Pat Holloway",
		PropertyLabel: "128 Alder Way, Unit 2B",
		SignedPDFURL:  "https://cdn.example.com/signed.pdf",
	})
	require.NoError(t, err)

	require.Equal(t, "Lease fully executed: 128 Alder Way, Unit 2B", msg.Subject)
	require.Contains(t, msg.HTMLBody, "https://cdn.example.com/signed.pdf")
	require.Contains(t, msg.HTMLBody, "fully executed")
}

func TestRenderEscapesUntrustedNames(t *testing.T) {
	t.Parallel()

	msg, err := RenderSigningInvite("x@example.com", SigningInviteParams{
		RecipientName: `<script>alert(1)</script>`,
		PropertyLabel: "1 Main St",
		SigningURL:    "https://app.rentflowhq.com/sign/tok",
		ExpiresAt:     time.Now(),
	})
	require.NoError(t, err)
	require.NotContains(t, msg.HTMLBody, "<script>")
}
