// Package outbox turns transactionally recorded domain events into
// notification emails.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types written by the signing workflow. Invite events address whoever
// signs next; executed events go out once per recipient so a partial send
// never re-mails the party that already got theirs.
const (
	EventSigningStarted = "lease.signing_started"
	EventTenantSigned   = "lease.tenant_signed"
	EventLeaseExecuted  = "lease.executed"
)

// EventPayload is the envelope stored in outbox_events.payload. Invite events
// carry the signing link and its expiry; executed events carry the final PDF
// link.
type EventPayload struct {
	LeaseID        uuid.UUID  `json:"leaseId"`
	RequestID      uuid.UUID  `json:"requestId"`
	PropertyLabel  string     `json:"propertyLabel"`
	RecipientName  string     `json:"recipientName"`
	RecipientEmail string     `json:"recipientEmail"`
	Role           string     `json:"role"`
	SigningURL     string     `json:"signingUrl,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	SignedPDFURL   string     `json:"signedPdfUrl,omitempty"`
}

// Encode serializes the payload for the outbox insert.
func (p EventPayload) Encode() (json.RawMessage, error) {
	if p.RecipientEmail == "" {
		return nil, fmt.Errorf("event payload requires a recipient email")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return data, nil
}

// DecodePayload reads a stored payload back.
func DecodePayload(raw json.RawMessage) (EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return EventPayload{}, fmt.Errorf("decode event payload: %w", err)
	}
	if p.RecipientEmail == "" {
		return EventPayload{}, fmt.Errorf("event payload lacks a recipient email")
	}
	return p, nil
}
