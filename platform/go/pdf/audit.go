package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is the tamper-evident bundle stored beside every signed PDF.
// SignedAt is server time; the IP is the first forwarded hop or "unknown".
type AuditRecord struct {
	Token           string    `json:"token"`
	LeaseID         uuid.UUID `json:"leaseId"`
	RequestID       uuid.UUID `json:"requestId"`
	Role            string    `json:"role"`
	SignerName      string    `json:"signerName"`
	SignerEmail     string    `json:"signerEmail"`
	SignerIP        string    `json:"signerIp"`
	SignerUserAgent string    `json:"signerUserAgent"`
	ConsentGiven    bool      `json:"consentGiven"`
	SignedAt        time.Time `json:"signedAt"`
	DocumentHash    string    `json:"documentHash"`
}

// DocumentHash returns the SHA-256 hex digest of a signed artifact. Hashing
// happens after every stamp has been applied, so each signature changes it.
func DocumentHash(artifact []byte) string {
	sum := sha256.Sum256(artifact)
	return hex.EncodeToString(sum[:])
}

// EncodeAuditRecord serializes the record as compact JSON with a stable field
// order, suitable for hashing and long-term storage.
func EncodeAuditRecord(rec AuditRecord) ([]byte, error) {
	if rec.DocumentHash == "" {
		return nil, fmt.Errorf("audit record requires the document hash")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	return data, nil
}
