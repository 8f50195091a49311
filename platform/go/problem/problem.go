// Package problem renders RFC 7807 problem responses shared by every API surface.
package problem

import (
	"encoding/json"
	"net/http"
)

// Details is the application/problem+json body.
// Code carries a machine-readable reason (e.g., "TENANT_NOT_SIGNED") beyond the HTTP status.
type Details struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Code     string              `json:"code,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// Write serializes the problem document with the proper content type.
// Encoding failures are unrecoverable at this point; headers are already flushed.
func Write(w http.ResponseWriter, details Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(details.Status)
	_ = json.NewEncoder(w).Encode(details)
}
