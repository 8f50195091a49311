// Package fieldset parses and validates the signature field positions stored
// alongside an uploaded lease document. Stored payloads are versioned JSON;
// legacy rows that held a bare field array are read as version 1.
package fieldset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CurrentVersion is the only field-set document version in circulation.
const CurrentVersion = 1

// Field types and signer roles a position may target.
const (
	TypeSignature = "signature"
	TypeDate      = "date"

	RoleTenant   = "tenant"
	RoleLandlord = "landlord"
)

// LastPage is the Page sentinel meaning "stamp on the document's final page".
// It only appears in synthesized default fields; configured fields are 1-based.
const LastPage = 0

// Field is one placement on the target PDF. Coordinates are measured in PDF
// points from the page's top-left corner.
type Field struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Role     string  `json:"role"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Required bool    `json:"required,omitempty"`
}

// FieldSet is the validated, versioned form of a stored field payload.
type FieldSet struct {
	Version int     `json:"version"`
	Fields  []Field `json:"fields"`
}

// ErrMalformedFields indicates stored field data that fails parsing or validation.
var ErrMalformedFields = errors.New("malformed signature field data")

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func fieldSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		const id = "memory://schemas/signature-fields-v1.json"
		if err := compiler.AddResource(id, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("register field schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(id)
	})

	return compiledSchema, schemaErr
}

// Parse reads a stored field payload into a FieldSet. Absent payloads yield an
// empty current-version set; anything present but invalid is rejected with
// ErrMalformedFields rather than silently coerced.
func Parse(raw []byte) (FieldSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return FieldSet{Version: CurrentVersion, Fields: []Field{}}, nil
	}

	// Legacy payloads stored the bare field array.
	if trimmed[0] == '[' {
		wrapped := make([]byte, 0, len(trimmed)+32)
		wrapped = append(wrapped, []byte(`{"version":1,"fields":`)...)
		wrapped = append(wrapped, trimmed...)
		wrapped = append(wrapped, '}')
		trimmed = wrapped
	}

	var document any
	if err := json.Unmarshal(trimmed, &document); err != nil {
		return FieldSet{}, fmt.Errorf("%w: %v", ErrMalformedFields, err)
	}

	schema, err := fieldSchema()
	if err != nil {
		return FieldSet{}, err
	}
	if err := schema.Validate(document); err != nil {
		return FieldSet{}, fmt.Errorf("%w: %v", ErrMalformedFields, err)
	}

	var set FieldSet
	if err := json.Unmarshal(trimmed, &set); err != nil {
		return FieldSet{}, fmt.Errorf("%w: %v", ErrMalformedFields, err)
	}

	if set.Version != CurrentVersion {
		return FieldSet{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedFields, set.Version)
	}
	if set.Fields == nil {
		set.Fields = []Field{}
	}

	seen := make(map[string]struct{}, len(set.Fields))
	for _, field := range set.Fields {
		if field.Width <= 0 || field.Height <= 0 {
			return FieldSet{}, fmt.Errorf("%w: field %q has non-positive dimensions", ErrMalformedFields, field.ID)
		}
		if _, dup := seen[field.ID]; dup {
			return FieldSet{}, fmt.Errorf("%w: duplicate field id %q", ErrMalformedFields, field.ID)
		}
		seen[field.ID] = struct{}{}
	}

	return set, nil
}

// Encode serializes the set back to its stored JSON form.
func (fs FieldSet) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(fs)
	if err != nil {
		return nil, fmt.Errorf("encode field set: %w", err)
	}
	return data, nil
}

// IsEmpty reports whether the set carries no placements.
func (fs FieldSet) IsEmpty() bool {
	return len(fs.Fields) == 0
}

// ForRole returns only the placements addressed to the given signer role.
// Filtering is strict: a tenant submission never sees landlord fields.
func (fs FieldSet) ForRole(role string) []Field {
	out := make([]Field, 0, len(fs.Fields))
	for _, field := range fs.Fields {
		if field.Role == role {
			out = append(out, field)
		}
	}
	return out
}

// DefaultFields synthesizes the fallback layout used when an uploaded PDF has
// no design-configured positions: signature and date for each role near the
// bottom of the last page (US Letter spacing). Callers surface
// useDefaultFields so clients know these are estimates.
func DefaultFields() FieldSet {
	return FieldSet{
		Version: CurrentVersion,
		Fields: []Field{
			{ID: "default_tenant_signature", Type: TypeSignature, Role: RoleTenant, Page: LastPage, X: 72, Y: 680, Width: 180, Height: 50, Required: true},
			{ID: "default_tenant_date", Type: TypeDate, Role: RoleTenant, Page: LastPage, X: 72, Y: 735, Width: 120, Height: 24},
			{ID: "default_landlord_signature", Type: TypeSignature, Role: RoleLandlord, Page: LastPage, X: 340, Y: 680, Width: 180, Height: 50, Required: true},
			{ID: "default_landlord_date", Type: TypeDate, Role: RoleLandlord, Page: LastPage, X: 340, Y: 735, Width: 120, Height: 24},
		},
	}
}
