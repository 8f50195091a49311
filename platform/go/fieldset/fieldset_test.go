package fieldset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVersionedDocument(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"version": 1,
		"fields": [
			{"id": "f1", "type": "signature", "role": "tenant", "page": 2, "x": 100, "y": 640, "width": 180, "height": 48, "required": true},
			{"id": "f2", "type": "date", "role": "tenant", "page": 2, "x": 300, "y": 640, "width": 120, "height": 24}
		]
	}`)

	set, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, 1, set.Version)
	require.Len(t, set.Fields, 2)
	require.Equal(t, "f1", set.Fields[0].ID)
	require.True(t, set.Fields[0].Required)
	require.False(t, set.Fields[1].Required)
}

func TestParseLegacyBareArray(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"id": "f1", "type": "signature", "role": "landlord", "page": 1, "x": 72, "y": 700, "width": 180, "height": 50}]`)

	set, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, set.Version)
	require.Len(t, set.Fields, 1)
	require.Equal(t, RoleLandlord, set.Fields[0].Role)
}

func TestParseAbsentPayloadYieldsEmptySet(t *testing.T) {
	t.Parallel()

	for _, raw := range [][]byte{nil, []byte(""), []byte("  "), []byte("null")} {
		set, err := Parse(raw)
		require.NoError(t, err)
		require.Equal(t, CurrentVersion, set.Version)
		require.True(t, set.IsEmpty())
	}
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"not json":            []byte(`{"version": 1,`),
		"wrong root type":     []byte(`"fields"`),
		"unknown role":        []byte(`[{"id": "f1", "type": "signature", "role": "notary", "page": 1, "x": 1, "y": 1, "width": 10, "height": 10}]`),
		"unknown type":        []byte(`[{"id": "f1", "type": "initials", "role": "tenant", "page": 1, "x": 1, "y": 1, "width": 10, "height": 10}]`),
		"missing coordinates": []byte(`[{"id": "f1", "type": "signature", "role": "tenant", "page": 1}]`),
		"negative page":       []byte(`[{"id": "f1", "type": "signature", "role": "tenant", "page": -1, "x": 1, "y": 1, "width": 10, "height": 10}]`),
		"zero width":          []byte(`[{"id": "f1", "type": "signature", "role": "tenant", "page": 1, "x": 1, "y": 1, "width": 0, "height": 10}]`),
		"duplicate ids":       []byte(`[{"id": "f1", "type": "signature", "role": "tenant", "page": 1, "x": 1, "y": 1, "width": 10, "height": 10}, {"id": "f1", "type": "date", "role": "tenant", "page": 1, "x": 1, "y": 1, "width": 10, "height": 10}]`),
		"future version":      []byte(`{"version": 2, "fields": []}`),
		"extra property":      []byte(`{"version": 1, "fields": [], "extra": true}`),
	}

	for name, raw := range cases {
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrMalformedFields, "case %q", name)
	}
}

func TestForRoleFiltersStrictly(t *testing.T) {
	t.Parallel()

	set := DefaultFields()

	tenantFields := set.ForRole(RoleTenant)
	require.Len(t, tenantFields, 2)
	for _, field := range tenantFields {
		require.Equal(t, RoleTenant, field.Role)
	}

	landlordFields := set.ForRole(RoleLandlord)
	require.Len(t, landlordFields, 2)
	for _, field := range landlordFields {
		require.Equal(t, RoleLandlord, field.Role)
	}

	require.Empty(t, set.ForRole("someone-else"))
}

func TestDefaultFieldsTargetLastPage(t *testing.T) {
	t.Parallel()

	set := DefaultFields()
	require.Len(t, set.Fields, 4)
	for _, field := range set.Fields {
		require.Equal(t, LastPage, field.Page)
		require.Positive(t, field.Width)
		require.Positive(t, field.Height)
	}
}

func TestEncodeRoundTripsThroughParse(t *testing.T) {
	t.Parallel()

	original := DefaultFields()

	encoded, err := original.Encode()
	require.NoError(t, err)

	decoded, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}
