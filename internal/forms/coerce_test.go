package forms

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"021000021", "021000021"},
		{true, "true"},
		{float64(2000), "2000"},
		{1250.5, "1250.5"},
		{42, "42"},
		{int64(-7), "-7"},
		{json.Number("0012"), "0012"},
		{time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), "07/04/2024"},
		{time.Time{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TextValue(tt.in), "TextValue(%#v)", tt.in)
	}
}

func TestCheckValue(t *testing.T) {
	truthy := []any{true, "true", "Yes", " on ", "1", "X", "checked", 1, float64(3), json.Number("1")}
	falsy := []any{nil, false, "", "false", "no", "off", "0", 0, float64(0), json.Number("0"), "maybe"}
	for _, v := range truthy {
		assert.True(t, CheckValue(v), "CheckValue(%#v)", v)
	}
	for _, v := range falsy {
		assert.False(t, CheckValue(v), "CheckValue(%#v)", v)
	}
}

func TestParseAssignment(t *testing.T) {
	key, value, err := ParseAssignment("employee_name=John Smith")
	require.NoError(t, err)
	assert.Equal(t, "employee_name", key)
	assert.Equal(t, "John Smith", value)

	key, value, err = ParseAssignment("memo=a=b")
	require.NoError(t, err)
	assert.Equal(t, "memo", key)
	assert.Equal(t, "a=b", value)

	_, _, err = ParseAssignment("no-equals")
	require.Error(t, err)
	_, _, err = ParseAssignment("=value")
	require.Error(t, err)
}

func TestDecodeSignature(t *testing.T) {
	encoded := signaturePNG(t)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	for name, payload := range map[string]string{
		"std":      encoded,
		"data uri": "data:image/png;base64," + encoded,
		"raw url":  base64.RawURLEncoding.EncodeToString(raw),
		"wrapped":  encoded[:30] + "\n" + encoded[30:],
	} {
		t.Run(name, func(t *testing.T) {
			sig, err := DecodeSignature(payload)
			require.NoError(t, err)
			assert.Equal(t, "png", sig.Format)
			assert.Equal(t, 120, sig.Width)
			assert.Equal(t, 40, sig.Height)
		})
	}

	for _, bad := range []string{"", "data:image/png;base64", "!!!", base64.StdEncoding.EncodeToString([]byte("GIF89a"))} {
		_, err := DecodeSignature(bad)
		assert.True(t, errors.Is(err, ErrInvalidSignature), "payload %q", bad)
	}
}

func TestSignatureFit(t *testing.T) {
	sig := &Signature{Width: 200, Height: 50}
	x, y, scale := sig.fit(SignatureBox{Page: 1, X: 50, Y: 200, Width: 220, Height: 55})
	assert.InDelta(t, 1.1, scale, 1e-9)
	assert.InDelta(t, 50, x, 1e-9)
	assert.InDelta(t, 200, y, 1e-9)

	tall := &Signature{Width: 50, Height: 100}
	x, y, scale = tall.fit(SignatureBox{X: 0, Y: 0, Width: 100, Height: 50})
	assert.InDelta(t, 0.5, scale, 1e-9)
	assert.InDelta(t, 37.5, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)
}

func TestParseAndMergeSchemas(t *testing.T) {
	overrides, err := ParseSchemas([]byte(`
schemas:
  - form: w4
    template: w4.pdf
    fields:
      - {key: first_name, kind: text, widget: f1_first_name}
  - form: parking_permit
    template: parking.pdf
    fields:
      - {key: plate, kind: text, overlay: {page: 1, x: 72, y: 700}}
`))
	require.NoError(t, err)
	require.Len(t, overrides, 2)
	assert.Equal(t, "Helvetica", overrides[1].Fields[0].Overlay.Font)

	merged := MergeSchemas(DefaultSchemas(), overrides)
	require.Len(t, merged, 6)
	assert.Equal(t, FormW4, merged[1].Form)
	assert.Equal(t, []string{"first_name"}, merged[1].Keys())
	assert.Equal(t, FormType("parking_permit"), merged[5].Form)

	_, err = ParseSchemas([]byte("schemas: [unterminated"))
	require.Error(t, err)
}
