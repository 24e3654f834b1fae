package estimate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultComplete(t *testing.T) {
	res, err := ParseResult(`{
		"calcium_mg": 420,
		"confidence": 0.82,
		"confidence_label": "high",
		"explanation_short": "Yogurt and cheese dominate the plate.",
		"warnings": ["portion size uncertain"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, 420, res.CalciumMg)
	assert.InDelta(t, 0.82, res.Confidence, 1e-9)
	assert.Equal(t, "high", res.ConfidenceLabel)
	assert.Equal(t, []string{"portion size uncertain"}, res.Warnings)
}

func TestParseResultRoundTrip(t *testing.T) {
	orig := Result{
		CalciumMg:        180,
		Confidence:       0.35,
		ConfidenceLabel:  "low",
		ExplanationShort: "Leafy greens only.",
		Warnings:         []string{"no dairy visible", "lighting poor"},
	}
	b, err := json.Marshal(orig)
	require.NoError(t, err)

	got, err := ParseResult(string(b))
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestParseResultStripsFences(t *testing.T) {
	res, err := ParseResult("```json\n{\"calcium_mg\": 100}\n```")
	require.NoError(t, err)
	assert.Equal(t, 100, res.CalciumMg)
}

func TestParseResultFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		msg  string
	}{
		{"not json", "the meal looks dairy-heavy", "not valid JSON"},
		{"bare number", "42", "not a JSON object"},
		{"array", `[1,2]`, "not a JSON object"},
		{"missing calcium", `{}`, "calcium_mg is missing"},
		{"string calcium", `{"calcium_mg": "lots"}`, "calcium_mg is not numeric"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResult(tc.raw)
			require.Error(t, err)
			assert.Equal(t, KindModelInvalidResponse, KindOf(err))
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

// Only JSON-ness, object-ness and a numeric calcium_mg are enforced; other
// fields are decoded best-effort and bad shapes are quietly ignored.
func TestParseResultIsPermissive(t *testing.T) {
	res, err := ParseResult(`{
		"calcium_mg": 250.9,
		"confidence": 1.7,
		"confidence_label": "very-sure",
		"warnings": "not-an-array",
		"extra_field": true
	}`)
	require.NoError(t, err)
	assert.Equal(t, 250, res.CalciumMg)
	assert.InDelta(t, 1.7, res.Confidence, 1e-9)
	assert.Equal(t, "very-sure", res.ConfidenceLabel)
	assert.Equal(t, []string{}, res.Warnings)
}

func TestParseResultWarningsNeverNil(t *testing.T) {
	res, err := ParseResult(`{"calcium_mg": 10}`)
	require.NoError(t, err)
	assert.NotNil(t, res.Warnings)
	assert.Empty(t, res.Warnings)
}

func TestResultSchemaShape(t *testing.T) {
	s := ResultSchema()
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, false, s["additionalProperties"])
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	for _, f := range []string{"calcium_mg", "confidence", "confidence_label", "explanation_short", "warnings"} {
		assert.Contains(t, props, f)
	}
	assert.Len(t, s["required"], 5)
}
