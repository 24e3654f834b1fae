package estimate

import (
	"encoding/json"

	"calcium-cam/api/internal/util"
)

// ParseResult validates raw model text against the estimate shape. Only
// three things are enforced: the text is JSON, the value is an object, and
// calcium_mg is numeric. Confidence/label consistency, warning element types
// and value bounds are deliberately not checked; the remaining fields are
// decoded best-effort.
func ParseResult(raw string) (Result, error) {
	txt := util.StripCodeFences(raw)

	if !json.Valid([]byte(txt)) {
		return Result{}, NewError(KindModelInvalidResponse, "model output is not valid JSON")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(txt), &fields); err != nil {
		return Result{}, NewError(KindModelInvalidResponse, "model output is not a JSON object")
	}
	rawMg, ok := fields["calcium_mg"]
	if !ok {
		return Result{}, NewError(KindModelInvalidResponse, "calcium_mg is missing")
	}
	var mg float64
	if err := json.Unmarshal(rawMg, &mg); err != nil {
		return Result{}, NewError(KindModelInvalidResponse, "calcium_mg is not numeric")
	}

	res := Result{CalciumMg: int(mg), Warnings: []string{}}
	if v, ok := fields["confidence"]; ok {
		_ = json.Unmarshal(v, &res.Confidence)
	}
	if v, ok := fields["confidence_label"]; ok {
		_ = json.Unmarshal(v, &res.ConfidenceLabel)
	}
	if v, ok := fields["explanation_short"]; ok {
		_ = json.Unmarshal(v, &res.ExplanationShort)
	}
	if v, ok := fields["warnings"]; ok {
		_ = json.Unmarshal(v, &res.Warnings)
	}
	return res, nil
}

// ResultSchema is the JSON schema sent to providers that support strict
// schema-constrained output.
func ResultSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []any{
			"calcium_mg", "confidence", "confidence_label",
			"explanation_short", "warnings",
		},
		"properties": map[string]any{
			"calcium_mg": map[string]any{"type": "integer", "minimum": 0},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"confidence_label": map[string]any{
				"type": "string",
				"enum": []any{"low", "medium", "high"},
			},
			"explanation_short": map[string]any{"type": "string"},
			"warnings": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}
