package estimate

import "fmt"

// Answers are the three multiple-choice inputs collected alongside the photo.
type Answers struct {
	PortionSize                  string `json:"portion_size"`
	ContainsDairy                string `json:"contains_dairy"`
	ContainsTofuOrSmallFishBones string `json:"contains_tofu_or_small_fish_bones"`
}

func validEnum(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func (a Answers) Validate() error {
	if !validEnum(a.PortionSize, "small", "medium", "large") {
		return fmt.Errorf("portion_size must be small|medium|large, got %q", a.PortionSize)
	}
	if !validEnum(a.ContainsDairy, "yes", "no", "not_sure") {
		return fmt.Errorf("contains_dairy must be yes|no|not_sure, got %q", a.ContainsDairy)
	}
	if !validEnum(a.ContainsTofuOrSmallFishBones, "yes", "no", "not_sure") {
		return fmt.Errorf("contains_tofu_or_small_fish_bones must be yes|no|not_sure, got %q", a.ContainsTofuOrSmallFishBones)
	}
	return nil
}

// Result is the model's parsed answer.
type Result struct {
	CalciumMg        int      `json:"calcium_mg"`
	Confidence       float64  `json:"confidence"`
	ConfidenceLabel  string   `json:"confidence_label"`
	ExplanationShort string   `json:"explanation_short"`
	Warnings         []string `json:"warnings"`
}

const (
	ModeMock   = "mock"
	ModeOpenAI = "openai"
	ModeGemini = "gemini"
)

// Outcome wraps one estimation's result with its provenance. Built once per
// request, never persisted.
type Outcome struct {
	Result    Result
	RawText   string
	LatencyMs int64
	Mode      string
}

// Input is everything the orchestrator needs for one estimation.
type Input struct {
	ImageBase64 string
	Answers     Answers
	Locale      string
	RequestID   string
}

// MockResult is the canned estimate returned in mock mode. The literal 0.6 /
// "medium" pair is kept as-is; it is not re-derived from the label buckets.
func MockResult() Result {
	return Result{
		CalciumMg:        300,
		Confidence:       0.6,
		ConfidenceLabel:  "medium",
		ExplanationShort: "Mock estimate (no upstream call).",
		Warnings:         []string{},
	}
}
