package estimate

import (
	"fmt"
	"strings"
)

const promptTemplate = `You estimate dietary calcium from a single meal photo.

Look at the attached photo and the diner's answers, then respond with ONLY a
JSON object, no prose and no code fences, with exactly these fields:
  calcium_mg         integer >= 0, estimated calcium for the whole portion
  confidence         number in [0,1]
  confidence_label   "low" (<0.4) | "medium" (0.4-0.7) | "high" (>=0.7)
  explanation_short  one or two sentences, written in the "%s" locale language
  warnings           array of short strings in the same language (may be empty)

Diner's answers:
  portion size: %s
  contains dairy: %s
  contains tofu or small fish eaten with bones: %s

Base the estimate on visible foods; use the answers to resolve ambiguity.`

// BuildPrompt renders the estimation instruction. A non-empty override is
// returned verbatim so operators can hot-patch the prompt without a deploy.
// Pure: identical inputs yield identical output.
func BuildPrompt(a Answers, locale, override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	if strings.TrimSpace(locale) == "" {
		locale = "en"
	}
	return fmt.Sprintf(promptTemplate,
		locale,
		a.PortionSize,
		a.ContainsDairy,
		a.ContainsTofuOrSmallFishBones,
	)
}
