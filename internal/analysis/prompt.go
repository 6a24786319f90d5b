package analysis

import (
	"fmt"
	"strings"
)

// buildPrompt renders the analysis request. The response contract is spelled
// out in the prompt and enforced again by Result.Validate.
func buildPrompt(data SoilData, language string) string {
	var b strings.Builder

	b.WriteString("You are a soil scientist. Analyze this soil reading and respond with JSON only.\n\n")
	fmt.Fprintf(&b, "Soil temperature: %.2f °C\n", data.Temperature)
	fmt.Fprintf(&b, "Soil moisture: %.2f %%\n", data.Moisture)
	fmt.Fprintf(&b, "Soil pH: %.2f\n", data.PH)

	if data.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", data.Location)
	}
	if data.Weather != "" {
		fmt.Fprintf(&b, "Current weather: %s\n", data.Weather)
	}
	if data.Notes != "" {
		fmt.Fprintf(&b, "Notes from the gardener: %s\n", data.Notes)
	}

	if language == "" {
		language = "en"
	}
	fmt.Fprintf(&b, "\nWrite all text fields in language %q.\n", language)

	b.WriteString(`
Respond with a single JSON object, no markdown, matching exactly:
{
  "score": <integer 0-100, overall soil quality>,
  "interpretation": "<what the readings mean for growing>",
  "plants": [3 to 5 entries: {"name", "reasoning", "care_tips": ["<tip>", ...], "ideal_conditions": ["<condition>", ...]}],
  "amendments": [0 or more entries: {"name", "purpose", "application_rate"}]
}
`)

	return b.String()
}
