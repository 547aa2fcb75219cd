package diagnosis

import (
	"fmt"
	"strings"

	"triagekit/internal/language"
)

func buildDiagnosisPrompt(symptoms []string, hasImage bool, requested string, profile *Profile) string {
	var sb strings.Builder

	sb.WriteString(`You are a medical triage assistant. Based on the information below, identify the single most likely condition and how urgent it is.

`)

	if len(symptoms) > 0 {
		sb.WriteString("Reported symptoms:\n")
		for _, symptom := range symptoms {
			sb.WriteString("- ")
			sb.WriteString(symptom)
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("No symptoms were described in text.\n")
	}

	if hasImage {
		sb.WriteString("\nA photo of the affected area is attached. Use it as primary evidence.\n")
	} else {
		sb.WriteString("\nNo image is attached; rely on the symptom description only.\n")
	}

	if profile != nil {
		sb.WriteString("\nPatient profile (may be incomplete):")
		writeProfileField(&sb, "age", profile.Age)
		writeProfileField(&sb, "gender", profile.Gender)
		writeProfileField(&sb, "height", profile.Height)
		writeProfileField(&sb, "weight", profile.Weight)
		sb.WriteString("\n")
	}

	if requested != "" {
		fmt.Fprintf(&sb, "\nAnswer in the language with ISO 639-1 code %q and set \"language\" to %q.\n", requested, requested)
	} else {
		fmt.Fprintf(&sb, "\nDetect the language the symptoms are written in and set \"language\" to its ISO 639-1 code (one of: %s). Use \"%s\" when unsure.\n", language.Codes(), language.Baseline)
	}

	sb.WriteString(`
Respond with ONLY a JSON object, no other text:
{"condition": "<short condition name>", "severity": <1 for mild, 2 for moderate, 3 for emergency>, "reasoning": "<2-3 sentence explanation>", "language": "<ISO 639-1 code>"}`)

	return sb.String()
}

func buildTranslationPrompt(condition, reasoning, target string) string {
	return fmt.Sprintf(`Translate the two values below into the language with ISO 639-1 code %q. Keep medical terms accurate and do not add or remove information.

condition: %q
reasoning: %q

Respond with ONLY a JSON object, no other text:
{"condition": "<translated condition>", "reasoning": "<translated reasoning>"}`, target, condition, reasoning)
}

func writeProfileField(sb *strings.Builder, name, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		fmt.Fprintf(sb, " %s: %s.", name, trimmed)
	}
}
