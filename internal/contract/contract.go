// Package contract turns free-form model output into validated, typed
// payloads. It performs no I/O and is deterministic given its input text.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformed means no parseable JSON object could be located in the text.
var ErrMalformed = errors.New("malformed model response")

// ContractError reports a schema violation in an otherwise parseable object.
type ContractError struct {
	Field  string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("invalid response contract: field %q %s", e.Field, e.Reason)
}

type Diagnosis struct {
	Condition string `json:"condition"`
	Severity  int    `json:"severity"`
	Reasoning string `json:"reasoning"`
	Language  string `json:"language"`
}

type Transcription struct {
	SymptomsText string `json:"symptoms_text"`
	Language     string `json:"language"`
}

type Translation struct {
	Condition string `json:"condition"`
	Reasoning string `json:"reasoning"`
}

// Extract locates the single JSON object expected inside raw. It strips
// markdown code fences, tries a direct parse, then falls back to the
// substring between the first '{' and the last '}'. Failure of both stages
// is ErrMalformed; partially parsed data is never returned.
func Extract(raw string) (json.RawMessage, error) {
	text := stripFences(strings.TrimSpace(raw))

	if obj, ok := tryParseObject(text); ok {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if obj, ok := tryParseObject(text[start : end+1]); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
}

// ParseDiagnosis extracts and validates a diagnosis payload. Severity must be
// a whole number in {1,2,3}; condition and reasoning must be non-empty.
// Language membership is left to the pipeline, which defaults it.
func ParseDiagnosis(raw string) (Diagnosis, error) {
	obj, err := Extract(raw)
	if err != nil {
		return Diagnosis{}, err
	}

	var fields struct {
		Condition *string  `json:"condition"`
		Severity  *float64 `json:"severity"`
		Reasoning *string  `json:"reasoning"`
		Language  *string  `json:"language"`
	}
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := requireString("condition", fields.Condition); err != nil {
		return Diagnosis{}, err
	}
	if err := requireString("reasoning", fields.Reasoning); err != nil {
		return Diagnosis{}, err
	}
	if fields.Severity == nil {
		return Diagnosis{}, &ContractError{Field: "severity", Reason: "is required"}
	}
	severity := *fields.Severity
	if severity != math.Trunc(severity) || severity < 1 || severity > 3 {
		return Diagnosis{}, &ContractError{Field: "severity", Reason: "must be 1, 2 or 3"}
	}

	d := Diagnosis{
		Condition: strings.TrimSpace(*fields.Condition),
		Severity:  int(severity),
		Reasoning: strings.TrimSpace(*fields.Reasoning),
	}
	if fields.Language != nil {
		d.Language = strings.TrimSpace(*fields.Language)
	}
	return d, nil
}

// ParseTranscription extracts and validates a transcription payload. The
// language field is a best-guess side output and may be absent.
func ParseTranscription(raw string) (Transcription, error) {
	obj, err := Extract(raw)
	if err != nil {
		return Transcription{}, err
	}

	var fields struct {
		SymptomsText *string `json:"symptoms_text"`
		Language     *string `json:"language"`
	}
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if fields.SymptomsText == nil {
		return Transcription{}, &ContractError{Field: "symptoms_text", Reason: "is required"}
	}

	t := Transcription{SymptomsText: strings.TrimSpace(*fields.SymptomsText)}
	if fields.Language != nil {
		t.Language = strings.TrimSpace(*fields.Language)
	}
	return t, nil
}

// ParseTranslation extracts a translation payload. Both fields are required
// and must be non-empty; a blank translation is not worth keeping.
func ParseTranslation(raw string) (Translation, error) {
	obj, err := Extract(raw)
	if err != nil {
		return Translation{}, err
	}

	var fields struct {
		Condition *string `json:"condition"`
		Reasoning *string `json:"reasoning"`
	}
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Translation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := requireString("condition", fields.Condition); err != nil {
		return Translation{}, err
	}
	if err := requireString("reasoning", fields.Reasoning); err != nil {
		return Translation{}, err
	}
	return Translation{
		Condition: strings.TrimSpace(*fields.Condition),
		Reasoning: strings.TrimSpace(*fields.Reasoning),
	}, nil
}

// ParseLanguageDetection extracts a language-identification payload and
// returns the raw code; the pipeline decides whether it is supported.
func ParseLanguageDetection(raw string) (string, error) {
	obj, err := Extract(raw)
	if err != nil {
		return "", err
	}

	var fields struct {
		Language *string `json:"language"`
	}
	if err := json.Unmarshal(obj, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := requireString("language", fields.Language); err != nil {
		return "", err
	}
	return strings.TrimSpace(*fields.Language), nil
}

func requireString(field string, value *string) error {
	if value == nil {
		return &ContractError{Field: field, Reason: "is required"}
	}
	if strings.TrimSpace(*value) == "" {
		return &ContractError{Field: field, Reason: "must not be empty"}
	}
	return nil
}

func tryParseObject(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

func stripFences(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
