package contract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDirectObject(t *testing.T) {
	obj, err := Extract(`{"condition":"flu","severity":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"condition":"flu","severity":1}`, string(obj))
}

func TestExtractObjectSurroundedByProse(t *testing.T) {
	raw := `Sure! Based on the symptoms, here is my assessment:

{"condition": "migraine", "severity": 2, "reasoning": "recurring unilateral headache", "language": "en"}

Let me know if you need anything else.`

	obj, err := Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"condition":"migraine","severity":2,"reasoning":"recurring unilateral headache","language":"en"}`, string(obj))
}

func TestExtractStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"language\": \"te\"}\n```"
	obj, err := Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"language":"te"}`, string(obj))
}

func TestExtractFailsClosedOnGarbage(t *testing.T) {
	for _, raw := range []string{
		"no json here at all",
		"{broken: json",
		"",
		"prose { still broken } prose",
	} {
		_, err := Extract(raw)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}
}

func TestParseDiagnosisValid(t *testing.T) {
	d, err := ParseDiagnosis(`Here you go: {"condition":"sprained ankle","severity":1,"reasoning":"swelling after a fall","language":"en"}`)
	require.NoError(t, err)
	assert.Equal(t, "sprained ankle", d.Condition)
	assert.Equal(t, 1, d.Severity)
	assert.Equal(t, "swelling after a fall", d.Reasoning)
	assert.Equal(t, "en", d.Language)
}

func TestParseDiagnosisNamesMissingField(t *testing.T) {
	cases := map[string]string{
		`{"severity":2,"reasoning":"r","language":"en"}`:                 "condition",
		`{"condition":"c","reasoning":"r","language":"en"}`:              "severity",
		`{"condition":"c","severity":2,"language":"en"}`:                 "reasoning",
		`{"condition":"  ","severity":2,"reasoning":"r"}`:                "condition",
		`{"condition":"c","severity":4,"reasoning":"r"}`:                 "severity",
		`{"condition":"c","severity":2.5,"reasoning":"r"}`:               "severity",
		`{"condition":"c","severity":0,"reasoning":"r","language":"en"}`: "severity",
	}

	for raw, field := range cases {
		_, err := ParseDiagnosis(raw)
		var cerr *ContractError
		require.ErrorAs(t, err, &cerr, "input %s", raw)
		assert.Equal(t, field, cerr.Field, "input %s", raw)
	}
}

func TestParseDiagnosisSeverityRange(t *testing.T) {
	for severity := 1; severity <= 3; severity++ {
		raw := fmt.Sprintf(`{"condition":"c","severity":%d,"reasoning":"r"}`, severity)
		d, err := ParseDiagnosis(raw)
		require.NoError(t, err)
		assert.Equal(t, severity, d.Severity)
	}
}

func TestParseTranscription(t *testing.T) {
	tr, err := ParseTranscription(`{"symptoms_text":"తలనొప్పి మరియు జ్వరం","language":"te"}`)
	require.NoError(t, err)
	assert.Equal(t, "తలనొప్పి మరియు జ్వరం", tr.SymptomsText)
	assert.Equal(t, "te", tr.Language)

	_, err = ParseTranscription(`{"language":"te"}`)
	var cerr *ContractError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "symptoms_text", cerr.Field)
}

func TestParseTranscriptionAllowsBlankTextAndMissingLanguage(t *testing.T) {
	// Blank text is surfaced by the pipeline as an empty transcript, not a
	// contract failure; the field just has to be present.
	tr, err := ParseTranscription(`{"symptoms_text":"  "}`)
	require.NoError(t, err)
	assert.Empty(t, tr.SymptomsText)
	assert.Empty(t, tr.Language)
}

func TestParseTranslationRequiresBothFields(t *testing.T) {
	tr, err := ParseTranslation(`{"condition":"gripe","reasoning":"fiebre y dolor"}`)
	require.NoError(t, err)
	assert.Equal(t, "gripe", tr.Condition)

	_, err = ParseTranslation(`{"condition":"gripe","reasoning":""}`)
	var cerr *ContractError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "reasoning", cerr.Field)
}

func TestParseLanguageDetection(t *testing.T) {
	code, err := ParseLanguageDetection("```json\n{\"language\":\"hi\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "hi", code)

	_, err = ParseLanguageDetection(`{"language":""}`)
	assert.Error(t, err)

	_, err = ParseLanguageDetection("not json")
	assert.True(t, errors.Is(err, ErrMalformed))
}
