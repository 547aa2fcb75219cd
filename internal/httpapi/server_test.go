package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"triagekit/internal/config"
	"triagekit/internal/diagnosis"
	"triagekit/internal/modelchain"
	"triagekit/internal/transcription"
	"triagekit/internal/upstream/genai"
	"triagekit/internal/waittime"
)

type stubDiagnosis struct {
	result diagnosis.Result
	err    error
	input  diagnosis.Input
}

func (s *stubDiagnosis) Diagnose(_ context.Context, in diagnosis.Input) (diagnosis.Result, error) {
	s.input = in
	return s.result, s.err
}

type stubTranscription struct {
	result transcription.Result
	err    error
	input  transcription.Input
}

func (s *stubTranscription) Transcribe(_ context.Context, in transcription.Input) (transcription.Result, error) {
	s.input = in
	return s.result, s.err
}

type stubWaitTimes struct {
	estimates []waittime.Estimate
	input     []waittime.Facility
}

func (s *stubWaitTimes) Resolve(_ context.Context, facilities []waittime.Facility) []waittime.Estimate {
	s.input = facilities
	return s.estimates
}

type stubUpstream struct{ err error }

func (s stubUpstream) CheckModels(context.Context) error { return s.err }

func newTestHandler(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Diagnosis == nil {
		deps.Diagnosis = &stubDiagnosis{}
	}
	if deps.Transcription == nil {
		deps.Transcription = &stubTranscription{}
	}
	if deps.WaitTimes == nil {
		deps.WaitTimes = &stubWaitTimes{}
	}
	if deps.Upstream == nil {
		deps.Upstream = stubUpstream{}
	}
	cfg := config.Config{
		GenAIBaseURL:     "http://example.com",
		GenAIAPIKey:      "x",
		MaxJSONBodyBytes: 1 << 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, deps)
}

func postJSON(t *testing.T, h http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestDiagnosesHandlerReturnsResult(t *testing.T) {
	diag := &stubDiagnosis{result: diagnosis.Result{
		Condition: "common cold",
		Severity:  1,
		Reasoning: "runny nose",
		Language:  "en",
	}}
	h := newTestHandler(t, Dependencies{Diagnosis: diag})

	w := postJSON(t, h, "/v1/diagnoses", map[string]any{
		"symptoms": []string{"runny nose"},
		"language": "en",
		"profile":  map[string]string{"age": "34", "gender": "female"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Condition string `json:"condition"`
		Severity  int    `json:"severity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Condition != "common cold" || resp.Severity != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if diag.input.Profile == nil || diag.input.Profile.Age != "34" {
		t.Fatalf("profile not forwarded: %+v", diag.input.Profile)
	}
}

func TestDiagnosesHandlerMapsInputErrors(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{diagnosis.ErrNoInput, http.StatusBadRequest, "invalid_request"},
		{diagnosis.ErrUnsupportedLanguage, http.StatusBadRequest, "invalid_request"},
		{modelchain.ErrModelUnavailable, http.StatusServiceUnavailable, "model_unavailable"},
		{diagnosis.ErrInvalidResponse, http.StatusBadGateway, "invalid_model_response"},
		{&genai.Error{Kind: genai.KindInvalidInput, StatusCode: 400}, http.StatusBadRequest, "invalid_image"},
		{&genai.Error{Kind: genai.KindUnauthorized}, http.StatusServiceUnavailable, "service_unavailable"},
		{&genai.Error{Kind: genai.KindTransient, StatusCode: 500}, http.StatusBadGateway, "upstream_request_failed"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	}

	for _, tc := range cases {
		h := newTestHandler(t, Dependencies{Diagnosis: &stubDiagnosis{err: tc.err}})
		w := postJSON(t, h, "/v1/diagnoses", map[string]any{"symptoms": []string{"x"}})

		if w.Code != tc.wantStatus {
			t.Fatalf("error %v: unexpected status %d, want %d", tc.err, w.Code, tc.wantStatus)
		}
		if !strings.Contains(w.Body.String(), tc.wantCode) {
			t.Fatalf("error %v: body %s missing code %q", tc.err, w.Body.String(), tc.wantCode)
		}
	}
}

func TestTranscriptionsHandler(t *testing.T) {
	tr := &stubTranscription{result: transcription.Result{SymptomsText: "తలనొప్పి", Language: "te"}}
	h := newTestHandler(t, Dependencies{Transcription: tr})

	w := postJSON(t, h, "/v1/transcriptions", map[string]any{
		"audio_data": "QUJD",
		"mime_type":  "audio/webm;codecs=opus",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if tr.input.MIMEType != "audio/webm;codecs=opus" {
		t.Fatalf("mime not forwarded: %q", tr.input.MIMEType)
	}
	if !strings.Contains(w.Body.String(), `"language":"te"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestTranscriptionsHandlerRequiresAudio(t *testing.T) {
	h := newTestHandler(t, Dependencies{})
	w := postJSON(t, h, "/v1/transcriptions", map[string]any{"mime_type": "audio/wav"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", w.Code)
	}
}

func TestTranscriptionsHandlerMapsEmptyTranscript(t *testing.T) {
	h := newTestHandler(t, Dependencies{Transcription: &stubTranscription{err: transcription.ErrEmptyTranscript}})
	w := postJSON(t, h, "/v1/transcriptions", map[string]any{"audio_data": "QUJD", "mime_type": "audio/wav"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "empty_transcript") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestWaitTimesHandler(t *testing.T) {
	wt := &stubWaitTimes{estimates: []waittime.Estimate{
		{Facility: waittime.Facility{Name: "General Hospital"}, WaitMinutes: 40, Estimated: true},
		{Facility: waittime.Facility{Name: "Piedmont Atlanta", Website: "https://piedmont.org"}, WaitMinutes: 35},
	}}
	h := newTestHandler(t, Dependencies{WaitTimes: wt})

	w := postJSON(t, h, "/v1/wait-times", map[string]any{
		"facilities": []map[string]string{
			{"name": "General Hospital"},
			{"name": "Piedmont Atlanta", "website": "https://piedmont.org"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if len(wt.input) != 2 {
		t.Fatalf("facilities not forwarded: %+v", wt.input)
	}
	var resp struct {
		Facilities []struct {
			Name              string `json:"name"`
			WaitTime          int    `json:"waitTime"`
			WaitTimeEstimated bool   `json:"waitTimeEstimated"`
		} `json:"facilities"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Facilities) != 2 {
		t.Fatalf("unexpected facility count: %d", len(resp.Facilities))
	}
	if !resp.Facilities[0].WaitTimeEstimated || resp.Facilities[1].WaitTimeEstimated {
		t.Fatalf("estimated flags wrong: %+v", resp.Facilities)
	}
}

func TestWaitTimesHandlerValidatesFacilities(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	w := postJSON(t, h, "/v1/wait-times", map[string]any{"facilities": []map[string]string{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty list: unexpected status %d", w.Code)
	}

	w = postJSON(t, h, "/v1/wait-times", map[string]any{
		"facilities": []map[string]string{{"website": "https://example.org"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing name: unexpected status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "facilities[0].name") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestStrictJSONDecoding(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/v1/diagnoses", strings.NewReader(`{"symptoms":["x"],"bogus":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: unexpected status %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/diagnoses", strings.NewReader(`{"symptoms":["x"]}{"again":true}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("trailing JSON: unexpected status %d", w.Code)
	}
}

func TestAuthMiddlewareRequiresKeyWhenUnconfigured(t *testing.T) {
	cfg := config.Config{
		GenAIBaseURL:     "http://example.com",
		MaxJSONBodyBytes: 1 << 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewServer(cfg, logger, Dependencies{
		Diagnosis:     &stubDiagnosis{},
		Transcription: &stubTranscription{},
		WaitTimes:     &stubWaitTimes{},
		Upstream:      stubUpstream{},
	})

	w := postJSON(t, h, "/v1/diagnoses", map[string]any{"symptoms": []string{"x"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id not echoed: %q", got)
	}
}
