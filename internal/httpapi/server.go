package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"triagekit/internal/config"
	"triagekit/internal/diagnosis"
	"triagekit/internal/model"
	"triagekit/internal/modelchain"
	"triagekit/internal/transcription"
	"triagekit/internal/upstream/genai"
	"triagekit/internal/waittime"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type DiagnosisService interface {
	Diagnose(ctx context.Context, in diagnosis.Input) (diagnosis.Result, error)
}

type TranscriptionService interface {
	Transcribe(ctx context.Context, in transcription.Input) (transcription.Result, error)
}

type WaitTimeService interface {
	Resolve(ctx context.Context, facilities []waittime.Facility) []waittime.Estimate
}

type UpstreamChecker interface {
	CheckModels(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Diagnosis      DiagnosisService
	Transcription  TranscriptionService
	WaitTimes      WaitTimeService
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	diagnosis    DiagnosisService
	transcriber  TranscriptionService
	waitTimes    WaitTimeService
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Diagnosis == nil || deps.Transcription == nil || deps.WaitTimes == nil || deps.Upstream == nil {
		panic("httpapi: all dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		diagnosis:    deps.Diagnosis,
		transcriber:  deps.Transcription,
		waitTimes:    deps.WaitTimes,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.authMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/diagnoses", s.handleDiagnoses)
		r.Post("/transcriptions", s.handleTranscriptions)
		r.Post("/wait-times", s.handleWaitTimes)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.GenAIAPIKey == "" && genai.RequestAPIKeyFromContext(r.Context()) == "" {
		writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "triagekit"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.upstream.CheckModels(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "upstream check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "triagekit"})
}

func (s *server) handleDiagnoses(w http.ResponseWriter, r *http.Request) {
	var req model.DiagnosisRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	in := diagnosis.Input{
		Symptoms:  req.Symptoms,
		ImageData: req.ImageData,
		ImageMIME: req.ImageMIME,
		Language:  req.Language,
	}
	if req.Profile != nil {
		in.Profile = &diagnosis.Profile{
			Age:    req.Profile.Age,
			Gender: req.Profile.Gender,
			Height: req.Profile.Height,
			Weight: req.Profile.Weight,
		}
	}

	result, err := s.diagnosis.Diagnose(r.Context(), in)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.DiagnosisResponse{
		Condition: result.Condition,
		Severity:  result.Severity,
		Reasoning: result.Reasoning,
		Language:  result.Language,
	})
}

func (s *server) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	var req model.TranscriptionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AudioData) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "audio_data is required", nil)
		return
	}

	result, err := s.transcriber.Transcribe(r.Context(), transcription.Input{
		AudioData: req.AudioData,
		MIMEType:  req.MIMEType,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.TranscriptionResponse{
		SymptomsText: result.SymptomsText,
		Language:     result.Language,
	})
}

func (s *server) handleWaitTimes(w http.ResponseWriter, r *http.Request) {
	var req model.WaitTimeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Facilities) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "facilities must not be empty", nil)
		return
	}

	facilities := make([]waittime.Facility, 0, len(req.Facilities))
	for i, f := range req.Facilities {
		if strings.TrimSpace(f.Name) == "" {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("facilities[%d].name is required", i), nil)
			return
		}
		facilities = append(facilities, waittime.Facility{Name: f.Name, Website: f.Website})
	}

	estimates := s.waitTimes.Resolve(r.Context(), facilities)

	out := make([]model.WaitTimeEstimate, len(estimates))
	for i, est := range estimates {
		out[i] = model.WaitTimeEstimate{
			Name:              est.Name,
			Website:           est.Website,
			WaitTime:          est.WaitMinutes,
			WaitTimeEstimated: est.Estimated,
		}
	}
	writeJSON(w, http.StatusOK, model.WaitTimeResponse{Facilities: out})
}

func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	return true
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
}

// writeMappedError translates the pipelines' classified errors into public
// statuses and messages; internal detail stays in the details map.
func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "request failed"
	details := detailsForError(err)

	var upstreamErr *genai.Error
	switch {
	case errors.Is(err, diagnosis.ErrNoInput),
		errors.Is(err, diagnosis.ErrUnsupportedLanguage),
		errors.Is(err, transcription.ErrUnsupportedMedia):
		status = http.StatusBadRequest
		code = "invalid_request"
		message = publicInputMessage(err)
	case errors.Is(err, transcription.ErrEmptyTranscript):
		status = http.StatusUnprocessableEntity
		code = "empty_transcript"
		message = "no speech could be recognized in the audio"
	case errors.Is(err, modelchain.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
		code = "model_unavailable"
		message = "no diagnosis model is currently available, please retry"
	case errors.Is(err, diagnosis.ErrInvalidResponse), errors.Is(err, transcription.ErrInvalidResponse):
		status = http.StatusBadGateway
		code = "invalid_model_response"
		message = "the service returned an unusable response, please retry"
	case errors.As(err, &upstreamErr):
		status, code, message = mapUpstreamError(upstreamErr)
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		status = 499
		code = "canceled"
		message = "request canceled"
	}

	s.writeError(w, r, status, code, message, details)
}

func publicInputMessage(err error) string {
	switch {
	case errors.Is(err, diagnosis.ErrNoInput):
		return "provide at least one symptom or an image"
	case errors.Is(err, diagnosis.ErrUnsupportedLanguage):
		return "requested language is not supported"
	case errors.Is(err, transcription.ErrUnsupportedMedia):
		return "audio payload must declare an audio/* MIME type"
	default:
		return "invalid request"
	}
}

func mapUpstreamError(upErr *genai.Error) (int, string, string) {
	switch upErr.Kind {
	case genai.KindUnauthorized:
		return http.StatusServiceUnavailable, "service_unavailable", "the service is not configured correctly"
	case genai.KindInvalidInput:
		return http.StatusBadRequest, "invalid_image", "the attached media could not be processed"
	case genai.KindNotFound:
		return http.StatusServiceUnavailable, "model_unavailable", "no diagnosis model is currently available, please retry"
	default:
		return http.StatusBadGateway, "upstream_request_failed", "the diagnosis service is temporarily unavailable, please retry"
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, hasHeader, ok := extractBearerToken(r.Header.Get("Authorization"))
		if hasHeader && !ok {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authorization must be Bearer <api_key>", nil)
			return
		}
		if !isPublicPath(r.URL.Path) && token == "" && s.cfg.GenAIAPIKey == "" {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing generative backend API key", nil)
			return
		}
		if token != "" {
			r = r.WithContext(genai.WithRequestAPIKey(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func extractBearerToken(header string) (token string, hasHeader bool, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, true
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", true, false
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", true, false
	}
	return token, true, true
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var upstreamErr *genai.Error
	if errors.As(err, &upstreamErr) {
		details["upstream_kind"] = string(upstreamErr.Kind)
		if upstreamErr.StatusCode != 0 {
			details["upstream_status"] = upstreamErr.StatusCode
		}
	}
	return details
}
