// Package diagnosis builds triage prompts, runs them through the candidate
// model chain and validates the structured result. Translation of the result
// into the target language is best-effort and never fails the pipeline.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"triagekit/internal/contract"
	"triagekit/internal/language"
	"triagekit/internal/upstream/genai"
)

var (
	// ErrNoInput means neither symptoms nor an image was provided; rejected
	// before any network call.
	ErrNoInput = errors.New("at least one symptom or an image is required")
	// ErrUnsupportedLanguage means the requested output language is outside
	// the supported set.
	ErrUnsupportedLanguage = errors.New("requested language is not supported")
	// ErrInvalidResponse wraps contract violations in the primary diagnosis
	// payload; callers may retry.
	ErrInvalidResponse = errors.New("diagnosis response failed validation")
)

// Generator is the candidate-chain call this pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, candidates []string, req genai.GenerationRequest) (string, error)
}

// Profile enriches the prompt; fields are passed through without validation.
type Profile struct {
	Age    string
	Gender string
	Height string
	Weight string
}

type Input struct {
	Symptoms  []string
	ImageData string // base64, optionally a data URL
	ImageMIME string
	Language  string // requested output language, optional
	Profile   *Profile
}

type Result struct {
	Condition string
	Severity  int
	Reasoning string
	Language  string
}

type TranslationFallbackObserver func()

type Service struct {
	chain                 Generator
	textModels            []string
	visionModels          []string
	timeout               time.Duration
	logger                *slog.Logger
	onTranslationFallback TranslationFallbackObserver
}

type Option func(*Service)

func WithTranslationFallbackObserver(observer TranslationFallbackObserver) Option {
	return func(s *Service) {
		s.onTranslationFallback = observer
	}
}

func New(chain Generator, textModels, visionModels []string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		chain:        chain,
		textModels:   textModels,
		visionModels: visionModels,
		timeout:      timeout,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Diagnose(ctx context.Context, in Input) (Result, error) {
	symptoms := cleanedSymptoms(in.Symptoms)
	imageData, imageMIME := normalizeImage(in.ImageData, in.ImageMIME)

	if len(symptoms) == 0 && imageData == "" {
		return Result{}, ErrNoInput
	}

	requested := ""
	if strings.TrimSpace(in.Language) != "" {
		requested = language.Normalize(in.Language)
		if requested == "" {
			return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, in.Language)
		}
	}

	req := genai.GenerationRequest{
		Prompt:      buildDiagnosisPrompt(symptoms, imageData != "", requested, in.Profile),
		Temperature: 0.2,
		StrictJSON:  true,
	}
	candidates := s.textModels
	if imageData != "" {
		req.Attachment = &genai.Attachment{MIMEType: imageMIME, Data: imageData}
		candidates = s.visionModels
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.chain.Generate(ctx, candidates, req)
	if err != nil {
		return Result{}, err
	}

	parsed, err := contract.ParseDiagnosis(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	target := requested
	if target == "" {
		target = language.Normalize(parsed.Language)
	}
	if target == "" {
		target = language.Baseline
	}

	result := Result{
		Condition: parsed.Condition,
		Severity:  parsed.Severity,
		Reasoning: parsed.Reasoning,
		Language:  target,
	}
	if target != language.Baseline {
		result = s.translate(ctx, result, target)
	}
	return result, nil
}

// translate rewrites condition and reasoning into the target language. Any
// failure keeps the untranslated original; the primary result is already
// valid and translation is only an enrichment.
func (s *Service) translate(ctx context.Context, result Result, target string) Result {
	raw, err := s.chain.Generate(ctx, s.textModels, genai.GenerationRequest{
		Prompt:      buildTranslationPrompt(result.Condition, result.Reasoning, target),
		Temperature: 0.0,
		StrictJSON:  true,
	})
	if err == nil {
		var translated contract.Translation
		translated, err = contract.ParseTranslation(raw)
		if err == nil {
			result.Condition = translated.Condition
			result.Reasoning = translated.Reasoning
			return result
		}
	}

	s.logger.Warn("translation failed, keeping original text", "target", target, "error", err)
	if s.onTranslationFallback != nil {
		s.onTranslationFallback()
	}
	return result
}

func cleanedSymptoms(symptoms []string) []string {
	cleaned := make([]string, 0, len(symptoms))
	for _, symptom := range symptoms {
		if trimmed := strings.TrimSpace(symptom); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

var dataURLPattern = regexp.MustCompile(`^data:([^;,]+);base64,`)

// normalizeImage strips a data-URL prefix when present; the embedded MIME
// type wins over the declared one.
func normalizeImage(data, declaredMIME string) (string, string) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", ""
	}
	mimeType := strings.TrimSpace(declaredMIME)
	if match := dataURLPattern.FindStringSubmatch(data); match != nil {
		mimeType = match[1]
		data = data[len(match[0]):]
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType
}
