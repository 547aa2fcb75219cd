// Package transcription turns an audio clip into symptom text plus a spoken
// language code. The transcript is never translated; language detection is
// reconciled from a dedicated second call with a script-range fallback.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"triagekit/internal/contract"
	"triagekit/internal/language"
	"triagekit/internal/upstream/genai"
)

var (
	// ErrUnsupportedMedia means the declared MIME type is not audio/*.
	ErrUnsupportedMedia = errors.New("payload must declare an audio MIME type")
	// ErrEmptyTranscript means the calls succeeded but produced no usable
	// text.
	ErrEmptyTranscript = errors.New("transcription produced no text")
	// ErrInvalidResponse wraps contract violations in the transcription
	// payload; callers may retry.
	ErrInvalidResponse = errors.New("transcription response failed validation")
)

// Generator is the candidate-chain call this pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, candidates []string, req genai.GenerationRequest) (string, error)
}

type Input struct {
	AudioData string // base64
	MIMEType  string // audio/*, may carry codec parameters
}

type Result struct {
	SymptomsText string
	Language     string
}

type Service struct {
	chain   Generator
	models  []string
	timeout time.Duration
	logger  *slog.Logger
}

func New(chain Generator, models []string, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{chain: chain, models: models, timeout: timeout, logger: logger}
}

func (s *Service) Transcribe(ctx context.Context, in Input) (Result, error) {
	mimeType := strings.TrimSpace(in.MIMEType)
	if !isAudioMIME(mimeType) {
		return Result{}, fmt.Errorf("%w: got %q", ErrUnsupportedMedia, in.MIMEType)
	}
	audio := &genai.Attachment{MIMEType: mimeType, Data: strings.TrimSpace(in.AudioData)}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.chain.Generate(ctx, s.models, genai.GenerationRequest{
		Prompt:      transcriptionPrompt,
		Attachment:  audio,
		Temperature: 0.0,
		StrictJSON:  true,
	})
	if err != nil {
		return Result{}, err
	}
	parsed, err := contract.ParseTranscription(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	code := language.Normalize(parsed.Language)

	// Dedicated detection over the same audio is more reliable than the
	// transcription call's side guess; its failure keeps the first code.
	if detected := s.detectLanguage(ctx, audio); detected != "" {
		code = detected
	}

	if code == "" || code == language.Baseline {
		if fromScript := language.FromScript(parsed.SymptomsText); fromScript != "" {
			code = fromScript
		}
	}
	if code == "" {
		code = language.Baseline
	}

	if parsed.SymptomsText == "" {
		return Result{}, ErrEmptyTranscript
	}
	return Result{SymptomsText: parsed.SymptomsText, Language: code}, nil
}

func (s *Service) detectLanguage(ctx context.Context, audio *genai.Attachment) string {
	raw, err := s.chain.Generate(ctx, s.models, genai.GenerationRequest{
		Prompt:      languageDetectionPrompt,
		Attachment:  audio,
		Temperature: 0.0,
		StrictJSON:  true,
	})
	if err == nil {
		var code string
		code, err = contract.ParseLanguageDetection(raw)
		if err == nil {
			if normalized := language.Normalize(code); normalized != "" {
				return normalized
			}
			err = fmt.Errorf("unsupported code %q", code)
		}
	}
	s.logger.Warn("language detection failed, keeping transcription guess", "error", err)
	return ""
}

const transcriptionPrompt = `Transcribe the attached audio of a patient describing their symptoms.

Rules:
- Transcribe verbatim in the ORIGINAL spoken language. Do NOT translate.
- Also report your best guess of the spoken language as an ISO 639-1 code.

Respond with ONLY a JSON object, no other text:
{"symptoms_text": "<verbatim transcript>", "language": "<ISO 639-1 code>"}`

const languageDetectionPrompt = `Identify the language spoken in the attached audio.

Respond with ONLY a JSON object, no other text:
{"language": "<ISO 639-1 code>"}`

// isAudioMIME checks the declared type after stripping codec parameters
// ("audio/webm;codecs=opus"); the full value is still sent upstream.
func isAudioMIME(mimeType string) bool {
	base := mimeType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(strings.ToLower(base))
	return strings.HasPrefix(base, "audio/") && len(base) > len("audio/")
}
