package config

import (
	"errors"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

// Default candidate model lists, in fallback priority order. Overridable via
// TEXT_MODELS / VISION_MODELS as comma-separated lists.
var (
	DefaultTextModels   = []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-flash-8b"}
	DefaultVisionModels = []string{"gemini-2.0-flash", "gemini-1.5-pro"}
)

type Config struct {
	ListenAddr       string
	GenAIBaseURL     string
	GenAIAPIKey      string
	TextModels       []string
	VisionModels     []string
	ModelTimeout     time.Duration
	ScrapeTimeout    time.Duration
	ScrapeCacheTTL   time.Duration
	MaxJSONBodyBytes int64
	LogLevel         string
}

type envConfig struct {
	ListenAddr            string `env:"LISTEN_ADDR" envDefault:":8080"`
	GenAIBaseURL          string `env:"GENAI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GenAIAPIKey           string `env:"GENAI_API_KEY"`
	TextModels            string `env:"TEXT_MODELS"`
	VisionModels          string `env:"VISION_MODELS"`
	ModelTimeoutSeconds   int    `env:"MODEL_TIMEOUT_SECONDS" envDefault:"30"`
	ScrapeTimeoutSeconds  int    `env:"SCRAPE_TIMEOUT_SECONDS" envDefault:"4"`
	ScrapeCacheTTLSeconds int    `env:"SCRAPE_CACHE_TTL_SECONDS" envDefault:"300"`
	MaxJSONBodyBytes      int64  `env:"MAX_JSON_BODY_BYTES" envDefault:"10485760"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:       strings.TrimSpace(raw.ListenAddr),
		GenAIBaseURL:     strings.TrimRight(strings.TrimSpace(raw.GenAIBaseURL), "/"),
		GenAIAPIKey:      strings.TrimSpace(raw.GenAIAPIKey),
		TextModels:       parseModelList(raw.TextModels, DefaultTextModels),
		VisionModels:     parseModelList(raw.VisionModels, DefaultVisionModels),
		ModelTimeout:     time.Duration(raw.ModelTimeoutSeconds) * time.Second,
		ScrapeTimeout:    time.Duration(raw.ScrapeTimeoutSeconds) * time.Second,
		ScrapeCacheTTL:   time.Duration(raw.ScrapeCacheTTLSeconds) * time.Second,
		MaxJSONBodyBytes: raw.MaxJSONBodyBytes,
		LogLevel:         strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.GenAIBaseURL == "" {
		return errors.New("GENAI_BASE_URL must not be empty")
	}
	if len(c.TextModels) == 0 {
		return errors.New("TEXT_MODELS must name at least one model")
	}
	if len(c.VisionModels) == 0 {
		return errors.New("VISION_MODELS must name at least one model")
	}
	if c.ModelTimeout <= 0 {
		return errors.New("MODEL_TIMEOUT_SECONDS must be > 0")
	}
	if c.ScrapeTimeout <= 0 {
		return errors.New("SCRAPE_TIMEOUT_SECONDS must be > 0")
	}
	if c.ScrapeCacheTTL <= 0 {
		return errors.New("SCRAPE_CACHE_TTL_SECONDS must be > 0")
	}
	if c.MaxJSONBodyBytes <= 0 {
		return errors.New("MAX_JSON_BODY_BYTES must be > 0")
	}
	return nil
}

func parseModelList(raw string, fallback []string) []string {
	models := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			models = append(models, name)
		}
	}
	if len(models) == 0 {
		return append([]string(nil), fallback...)
	}
	return models
}
