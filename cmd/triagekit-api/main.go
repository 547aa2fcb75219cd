package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triagekit/internal/config"
	"triagekit/internal/diagnosis"
	"triagekit/internal/httpapi"
	"triagekit/internal/modelchain"
	"triagekit/internal/observability"
	"triagekit/internal/transcription"
	"triagekit/internal/upstream/genai"
	"triagekit/internal/waittime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.ModelTimeout, Transport: transport}
	upstreamClient := genai.New(cfg.GenAIBaseURL, cfg.GenAIAPIKey, upstreamHTTPClient, genai.WithObserver(metrics.ObserveUpstream))

	chain := modelchain.New(upstreamClient, logger, modelchain.WithFallbackObserver(metrics.IncModelFallback))

	diagnosisService := diagnosis.New(chain, cfg.TextModels, cfg.VisionModels, cfg.ModelTimeout, logger,
		diagnosis.WithTranslationFallbackObserver(metrics.IncTranslationFallback))
	transcriptionService := transcription.New(chain, cfg.TextModels, cfg.ModelTimeout, logger)

	scrapeHTTPClient := &http.Client{Timeout: cfg.ScrapeTimeout, Transport: transport}
	scraper := waittime.NewScraper(scrapeHTTPClient, waittime.NewCache(cfg.ScrapeCacheTTL))
	waitTimeResolver := waittime.NewResolver(scraper, cfg.ScrapeTimeout, logger,
		waittime.WithOutcomeObserver(func(outcome waittime.Outcome) {
			metrics.IncWaitTimeOutcome(string(outcome))
		}))

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Diagnosis:      diagnosisService,
		Transcription:  transcriptionService,
		WaitTimes:      waitTimeResolver,
		Upstream:       upstreamClient,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       35 * time.Second,
		WriteTimeout:      70 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
