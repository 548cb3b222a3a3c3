package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/aegisvoice/voicebridge/internal/config"
	"github.com/aegisvoice/voicebridge/internal/proxy"
)

const helpText = `voicebridge-server - API proxy for voicebridge clients

Holds the upstream API key and exposes session minting, streaming chat,
transcription, speech synthesis, and health routes. Metrics on /metrics.

Environment Variables:
  OPENAI_API_KEY         Upstream API key (required)
  VOICEBRIDGE_ADDR       Listen address (default :8787)
  OPENAI_API_BASE        Upstream base URL (default https://api.openai.com)
  OPENAI_REALTIME_MODEL  Realtime model for minted sessions
  OPENAI_CHAT_MODEL      Chat model for the streaming relay
  OPENAI_TTS_MODEL       Speech model, OPENAI_TTS_VOICE its voice
  VOICEBRIDGE_POLLY_REGION  Polly fallback region, also _VOICE and _ENGINE
  VOICEBRIDGE_LOG_JSON   true for JSON logs

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicebridge-server: %v\n", err)
		os.Exit(1)
	}

	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           proxy.NewServer(*cfg, logger, nil).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("done")
}
