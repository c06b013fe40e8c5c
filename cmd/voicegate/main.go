package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voicestack.local/voicegate/internal/config"
	"voicestack.local/voicegate/internal/dispatch"
	"voicestack.local/voicegate/internal/httpapi"
	"voicestack.local/voicegate/internal/model"
	"voicestack.local/voicegate/internal/orchestrator"
	"voicestack.local/voicegate/internal/speech"
	"voicestack.local/voicegate/internal/store"
	"voicestack.local/voicegate/internal/subscribers"
	logging "voicestack.local/voicegate/internal/subscribers/logging"
	"voicestack.local/voicegate/internal/subscribers/webhook"
)

func main() {
	logger := log.New(os.Stdout, "voicegate ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)

	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	subs := []subscribers.Subscriber{logging.New(logger)}
	for idx, webhookURL := range cfg.WebhookURLs {
		subs = append(subs, webhook.New(webhookSubscriberName(idx, webhookURL), webhookURL, logger))
	}
	dispatcher := dispatch.New(logger, subs)

	conversationStore, err := store.NewGormStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatalf("failed to initialize conversation store: %v", err)
	}
	defer func() {
		if err := conversationStore.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	registry := model.NewRegistry()
	registry.Register("ollama", model.NewOllamaProvider(model.WithOllamaBaseURL(cfg.OllamaBaseURL)))
	if cfg.OpenAIAPIKey != "" {
		registry.Register("openai", model.NewOpenAIProvider(cfg.OpenAIAPIKey))
	}

	var transcriber speech.Transcriber
	if cfg.WhisperBaseURL != "" {
		transcriber = speech.NewWhisperClient(cfg.WhisperBaseURL)
	}
	var synthesizer speech.Synthesizer
	if cfg.PiperBaseURL != "" {
		synthesizer = speech.NewPiperClient(cfg.PiperBaseURL, speech.WithPiperVoice(cfg.PiperVoice))
	}

	orch := orchestrator.New(orchestrator.Config{
		Provider:         cfg.Provider,
		Model:            cfg.Model,
		Chain:            cfg.ChainAgents,
		IncludeHistory:   cfg.IncludeHistory,
		HistoryTurnLimit: cfg.HistoryTurnLimit,
		AgentTimeout:     cfg.AgentTimeout,
	}, registry, conversationStore, dispatcher, logger)

	srv := httpapi.NewServer(logger, cfg.HTTPAddr, httpapi.Deps{
		Runner:      orch,
		Store:       conversationStore,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Dispatcher:  dispatcher,
	})

	go func() {
		logger.Printf("listening on %s provider=%s model=%s", cfg.HTTPAddr, cfg.Provider, cfg.Model)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
}

func webhookSubscriberName(index int, webhookURL string) string {
	parsed, err := url.Parse(webhookURL)
	if err == nil {
		host := strings.TrimSpace(parsed.Host)
		if host != "" {
			return host
		}
	}
	return fmt.Sprintf("webhook-%d", index+1)
}
