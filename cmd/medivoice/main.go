// Medivoice is a voice-driven medical assistant backend. A patient records a
// question (optionally with a photo), and the daemon answers in the voice of a
// doctor: speech is transcribed, reference passages are looked up, a reply is
// generated and synthesized, and the conversation history is returned.
//
// Usage:
//
//	medivoice [flags]
//	medivoice --config /path/to/medivoice.yaml
//
//	@title						medivoice API
//	@version					1.0
//	@description				Voice-driven medical assistant: speech in, doctor reply and voice out.
//	@BasePath					/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/nadzzz/medivoice/docs"
	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/conversation"
	"github.com/nadzzz/medivoice/internal/generate"
	openaigen "github.com/nadzzz/medivoice/internal/generate/openai"
	"github.com/nadzzz/medivoice/internal/health"
	"github.com/nadzzz/medivoice/internal/metrics"
	"github.com/nadzzz/medivoice/internal/pipeline"
	"github.com/nadzzz/medivoice/internal/retrieval"
	"github.com/nadzzz/medivoice/internal/retrieval/httpindex"
	"github.com/nadzzz/medivoice/internal/retrieval/milvus"
	"github.com/nadzzz/medivoice/internal/retry"
	"github.com/nadzzz/medivoice/internal/transcribe"
	"github.com/nadzzz/medivoice/internal/transcribe/asr"
	openaistt "github.com/nadzzz/medivoice/internal/transcribe/openai"
	httptransport "github.com/nadzzz/medivoice/internal/transport/http"
	"github.com/nadzzz/medivoice/internal/tts"
	openaitts "github.com/nadzzz/medivoice/internal/tts/openai"
	"github.com/nadzzz/medivoice/internal/tts/piper"
	"github.com/nadzzz/medivoice/internal/voicestore"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/medivoice.local.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("medivoice %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("medivoice starting", "version", version)

	if !cfg.Transports.HTTP.Enabled {
		slog.Error("no transports enabled, enable transports.http in config")
		os.Exit(1)
	}

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var transcriber transcribe.Transcriber
	switch cfg.Transcription.Backend {
	case "asr":
		transcriber = asr.New(cfg.Transcription)
		slog.Info("using whisper-asr transcription", "endpoint", cfg.Transcription.ASR.Endpoint)
	default:
		transcriber = openaistt.New(cfg.Transcription)
		slog.Info("using OpenAI-compatible transcription",
			"base_url", cfg.Transcription.BaseURL,
			"model", cfg.Transcription.Model)
	}
	defer transcriber.Close()

	retriever, err := newRetriever(ctx, cfg.Retrieval)
	if err != nil {
		slog.Error("failed to initialize retrieval", "backend", cfg.Retrieval.Backend, "error", err)
		os.Exit(1)
	}
	defer retriever.Close()
	slog.Info("using retrieval backend", "backend", retriever.Name(), "top_k", cfg.Retrieval.TopK)

	var generator generate.Generator = openaigen.New(cfg.Generation)
	defer generator.Close()
	slog.Info("using generation endpoint",
		"base_url", cfg.Generation.BaseURL,
		"model", cfg.Generation.Model,
		"vision_model", cfg.Generation.VisionModel)

	store := conversation.New(mustPrompt(cfg.Conversations),
		conversation.WithIdleTTL(cfg.Conversations.IdleTTL))
	go store.Run(ctx, cfg.Conversations.SweepInterval)

	m := metrics.New(func() float64 { return float64(store.Len()) })

	voices, err := voicestore.New(cfg.Storage.VoiceDir)
	if err != nil {
		slog.Error("failed to prepare voice directory", "dir", cfg.Storage.VoiceDir, "error", err)
		os.Exit(1)
	}
	go voices.Run(ctx, cfg.Conversations.SweepInterval, cfg.TTS.VoiceTTL)

	deps := pipeline.Deps{
		Transcriber: transcriber,
		Retriever:   retriever,
		Generator:   generator,
		Store:       store,
		Metrics:     m,
	}
	if cfg.TTS.Enabled {
		speaker := tts.NewSpeaker(newSynthesizer(cfg), voices, retry.Policy{
			MaxAttempts: cfg.TTS.Retries,
			Delay:       cfg.TTS.RetryDelay,
			OnRetry:     func(int, error) { m.SynthesisAttempts(1) },
		})
		defer speaker.Close()
		deps.Speaker = speaker
		slog.Info("using tts backend", "backend", cfg.TTS.Backend, "retries", cfg.TTS.Retries)
	} else {
		slog.Info("tts disabled, replies carry no voice")
	}

	pipe := pipeline.New(pipeline.Config{
		TempDir:              cfg.Storage.TempDir,
		PublicURL:            cfg.Transports.HTTP.PublicURL,
		DefaultLanguage:      cfg.Conversations.DefaultLanguage,
		TranscriptionTimeout: cfg.Transcription.Timeout,
		RetrievalTimeout:     cfg.Retrieval.Timeout,
		GenerationTimeout:    cfg.Generation.Timeout,
	}, deps)

	// Start health, readiness and metrics server.
	healthServer := health.New(cfg.Server.HealthPort, m.Registry)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	if cfg.Server.GRPCHealth {
		probe := health.NewGRPCProbe(cfg.Server.GRPCPort)
		healthServer.OnReady(probe.SetServing)
		go func() {
			if err := probe.Listen(ctx); err != nil {
				slog.Error("grpc health probe failed", "error", err)
			}
		}()
	}

	httpTransport := httptransport.New(cfg.Transports.HTTP, voices)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("starting transport", "name", httpTransport.Name())
		if err := httpTransport.Listen(ctx, pipe); err != nil {
			slog.Error("transport failed", "name", httpTransport.Name(), "error", err)
			cancel()
		}
	}()

	healthServer.SetReady(true)
	slog.Info("medivoice ready",
		"http_port", cfg.Transports.HTTP.Port,
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	if err := httpTransport.Close(); err != nil {
		slog.Error("transport close error", "name", httpTransport.Name(), "error", err)
	}

	wg.Wait()
	slog.Info("medivoice stopped")
}

func newRetriever(ctx context.Context, cfg config.RetrievalConfig) (retrieval.Retriever, error) {
	switch cfg.Backend {
	case "http":
		return httpindex.New(cfg), nil
	case "milvus":
		return milvus.New(ctx, cfg)
	default:
		return retrieval.Nop{}, nil
	}
}

func newSynthesizer(cfg *config.Config) tts.Synthesizer {
	if cfg.TTS.Backend == "openai" {
		return openaitts.New(cfg.TTS.OpenAI, cfg.TTS.Timeout)
	}
	return piper.New(cfg.TTS.Piper, cfg.Conversations.DefaultLanguage, cfg.TTS.Timeout)
}

func mustPrompt(cfg config.ConversationsConfig) *conversation.Prompt {
	p, err := conversation.NewPrompt(cfg.SystemPrompt, cfg.DefaultLanguage)
	if err != nil {
		slog.Error("invalid system prompt template", "error", err)
		os.Exit(1)
	}
	return p
}
