// Package openai implements the Transcriber interface against an
// OpenAI-compatible audio transcription API (OpenAI Whisper, Groq
// whisper-large-v3, faster-whisper servers).
//
// The request asks for verbose_json so the engine reports the language it
// detected; the raw body is read with gjson because providers disagree on
// the rest of the verbose schema.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/tidwall/gjson"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/message"
	"github.com/nadzzz/medivoice/internal/transcribe"
)

// Transcriber uses an OpenAI-compatible transcription endpoint.
type Transcriber struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// New creates a new transcriber from config. SDK retries are disabled:
// transcription failures are final for the request.
func New(cfg config.TranscriptionConfig) *Transcriber {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Transcriber{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: slog.Default().With("component", "transcribe.openai"),
	}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "openai" }

// Transcribe uploads the audio file and returns its text and detected language.
func (t *Transcriber) Transcribe(ctx context.Context, path string, opts transcribe.Opts) (*transcribe.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if info.Size() == 0 {
		return nil, transcribe.ErrEmptyAudio
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = message.AudioContentType(filepath.Ext(path))
	}

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(f, filepath.Base(path), contentType),
		Model:          openai.AudioModel(t.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = openai.String(opts.Prompt)
	}

	var raw []byte
	if _, err := t.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&raw)); err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(gjson.GetBytes(raw, "text").String())
	if text == "" {
		return nil, transcribe.ErrEmptyTranscript
	}

	// OpenAI and Groq return full language names ("english"); normalise to ISO-639-1.
	lang := normalizeLanguage(gjson.GetBytes(raw, "language").String())

	t.logger.Debug("transcription complete", "text_length", len(text), "language", lang, "bytes", info.Size())
	return &transcribe.Result{Text: text, Language: lang}, nil
}

// Close is a no-op; the SDK client holds no long-lived resources.
func (t *Transcriber) Close() error { return nil }

var languageCodes = map[string]string{
	"english":    "en",
	"french":     "fr",
	"spanish":    "es",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"polish":     "pl",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"hindi":      "hi",
	"urdu":       "ur",
	"bengali":    "bn",
	"punjabi":    "pa",
	"turkish":    "tr",
	"persian":    "fa",
}

// normalizeLanguage converts full language names to ISO-639-1 codes. Unknown
// names pass through lowercased; consumers fall back to their defaults.
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) == 2 {
		return lang
	}
	if code, ok := languageCodes[lang]; ok {
		return code
	}
	return lang
}
