// Package asr implements the Transcriber interface against a self-hosted
// whisper-asr-webservice (ahmetoner/whisper-asr-webservice).
//
// API: POST /asr?task=transcribe&output=json&encode=true[&language=..][&vad_filter=true]
// Body: multipart/form-data with field "audio_file".
package asr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/message"
	"github.com/nadzzz/medivoice/internal/transcribe"
)

// Transcriber posts audio to a whisper-asr-webservice endpoint.
type Transcriber struct {
	endpoint  string
	vadFilter bool
	client    *http.Client
	logger    *slog.Logger
}

// New creates a new ASR transcriber from config.
func New(cfg config.TranscriptionConfig) *Transcriber {
	return &Transcriber{
		endpoint:  cfg.ASR.Endpoint,
		vadFilter: cfg.ASR.VADFilter,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    slog.Default().With("component", "transcribe.asr"),
	}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "asr" }

// Transcribe uploads the audio file and returns its text and detected language.
func (t *Transcriber) Transcribe(ctx context.Context, path string, opts transcribe.Opts) (*transcribe.Result, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, transcribe.ErrEmptyAudio
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = message.AudioContentType(filepath.Ext(path))
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio_file"; filename=%q`, filepath.Base(path)))
	hdr.Set("Content-Type", contentType)
	part, err := writer.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Prompt != "" {
		q.Set("initial_prompt", opts.Prompt)
	}
	if t.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := t.endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	t.logger.Debug("asr request", "url", reqURL, "bytes", len(audio))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading asr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asr transcription failed (status %d): %.2048s", resp.StatusCode, raw)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("asr transcription: invalid JSON response")
	}

	text := strings.TrimSpace(gjson.GetBytes(raw, "text").String())
	if text == "" {
		return nil, transcribe.ErrEmptyTranscript
	}
	lang := strings.ToLower(strings.TrimSpace(gjson.GetBytes(raw, "language").String()))

	t.logger.Debug("asr transcription complete", "text_length", len(text), "language", lang)
	return &transcribe.Result{Text: text, Language: lang}, nil
}

// Close releases idle connections.
func (t *Transcriber) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
