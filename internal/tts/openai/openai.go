// Package openai implements the TTS Synthesizer against an OpenAI-compatible
// /audio/speech endpoint and returns MP3 audio.
package openai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/tts"
)

// Synthesizer calls the speech endpoint.
type Synthesizer struct {
	client openai.Client
	model  string
	voice  string
	voices map[string]string
}

// New creates a speech synthesizer from config. timeout bounds each request;
// zero leaves it to the caller's context.
func New(cfg config.OpenAITTS, timeout time.Duration) *Synthesizer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	voices := make(map[string]string, len(cfg.Voices))
	for k, v := range cfg.Voices {
		voices[strings.ToLower(k)] = v
	}
	return &Synthesizer{client: openai.NewClient(opts...), model: cfg.Model, voice: voice, voices: voices}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "openai" }

// Synthesize requests MP3 speech for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.Opts) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	voice := opts.Voice
	if voice == "" {
		voice = s.voices[strings.ToLower(opts.Language)]
	}
	if voice == "" {
		voice = s.voice
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, tts.ErrEmptyOutput
	}
	return &tts.Audio{Data: audio, ContentType: "audio/mpeg", Ext: ".mp3"}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
