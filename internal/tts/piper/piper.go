// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. Voices are chosen
// by the language detected in the patient's speech; per-language Piper
// instances can be configured when one server cannot hold every voice.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/tts"
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
var defaultVoices = map[string]string{
	"en": "en_US-lessac-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"nl": "nl_NL-mls-medium",
	"pl": "pl_PL-darkman-medium",
	"ru": "ru_RU-ruslan-medium",
	"zh": "zh_CN-huayan-medium",
	"ar": "ar_JO-kareem-medium",
	"hi": "hi_IN-pratham-medium",
	"tr": "tr_TR-dfki-medium",
	"fa": "fa_IR-amir-medium",
}

const defaultTimeout = 30 * time.Second

// Synthesizer implements tts.Synthesizer over the Wyoming protocol.
type Synthesizer struct {
	endpoint        string
	endpoints       map[string]string
	voices          map[string]string
	defaultLanguage string
	timeout         time.Duration
	logger          *slog.Logger
}

// New creates a new Piper synthesizer. Languages without a voice fall back
// to defaultLanguage.
func New(cfg config.PiperConfig, defaultLanguage string, timeout time.Duration) *Synthesizer {
	voices := make(map[string]string, len(defaultVoices)+len(cfg.Voices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[strings.ToLower(k)] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[strings.ToLower(lang)] = hostPort(ep)
	}

	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Synthesizer{
		endpoint:        hostPort(cfg.Endpoint),
		endpoints:       endpoints,
		voices:          voices,
		defaultLanguage: defaultLanguage,
		timeout:         timeout,
		logger:          slog.Default().With("component", "tts.piper"),
	}
}

func hostPort(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return strings.TrimSuffix(ep, "/")
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "piper" }

// route picks the voice and endpoint for a language.
func (s *Synthesizer) route(opts tts.Opts) (voice, endpoint string) {
	lang := strings.ToLower(opts.Language)
	if _, ok := s.voices[lang]; !ok {
		lang = s.defaultLanguage
	}

	voice = opts.Voice
	if voice == "" {
		voice = s.voices[lang]
	}
	endpoint = s.endpoints[lang]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	return voice, endpoint
}

// Synthesize sends text to the Piper server and returns the speech as WAV.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.Opts) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	voice, endpoint := s.route(opts)
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", opts.Language)
	}

	s.logger.Debug("synthesize", "text_length", len(text), "voice", voice, "language", opts.Language, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	req := event{Type: "synthesize", Data: map[string]any{"text": text}}
	if voice != "" {
		req.Data["voice"] = map[string]any{"name": voice}
	}
	if err := writeEvent(conn, req, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	r := newEventReader(conn)
	var (
		pcm    bytes.Buffer
		format = pcmFormat{Rate: 22050, Width: 2, Channels: 1}
	)
	for {
		evt, payload, err := r.next()
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			format.update(evt.Data)
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			if pcm.Len() == 0 {
				return nil, tts.ErrEmptyOutput
			}
			s.logger.Debug("audio complete", "pcm_bytes", pcm.Len(), "rate", format.Rate)
			return &tts.Audio{
				Data:        format.wav(pcm.Bytes()),
				ContentType: "audio/wav",
				Ext:         ".wav",
			}, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		}
	}
}

// Close is a no-op; connections are per request.
func (s *Synthesizer) Close() error { return nil }
