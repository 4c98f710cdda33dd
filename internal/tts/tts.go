// Package tts defines the interface for text-to-speech synthesis and the
// Speaker that turns a doctor reply into a downloadable voice file.
//
// Synthesis engines are known to return empty audio under rate limiting or
// partial writes, so the Speaker treats an empty artifact as transient and
// retries under an explicit policy.
package tts

import (
	"context"
	"errors"
)

var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrEmptyOutput is returned when the engine produced no audio.
	ErrEmptyOutput = errors.New("tts: empty output")

	// ErrSynthesisFailed wraps the last error once every attempt has failed.
	ErrSynthesisFailed = errors.New("tts: synthesis failed")
)

// Opts controls synthesis behavior.
type Opts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr", "es") to select the voice.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Audio is an encoded audio clip.
type Audio struct {
	Data        []byte
	ContentType string // e.g. "audio/wav"
	Ext         string // file extension including the dot, e.g. ".wav"
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the backend identifier.
	Name() string

	// Synthesize generates audio for text.
	Synthesize(ctx context.Context, text string, opts Opts) (*Audio, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}
