// Package transcribe defines the interface for speech-to-text engines.
//
// A Transcriber turns the patient's recorded audio into text and reports the
// language it heard. The language tag is threaded through the system prompt
// and voice selection downstream.
package transcribe

import (
	"context"
	"errors"
)

// ErrEmptyTranscript is returned when the engine produced no text.
var ErrEmptyTranscript = errors.New("transcribe: empty transcript")

// ErrEmptyAudio is returned when the audio file has no content.
var ErrEmptyAudio = errors.New("transcribe: empty audio")

// Opts controls transcription behavior.
type Opts struct {
	// ContentType is the MIME type of the audio (e.g., "audio/mpeg").
	ContentType string

	// Language is an optional ISO-639-1 hint; empty lets the engine detect it.
	Language string

	// Prompt provides context to improve recognition of domain-specific terms.
	Prompt string
}

// Result holds the output of transcription.
type Result struct {
	// Text is the recognized speech.
	Text string

	// Language is the detected ISO-639-1 code, or empty if the engine did not report one.
	Language string
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	// Name returns the backend identifier.
	Name() string

	// Transcribe reads the audio at path and returns the recognized text.
	Transcribe(ctx context.Context, path string, opts Opts) (*Result, error)

	// Close releases any resources held by the transcriber.
	Close() error
}
