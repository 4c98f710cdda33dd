package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadzzz/medivoice/internal/retry"
	"github.com/nadzzz/medivoice/internal/voicestore"
)

// Result describes a stored voice file.
type Result struct {
	Name        string
	Path        string
	Size        int64
	CreatedAt   time.Time
	ContentType string
	Attempts    int
}

// Speaker synthesizes text into the voice store.
type Speaker struct {
	synth  Synthesizer
	store  *voicestore.Store
	policy retry.Policy
	logger *slog.Logger
}

// NewSpeaker creates a Speaker. Empty text is never retried.
func NewSpeaker(synth Synthesizer, store *voicestore.Store, policy retry.Policy) *Speaker {
	logger := slog.Default().With("component", "tts", "backend", synth.Name())
	userRetryable := policy.Retryable
	policy.Retryable = func(err error) bool {
		if errors.Is(err, ErrEmptyText) {
			return false
		}
		return userRetryable == nil || userRetryable(err)
	}
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn("synthesis attempt failed", "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
		if userOnRetry != nil {
			userOnRetry(attempt, err)
		}
	}
	return &Speaker{synth: synth, store: store, policy: policy, logger: logger}
}

// Speak synthesizes text and saves it as a voice file. Missing or zero-length
// audio counts as a failed attempt. Once attempts are exhausted the error
// wraps ErrSynthesisFailed.
func (s *Speaker) Speak(ctx context.Context, text, language string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, ErrEmptyText)
	}

	res, err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*Result, error) {
		audio, err := s.synth.Synthesize(ctx, text, Opts{Language: language})
		if err != nil {
			return nil, err
		}
		if audio == nil || len(audio.Data) == 0 {
			return nil, ErrEmptyOutput
		}

		v, err := s.store.Save(audio.Ext, audio.Data)
		if err != nil {
			return nil, err
		}
		if v.Size == 0 {
			_ = s.store.Remove(v.Name)
			return nil, ErrEmptyOutput
		}
		return &Result{
			Name:        v.Name,
			Path:        v.Path,
			Size:        v.Size,
			CreatedAt:   v.CreatedAt,
			ContentType: audio.ContentType,
			Attempts:    attempt,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	s.logger.Debug("voice saved", "file", res.Name, "bytes", res.Size, "attempts", res.Attempts)
	return res, nil
}

// Close closes the underlying synthesizer.
func (s *Speaker) Close() error { return s.synth.Close() }
