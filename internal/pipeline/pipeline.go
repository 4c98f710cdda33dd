// Package pipeline implements the analyze flow: one patient turn goes in,
// a doctor reply with optional voice and the updated history comes out.
//
// Stages run strictly in order:
//
//	transcribe → retrieve → update history → generate → append turn → synthesize
//
// Transcription and generation failures abort the request. Retrieval and
// synthesis failures degrade the result and are reported as warnings.
// Uploaded files live under a tempfile.Guard that is released on every exit
// path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/medivoice/internal/conversation"
	"github.com/nadzzz/medivoice/internal/generate"
	"github.com/nadzzz/medivoice/internal/message"
	"github.com/nadzzz/medivoice/internal/metrics"
	"github.com/nadzzz/medivoice/internal/retrieval"
	"github.com/nadzzz/medivoice/internal/tempfile"
	"github.com/nadzzz/medivoice/internal/transcribe"
	"github.com/nadzzz/medivoice/internal/tts"
)

// userPrefix starts every persisted patient turn.
const userPrefix = "Patient said: "

// Speaker turns reply text into a stored voice file.
type Speaker interface {
	Speak(ctx context.Context, text, language string) (*tts.Result, error)
}

// Config holds the pipeline settings.
type Config struct {
	// TempDir receives uploaded audio and images for the length of a request.
	TempDir string

	// PublicURL prefixes doctor_voice_url, e.g. "http://127.0.0.1:8000".
	PublicURL string

	// DefaultLanguage is used when transcription reports no language.
	DefaultLanguage string

	TranscriptionTimeout time.Duration
	RetrievalTimeout     time.Duration
	GenerationTimeout    time.Duration
}

// Deps are the collaborators of a Pipeline. Retriever, Speaker and Metrics
// are optional.
type Deps struct {
	Transcriber transcribe.Transcriber
	Retriever   retrieval.Retriever
	Generator   generate.Generator
	Speaker     Speaker
	Store       *conversation.Store
	Metrics     *metrics.Metrics
}

// Pipeline runs analyze requests.
type Pipeline struct {
	cfg         Config
	transcriber transcribe.Transcriber
	retriever   retrieval.Retriever
	generator   generate.Generator
	speaker     Speaker
	store       *conversation.Store
	metrics     *metrics.Metrics
	newID       func() string
	logger      *slog.Logger
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	r := deps.Retriever
	if r == nil {
		r = retrieval.Nop{}
	}
	return &Pipeline{
		cfg:         cfg,
		transcriber: deps.Transcriber,
		retriever:   r,
		generator:   deps.Generator,
		speaker:     deps.Speaker,
		store:       deps.Store,
		metrics:     deps.Metrics,
		newID:       uuid.NewString,
		logger:      slog.Default().With("component", "pipeline"),
	}
}

// Analyze processes one patient turn. Fatal failures are returned as
// *StageError; degraded stages are listed in the result's Warnings.
func (p *Pipeline) Analyze(ctx context.Context, req *message.AnalyzeRequest) (*message.AnalyzeResult, error) {
	if req == nil || req.Audio == nil || req.Audio.Reader == nil {
		return nil, ErrNoAudio
	}

	start := time.Now()
	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = p.newID()
	}
	logger := p.logger.With("conversation_id", convID)
	fail := func(stage Stage, err error) error {
		logger.Error("analyze aborted", "stage", stage, "error", err)
		return &StageError{Stage: stage, ConversationID: convID, Err: err}
	}

	guard, err := tempfile.NewGuard(p.cfg.TempDir)
	if err != nil {
		return nil, fail(StageStorage, err)
	}
	defer func() {
		if err := guard.Release(); err != nil {
			p.metrics.ObserveStage(string(StageStorage), metrics.OutcomeError, 0)
			logger.Warn("temporary file cleanup failed", "error", &StageError{Stage: StageStorage, ConversationID: convID, Err: err})
		}
	}()

	audioPath, audioBytes, err := guard.Write("temp_audio", message.AudioExt(req.Audio.ContentType, req.Audio.Filename), req.Audio.Reader)
	if err != nil {
		return nil, fail(StageStorage, err)
	}

	var img *generate.Image
	if req.HasImage() {
		if img, err = p.readImage(guard, req.Image); err != nil {
			return nil, fail(StageStorage, err)
		}
	}

	logger.Info("analyze started", "audio_bytes", audioBytes, "has_image", img != nil)

	// Transcribe.
	tr, err := runStage(ctx, p, StageTranscription, p.cfg.TranscriptionTimeout, func(ctx context.Context) (*transcribe.Result, error) {
		return p.transcriber.Transcribe(ctx, audioPath, transcribe.Opts{ContentType: req.Audio.ContentType})
	})
	if err != nil {
		return nil, fail(StageTranscription, err)
	}
	language := tr.Language
	if language == "" {
		language = p.cfg.DefaultLanguage
	}
	logger.Info("transcription complete", "text_length", len(tr.Text), "language", language)

	var warnings []string

	// Retrieve reference passages. Failure means no passages.
	passages, err := runStage(ctx, p, StageRetrieval, p.cfg.RetrievalTimeout, func(ctx context.Context) ([]string, error) {
		return p.retriever.Search(ctx, tr.Text)
	})
	if err != nil {
		logger.Warn("retrieval failed, continuing without reference context", "error", err)
		warnings = append(warnings, fmt.Sprintf("reference lookup unavailable: %v", err))
		passages = nil
	}

	// Update history under the conversation lock. The system prompt must be
	// in place before reference context can be merged into it.
	h, err := p.store.Acquire(ctx, convID)
	if err != nil {
		return nil, fail(StageConversation, err)
	}
	defer h.Release()

	h.EnsureSystemPrompt(language)
	merged := h.MergeReferenceContext(passages)
	logger.Debug("history updated", "messages", h.Len(), "passages", len(passages), "merged", merged)

	// Generate. Nothing is persisted until the model has answered.
	userText := userPrefix + tr.Text
	history := h.Messages()
	var genReq generate.Request
	if img != nil {
		genReq = generate.Multimodal{History: history, Image: *img, UserText: userText}
	} else {
		genReq = generate.TextOnly{History: append(history, message.Message{Role: message.RoleUser, Content: userText})}
	}
	reply, err := runStage(ctx, p, StageGeneration, p.cfg.GenerationTimeout, func(ctx context.Context) (string, error) {
		return p.generator.Generate(ctx, genReq)
	})
	if err != nil {
		return nil, fail(StageGeneration, err)
	}

	h.Append(message.RoleUser, userText)
	h.Append(message.RoleAssistant, reply)

	// Synthesize. Failure leaves the reply text-only.
	var voiceURL *string
	if p.speaker != nil {
		url, err := p.synthesize(ctx, h, reply, language)
		if err != nil {
			logger.Warn("synthesis failed, responding without audio", "error", err)
			warnings = append(warnings, fmt.Sprintf("voice unavailable: %v", err))
		} else {
			voiceURL = &url
		}
	}

	msgs := h.Messages()
	h.Release()

	logger.Info("analyze complete", "duration", time.Since(start), "messages", len(msgs), "voice", voiceURL != nil, "warnings", len(warnings))
	return &message.AnalyzeResult{
		SpeechToText:     tr.Text,
		DoctorResponse:   reply,
		DetectedLanguage: language,
		ConversationID:   convID,
		DoctorVoiceURL:   voiceURL,
		Messages:         msgs,
		Warnings:         warnings,
	}, nil
}

// Reset clears a conversation. Unknown ids are not an error.
func (p *Pipeline) Reset(ctx context.Context, conversationID string) error {
	if err := p.store.Reset(ctx, conversationID); err != nil {
		return &StageError{Stage: StageConversation, ConversationID: conversationID, Err: err}
	}
	p.logger.Info("conversation reset", "conversation_id", conversationID)
	return nil
}

// VoiceURL returns the download URL for a stored voice file.
func (p *Pipeline) VoiceURL(name string) string {
	return p.cfg.PublicURL + "/download-voice/" + name
}

func (p *Pipeline) synthesize(ctx context.Context, h *conversation.Handle, text, language string) (string, error) {
	start := time.Now()
	res, err := p.speaker.Speak(ctx, text, language)
	if err != nil {
		p.metrics.ObserveStage(string(StageSynthesis), metrics.OutcomeError, time.Since(start))
		return "", err
	}
	p.metrics.ObserveStage(string(StageSynthesis), metrics.OutcomeOK, time.Since(start))
	p.metrics.SynthesisAttempts(1)

	url := p.VoiceURL(res.Name)
	if err := h.AnnotateLast(conversation.AnnotationAudioReference, url); err != nil {
		return "", err
	}
	return url, nil
}

// readImage stores the image and loads it for the model. A zero-length
// image means a text-only turn.
func (p *Pipeline) readImage(guard *tempfile.Guard, up *message.Upload) (*generate.Image, error) {
	ext, mime := message.ImageType(up.ContentType, up.Filename)
	path, n, err := guard.Write("temp_image", ext, up.Reader)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return &generate.Image{Data: data, MIMEType: mime}, nil
}

// runStage runs fn under the stage timeout and records its duration.
// Retrieval failures are recorded as degraded rather than errors.
func runStage[T any](ctx context.Context, p *Pipeline, stage Stage, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := fn(ctx)
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case stage == StageRetrieval:
		outcome = metrics.OutcomeDegraded
	default:
		outcome = metrics.OutcomeError
	}
	p.metrics.ObserveStage(string(stage), outcome, time.Since(start))

	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s timed out: %w", stage, err)
	}
	return v, err
}
