// Package http implements the HTTP transport for medivoice.
//
// It exposes the browser-facing REST API: multipart analyze uploads, one-time
// voice downloads and conversation resets, plus the Swagger UI.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/message"
	"github.com/nadzzz/medivoice/internal/pipeline"
	"github.com/nadzzz/medivoice/internal/transport"
	"github.com/nadzzz/medivoice/internal/voicestore"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to disk.
const multipartMemory = 8 << 20

// Transport implements transport.Transport over HTTP.
type Transport struct {
	cfg    config.HTTPConfig
	voices *voicestore.Store
	server *http.Server
	logger *slog.Logger
}

// New creates a new HTTP transport.
func New(cfg config.HTTPConfig, voices *voicestore.Store) *Transport {
	return &Transport{
		cfg:    cfg,
		voices: voices,
		logger: slog.Default().With("component", "transport.http"),
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler builds the routed, CORS-wrapped handler serving svc.
func (t *Transport) Handler(svc transport.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		t.handleAnalyze(w, r, svc)
	})
	mux.HandleFunc("GET /download-voice/{filename}", t.handleDownload)
	mux.HandleFunc("POST /reset/{conversation_id}", func(w http.ResponseWriter, r *http.Request) {
		t.handleReset(w, r, svc)
	})

	// Swagger UI serving the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return cors(t.cfg.AllowOrigins, mux)
}

// Listen starts the HTTP server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.cfg.Port),
		Handler:           t.Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.logger.Info("http transport listening", "port", t.cfg.Port)

	go func() {
		<-ctx.Done()
		t.logger.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// handleAnalyze processes a POST /analyze request.
//
// @Summary     Analyze a patient turn
// @Description Transcribes the recorded audio, looks up reference passages, asks the model for a
// @Description doctor reply (using the image when one is attached), synthesizes the reply and returns
// @Description the updated conversation. A missing conversation_id starts a new conversation.
// @Tags        analyze
// @Accept      multipart/form-data
// @Produce     json
// @Param       audio            formData  file    true   "Recorded patient speech"
// @Param       image            formData  file    false  "Optional image (e.g. a photo of the symptom)"
// @Param       conversation_id  formData  string  false  "Conversation to continue"
// @Success     200  {object}  message.AnalyzeResult  "Doctor reply and history"
// @Failure     400  {object}  message.ErrorResponse  "Missing audio or invalid form"
// @Failure     502  {object}  message.ErrorResponse  "Transcription or generation failed"
// @Router      /analyze [post]
func (t *Transport) handleAnalyze(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	maxBytes := t.cfg.MaxUploadMB << 20
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, message.ErrorResponse{Error: "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, message.ErrorResponse{Error: "invalid multipart form: " + err.Error()})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	audio, audioHdr, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, message.ErrorResponse{Error: "audio file is required"})
		return
	}
	defer audio.Close()

	req := &message.AnalyzeRequest{
		ConversationID: strings.TrimSpace(r.FormValue("conversation_id")),
		Audio:          upload(audio, audioHdr),
	}

	image, imageHdr, err := r.FormFile("image")
	switch {
	case err == nil:
		defer image.Close()
		req.Image = upload(image, imageHdr)
	case !errors.Is(err, http.ErrMissingFile):
		writeJSON(w, http.StatusBadRequest, message.ErrorResponse{Error: "invalid image: " + err.Error()})
		return
	}

	res, err := svc.Analyze(r.Context(), req)
	if err != nil {
		t.writeAnalyzeError(w, err, req.ConversationID)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		t.logger.Warn("writing analyze response failed", "conversation_id", res.ConversationID, "error", err)
		t.discardVoice(res)
	}
}

// discardVoice removes the voice file of a response the client never got.
func (t *Transport) discardVoice(res *message.AnalyzeResult) {
	if res.DoctorVoiceURL == nil {
		return
	}
	name := path.Base(*res.DoctorVoiceURL)
	if err := t.voices.Remove(name); err != nil {
		t.logger.Warn("removing undelivered voice file", "file", name, "error", err)
	}
}

func (t *Transport) writeAnalyzeError(w http.ResponseWriter, err error, convID string) {
	var se *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrNoAudio):
		writeJSON(w, http.StatusBadRequest, message.ErrorResponse{Error: err.Error()})
	case errors.As(err, &se):
		status := http.StatusBadGateway
		if se.Stage == pipeline.StageStorage || se.Stage == pipeline.StageConversation {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, message.ErrorResponse{
			Error:          se.Error(),
			Stage:          string(se.Stage),
			ConversationID: se.ConversationID,
		})
	default:
		t.logger.Error("analyze failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, message.ErrorResponse{Error: err.Error(), ConversationID: convID})
	}
}

// handleDownload streams a synthesized voice file once. The file is claimed
// before streaming so concurrent requests cannot both receive it.
//
// @Summary     Download a synthesized reply
// @Description Streams the audio file named in doctor_voice_url. The file is deleted once delivery ends, even if it was interrupted.
// @Tags        voice
// @Produce     audio/mpeg
// @Produce     audio/wav
// @Param       filename  path  string  true  "Voice file name"
// @Success     200  {file}    file                   "Audio"
// @Failure     404  {object}  message.ErrorResponse  "File not found"
// @Router      /download-voice/{filename} [get]
func (t *Transport) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	dl, err := t.voices.Claim(name)
	if err != nil {
		if !errors.Is(err, voicestore.ErrNotFound) && !errors.Is(err, voicestore.ErrInvalidName) {
			t.logger.Error("claiming voice file", "file", name, "error", err)
		}
		writeJSON(w, http.StatusNotFound, message.ErrorResponse{Error: "File not found"})
		return
	}
	defer func() {
		if err := dl.Close(); err != nil {
			t.logger.Warn("removing voice file", "file", name, "error", err)
		}
	}()

	w.Header().Set("Content-Type", message.AudioContentType(filepath.Ext(name)))
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, dl)
	if err != nil || n != dl.Info.Size() {
		t.logger.Warn("voice download interrupted, file discarded", "file", name, "sent", n, "error", err)
		return
	}
	t.logger.Debug("voice downloaded", "file", name, "bytes", n)
}

// handleReset clears a conversation.
//
// @Summary     Reset a conversation
// @Description Clears the stored history. Resetting an unknown conversation also succeeds.
// @Tags        conversation
// @Produce     json
// @Param       conversation_id  path  string  true  "Conversation to clear"
// @Success     200  {object}  message.ResetResponse
// @Router      /reset/{conversation_id} [post]
func (t *Transport) handleReset(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	id := r.PathValue("conversation_id")
	if err := svc.Reset(r.Context(), id); err != nil {
		t.logger.Error("reset failed", "conversation_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, message.ErrorResponse{Error: err.Error(), ConversationID: id})
		return
	}
	writeJSON(w, http.StatusOK, message.ResetResponse{Status: fmt.Sprintf("Conversation %s cleared", id)})
}

func upload(f multipart.File, hdr *multipart.FileHeader) *message.Upload {
	return &message.Upload{
		Reader:      f,
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
