// Package message defines the core data types flowing through the medivoice pipeline.
package message

import (
	"io"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	// RoleSystem carries the persona instructions. At most one per conversation, always first.
	RoleSystem Role = "system"

	// RoleUser is a patient turn.
	RoleUser Role = "user"

	// RoleAssistant is a doctor reply produced by the generation engine.
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	// Role is the author of the turn.
	Role Role `json:"role"`

	// Content is the turn text.
	Content string `json:"content"`

	// AudioReference locates the synthesized speech for this turn.
	// Only set on assistant turns whose synthesis succeeded.
	AudioReference string `json:"audio_reference,omitempty"`

	// Meta holds any other annotations attached after the turn was appended.
	Meta map[string]string `json:"meta,omitempty"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Meta != nil {
		meta := make(map[string]string, len(m.Meta))
		for k, v := range m.Meta {
			meta[k] = v
		}
		m.Meta = meta
	}
	return m
}

// CloneAll returns a deep copy of a message sequence.
func CloneAll(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Upload is a binary payload received from a client.
type Upload struct {
	// Reader yields the payload bytes. The pipeline reads it once.
	Reader io.Reader

	// Filename is the client-supplied name, used only to pick a file extension.
	Filename string

	// ContentType is the client-supplied MIME type (e.g., "audio/mpeg", "image/png").
	ContentType string
}

// AnalyzeRequest is one patient turn submitted to the pipeline.
type AnalyzeRequest struct {
	// ConversationID selects the conversation. Empty means start a new one.
	ConversationID string

	// Audio is the recorded patient speech. Required.
	Audio *Upload

	// Image is an optional picture accompanying the turn.
	Image *Upload
}

// HasImage returns true if the request carries an image.
func (r *AnalyzeRequest) HasImage() bool {
	return r.Image != nil && r.Image.Reader != nil
}

// AnalyzeResult is the outcome of one pipeline run.
type AnalyzeResult struct {
	// SpeechToText is the transcript of the patient audio.
	SpeechToText string `json:"speech_to_text"`

	// DoctorResponse is the generated reply text.
	DoctorResponse string `json:"doctor_response"`

	// DetectedLanguage is the ISO-639-1 code detected during transcription.
	DetectedLanguage string `json:"detected_language"`

	// ConversationID is the (possibly newly issued) conversation key.
	ConversationID string `json:"conversation_id"`

	// DoctorVoiceURL is the one-time download URL of the spoken reply, or null
	// when synthesis was disabled or failed.
	DoctorVoiceURL *string `json:"doctor_voice_url"`

	// Messages is the full conversation history after this turn.
	Messages []Message `json:"messages"`

	// Warnings lists non-fatal stage failures (retrieval, synthesis).
	Warnings []string `json:"warnings,omitempty"`
}

// ErrorResponse is returned to the client when a fatal stage aborts the request.
type ErrorResponse struct {
	Error          string `json:"error"`
	Stage          string `json:"stage,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ResetResponse acknowledges a conversation reset.
type ResetResponse struct {
	Status string `json:"status"`
}
