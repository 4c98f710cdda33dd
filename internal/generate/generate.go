// Package generate defines the interface for the language model that writes
// the doctor's reply.
//
// A request is either TextOnly (the conversation history as stored) or
// Multimodal (the history plus one synthetic user turn carrying text and an
// image). Both shapes go through the same Generate call so the two paths
// cannot drift apart. Generators never mutate the history they are given.
package generate

import (
	"context"
	"errors"

	"github.com/nadzzz/medivoice/internal/message"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("generate: empty response")

// Request is a generation request. The concrete types are TextOnly and Multimodal.
type Request interface {
	// Messages returns the stored history the request is built on.
	Messages() []message.Message

	isRequest()
}

// TextOnly asks for a reply to the history as is.
type TextOnly struct {
	History []message.Message
}

func (r TextOnly) Messages() []message.Message { return r.History }
func (TextOnly) isRequest()                    {}

// Image is an inline image attached to a multimodal request.
type Image struct {
	Data     []byte
	MIMEType string
}

// Multimodal asks for a reply to the history followed by one user turn made
// of UserText and Image. The extra turn exists only for this call.
type Multimodal struct {
	History  []message.Message
	Image    Image
	UserText string
}

func (r Multimodal) Messages() []message.Message { return r.History }
func (Multimodal) isRequest()                    {}

// Generator produces the assistant's reply.
type Generator interface {
	// Name returns the backend identifier.
	Name() string

	// Generate returns the model's reply text for req.
	Generate(ctx context.Context, req Request) (string, error)

	// Close releases any resources held by the generator.
	Close() error
}
