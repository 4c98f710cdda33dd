// Package transport defines the contract between client-facing transports
// and the analyze pipeline.
//
// A transport only decodes requests and encodes responses. Everything about
// conversations, models and voices lives behind Service.
package transport

import (
	"context"

	"github.com/nadzzz/medivoice/internal/message"
)

// Service is what a transport serves.
type Service interface {
	// Analyze runs one patient turn through the pipeline.
	Analyze(ctx context.Context, req *message.AnalyzeRequest) (*message.AnalyzeResult, error)

	// Reset clears a conversation. It succeeds for unknown ids.
	Reset(ctx context.Context, conversationID string) error
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http").
	Name() string

	// Listen starts accepting requests and serves them with svc.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, svc Service) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
