// Package retrieval defines the reference-passage lookup used to ground the
// doctor's reply.
//
// Retrieval is best-effort: callers treat a failure as "no passages" and keep
// going, so implementations should return errors rather than panics and never
// block past their context.
package retrieval

import (
	"context"
	"strings"
)

// Retriever returns reference passages relevant to a query, most relevant first.
type Retriever interface {
	// Name returns the backend identifier.
	Name() string

	// Search returns at most the configured number of passages for query.
	Search(ctx context.Context, query string) ([]string, error)

	// Close releases any resources held by the retriever.
	Close() error
}

// Nop is a Retriever that never finds anything. It backs the "none" backend.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) Search(context.Context, string) ([]string, error) { return nil, nil }

func (Nop) Close() error { return nil }

// Clean trims passages, drops blank ones and caps the result at topK.
// A non-positive topK leaves the length unbounded.
func Clean(passages []string, topK int) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out
}
