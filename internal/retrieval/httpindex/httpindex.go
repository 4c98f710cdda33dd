// Package httpindex implements retrieval against a JSON search endpoint.
//
// The endpoint receives {"query": "...", "top_k": N} and may answer in any of
// the shapes common to RAG gateways:
//
//	{"passages": ["...", "..."]}
//	{"results": [{"content": "..."}, {"text": "..."}]}
//	{"documents": [{"content": "..."}]}
package httpindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/retrieval"
)

// maxResponseBytes bounds how much of the index response is read.
const maxResponseBytes = 4 << 20

var passagePaths = []string{
	"passages",
	"results.#.content",
	"results.#.text",
	"documents.#.content",
	"documents.#.text",
}

// Retriever queries a remote search endpoint.
type Retriever struct {
	endpoint string
	apiKey   string
	topK     int
	client   *http.Client
	logger   *slog.Logger
}

// New creates a new HTTP index retriever.
func New(cfg config.RetrievalConfig) *Retriever {
	return &Retriever{
		endpoint: cfg.HTTP.Endpoint,
		apiKey:   cfg.HTTP.APIKey,
		topK:     cfg.TopK,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   slog.Default().With("component", "retrieval.http"),
	}
}

// Name returns the backend identifier.
func (r *Retriever) Name() string { return "http" }

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Search posts the query and extracts passage text from the response.
func (r *Retriever) Search(ctx context.Context, query string) ([]string, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: r.topK})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("search endpoint returned invalid JSON")
	}

	var passages []string
	for _, path := range passagePaths {
		res := gjson.GetBytes(raw, path)
		if !res.IsArray() {
			continue
		}
		for _, item := range res.Array() {
			passages = append(passages, item.String())
		}
		if len(passages) > 0 {
			break
		}
	}

	out := retrieval.Clean(passages, r.topK)
	r.logger.Debug("search complete", "passages", len(out))
	return out, nil
}

// Close releases idle connections.
func (r *Retriever) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
