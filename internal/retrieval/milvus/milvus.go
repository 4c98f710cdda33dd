// Package milvus implements retrieval over a Milvus collection of embedded
// reference passages. The query is embedded with an OpenAI-compatible model
// and the nearest passages are returned by the collection's text field.
package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/retrieval"
)

// vectorSearcher is the subset of client.Client the retriever needs.
type vectorSearcher interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// Retriever searches a Milvus collection.
type Retriever struct {
	search      vectorSearcher
	embed       Embedder
	collection  string
	vectorField string
	textField   string
	metric      entity.MetricType
	topK        int
	logger      *slog.Logger
}

// New connects to Milvus and returns a retriever using the configured embedder.
func New(ctx context.Context, cfg config.RetrievalConfig) (*Retriever, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Milvus.Address,
		Username: cfg.Milvus.Username,
		Password: cfg.Milvus.Password,
		DBName:   cfg.Milvus.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to milvus at %s: %w", cfg.Milvus.Address, err)
	}
	return newRetriever(c, NewOpenAIEmbedder(cfg.Embedding), cfg), nil
}

func newRetriever(s vectorSearcher, e Embedder, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{
		search:      s,
		embed:       e,
		collection:  cfg.Milvus.Collection,
		vectorField: cfg.Milvus.VectorField,
		textField:   cfg.Milvus.TextField,
		metric:      metricType(cfg.Milvus.MetricType),
		topK:        cfg.TopK,
		logger:      slog.Default().With("component", "retrieval.milvus", "collection", cfg.Milvus.Collection),
	}
}

// Name returns the backend identifier.
func (r *Retriever) Name() string { return "milvus" }

// Search embeds query and returns the text of the nearest passages.
func (r *Retriever) Search(ctx context.Context, query string) ([]string, error) {
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("building search params: %w", err)
	}

	results, err := r.search.Search(ctx, r.collection, nil, "", []string{r.textField},
		[]entity.Vector{entity.FloatVector(vec)}, r.vectorField, r.metric, r.topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var passages []string
	for _, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("milvus search: %w", res.Err)
		}
		col := res.Fields.GetColumn(r.textField)
		if col == nil {
			return nil, fmt.Errorf("milvus search: output field %q missing", r.textField)
		}
		for i := 0; i < res.ResultCount; i++ {
			text, err := col.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("reading passage %d: %w", i, err)
			}
			passages = append(passages, text)
		}
	}

	out := retrieval.Clean(passages, r.topK)
	r.logger.Debug("search complete", "passages", len(out))
	return out, nil
}

// Close disconnects from Milvus.
func (r *Retriever) Close() error { return r.search.Close() }

func metricType(s string) entity.MetricType {
	switch strings.ToUpper(s) {
	case "IP":
		return entity.IP
	case "COSINE":
		return entity.COSINE
	default:
		return entity.L2
	}
}
