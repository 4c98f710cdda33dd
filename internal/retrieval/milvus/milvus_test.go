package milvus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/medivoice/internal/config"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }

type fakeSearcher struct {
	results []client.SearchResult
	err     error

	gotCollection string
	gotField      string
	gotOutput     []string
	gotMetric     entity.MetricType
	gotTopK       int
	closed        bool
}

func (f *fakeSearcher) Search(_ context.Context, collName string, _ []string, _ string, outputFields []string,
	_ []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
	_ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.gotCollection = collName
	f.gotField = vectorField
	f.gotOutput = outputFields
	f.gotMetric = metricType
	f.gotTopK = topK
	return f.results, f.err
}

func (f *fakeSearcher) Close() error {
	f.closed = true
	return nil
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Backend: "milvus",
		TopK:    3,
		Milvus: config.MilvusConfig{
			Collection:  "medical_reference",
			VectorField: "embedding",
			TextField:   "content",
			MetricType:  "cosine",
		},
	}
}

func TestSearch(t *testing.T) {
	s := &fakeSearcher{results: []client.SearchResult{{
		ResultCount: 2,
		Fields: client.ResultSet{
			entity.NewColumnVarChar("content", []string{"Fever is a symptom.", "Hydrate often."}),
		},
	}}}
	r := newRetriever(s, fakeEmbedder{vec: []float32{0.1, 0.2}}, testConfig())

	got, err := r.Search(context.Background(), "fever")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fever is a symptom.", "Hydrate often."}, got)
	assert.Equal(t, "medical_reference", s.gotCollection)
	assert.Equal(t, "embedding", s.gotField)
	assert.Equal(t, []string{"content"}, s.gotOutput)
	assert.Equal(t, entity.COSINE, s.gotMetric)
	assert.Equal(t, 3, s.gotTopK)

	require.NoError(t, r.Close())
	assert.True(t, s.closed)
}

func TestSearchFailures(t *testing.T) {
	tests := []struct {
		name     string
		embedder fakeEmbedder
		searcher *fakeSearcher
	}{
		{
			name:     "embedding fails",
			embedder: fakeEmbedder{err: errors.New("embedding down")},
			searcher: &fakeSearcher{},
		},
		{
			name:     "search fails",
			embedder: fakeEmbedder{vec: []float32{1}},
			searcher: &fakeSearcher{err: errors.New("collection not loaded")},
		},
		{
			name:     "missing output field",
			embedder: fakeEmbedder{vec: []float32{1}},
			searcher: &fakeSearcher{results: []client.SearchResult{{ResultCount: 1}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRetriever(tt.searcher, tt.embedder, testConfig())
			_, err := r.Search(context.Background(), "q")
			assert.Error(t, err)
		})
	}
}

func TestMetricType(t *testing.T) {
	assert.Equal(t, entity.L2, metricType(""))
	assert.Equal(t, entity.L2, metricType("l2"))
	assert.Equal(t, entity.IP, metricType("ip"))
	assert.Equal(t, entity.COSINE, metricType("COSINE"))
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-3-small"})
	vec, err := e.Embed(context.Background(), "fever")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vec)
}
