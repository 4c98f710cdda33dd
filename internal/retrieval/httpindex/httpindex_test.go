package httpindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/medivoice/internal/config"
)

func newRetriever(url string) *Retriever {
	return New(config.RetrievalConfig{
		Backend: "http",
		TopK:    3,
		Timeout: 2 * time.Second,
		HTTP:    config.HTTPIndexConfig{Endpoint: url, APIKey: "k"},
	})
}

func TestSearchResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "passages",
			body: `{"passages":["Fever is common.","  ","Rest helps."]}`,
			want: []string{"Fever is common.", "Rest helps."},
		},
		{
			name: "results content",
			body: `{"results":[{"content":"a","score":0.9},{"content":"b"},{"content":"c"},{"content":"d"}]}`,
			want: []string{"a", "b", "c"},
		},
		{
			name: "results text",
			body: `{"results":[{"text":"t1"}]}`,
			want: []string{"t1"},
		},
		{
			name: "documents",
			body: `{"documents":[{"content":"doc"}]}`,
			want: []string{"doc"},
		},
		{
			name: "no matches",
			body: `{"results":[]}`,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
				var req searchRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "I have a headache", req.Query)
				assert.Equal(t, 3, req.TopK)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			r := newRetriever(srv.URL)
			defer r.Close()
			got, err := r.Search(context.Background(), "I have a headache")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "boom", "returned 500"},
		{"invalid json", http.StatusOK, "not json", "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newRetriever(srv.URL).Search(context.Background(), "q")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSearchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newRetriever(srv.URL).Search(ctx, "q")
	assert.Error(t, err)
}
