package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/transcribe"
)

func writeAudio(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "temp_audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestTranscriber(url string) *Transcriber {
	return New(config.TranscriptionConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "whisper-large-v3",
		Timeout: 5 * time.Second,
	})
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "ID3 fake audio", string(body))
		assert.Equal(t, "temp_audio.mp3", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task":"transcribe","language":"English","duration":2.1,"text":" I have a headache and fever ","segments":[]}`)
	}))
	defer srv.Close()

	res, err := newTestTranscriber(srv.URL).Transcribe(context.Background(), writeAudio(t, "ID3 fake audio"), transcribe.Opts{})
	require.NoError(t, err)
	assert.Equal(t, "I have a headache and fever", res.Text)
	assert.Equal(t, "en", res.Language)
}

func TestTranscribeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		audio   string
		wantErr error
	}{
		{
			name:    "blank text",
			status:  http.StatusOK,
			body:    `{"text":"   ","language":"english"}`,
			audio:   "audio",
			wantErr: transcribe.ErrEmptyTranscript,
		},
		{
			name:   "upstream rejects format",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"file must be one of the supported formats","type":"invalid_request_error"}}`,
			audio:  "audio",
		},
		{
			name:    "empty audio file",
			status:  http.StatusOK,
			body:    `{"text":"never reached"}`,
			audio:   "",
			wantErr: transcribe.ErrEmptyAudio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestTranscriber(srv.URL).Transcribe(context.Background(), writeAudio(t, tt.audio), transcribe.Opts{})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	_, err := newTestTranscriber("http://127.0.0.1:1").Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), transcribe.Opts{})
	assert.ErrorContains(t, err, "opening audio")
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"english": "en",
		"English": "en",
		"fr":      "fr",
		"EN":      "en",
		"urdu":    "ur",
		"klingon": "klingon",
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeLanguage(in), "input %q", in)
	}
}
