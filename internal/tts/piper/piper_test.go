package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/medivoice/internal/config"
	"github.com/nadzzz/medivoice/internal/tts"
)

// fakePiper accepts one connection, records the synthesize event and replies
// with the given events.
func fakePiper(t *testing.T, reply func(conn net.Conn)) (string, <-chan event) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan event, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		evt, _, err := newEventReader(conn).next()
		if err != nil {
			return
		}
		got <- *evt
		reply(conn)
	}()
	return ln.Addr().String(), got
}

func TestSynthesize(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	addr, got := fakePiper(t, func(conn net.Conn) {
		_ = writeEvent(conn, event{Type: "audio-start", Data: map[string]any{"rate": 16000, "width": 2, "channels": 1}}, nil)
		_ = writeEvent(conn, event{Type: "audio-chunk"}, pcm[:4])
		_ = writeEvent(conn, event{Type: "audio-chunk"}, pcm[4:])
		_ = writeEvent(conn, event{Type: "audio-stop"}, nil)
	})

	s := New(config.PiperConfig{Endpoint: "tcp://" + addr}, "en", time.Second)
	audio, err := s.Synthesize(context.Background(), "Drink plenty of water.", tts.Opts{Language: "fr"})
	require.NoError(t, err)

	evt := <-got
	assert.Equal(t, "synthesize", evt.Type)
	assert.Equal(t, "Drink plenty of water.", evt.Data["text"])
	assert.Equal(t, map[string]any{"name": "fr_FR-siwis-medium"}, evt.Data["voice"])

	assert.Equal(t, "audio/wav", audio.ContentType)
	assert.Equal(t, ".wav", audio.Ext)
	require.Len(t, audio.Data, 44+len(pcm))
	assert.Equal(t, "RIFF", string(audio.Data[:4]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(audio.Data[24:28]))
	assert.Equal(t, pcm, audio.Data[44:])
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	addr, _ := fakePiper(t, func(conn net.Conn) {
		_ = writeEvent(conn, event{Type: "audio-start"}, nil)
		_ = writeEvent(conn, event{Type: "audio-stop"}, nil)
	})

	_, err := New(config.PiperConfig{Endpoint: addr}, "en", time.Second).
		Synthesize(context.Background(), "hello", tts.Opts{Language: "en"})
	assert.ErrorIs(t, err, tts.ErrEmptyOutput)
}

func TestSynthesizeServerError(t *testing.T) {
	addr, _ := fakePiper(t, func(conn net.Conn) {
		_ = writeEvent(conn, event{Type: "error", Data: map[string]any{"text": "voice not found"}}, nil)
	})

	_, err := New(config.PiperConfig{Endpoint: addr}, "en", time.Second).
		Synthesize(context.Background(), "hello", tts.Opts{})
	assert.ErrorContains(t, err, "voice not found")
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	_, err := New(config.PiperConfig{Endpoint: "127.0.0.1:1"}, "en", time.Second).
		Synthesize(context.Background(), "  ", tts.Opts{})
	assert.ErrorIs(t, err, tts.ErrEmptyText)
}

func TestRoute(t *testing.T) {
	s := New(config.PiperConfig{
		Endpoint:  "tcp://piper:10200",
		Endpoints: map[string]string{"FR": "piper-fr:10200"},
		Voices:    map[string]string{"en": "en_GB-alan-medium"},
	}, "en", 0)

	tests := []struct {
		opts         tts.Opts
		wantVoice    string
		wantEndpoint string
	}{
		{tts.Opts{Language: "en"}, "en_GB-alan-medium", "piper:10200"},
		{tts.Opts{Language: "fr"}, "fr_FR-siwis-medium", "piper-fr:10200"},
		{tts.Opts{Language: "xx"}, "en_GB-alan-medium", "piper:10200"},
		{tts.Opts{Language: ""}, "en_GB-alan-medium", "piper:10200"},
		{tts.Opts{Language: "de", Voice: "custom"}, "custom", "piper:10200"},
	}
	for _, tt := range tests {
		voice, endpoint := s.route(tt.opts)
		assert.Equal(t, tt.wantVoice, voice, "language %q", tt.opts.Language)
		assert.Equal(t, tt.wantEndpoint, endpoint, "language %q", tt.opts.Language)
	}
}

func TestEventRoundTripWithPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, event{Type: "audio-chunk", Data: map[string]any{"rate": 22050}}, []byte("pcm")))

	evt, payload, err := newEventReader(&buf).next()
	require.NoError(t, err)
	assert.Equal(t, "audio-chunk", evt.Type)
	assert.Equal(t, float64(22050), evt.Data["rate"])
	assert.Equal(t, []byte("pcm"), payload)
}

func TestEventReaderRejectsBadHeader(t *testing.T) {
	_, _, err := newEventReader(bytes.NewBufferString("garbage\n")).next()
	assert.ErrorContains(t, err, "invalid wyoming header")

	_, _, err = newEventReader(bytes.NewBufferString("2 -1\n{}\n")).next()
	assert.ErrorContains(t, err, "invalid payload length")

	_, _, err = newEventReader(bytes.NewBufferString(fmt.Sprintf("%d 0\n{}\n", maxEventJSON+1))).next()
	assert.ErrorContains(t, err, "invalid json length")

	_, _, err = newEventReader(bytes.NewBufferString("9223372036854775806 0\n{}\n")).next()
	assert.ErrorContains(t, err, "invalid json length")
}
