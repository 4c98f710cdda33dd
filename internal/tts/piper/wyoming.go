package piper

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wyoming frames each event as:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

const (
	// maxEventJSON bounds the JSON header of one event.
	maxEventJSON = 1 << 20
	// maxPayload bounds a single audio chunk.
	maxPayload = 16 << 20
)

func writeEvent(w io.Writer, evt event, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

type eventReader struct {
	br *bufio.Reader
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{br: bufio.NewReader(r)}
}

func (r *eventReader) next() (*event, []byte, error) {
	header, err := r.br.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", header)
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil || jsonLen < 0 || jsonLen > maxEventJSON {
		return nil, nil, fmt.Errorf("invalid json length %q", fields[0])
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil || payloadLen < 0 || payloadLen > maxPayload {
		return nil, nil, fmt.Errorf("invalid payload length %q", fields[1])
	}

	body := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}
	var evt event
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}

// pcmFormat is the stream format announced by audio-start.
type pcmFormat struct {
	Rate     int
	Width    int // bytes per sample
	Channels int
}

func (f *pcmFormat) update(data map[string]any) {
	if v, ok := data["rate"].(float64); ok && v > 0 {
		f.Rate = int(v)
	}
	if v, ok := data["width"].(float64); ok && v > 0 {
		f.Width = int(v)
	}
	if v, ok := data["channels"].(float64); ok && v > 0 {
		f.Channels = int(v)
	}
}

// wav wraps raw little-endian PCM in a 44-byte RIFF header.
func (f pcmFormat) wav(pcm []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	le := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	le(uint32(36 + len(pcm)))
	buf.WriteString("WAVEfmt ")
	le(uint32(16))
	le(uint16(1))
	le(uint16(f.Channels))
	le(uint32(f.Rate))
	le(uint32(f.Rate * f.Channels * f.Width))
	le(uint16(f.Channels * f.Width))
	le(uint16(f.Width * 8))
	buf.WriteString("data")
	le(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
