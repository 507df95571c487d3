package agent

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// OpenCodeEventText is the event type carrying a fragment of the model's
// answer in opencode's --format json output.
const OpenCodeEventText = "text"

// OpenCodeEvent is a single JSONL event from `opencode run --format json`.
// Only the fields needed to reassemble the answer are decoded.
type OpenCodeEvent struct {
	Type string        `json:"type"`
	Part *OpenCodePart `json:"part,omitempty"`
}

// OpenCodePart is the payload of an event.
type OpenCodePart struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// maxScannerBuffer is the maximum line length the decoder can handle (1MB).
const maxScannerBuffer = 1 << 20

// StreamDecoder reads JSONL events from an io.Reader line-by-line. Lines
// that are not valid JSON are skipped, since tools interleave log lines with
// events.
type StreamDecoder struct {
	scanner *bufio.Scanner
}

// NewStreamDecoder creates a decoder that reads JSONL from r.
// The scanner buffer is sized to handle lines up to 1MB.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)
	return &StreamDecoder{scanner: scanner}
}

// Next returns the next decodable event, or io.EOF at the end of the stream.
// A scanner failure (for example an over-long line) is returned as is.
func (d *StreamDecoder) Next() (*OpenCodeEvent, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var event OpenCodeEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		return &event, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// CollectText concatenates the text of every "text" event in raw. It
// returns false when no text event was found or the stream could not be read.
func CollectText(raw string) (string, bool) {
	dec := NewStreamDecoder(strings.NewReader(raw))
	var sb strings.Builder
	found := false
	for {
		event, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false
		}
		if event.Type == OpenCodeEventText && event.Part != nil {
			sb.WriteString(event.Part.Text)
			found = true
		}
	}
	return sb.String(), found
}
