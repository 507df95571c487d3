package agent

import (
	"encoding/json"
	"strings"
)

// envelopeField decodes the leading JSON object of raw and returns the named
// string field. Trailing text after the object (stderr appended by the
// runner) is ignored. It returns false when raw does not start with a JSON
// object or the field is absent or not a string.
func envelopeField(raw, field string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}

	var envelope map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(trimmed))
	if err := dec.Decode(&envelope); err != nil {
		return "", false
	}

	rawField, ok := envelope[field]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(rawField, &value); err != nil {
		return "", false
	}
	return value, true
}

// logDegraded records that a tool's output did not have its expected shape
// and the raw text is being used instead.
func logDegraded(logger debugLogger, tool, expected string, rawLen int) {
	if logger == nil {
		return
	}
	logger.Debug("tool output not in expected shape, using raw text",
		"tool", tool,
		"expected", expected,
		"raw_len", rawLen,
	)
}

// logRun records an invocation before it starts.
func logRun(logger debugLogger, tool string, cmd Command) {
	if logger == nil {
		return
	}
	logger.Debug("running tool",
		"tool", tool,
		"command", cmd.String(),
		"work_dir", cmd.Dir,
	)
}
