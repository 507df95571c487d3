package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/jsonutil"
)

// Parse turns raw tool output into a ReviewResult. It never fails: when no
// well-formed review object can be found, the whole raw text becomes the
// summary and there are no comments.
func Parse(raw string) ReviewResult {
	result, _ := TryParse(raw)
	return result
}

// TryParse is Parse that also reports whether the output was structured.
// The returned result is valid either way.
func TryParse(raw string) (ReviewResult, bool) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return plainResult(raw), false
	}
	result, err := decodeResult(obj)
	if err != nil {
		return plainResult(raw), false
	}
	return result, true
}

func plainResult(raw string) ReviewResult {
	return ReviewResult{Summary: raw, Comments: []ReviewComment{}}
}

// decodeResult decodes and validates obj against the review shape: a string
// summary, and optionally an array of comments each carrying a string path,
// an integer line and a string body. Keys match exactly; unknown ones are
// ignored.
func decodeResult(obj string) (ReviewResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return ReviewResult{}, fmt.Errorf("review: parse: %w", err)
	}

	summary, err := stringField(fields, "summary")
	if err != nil {
		return ReviewResult{}, fmt.Errorf("review: parse: %w", err)
	}
	result := ReviewResult{Summary: summary, Comments: []ReviewComment{}}

	rawComments, ok := fields["comments"]
	if !ok {
		return result, nil
	}
	var comments []map[string]json.RawMessage
	if err := json.Unmarshal(rawComments, &comments); err != nil {
		return ReviewResult{}, fmt.Errorf("review: parse: comments: %w", err)
	}
	if comments == nil {
		return ReviewResult{}, errors.New("review: parse: comments is null")
	}

	for i, c := range comments {
		if c == nil {
			return ReviewResult{}, fmt.Errorf("review: parse: comment %d is null", i)
		}
		path, err := stringField(c, "path")
		if err != nil {
			return ReviewResult{}, fmt.Errorf("review: parse: comment %d: %w", i, err)
		}
		body, err := stringField(c, "body")
		if err != nil {
			return ReviewResult{}, fmt.Errorf("review: parse: comment %d: %w", i, err)
		}
		rawLine, ok := c["line"]
		if !ok {
			return ReviewResult{}, fmt.Errorf("review: parse: comment %d: line is missing", i)
		}
		line, err := decodeLine(rawLine)
		if err != nil {
			return ReviewResult{}, fmt.Errorf("review: parse: comment %d: %w", i, err)
		}
		result.Comments = append(result.Comments, ReviewComment{Path: path, Line: line, Body: body})
	}
	return result, nil
}

// stringField returns fields[key], which must be present and a JSON string.
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", fmt.Errorf("%s is missing", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeLine accepts an integer, a float with no fractional part (12.0) or
// a string of digits ("12"), the forms tools are seen to emit.
func decodeLine(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("line: %w", err)
	}

	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return intLine(n)
		}
		f, err := x.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, fmt.Errorf("line: %s is not an integer", x)
		}
		return int(f), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("line: %q is not an integer", x)
		}
		return intLine(n)
	default:
		return 0, fmt.Errorf("line: %s is not an integer", raw)
	}
}

func intLine(n int64) (int, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("line: %d is out of range", n)
	}
	return int(n), nil
}
