// Package jsonutil locates a JSON object inside the freeform text that review
// CLIs print: model prose, markdown fences, terminal colour codes and all.
package jsonutil

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxInputBytes is the maximum number of bytes we will process. Larger inputs
// are treated as containing no object.
const maxInputBytes = 10 * 1024 * 1024 // 10 MB

// reANSI matches ANSI escape codes (CSI sequences) that AI CLIs may embed in
// their output. We strip these before attempting JSON extraction.
var reANSI = regexp.MustCompile(`\x1b\[[0-9;]*[mGKHF]`)

// reJSONFence matches the first markdown fence tagged "json" (any case) whose
// body is brace-delimited. The non-greedy body stops at the first closing
// brace that is followed by the closing fence.
var reJSONFence = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")

// sanitize strips a leading UTF-8 BOM and ANSI escape codes from text.
func sanitize(text string) string {
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")
	return reANSI.ReplaceAllString(text, "")
}

// ExtractObject returns the JSON object text found in text. Strategies are
// tried in order of reliability:
//  1. the first ```json fenced block, when its content is an object
//  2. the whole trimmed text, when it is an object
//  3. the first balanced {...} span that is an object; a balanced span that
//     fails to decode is skipped and scanning resumes after it
//
// It returns ("", false) when no object is found. It never panics.
func ExtractObject(text string) (string, bool) {
	if len(text) > maxInputBytes {
		return "", false
	}
	text = sanitize(text)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	if m := reJSONFence.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if IsObject(candidate) {
			return candidate, true
		}
	}

	if IsObject(trimmed) {
		return trimmed, true
	}

	return scanBalanced(text)
}

// IsObject reports whether s decodes as a single JSON object.
func IsObject(s string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil && obj != nil
}

// scanBalanced returns the first balanced brace span in text that decodes as
// an object.
func scanBalanced(text string) (string, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchingBrace(text, i)
		if end < 0 {
			// Nothing after an unclosed brace can close either.
			return "", false
		}
		if candidate := text[i : end+1]; IsObject(candidate) {
			return candidate, true
		}
		i = end
	}
	return "", false
}

// matchingBrace returns the index of the '}' that closes the '{' at position
// start in text, or -1 when the text ends first. Braces inside double-quoted
// strings are ignored and backslash escapes inside strings are honoured.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	n := len(text)

	for i := start; i < n; i++ {
		ch := text[i]

		if inString {
			switch ch {
			case '\\':
				i++ // skip the escaped character
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
