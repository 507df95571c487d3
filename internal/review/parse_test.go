package review

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Parse: structured output
// ---------------------------------------------------------------------------

func TestParse_StructuredOutput(t *testing.T) {
	t.Parallel()

	want := ReviewResult{
		Summary: "Two issues found.",
		Comments: []ReviewComment{
			{Path: "internal/server.go", Line: 12, Body: "Handle the error."},
			{Path: "README.md", Line: 3, Body: "Typo."},
		},
	}
	obj := `{"summary":"Two issues found.","comments":[` +
		`{"path":"internal/server.go","line":12,"body":"Handle the error."},` +
		`{"path":"README.md","line":3,"body":"Typo."}]}`

	tests := []struct {
		name string
		raw  string
	}{
		{name: "bare", raw: obj},
		{name: "fenced", raw: "```json\n" + obj + "\n```"},
		{name: "surrounded by prose", raw: "Here you go:\n" + obj + "\nHope this helps!"},
		{name: "after stderr noise", raw: "warning: deprecated flag\n" + obj},
		{name: "extra fields ignored", raw: strings.Replace(obj, `"summary"`, `"verdict":"ok","summary"`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, structured := TryParse(tt.raw)
			assert.True(t, structured)
			assert.Equal(t, want, got)
			assert.Equal(t, want, Parse(tt.raw))
		})
	}
}

func TestParse_MissingCommentsDefaultsToEmpty(t *testing.T) {
	t.Parallel()

	got := Parse(`{"summary":"LGTM"}`)
	assert.Equal(t, "LGTM", got.Summary)
	require.NotNil(t, got.Comments)
	assert.Empty(t, got.Comments)
}

func TestParse_PassesPathAndLineThrough(t *testing.T) {
	t.Parallel()

	got := Parse(`{"summary":"s","comments":[{"path":"../../etc/passwd","line":-7,"body":"odd"}]}`)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "../../etc/passwd", got.Comments[0].Path)
	assert.Equal(t, -7, got.Comments[0].Line)
}

func TestParse_AcceptsLenientLineNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want int
	}{
		{name: "integer", line: `12`, want: 12},
		{name: "integral float", line: `12.0`, want: 12},
		{name: "exponent", line: `1.2e1`, want: 12},
		{name: "digit string", line: `"12"`, want: 12},
		{name: "padded digit string", line: `" 12 "`, want: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw := `{"summary":"s","comments":[{"path":"a.go","line":` + tt.line + `,"body":"b"}]}`
			got, structured := TryParse(raw)
			require.True(t, structured, "summary: %q", got.Summary)
			require.Len(t, got.Comments, 1)
			assert.Equal(t, ReviewComment{Path: "a.go", Line: tt.want, Body: "b"}, got.Comments[0])
		})
	}
}

// ---------------------------------------------------------------------------
// Parse: fallback to plain text
// ---------------------------------------------------------------------------

func TestParse_FallsBackToRawText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace", raw: "  \n "},
		{name: "plain prose", raw: "The change looks fine overall."},
		{name: "truncated json", raw: `{"summary":"cut off","comments":[{"path":"a.go"`},
		{name: "summary missing", raw: `{"comments":[]}`},
		{name: "summary null", raw: `{"summary":null}`},
		{name: "summary not a string", raw: `{"summary":42}`},
		{name: "comments not an array", raw: `{"summary":"s","comments":"none"}`},
		{name: "comments null", raw: `{"summary":"s","comments":null}`},
		{name: "comment not an object", raw: `{"summary":"s","comments":["a.go:3 bad"]}`},
		{name: "comment missing body", raw: `{"summary":"s","comments":[{"path":"a.go","line":3}]}`},
		{name: "line is not numeric", raw: `{"summary":"s","comments":[{"path":"a.go","line":"three","body":"b"}]}`},
		{name: "line is a boolean", raw: `{"summary":"s","comments":[{"path":"a.go","line":true,"body":"b"}]}`},
		{name: "line is null", raw: `{"summary":"s","comments":[{"path":"a.go","line":null,"body":"b"}]}`},
		{name: "line is a fractional string", raw: `{"summary":"s","comments":[{"path":"a.go","line":"3.5","body":"b"}]}`},
		{name: "keys differ in case", raw: `{"Summary":"s","COMMENTS":[]}`},
		{name: "comment keys differ in case", raw: `{"summary":"s","comments":[{"Path":"a.go","line":3,"body":"b"}]}`},
		{name: "line is fractional", raw: `{"summary":"s","comments":[{"path":"a.go","line":3.5,"body":"b"}]}`},
		{name: "path not a string", raw: `{"summary":"s","comments":[{"path":7,"line":3,"body":"b"}]}`},
		{name: "array", raw: `[{"summary":"s"}]`},
		{name: "unbalanced braces", raw: `{{{ "summary": "x" `},
		{name: "binary noise", raw: "\x00\xff{\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, structured := TryParse(tt.raw)
			if tt.name == "array" {
				// The object inside the array is still a valid review.
				assert.True(t, structured)
				assert.Equal(t, "s", got.Summary)
				return
			}
			assert.False(t, structured)
			assert.Equal(t, tt.raw, got.Summary)
			require.NotNil(t, got.Comments)
			assert.Empty(t, got.Comments)
		})
	}
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestParse_RoundTripsOwnSerialization(t *testing.T) {
	t.Parallel()

	results := []ReviewResult{
		{Summary: "LGTM", Comments: []ReviewComment{}},
		{Summary: "has {braces} and \"quotes\"", Comments: []ReviewComment{
			{Path: "a/b.go", Line: 1, Body: "use `defer`"},
			{Path: "c.go", Line: 200, Body: "multi\nline\nbody"},
		}},
		{Summary: "多言語のサマリー", Comments: []ReviewComment{{Path: "x.py", Line: 9, Body: "ñ"}}},
	}

	for _, r := range results {
		data, err := json.Marshal(r)
		require.NoError(t, err)

		first := Parse(string(data))
		assert.Equal(t, r, first)

		again, err := json.Marshal(first)
		require.NoError(t, err)
		assert.Equal(t, first, Parse(string(again)))
	}
}

// FuzzParse verifies that Parse is total: it never panics and always yields
// a non-nil comment slice.
func FuzzParse(f *testing.F) {
	f.Add(`{"summary":"ok","comments":[]}`)
	f.Add("```json\n{\"summary\":\"x\"}\n```")
	f.Add(`{"summary":1}`)
	f.Add("")
	f.Add("{")

	f.Fuzz(func(t *testing.T, raw string) {
		got, structured := TryParse(raw)
		if got.Comments == nil {
			t.Fatalf("nil comments for %q", raw)
		}
		if !structured && got.Summary != raw {
			t.Fatalf("fallback summary %q differs from raw %q", got.Summary, raw)
		}
	})
}
