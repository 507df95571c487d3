package review

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed review.tmpl
var reviewTemplateText string

//go:embed synthesis.tmpl
var synthesisTemplateText string

// Prompts are passed to the tools as a single argv element, which Linux caps
// at 128 KiB (MAX_ARG_STRLEN). The limits below keep every prompt under it.
const (
	// maxDiffBytes bounds the diff in a review prompt.
	maxDiffBytes = 100 * 1024

	// maxSynthesisDiffBytes bounds the diff in a synthesis prompt.
	maxSynthesisDiffBytes = 48 * 1024

	// maxSynthesisReviewBytes bounds each review quoted in a synthesis prompt.
	maxSynthesisReviewBytes = 12 * 1024
)

// defaultLanguage is used when a policy leaves the language empty.
const defaultLanguage = "en"

// jsonSchemaExample is the output shape every prompt asks for.
const jsonSchemaExample = `{
  "summary": "Overall review summary",
  "comments": [
    {
      "path": "src/example.go",
      "line": 42,
      "body": "Specific inline review comment"
    }
  ]
}`

var (
	reviewTemplate    = template.Must(template.New("review").Delims("[[", "]]").Parse(reviewTemplateText))
	synthesisTemplate = template.Must(template.New("synthesis").Delims("[[", "]]").Parse(synthesisTemplateText))
)

type reviewPromptData struct {
	Language string
	Schema   string
	Extra    string
	Diff     string
}

type synthesisPromptData struct {
	Language string
	Schema   string
	Reviews  []LabeledReview
	Diff     string
}

// BuildReviewPrompt renders the prompt sent to every tool for a diff.
// extra is appended as additional instructions when it is not blank.
func BuildReviewPrompt(diff, language, extra string) (string, error) {
	data := reviewPromptData{
		Language: languageOr(language),
		Schema:   jsonSchemaExample,
		Extra:    strings.TrimSpace(extra),
		Diff:     truncate(diff, maxDiffBytes, "diff"),
	}

	var buf bytes.Buffer
	if err := reviewTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("review: prompt: execute review template: %w", err)
	}
	return buf.String(), nil
}

// BuildSynthesisPrompt renders the prompt that asks one tool to merge several
// reviews. Reviews are listed in the given order, each under its tool label.
func BuildSynthesisPrompt(reviews []LabeledReview, diff, language string) (string, error) {
	quoted := make([]LabeledReview, len(reviews))
	for i, r := range reviews {
		quoted[i] = LabeledReview{
			Tool: r.Tool,
			Text: truncate(strings.TrimSpace(r.Text), maxSynthesisReviewBytes, "review"),
		}
	}

	data := synthesisPromptData{
		Language: languageOr(language),
		Schema:   jsonSchemaExample,
		Reviews:  quoted,
		Diff:     truncate(diff, maxSynthesisDiffBytes, "diff"),
	}

	var buf bytes.Buffer
	if err := synthesisTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("review: prompt: execute synthesis template: %w", err)
	}
	return buf.String(), nil
}

func languageOr(language string) string {
	if strings.TrimSpace(language) == "" {
		return defaultLanguage
	}
	return language
}

// truncate cuts s to at most max bytes on a rune boundary and appends a note
// naming what was cut.
func truncate(s string, max int, what string) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n... [%s truncated at %dKB] ...", what, max/1024)
}
