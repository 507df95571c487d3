package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown_GroupsAndSortsComments(t *testing.T) {
	t.Parallel()

	result := ReviewResult{
		Summary: "  Needs work.  ",
		Comments: []ReviewComment{
			{Path: "b.go", Line: 9, Body: "second file"},
			{Path: "a.go", Line: 20, Body: "later line"},
			{Path: "a.go", Line: 3, Body: "pipe | and\nnewline"},
		},
	}

	out, err := RenderMarkdown(result, "acme/widgets#7")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "## Review of acme/widgets#7\n\nNeeds work.\n"))
	assert.Contains(t, out, "### Inline comments (3)")
	assert.Contains(t, out, "| `a.go` | 3 | pipe \\| and newline |")

	first := strings.Index(out, "| `a.go` | 3 |")
	second := strings.Index(out, "| `a.go` | 20 |")
	third := strings.Index(out, "| `b.go` | 9 |")
	assert.True(t, first < second && second < third, "rows sorted by path then line:\n%s", out)
	assert.True(t, strings.HasSuffix(out, "|\n"))
}

func TestRenderMarkdown_NoComments(t *testing.T) {
	t.Parallel()

	out, err := RenderMarkdown(ReviewResult{Summary: "LGTM", Comments: []ReviewComment{}}, "")
	require.NoError(t, err)
	assert.Equal(t, "## Review\n\nLGTM\n\n_No inline comments._\n", out)
}
