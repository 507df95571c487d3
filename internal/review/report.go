package review

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

//go:embed report.tmpl
var reportTemplateText string

var reportTemplate = template.Must(
	template.New("report").
		Delims("[[", "]]").
		Funcs(template.FuncMap{"escapeCell": escapeCellContent}).
		Parse(reportTemplateText),
)

// fileComments groups the comments for one file, ordered by line.
type fileComments struct {
	Path     string
	Comments []ReviewComment
}

// reportData is the data passed to the report template.
type reportData struct {
	Label   string
	Summary string
	Total   int
	Files   []fileComments
}

// RenderMarkdown renders result as a GitHub-flavoured markdown report with
// the comments grouped by file. label, when set, names the reviewed change
// in the heading.
func RenderMarkdown(result ReviewResult, label string) (string, error) {
	data := reportData{
		Label:   label,
		Summary: strings.TrimSpace(result.Summary),
		Total:   len(result.Comments),
		Files:   groupByFile(result.Comments),
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("review: report: executing template: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

// groupByFile buckets comments by path. Files are sorted by path and comments
// within a file by line; equal lines keep their original order.
func groupByFile(comments []ReviewComment) []fileComments {
	byPath := make(map[string][]ReviewComment)
	for _, c := range comments {
		byPath[c.Path] = append(byPath[c.Path], c)
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]fileComments, 0, len(paths))
	for _, p := range paths {
		cs := byPath[p]
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Line < cs[j].Line })
		files = append(files, fileComments{Path: p, Comments: cs})
	}
	return files
}

// escapeCellContent replaces pipe characters and newlines in a string so they
// do not break GitHub Flavored Markdown table cells.
func escapeCellContent(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
