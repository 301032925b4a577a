package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

func sumDoc() *problem.Document {
	return &problem.Document{
		ID:                  "1A",
		Name:                "Sum",
		TimeLimit:           "1 second",
		MemoryLimit:         "256 megabytes",
		Description:         "<p>Given $$$n$$$ numbers, 1 ≤ n ≤ 100.</p>",
		InputSpecification:  "<p>The first line contains $$$n$$$.</p>",
		OutputSpecification: "<p>Print $$$n^2$$$.</p>",
		SampleTestCases: []problem.TestCase{
			{Input: "3\n1 2 3", Output: "6"},
			{Input: "1\n5", Output: ""},
		},
		Note:   "<p>None.</p>",
		Tags:   []string{"math", "implementation"},
		Rating: problem.IntPtr(800),
	}
}

// outline is the structure of a markdown page as goldmark parses it.
type outline struct {
	title    string
	headings []string // level two
	fences   []string
}

func parseOutline(t *testing.T, md string) outline {
	t.Helper()
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var o outline
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			switch node.Level {
			case 1:
				o.title = inlineText(node, src)
			case 2:
				o.headings = append(o.headings, inlineText(node, src))
			}
		case *ast.FencedCodeBlock:
			var b strings.Builder
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			o.fences = append(o.fences, b.String())
		}
		return ast.WalkContinue, nil
	})
	require.NoError(t, err)
	return o
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			continue
		}
		b.WriteString(inlineText(c, src))
	}
	return b.String()
}

func TestNewPageStructure(t *testing.T) {
	page, err := NewPage(sumDoc(), Terminal)
	require.NoError(t, err)
	assert.Equal(t, "1A", page.Key)
	assert.Equal(t, "1A. Sum", page.Title)
	assert.False(t, page.Partial)

	o := parseOutline(t, page.Markdown)
	assert.Equal(t, "1A. Sum", o.title)
	assert.Equal(t, []string{"Input", "Output", "Examples", "Note"}, o.headings)
	assert.Equal(t, []string{"3\n1 2 3\n", "6\n", "1\n5\n", ""}, o.fences)

	assert.Contains(t, page.Markdown, "**Time limit:** 1 second")
	assert.Contains(t, page.Markdown, "**Rating:** 800")
	assert.Contains(t, page.Markdown, "**Tags:** math, implementation")
	assert.Contains(t, page.Markdown, "1 ≤ n ≤ 100")
	assert.Contains(t, page.Markdown, "Print n²")
	assert.NotContains(t, page.Markdown, "$$$")
}

func TestNewPageRawKeepsTeX(t *testing.T) {
	doc := sumDoc()
	doc.Description = `<p>Here $$$n \le 5$$$.</p>`
	page, err := NewPage(doc, nil)
	require.NoError(t, err)
	assert.Contains(t, page.Markdown, `\le`)
	assert.NotContains(t, page.Markdown, "≤")
}

func TestNewPagePartial(t *testing.T) {
	doc := &problem.Document{ID: "1234B", Name: "Summary Only", Tags: []string{"greedy"}, Rating: problem.IntPtr(1200)}
	page, err := NewPage(doc, Terminal)
	require.NoError(t, err)
	assert.True(t, page.Partial)
	assert.Contains(t, page.Markdown, PartialNotice)

	o := parseOutline(t, page.Markdown)
	assert.Equal(t, "1234B. Summary Only", o.title)
	assert.Empty(t, o.headings)
	assert.Empty(t, o.fences)
}

func TestFenceGrowsAroundBackticks(t *testing.T) {
	doc := &problem.Document{
		ID:              "1A",
		Description:     "<p>x</p>",
		SampleTestCases: []problem.TestCase{{Input: "```", Output: "ok"}},
	}
	page, err := NewPage(doc, Terminal)
	require.NoError(t, err)
	o := parseOutline(t, page.Markdown)
	assert.Equal(t, []string{"```\n", "ok\n"}, o.fences)
}

func TestWriteFiles(t *testing.T) {
	page, err := NewPage(sumDoc(), Terminal)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteFiles([]Page{page}, dir))

	got, err := os.ReadFile(filepath.Join(dir, "1A.md"))
	require.NoError(t, err)
	assert.Equal(t, page.Markdown, string(got))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "1234B1.md", Filename("1234B1"))
	assert.Equal(t, "a-b.md", Filename("a/b"))
	assert.Equal(t, "unknown.md", Filename(""))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []*problem.Document{sumDoc()}))
	assert.Contains(t, buf.String(), `"sampleTestCases"`)
	assert.Contains(t, buf.String(), `<p>Print $$$n^2$$$.</p>`)

	var docs []problem.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Sum", docs[0].Name)
	require.NotNil(t, docs[0].Rating)
	assert.Equal(t, 800, *docs[0].Rating)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRenderTerminal(t *testing.T) {
	page, err := NewPage(sumDoc(), Terminal)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderTerminal(&buf, []Page{page}, 80))
	plain := ansi.Strip(buf.String())
	assert.Contains(t, plain, "Sum")
	assert.Contains(t, plain, "Examples")
}
