package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"charm.land/glamour/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/Gaurav-Gosain/cfproblem/mathnorm"
	"github.com/Gaurav-Gosain/cfproblem/problem"
)

// PartialNotice is shown for documents that only carry summary metadata.
const PartialNotice = "Only summary metadata is available for this problem right now. Try again with --refresh later."

// Page is one problem rendered to markdown.
type Page struct {
	Key      string
	Title    string
	Markdown string
	Partial  bool
	Doc      *problem.Document
}

// Terminal renders math as plain Unicode text, which survives both glamour
// and markdown escaping.
var Terminal = &mathnorm.Normalizer{Renderer: mathnorm.UnicodeRenderer{}}

// NewPage builds the markdown page for doc. Free-text fields are passed
// through norm first; a nil norm keeps the stored TeX untouched.
func NewPage(doc *problem.Document, norm *mathnorm.Normalizer) (Page, error) {
	var b strings.Builder

	title := doc.ID
	if doc.Name != "" {
		title = doc.ID + ". " + doc.Name
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	var facts []string
	if doc.TimeLimit != "" {
		facts = append(facts, "**Time limit:** "+doc.TimeLimit)
	}
	if doc.MemoryLimit != "" {
		facts = append(facts, "**Memory limit:** "+doc.MemoryLimit)
	}
	if doc.Rating != nil {
		facts = append(facts, "**Rating:** "+strconv.Itoa(*doc.Rating))
	}
	if len(facts) > 0 {
		b.WriteString(strings.Join(facts, " | ") + "\n\n")
	}
	if len(doc.Tags) > 0 {
		fmt.Fprintf(&b, "**Tags:** %s\n\n", strings.Join(doc.Tags, ", "))
	}

	if doc.IsPartial() {
		fmt.Fprintf(&b, "> %s\n", PartialNotice)
		return Page{Key: doc.ID, Title: title, Markdown: b.String(), Partial: true, Doc: doc}, nil
	}

	sections := []struct {
		heading string
		html    string
	}{
		{"", doc.Description},
		{"Input", doc.InputSpecification},
		{"Output", doc.OutputSpecification},
	}
	for _, s := range sections {
		if err := writeSection(&b, s.heading, s.html, norm); err != nil {
			return Page{}, fmt.Errorf("%s: %w", doc.ID, err)
		}
	}

	if len(doc.SampleTestCases) > 0 {
		b.WriteString("## Examples\n\n")
		for i, tc := range doc.SampleTestCases {
			fmt.Fprintf(&b, "### Input %d\n\n", i+1)
			writeFence(&b, tc.Input)
			fmt.Fprintf(&b, "### Output %d\n\n", i+1)
			writeFence(&b, tc.Output)
		}
	}

	if err := writeSection(&b, "Note", doc.Note, norm); err != nil {
		return Page{}, fmt.Errorf("%s: %w", doc.ID, err)
	}

	return Page{Key: doc.ID, Title: title, Markdown: strings.TrimRight(b.String(), "\n") + "\n", Doc: doc}, nil
}

func writeSection(b *strings.Builder, heading, markup string, norm *mathnorm.Normalizer) error {
	if strings.TrimSpace(markup) == "" {
		return nil
	}
	if norm != nil {
		markup = norm.Normalize(markup)
	}
	md, err := htmltomarkdown.ConvertString(markup)
	if err != nil {
		return fmt.Errorf("markdown conversion failed: %w", err)
	}
	if heading != "" {
		fmt.Fprintf(b, "## %s\n\n", heading)
	}
	b.WriteString(strings.TrimSpace(md) + "\n\n")
	return nil
}

func writeFence(b *strings.Builder, body string) {
	fence := "```"
	for strings.Contains(body, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "%s\n", fence)
	if body != "" {
		b.WriteString(strings.TrimRight(body, "\n") + "\n")
	}
	fmt.Fprintf(b, "%s\n\n", fence)
}

// RenderTerminal renders every page to w using glamour.
func RenderTerminal(w io.Writer, pages []Page, wordWrap int) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	for _, p := range pages {
		rendered, err := renderer.Render(p.Markdown)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering %s: %v\n", p.Key, err)
			continue
		}
		fmt.Fprint(w, rendered)
	}
	return nil
}

// WriteFiles writes each page as {key}.md in dir.
func WriteFiles(pages []Page, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, p := range pages {
		path := filepath.Join(dir, Filename(p.Key))
		if err := os.WriteFile(path, []byte(p.Markdown), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "Saved: %s\n", path)
	}
	return nil
}

// Filename converts a problem key to a safe file name.
func Filename(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			return r
		}
		return '-'
	}, key)
	name = strings.Trim(name, "-")
	if name == "" {
		name = "unknown"
	}
	return name + ".md"
}

// WriteJSON writes the stored documents, TeX untouched, as an indented
// JSON array.
func WriteJSON(w io.Writer, docs []*problem.Document) error {
	if docs == nil {
		docs = []*problem.Document{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode documents: %w", err)
	}
	return nil
}
