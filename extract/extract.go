package extract

import (
	"errors"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

// ErrNoStatement is returned when the markup has no problem statement root,
// e.g. an error page or a redirect target.
var ErrNoStatement = errors.New("problem statement not found")

// RootSelector marks a page as a problem page.
const RootSelector = ".problem-statement"

// The description runs from the header to the first of these.
const sectionSelectors = ".input-specification, .output-specification, .sample-tests, .note"

var (
	titlePrefix = regexp.MustCompile(`^[A-Za-z][0-9]?\.\s+`)
	lineBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockClose  = regexp.MustCompile(`(?i)</(?:div|p)>`)
	blockOpen   = regexp.MustCompile(`(?i)<(?:div|p)(?:\s[^>]*)?>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
)

var punctuation = strings.NewReplacer(
	"∗", "*", // asterisk operator
	"–", "-", // en dash
	"—", "-", // em dash
)

// Extract converts a raw problem page into a Document. Only a missing
// statement root is an error; everything else falls back to empty values.
func Extract(raw string) (*problem.Document, error) {
	root, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	stmt := root.FindFirst(RootSelector)
	if stmt == nil {
		return nil, ErrNoStatement
	}

	doc := &problem.Document{
		SampleTestCases: []problem.TestCase{},
		Tags:            []string{},
	}

	if header := stmt.FindFirst(".header"); header != nil {
		if t := header.FindFirst(".title"); t != nil {
			doc.Name = cleanTitle(t.Text())
		}
		if tl := header.FindFirst(".time-limit"); tl != nil {
			doc.TimeLimit = strings.TrimSpace(tl.OwnText())
		}
		if ml := header.FindFirst(".memory-limit"); ml != nil {
			doc.MemoryLimit = strings.TrimSpace(ml.OwnText())
		}
		doc.Description = description(header)
	}

	doc.InputSpecification = section(stmt, ".input-specification")
	doc.OutputSpecification = section(stmt, ".output-specification")
	doc.Note = section(stmt, ".note")
	doc.SampleTestCases = samples(stmt)
	doc.Tags, doc.Rating = tags(root)

	return doc, nil
}

// ExtractInto is Extract with the document id stamped from id.
func ExtractInto(raw string, id problem.ID) (*problem.Document, error) {
	doc, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	doc.ID = id.Key()
	return doc, nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	return titlePrefix.ReplaceAllString(s, "")
}

func description(header Node) string {
	var b strings.Builder
	for _, n := range header.NextUntil(sectionSelectors) {
		b.WriteString(n.InnerHTML())
	}
	return strings.TrimSpace(b.String())
}

func section(stmt Node, selector string) string {
	n := stmt.FindFirst(selector)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Without(".section-title").InnerHTML())
}

func samples(stmt Node) []problem.TestCase {
	var inputs, outputs []string
	for _, pre := range stmt.FindAll(".sample-test .input pre") {
		inputs = append(inputs, sampleText(pre))
	}
	for _, pre := range stmt.FindAll(".sample-test .output pre") {
		outputs = append(outputs, sampleText(pre))
	}

	n := max(len(inputs), len(outputs))
	out := make([]problem.TestCase, 0, n)
	for i := range n {
		var tc problem.TestCase
		if i < len(inputs) {
			tc.Input = inputs[i]
		}
		if i < len(outputs) {
			tc.Output = outputs[i]
		}
		out = append(out, tc)
	}
	return out
}

// sampleText reads one <pre> block. Newer pages wrap each line in its own
// element; older ones use <br> or bare block elements as separators.
func sampleText(pre Node) string {
	var text string
	if lines := pre.FindAll(".test-example-line"); len(lines) > 0 {
		parts := make([]string, len(lines))
		for i, l := range lines {
			parts[i] = l.Text()
		}
		text = strings.Join(parts, "\n")
	} else {
		text = legacyText(pre.InnerHTML())
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Trim(text, "\n")
	text = strings.TrimRight(text, " \t\n")
	return punctuation.Replace(text)
}

func legacyText(markup string) string {
	s := lineBreak.ReplaceAllString(markup, "\n")
	s = blockClose.ReplaceAllString(s, "\n")
	s = blockOpen.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}

func tags(root Node) ([]string, *int) {
	out := []string{}
	var rating *int
	for _, n := range root.FindAll(".tag-box") {
		label := strings.TrimSpace(n.Text())
		if label == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(label, "*"); ok {
			if v, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && rating == nil {
				rating = &v
			}
			continue
		}
		out = append(out, label)
	}
	return out, rating
}
