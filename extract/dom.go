package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is the read-only view of a parsed markup tree the extractor works
// against. Lookups that match nothing return nil.
type Node interface {
	FindFirst(selector string) Node
	FindAll(selector string) []Node
	// NextUntil returns the following siblings up to, not including, the
	// first sibling matching selector.
	NextUntil(selector string) []Node
	// Without returns a copy of the node with every descendant matching
	// selector removed.
	Without(selector string) Node
	Text() string
	// OwnText is the concatenation of direct text children only.
	OwnText() string
	InnerHTML() string
}

// Parse builds a Node tree from raw markup.
func Parse(raw string) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return wrap(doc.Selection), nil
}

type gqNode struct {
	sel *goquery.Selection
}

func wrap(sel *goquery.Selection) Node {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	return gqNode{sel: sel}
}

func (n gqNode) FindFirst(selector string) Node {
	return wrap(n.sel.Find(selector).First())
}

func (n gqNode) FindAll(selector string) []Node {
	var out []Node
	n.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, gqNode{sel: s})
	})
	return out
}

func (n gqNode) NextUntil(selector string) []Node {
	var out []Node
	n.sel.NextUntil(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, gqNode{sel: s})
	})
	return out
}

func (n gqNode) Without(selector string) Node {
	c := n.sel.Clone()
	c.Find(selector).Remove()
	return gqNode{sel: c}
}

func (n gqNode) Text() string {
	return n.sel.Text()
}

func (n gqNode) OwnText() string {
	var b strings.Builder
	for _, node := range n.sel.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

func (n gqNode) InnerHTML() string {
	h, err := n.sel.Html()
	if err != nil {
		return ""
	}
	return h
}
