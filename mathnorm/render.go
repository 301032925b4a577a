package mathnorm

import (
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-latex/latex/ast"
	"github.com/go-latex/latex/mtex/symbols"
)

// Mode selects inline or display layout.
type Mode int

const (
	Inline Mode = iota
	Display
)

// Renderer turns one TeX expression into markup. A non-nil error means
// this expression alone could not be rendered.
type Renderer interface {
	Render(tex string, mode Mode) (string, error)
}

// HTMLRenderer validates expressions and emits them inside KaTeX
// auto-render delimiters for the presentation layer.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(tex string, mode Mode) (string, error) {
	if err := Validate(tex); err != nil {
		return "", err
	}
	escaped := html.EscapeString(tex)
	if mode == Display {
		return `<span class="math math-display">\[` + escaped + `\]</span>`, nil
	}
	return `<span class="math math-inline">\(` + escaped + `\)</span>`, nil
}

// UnicodeRenderer approximates expressions with plain Unicode text, for
// terminals. Table rows are joined with semicolons.
type UnicodeRenderer struct{}

func (UnicodeRenderer) Render(tex string, mode Mode) (string, error) {
	expr, err := parseTeX(tex)
	if err != nil {
		return "", err
	}
	w := unicodeWriter{texts: expr.texts}
	rows := make([]string, 0, len(expr.rows))
	for _, row := range expr.rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, w.list(cell, false))
		}
		rows = append(rows, strings.Join(cells, " "))
	}
	text := collapseSpaces(strings.Join(rows, "; "))
	if mode == Display {
		return "<br>" + html.EscapeString(text) + "<br>", nil
	}
	return html.EscapeString(text), nil
}

type unicodeWriter struct {
	texts []string
}

// list writes nodes in order. Outside compact mode binary operators and
// relations get spaces around them.
func (w unicodeWriter) list(nodes ast.List, compact bool) string {
	var b strings.Builder
	gap := false
	for _, n := range nodes {
		switch n.(type) {
		case *ast.Sub, *ast.Sup:
			b.WriteString(w.node(n, compact))
			continue
		}

		piece := w.node(n, compact)
		if gap && !strings.HasPrefix(piece, "(") || operator(n) && !afterOpening(b.String()) {
			b.WriteByte(' ')
		}
		switch {
		case compact:
		case spaced(n) && !unary(n, b.String()):
			piece = " " + piece + " "
		case symbolText(n) == ",":
			piece += " "
		}
		b.WriteString(piece)
		gap = operator(n)
	}
	return b.String()
}

func (w unicodeWriter) node(n ast.Node, compact bool) string {
	switch n := n.(type) {
	case ast.List:
		return w.list(n, compact)
	case *ast.MathExpr:
		return w.list(n.List, compact)
	case *ast.Word:
		return n.Text
	case *ast.Literal:
		return n.Text
	case *ast.Symbol:
		return n.Text
	case *ast.Sup:
		return script(w.operand(n.Node), superscripts, "^")
	case *ast.Sub:
		return script(w.operand(n.Node), subscripts, "_")
	case *ast.Macro:
		return w.macro(n)
	}
	return ""
}

func (w unicodeWriter) operand(n ast.Node) string {
	if n == nil {
		return ""
	}
	return w.node(n, true)
}

func (w unicodeWriter) macro(m *ast.Macro) string {
	name := strings.TrimPrefix(m.Name.Name, `\`)

	var (
		args []string
		opt  string
	)
	for _, a := range m.Args {
		switch a := a.(type) {
		case *ast.Arg:
			args = append(args, w.list(a.List, true))
		case *ast.OptArg:
			opt = w.list(a.List, true)
		}
	}

	switch name {
	case "frac", "dfrac", "tfrac":
		return wrapped(args[0]) + "/" + wrapped(args[1])
	case "binom":
		return "C(" + args[0] + ", " + args[1] + ")"
	case "sqrt":
		root := "√"
		if opt != "" {
			root = script(opt, superscripts, "") + "√"
		}
		return root + wrapped(args[0])
	case "textregular":
		if i, err := strconv.Atoi(args[0]); err == nil && i < len(w.texts) {
			return w.texts[i]
		}
	case "hspace":
		return " "
	}
	if len(args) > 0 {
		return strings.Join(args, "")
	}
	if s, ok := texSymbols[name]; ok {
		return s
	}
	return name
}

// spaced reports binary operators, relations and arrows.
func spaced(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.Symbol:
		return symbols.IsSpaced(n.Text)
	case *ast.Macro:
		return symbols.IsSpaced(n.Name.Name)
	}
	return false
}

// unary reports a sign that follows nothing or another operator.
func unary(n ast.Node, written string) bool {
	switch symbolText(n) {
	case "-", "+":
		return afterOpening(written) || strings.HasSuffix(written, " ")
	}
	return false
}

// afterOpening reports whether nothing or an opening bracket or comma
// precedes.
func afterOpening(written string) bool {
	return written == "" || strings.ContainsAny(written[len(written)-1:], "([{,")
}

// operator reports named functions and big operators, which are separated
// from their operand.
func operator(n ast.Node) bool {
	m, ok := n.(*ast.Macro)
	if !ok {
		return false
	}
	name := m.Name.Name
	return symbols.FunctionNames.Has(strings.TrimPrefix(name, `\`)) ||
		symbols.OverUnderSymbols.Has(name) || name == `\operatorname`
}

func symbolText(n ast.Node) string {
	if s, ok := n.(*ast.Symbol); ok {
		return s.Text
	}
	return ""
}

// script maps s through table when every rune is covered; otherwise it
// falls back to caret/underscore notation.
func script(s string, table map[rune]rune, marker string) string {
	var b strings.Builder
	for _, r := range s {
		m, ok := table[r]
		if !ok {
			if utf8.RuneCountInString(s) == 1 {
				return marker + s
			}
			return marker + "(" + s + ")"
		}
		b.WriteRune(m)
	}
	return b.String()
}

func wrapped(s string) string {
	if utf8.RuneCountInString(s) <= 1 {
		return s
	}
	return "(" + s + ")"
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
