package mathnorm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-latex/latex"
	"github.com/go-latex/latex/ast"
)

// RenderError reports a TeX expression that could not be rendered.
type RenderError struct {
	Source string
	Reason string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("cannot render %q: %s", e.Source, e.Reason)
}

var environments = map[string]bool{
	"cases": true, "matrix": true, "pmatrix": true, "bmatrix": true,
	"vmatrix": true, "Vmatrix": true, "smallmatrix": true, "array": true,
	"aligned": true, "align": true, "align*": true, "gathered": true,
	"split": true,
}

// aliases spell commands the parser lacks in terms it knows.
var aliases = map[string]string{
	"le": `\leq`, "ge": `\geq`, "ne": `\neq`, "lt": "<", "gt": ">",
	"to": `\rightarrow`, "gets": `\leftarrow`, "iff": `\Longleftrightarrow`,
	"implies": `\Longrightarrow`, "land": `\wedge`, "lor": `\vee`,
	"lnot": `\neg`, "lvert": `\vert`, "rvert": `\vert`, "lVert": `\Vert`,
	"rVert": `\Vert`, "dotsc": `\ldots`, "dotsb": `\cdots`, "colon": ":",
	"enspace": `\,`, "thinspace": `\,`,
	"bmod": `\operatorname{mod}`, "mod": `\operatorname{mod}`,
	"exp": `\operatorname{exp}`,
	"cfrac": `\frac`, "dbinom": `\binom`, "tbinom": `\binom`,

	// decorations keep only their argument
	"underline": `\mathregular`, "hat": `\mathregular`, "widehat": `\mathregular`,
	"bar": `\mathregular`, "vec": `\mathregular`, "tilde": `\mathregular`,
	"widetilde": `\mathregular`, "dot": `\mathregular`, "ddot": `\mathregular`,
	"boldsymbol": `\mathregular`, "overrightarrow": `\mathregular`,
	"overbrace": `\mathregular`, "underbrace": `\mathregular`, "boxed": `\mathregular`,
}

// ignored commands only change sizes or styles.
var ignored = map[string]bool{
	"displaystyle": true, "textstyle": true, "scriptstyle": true,
	"limits": true, "nolimits": true, "big": true, "Big": true, "bigg": true,
	"Bigg": true, "bigl": true, "bigr": true, "Bigl": true, "Bigr": true,
	"biggl": true, "biggr": true,
}

// textCommands take a verbatim argument, kept aside as a text run.
var textCommands = map[string]bool{
	"text": true, "textrm": true, "textbf": true, "textit": true,
	"texttt": true, "textsf": true, "mbox": true, "mathrm": true,
}

// expression is a parsed TeX source split into table rows and cells.
type expression struct {
	rows  [][]ast.List
	texts []string
}

// parseTeX validates src and returns its syntax trees.
func parseTeX(src string) (*expression, error) {
	p, err := prepare(src)
	if err != nil {
		return nil, err
	}
	e := &expression{texts: p.texts}
	for _, row := range p.rows {
		cells := make([]ast.List, 0, len(row))
		blank := true
		for _, cell := range row {
			nodes, err := parseCell(src, cell)
			if err != nil {
				return nil, err
			}
			blank = blank && len(nodes) == 0
			cells = append(cells, nodes)
		}
		if !blank {
			e.rows = append(e.rows, cells)
		}
	}
	return e, nil
}

// Validate reports whether src is renderable TeX.
func Validate(src string) error {
	_, err := parseTeX(src)
	return err
}

func parseCell(src, cell string) (nodes ast.List, err error) {
	// The parser reports malformed input by panicking.
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, &RenderError{Source: src, Reason: parserReason(r)}
		}
	}()

	expr, err := latex.ParseExpr("$" + cell + "$")
	if err != nil {
		return nil, &RenderError{Source: src, Reason: err.Error()}
	}
	list, _ := expr.(ast.List)
	for _, n := range list {
		if m, ok := n.(*ast.MathExpr); ok {
			nodes = append(nodes, m.List...)
		}
	}
	return nodes, nil
}

func parserReason(r any) string {
	msg := fmt.Sprint(r)
	switch {
	case strings.HasPrefix(msg, "unknown macro "):
		return "undefined control sequence " + strings.TrimPrefix(msg, "unknown macro ")
	case strings.HasPrefix(msg, "expected "):
		return "missing argument"
	case strings.HasPrefix(msg, "unhandled token"):
		return "unsupported character"
	}
	return msg
}

// preparer checks the structure the parser does not track (braces,
// environments, \left and \right) and rewrites the source into cells the
// parser accepts.
type preparer struct {
	src string
	pos int

	cell  []byte
	row   []string
	rows  [][]string
	texts []string

	closers []string
	closer  string // closer for the next opened brace
	envs    []string
	lr      int
}

func prepare(src string) (*preparer, error) {
	p := &preparer{src: src}
	for p.pos < len(p.src) {
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	switch {
	case len(p.closers) > 0:
		return nil, p.fail("missing closing brace")
	case len(p.envs) > 0:
		return nil, p.fail("unclosed environment " + p.envs[len(p.envs)-1])
	case p.lr != 0:
		return nil, p.fail(`unbalanced \left and \right`)
	}
	p.endRow()
	return p, nil
}

func (p *preparer) fail(reason string) error {
	return &RenderError{Source: p.src, Reason: reason}
}

func (p *preparer) write(s string) { p.cell = append(p.cell, s...) }

func (p *preparer) endCell() {
	p.row = append(p.row, string(p.cell))
	p.cell = p.cell[:0]
}

func (p *preparer) endRow() {
	p.endCell()
	p.rows = append(p.rows, p.row)
	p.row = nil
}

func (p *preparer) skipSpace() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\n\r", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *preparer) step() error {
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\\':
		return p.command()
	case '{':
		// Macro arguments must follow their macro directly.
		p.cell = bytes.TrimRight(p.cell, " \t\n\r")
		p.write("{")
		closer := "}"
		if p.closer != "" {
			closer, p.closer = p.closer, ""
		}
		p.closers = append(p.closers, closer)
	case '}':
		if len(p.closers) == 0 {
			return p.fail("unexpected closing brace")
		}
		last := len(p.closers) - 1
		p.write(p.closers[last])
		p.closers = p.closers[:last]
	case '[':
		p.cell = bytes.TrimRight(p.cell, " \t\n\r")
		p.write("[")
	case '^', '_':
		p.write(string(c))
		p.skipSpace()
		if p.pos >= len(p.src) || strings.IndexByte("}^_&$", p.src[p.pos]) >= 0 || strings.HasPrefix(p.src[p.pos:], `\\`) {
			return p.fail("missing argument for " + string(c))
		}
	case '&':
		if len(p.closers) > 0 {
			p.write(`\,`)
		} else {
			p.endCell()
		}
	case '~':
		p.write(`\,`)
	case '"':
		p.write("''")
	case '|':
		p.write(`\vert `)
	case '$':
		return p.fail("unexpected $")
	default:
		p.cell = append(p.cell, c)
	}
	return nil
}

func (p *preparer) command() error {
	if p.pos >= len(p.src) {
		return p.fail(`undefined control sequence \`)
	}
	end := p.pos
	for end < len(p.src) && isASCIILetter(p.src[end]) {
		end++
	}
	if end == p.pos {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		p.pos += size
		switch r {
		case '\\':
			if len(p.closers) > 0 {
				p.write(`\,`)
			} else {
				p.endRow()
			}
		case ' ', '\t', '\n':
			p.write(`\,`)
		case '&':
			p.lift("&")
		default:
			p.write(`\` + string(r))
		}
		return nil
	}

	name := p.src[p.pos:end]
	p.pos = end
	switch {
	case name == "begin" || name == "end":
		return p.environment(name)
	case name == "left" || name == "right":
		return p.delimiter(name)
	case textCommands[name]:
		body, err := p.group(name)
		if err != nil {
			return err
		}
		p.lift(body)
	case name == "color" || name == "textcolor":
		// \textcolor keeps its second argument as an ordinary group.
		_, err := p.group(name)
		return err
	case name == "pmod":
		p.write(`\quad(\operatorname{mod}\,`)
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '{' {
			return p.fail(`missing argument for \pmod`)
		}
		p.closer = "})"
	case ignored[name]:
		p.write(" ")
	default:
		if name == "operatorname" && p.pos < len(p.src) && p.src[p.pos] == '*' {
			p.pos++
		}
		if alias, ok := aliases[name]; ok {
			p.write(alias + " ")
		} else {
			p.write(`\` + name + " ")
		}
	}
	return nil
}

// group reads the verbatim braced argument of a command.
func (p *preparer) group(name string) (string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '{' {
		return "", p.fail(`missing argument for \` + name)
	}
	depth := 0
	for i := p.pos; i < len(p.src); i++ {
		switch p.src[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				body := p.src[p.pos+1 : i]
				p.pos = i + 1
				return body, nil
			}
		}
	}
	return "", p.fail("missing closing brace")
}

// lift holds text aside; the parser sees only its index.
func (p *preparer) lift(text string) {
	p.write(`\textregular{` + strconv.Itoa(len(p.texts)) + `}`)
	p.texts = append(p.texts, text)
}

func (p *preparer) environment(name string) error {
	env, err := p.group(name)
	if err != nil {
		return err
	}
	if !environments[env] {
		return p.fail("unknown environment " + env)
	}
	if name == "begin" {
		p.envs = append(p.envs, env)
		if env == "array" {
			if _, err := p.group("begin{array}"); err != nil {
				return err
			}
		}
	} else {
		if len(p.envs) == 0 || p.envs[len(p.envs)-1] != env {
			return p.fail(`\end{` + env + `} without matching \begin`)
		}
		p.envs = p.envs[:len(p.envs)-1]
	}
	p.write(" ")
	return nil
}

func (p *preparer) delimiter(name string) error {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.fail(`missing delimiter after \` + name)
	}
	c := p.src[p.pos]
	if c != '.' && c != '\\' && strings.IndexByte("()[]|/<>", c) < 0 {
		return p.fail(`missing delimiter after \` + name)
	}
	if name == "left" {
		p.lr++
	} else {
		p.lr--
		if p.lr < 0 {
			return p.fail(`\right without \left`)
		}
	}

	p.pos++
	switch c {
	case '.':
	case '\\':
		return p.command()
	case '|':
		p.write(`\vert `)
	default:
		p.write(string(c))
	}
	return nil
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
