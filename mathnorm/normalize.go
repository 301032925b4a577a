// Package mathnorm turns stored problem markup, with its mix of delimited
// and undelimited TeX, into renderable markup.
package mathnorm

import (
	"errors"
	"html"
	"regexp"
	"strings"
)

const (
	displayMarker = "$$$$$$"
	inlineMarker  = "$$$"
)

var (
	emptyParagraph = regexp.MustCompile(`<p>(?:\s|&nbsp;|\x{00A0})*</p>`)
	doubleOpen     = regexp.MustCompile(`<p>(?:\s*<p>)+`)
	doubleClose    = regexp.MustCompile(`</p>(?:\s*</p>)+`)
	paragraphGap   = regexp.MustCompile(`</p>\s+<p>`)
)

var defaultNormalizer = Normalizer{Renderer: HTMLRenderer{}}

// Normalize renders every math expression in s with the HTML renderer.
func Normalize(s string) string {
	return defaultNormalizer.Normalize(s)
}

// Normalizer renders the math in problem markup through Renderer. The zero
// value uses HTMLRenderer. A Normalizer holds no state and is safe for
// concurrent use.
type Normalizer struct {
	Renderer Renderer
}

func (n Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for i, seg := range splitMarker(s, displayMarker) {
		if i%2 == 1 {
			b.WriteString(n.block(seg, Display))
			continue
		}
		for j, inner := range splitMarker(seg, inlineMarker) {
			if j%2 == 1 {
				b.WriteString(n.block(inner, Inline))
				continue
			}
			b.WriteString(n.prose(inner))
		}
	}
	return cleanup(b.String())
}

// splitMarker splits s on marker so that odd elements are the delimited
// parts. An unterminated trailing marker stays in the text.
func splitMarker(s, marker string) []string {
	parts := strings.Split(s, marker)
	if len(parts)%2 == 0 {
		last := len(parts) - 1
		parts[last-1] = parts[last-1] + marker + parts[last]
		parts = parts[:last]
	}
	return parts
}

// block renders a delimited expression. Structural tags inside it are kept
// and only the text between them is rendered.
func (n Normalizer) block(seg string, mode Mode) string {
	if !ContainsBlockTags(seg) {
		return n.renderPiece(seg, mode)
	}
	var b strings.Builder
	last := 0
	for _, loc := range blockTag.FindAllStringIndex(seg, -1) {
		b.WriteString(n.renderPiece(seg[last:loc[0]], mode))
		b.WriteString(seg[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(n.renderPiece(seg[last:], mode))
	return b.String()
}

func (n Normalizer) renderPiece(s string, mode Mode) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return n.render(s, mode)
}

// render decodes and renders one expression, substituting an error marker
// when the renderer rejects it.
func (n Normalizer) render(raw string, mode Mode) string {
	r := n.Renderer
	if r == nil {
		r = HTMLRenderer{}
	}
	tex := DecodeMath(raw)
	out, err := r.Render(tex, mode)
	if err != nil {
		return errorMarker(tex, err)
	}
	return out
}

func errorMarker(tex string, err error) string {
	reason := err.Error()
	var re *RenderError
	if errors.As(err, &re) {
		reason = re.Reason
	}
	return `<span class="math-error" title="` + html.EscapeString(reason) + `">` + html.EscapeString(tex) + `</span>`
}

// piece is a run of prose; done pieces are already markup and are not
// scanned again.
type piece struct {
	text string
	done bool
}

// prose renders the math hidden in undelimited text: script tags, $...$
// spans and naked expressions, in that order.
func (n Normalizer) prose(s string) string {
	pieces := []piece{{text: s}}
	pieces = n.each(pieces, n.scripts)
	pieces = n.each(pieces, splitTags)
	pieces = n.each(pieces, n.dollars)
	pieces = n.each(pieces, n.naked)

	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.text)
	}
	return b.String()
}

func (n Normalizer) each(pieces []piece, pass func(string) []piece) []piece {
	out := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		if p.done {
			out = append(out, p)
			continue
		}
		out = append(out, pass(p.text)...)
	}
	return out
}

// scripts renders x<sub>1</sub> style prose as inline math.
func (n Normalizer) scripts(s string) []piece {
	var out []piece
	last := 0
	for _, m := range proseScript.FindAllStringSubmatchIndex(s, -1) {
		base, tag, body := s[m[2]:m[3]], strings.ToLower(s[m[4]:m[5]]), s[m[6]:m[7]]
		op := "_"
		if tag == "sup" {
			op = "^"
		}
		out = append(out,
			piece{text: s[last:m[0]]},
			piece{text: n.render(base+op+"{"+body+"}", Inline), done: true},
		)
		last = m[1]
	}
	return append(out, piece{text: s[last:]})
}

// splitTags marks markup tags as done so the text passes never see them.
func splitTags(s string) []piece {
	var out []piece
	last := 0
	for _, loc := range anyTag.FindAllStringIndex(s, -1) {
		out = append(out, piece{text: s[last:loc[0]]}, piece{text: s[loc[0]:loc[1]], done: true})
		last = loc[1]
	}
	return append(out, piece{text: s[last:]})
}

// dollars renders $...$ spans accepted by IsInlineMath. A rejected opener
// is kept literally and the scan resumes right after it.
func (n Normalizer) dollars(s string) []piece {
	var out []piece
	var text strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' {
			next := strings.IndexByte(s[i:], '$')
			if next < 0 {
				text.WriteString(s[i:])
				break
			}
			text.WriteString(s[i : i+next])
			i += next
			continue
		}
		end := strings.IndexByte(s[i+1:], '$')
		if end < 0 || !IsInlineMath(s[i+1:i+1+end]) {
			text.WriteByte('$')
			i++
			continue
		}
		out = append(out,
			piece{text: text.String()},
			piece{text: n.render(s[i+1:i+1+end], Inline), done: true},
		)
		text.Reset()
		i += end + 2
	}
	return append(out, piece{text: text.String()})
}

func (n Normalizer) naked(s string) []piece {
	var out []piece
	last := 0
	for _, sp := range FindNakedSpans(s) {
		out = append(out,
			piece{text: s[last:sp.Start]},
			piece{text: n.render(s[sp.Start:sp.End], Inline), done: true},
		)
		last = sp.End
	}
	return append(out, piece{text: s[last:]})
}

func cleanup(s string) string {
	s = emptyParagraph.ReplaceAllString(s, "")
	s = doubleOpen.ReplaceAllString(s, "<p>")
	s = doubleClose.ReplaceAllString(s, "</p>")
	return paragraphGap.ReplaceAllString(s, "</p><p>")
}
