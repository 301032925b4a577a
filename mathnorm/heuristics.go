package mathnorm

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minInlineLen = 3
	maxInlineLen = 49
	minNakedLen  = 6
)

var (
	blockTag      = regexp.MustCompile(`(?i)</?(?:p|ul|ol|li|div)\b[^>]*>`)
	anyTag        = regexp.MustCompile(`<[^>]*>`)
	subTag        = regexp.MustCompile(`(?i)<sub>(.*?)</sub>`)
	supTag        = regexp.MustCompile(`(?i)<sup>(.*?)</sup>`)
	proseScript   = regexp.MustCompile(`(?i)([A-Za-z0-9]+)<(sub|sup)>([^<$]*)</(?:sub|sup)>`)
	letterDigit   = regexp.MustCompile(`(^|[^\\A-Za-z])([A-Za-z]) (\d+)\b`)
	digitLetter   = regexp.MustCompile(`\d[A-Za-z]|[A-Za-z]\d`)
	notationToken = regexp.MustCompile(`\\(?:le|leq|ge|geq|ne|neq|lt|gt|text|dots|ldots|cdots|frac|sqrt)\b|[≤≥≠]|&(?:le|ge|ne);`)
	loneSymbol    = regexp.MustCompile(`^[A-Za-z][0-9]*'*$`)
)

var glyphs = strings.NewReplacer(
	"≤", `\le `,
	"≥", `\ge `,
	"≠", `\ne `,
	"×", `\times `,
	"·", `\cdot `,
	"…", `\dots `,
	"∞", `\infty `,
	"−", "-",
	"′", "'",
	"<", `\lt `,
	">", `\gt `,
)

// DecodeMath turns a math fragment as stored in markup into TeX: script
// tags become _{} and ^{}, entities are decoded, and the glyphs the source
// substitutes for commands are mapped back.
func DecodeMath(s string) string {
	s = subTag.ReplaceAllString(s, "_{$1}")
	s = supTag.ReplaceAllString(s, "^{$1}")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, " ", " ")
	s = glyphs.Replace(s)
	s = letterDigit.ReplaceAllString(s, "${1}${2}_{${3}}")
	return strings.TrimSpace(s)
}

// HasTightDelimiters reports whether a $...$ interior hugs its dollars,
// which separates "$x$" from the prices in "$5 and $10".
func HasTightDelimiters(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return !unicode.IsSpace(first) && !unicode.IsSpace(last)
}

// HasMathSignal reports whether s contains a backslash, script marker,
// relational symbol or a digit next to a letter.
func HasMathSignal(s string) bool {
	if strings.ContainsAny(s, `\_^=<>≤≥≠`) || strings.Contains(s, "&lt;") || strings.Contains(s, "&gt;") {
		return true
	}
	return digitLetter.MatchString(s)
}

// PlausibleMathLength reports whether s has the length of a typical inline
// expression.
func PlausibleMathLength(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= minInlineLen && n <= maxInlineLen
}

// IsLoneSymbol matches single-letter identifiers such as "n", "a1" or "x'".
func IsLoneSymbol(s string) bool {
	return loneSymbol.MatchString(s)
}

// IsInlineMath decides whether the interior of a $...$ span is math rather
// than literal dollar signs.
func IsInlineMath(interior string) bool {
	if strings.ContainsAny(interior, "$<>") || !HasTightDelimiters(interior) {
		return false
	}
	return HasMathSignal(interior) || PlausibleMathLength(interior) || IsLoneSymbol(interior)
}

// ContainsNotationCommand reports whether s holds one of the commands that
// mark undelimited math: inequalities, \text, ellipses, \frac or \sqrt.
func ContainsNotationCommand(s string) bool {
	return notationToken.MatchString(s)
}

// ContainsBlockTags reports whether s carries paragraph, list or div tags.
func ContainsBlockTags(s string) bool {
	return blockTag.MatchString(s)
}

// Span is a half-open byte range.
type Span struct {
	Start, End int
}

// proseWords are short English words that never start or extend a naked
// expression.
var proseWords = map[string]bool{
	"an": true, "as": true, "at": true, "be": true, "by": true, "do": true,
	"if": true, "in": true, "is": true, "it": true, "no": true, "of": true,
	"on": true, "or": true, "so": true, "to": true, "up": true, "we": true,
	"he": true, "me": true, "my": true, "us": true,
}

// FindNakedSpans locates undelimited expressions in plain text: runs of
// identifier and operator tokens that contain a notation command and are
// longer than five characters.
func FindNakedSpans(s string) []Span {
	var spans []Span
	start, last := -1, -1
	flush := func() {
		if start < 0 {
			return
		}
		sp := trimSpan(s, Span{start, last})
		if sp.End-sp.Start >= minNakedLen && ContainsNotationCommand(s[sp.Start:sp.End]) {
			spans = append(spans, sp)
		}
		start, last = -1, -1
	}

	for i := 0; i < len(s); {
		end, mathy, space := nakedToken(s, i)
		switch {
		case space:
			// Whitespace joins a run but never starts one.
		case mathy:
			if start < 0 {
				start = i
			}
			last = end
		default:
			flush()
		}
		i = end
	}
	flush()
	return spans
}

// nakedToken reads the token at i and classifies it.
func nakedToken(s string, i int) (end int, mathy, space bool) {
	r, size := utf8.DecodeRuneInString(s[i:])
	switch {
	case unicode.IsSpace(r):
		return i + size, false, true
	case r == '\\':
		j := i + 1
		for j < len(s) && isASCIILetter(s[j]) {
			j++
		}
		if j == i+1 {
			return i + 1, false, false
		}
		return skipGroups(s, j), true, false
	case isASCIILetter(byte(r)) && r < utf8.RuneSelf:
		j := i
		for j < len(s) && isASCIILetter(s[j]) {
			j++
		}
		word := s[i:j]
		if j < len(s) && (s[j] == '_' || s[j] == '^') {
			return j, true, false
		}
		if len(word) > 2 || proseWords[strings.ToLower(word)] {
			return j, false, false
		}
		return j, true, false
	case r >= '0' && r <= '9':
		j := i
		for j < len(s) && (s[j] >= '0' && s[j] <= '9') {
			j++
		}
		return j, true, false
	case r == '_' || r == '^':
		return skipGroups(s, i+1), true, false
	case strings.ContainsRune("+-*/=()[]|,.!'{}≤≥≠", r):
		return i + size, true, false
	case r == '&':
		for _, e := range mathEntities {
			if strings.HasPrefix(s[i:], e) {
				return i + len(e), true, false
			}
		}
	}
	return i + size, false, false
}

// mathEntities are the escaped relations that can sit inside a naked
// expression.
var mathEntities = []string{"&lt;", "&gt;", "&le;", "&ge;", "&ne;"}

// skipGroups advances past any {...} groups starting at i.
func skipGroups(s string, i int) int {
	for i < len(s) && s[i] == '{' {
		depth := 0
		j := i
		for ; j < len(s); j++ {
			if s[j] == '{' {
				depth++
			} else if s[j] == '}' {
				depth--
				if depth == 0 {
					break
				}
			}
		}
		if j >= len(s) {
			return len(s)
		}
		i = j + 1
	}
	return i
}

// trimSpan drops edge punctuation and any bracket the span cannot close,
// so "x \le y (see" keeps only "x \le y".
func trimSpan(s string, sp Span) Span {
	sp = trimEdges(s, sp)
	depth := 0
	for i := sp.Start; i < sp.End; i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth--; depth < 0 {
				sp.Start, depth = i+1, 0
			}
		}
	}
	depth = 0
	for i := sp.End - 1; i >= sp.Start; i-- {
		switch s[i] {
		case ')', ']':
			depth++
		case '(', '[':
			if depth--; depth < 0 {
				sp.End, depth = i, 0
			}
		}
	}
	return trimEdges(s, sp)
}

func trimEdges(s string, sp Span) Span {
	const edge = " \t\n.,!"
	for sp.Start < sp.End && strings.ContainsRune(edge, rune(s[sp.Start])) {
		sp.Start++
	}
	for sp.End > sp.Start && strings.ContainsRune(edge, rune(s[sp.End-1])) {
		sp.End--
	}
	return sp
}
