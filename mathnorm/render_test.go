package mathnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := []string{
		`a+b`,
		`\frac{1}{2}`,
		`\dfrac {a} {b}`,
		`\sqrt[3]{x}`,
		`\left( x \right)`,
		`\max\left(a, b\right)`,
		`\lfloor \frac{n}{2} \rfloor`,
		`\begin{array}{cc} a & b \\ c & d \end{array}`,
		`\begin{cases} 1 & x \gt 0 \end{cases}`,
		`a_i^{2}`,
		`\text{if } x \le 10^9`,
		`\{ x \mid x \ge 0 \}`,
		`x \bmod m`,
		`a \equiv b \pmod{m}`,
		`\operatorname*{argmax}_i f(i)`,
		`\displaystyle\sum_{i=1}^{n} i`,
		`\underline{x} \ne \vec{v}`,
		`|a| \& |b|`,
	}
	for _, src := range valid {
		assert.NoError(t, Validate(src), src)
	}

	invalid := map[string]string{
		`{`:                         "missing closing brace",
		`}`:                         "unexpected closing brace",
		`\foo`:                      `undefined control sequence \foo`,
		`\frac{a}`:                  "missing argument",
		`\text x`:                   `missing argument for \text`,
		`x^`:                        "missing argument for ^",
		`a ⊕ b`:                     "unsupported character",
		`a $ b`:                     "unexpected $",
		`\begin{cases} 1`:           "unclosed environment cases",
		`\begin{nope}`:              "unknown environment nope",
		`\left( x`:                  `unbalanced \left and \right`,
		`x \right)`:                 `\right without \left`,
		`\begin{cases}\end{matrix}`: `\end{matrix} without matching \begin`,
	}
	for src, reason := range invalid {
		err := Validate(src)
		var re *RenderError
		require.ErrorAs(t, err, &re, src)
		assert.Equal(t, reason, re.Reason, src)
		assert.Equal(t, src, re.Source)
	}
}

func TestHTMLRenderer(t *testing.T) {
	out, err := HTMLRenderer{}.Render(`a \lt b & c`, Inline)
	require.NoError(t, err)
	assert.Equal(t, `<span class="math math-inline">\(a \lt b &amp; c\)</span>`, out)

	out, err = HTMLRenderer{}.Render(`x^2`, Display)
	require.NoError(t, err)
	assert.Equal(t, `<span class="math math-display">\[x^2\]</span>`, out)

	_, err = HTMLRenderer{}.Render(`\bogus`, Inline)
	assert.Error(t, err)
}

func TestUnicodeRenderer(t *testing.T) {
	tests := map[string]string{
		`x \le y`:                   "x ≤ y",
		`x_{1}`:                     "x₁",
		`2^{10}`:                    "2¹⁰",
		`a_{bc}`:                    "a_(bc)",
		`\frac{a}{b}`:               "a/b",
		`\frac{n+1}{2}`:             "(n+1)/2",
		`\sqrt{n}`:                  "√n",
		`\sqrt[3]{x+1}`:             "³√(x+1)",
		`\binom{n}{k}`:              "C(n, k)",
		`\text{if } x`:              "if x",
		`a \lt b`:                   "a &lt; b",
		`\alpha \cdot \beta`:        "α ⋅ β",
		`\left( x \right)`:          "(x)",
		`\mathbf{v}`:                "v",
		`a - b = -1`:                "a - b = -1",
		`\gcd(a, b) \bmod m`:        "gcd(a, b) mod m",
		`\sum_{i=1}^{n} a_i`:        "∑ᵢ₌₁ⁿ aᵢ",
		`x \pmod{m}`:                "x (mod m)",
		`a \& b`:                    "a&amp;b",
		`\text{a  b}, \mathrm{lcm}`: "a b, lcm",
	}
	for in, want := range tests {
		out, err := UnicodeRenderer{}.Render(in, Inline)
		require.NoError(t, err, in)
		assert.Equal(t, want, out, in)
	}

	out, err := UnicodeRenderer{}.Render(`\frac{1}{2}`, Display)
	require.NoError(t, err)
	assert.Equal(t, "<br>1/2<br>", out)

	out, err = UnicodeRenderer{}.Render(`f(n) = \begin{cases} 1 & n = 0 \\ 2 & \text{otherwise} \\ \end{cases}`, Inline)
	require.NoError(t, err)
	assert.Equal(t, "f(n) = 1 n = 0; 2 otherwise", out)

	_, err = UnicodeRenderer{}.Render(`\frac{1}`, Inline)
	assert.Error(t, err)
}
