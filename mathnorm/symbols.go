package mathnorm

// texSymbols spells argument-less commands as plain text.
var texSymbols = map[string]string{
	// Greek
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ϵ",
	"varepsilon": "ε", "zeta": "ζ", "eta": "η", "theta": "θ", "vartheta": "ϑ",
	"iota": "ι", "kappa": "κ", "lambda": "λ", "mu": "μ", "nu": "ν", "xi": "ξ",
	"pi": "π", "varpi": "ϖ", "rho": "ρ", "varrho": "ϱ", "sigma": "σ",
	"varsigma": "ς", "tau": "τ", "upsilon": "υ", "phi": "ϕ", "varphi": "φ",
	"chi": "χ", "psi": "ψ", "omega": "ω", "Gamma": "Γ", "Delta": "Δ",
	"Theta": "Θ", "Lambda": "Λ", "Xi": "Ξ", "Pi": "Π", "Sigma": "Σ",
	"Upsilon": "Υ", "Phi": "Φ", "Psi": "Ψ", "Omega": "Ω",

	// relations and arrows
	"leq": "≤", "geq": "≥", "neq": "≠", "leqslant": "⩽", "geqslant": "⩾",
	"approx": "≈", "equiv": "≡", "sim": "∼", "simeq": "≃", "cong": "≅",
	"propto": "∝", "ll": "≪", "gg": "≫", "in": "∈", "notin": "∉", "ni": "∋",
	"subset": "⊂", "subseteq": "⊆", "supset": "⊃", "supseteq": "⊇",
	"mid": "∣", "nmid": "∤", "parallel": "∥", "perp": "⊥", "rightarrow": "→",
	"leftarrow": "←", "Rightarrow": "⇒", "Leftarrow": "⇐",
	"leftrightarrow": "↔", "Leftrightarrow": "⇔", "Longrightarrow": "⟹",
	"Longleftrightarrow": "⟺", "mapsto": "↦", "longrightarrow": "⟶",
	"uparrow": "↑", "downarrow": "↓",

	// operators
	"times": "×", "cdot": "⋅", "div": "÷", "pm": "±", "mp": "∓", "ast": "∗",
	"star": "⋆", "circ": "∘", "bullet": "∙", "oplus": "⊕", "otimes": "⊗",
	"cup": "∪", "cap": "∩", "setminus": "∖", "wedge": "∧", "vee": "∨",
	"neg": "¬", "oslash": "⊘", "sum": "∑", "prod": "∏", "int": "∫",
	"bigcup": "⋃", "bigcap": "⋂", "bigoplus": "⨁", "coprod": "∐",
	"bigwedge": "⋀", "bigvee": "⋁",

	// misc
	"infty": "∞", "dots": "…", "ldots": "…", "cdots": "⋯", "vdots": "⋮",
	"ddots": "⋱", "prime": "′", "partial": "∂", "nabla": "∇", "forall": "∀",
	"exists": "∃", "emptyset": "∅", "varnothing": "∅", "angle": "∠",
	"triangle": "△", "lfloor": "⌊", "rfloor": "⌋", "lceil": "⌈", "rceil": "⌉",
	"langle": "⟨", "rangle": "⟩", "vert": "|", "Vert": "‖", "backslash": "\\",
	"dagger": "†", "hbar": "ℏ", "ell": "ℓ", "aleph": "ℵ", "Re": "ℜ",
	"Im": "ℑ", "top": "⊤", "bot": "⊥", "because": "∵", "therefore": "∴",
	"square": "□", "checkmark": "✓",

	// spacing and escapes
	",": " ", ";": " ", ":": " ", "!": "", "quad": "  ", "qquad": "    ",
	"{": "{", "}": "}", "_": "_", "%": "%", "$": "$", "#": "#", "|": "‖",
}

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴', '5': '⁵', '6': '⁶',
	'7': '⁷', '8': '⁸', '9': '⁹', '+': '⁺', '-': '⁻', '=': '⁼', '(': '⁽',
	')': '⁾', 'a': 'ᵃ', 'b': 'ᵇ', 'c': 'ᶜ', 'd': 'ᵈ', 'e': 'ᵉ', 'f': 'ᶠ',
	'g': 'ᵍ', 'h': 'ʰ', 'i': 'ⁱ', 'j': 'ʲ', 'k': 'ᵏ', 'l': 'ˡ', 'm': 'ᵐ',
	'n': 'ⁿ', 'o': 'ᵒ', 'p': 'ᵖ', 'r': 'ʳ', 's': 'ˢ', 't': 'ᵗ', 'u': 'ᵘ',
	'v': 'ᵛ', 'w': 'ʷ', 'x': 'ˣ', 'y': 'ʸ', 'z': 'ᶻ',
}

var subscripts = map[rune]rune{
	'0': '₀', '1': '₁', '2': '₂', '3': '₃', '4': '₄', '5': '₅', '6': '₆',
	'7': '₇', '8': '₈', '9': '₉', '+': '₊', '-': '₋', '=': '₌', '(': '₍',
	')': '₎', 'a': 'ₐ', 'e': 'ₑ', 'h': 'ₕ', 'i': 'ᵢ', 'j': 'ⱼ', 'k': 'ₖ',
	'l': 'ₗ', 'm': 'ₘ', 'n': 'ₙ', 'o': 'ₒ', 'p': 'ₚ', 'r': 'ᵣ', 's': 'ₛ',
	't': 'ₜ', 'u': 'ᵤ', 'v': 'ᵥ', 'x': 'ₓ',
}
