package tui

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/glamour/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/Gaurav-Gosain/cfproblem/output"
)

type renderedMsg struct {
	idx  int
	text string
}

type view int

const (
	viewList view = iota
	viewPager
)

var (
	tnFg      = lipgloss.Color("#a9b1d6")
	tnBlue    = lipgloss.Color("#7aa2f7")
	tnPurple  = lipgloss.Color("#bb9af7")
	tnCyan    = lipgloss.Color("#7dcfff")
	tnComment = lipgloss.Color("#565f89")
	tnDark    = lipgloss.Color("#1a1b26")
	tnSurface = lipgloss.Color("#292e42")
	tnGutter  = lipgloss.Color("#3b4261")

	dimStyle      = lipgloss.NewStyle().Foreground(tnComment)
	ruleStyle     = lipgloss.NewStyle().Foreground(tnGutter)
	countStyle    = lipgloss.NewStyle().Foreground(tnCyan).Bold(true)
	promptStyle   = lipgloss.NewStyle().Foreground(tnBlue)
	cursorStyle   = lipgloss.NewStyle().Foreground(tnBlue).Bold(true)
	itemStyle     = lipgloss.NewStyle().Foreground(tnFg)
	metaStyle     = lipgloss.NewStyle().Foreground(tnComment)
	metaSelStyle  = lipgloss.NewStyle().Foreground(tnCyan)
	matchMark     = lipgloss.NewStyle().Foreground(tnPurple).Render("▍")
	currentMark   = lipgloss.NewStyle().Foreground(tnBlue).Bold(true).Render("▍")
	barStyle      = lipgloss.NewStyle().Foreground(tnFg).Background(tnDark)
	barHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#c0caf5")).Background(tnSurface)
	barMatchStyle = lipgloss.NewStyle().Foreground(tnPurple).Background(tnDark).Bold(true)
	scrollOn      = lipgloss.NewStyle().Foreground(tnBlue)
	scrollOff     = lipgloss.NewStyle().Foreground(tnSurface)
)

const (
	rowHeight   = 3 // title, meta, gap
	listChrome  = 8 // header, rule and help lines
	pagerChrome = 2
)

type browserModel struct {
	pages  []output.Page
	view   view
	width  int
	height int

	visible []int
	cursor  int
	offset  int
	filter  textinput.Model

	pager    viewport.Model
	search   textinput.Model
	current  int
	rendered map[int]string
	matches  []int
	match    int
}

func newBrowserModel(pages []output.Page) browserModel {
	m := browserModel{
		pages:    pages,
		filter:   newPrompt("Find: "),
		search:   newPrompt("Search: "),
		pager:    viewport.New(),
		current:  -1,
		rendered: make(map[int]string),
	}
	m.applyFilter()
	return m
}

func newPrompt(prompt string) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	st := in.Styles()
	st.Focused.Prompt = promptStyle
	st.Blurred.Prompt = promptStyle
	in.SetStyles(st)
	return in
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.pager.SetWidth(msg.Width)
		m.pager.SetHeight(msg.Height - pagerChrome)
		clear(m.rendered)
		if m.view == viewPager {
			return m, m.open(m.current)
		}
		return m, nil

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case renderedMsg:
		m.rendered[msg.idx] = msg.text
		if m.view == viewPager && m.current == msg.idx {
			m.findMatches()
			m.pager.GotoTop()
		}
		return m, nil
	}

	if m.view == viewPager {
		return m.updatePager(msg)
	}
	return m.updateList(msg)
}

func (m browserModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, isKey := msg.(tea.KeyPressMsg)

	if m.filter.Focused() {
		if isKey {
			switch key.String() {
			case "esc":
				m.filter.Blur()
				m.filter.SetValue("")
				m.applyFilter()
				return m, nil
			case "enter":
				m.filter.Blur()
				if len(m.visible) == 1 {
					return m, m.open(m.visible[0])
				}
				return m, nil
			case "up", "down":
				m.step(key.String() == "down")
				return m, nil
			}
		}
		prev := m.filter.Value()
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		if m.filter.Value() != prev {
			m.applyFilter()
		}
		return m, cmd
	}

	if !isKey {
		return m, nil
	}
	switch key.String() {
	case "q":
		return m, tea.Quit
	case "j", "down":
		m.step(true)
	case "k", "up":
		m.step(false)
	case "g", "home":
		m.cursor, m.offset = 0, 0
	case "G", "end":
		m.cursor = max(0, len(m.visible)-1)
		m.scrollToCursor()
	case "enter", "l", "right":
		if len(m.visible) > 0 {
			return m, m.open(m.visible[m.cursor])
		}
	case "/":
		m.filter.CursorEnd()
		return m, m.filter.Focus()
	}
	return m, nil
}

// applyFilter keeps pages whose key, title or tags contain the query.
func (m *browserModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, p := range m.pages {
		if q == "" || strings.Contains(strings.ToLower(p.Title), q) || hasTag(p, q) {
			m.visible = append(m.visible, i)
		}
	}
	m.cursor, m.offset = 0, 0
}

func hasTag(p output.Page, q string) bool {
	if p.Doc == nil {
		return false
	}
	for _, t := range p.Doc.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func (m *browserModel) step(down bool) {
	switch {
	case down && m.cursor < len(m.visible)-1:
		m.cursor++
	case !down && m.cursor > 0:
		m.cursor--
	}
	m.scrollToCursor()
}

func (m *browserModel) scrollToCursor() {
	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

func (m browserModel) rows() int {
	return max(1, (m.height-listChrome)/rowHeight)
}

func (m *browserModel) open(idx int) tea.Cmd {
	if idx < 0 || idx >= len(m.pages) {
		return nil
	}
	m.view = viewPager
	m.current = idx
	m.matches, m.match = nil, 0

	if text, ok := m.rendered[idx]; ok {
		m.pager.SetContent(text)
		m.pager.GotoTop()
		m.findMatches()
		return nil
	}
	m.pager.SetContent(dimStyle.Render("\n  Rendering..."))

	md, wrap := m.pages[idx].Markdown, max(20, m.width-4)
	return func() tea.Msg {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("tokyo-night"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return renderedMsg{idx: idx, text: md}
		}
		out, err := r.Render(md)
		if err != nil {
			return renderedMsg{idx: idx, text: md}
		}
		return renderedMsg{idx: idx, text: out}
	}
}

func (m browserModel) updatePager(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, isKey := msg.(tea.KeyPressMsg)

	if m.search.Focused() {
		if isKey {
			switch key.String() {
			case "esc":
				m.search.Blur()
				m.search.SetValue("")
				m.findMatches()
				return m, nil
			case "enter":
				m.search.Blur()
				m.jumpToMatch()
				return m, nil
			}
		}
		prev := m.search.Value()
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		if m.search.Value() != prev {
			m.findMatches()
		}
		return m, cmd
	}

	if isKey {
		switch key.String() {
		case "q":
			return m, tea.Quit
		case "esc", "h", "left":
			m.view = viewList
			m.search.SetValue("")
			m.matches, m.match = nil, 0
			return m, nil
		case "g", "home":
			m.pager.GotoTop()
			return m, nil
		case "G", "end":
			m.pager.GotoBottom()
			return m, nil
		case "/":
			m.search.CursorEnd()
			return m, m.search.Focus()
		case "n", "N":
			if len(m.matches) > 0 {
				delta := 1
				if key.String() == "N" {
					delta = len(m.matches) - 1
				}
				m.match = (m.match + delta) % len(m.matches)
				m.markMatches()
				m.jumpToMatch()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.pager, cmd = m.pager.Update(msg)
	return m, cmd
}

// findMatches records the lines of the rendered page that contain the
// search query and marks them in the gutter.
func (m *browserModel) findMatches() {
	m.matches, m.match = nil, 0
	text, ok := m.rendered[m.current]
	if !ok {
		return
	}
	if q := strings.ToLower(m.search.Value()); q != "" {
		for i, line := range strings.Split(ansi.Strip(text), "\n") {
			if strings.Contains(strings.ToLower(line), q) {
				m.matches = append(m.matches, i)
			}
		}
	}
	m.markMatches()
}

// markMatches redraws the pager from the pristine render so markers never
// stack up.
func (m *browserModel) markMatches() {
	text := m.rendered[m.current]
	if len(m.matches) == 0 {
		m.pager.SetContent(text)
		return
	}
	lines := strings.Split(text, "\n")
	for i, n := range m.matches {
		if n >= len(lines) {
			break
		}
		mark := matchMark
		if i == m.match {
			mark = currentMark
		}
		lines[n] = mark + lines[n]
	}
	m.pager.SetContent(strings.Join(lines, "\n"))
}

func (m *browserModel) jumpToMatch() {
	if len(m.matches) > 0 {
		m.pager.SetYOffset(m.matches[m.match])
	}
}

func (m browserModel) View() tea.View {
	s := m.listView()
	if m.view == viewPager {
		s = m.pagerView()
	}
	v := tea.NewView(s)
	v.AltScreen = true
	return v
}

func (m browserModel) listView() string {
	var b strings.Builder

	b.WriteString("\n  ")
	if m.filter.Focused() {
		b.WriteString(m.filter.View())
	} else {
		b.WriteString(title.Render(appName))
		full := 0
		for _, p := range m.pages {
			if !p.Partial {
				full++
			}
		}
		b.WriteString("  " + countStyle.Render(strconv.Itoa(len(m.pages))) + dimStyle.Render(" problems"))
		if partial := len(m.pages) - full; partial > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  •  %d summary only", partial)))
		}
		if q := m.filter.Value(); q != "" {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  •  filtered: %q", q)))
		}
	}
	b.WriteString("\n\n  " + ruleStyle.Render(strings.Repeat("─", max(0, m.width-4))) + "\n")

	if len(m.visible) == 0 {
		b.WriteString("\n  " + dimStyle.Render("No problems match.") + "\n")
	}

	end := min(m.offset+m.rows(), len(m.visible))
	for row := m.offset; row < end; row++ {
		p := m.pages[m.visible[row]]
		gutter, name, meta := " ", itemStyle, metaStyle
		if row == m.cursor {
			gutter, name, meta = cursorStyle.Render("│"), cursorStyle, metaSelStyle
		}
		badge := green.Render("●")
		if p.Partial {
			badge = yellow.Render("◐")
		}
		fmt.Fprintf(&b, "\n  %s  %s  %s\n", gutter, badge, name.Render(truncate(p.Title, max(20, m.width-10))))
		fmt.Fprintf(&b, "       %s\n", meta.Render(describe(p)))
	}

	used := (end - m.offset) * rowHeight
	if pad := m.height - listChrome - used; pad > 0 {
		b.WriteString(strings.Repeat("\n", pad))
	}

	b.WriteString("\n")
	if m.filter.Focused() {
		b.WriteString(dimStyle.Render("  enter confirm  •  esc cancel  •  ↑↓ navigate"))
	} else {
		b.WriteString(dimStyle.Render("  ↑↓/jk navigate  •  enter open  •  / filter  •  q quit"))
	}
	return b.String()
}

// describe is the one-line summary under a list entry.
func describe(p output.Page) string {
	var parts []string
	if p.Doc != nil {
		if p.Doc.Rating != nil {
			parts = append(parts, "*"+strconv.Itoa(*p.Doc.Rating))
		}
		if len(p.Doc.Tags) > 0 {
			parts = append(parts, strings.Join(p.Doc.Tags, ", "))
		}
	}
	if p.Partial {
		parts = append(parts, "summary only")
	}
	if len(parts) == 0 {
		return "no metadata"
	}
	return strings.Join(parts, "  •  ")
}

func (m browserModel) pagerView() string {
	var b strings.Builder
	b.WriteString(m.pager.View() + "\n")

	filled := min(int(math.Round(m.pager.ScrollPercent()*float64(m.width))), m.width)
	b.WriteString(scrollOn.Render(strings.Repeat("━", filled)))
	b.WriteString(scrollOff.Render(strings.Repeat("─", max(0, m.width-filled))) + "\n")

	if m.search.Focused() {
		bar := "  " + m.search.View()
		switch {
		case len(m.matches) > 0:
			bar += dimStyle.Render(fmt.Sprintf("  %d matches", len(m.matches)))
		case m.search.Value() != "":
			bar += dimStyle.Render("  no matches")
		}
		b.WriteString(barStyle.Render(bar + strings.Repeat(" ", max(0, m.width-lipgloss.Width(bar)))))
		return b.String()
	}

	logo := title.Render(appName)
	var found string
	if len(m.matches) > 0 {
		found = barMatchStyle.Render(fmt.Sprintf(" %d/%d ", m.match+1, len(m.matches)))
	}
	help := []string{"esc back"}
	if len(m.matches) > 0 {
		help = append(help, "n/N match")
	}
	help = append(help, "/ search")
	helpBar := barHelpStyle.Render(" " + strings.Join(help, "  ") + " ")

	room := max(0, m.width-lipgloss.Width(logo)-lipgloss.Width(found)-lipgloss.Width(helpBar))
	note := ""
	if m.current >= 0 {
		note = ansi.Truncate(" "+m.pages[m.current].Title+" ", room, "…")
	}
	note += strings.Repeat(" ", max(0, room-lipgloss.Width(note)))

	b.WriteString(logo + barStyle.Render(note) + found + helpBar)
	return b.String()
}

// RunBrowser launches the interactive problem browser.
func RunBrowser(pages []output.Page) error {
	if _, err := tea.NewProgram(newBrowserModel(pages)).Run(); err != nil {
		return fmt.Errorf("browser TUI error: %w", err)
	}
	return nil
}
