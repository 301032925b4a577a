package tui

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"charm.land/log/v2"

	"github.com/Gaurav-Gosain/cfproblem/harvest"
)

// Tokyo Night palette shared with the browser.
var (
	subtle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	title   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#7aa2f7")).Bold(true).Padding(0, 1)
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	statNum = lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true)
)

const appName = "cfproblem"

type (
	harvestEventMsg harvest.Event
	harvestDoneMsg  struct {
		results []harvest.Result
		err     error
	}
	quitAfterMsg struct{}
)

type problemState int

const (
	stateQueued problemState = iota
	stateFetching
	stateWaiting
	stateDone
	statePartial
	stateFailed
)

type model struct {
	spinner  spinner.Model
	progress progress.Model

	states map[string]problemState
	order  []string
	log    []string

	done, partial, failed int

	results  []harvest.Result
	err      error
	finished bool
	width    int
	height   int
}

func newModel() model {
	return model{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7"))),
		),
		progress: progress.New(
			progress.WithColors(lipgloss.Color("#7aa2f7"), lipgloss.Color("#bb9af7")),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		states: make(map[string]problemState),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.SetWidth(min(max(msg.Width-30, 20), 60))
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd

	case harvestEventMsg:
		m.apply(harvest.Event(msg))
		return m, m.progress.SetPercent(m.percent())

	case harvestDoneMsg:
		m.results, m.err = msg.results, msg.err
		m.finished = true
		return m, tea.Batch(
			m.progress.SetPercent(1),
			tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg { return quitAfterMsg{} }),
		)

	case quitAfterMsg:
		return m, tea.Quit
	}
	return m, nil
}

// apply folds one harvest event into the per-problem state table.
func (m *model) apply(e harvest.Event) {
	key := e.ID.Key()
	if _, ok := m.states[key]; !ok {
		m.order = append(m.order, key)
	}

	switch e.Type {
	case harvest.EventFetching:
		m.states[key] = stateFetching
	case harvest.EventRetry:
		m.states[key] = stateWaiting
		m.log = append(m.log, fmt.Sprintf("  %s %s %s", yellow.Render("↻"), key,
			subtle.Render(fmt.Sprintf("retry in %s (%v)", e.Delay.Round(time.Millisecond), e.Err))))
	case harvest.EventDone:
		m.states[key] = stateDone
		m.done++
		m.log = append(m.log, fmt.Sprintf("  %s %s", green.Render("✓"), key))
	case harvest.EventPartial:
		m.states[key] = statePartial
		m.partial++
		m.log = append(m.log, fmt.Sprintf("  %s %s %s", yellow.Render("◐"), key, subtle.Render("summary only")))
	case harvest.EventError:
		m.states[key] = stateFailed
		m.failed++
		msg := "unknown error"
		if e.Err != nil {
			msg = truncate(e.Err.Error(), 60)
		}
		m.log = append(m.log, fmt.Sprintf("  %s %s %s", red.Render("✗"), key, subtle.Render(msg)))
	}
}

func (m model) settled() int {
	return m.done + m.partial + m.failed
}

func (m model) active() int {
	n := 0
	for _, s := range m.states {
		if s == stateFetching || s == stateWaiting {
			n++
		}
	}
	return n
}

func (m model) percent() float64 {
	if len(m.states) == 0 {
		return 0
	}
	return float64(m.settled()) / float64(len(m.states))
}

func (m model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m model) render() string {
	h := m.height
	if h == 0 {
		h = 24
	}

	lines := []string{"", "  " + title.Render(appName), ""}

	lead := m.spinner.View()
	if m.finished {
		lead = green.Bold(true).Render("✓ Done!")
	}
	status := fmt.Sprintf("  %s %s %s%s", lead, m.progress.View(),
		statNum.Render(fmt.Sprintf("%d", m.settled())),
		subtle.Render(fmt.Sprintf("/%d", len(m.states))))
	if n := m.active(); n > 0 && !m.finished {
		status += subtle.Render(fmt.Sprintf(" (%d active)", n))
	}
	lines = append(lines, status)

	counts := fmt.Sprintf("  %s  %s  %s",
		green.Render(fmt.Sprintf("%d full", m.done)),
		yellow.Render(fmt.Sprintf("%d partial", m.partial)),
		red.Render(fmt.Sprintf("%d failed", m.failed)))
	lines = append(lines, counts, "")

	room := max(0, h-len(lines)-1)
	entries := m.log
	if len(entries) > room {
		entries = entries[len(entries)-room:]
	}
	lines = append(lines, entries...)

	return strings.Join(lines, "\n")
}

// IsTTY reports whether stderr is connected to a terminal.
func IsTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// RunWithProgress runs a harvest behind a progress screen, or with log
// lines when stderr is not a terminal. Any OnEvent callback already set in
// opts still receives every event.
func RunWithProgress(ctx context.Context, acq harvest.Acquirer, opts harvest.Options, logger *log.Logger) ([]harvest.Result, error) {
	if !IsTTY() {
		return runWithLogs(ctx, acq, opts, logger)
	}

	prog := tea.NewProgram(newModel())

	// Library and logger output would tear the alt screen.
	origStdlog := stdlog.Writer()
	stdlog.SetOutput(io.Discard)
	logger.SetOutput(io.Discard)
	defer func() {
		stdlog.SetOutput(origStdlog)
		logger.SetOutput(os.Stderr)
	}()

	stop := startHarvest(ctx, acq, opts, prog.Send)

	final, err := prog.Run()
	// Quitting early stops the harvest too.
	stop()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}
	fm := final.(model)
	if !fm.finished {
		return nil, context.Canceled
	}
	return fm.results, fm.err
}

// startHarvest runs the harvest in the background, forwarding its events
// and final results to send. The returned func cancels it.
func startHarvest(ctx context.Context, acq harvest.Acquirer, opts harvest.Options, send func(tea.Msg)) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	forward := opts.OnEvent
	opts.OnEvent = func(e harvest.Event) {
		if forward != nil {
			forward(e)
		}
		send(harvestEventMsg(e))
	}

	go func() {
		results, err := harvest.Run(ctx, acq, opts)
		send(harvestDoneMsg{results: results, err: err})
	}()
	return cancel
}

func runWithLogs(ctx context.Context, acq harvest.Acquirer, opts harvest.Options, logger *log.Logger) ([]harvest.Result, error) {
	logger.Info("Starting harvest", "problems", len(opts.IDs), "contests", len(opts.Contests), "parallelism", opts.Parallelism)

	forward := opts.OnEvent
	opts.OnEvent = func(e harvest.Event) {
		if forward != nil {
			forward(e)
		}
		switch e.Type {
		case harvest.EventFetching:
			logger.Info("Fetching", "id", e.ID, "attempt", e.Attempt)
		case harvest.EventRetry:
			logger.Warn("Retrying", "id", e.ID, "in", e.Delay, "err", e.Err)
		case harvest.EventDone:
			logger.Info("Done", "id", e.ID)
		case harvest.EventPartial:
			logger.Warn("Partial", "id", e.ID)
		case harvest.EventError:
			logger.Error("Failed", "id", e.ID, "err", e.Err)
		}
	}

	results, err := harvest.Run(ctx, acq, opts)
	if err != nil {
		return results, err
	}
	logger.Info("Harvest complete", "total", len(results))
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
