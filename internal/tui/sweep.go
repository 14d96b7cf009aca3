package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/fembench/internal/bench"
)

const barWidth = 40

// ProgressMsg carries a finished parameter combination into the model.
type ProgressMsg bench.Progress

// DoneMsg ends the sweep.
type DoneMsg struct{ Err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Sweep shows the progress of a running benchmark sweep.
type Sweep struct {
	title   string
	done    int
	total   int
	last    string
	history []float64
	start   time.Time
	frame   int

	finished bool
	err      error
	cancel   context.CancelFunc
}

func NewSweep(title string, cancel context.CancelFunc) Sweep {
	return Sweep{title: title, start: time.Now(), cancel: cancel}
}

func (m Sweep) Init() tea.Cmd { return tick() }

func (m Sweep) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.finished = true
			m.err = context.Canceled
			return m, tea.Quit
		}
	case ProgressMsg:
		m.done, m.total = msg.Done, msg.Total
		m.last = msg.Key
		m.history = append(m.history, msg.Seconds)
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit
	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m Sweep) View() string {
	var b strings.Builder
	b.WriteString(Header.Render(m.title))
	b.WriteString("\n\n")

	fraction := 0.0
	if m.total > 0 {
		fraction = float64(m.done) / float64(m.total)
	}
	status := StatusRunning.Render(Spinner(m.frame) + " running")
	switch {
	case m.finished && m.err != nil:
		status = StatusFailed.Render("✗ " + m.err.Error())
	case m.finished:
		status = StatusRunning.Render("✓ done")
	}
	fmt.Fprintf(&b, "%s  %s %s\n\n", status, ProgressBar(fraction, barWidth),
		MetricValue.Render(fmt.Sprintf("%d/%d", m.done, m.total)))

	if m.last != "" {
		fmt.Fprintf(&b, "%s %s  %s\n", MetricLabel.Render("last"), m.last,
			MetricValue.Render(fmt.Sprintf("%.3fs", m.history[len(m.history)-1])))
	}
	fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("time"), Sparkline(m.history, barWidth))
	fmt.Fprintf(&b, "%s %s\n\n", MetricLabel.Render("elapsed"), time.Since(m.start).Round(time.Second))
	b.WriteString(KeyHint.Render("q: abort"))
	return Panel.Render(b.String())
}

// Err is the outcome of the sweep once the model has quit.
func (m Sweep) Err() error { return m.err }

// RunSweep runs fn under a progress view. fn receives a context that is
// cancelled when the user aborts and a callback for bench progress.
func RunSweep(ctx context.Context, title string, fn func(ctx context.Context, onProgress func(bench.Progress)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewSweep(title, cancel))
	errc := make(chan error, 1)
	go func() {
		err := fn(ctx, func(pr bench.Progress) { p.Send(ProgressMsg(pr)) })
		p.Send(DoneMsg{Err: err})
		errc <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errc
		return err
	}
	return <-errc
}
