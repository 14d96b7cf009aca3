package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepProgress(t *testing.T) {
	var m tea.Model = NewSweep("Poisson np=1", nil)
	m, _ = m.Update(ProgressMsg{Done: 1, Total: 4, Key: "degree=1,size=8", Seconds: 0.25})
	m, _ = m.Update(ProgressMsg{Done: 2, Total: 4, Key: "degree=2,size=8", Seconds: 0.5})

	view := m.View()
	assert.Contains(t, view, "Poisson np=1")
	assert.Contains(t, view, "2/4")
	assert.Contains(t, view, "degree=2,size=8")
	assert.Contains(t, view, "0.500s")
}

func TestSweepDone(t *testing.T) {
	var m tea.Model = NewSweep("Wave", nil)
	fail := errors.New("boom")
	m, cmd := m.Update(DoneMsg{Err: fail})
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
	assert.ErrorIs(t, m.(Sweep).Err(), fail)
	assert.Contains(t, m.View(), "boom")

	// ticks stop once finished
	_, cmd = m.Update(tickMsg{})
	assert.Nil(t, cmd)
}

func TestSweepAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var m tea.Model = NewSweep("Forms", cancel)
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, m.(Sweep).Err(), context.Canceled)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, strings.Repeat("─", 5), Sparkline(nil, 5))
	line := Sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 4)
	assert.Contains(t, line, "█")
	assert.Contains(t, line, "▁")
	// only the last four samples are drawn
	assert.NotContains(t, line, "▂")
}

func TestProgressBarClamps(t *testing.T) {
	assert.Equal(t, 10, strings.Count(ProgressBar(2, 10), "█"))
	assert.Equal(t, 10, strings.Count(ProgressBar(-1, 10), "░"))
}
