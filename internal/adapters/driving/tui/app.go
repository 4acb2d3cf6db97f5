// Package tui renders live pass progress in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/custodia-labs/derivex/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/derivex/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/derivex/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
)

const maxBarWidth = 72

// Config configures the monitor application.
type Config struct {
	// Namespace and Query are shown in the header.
	Namespace string
	Query     string

	// Delta measures progress from the first sample instead of against the total.
	Delta bool

	// Samples and Errors come from driving.Monitor.Watch.
	Samples <-chan driving.Progress
	Errors  <-chan error
}

type sampleMsg driving.Progress

type sampleErrMsg struct{ err error }

type samplesClosedMsg struct{}

// App is the monitor view. It implements tea.Model.
type App struct {
	cfg     Config
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	status  *status.Bar
	bar     progress.Model
	spinner spinner.Model

	first  *driving.Progress
	latest *driving.Progress
	paused bool
	closed bool
	err    error
}

// NewApp creates the monitor view.
func NewApp(cfg Config) (*App, error) {
	if cfg.Samples == nil {
		return nil, ErrMissingSamples
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()
	theme := s.Theme()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Primary)

	return &App{
		cfg:     cfg,
		styles:  s,
		keymap:  km,
		status:  status.NewBar(s, km),
		bar:     progress.New(progress.WithGradient(string(theme.Primary), string(theme.Secondary)), progress.WithWidth(maxBarWidth)),
		spinner: sp,
	}, nil
}

// Init starts the spinner and waits for the first sample.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForSample())
}

func (a *App) waitForSample() tea.Cmd {
	samples, errs := a.cfg.Samples, a.cfg.Errors
	return func() tea.Msg {
		p, ok := <-samples
		if ok {
			return sampleMsg(p)
		}
		if errs != nil {
			if err, ok := <-errs; ok && err != nil {
				return sampleErrMsg{err: err}
			}
		}
		return samplesClosedMsg{}
	}
}

// Update handles messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keymap.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keymap.Pause):
			a.togglePause()
		case key.Matches(msg, a.keymap.Help):
			a.status.ToggleHelp()
		}
		return a, nil

	case tea.WindowSizeMsg:
		a.bar.Width = min(msg.Width-4, maxBarWidth)
		a.status.SetWidth(msg.Width)
		return a, nil

	case sampleMsg:
		return a, tea.Batch(a.observe(driving.Progress(msg)), a.waitForSample())

	case sampleErrMsg:
		a.err = msg.err
		a.status.SetState(status.StateError)
		a.status.SetMessage(msg.err.Error())
		return a, nil

	case samplesClosedMsg:
		a.closed = true
		return a, nil

	case progress.FrameMsg:
		m, cmd := a.bar.Update(msg)
		if pm, ok := m.(progress.Model); ok {
			a.bar = pm
		}
		return a, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// observe records a sample unless the display is paused. The first sample
// is always kept since delta mode measures against it.
func (a *App) observe(p driving.Progress) tea.Cmd {
	if a.first == nil {
		first := p
		a.first = &first
	}
	if a.paused {
		return nil
	}
	a.latest = &p
	a.status.SetLastSample(p.At)

	done, goal := Completion(*a.first, p, a.cfg.Delta)
	if a.cfg.Delta && goal > 0 && done >= goal {
		a.status.SetState(status.StateDone)
	}
	return a.bar.SetPercent(Fraction(done, goal))
}

func (a *App) togglePause() {
	if a.status.State() == status.StateError || a.status.State() == status.StateDone {
		return
	}
	a.paused = !a.paused
	if a.paused {
		a.status.SetState(status.StatePaused)
	} else {
		a.status.SetState(status.StateWatching)
	}
}

// Err returns the sampling error, if any.
func (a *App) Err() error {
	return a.err
}

// View renders the monitor.
func (a *App) View() string {
	var b strings.Builder

	title := a.styles.Title.Render("derivex monitor")
	scope := a.styles.Muted.Render(fmt.Sprintf("%s  %s", a.cfg.Namespace, a.cfg.Query))
	b.WriteString(title + "  " + scope + "\n\n")

	if a.latest == nil {
		b.WriteString(a.spinner.View() + " " + a.styles.Muted.Render("Counting documents...") + "\n")
	} else {
		done, goal := Completion(*a.first, *a.latest, a.cfg.Delta)
		b.WriteString(a.bar.View() + "\n\n")
		b.WriteString(a.row("Done", fmt.Sprintf("%s / %s", humanize.Comma(int64(done)), humanize.Comma(int64(goal)))))
		b.WriteString(a.row("Remaining", humanize.Comma(int64(a.latest.Matching))))
		b.WriteString(a.row("Total", humanize.Comma(int64(a.latest.Total))))
		b.WriteString(a.row("Last delta", humanize.Comma(int64(a.latest.Delta))))
		b.WriteString(a.row("Rate", FormatRate(a.latest.Rate)))
		b.WriteString(a.row("ETA", FormatETA(a.latest.ETA)))
	}

	if a.closed && a.err == nil {
		b.WriteString("\n" + a.styles.Muted.Render("Sampling stopped.") + "\n")
	}

	return a.styles.Panel.Render(b.String()) + "\n" + a.status.View()
}

func (a *App) row(label, value string) string {
	return a.styles.Label.Render(label) + a.styles.Value.Render(value) + "\n"
}
