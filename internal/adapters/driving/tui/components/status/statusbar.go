// Package status provides the monitor status bar.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/derivex/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/derivex/internal/adapters/driving/tui/styles"
)

// State is the monitor state shown on the left of the bar.
type State string

const (
	StateWatching State = "watching"
	StatePaused   State = "paused"
	StateDone     State = "done"
	StateError    State = "error"
)

// Bar displays the monitor state and keybinding hints.
type Bar struct {
	styles   *styles.Styles
	keymap   *keymap.KeyMap
	help     help.Model
	state    State
	message  string
	lastSeen time.Time
	width    int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		help:   help.New(),
		state:  StateWatching,
		width:  80,
	}
}

// View renders the status bar.
func (s *Bar) View() string {
	left := s.renderLeft()
	right := s.help.View(s.keymap)

	padding := s.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}

	return s.styles.StatusBar.Render(left + strings.Repeat(" ", padding) + right)
}

func (s *Bar) renderLeft() string {
	switch s.state {
	case StatePaused:
		return s.styles.Warning.Render("Paused")
	case StateDone:
		return s.styles.Success.Render("Done")
	case StateError:
		if s.message != "" {
			return s.styles.Error.Render(fmt.Sprintf("Error: %s", s.message))
		}
		return s.styles.Error.Render("Error")
	case StateWatching:
		if !s.lastSeen.IsZero() {
			return s.styles.Muted.Render("Last sample " + s.lastSeen.Format("15:04:05"))
		}
	}
	return s.styles.Muted.Render("Waiting for first sample")
}

// SetState sets the current state.
func (s *Bar) SetState(state State) {
	s.state = state
}

// State returns the current state.
func (s *Bar) State() State {
	return s.state
}

// SetMessage sets the error message.
func (s *Bar) SetMessage(message string) {
	s.message = message
}

// SetLastSample records when the last sample was taken.
func (s *Bar) SetLastSample(at time.Time) {
	s.lastSeen = at
}

// ToggleHelp switches between short and full key hints.
func (s *Bar) ToggleHelp() {
	s.help.ShowAll = !s.help.ShowAll
}

// SetWidth sets the status bar width.
func (s *Bar) SetWidth(width int) {
	s.width = width
	s.help.Width = width
}
