// Package styles provides colour themes and styling for the monitor view.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colour palette.
type Theme struct {
	// Primary is the main accent colour and the start of the progress gradient.
	Primary lipgloss.Color

	// Secondary ends the progress gradient.
	Secondary lipgloss.Color

	// Foreground is the default text colour.
	Foreground lipgloss.Color

	// Muted is for labels and hints.
	Muted lipgloss.Color

	// Success marks a finished pass.
	Success lipgloss.Color

	// Warning marks a stalled pass.
	Warning lipgloss.Color

	// Error marks a failed sample.
	Error lipgloss.Color

	// Border is the panel border colour.
	Border lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#7C3AED"), // Purple
		Secondary:  lipgloss.Color("#06B6D4"), // Cyan
		Foreground: lipgloss.Color("#CDD6F4"), // Light gray
		Muted:      lipgloss.Color("#6C7086"), // Medium gray
		Success:    lipgloss.Color("#A6E3A1"), // Green
		Warning:    lipgloss.Color("#F9E2AF"), // Yellow
		Error:      lipgloss.Color("#F38BA8"), // Red
		Border:     lipgloss.Color("#45475A"), // Border gray
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	// Title renders the header line.
	Title lipgloss.Style

	// Label renders field names such as "Remaining".
	Label lipgloss.Style

	// Value renders numbers.
	Value lipgloss.Style

	// Muted renders hints.
	Muted lipgloss.Style

	// Error renders sample failures.
	Error lipgloss.Style

	// Success renders the completion line.
	Success lipgloss.Style

	// Warning renders the stalled indicator.
	Warning lipgloss.Style

	// StatusBar renders the footer.
	StatusBar lipgloss.Style

	// Panel wraps the whole view.
	Panel lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Label: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Width(12),

		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Error: lipgloss.NewStyle().
			Foreground(theme.Error),

		Success: lipgloss.NewStyle().
			Foreground(theme.Success),

		Warning: lipgloss.NewStyle().
			Foreground(theme.Warning),

		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		Panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}
