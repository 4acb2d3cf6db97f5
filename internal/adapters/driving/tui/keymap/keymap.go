// Package keymap defines keybindings for the monitor view.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the monitor keybindings.
type KeyMap struct {
	// Quit leaves the monitor. Running tasks are not affected.
	Quit key.Binding

	// Pause freezes the display while sampling continues.
	Pause key.Binding

	// Help toggles the expanded hints.
	Help key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Quit, k.Help}
}

// FullHelp returns the bindings shown when help is expanded.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Help},
		{k.Quit},
	}
}
