package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play  key.Binding
	Next  key.Binding
	Prev  key.Binding
	First key.Binding
	Last  key.Binding
	Quit  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Play:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
		Next:  key.NewBinding(key.WithKeys("right", "n", "l"), key.WithHelp("→", "step")),
		Prev:  key.NewBinding(key.WithKeys("left", "b", "h"), key.WithHelp("←", "back")),
		First: key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "first")),
		Last:  key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "last")),
		Quit:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Next, k.Prev, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Play, k.Next, k.Prev}, {k.First, k.Last, k.Quit}}
}
