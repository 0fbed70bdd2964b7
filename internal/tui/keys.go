package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Grab     key.Binding
	Drop     key.Binding
	Cancel   key.Binding
	NudgeUp  key.Binding
	NudgeDn  key.Binding
	Remove   key.Binding
	View     key.Binding
	Add      key.Binding
	Save     key.Binding
	Discard  key.Binding
	Reload   key.Binding
	Quit     key.Binding
	Submit   key.Binding
	HelpLine []key.Binding
}

func defaultKeys() keyMap {
	k := keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Grab:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "grab")),
		Drop:    key.NewBinding(key.WithKeys(" ", "space", "enter"), key.WithHelp("space", "drop")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		NudgeUp: key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
		NudgeDn: key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
		Remove:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove")),
		View:    key.NewBinding(key.WithKeys("v", "enter"), key.WithHelp("v", "view")),
		Add:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		Save:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),
		Discard: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discard")),
		Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Submit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	}
	k.HelpLine = []key.Binding{k.Up, k.Down, k.Grab, k.NudgeUp, k.NudgeDn, k.Remove, k.View, k.Add, k.Save, k.Discard, k.Reload, k.Quit}
	return k
}
