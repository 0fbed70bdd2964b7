package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// cmdTimeout separates instant commands from cursor blink ticks (~530ms).
const cmdTimeout = 200 * time.Millisecond

// driver runs a tea.Model synchronously: Update is called directly and
// returned commands are drained in place.
type driver struct {
	t        *testing.T
	model    tea.Model
	quitting bool
}

func newDriver(t *testing.T, m tea.Model) *driver {
	t.Helper()
	d := &driver{t: t, model: m}
	d.drain(m.Init(), 0)
	return d
}

func (d *driver) send(msg tea.Msg) {
	d.t.Helper()
	if d.quitting {
		return
	}
	updated, cmd := d.model.Update(msg)
	d.model = updated
	d.drain(cmd, 0)
}

func (d *driver) press(keys ...string) {
	d.t.Helper()
	for _, k := range keys {
		switch k {
		case "space":
			d.send(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		case "enter":
			d.send(tea.KeyMsg{Type: tea.KeyEnter})
		case "esc":
			d.send(tea.KeyMsg{Type: tea.KeyEsc})
		case "down":
			d.send(tea.KeyMsg{Type: tea.KeyDown})
		case "up":
			d.send(tea.KeyMsg{Type: tea.KeyUp})
		default:
			d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		}
	}
}

func (d *driver) typeText(s string) {
	d.t.Helper()
	for _, r := range s {
		d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func (d *driver) view() string { return d.model.View() }

func (d *driver) drain(cmd tea.Cmd, depth int) {
	d.t.Helper()
	if cmd == nil || depth >= 50 {
		return
	}
	msg := execWithTimeout(cmd)
	if msg == nil || isBlink(msg) {
		return
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, sub := range batch {
			d.drain(sub, depth+1)
		}
		return
	}
	if _, ok := msg.(tea.QuitMsg); ok {
		d.quitting = true
		return
	}
	updated, next := d.model.Update(msg)
	d.model = updated
	d.drain(next, depth+1)
}

func execWithTimeout(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(cmdTimeout):
		return nil
	}
}

func isBlink(msg tea.Msg) bool {
	return strings.Contains(strings.ToLower(fmt.Sprintf("%T", msg)), "blink")
}
