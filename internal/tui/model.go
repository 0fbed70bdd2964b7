// Package tui is the interactive plan list: navigation, drag reordering,
// membership edits and explicit save/discard on top of the plan engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/engine/reorder"
)

// outcomeMsg carries a finished engine request back into Update.
type outcomeMsg struct {
	outcome engine.Outcome
}

type Model struct {
	engine    *engine.Engine
	adapter   reorder.Adapter
	projectID string
	ctx       context.Context
	keys      keyMap

	cursor      int
	grabbed     string
	detail      *domain.PlanItem
	adding      bool
	input       textinput.Model
	notice      string
	confirmQuit bool
	width       int
}

// New returns a list model for projectID. Init starts the first load.
func New(ctx context.Context, e *engine.Engine, projectID string) *Model {
	in := textinput.New()
	in.Placeholder = "task ids, comma separated"
	in.Prompt = "add: "
	in.Cursor.SetMode(cursor.CursorStatic)
	return &Model{
		engine:    e,
		adapter:   reorder.New(e),
		projectID: projectID,
		ctx:       ctx,
		keys:      defaultKeys(),
		input:     in,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.start(m.engine.BeginLoad(m.projectID))
}

// start turns an issued request into a command running off the loop.
func (m *Model) start(p engine.Pending, err error) tea.Cmd {
	if err != nil {
		m.notice = err.Error()
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		return outcomeMsg{outcome: p.Run(ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case outcomeMsg:
		m.applyOutcome(msg.outcome)
		return m, nil
	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model) applyOutcome(o engine.Outcome) {
	current := m.engine.IsCurrent(o)
	err := m.engine.Apply(o)
	res, isBatch := o.Batch()
	switch {
	case !current:
	case err != nil:
		m.notice = fmt.Sprintf("%s failed: %v", o.Op(), err)
	case isBatch && res.Partial():
		m.notice = fmt.Sprintf("%d of %d succeeded; %d failed: %s", res.SuccessCount, res.TotalCount, res.FailedCount, strings.Join(res.Errors, "; "))
	case isBatch:
		m.notice = fmt.Sprintf("%d of %d succeeded", res.SuccessCount, res.TotalCount)
	case o.Op() == engine.OpCommit:
		m.notice = "saved"
	}
	m.clampCursor()
}

func (m *Model) items() []domain.PlanItem {
	plan, ok := m.engine.Plan()
	if !ok {
		return nil
	}
	return plan.Items
}

func (m *Model) current() (domain.PlanItem, bool) {
	items := m.items()
	if m.cursor < 0 || m.cursor >= len(items) {
		return domain.PlanItem{}, false
	}
	return items[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.items())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Quit) {
		m.confirmQuit = false
	}
	if m.grabbed != "" {
		return m.updateDragging(msg)
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.engine.Dirty() && !m.confirmQuit {
			m.confirmQuit = true
			m.notice = "unsaved changes; press q again to quit without saving"
			return m, nil
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		m.detail = nil
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items())-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Grab):
		if it, ok := m.current(); ok && m.engine.Status() == engine.StatusReady {
			m.grabbed = it.TaskID
			m.detail = nil
		}
	case key.Matches(msg, m.keys.NudgeUp):
		m.nudge(-1)
	case key.Matches(msg, m.keys.NudgeDn):
		m.nudge(1)
	case key.Matches(msg, m.keys.View):
		if it, ok := m.current(); ok {
			if m.detail != nil && m.detail.TaskID == it.TaskID {
				m.detail = nil
			} else {
				m.detail = &it
			}
		}
	case key.Matches(msg, m.keys.Remove):
		if it, ok := m.current(); ok {
			m.detail = nil
			return m, m.start(m.engine.BeginRemoveTask(it.TaskID))
		}
	case key.Matches(msg, m.keys.Add):
		m.adding = true
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Save):
		return m, m.start(m.engine.BeginCommit())
	case key.Matches(msg, m.keys.Discard):
		return m, m.start(m.engine.BeginDiscard())
	case key.Matches(msg, m.keys.Reload):
		return m, m.start(m.engine.BeginLoad(m.projectID))
	}
	return m, nil
}

func (m *Model) nudge(delta int) {
	it, ok := m.current()
	if !ok {
		return
	}
	if m.adapter.Nudge(it.TaskID, delta) {
		plan, _ := m.engine.Plan()
		m.cursor = plan.IndexOf(it.TaskID)
	}
}

// updateDragging handles keys while an item is held: the cursor picks the
// drop target.
func (m *Model) updateDragging(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items())-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Drop):
		var over *string
		if it, ok := m.current(); ok {
			over = &it.TaskID
		}
		m.adapter.Drop(m.grabbed, over)
		m.grabbed = ""
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		active := m.grabbed
		m.grabbed = ""
		m.adapter.Drop(active, nil)
		plan, _ := m.engine.Plan()
		if idx := plan.IndexOf(active); idx >= 0 {
			m.cursor = idx
		}
	}
	return m, nil
}

func (m *Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.adding = false
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.adding = false
		m.input.Blur()
		ids := SplitIDs(m.input.Value())
		if len(ids) == 0 {
			return m, nil
		}
		return m, m.start(m.engine.BeginAddMany(ids))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// SplitIDs parses a comma or whitespace separated id list.
func SplitIDs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			ids = append(ids, f)
		}
	}
	return ids
}
