package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"planline/internal/domain"
	"planline/internal/engine"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	grabStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dirtyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	detailStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	noticeStyle  = lipgloss.NewStyle().Italic(true)
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Bold(true)
)

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Development plan · " + m.projectID))
	b.WriteString("\n")

	switch m.engine.Status() {
	case engine.StatusLoading:
		b.WriteString(bannerStyle.Render("Loading…") + "\n")
	case engine.StatusSaving:
		b.WriteString(bannerStyle.Render("Saving…") + "\n")
	case engine.StatusErrored:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v (r to retry)", m.engine.Err())) + "\n")
	}
	b.WriteString(m.statsLine() + "\n")
	if m.engine.Dirty() {
		b.WriteString(dirtyStyle.Render("● unsaved changes (s save, d discard)") + "\n")
	}
	b.WriteString("\n")

	items := m.items()
	if _, ok := m.engine.Plan(); ok && len(items) == 0 {
		b.WriteString(dimStyle.Render("No tasks in the plan. Press a to add some.") + "\n")
	}
	for i, it := range items {
		b.WriteString(m.renderRow(i, it) + "\n")
	}

	if m.detail != nil {
		b.WriteString("\n" + renderDetail(*m.detail) + "\n")
	}
	if m.adding {
		b.WriteString("\n" + m.input.View() + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + m.helpLine())
	return b.String()
}

func (m *Model) renderRow(i int, it domain.PlanItem) string {
	marker := "  "
	if i == m.cursor {
		marker = "> "
	}
	line := fmt.Sprintf("%s%3d. #%-4d %s  %s", marker, it.SequenceOrder, it.Task.Number, it.Task.Title,
		dimStyle.Render(fmt.Sprintf("[%s · %s · %s]", it.Task.Status, it.Task.Priority, it.Task.Type)))
	switch {
	case it.TaskID == m.grabbed:
		return grabStyle.Render(line + "  (moving)")
	case i == m.cursor && m.grabbed != "":
		return cursorStyle.Render(line + "  ← drop here")
	case i == m.cursor:
		return cursorStyle.Render(line)
	}
	return line
}

func (m *Model) statsLine() string {
	if stats, ok := m.engine.Stats(); ok {
		return dimStyle.Render(formatStats(stats))
	}
	if err := m.engine.StatsErr(); err != nil {
		return errorStyle.Render("stats unavailable: " + err.Error())
	}
	return ""
}

func formatStats(stats domain.PlanStats) string {
	parts := []string{fmt.Sprintf("%d tasks", stats.TotalTasks)}
	keys := make([]string, 0, len(stats.ByStatus))
	for k := range stats.ByStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, stats.ByStatus[k]))
	}
	return strings.Join(parts, " · ")
}

func renderDetail(it domain.PlanItem) string {
	lines := []string{
		titleStyle.Render(it.Task.Title),
		fmt.Sprintf("task:     %s (#%d)", it.TaskID, it.Task.Number),
		fmt.Sprintf("position: %d", it.SequenceOrder),
		fmt.Sprintf("status:   %s", it.Task.Status),
		fmt.Sprintf("priority: %s", it.Task.Priority),
		fmt.Sprintf("type:     %s", it.Task.Type),
	}
	return detailStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) helpLine() string {
	if m.grabbed != "" {
		return dimStyle.Render("↑/↓ choose target · space/enter drop · esc cancel")
	}
	parts := make([]string, 0, len(m.keys.HelpLine))
	for _, k := range m.keys.HelpLine {
		h := k.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+dimStyle.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}

// RenderTable renders a plan for non-interactive output.
func RenderTable(plan domain.Plan, stats *domain.PlanStats) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"#", "Task", "No.", "Title", "Status", "Priority", "Type"})
	for _, it := range plan.Items {
		tw.AppendRow(table.Row{it.SequenceOrder, it.TaskID, it.Task.Number, it.Task.Title, it.Task.Status, it.Task.Priority, it.Task.Type})
	}
	out := tw.Render()
	if stats != nil {
		out += "\n" + formatStats(*stats)
	}
	return out
}
