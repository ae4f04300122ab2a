package complaintlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/theme"
)

// ComplaintItem wraps a model.Complaint so it can be used in a
// bubbles/list.
type ComplaintItem struct {
	Complaint model.Complaint
}

// FilterValue returns the string used for fuzzy filtering.
func (i ComplaintItem) FilterValue() string { return i.Complaint.Title }

// Title returns the complaint title for the list.
func (i ComplaintItem) Title() string { return i.Complaint.Title }

// Description returns a short summary line for the list.
func (i ComplaintItem) Description() string {
	parts := []string{
		string(i.Complaint.Status),
		string(i.Complaint.Priority),
		categoryLabel(i.Complaint),
		relativeTime(i.Complaint.CreatedAt),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering complaints.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(ComplaintItem)
	if !ok {
		return
	}
	c := ci.Complaint

	status := theme.StatusStyle(c.Status).Render(fmt.Sprintf("%-11s", c.Status))
	priority := theme.PriorityStyle(c.Priority).Render(fmt.Sprintf("%-6s", c.Priority))
	meta := theme.DimmedStyle.Render(fmt.Sprintf("%s · %s", categoryLabel(c), relativeTime(c.CreatedAt)))

	titleWidth := m.Width() - lipgloss.Width(status) - lipgloss.Width(priority) - lipgloss.Width(meta) - 6
	title := c.Title
	if titleWidth > 3 && len([]rune(title)) > titleWidth {
		title = string([]rune(title)[:titleWidth-1]) + "…"
	}

	line := fmt.Sprintf("%s %s %s  %s", status, priority, title, meta)
	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render(line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(line))
}

// categoryLabel prefers the populated category name and falls back to
// the id.
func categoryLabel(c model.Complaint) string {
	name := c.Category.Name
	if name == "" {
		name = c.Category.ID
	}
	if c.SubCategory != nil && c.SubCategory.Name != "" {
		name += " / " + c.SubCategory.Name
	}
	return name
}

// relativeTime formats a timestamp relative to now.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
