package categorypicker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/selection"
	"github.com/nhle/complaint-desk/internal/store"
	"github.com/nhle/complaint-desk/internal/theme"
)

// HandOffMsg is sent when the flow completed with a choice.
type HandOffMsg struct {
	HandOff selection.HandOff
}

// ClosedMsg is sent when the user dismissed the picker.
type ClosedMsg struct{}

// Model renders the category selection flow as a dialog.
type Model struct {
	keys        *keys.KeyMap
	flow        selection.State
	tree        store.CategoryState
	selectedIdx int
	message     string
	width       int
	height      int
}

// New creates a closed picker.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, width: width, height: height}
}

// Open starts the flow for intent.
func (m *Model) Open(intent selection.Intent) {
	m.flow = m.flow.Start(intent)
	m.selectedIdx = 0
	m.message = ""
}

// OpenAt handles a direct click on a category outside the dialog. It
// returns a command producing the hand-off when the category needs no
// second step.
func (m *Model) OpenAt(c model.Category, intent selection.Intent) tea.Cmd {
	m.flow = selection.State{Intent: intent}
	m.selectedIdx = 0
	return m.selectCategory(c)
}

// Active reports whether the dialog is showing.
func (m Model) Active() bool {
	return m.flow.Active()
}

// Flow returns the current selection state.
func (m Model) Flow() selection.State {
	return m.flow
}

// SetCategories updates the categories shown, usually after the category
// store changed.
func (m *Model) SetCategories(st store.CategoryState) {
	m.tree = st
	if n := len(m.rows()); m.selectedIdx >= n {
		m.selectedIdx = max(n-1, 0)
	}
}

// Update handles messages for the picker.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || !m.flow.Active() {
		return m, nil
	}

	rows := m.rows()
	switch {
	case key.Matches(keyMsg, m.keys.Back):
		m.flow = m.flow.Back()
		m.selectedIdx = 0
		m.message = ""
		if !m.flow.Active() {
			return m, func() tea.Msg { return ClosedMsg{} }
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.Down):
		if len(rows) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(rows)
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.Up):
		if len(rows) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(rows) - 1
			}
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.Select):
		if len(rows) == 0 {
			return m, nil
		}
		if m.flow.Phase == selection.ChoosingSubCategory {
			cmd := m.selectSubCategory(m.flow.Chosen.SubCategories[m.selectedIdx])
			return m, cmd
		}
		cmd := m.selectCategory(m.tree.Categories[m.selectedIdx])
		return m, cmd
	}
	return m, nil
}

func (m *Model) selectCategory(c model.Category) tea.Cmd {
	next, handOff, err := m.flow.SelectCategory(c)
	if err != nil {
		m.message = err.Error()
		return nil
	}
	m.flow = next
	m.selectedIdx = 0
	return handOffCmd(handOff)
}

func (m *Model) selectSubCategory(sc model.SubCategory) tea.Cmd {
	next, handOff, err := m.flow.SelectSubCategory(sc)
	if err != nil {
		m.message = err.Error()
		return nil
	}
	m.flow = next
	m.selectedIdx = 0
	return handOffCmd(handOff)
}

func handOffCmd(h *selection.HandOff) tea.Cmd {
	if h == nil {
		return nil
	}
	out := *h
	return func() tea.Msg { return HandOffMsg{HandOff: out} }
}

// row is one selectable line.
type row struct {
	label    string
	count    int
	frequent bool
	more     bool
}

func (m Model) rows() []row {
	if m.flow.Phase == selection.ChoosingSubCategory && m.flow.Chosen != nil {
		subs := m.flow.Chosen.SubCategories
		out := make([]row, len(subs))
		for i, sc := range subs {
			out[i] = row{label: sc.Name, count: sc.TotalComplaints}
		}
		return out
	}

	out := make([]row, len(m.tree.Categories))
	for i, c := range m.tree.Categories {
		out[i] = row{
			label:    c.Name,
			count:    c.TotalComplaints,
			frequent: c.IsFrequentlyUsed,
			more:     c.HasSubCategories(),
		}
	}
	return out
}

// View renders the dialog.
func (m Model) View() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	b.WriteString(titleStyle.Render(m.flow.Title()))
	b.WriteString("\n\n")

	rows := m.rows()
	switch {
	case m.flow.Phase == selection.ChoosingCategory && m.tree.Loading && len(rows) == 0:
		b.WriteString(theme.DimmedStyle.Render("Loading categories..."))
	case m.flow.Phase == selection.ChoosingCategory && m.tree.Err != nil && len(rows) == 0:
		b.WriteString(theme.ErrorStyle.Render(api.Message(m.tree.Err)))
	case len(rows) == 0:
		b.WriteString(theme.DimmedStyle.Italic(true).Render("No categories available."))
	default:
		for i, r := range rows {
			label := r.label
			if r.more {
				label += " ›"
			}
			label += theme.DimmedStyle.Render(fmt.Sprintf("  (%d)", r.count))
			if r.frequent {
				label += "  " + theme.FrequentBadgeStyle.Render("★ frequent")
			}
			if i == m.selectedIdx {
				b.WriteString(theme.SelectedItemStyle.Render(label))
			} else {
				b.WriteString(theme.ListItemStyle.Render(label))
			}
			b.WriteString("\n")
		}
	}

	if m.tree.FromCache {
		b.WriteString("\n")
		b.WriteString(theme.DimmedStyle.Render("Showing saved categories from " + m.tree.FetchedAt.Format("Jan 2 15:04")))
	}
	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.message))
	}

	b.WriteString("\n\n")
	hint := "enter select | esc close"
	if m.flow.Phase == selection.ChoosingSubCategory {
		hint = "enter select | esc back"
	}
	b.WriteString(theme.DimmedStyle.Render(hint))

	return theme.BorderStyle.Padding(1, 2).Width(min(m.width-4, 70)).Render(b.String())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
