package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/theme"
)

// Section names the screen the overlay was opened from.
type Section int

const (
	SectionList Section = iota
	SectionDetail
	SectionCategories
	SectionSession
	SectionForm
)

func (s Section) String() string {
	switch s {
	case SectionDetail:
		return "Complaint detail"
	case SectionCategories:
		return "Categories"
	case SectionSession:
		return "Session"
	case SectionForm:
		return "New complaint"
	default:
		return "Complaints"
	}
}

// Palette commands listed under the key sections.
var paletteCommands = []string{
	"refresh", "new", "browse", "categories", "dashboard", "history",
	"search <text>", "status <status>", "priority <p|any>", "clear",
	"session", "quit",
}

// bindingSet adapts a fixed group of bindings to help.KeyMap.
type bindingSet [][]key.Binding

func (b bindingSet) ShortHelp() []key.Binding {
	var out []key.Binding
	for _, row := range b {
		out = append(out, row...)
	}
	return out
}

func (b bindingSet) FullHelp() [][]key.Binding { return b }

// Model is the help overlay view.
type Model struct {
	keys    *keys.KeyMap
	help    help.Model
	section Section
	width   int
	height  int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Open shows the shortcuts of section first.
func (m *Model) Open(section Section) {
	m.section = section
}

// Section returns the section the overlay describes.
func (m Model) Section() Section {
	return m.section
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) sectionBindings() bindingSet {
	k := m.keys
	switch m.section {
	case SectionDetail:
		return bindingSet{{k.Up, k.Down, k.Back, k.Refresh}, {k.Comment, k.Status}}
	case SectionCategories:
		return bindingSet{{k.Up, k.Down, k.Back, k.Refresh}, {k.New, k.Delete}}
	case SectionSession:
		return bindingSet{{k.Select, k.Back}}
	case SectionForm:
		return bindingSet{{k.Select, k.Back}}
	default:
		return bindingSet{
			{k.Up, k.Down, k.Select, k.Search, k.Refresh, k.ToggleView},
			{k.CycleStatus, k.CyclePriority, k.CycleSort, k.ClearFilters, k.PrevPage, k.NextPage},
			{k.New, k.Browse, k.Delete},
		}
	}
}

func (m Model) globalBindings() bindingSet {
	k := m.keys
	return bindingSet{{k.Help, k.Command, k.Categories, k.Session, k.Quit}}
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	headingStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)

	title := titleStyle.Render("Keyboard Shortcuts · " + m.section.String())

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	parts := []string{
		title,
		headingStyle.Render("In this view"),
		m.help.View(m.sectionBindings()),
		"",
		headingStyle.Render("Everywhere"),
		m.help.View(m.globalBindings()),
		"",
		headingStyle.Render("Commands (:)"),
		theme.DimmedStyle.Render(strings.Join(paletteCommands, "  ")),
	}
	if m.section == SectionCategories {
		parts = append(parts, "", theme.DimmedStyle.Render("a adds a subcategory · e edits the selected row"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
