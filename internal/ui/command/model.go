package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Refresh    Name = "refresh"
	New        Name = "new"
	Browse     Name = "browse"
	Categories Name = "categories"
	Dashboard  Name = "dashboard"
	History    Name = "history"
	Search     Name = "search"
	Status     Name = "status"
	Priority   Name = "priority"
	Clear      Name = "clear"
	Session    Name = "session"
	Quit       Name = "quit"
)

// aliases maps accepted spellings to commands.
var aliases = map[string]Name{
	"refresh":    Refresh,
	"sync":       Refresh,
	"new":        New,
	"complain":   New,
	"browse":     Browse,
	"categories": Categories,
	"cats":       Categories,
	"dashboard":  Dashboard,
	"history":    History,
	"search":     Search,
	"status":     Status,
	"priority":   Priority,
	"clear":      Clear,
	"session":    Session,
	"signin":     Session,
	"quit":       Quit,
	"q":          Quit,
}

// suggestions are offered as the user types.
var suggestions = []string{
	"refresh", "new", "browse", "categories", "dashboard", "history",
	"search ", "status pending", "status in-progress", "status resolved",
	"status rejected", "status all", "priority low", "priority medium",
	"priority high", "clear", "session", "quit",
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name Name
	Arg  string
}

// Parse resolves a typed line into a command.
func Parse(line string) (CommandMsg, error) {
	head, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	name, ok := aliases[strings.ToLower(head)]
	if !ok {
		return CommandMsg{}, fmt.Errorf("unknown command %q", head)
	}
	arg = strings.TrimSpace(arg)

	switch name {
	case Status, Priority:
		if arg == "" {
			return CommandMsg{}, fmt.Errorf("%s needs a value", name)
		}
		arg = strings.ToLower(arg)
	}
	return CommandMsg{Name: name, Arg: arg}, nil
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    error
	width  int
	height int
}

// NewModel creates a new command palette model.
func NewModel(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		parsed, err := Parse(line)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.input.Reset()
		return m, func() tea.Msg { return parsed }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command Palette"), m.input.View()}
	if m.err != nil {
		parts = append(parts, "", theme.ErrorStyle.Render(m.err.Error()))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.err = nil
	m.input.Reset()
	return m.input.Focus()
}
