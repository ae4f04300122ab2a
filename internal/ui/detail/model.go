package detail

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/store"
	"github.com/nhle/complaint-desk/internal/theme"
)

// Store is the part of the complaint store the detail view uses.
type Store interface {
	State() store.ComplaintState
	GetDetail(ctx context.Context, id string) (fetch.Outcome, error)
	AddComment(ctx context.Context, id, text string) (model.Comment, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, note string) (model.Complaint, error)
}

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// loadedMsg reports the end of a GetDetail call.
type loadedMsg struct {
	id  string
	err error
}

// commentedMsg reports the end of AddComment.
type commentedMsg struct {
	err error
}

// statusUpdatedMsg reports the end of UpdateStatus.
type statusUpdatedMsg struct {
	status model.Status
	err    error
}

// formKind is the form currently shown over the detail.
type formKind int

const (
	noForm formKind = iota
	commentForm
	statusForm
)

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	comment string
	status  model.Status
	note    string
}

// Model is the complaint detail view component.
type Model struct {
	store    Store
	keys     *keys.KeyMap
	viewport viewport.Model
	id       string
	current  *model.Complaint
	loading  bool
	err      error
	message  string

	form     *huh.Form
	formKind formKind
	fb       *formBindings

	width  int
	height int
}

// New creates a new detail view model.
func New(s Store, keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		store:    s,
		keys:     keys,
		viewport: vp,
		fb:       &formBindings{},
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Open starts loading complaint id.
func (m *Model) Open(id string) tea.Cmd {
	m.id = id
	m.current = nil
	m.err = nil
	m.message = ""
	m.form = nil
	m.formKind = noForm
	m.loading = true

	s := m.store
	return func() tea.Msg {
		_, err := s.GetDetail(context.Background(), id)
		return loadedMsg{id: id, err: err}
	}
}

// ID returns the id of the complaint being shown.
func (m Model) ID() string {
	return m.id
}

// Editing reports whether a form has focus.
func (m Model) Editing() bool {
	return m.form != nil
}

// SyncFromStore re-reads the store. The parent calls it whenever the
// complaint store signals a change.
func (m *Model) SyncFromStore() {
	st := m.store.State()
	m.loading = st.DetailLoading
	if st.Detail != nil && st.Detail.ID == m.id {
		c := *st.Detail
		m.current = &c
	} else if !st.DetailLoading {
		m.current = nil
	}
	m.err = st.DetailErr
	m.viewport.SetContent(m.renderContent())
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.id == m.id {
			m.SyncFromStore()
			m.viewport.GotoTop()
		}
		return m, nil

	case commentedMsg:
		if msg.err != nil {
			m.message = api.Message(msg.err)
		} else {
			m.message = "Comment added."
			m.SyncFromStore()
			m.viewport.GotoBottom()
		}
		return m, nil

	case statusUpdatedMsg:
		if msg.err != nil {
			m.message = api.Message(msg.err)
		} else {
			m.message = "Status changed to " + string(msg.status) + "."
			m.SyncFromStore()
		}
		return m, nil
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Refresh):
			cmd := m.Open(m.id)
			return m, cmd

		case key.Matches(msg, m.keys.Comment):
			if m.current == nil {
				return m, nil
			}
			if m.current.Status.Terminal() {
				m.message = fmt.Sprintf("Comments are closed on %s complaints.", m.current.Status)
				return m, nil
			}
			m.fb.comment = ""
			m.formKind = commentForm
			m.form = m.buildCommentForm()
			return m, m.form.Init()

		case key.Matches(msg, m.keys.Status):
			if m.current == nil {
				return m, nil
			}
			m.fb.status = m.current.Status
			m.fb.note = ""
			m.formKind = statusForm
			m.form = m.buildStatusForm()
			return m, m.form.Init()
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		kind := m.formKind
		m.form = nil
		m.formKind = noForm
		if kind == commentForm {
			return m, m.submitComment(m.fb.comment)
		}
		return m, m.submitStatus(m.fb.status, m.fb.note)

	case huh.StateAborted:
		m.form = nil
		m.formKind = noForm
		return m, nil
	}

	return m, cmd
}

func (m Model) submitComment(text string) tea.Cmd {
	s := m.store
	id := m.id
	return func() tea.Msg {
		_, err := s.AddComment(context.Background(), id, text)
		return commentedMsg{err: err}
	}
}

func (m Model) submitStatus(status model.Status, note string) tea.Cmd {
	s := m.store
	id := m.id
	return func() tea.Msg {
		_, err := s.UpdateStatus(context.Background(), id, status, note)
		return statusUpdatedMsg{status: status, err: err}
	}
}

func (m *Model) buildCommentForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Add a comment").
				Placeholder("Write your comment...").
				Value(&m.fb.comment).
				Validate(validateRequired("Comment")),
		),
	).WithWidth(m.formWidth())
}

func (m *Model) buildStatusForm() *huh.Form {
	opts := make([]huh.Option[model.Status], len(model.Statuses))
	for i, s := range model.Statuses {
		opts[i] = huh.NewOption(statusLabel(s), s)
	}

	fb := m.fb
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[model.Status]().
				Title("Status").
				Options(opts...).
				Value(&fb.status),
			huh.NewText().
				Title("Resolution note").
				Placeholder("Required unless the status is pending").
				Value(&fb.note).
				Validate(func(s string) error {
					return model.ValidateStatusUpdate(model.StatusUpdate{Status: fb.status, Resolution: s})
				}),
		),
	).WithWidth(m.formWidth())
}

// View renders the detail view.
func (m Model) View() string {
	if m.form != nil {
		title := "Add Comment"
		if m.formKind == statusForm {
			title = "Update Status"
		}
		titleStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorWhite).
			MarginBottom(1)
		return lipgloss.NewStyle().
			Padding(1, 2).
			Render(titleStyle.Render(title) + "\n" + m.form.View())
	}

	if m.loading && m.current == nil {
		return m.renderCentered("Loading complaint...")
	}

	if m.current == nil {
		if m.err != nil {
			return m.renderCentered(theme.ErrorStyle.Render(api.Message(m.err)) + "\n\nPress r to retry or esc to go back.")
		}
		return m.renderCentered("No complaint selected")
	}

	view := m.viewport.View()
	if m.message != "" {
		view = lipgloss.JoinVertical(lipgloss.Left, view, theme.HelpStyle.Render(m.message))
	}
	return view
}

func (m Model) renderCentered(text string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.current == nil {
		return ""
	}

	c := m.current
	var sections []string

	// Title
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(c.Title))

	// Badges line: status + priority
	badgeLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		theme.StatusStyle(c.Status).Render(statusLabel(c.Status)),
		"  ",
		theme.PriorityStyle(c.Priority).Render(strings.ToUpper(string(c.Priority))),
	)
	sections = append(sections, badgeLine, "")

	// Metadata table
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return fmt.Sprintf("%-12s %s", metaStyle.Render(label), valStyle.Render(value))
	}

	category := c.Category.Name
	if category == "" {
		category = c.Category.ID
	}
	sections = append(sections, row("Category:", category))
	if c.SubCategory != nil && !c.SubCategory.IsZero() {
		sub := c.SubCategory.Name
		if sub == "" {
			sub = c.SubCategory.ID
		}
		sections = append(sections, row("Subcategory:", sub))
	}
	if !c.CreatedAt.IsZero() {
		sections = append(sections, row("Created:", c.CreatedAt.Format("2006-01-02 15:04")))
	}
	for _, a := range c.Attachments {
		sections = append(sections, row("Attachment:", a.Filename))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	sections = append(sections, headerStyle.Render("Description"))
	body := c.Description
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No description")
	}
	sections = append(sections, body)

	if r := c.Resolution; r != nil && r.Note != "" {
		sections = append(sections, "", separator, "", headerStyle.Render("Resolution"), r.Note)
		by := ""
		if r.Author != nil {
			by = r.Author.Name
		}
		if !r.Date.IsZero() {
			by = strings.TrimSpace(by + " " + r.Date.Format("2006-01-02 15:04"))
		}
		if by != "" {
			sections = append(sections, metaStyle.Render(by))
		}
	}

	// Comments section
	sections = append(sections, "", separator, "")
	commentHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite)
	sections = append(sections, commentHeaderStyle.Render(
		fmt.Sprintf("Comments (%d)", len(c.Comments)),
	), "")

	authorStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	timeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	for _, cm := range c.Comments {
		author := cm.Author.Name
		if author == "" {
			author = "Unknown"
		}
		sections = append(sections,
			fmt.Sprintf("%s  %s", authorStyle.Render(author), timeStyle.Render(cm.CreatedAt.Format("2006-01-02 15:04"))),
			cm.Text,
			"",
		)
	}
	if c.Status.Terminal() {
		sections = append(sections, metaStyle.Italic(true).Render("Comments are closed."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// statusLabel returns a human-readable name for the status.
func statusLabel(s model.Status) string {
	switch s {
	case model.StatusPending:
		return "Pending"
	case model.StatusInProgress:
		return "In Progress"
	case model.StatusResolved:
		return "Resolved"
	case model.StatusRejected:
		return "Rejected"
	default:
		return string(s)
	}
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
