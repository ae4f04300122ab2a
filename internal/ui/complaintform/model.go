package complaintform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/selection"
	"github.com/nhle/complaint-desk/internal/theme"
)

// Creator submits new complaints. *store.ComplaintStore implements it.
type Creator interface {
	Create(ctx context.Context, in model.NewComplaint) (model.Complaint, error)
}

// CreatedMsg is dispatched when the server accepted a new complaint.
type CreatedMsg struct {
	Complaint model.Complaint
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// createdMsg reports the end of a Create call.
type createdMsg struct {
	complaint model.Complaint
	err       error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title       string
	description string
	placement   string
	priority    model.Priority
	attachments string
}

// Model is the Bubble Tea model for the new-complaint form.
type Model struct {
	creator    Creator
	form       *huh.Form
	fb         *formBindings
	categories []model.Category
	submitting bool
	err        error
	width      int
	height     int
}

// New creates a new complaint form model.
func New(c Creator, width, height int) Model {
	return Model{
		creator: c,
		fb:      &formBindings{priority: model.PriorityMedium},
		width:   width,
		height:  height,
	}
}

// Start resets the form for a new complaint, preselecting the category
// and subcategory chosen in the selection flow.
func (m *Model) Start(handOff selection.HandOff, categories []model.Category) tea.Cmd {
	m.categories = categories
	m.submitting = false
	m.err = nil
	m.fb.title = ""
	m.fb.description = ""
	m.fb.placement = placementKey(handOff.CategoryID, handOff.SubCategoryID)
	m.fb.priority = model.PriorityMedium
	m.fb.attachments = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the complaint form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(createdMsg); ok {
		m.submitting = false
		if msg.err != nil {
			// Keep what the user typed and let them fix it.
			m.err = msg.err
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		c := msg.complaint
		return m, func() tea.Msg { return CreatedMsg{Complaint: c} }
	}

	if m.form == nil || m.submitting {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		in, err := m.payload()
		if err != nil {
			m.err = err
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		m.submitting = true
		m.err = nil
		return m, m.submit(in)
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the complaint form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("New Complaint") + "\n"
	if m.err != nil {
		content += theme.ErrorStyle.Render(api.Message(m.err)) + "\n\n"
	}
	if m.submitting {
		content += theme.DimmedStyle.Render("Submitting...")
	} else {
		content += m.form.View()
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Placeholder("Short summary of the problem").
				Value(&m.fb.title).
				Validate(validateLength("Title", 5, 100)),
			huh.NewText().
				Title("Description").
				Placeholder("What happened, where and when?").
				Value(&m.fb.description).
				Validate(validateLength("Description", 10, 1000)),
			huh.NewSelect[string]().
				Title("Category").
				Options(m.placementOptions()...).
				Value(&m.fb.placement).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("choose a category")
					}
					return nil
				}),
			huh.NewSelect[model.Priority]().
				Title("Priority").
				Options(
					huh.NewOption("Low", model.PriorityLow),
					huh.NewOption("Medium", model.PriorityMedium),
					huh.NewOption("High", model.PriorityHigh),
				).
				Value(&m.fb.priority),
			huh.NewInput().
				Title("Attachments").
				Placeholder("Comma-separated file paths (optional)").
				Value(&m.fb.attachments).
				Validate(validateFiles),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// placementOptions lists every category, and every subcategory under
// its parent, as one flat choice.
func (m *Model) placementOptions() []huh.Option[string] {
	var opts []huh.Option[string]
	for _, c := range m.categories {
		if !c.HasSubCategories() {
			opts = append(opts, huh.NewOption(c.Name, placementKey(c.ID, "")))
			continue
		}
		for _, sc := range c.SubCategories {
			opts = append(opts, huh.NewOption(c.Name+" › "+sc.Name, placementKey(c.ID, sc.ID)))
		}
	}
	if len(opts) == 0 {
		opts = append(opts, huh.NewOption("No categories available", ""))
	}
	return opts
}

// payload builds the NewComplaint from the form and reads attachments.
func (m Model) payload() (model.NewComplaint, error) {
	categoryID, subID := splitPlacement(m.fb.placement)
	in := model.NewComplaint{
		Title:         strings.TrimSpace(m.fb.title),
		Description:   strings.TrimSpace(m.fb.description),
		CategoryID:    categoryID,
		SubCategoryID: subID,
		Priority:      m.fb.priority,
	}

	for _, path := range splitPaths(m.fb.attachments) {
		data, err := os.ReadFile(path)
		if err != nil {
			return model.NewComplaint{}, fmt.Errorf("reading attachment %s: %w", path, err)
		}
		in.Attachments = append(in.Attachments, model.Upload{Filename: filepath.Base(path), Data: data})
	}

	if err := model.Validate(in); err != nil {
		return model.NewComplaint{}, err
	}
	return in, nil
}

func (m Model) submit(in model.NewComplaint) tea.Cmd {
	c := m.creator
	return func() tea.Msg {
		created, err := c.Create(context.Background(), in)
		return createdMsg{complaint: created, err: err}
	}
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

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

// placementKey encodes a category and optional subcategory as one select
// value.
func placementKey(categoryID, subCategoryID string) string {
	if categoryID == "" {
		return ""
	}
	if subCategoryID == "" {
		return categoryID
	}
	return categoryID + "/" + subCategoryID
}

func splitPlacement(key string) (string, string) {
	categoryID, subID, _ := strings.Cut(key, "/")
	return categoryID, subID
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateLength(fieldName string, lo, hi int) func(string) error {
	return func(s string) error {
		n := len([]rune(strings.TrimSpace(s)))
		switch {
		case n == 0:
			return fmt.Errorf("%s is required", fieldName)
		case n < lo:
			return fmt.Errorf("%s must be at least %d characters", fieldName, lo)
		case n > hi:
			return fmt.Errorf("%s must not exceed %d characters", fieldName, hi)
		}
		return nil
	}
}

func validateFiles(s string) error {
	for _, p := range splitPaths(s) {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot read %s", p)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", p)
		}
	}
	return nil
}
