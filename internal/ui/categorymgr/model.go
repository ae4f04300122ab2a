package categorymgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
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

// Store is the part of the category store the manager uses.
type Store interface {
	State() store.CategoryState
	List(ctx context.Context) (fetch.Outcome, error)
	CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error)
	UpdateCategory(ctx context.Context, id string, in model.CategoryInput) (model.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	AddSubCategory(ctx context.Context, categoryID string, in model.SubCategoryInput) (model.Category, error)
	UpdateSubCategory(ctx context.Context, categoryID, subCategoryID string, in model.SubCategoryInput) (model.Category, error)
	DeleteSubCategory(ctx context.Context, categoryID, subCategoryID string) error
}

// CloseMsg signals the parent to close the category manager.
type CloseMsg struct{}

type managerMode int

const (
	modeList managerMode = iota
	modeForm
	modeConfirmDelete
)

type formBindings struct {
	name        string
	description string
	confirm     bool
}

type savedMsg struct{ err error }
type deletedMsg struct{ err error }
type reloadedMsg struct{ err error }

// row is one line of the tree: a category, or a subcategory beneath it.
type row struct {
	category model.Category
	sub      *model.SubCategory
}

func (r row) name() string {
	if r.sub != nil {
		return r.sub.Name
	}
	return r.category.Name
}

// Model is the Bubble Tea model for category administration.
type Model struct {
	mode        managerMode
	store       Store
	keys        *keys.KeyMap
	state       store.CategoryState
	selectedIdx int

	// target of the open form: editing is false when creating, and
	// parentID is set for subcategories.
	editing  bool
	parentID string
	targetID string
	icon     string

	form        *huh.Form
	confirmForm *huh.Form
	fb          *formBindings
	statusMsg   string
	width       int
	height      int
}

// New creates a new category manager model.
func New(s Store, k *keys.KeyMap, width, height int) Model {
	return Model{
		mode:  modeList,
		store: s,
		keys:  k,
		state: s.State(),
		fb:    &formBindings{},
		width: width, height: height,
	}
}

// Init reloads the categories from the server.
func (m Model) Init() tea.Cmd {
	return m.reload()
}

// SyncFromStore re-reads the store state.
func (m *Model) SyncFromStore() {
	m.state = m.store.State()
	if n := len(m.rows()); m.selectedIdx >= n {
		m.selectedIdx = max(n-1, 0)
	}
}

// Editing reports whether a form is open.
func (m Model) Editing() bool {
	return m.mode != modeList
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case savedMsg:
		m.mode = modeList
		if msg.err != nil {
			m.statusMsg = "Error: " + api.Message(msg.err)
		} else {
			m.statusMsg = "Category saved"
		}
		m.SyncFromStore()
		return m, nil

	case deletedMsg:
		m.mode = modeList
		if msg.err != nil {
			m.statusMsg = "Error: " + api.Message(msg.err)
		} else {
			m.statusMsg = "Category deleted"
		}
		m.SyncFromStore()
		return m, nil

	case reloadedMsg:
		if msg.err != nil && !store.IsAborted(msg.err) {
			m.statusMsg = "Error: " + api.Message(msg.err)
		}
		m.SyncFromStore()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveForm(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case modeList:
		return m.handleListKey(msg)
	case modeForm:
		return m.updateForm(msg)
	case modeConfirmDelete:
		return m.updateConfirm(msg)
	}
	return m, nil
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	rows := m.rows()

	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Down):
		if len(rows) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(rows)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(rows) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(rows) - 1
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.statusMsg = ""
		return m, m.reload()

	case key.Matches(msg, m.keys.New):
		m.editing = false
		m.parentID = ""
		m.targetID = ""
		m.icon = ""
		m.fb.name = ""
		m.fb.description = ""
		return m.openForm()

	case msg.String() == "a":
		if len(rows) == 0 {
			return m, nil
		}
		m.editing = false
		m.parentID = rows[m.selectedIdx].category.ID
		m.targetID = ""
		m.icon = ""
		m.fb.name = ""
		m.fb.description = ""
		return m.openForm()

	case msg.String() == "e":
		if len(rows) == 0 {
			return m, nil
		}
		r := rows[m.selectedIdx]
		m.editing = true
		if r.sub != nil {
			m.parentID = r.category.ID
			m.targetID = r.sub.ID
			m.icon = r.sub.Icon
			m.fb.name = r.sub.Name
			m.fb.description = r.sub.Description
		} else {
			m.parentID = ""
			m.targetID = r.category.ID
			m.icon = r.category.Icon
			m.fb.name = r.category.Name
			m.fb.description = r.category.Description
		}
		return m.openForm()

	case key.Matches(msg, m.keys.Delete):
		if len(rows) == 0 {
			return m, nil
		}
		m.fb.confirm = false
		m.confirmForm = m.buildConfirmForm(rows[m.selectedIdx])
		m.mode = modeConfirmDelete
		return m, m.confirmForm.Init()
	}
	return m, nil
}

func (m Model) openForm() (Model, tea.Cmd) {
	m.statusMsg = ""
	m.form = m.buildForm()
	m.mode = modeForm
	return m, m.form.Init()
}

func (m Model) formTitle() string {
	switch {
	case m.parentID != "" && m.editing:
		return "Edit subcategory"
	case m.parentID != "":
		parent, _ := m.findCategory(m.parentID)
		return "New subcategory in " + parent.Name
	case m.editing:
		return "Edit category"
	default:
		return "New category"
	}
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title(m.formTitle()),
			huh.NewInput().
				Title("Name").
				Placeholder("Category name").
				Value(&m.fb.name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Placeholder("Optional, at least 10 characters").
				Value(&m.fb.description).
				Validate(validateDescription),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func validateDescription(s string) error {
	n := len([]rune(strings.TrimSpace(s)))
	if n > 0 && n < 10 {
		return fmt.Errorf("description must be at least 10 characters")
	}
	if n > 500 {
		return fmt.Errorf("description must be at most 500 characters")
	}
	return nil
}

func (m Model) buildConfirmForm(r row) *huh.Form {
	title := fmt.Sprintf("Delete category %q?", r.name())
	desc := "Its subcategories are deleted with it."
	if r.sub != nil {
		title = fmt.Sprintf("Delete subcategory %q?", r.name())
		desc = fmt.Sprintf("Other subcategories of %s are kept.", r.category.Name)
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(desc).
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		return m, m.save()
	}
	if m.form.State == huh.StateAborted {
		m.mode = modeList
		return m, nil
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	if m.confirmForm == nil {
		return m, nil
	}
	mdl, cmd := m.confirmForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirmForm = f
	}
	if m.confirmForm.State == huh.StateCompleted {
		rows := m.rows()
		if m.fb.confirm && m.selectedIdx < len(rows) {
			return m, m.remove(rows[m.selectedIdx])
		}
		m.mode = modeList
		return m, nil
	}
	if m.confirmForm.State == huh.StateAborted {
		m.mode = modeList
		return m, nil
	}
	return m, cmd
}

func (m Model) updateActiveForm(msg tea.Msg) (Model, tea.Cmd) {
	switch m.mode {
	case modeForm:
		return m.updateForm(msg)
	case modeConfirmDelete:
		return m.updateConfirm(msg)
	}
	return m, nil
}

func (m Model) rows() []row {
	var out []row
	for _, c := range m.state.Categories {
		out = append(out, row{category: c})
		for i := range c.SubCategories {
			out = append(out, row{category: c, sub: &c.SubCategories[i]})
		}
	}
	return out
}

func (m Model) findCategory(id string) (model.Category, bool) {
	for _, c := range m.state.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}

// View renders the category manager.
func (m Model) View() string {
	switch m.mode {
	case modeForm:
		return m.viewForm(m.form)
	case modeConfirmDelete:
		return m.viewForm(m.confirmForm)
	default:
		return m.viewList()
	}
}

func (m Model) viewList() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	b.WriteString(titleStyle.Render("Categories"))
	b.WriteString("\n\n")

	rows := m.rows()
	switch {
	case len(rows) == 0 && m.state.Loading:
		b.WriteString(theme.DimmedStyle.Render("Loading categories..."))
	case len(rows) == 0 && m.state.Err != nil:
		b.WriteString(theme.ErrorStyle.Render(api.Message(m.state.Err)))
	case len(rows) == 0:
		emptyStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true)
		b.WriteString(emptyStyle.Render("No categories yet. Press 'n' to create one."))
	default:
		for i, r := range rows {
			var label string
			if r.sub != nil {
				label = fmt.Sprintf("    └ %s", r.sub.Name)
			} else {
				label = fmt.Sprintf("%s  %s", r.category.Name,
					theme.DimmedStyle.Render(fmt.Sprintf("%d complaints", r.category.TotalComplaints)))
			}

			if i == m.selectedIdx {
				b.WriteString(theme.SelectedItemStyle.Render(label))
			} else {
				b.WriteString(theme.ListItemStyle.Render(label))
			}
			b.WriteString("\n")
		}
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorGray).Render(
		"n new | a add subcategory | e edit | d delete | r refresh | esc back",
	))

	return lipgloss.NewStyle().Padding(1, 2).Width(m.width).Height(m.height).Render(b.String())
}

func (m Model) viewForm(f *huh.Form) string {
	if f == nil {
		return ""
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(f.View())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
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

func (m Model) reload() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		_, err := s.List(context.Background())
		return reloadedMsg{err: err}
	}
}

func (m Model) save() tea.Cmd {
	s := m.store
	name := strings.TrimSpace(m.fb.name)
	desc := strings.TrimSpace(m.fb.description)
	icon := m.icon
	editing := m.editing
	parentID := m.parentID
	targetID := m.targetID

	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if parentID == "" {
			in := model.CategoryInput{Name: name, Description: desc, Icon: icon}
			if editing {
				_, err = s.UpdateCategory(ctx, targetID, in)
			} else {
				_, err = s.CreateCategory(ctx, in)
			}
			return savedMsg{err: err}
		}

		in := model.SubCategoryInput{Name: name, Description: desc, Icon: icon}
		if editing {
			_, err = s.UpdateSubCategory(ctx, parentID, targetID, in)
		} else {
			_, err = s.AddSubCategory(ctx, parentID, in)
		}
		return savedMsg{err: err}
	}
}

func (m Model) remove(r row) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		if r.sub != nil {
			return deletedMsg{err: s.DeleteSubCategory(context.Background(), r.category.ID, r.sub.ID)}
		}
		return deletedMsg{err: s.DeleteCategory(context.Background(), r.category.ID)}
	}
}
