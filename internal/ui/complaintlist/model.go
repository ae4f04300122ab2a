package complaintlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/debounce"
	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/logging"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/store"
	"github.com/nhle/complaint-desk/internal/theme"
)

// View names, also used as keys for persisted filters.
const (
	ViewDashboard = "dashboard"
	ViewHistory   = "history"
)

// Store is the part of the complaint store the list uses.
type Store interface {
	State() store.ComplaintState
	List(ctx context.Context, filters model.FilterState) (fetch.Outcome, error)
	Remove(ctx context.Context, id string) error
}

// FilterPrefs persists filters per view. *cache.SQLiteCache implements
// it.
type FilterPrefs interface {
	SaveFilters(ctx context.Context, view string, f model.FilterState) error
	LoadFilters(ctx context.Context, view string) (model.FilterState, bool, error)
}

// SelectedComplaintMsg is sent when the user opens a complaint.
type SelectedComplaintMsg struct {
	ID string
}

// NewComplaintMsg asks the parent to start the new-complaint flow.
type NewComplaintMsg struct{}

// BrowseCategoriesMsg asks the parent to open the category browser.
type BrowseCategoriesMsg struct{}

// listedMsg reports the end of a List call.
type listedMsg struct {
	outcome fetch.Outcome
	err     error
}

// searchSettledMsg carries search text once typing paused.
type searchSettledMsg struct {
	text string
}

// deletedMsg reports the end of a delete.
type deletedMsg struct {
	id  string
	err error
}

// filtersLoadedMsg carries persisted filters for a view.
type filtersLoadedMsg struct {
	view    string
	filters model.FilterState
	ok      bool
}

// searchFeed carries debounced search text from the timer goroutine to
// the Bubble Tea runtime. Only the latest value matters.
type searchFeed chan string

func (f searchFeed) push(text string) {
	for {
		select {
		case f <- text:
			return
		default:
		}
		select {
		case <-f:
		default:
		}
	}
}

// Model is the complaint list view. It drives the complaint store with
// the current filters and renders its state.
type Model struct {
	store    Store
	prefs    FilterPrefs
	log      *logrus.Entry
	keys     *keys.KeyMap
	list     list.Model
	spinner  spinner.Model
	search   textinput.Model
	searchOn bool
	debounce *debounce.Debouncer[string]
	feed     searchFeed

	view      string
	filters   map[string]model.FilterState
	pageSizes map[string]int

	state   store.ComplaintState
	message string
	width   int
	height  int
}

// Options configures New.
type Options struct {
	PageSize          int
	DashboardPageSize int
	SearchQuiet       time.Duration
	Logger            *logrus.Logger
}

// New creates a complaint list view starting on the dashboard.
func New(s Store, prefs FilterPrefs, k *keys.KeyMap, opts Options, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-3)
	l.Title = "Complaints"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search complaints..."
	si.Prompt = "/ "
	si.Width = width - 4

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	feed := make(searchFeed, 1)

	pageSizes := map[string]int{
		ViewDashboard: opts.DashboardPageSize,
		ViewHistory:   opts.PageSize,
	}
	filters := make(map[string]model.FilterState, 2)
	for view, size := range pageSizes {
		filters[view] = model.DefaultFilterState().WithPageSize(size)
	}

	return Model{
		store:     s,
		prefs:     prefs,
		log:       logging.Component(opts.Logger, "complaintlist"),
		keys:      k,
		list:      l,
		spinner:   sp,
		search:    si,
		debounce:  debounce.New(opts.SearchQuiet, feed.push),
		feed:      feed,
		view:      ViewDashboard,
		filters:   filters,
		pageSizes: pageSizes,
		width:     width,
		height:    height,
	}
}

// Init loads persisted filters for both views and starts listening for
// settled search text.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadFilters(ViewDashboard),
		m.loadFilters(ViewHistory),
		m.waitForSearch(),
	)
}

// Filters returns the filters of the active view.
func (m Model) Filters() model.FilterState {
	return m.filters[m.view]
}

// ActiveView returns the name of the active view.
func (m Model) ActiveView() string {
	return m.view
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchOn
}

// Update handles messages for the complaint list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case filtersLoadedMsg:
		if msg.ok {
			f := msg.filters.WithPageSize(m.pageSizes[msg.view])
			f.Search = strings.TrimSpace(f.Search)
			m.filters[msg.view] = f
		}
		if msg.view == m.view {
			m.search.SetValue(m.filters[m.view].Search)
			return m, m.Load()
		}
		return m, nil

	case listedMsg:
		if msg.err != nil && !store.IsAborted(msg.err) {
			m.message = api.Message(msg.err)
		}
		return m, nil

	case searchSettledMsg:
		return m.applySearch(msg.text, m.waitForSearch())

	case deletedMsg:
		if msg.err != nil {
			m.message = api.Message(msg.err)
			return m, nil
		}
		m.message = "Complaint deleted."
		// The store stepped back a page if the deleted item was the last
		// one on it; reload so the page is full again.
		st := m.store.State()
		m.filters[m.view] = m.filters[m.view].WithPage(st.CurrentPage)
		return m, m.Load()

	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searchOn {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SyncFromStore re-reads the store. The parent calls it whenever the
// complaint store signals a change.
func (m *Model) SyncFromStore() tea.Cmd {
	wasLoading := m.state.Loading
	m.state = m.store.State()

	items := make([]list.Item, len(m.state.Items))
	for i, c := range m.state.Items {
		items[i] = ComplaintItem{Complaint: c}
	}
	cmd := m.list.SetItems(items)

	if m.state.Loading && !wasLoading {
		return tea.Batch(cmd, m.spinner.Tick)
	}
	return cmd
}

// handleSearchKeys processes key input while the search box has focus.
// Every keystroke restarts the debounce; enter applies at once.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchOn = false
		m.search.Blur()
		m.debounce.Push(m.search.Value())
		return m.applySearch(m.search.Value(), nil)

	case "esc":
		m.searchOn = false
		m.search.Blur()
		m.search.Reset()
		m.debounce.Push("")
		return m.applySearch("", nil)
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.debounce.Push(m.search.Value())
	return m, cmd
}

// applySearch moves to page 1 with the new text unless it matches the
// current search.
func (m Model) applySearch(text string, next tea.Cmd) (Model, tea.Cmd) {
	text = strings.TrimSpace(text)
	f := m.filters[m.view]
	if text == f.Search {
		return m, next
	}
	m.filters[m.view] = f.WithSearch(text)
	return m, tea.Batch(next, m.Load(), m.saveFilters())
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	f := m.filters[m.view]

	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(ComplaintItem)
		if !ok {
			return m, nil
		}
		id := item.Complaint.ID
		return m, func() tea.Msg { return SelectedComplaintMsg{ID: id} }

	case key.Matches(msg, m.keys.Search):
		m.searchOn = true
		m.search.SetValue(f.Search)
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.CycleStatus):
		return m.setFilters(f.WithStatus(nextStatus(f.Status)))

	case key.Matches(msg, m.keys.CyclePriority):
		return m.setFilters(f.WithPriority(nextPriority(f.Priority)))

	case key.Matches(msg, m.keys.CycleSort):
		return m.setFilters(f.WithSort(nextSort(f.Sort)))

	case key.Matches(msg, m.keys.ClearFilters):
		m.search.Reset()
		return m.setFilters(f.Reset())

	case key.Matches(msg, m.keys.PrevPage):
		if f.Page <= 1 {
			return m, nil
		}
		return m.setFilters(f.WithPage(f.Page - 1))

	case key.Matches(msg, m.keys.NextPage):
		if m.state.TotalPages > 0 && f.Page >= m.state.TotalPages {
			return m, nil
		}
		return m.setFilters(f.WithPage(f.Page + 1))

	case key.Matches(msg, m.keys.Refresh):
		m.message = ""
		return m, m.Load()

	case key.Matches(msg, m.keys.ToggleView):
		if m.view == ViewDashboard {
			return m.SetView(ViewHistory)
		}
		return m.SetView(ViewDashboard)

	case key.Matches(msg, m.keys.Delete):
		item, ok := m.list.SelectedItem().(ComplaintItem)
		if !ok {
			return m, nil
		}
		if !item.Complaint.Deletable() {
			m.message = "Only pending complaints can be deleted."
			return m, nil
		}
		return m, m.remove(item.Complaint.ID)

	case key.Matches(msg, m.keys.New):
		return m, func() tea.Msg { return NewComplaintMsg{} }

	case key.Matches(msg, m.keys.Browse):
		return m, func() tea.Msg { return BrowseCategoriesMsg{} }
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetView switches to the dashboard or history view and lists it.
func (m Model) SetView(view string) (Model, tea.Cmd) {
	if _, ok := m.pageSizes[view]; !ok || view == m.view {
		return m, nil
	}
	m.view = view
	m.search.SetValue(m.filters[m.view].Search)
	m.message = ""
	return m, m.Load()
}

// UpdateFilters applies fn to the active view's filters, then reloads and
// persists them.
func (m Model) UpdateFilters(fn func(model.FilterState) model.FilterState) (Model, tea.Cmd) {
	f := fn(m.filters[m.view])
	m.search.SetValue(f.Search)
	return m.setFilters(f)
}

func (m Model) setFilters(f model.FilterState) (Model, tea.Cmd) {
	m.filters[m.view] = f
	m.message = ""
	return m, tea.Batch(m.Load(), m.saveFilters())
}

// Load returns a command that lists the active view's filters.
func (m Model) Load() tea.Cmd {
	s := m.store
	f := m.filters[m.view]
	return func() tea.Msg {
		out, err := s.List(context.Background(), f)
		return listedMsg{outcome: out, err: err}
	}
}

func (m Model) remove(id string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		return deletedMsg{id: id, err: s.Remove(context.Background(), id)}
	}
}

func (m Model) saveFilters() tea.Cmd {
	if m.prefs == nil {
		return nil
	}
	prefs := m.prefs
	log := m.log
	view := m.view
	f := m.filters[view]
	return func() tea.Msg {
		// Persisting is best effort; the listing works without it.
		if err := prefs.SaveFilters(context.Background(), view, f); err != nil {
			log.WithError(err).WithField("view", view).Warn("saving filters")
		}
		return nil
	}
}

func (m Model) loadFilters(view string) tea.Cmd {
	prefs := m.prefs
	log := m.log
	return func() tea.Msg {
		if prefs == nil {
			return filtersLoadedMsg{view: view}
		}
		f, ok, err := prefs.LoadFilters(context.Background(), view)
		if err != nil {
			log.WithError(err).WithField("view", view).Warn("loading filters")
			return filtersLoadedMsg{view: view}
		}
		return filtersLoadedMsg{view: view, filters: f, ok: ok}
	}
}

func (m Model) waitForSearch() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		return searchSettledMsg{text: <-feed}
	}
}

// Close stops the search debouncer.
func (m Model) Close() {
	m.debounce.Stop()
}

// nextStatus cycles all -> each status -> all.
func nextStatus(current string) string {
	if current == model.StatusAll || current == "" {
		return string(model.Statuses[0])
	}
	for i, s := range model.Statuses {
		if string(s) == current && i+1 < len(model.Statuses) {
			return string(model.Statuses[i+1])
		}
	}
	return model.StatusAll
}

// nextPriority cycles any -> each priority -> any.
func nextPriority(current model.Priority) model.Priority {
	if current == "" {
		return model.Priorities[0]
	}
	for i, p := range model.Priorities {
		if p == current && i+1 < len(model.Priorities) {
			return model.Priorities[i+1]
		}
	}
	return ""
}

func nextSort(current model.SortOrder) model.SortOrder {
	for i, s := range model.SortOrders {
		if s == current {
			return model.SortOrders[(i+1)%len(model.SortOrders)]
		}
	}
	return model.SortOrders[0]
}

// FilterSummary describes the active filters for the status bar.
func (m Model) FilterSummary() string {
	f := m.filters[m.view]
	parts := []string{"status: " + f.Status, "sort: " + string(f.Sort)}
	if f.Priority != "" {
		parts = append(parts, "priority: "+string(f.Priority))
	}
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("search: %q", f.Search))
	}
	return strings.Join(parts, " · ")
}

// View renders the complaint list view.
func (m Model) View() string {
	var sections []string

	if m.searchOn {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.search.View()))
	}

	sections = append(sections, m.renderSummary())

	switch {
	case m.state.Err != nil:
		sections = append(sections, m.renderCentered(
			theme.ErrorStyle.Render(api.Message(m.state.Err))+"\n\nPress r to retry.",
		))
	case len(m.list.Items()) == 0 && !m.state.Loading:
		sections = append(sections, m.renderEmptyState())
	default:
		m.list.Title = m.title()
		sections = append(sections, m.list.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) title() string {
	if m.view == ViewHistory {
		return "Complaint History"
	}
	return "Dashboard"
}

// renderSummary is the line above the list: paging, totals, loading and
// the last action message.
func (m Model) renderSummary() string {
	page := m.state.CurrentPage
	if page < 1 {
		page = 1
	}
	pages := m.state.TotalPages
	if pages < 1 {
		pages = 1
	}
	line := fmt.Sprintf("%s · page %d/%d · %d total", m.title(), page, pages, m.state.TotalCount)
	if m.state.Loading {
		line += " " + m.spinner.View() + " loading"
	}
	if m.message != "" {
		line += "  " + m.message
	}
	return theme.DimmedStyle.Padding(0, 1).Render(line)
}

// renderEmptyState shows guidance text when no complaints are listed.
func (m Model) renderEmptyState() string {
	if m.filters[m.view].IsFiltered() {
		return m.renderCentered("No matching complaints.\nPress x to clear filters.")
	}
	return m.renderCentered("No complaints yet.\n\nPress n to file one or b to browse categories.")
}

func (m Model) renderCentered(text string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height-3).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-3)
	m.search.Width = width - 4
}
