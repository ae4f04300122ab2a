package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/selection"
	"github.com/nhle/complaint-desk/internal/session"
	"github.com/nhle/complaint-desk/internal/store"
	appsync "github.com/nhle/complaint-desk/internal/sync"
	"github.com/nhle/complaint-desk/internal/theme"
	"github.com/nhle/complaint-desk/internal/ui"
	"github.com/nhle/complaint-desk/internal/ui/categorymgr"
	"github.com/nhle/complaint-desk/internal/ui/categorypicker"
	"github.com/nhle/complaint-desk/internal/ui/command"
	"github.com/nhle/complaint-desk/internal/ui/complaintform"
	"github.com/nhle/complaint-desk/internal/ui/complaintlist"
	"github.com/nhle/complaint-desk/internal/ui/detail"
	helpview "github.com/nhle/complaint-desk/internal/ui/help"
	"github.com/nhle/complaint-desk/internal/ui/signin"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewForm
	ViewCategories
	ViewSession
	ViewHelp
	ViewCommand
)

// Deps are the long-lived collaborators the UI drives.
type Deps struct {
	Complaints *store.ComplaintStore
	Categories *store.CategoryStore
	Session    *session.Session

	// Prefs persists list filters; nil disables persistence.
	Prefs  complaintlist.FilterPrefs
	Poller *appsync.Poller
	Config *model.AppConfig
	Logger *logrus.Logger
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the shared stores.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	complaints *store.ComplaintStore
	categories *store.CategoryStore
	session    *session.Session
	poller     *appsync.Poller

	listView     complaintlist.Model
	detail       detail.Model
	form         complaintform.Model
	picker       categorypicker.Model
	categoryView categorymgr.Model
	sessionView  signin.Model
	helpView     helpview.Model
	commandView  command.Model

	ready  bool
	notice string
}

// New creates the root application model.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()
	cfg := d.Config

	return Model{
		currentView: ViewList,
		keys:        k,
		complaints:  d.Complaints,
		categories:  d.Categories,
		session:     d.Session,
		poller:      d.Poller,
		listView: complaintlist.New(d.Complaints, d.Prefs, k, complaintlist.Options{
			PageSize:          cfg.List.PageSize,
			DashboardPageSize: cfg.List.DashboardPageSize,
			SearchQuiet:       time.Duration(cfg.List.SearchDebounceMs) * time.Millisecond,
			Logger:            d.Logger,
		}, 80, 24),
		detail:       detail.New(d.Complaints, k, 80, 24),
		form:         complaintform.New(d.Complaints, 80, 24),
		picker:       categorypicker.New(k, 80, 24),
		categoryView: categorymgr.New(d.Categories, k, 80, 24),
		sessionView:  signin.New(d.Session, cfg.API.BaseURL, k, 80, 24),
		helpView:     helpview.New(k, 80, 24),
		commandView:  command.NewModel(80, 24),
	}
}

// Init loads the listing and categories and starts forwarding store
// changes. Without a session it opens the sign-in view first.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.listView.Init(), m.poller.Start()}
	if m.session.Authenticated() {
		m.poller.RefreshAll()
		return tea.Batch(cmds...)
	}
	return tea.Batch(append(cmds, func() tea.Msg { return signInRequiredMsg{} })...)
}

// signInRequiredMsg opens the sign-in view.
type signInRequiredMsg struct{}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.listView.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.form.SetSize(w, h)
		m.picker.SetSize(w, m.layout.OverlayHeight())
		m.categoryView.SetSize(w, h)
		m.sessionView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case appsync.ChangedMsg:
		cmd := m.handleChanged(msg.Source)
		return m, tea.Batch(cmd, m.poller.WaitForNextResult())

	case signInRequiredMsg:
		return m.openSession()

	case complaintlist.SelectedComplaintMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		cmd := m.detail.Open(msg.ID)
		return m, cmd

	case complaintlist.NewComplaintMsg:
		m.picker.Open(selection.IntentNewComplaint)
		return m, nil

	case complaintlist.BrowseCategoriesMsg:
		m.picker.Open(selection.IntentBrowse)
		return m, nil

	case categorypicker.HandOffMsg:
		m.previousView = ViewList
		m.currentView = ViewForm
		cmd := m.form.Start(msg.HandOff, m.categories.State().Categories)
		return m, cmd

	case categorypicker.ClosedMsg:
		return m, nil

	case complaintform.CreatedMsg:
		m.currentView = ViewList
		m.notice = fmt.Sprintf("Complaint %q submitted.", msg.Complaint.Title)
		return m, m.listView.Load()

	case complaintform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case categorymgr.CloseMsg:
		m.currentView = ViewList
		return m, nil

	case signin.DoneMsg:
		m.currentView = m.previousView
		return m, nil

	case signin.SignedInMsg:
		m.notice = "Signed in as " + msg.User
		m.currentView = ViewList
		m.poller.RefreshAll()
		return m, m.listView.Load()

	case signin.SignedOutMsg:
		m.notice = "Signed out."
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case tea.KeyMsg:
		if mdl, cmd, handled := m.handleGlobalKey(msg); handled {
			return mdl, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleChanged refreshes the views that render the changed source.
func (m *Model) handleChanged(src appsync.Source) tea.Cmd {
	switch src {
	case appsync.SourceComplaints:
		m.detail.SyncFromStore()
		return m.listView.SyncFromStore()
	case appsync.SourceCategories:
		m.picker.SetCategories(m.categories.State())
		m.categoryView.SyncFromStore()
	case appsync.SourceSession:
		if !m.session.Authenticated() {
			m.notice = "Session expired. Sign in again."
			if m.currentView != ViewSession {
				m.previousView = ViewList
				m.currentView = ViewSession
				return m.sessionView.Start()
			}
		}
	}
	return nil
}

// handleGlobalKey processes keys that work across views. handled is
// false when the key belongs to the active view.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, m.quit(), true
	}

	// The picker is modal over the list.
	if m.picker.Active() {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd, true
	}

	if m.capturingText() {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.helpView.Open(helpSection(m.currentView))
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		if m.currentView == ViewCommand {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.commandView.Focus()
		return m, cmd, true

	case key.Matches(msg, m.keys.Back) && (m.currentView == ViewHelp || m.currentView == ViewCommand):
		m.currentView = m.previousView
		return m, nil, true
	}

	if m.currentView != ViewList {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit(), true

	case key.Matches(msg, m.keys.Categories):
		mdl, cmd := m.openCategories()
		return mdl, cmd, true

	case key.Matches(msg, m.keys.Session):
		mdl, cmd := m.openSession()
		return mdl, cmd, true

	case m.listView.ActiveView() == complaintlist.ViewDashboard && isDigit(msg.String()):
		// Frequent categories are numbered on the dashboard.
		n, _ := strconv.Atoi(msg.String())
		frequent := m.categories.State().Frequent
		if n < 1 || n > len(frequent) {
			return m, nil, true
		}
		cmd := m.picker.OpenAt(frequent[n-1], selection.IntentNewComplaint)
		return m, cmd, true
	}
	return m, nil, false
}

// capturingText reports whether the active view is consuming raw key
// input, so single-letter global keys must not fire.
func (m Model) capturingText() bool {
	switch m.currentView {
	case ViewList:
		return m.listView.Searching()
	case ViewDetail:
		return m.detail.Editing()
	case ViewCategories:
		return m.categoryView.Editing()
	case ViewForm, ViewCommand:
		return true
	case ViewSession:
		return m.sessionView.Mode() != signin.ModeStatus
	}
	return false
}

func (m Model) openCategories() (Model, tea.Cmd) {
	m.previousView = m.currentView
	m.currentView = ViewCategories
	m.categoryView.SyncFromStore()
	return m, m.categoryView.Init()
}

func (m Model) openSession() (Model, tea.Cmd) {
	if m.currentView != ViewSession {
		m.previousView = m.currentView
	}
	m.currentView = ViewSession
	cmd := m.sessionView.Start()
	return m, cmd
}

// quit stops forwarding and releases the stores.
func (m Model) quit() tea.Cmd {
	m.poller.Stop()
	m.listView.Close()
	m.complaints.Dispose()
	m.categories.Dispose()
	return tea.Quit
}

// executeCommand runs a command from the command palette.
func (m Model) executeCommand(c command.CommandMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch c.Name {
	case command.Refresh:
		m.poller.RefreshAll()
		cmd = m.listView.Load()
	case command.New:
		m.currentView = ViewList
		m.picker.Open(selection.IntentNewComplaint)
	case command.Browse:
		m.currentView = ViewList
		m.picker.Open(selection.IntentBrowse)
	case command.Categories:
		return m.openCategories()
	case command.Session:
		return m.openSession()
	case command.Dashboard:
		m.currentView = ViewList
		m.listView, cmd = m.listView.SetView(complaintlist.ViewDashboard)
	case command.History:
		m.currentView = ViewList
		m.listView, cmd = m.listView.SetView(complaintlist.ViewHistory)
	case command.Search:
		m.currentView = ViewList
		m.listView, cmd = m.listView.UpdateFilters(func(f model.FilterState) model.FilterState {
			return f.WithSearch(strings.TrimSpace(c.Arg))
		})
	case command.Status:
		if c.Arg != model.StatusAll && !model.Status(c.Arg).Valid() {
			m.notice = fmt.Sprintf("Unknown status %q.", c.Arg)
			return m, nil
		}
		m.currentView = ViewList
		m.listView, cmd = m.listView.UpdateFilters(func(f model.FilterState) model.FilterState {
			return f.WithStatus(c.Arg)
		})
	case command.Priority:
		p := model.Priority(c.Arg)
		if c.Arg == "any" {
			p = ""
		} else if !p.Valid() {
			m.notice = fmt.Sprintf("Unknown priority %q.", c.Arg)
			return m, nil
		}
		m.currentView = ViewList
		m.listView, cmd = m.listView.UpdateFilters(func(f model.FilterState) model.FilterState {
			return f.WithPriority(p)
		})
	case command.Clear:
		m.currentView = ViewList
		m.listView, cmd = m.listView.UpdateFilters(model.FilterState.Reset)
	case command.Quit:
		return m, m.quit()
	}
	return m, cmd
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.listView, cmd = m.listView.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewForm:
		m.form, cmd = m.form.Update(msg)
	case ViewCategories:
		m.categoryView, cmd = m.categoryView.Update(msg)
	case ViewSession:
		m.sessionView, cmd = m.sessionView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	// Async results of the list arrive while other views are showing.
	if m.currentView != ViewList {
		if _, isKey := msg.(tea.KeyMsg); !isKey {
			var listCmd tea.Cmd
			m.listView, listCmd = m.listView.Update(msg)
			cmd = tea.Batch(cmd, listCmd)
		}
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

func (m Model) headerTitle() string {
	title := "Complaint Desk"
	if m.session.Authenticated() {
		title += " · " + m.session.Claims().User()
	}
	return title
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		if m.picker.Active() {
			return lipgloss.Place(
				m.layout.ContentWidth(), m.layout.ContentHeight(),
				lipgloss.Center, lipgloss.Center,
				m.picker.View(),
			)
		}
		content := m.listView.View()
		if strip := m.frequentStrip(); strip != "" {
			content = lipgloss.JoinVertical(lipgloss.Left, strip, content)
		}
		return content
	case ViewDetail:
		return m.detail.View()
	case ViewForm:
		return m.form.View()
	case ViewCategories:
		return m.categoryView.View()
	case ViewSession:
		return m.sessionView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// frequentStrip lists the frequently used categories on the dashboard
// with the digit that opens each.
func (m Model) frequentStrip() string {
	if m.listView.ActiveView() != complaintlist.ViewDashboard {
		return ""
	}
	frequent := m.categories.State().Frequent
	if len(frequent) == 0 {
		return ""
	}

	parts := make([]string, 0, len(frequent))
	for i, c := range frequent {
		if i == 9 {
			break
		}
		parts = append(parts, fmt.Sprintf("%d %s", i+1, c.Name))
	}
	return theme.FrequentBadgeStyle.Render("★ Frequent: ") + theme.DimmedStyle.Render(strings.Join(parts, " · "))
}

// syncStatus returns a short string describing the combined refresh state.
func (m Model) syncStatus() string {
	if !m.session.Authenticated() {
		return "signed out"
	}

	running := 0
	var failed []string
	for _, s := range m.poller.GetStatuses() {
		switch s.State {
		case appsync.SyncRunning:
			running++
		case appsync.SyncError:
			failed = append(failed, string(s.Source))
		}
	}

	switch {
	case running > 0:
		return fmt.Sprintf("syncing (%d)", running)
	case len(failed) > 0:
		return "⚠ unreachable: " + strings.Join(failed, ", ")
	case m.categories.State().FromCache:
		return "offline categories"
	}
	return "idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.notice != "" && m.currentView == ViewList {
		return m.notice
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | c comment | u status | r refresh | j/k scroll"
	case ViewForm:
		return "enter next | esc cancel"
	case ViewCategories:
		return "n new | a add subcategory | e edit | d delete | esc back"
	case ViewSession:
		return "enter new token | o sign out | esc back"
	default:
		if m.picker.Active() {
			return "enter select | esc back"
		}
		if summary := m.listView.FilterSummary(); summary != "" {
			return summary + " | x clear"
		}
		return "q quit | ? help | n new | b browse | / search | s status | p priority | tab sort | h history"
	}
}

func isDigit(s string) bool {
	return len(s) == 1 && s[0] >= '1' && s[0] <= '9'
}

func helpSection(v ViewState) helpview.Section {
	switch v {
	case ViewDetail:
		return helpview.SectionDetail
	case ViewCategories:
		return helpview.SectionCategories
	case ViewSession:
		return helpview.SectionSession
	case ViewForm:
		return helpview.SectionForm
	default:
		return helpview.SectionList
	}
}
