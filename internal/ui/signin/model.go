package signin

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/session"
	"github.com/nhle/complaint-desk/internal/theme"
)

// Session is the part of the session the sign-in view drives.
type Session interface {
	SetToken(tok string) error
	Claims() session.Claims
	Authenticated() bool
	Expired() bool
	Invalidate()
}

// Mode represents the current state of the sign-in view.
type Mode int

const (
	ModeStatus     Mode = iota // Show who is signed in
	ModeForm                   // Paste a token
	ModeConfirmOut             // Confirm sign out
)

// DoneMsg signals the view should close.
type DoneMsg struct{}

// SignedInMsg is sent after a token was accepted.
type SignedInMsg struct {
	User string
}

// SignedOutMsg is sent after the session was revoked.
type SignedOutMsg struct{}

// Model is the Bubble Tea model for managing the API session.
type Model struct {
	mode    Mode
	session Session
	baseURL string

	form        *huh.Form
	confirmForm *huh.Form
	formToken   *string
	confirm     *bool

	statusMsg string

	keys          *keys.KeyMap
	width, height int
}

// New creates a new sign-in view model.
func New(s Session, baseURL string, k *keys.KeyMap, width, height int) Model {
	return Model{
		mode:      ModeStatus,
		session:   s,
		baseURL:   baseURL,
		formToken: new(string),
		confirm:   new(bool),
		keys:      k,
		width:     width,
		height:    height,
	}
}

// Start opens the view, going straight to the token form when nobody is
// signed in.
func (m *Model) Start() tea.Cmd {
	m.statusMsg = ""
	if m.session.Authenticated() {
		m.mode = ModeStatus
		return nil
	}
	return m.openForm()
}

// Mode returns the current mode.
func (m Model) Mode() Mode {
	return m.mode
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && m.mode == ModeStatus {
		return m.handleStatusKeys(keyMsg)
	}

	switch m.mode {
	case ModeForm:
		return m.updateForm(msg)
	case ModeConfirmOut:
		return m.updateConfirm(msg)
	}
	return m, nil
}

func (m Model) handleStatusKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return DoneMsg{} }
	case key.Matches(msg, m.keys.Select):
		cmd := m.openForm()
		return m, cmd
	case msg.String() == "o":
		if !m.session.Authenticated() {
			return m, nil
		}
		*m.confirm = false
		m.confirmForm = m.buildConfirmForm()
		m.mode = ModeConfirmOut
		return m, m.confirmForm.Init()
	}
	return m, nil
}

func (m *Model) openForm() tea.Cmd {
	*m.formToken = ""
	m.form = m.buildForm()
	m.mode = ModeForm
	return m.form.Init()
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Token").
				Description("Bearer token issued by " + m.baseURL).
				EchoMode(huh.EchoModePassword).
				Value(m.formToken).
				Validate(validateToken),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildConfirmForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Sign out?").
				Description("The stored token is removed from the keyring.").
				Affirmative("Sign out").
				Negative("Cancel").
				Value(m.confirm),
		),
	).WithWidth(m.formWidth())
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
		return m.submitToken()
	}
	if m.form.State == huh.StateAborted {
		m.mode = ModeStatus
		if !m.session.Authenticated() {
			return m, func() tea.Msg { return DoneMsg{} }
		}
		return m, nil
	}
	return m, cmd
}

func (m Model) submitToken() (Model, tea.Cmd) {
	m.mode = ModeStatus
	if err := m.session.SetToken(*m.formToken); err != nil {
		m.statusMsg = fmt.Sprintf("Token rejected: %v", err)
		return m, nil
	}
	*m.formToken = ""
	user := m.session.Claims().User()
	m.statusMsg = "Signed in"
	return m, func() tea.Msg { return SignedInMsg{User: user} }
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
		m.mode = ModeStatus
		if *m.confirm {
			m.session.Invalidate()
			m.statusMsg = "Signed out"
			return m, func() tea.Msg { return SignedOutMsg{} }
		}
		return m, nil
	}
	if m.confirmForm.State == huh.StateAborted {
		m.mode = ModeStatus
		return m, nil
	}
	return m, cmd
}

// View renders the sign-in view.
func (m Model) View() string {
	switch m.mode {
	case ModeForm:
		return m.viewForm(m.form)
	case ModeConfirmOut:
		return m.viewForm(m.confirmForm)
	default:
		return m.viewStatus()
	}
}

func (m Model) viewStatus() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	b.WriteString(titleStyle.Render("Session"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Server:  %s\n", m.baseURL))

	if m.session.Authenticated() {
		claims := m.session.Claims()
		okStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen)
		b.WriteString(fmt.Sprintf("User:    %s\n", okStyle.Render(claims.User())))
		if claims.Role != "" {
			b.WriteString(fmt.Sprintf("Role:    %s\n", claims.Role))
		}
		if claims.ExpiresAt != nil {
			b.WriteString(fmt.Sprintf("Expires: %s\n", claims.ExpiresAt.Time.Local().Format(time.DateTime)))
		}
	} else {
		b.WriteString(theme.ErrorStyle.Render("Not signed in"))
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.statusMsg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorGray).Render("enter new token | o sign out | esc back"))

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(b.String())
}

func (m Model) viewForm(f *huh.Form) string {
	if f == nil {
		return ""
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(f.View())
}

// SetSize updates the view dimensions.
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

// validateToken checks the shape of a JWT: three dot-separated segments.
func validateToken(s string) error {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Bearer "))
	if s == "" {
		return fmt.Errorf("token is required")
	}
	if strings.Count(s, ".") != 2 {
		return fmt.Errorf("token must be a JWT (header.payload.signature)")
	}
	return nil
}
