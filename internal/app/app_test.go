package app

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/selection"
	"github.com/nhle/complaint-desk/internal/session"
	"github.com/nhle/complaint-desk/internal/store"
	appsync "github.com/nhle/complaint-desk/internal/sync"
	"github.com/nhle/complaint-desk/internal/ui/categorypicker"
	"github.com/nhle/complaint-desk/internal/ui/command"
	"github.com/nhle/complaint-desk/internal/ui/complaintlist"
	helpview "github.com/nhle/complaint-desk/internal/ui/help"
	"github.com/nhle/complaint-desk/tests/testutil"
)

func signedToken(t *testing.T, user string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   user,
		"role": "user",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type harness struct {
	model      Model
	server     *testutil.FakeServer
	session    *session.Session
	categories *store.CategoryStore
	poller     *appsync.Poller
}

func newHarness(t *testing.T, signedIn bool) *harness {
	t.Helper()

	srv := testutil.NewFakeServer(t)
	srv.SetCategories(
		model.Category{ID: "cat-park", Name: "Parking", IsFrequentlyUsed: true},
		model.Category{ID: "cat-noise", Name: "Noise"},
	)

	sess := session.New(nil)
	if signedIn {
		require.NoError(t, sess.SetToken(signedToken(t, "u-42")))
	}

	client := api.NewClient(srv.APIURL(), sess)
	complaints := store.NewComplaintStore(client)
	categories := store.NewCategoryStore(client)
	poller := appsync.New(nil)
	t.Cleanup(poller.Stop)

	cfg := model.AppConfig{
		API:  model.APIConfig{BaseURL: srv.APIURL()},
		List: model.ListConfig{PageSize: 10, DashboardPageSize: 3, SearchDebounceMs: 100},
	}

	m := New(Deps{
		Complaints: complaints,
		Categories: categories,
		Session:    sess,
		Poller:     poller,
		Config:     &cfg,
	})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	return &harness{
		model:      updated.(Model),
		server:     srv,
		session:    sess,
		categories: categories,
		poller:     poller,
	}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	updated, cmd := h.model.Update(msg)
	h.model = updated.(Model)
	return cmd
}

func TestSignInRequiredOpensSessionView(t *testing.T) {
	h := newHarness(t, false)

	h.send(signInRequiredMsg{})

	assert.Equal(t, ViewSession, h.model.currentView)
	assert.Contains(t, h.model.View(), "signed out")
}

func TestHeaderShowsUser(t *testing.T) {
	h := newHarness(t, true)

	assert.Contains(t, h.model.View(), "Complaint Desk · u-42")
}

func TestNewComplaintFlowReachesForm(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.categories.List(context.Background())
	require.NoError(t, err)
	h.send(appsync.ChangedMsg{Source: appsync.SourceCategories})

	h.send(complaintlist.NewComplaintMsg{})
	require.True(t, h.model.picker.Active())
	assert.Equal(t, selection.IntentNewComplaint, h.model.picker.Flow().Intent)

	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, categorypicker.HandOffMsg{}, msg)

	h.send(msg)
	assert.Equal(t, ViewForm, h.model.currentView)
	assert.False(t, h.model.picker.Active())
}

func TestFrequentCategoryDigitOnDashboard(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.categories.List(context.Background())
	require.NoError(t, err)

	assert.Contains(t, h.model.View(), "1 Parking")

	cmd := h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}})
	require.NotNil(t, cmd)
	handOff := cmd().(categorypicker.HandOffMsg).HandOff
	assert.Equal(t, "cat-park", handOff.CategoryID)

	assert.Nil(t, h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'7'}}))
}

func TestSessionInvalidationOpensSignIn(t *testing.T) {
	h := newHarness(t, true)

	h.session.Invalidate()
	h.send(appsync.ChangedMsg{Source: appsync.SourceSession})

	assert.Equal(t, ViewSession, h.model.currentView)
	assert.Equal(t, "Session expired. Sign in again.", h.model.notice)
}

func TestCommandPalette(t *testing.T) {
	h := newHarness(t, true)

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{':'}})
	assert.Equal(t, ViewCommand, h.model.currentView)

	h.send(command.CommandMsg{Name: command.History})
	assert.Equal(t, ViewList, h.model.currentView)
	assert.Equal(t, complaintlist.ViewHistory, h.model.listView.ActiveView())

	h.send(command.CommandMsg{Name: command.Status, Arg: "archived"})
	assert.Equal(t, `Unknown status "archived".`, h.model.notice)

	h.send(command.CommandMsg{Name: command.Status, Arg: "resolved"})
	assert.Equal(t, "resolved", h.model.listView.Filters().Status)
}

func TestGlobalKeysIgnoredWhileSearching(t *testing.T) {
	h := newHarness(t, true)

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	require.True(t, h.model.listView.Searching())

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	assert.Equal(t, ViewList, h.model.currentView)
}

func TestHelpToggles(t *testing.T) {
	h := newHarness(t, true)

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	assert.Equal(t, ViewHelp, h.model.currentView)
	assert.Equal(t, helpview.SectionList, h.model.helpView.Section())
	assert.Contains(t, h.model.View(), "Keyboard Shortcuts · Complaints")

	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewList, h.model.currentView)
}

func TestHelpSectionFollowsView(t *testing.T) {
	assert.Equal(t, helpview.SectionDetail, helpSection(ViewDetail))
	assert.Equal(t, helpview.SectionCategories, helpSection(ViewCategories))
	assert.Equal(t, helpview.SectionSession, helpSection(ViewSession))
	assert.Equal(t, helpview.SectionForm, helpSection(ViewForm))
	assert.Equal(t, helpview.SectionList, helpSection(ViewList))
}
