package categorypicker

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/selection"
	"github.com/nhle/complaint-desk/internal/store"
)

func categories() store.CategoryState {
	return store.CategoryState{Categories: []model.Category{
		{ID: "cat-park", Name: "Parking", TotalComplaints: 3},
		{
			ID:               "cat-fac",
			Name:             "Facilities",
			IsFrequentlyUsed: true,
			SubCategories: []model.SubCategory{
				{ID: "sub-plumb", Name: "Plumbing"},
				{ID: "sub-elec", Name: "Electrical"},
			},
		},
	}}
}

func newPicker(intent selection.Intent) Model {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetCategories(categories())
	m.Open(intent)
	return m
}

func press(m Model, msg tea.KeyMsg) (Model, tea.Msg) {
	m, cmd := m.Update(msg)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	up    = tea.KeyMsg{Type: tea.KeyUp}
)

func TestLeafCategoryHandsOff(t *testing.T) {
	m := newPicker(selection.IntentNewComplaint)

	m, msg := press(m, enter)

	require.IsType(t, HandOffMsg{}, msg)
	h := msg.(HandOffMsg).HandOff
	assert.Equal(t, "cat-park", h.CategoryID)
	assert.Equal(t, selection.IntentNewComplaint, h.Intent)
	assert.False(t, m.Active())
}

func TestDrillIntoSubcategories(t *testing.T) {
	m := newPicker(selection.IntentBrowse)

	m, _ = press(m, down)
	m, msg := press(m, enter)
	assert.Nil(t, msg)
	assert.Equal(t, selection.ChoosingSubCategory, m.Flow().Phase)
	assert.Contains(t, m.View(), "Plumbing")

	m, _ = press(m, up)
	m, msg = press(m, enter)
	require.IsType(t, HandOffMsg{}, msg)
	assert.Equal(t, selection.HandOff{
		CategoryID:    "cat-fac",
		SubCategoryID: "sub-elec",
		Intent:        selection.IntentBrowse,
	}, msg.(HandOffMsg).HandOff)
}

func TestEscapeStepsBackThenCloses(t *testing.T) {
	m := newPicker(selection.IntentBrowse)
	m, _ = press(m, down)
	m, _ = press(m, enter)
	require.Equal(t, selection.ChoosingSubCategory, m.Flow().Phase)

	m, msg := press(m, esc)
	assert.Nil(t, msg)
	assert.Equal(t, selection.ChoosingCategory, m.Flow().Phase)

	m, msg = press(m, esc)
	assert.IsType(t, ClosedMsg{}, msg)
	assert.False(t, m.Active())
}

func TestOpenAtLeafHandsOffDirectly(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)

	cmd := m.OpenAt(categories().Categories[0], selection.IntentNewComplaint)

	require.NotNil(t, cmd)
	assert.Equal(t, "cat-park", cmd().(HandOffMsg).HandOff.CategoryID)
	assert.False(t, m.Active())
}

func TestViewStates(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.Open(selection.IntentBrowse)

	m.SetCategories(store.CategoryState{Loading: true})
	assert.Contains(t, m.View(), "Loading categories")

	m.SetCategories(store.CategoryState{Err: errors.New("boom")})
	assert.Contains(t, m.View(), "boom")

	m.SetCategories(categories())
	view := m.View()
	assert.Contains(t, view, "Browse Categories")
	assert.Contains(t, view, "frequent")
	assert.Contains(t, view, "Facilities ›")
}

func TestSetCategoriesClampsCursor(t *testing.T) {
	m := newPicker(selection.IntentBrowse)
	m, _ = press(m, down)

	m.SetCategories(store.CategoryState{Categories: categories().Categories[:1]})

	m, msg := press(m, enter)
	require.IsType(t, HandOffMsg{}, msg)
	assert.Equal(t, "cat-park", msg.(HandOffMsg).HandOff.CategoryID)
}
