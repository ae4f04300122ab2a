package categorymgr

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/keys"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/store"
)

type fakeStore struct {
	state store.CategoryState
	calls []string
	err   error
	last  interface{}
}

func (f *fakeStore) State() store.CategoryState { return f.state }

func (f *fakeStore) List(context.Context) (fetch.Outcome, error) {
	f.calls = append(f.calls, "list")
	return fetch.Applied, f.err
}

func (f *fakeStore) CreateCategory(_ context.Context, in model.CategoryInput) (model.Category, error) {
	f.calls = append(f.calls, "create")
	f.last = in
	return model.Category{}, f.err
}

func (f *fakeStore) UpdateCategory(_ context.Context, id string, in model.CategoryInput) (model.Category, error) {
	f.calls = append(f.calls, "update:"+id)
	f.last = in
	return model.Category{}, f.err
}

func (f *fakeStore) DeleteCategory(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete:"+id)
	return f.err
}

func (f *fakeStore) AddSubCategory(_ context.Context, categoryID string, in model.SubCategoryInput) (model.Category, error) {
	f.calls = append(f.calls, "add-sub:"+categoryID)
	f.last = in
	return model.Category{}, f.err
}

func (f *fakeStore) UpdateSubCategory(
	_ context.Context,
	categoryID, subCategoryID string,
	in model.SubCategoryInput,
) (model.Category, error) {
	f.calls = append(f.calls, "update-sub:"+categoryID+"/"+subCategoryID)
	f.last = in
	return model.Category{}, f.err
}

func (f *fakeStore) DeleteSubCategory(_ context.Context, categoryID, subCategoryID string) error {
	f.calls = append(f.calls, "delete-sub:"+categoryID+"/"+subCategoryID)
	return f.err
}

func newManager() (Model, *fakeStore) {
	s := &fakeStore{state: store.CategoryState{Categories: []model.Category{
		{ID: "cat-park", Name: "Parking", TotalComplaints: 4},
		{
			ID:          "cat-fac",
			Name:        "Facilities",
			Description: "Building issues",
			Icon:        "aWNvbg==",
			SubCategories: []model.SubCategory{
				{ID: "sub-plumb", Name: "Plumbing", Description: "Leaks and pipes"},
			},
		},
	}}}
	return New(s, keys.DefaultKeyMap(), 100, 40), s
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestRowsFlattenTree(t *testing.T) {
	m, _ := newManager()

	rows := m.rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "Parking", rows[0].name())
	assert.Equal(t, "Facilities", rows[1].name())
	assert.Equal(t, "Plumbing", rows[2].name())
	assert.Equal(t, "cat-fac", rows[2].category.ID)

	view := m.View()
	assert.Contains(t, view, "4 complaints")
	assert.Contains(t, view, "└ Plumbing")
}

func TestBackCloses(t *testing.T) {
	m, _ := newManager()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	require.NotNil(t, cmd)
	assert.IsType(t, CloseMsg{}, cmd())
}

func TestNavigationWraps(t *testing.T) {
	m, _ := newManager()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, m.selectedIdx)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, m.selectedIdx)
}

func TestEditPrefillsFromSelectedRow(t *testing.T) {
	m, _ := newManager()
	m.selectedIdx = 2

	m, _ = m.Update(runeKey('e'))

	assert.True(t, m.Editing())
	assert.True(t, m.editing)
	assert.Equal(t, "cat-fac", m.parentID)
	assert.Equal(t, "sub-plumb", m.targetID)
	assert.Equal(t, "Plumbing", m.fb.name)
	assert.Equal(t, "Edit subcategory", m.formTitle())
}

func TestSaveDispatchesByTarget(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(m *Model)
		wantCall string
		wantIn   interface{}
	}{
		{
			name:     "new category",
			setup:    func(m *Model) {},
			wantCall: "create",
			wantIn:   model.CategoryInput{Name: "Noise", Description: "Loud neighbours"},
		},
		{
			name: "edit category keeps icon",
			setup: func(m *Model) {
				m.editing, m.targetID, m.icon = true, "cat-fac", "aWNvbg=="
			},
			wantCall: "update:cat-fac",
			wantIn:   model.CategoryInput{Name: "Noise", Description: "Loud neighbours", Icon: "aWNvbg=="},
		},
		{
			name:     "new subcategory",
			setup:    func(m *Model) { m.parentID = "cat-fac" },
			wantCall: "add-sub:cat-fac",
			wantIn:   model.SubCategoryInput{Name: "Noise", Description: "Loud neighbours"},
		},
		{
			name: "edit subcategory",
			setup: func(m *Model) {
				m.editing, m.parentID, m.targetID = true, "cat-fac", "sub-plumb"
			},
			wantCall: "update-sub:cat-fac/sub-plumb",
			wantIn:   model.SubCategoryInput{Name: "Noise", Description: "Loud neighbours"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s := newManager()
			tt.setup(&m)
			m.fb.name = "  Noise "
			m.fb.description = "Loud neighbours"

			msg := m.save()()

			assert.Equal(t, savedMsg{}, msg)
			assert.Equal(t, []string{tt.wantCall}, s.calls)
			assert.Equal(t, tt.wantIn, s.last)
		})
	}
}

func TestRemoveDispatchesByRow(t *testing.T) {
	m, s := newManager()
	rows := m.rows()

	m.remove(rows[1])()
	m.remove(rows[2])()

	assert.Equal(t, []string{"delete:cat-fac", "delete-sub:cat-fac/sub-plumb"}, s.calls)
}

func TestDeleteOpensConfirm(t *testing.T) {
	m, _ := newManager()

	m, cmd := m.Update(runeKey('d'))

	assert.Equal(t, modeConfirmDelete, m.mode)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Parking")
}

func TestResultMessages(t *testing.T) {
	m, s := newManager()
	m.mode = modeForm

	m, _ = m.Update(savedMsg{err: errors.New("name taken")})
	assert.Equal(t, modeList, m.mode)
	assert.Contains(t, m.View(), "Error: name taken")

	s.state.Categories = s.state.Categories[:1]
	m.selectedIdx = 2
	m, _ = m.Update(deletedMsg{})
	assert.Equal(t, "Category deleted", m.statusMsg)
	assert.Equal(t, 0, m.selectedIdx)
}

func TestReloadIgnoresAbort(t *testing.T) {
	m, s := newManager()
	s.err = store.ErrDisposed

	m, _ = m.Update(m.reload()())

	assert.Empty(t, m.statusMsg)
	assert.Equal(t, []string{"list"}, s.calls)
}

func TestValidateDescription(t *testing.T) {
	assert.NoError(t, validateDescription(""))
	assert.Error(t, validateDescription("short"))
	assert.NoError(t, validateDescription("long enough text"))
}
