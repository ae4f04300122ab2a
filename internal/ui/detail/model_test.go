package detail

import (
	"context"
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
	state    store.ComplaintState
	detail   model.Complaint
	comments []string
	statuses []model.StatusUpdate
}

func (f *fakeStore) State() store.ComplaintState { return f.state }

func (f *fakeStore) GetDetail(_ context.Context, id string) (fetch.Outcome, error) {
	d := f.detail
	f.state.Detail = &d
	return fetch.Applied, nil
}

func (f *fakeStore) AddComment(_ context.Context, id, text string) (model.Comment, error) {
	f.comments = append(f.comments, text)
	c := model.Comment{Text: text, Author: model.User{Name: "Me"}}
	d := f.state.Detail.Clone()
	d.Comments = append(d.Comments, c)
	f.state.Detail = &d
	return c, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status model.Status, note string) (model.Complaint, error) {
	u := model.StatusUpdate{Status: status, Resolution: note}
	if err := model.ValidateStatusUpdate(u); err != nil {
		return model.Complaint{}, err
	}
	f.statuses = append(f.statuses, u)
	d := f.state.Detail.Clone()
	d.Status = status
	f.state.Detail = &d
	return d, nil
}

func open(t *testing.T, s *fakeStore) Model {
	t.Helper()
	m := New(s, keys.DefaultKeyMap(), 100, 40)
	cmd := m.Open(s.detail.ID)
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	return m
}

func TestOpenRendersComplaint(t *testing.T) {
	s := &fakeStore{detail: model.Complaint{
		ID:          "c1",
		Title:       "Water leak in lobby",
		Description: "Water is dripping from the ceiling.",
		Status:      model.StatusInProgress,
		Priority:    model.PriorityHigh,
		Category:    model.Ref{ID: "cat-fac", Name: "Facilities"},
		Comments:    []model.Comment{{Text: "On it", Author: model.User{Name: "Staff"}}},
	}}
	m := open(t, s)

	view := m.View()
	assert.Contains(t, view, "Water leak in lobby")
	assert.Contains(t, view, "Facilities")
	assert.Contains(t, view, "Comments (1)")
	assert.Contains(t, view, "On it")
}

func TestCommentRefusedOnTerminal(t *testing.T) {
	s := &fakeStore{detail: model.Complaint{ID: "c2", Title: "Closed one", Status: model.StatusResolved, Priority: model.PriorityLow}}
	m := open(t, s)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Nil(t, cmd)
	assert.False(t, m.Editing())
	assert.Contains(t, m.View(), "Comments are closed")
}

func TestCommentOpensForm(t *testing.T) {
	s := &fakeStore{detail: model.Complaint{ID: "c3", Title: "Open one", Status: model.StatusPending, Priority: model.PriorityLow}}
	m := open(t, s)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.True(t, m.Editing())
	assert.Contains(t, m.View(), "Add Comment")
}

func TestSubmitCommentRefreshes(t *testing.T) {
	s := &fakeStore{detail: model.Complaint{ID: "c4", Title: "Open one", Status: model.StatusPending, Priority: model.PriorityLow}}
	m := open(t, s)

	m, _ = m.Update(m.submitComment("Any news?")())

	assert.Equal(t, []string{"Any news?"}, s.comments)
	assert.Contains(t, m.View(), "Any news?")
	assert.Contains(t, m.View(), "Comment added.")
}

func TestSubmitStatusSurfacesValidation(t *testing.T) {
	s := &fakeStore{detail: model.Complaint{ID: "c5", Title: "Open one", Status: model.StatusPending, Priority: model.PriorityLow}}
	m := open(t, s)

	m, _ = m.Update(m.submitStatus(model.StatusResolved, "")())
	assert.Empty(t, s.statuses)
	assert.Contains(t, m.View(), "Resolution")

	m, _ = m.Update(m.submitStatus(model.StatusResolved, "Fixed the pipe")())
	require.Len(t, s.statuses, 1)
	assert.Contains(t, m.View(), "Status changed to resolved.")
	assert.Contains(t, m.View(), "Resolved")
}

func TestBack(t *testing.T) {
	s := &fakeStore{detail: model.Complaint{ID: "c6", Title: "x", Status: model.StatusPending, Priority: model.PriorityLow}}
	m := open(t, s)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}
