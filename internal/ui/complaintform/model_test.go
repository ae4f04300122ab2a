package complaintform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/selection"
)

type fakeCreator struct {
	got []model.NewComplaint
	err error
}

func (f *fakeCreator) Create(_ context.Context, in model.NewComplaint) (model.Complaint, error) {
	f.got = append(f.got, in)
	if f.err != nil {
		return model.Complaint{}, f.err
	}
	return model.Complaint{ID: "new-1", Title: in.Title, Status: model.StatusPending, Priority: in.Priority}, nil
}

func categories() []model.Category {
	return []model.Category{
		{ID: "cat-park", Name: "Parking"},
		{ID: "cat-fac", Name: "Facilities", SubCategories: []model.SubCategory{
			{ID: "sub-plumb", Name: "Plumbing"},
		}},
	}
}

func TestStartPrefillsFromHandOff(t *testing.T) {
	m := New(&fakeCreator{}, 80, 24)
	cmd := m.Start(selection.HandOff{CategoryID: "cat-fac", SubCategoryID: "sub-plumb"}, categories())
	_ = cmd

	assert.Equal(t, "cat-fac/sub-plumb", m.fb.placement)
	assert.Equal(t, model.PriorityMedium, m.fb.priority)

	opts := m.placementOptions()
	require.Len(t, opts, 2)
	assert.Equal(t, "cat-park", opts[0].Value)
	assert.Equal(t, "cat-fac/sub-plumb", opts[1].Value)
	assert.Equal(t, "Facilities › Plumbing", opts[1].Key)
}

func TestPayloadReadsAttachments(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0o600))

	m := New(&fakeCreator{}, 80, 24)
	m.Start(selection.HandOff{CategoryID: "cat-fac", SubCategoryID: "sub-plumb"}, categories())
	m.fb.title = "  Leaking pipe  "
	m.fb.description = "The pipe under the sink leaks constantly."
	m.fb.attachments = photo + ", "

	in, err := m.payload()
	require.NoError(t, err)
	assert.Equal(t, "Leaking pipe", in.Title)
	assert.Equal(t, "cat-fac", in.CategoryID)
	assert.Equal(t, "sub-plumb", in.SubCategoryID)
	require.Len(t, in.Attachments, 1)
	assert.Equal(t, "photo.jpg", in.Attachments[0].Filename)
	assert.Equal(t, []byte("jpeg"), in.Attachments[0].Data)
}

func TestPayloadValidates(t *testing.T) {
	m := New(&fakeCreator{}, 80, 24)
	m.Start(selection.HandOff{CategoryID: "cat-park"}, categories())
	m.fb.title = "Hi"
	m.fb.description = "The pipe under the sink leaks constantly."

	_, err := m.payload()
	assert.True(t, model.IsValidationError(err))
}

func TestCreateResult(t *testing.T) {
	creator := &fakeCreator{err: errors.New("server unavailable")}
	m := New(creator, 80, 24)
	m.Start(selection.HandOff{CategoryID: "cat-park"}, categories())
	m.fb.title = "Car blocking exit"
	m.fb.description = "A car has blocked the exit all morning."

	in, err := m.payload()
	require.NoError(t, err)

	m, _ = m.Update(m.submit(in)())
	assert.Contains(t, m.View(), "server unavailable")
	assert.Equal(t, "Car blocking exit", m.fb.title, "typed values survive a failed submit")

	creator.err = nil
	m, cmd := m.Update(m.submit(in)())
	require.NotNil(t, cmd)
	created, ok := cmd().(CreatedMsg)
	require.True(t, ok)
	assert.Equal(t, "new-1", created.Complaint.ID)
}

func TestValidators(t *testing.T) {
	v := validateLength("Title", 5, 10)
	assert.EqualError(t, v("  "), "Title is required")
	assert.Error(t, v("abc"))
	assert.Error(t, v("abcdefghijk"))
	assert.NoError(t, v("abcdef"))

	assert.NoError(t, validateFiles(""))
	assert.Error(t, validateFiles(t.TempDir()))
	assert.Error(t, validateFiles("/does/not/exist"))
}
