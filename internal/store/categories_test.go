package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/tests/testutil"
)

type mockCategoryAPI struct {
	mock.Mock
}

func (m *mockCategoryAPI) ListCategories(ctx context.Context) (model.CategoryTree, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.CategoryTree), args.Error(1)
}

func (m *mockCategoryAPI) CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.Category), args.Error(1)
}

func (m *mockCategoryAPI) UpdateCategory(ctx context.Context, id string, in model.CategoryInput) (model.Category, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(model.Category), args.Error(1)
}

func (m *mockCategoryAPI) DeleteCategory(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCategoryAPI) AddSubCategory(ctx context.Context, categoryID string, in model.SubCategoryInput) (model.Category, error) {
	args := m.Called(ctx, categoryID, in)
	return args.Get(0).(model.Category), args.Error(1)
}

func (m *mockCategoryAPI) UpdateSubCategory(
	ctx context.Context,
	categoryID string,
	subCategoryID string,
	in model.SubCategoryInput,
) (model.Category, error) {
	args := m.Called(ctx, categoryID, subCategoryID, in)
	return args.Get(0).(model.Category), args.Error(1)
}

func (m *mockCategoryAPI) DeleteSubCategory(ctx context.Context, categoryID, subCategoryID string) error {
	args := m.Called(ctx, categoryID, subCategoryID)
	return args.Error(0)
}

type mockSnapshots struct {
	mock.Mock
}

func (m *mockSnapshots) SaveCategoryTree(ctx context.Context, tree model.CategoryTree) error {
	args := m.Called(ctx, tree)
	return args.Error(0)
}

func (m *mockSnapshots) LoadCategoryTree(ctx context.Context) (model.CategoryTree, time.Time, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.CategoryTree), args.Get(1).(time.Time), args.Bool(2), args.Error(3)
}

func facilities() model.Category {
	return model.Category{
		ID:   "cat-fac",
		Name: "Facilities",
		SubCategories: []model.SubCategory{
			{ID: "sub-plumb", Name: "Plumbing"},
			{ID: "sub-elec", Name: "Electrical"},
			{ID: "sub-hvac", Name: "Heating"},
		},
		TotalComplaints:  12,
		IsFrequentlyUsed: true,
	}
}

func canteen() model.Category {
	return model.Category{ID: "cat-food", Name: "Canteen", SubCategories: []model.SubCategory{}, TotalComplaints: 3}
}

func treeOf(cats ...model.Category) model.CategoryTree {
	tree := model.CategoryTree{Categories: cats, FrequentCategories: []model.Category{}}
	for _, c := range cats {
		tree.TotalComplaints += c.TotalComplaints
		if c.IsFrequentlyUsed {
			tree.FrequentCategories = append(tree.FrequentCategories, c)
		}
	}
	return tree
}

func listedCategoryStore(t *testing.T, m *mockCategoryAPI, cats ...model.Category) *CategoryStore {
	t.Helper()
	m.On("ListCategories", mock.Anything).Return(treeOf(cats...), nil).Once()
	s := NewCategoryStore(m)
	out, err := s.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, fetch.Applied, out)
	return s
}

func frequentIDs(st CategoryState) []string {
	ids := []string{}
	for _, c := range st.Frequent {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCategoryListDerivesFrequent(t *testing.T) {
	m := new(mockCategoryAPI)
	tree := treeOf(facilities(), canteen())
	// A server list that disagrees with the flags is ignored.
	tree.FrequentCategories = []model.Category{canteen()}
	m.On("ListCategories", mock.Anything).Return(tree, nil).Once()

	s := NewCategoryStore(m)
	out, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fetch.Applied, out)

	st := s.State()
	assert.Len(t, st.Categories, 2)
	assert.Equal(t, []string{"cat-fac"}, frequentIDs(st))
	assert.Equal(t, 15, st.TotalComplaints)
	assert.False(t, st.Loading)
	assert.False(t, st.FromCache)
	assert.False(t, st.FetchedAt.IsZero())
	m.AssertExpectations(t)
}

func TestCategoryListFailureKeepsCategories(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, facilities())

	boom := errors.New("timeout")
	m.On("ListCategories", mock.Anything).Return(model.CategoryTree{}, boom).Once()

	out, err := s.List(context.Background())
	assert.Equal(t, fetch.Failed, out)
	assert.ErrorIs(t, err, boom)

	st := s.State()
	assert.ErrorIs(t, st.Err, boom)
	assert.Len(t, st.Categories, 1)

	s.ClearError()
	assert.NoError(t, s.State().Err)
}

func TestDeleteCategoryCascades(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, facilities(), canteen())
	m.On("DeleteCategory", mock.Anything, "cat-fac").Return(nil).Once()

	require.NoError(t, s.DeleteCategory(context.Background(), "cat-fac"))

	st := s.State()
	require.Len(t, st.Categories, 1)
	assert.Equal(t, "cat-food", st.Categories[0].ID)
	assert.Empty(t, st.Frequent)
	_, ok := s.Find("cat-fac")
	assert.False(t, ok)
	m.AssertExpectations(t)
}

func TestDeleteMissingCategoryLeavesStoreUnchanged(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, facilities())
	notFound := &api.StatusError{StatusCode: 404, Message: "Category not found"}
	m.On("DeleteCategory", mock.Anything, "gone").Return(notFound).Once()

	err := s.DeleteCategory(context.Background(), "gone")
	assert.True(t, api.IsNotFound(err))
	assert.Len(t, s.State().Categories, 1)
}

func TestDeleteSubCategoryLeavesSiblings(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, facilities(), canteen())
	m.On("DeleteSubCategory", mock.Anything, "cat-fac", "sub-elec").Return(nil).Once()

	require.NoError(t, s.DeleteSubCategory(context.Background(), "cat-fac", "sub-elec"))

	cat, ok := s.Find("cat-fac")
	require.True(t, ok)
	var ids []string
	for _, sc := range cat.SubCategories {
		ids = append(ids, sc.ID)
	}
	assert.Equal(t, []string{"sub-plumb", "sub-hvac"}, ids)

	other, _ := s.Find("cat-food")
	assert.Equal(t, canteen(), other)
}

func TestAddSubCategoryReplacesParent(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, canteen())

	in := model.SubCategoryInput{Name: "Hygiene"}
	parent := canteen()
	parent.SubCategories = []model.SubCategory{{ID: "sub-hyg", Name: "Hygiene"}}
	parent.IsFrequentlyUsed = true
	m.On("AddSubCategory", mock.Anything, "cat-food", in).Return(parent, nil).Once()

	_, err := s.AddSubCategory(context.Background(), "cat-food", in)
	require.NoError(t, err)

	st := s.State()
	require.Len(t, st.Categories, 1)
	assert.Len(t, st.Categories[0].SubCategories, 1)
	assert.Equal(t, []string{"cat-food"}, frequentIDs(st))
}

func TestResponseForUnknownCategoryIsIgnored(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, canteen())

	in := model.CategoryInput{Name: "Renamed"}
	m.On("UpdateCategory", mock.Anything, "elsewhere", in).
		Return(model.Category{ID: "elsewhere", Name: "Renamed"}, nil).Once()

	_, err := s.UpdateCategory(context.Background(), "elsewhere", in)
	require.NoError(t, err)

	st := s.State()
	require.Len(t, st.Categories, 1)
	assert.Equal(t, "Canteen", st.Categories[0].Name)
}

func TestUpdateSubCategoryReplacesParent(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, facilities())

	in := model.SubCategoryInput{Name: "Water"}
	parent := facilities()
	parent.SubCategories[0].Name = "Water"
	m.On("UpdateSubCategory", mock.Anything, "cat-fac", "sub-plumb", in).Return(parent, nil).Once()

	_, err := s.UpdateSubCategory(context.Background(), "cat-fac", "sub-plumb", in)
	require.NoError(t, err)

	cat, _ := s.Find("cat-fac")
	assert.Equal(t, "Water", cat.SubCategories[0].Name)
	assert.Len(t, cat.SubCategories, 3)
}

func TestCreateCategoryValidatesInput(t *testing.T) {
	m := new(mockCategoryAPI)
	s := NewCategoryStore(m)

	_, err := s.CreateCategory(context.Background(), model.CategoryInput{Name: "  "})
	assert.True(t, model.IsValidationError(err))

	_, err = s.CreateCategory(context.Background(), model.CategoryInput{Name: "Parking", Description: "short"})
	assert.True(t, model.IsValidationError(err))

	m.AssertNotCalled(t, "CreateCategory", mock.Anything, mock.Anything)
}

func TestCreateCategoryAppends(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, canteen())

	in := model.CategoryInput{Name: "Parking", Description: "Car park and bicycle racks"}
	m.On("CreateCategory", mock.Anything, in).
		Return(model.Category{ID: "cat-park", Name: "Parking", IsFrequentlyUsed: true}, nil).Once()

	_, err := s.CreateCategory(context.Background(), in)
	require.NoError(t, err)

	st := s.State()
	assert.Len(t, st.Categories, 2)
	assert.Equal(t, []string{"cat-park"}, frequentIDs(st))
}

func TestRestoreWarmsEmptyStore(t *testing.T) {
	m := new(mockCategoryAPI)
	snaps := new(mockSnapshots)
	savedAt := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	snaps.On("LoadCategoryTree", mock.Anything).Return(treeOf(facilities()), savedAt, true, nil).Once()

	s := NewCategoryStore(m, WithSnapshots(snaps))
	restored, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)

	st := s.State()
	assert.True(t, st.FromCache)
	assert.Equal(t, savedAt, st.FetchedAt)
	assert.Equal(t, []string{"cat-fac"}, frequentIDs(st))

	// A successful list replaces the snapshot data and saves a new one.
	m.On("ListCategories", mock.Anything).Return(treeOf(canteen()), nil).Once()
	snaps.On("SaveCategoryTree", mock.Anything, mock.AnythingOfType("model.CategoryTree")).Return(nil).Once()

	_, err = s.List(context.Background())
	require.NoError(t, err)
	assert.False(t, s.State().FromCache)
	snaps.AssertExpectations(t)
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	snaps := new(mockSnapshots)
	snaps.On("LoadCategoryTree", mock.Anything).Return(model.CategoryTree{}, time.Time{}, false, nil).Once()

	s := NewCategoryStore(new(mockCategoryAPI), WithSnapshots(snaps))
	restored, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, s.State().FromCache)
}

func TestConcurrentCategoryListJoinsInFlight(t *testing.T) {
	m := new(mockCategoryAPI)
	release := make(chan struct{})
	m.On("ListCategories", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(treeOf(canteen()), nil).Once()

	s := NewCategoryStore(m)

	results := make(chan fetch.Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			out, _ := s.List(context.Background())
			results <- out
		}()
	}
	require.Eventually(t, func() bool { return s.State().Loading }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case out := <-results:
			assert.Equal(t, fetch.Applied, out)
		case <-time.After(2 * time.Second):
			t.Fatal("list did not complete")
		}
	}
	m.AssertNumberOfCalls(t, "ListCategories", 1)
}

func TestMutationSupersedesInFlightList(t *testing.T) {
	m := new(mockCategoryAPI)
	s := listedCategoryStore(t, m, canteen())

	release := make(chan struct{})
	m.On("ListCategories", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(treeOf(canteen()), nil).Once()

	listed := make(chan fetch.Outcome, 1)
	go func() {
		out, _ := s.List(context.Background())
		listed <- out
	}()
	require.Eventually(t, func() bool { return s.State().Loading }, time.Second, 5*time.Millisecond)

	in := model.CategoryInput{Name: "Parking", Description: "Car park and bicycle racks"}
	m.On("CreateCategory", mock.Anything, in).
		Return(model.Category{ID: "cat-park", Name: "Parking"}, nil).Once()
	_, err := s.CreateCategory(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, s.State().Loading)

	close(release)
	select {
	case out := <-listed:
		assert.NotEqual(t, fetch.Applied, out)
	case <-time.After(2 * time.Second):
		t.Fatal("list did not complete")
	}

	st := s.State()
	require.Len(t, st.Categories, 2, "older listing must not overwrite the created category")
	assert.Equal(t, "cat-park", st.Categories[1].ID)
}

func TestCategoryStoreAgainstFakeServer(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.SetCategories(facilities(), canteen())
	s := NewCategoryStore(api.NewClient(srv.APIURL(), nil))
	ctx := context.Background()

	_, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, s.State().Categories, 2)

	_, err = s.AddSubCategory(ctx, "cat-food", model.SubCategoryInput{Name: "Prices"})
	require.NoError(t, err)
	cat, _ := s.Find("cat-food")
	require.Len(t, cat.SubCategories, 1)
	assert.Equal(t, "Prices", cat.SubCategories[0].Name)

	require.NoError(t, s.DeleteCategory(ctx, "cat-fac"))
	assert.Len(t, s.State().Categories, 1)
}
