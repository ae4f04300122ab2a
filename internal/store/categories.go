package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/logging"
	"github.com/nhle/complaint-desk/internal/model"
)

// categoryFetchKey identifies the single category listing request.
const categoryFetchKey = "categories"

// CategoryState is a snapshot of the category store.
type CategoryState struct {
	Categories      []model.Category
	Frequent        []model.Category
	TotalComplaints int

	Loading bool
	Err     error

	// FromCache is set while the categories come from a local snapshot
	// rather than the server.
	FromCache bool
	FetchedAt time.Time
}

// CategoryStore holds the category taxonomy. Frequent is always derived
// from the IsFrequentlyUsed flags of Categories.
type CategoryStore struct {
	api       CategoryAPI
	log       *logrus.Entry
	list      *fetch.Coordinator[model.CategoryTree]
	snapshots Snapshotter
	now       func() time.Time

	mu       sync.Mutex
	state    CategoryState
	disposed bool
	changed  notifier
}

// NewCategoryStore creates an empty store backed by client.
func NewCategoryStore(client CategoryAPI, opts ...Option) *CategoryStore {
	o := buildOptions(opts)

	return &CategoryStore{
		api:       client,
		log:       logging.Component(o.log, "categories"),
		list:      fetch.New[model.CategoryTree]("category_tree", o.fetchOptions()...),
		snapshots: o.snapshots,
		now:       o.now,
		state: CategoryState{
			Categories: []model.Category{},
			Frequent:   []model.Category{},
		},
		changed: newNotifier(),
	}
}

// State returns a copy of the current state.
func (s *CategoryStore) State() CategoryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Categories = cloneCategories(s.state.Categories)
	st.Frequent = cloneCategories(s.state.Frequent)
	return st
}

// Changed receives a value whenever the state changes. Notifications
// coalesce; the channel is closed by Dispose.
func (s *CategoryStore) Changed() <-chan struct{} {
	return s.changed.ch
}

// Find returns the category with id.
func (s *CategoryStore) Find(id string) (model.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.state.Categories[i].Clone(), true
	}
	return model.Category{}, false
}

// List fetches the whole taxonomy. Calling it while a listing is in
// flight joins that request.
func (s *CategoryStore) List(ctx context.Context) (fetch.Outcome, error) {
	if s.isDisposed() {
		return fetch.Aborted, ErrDisposed
	}

	var applied model.CategoryTree
	h := s.list.IssueWith(ctx, categoryFetchKey,
		func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.disposed {
				s.state.Loading = true
				s.state.Err = nil
				s.changed.notify()
			}
		},
		func(ctx context.Context) (model.CategoryTree, error) {
			return s.api.ListCategories(ctx)
		},
		func(out fetch.Outcome, tree model.CategoryTree, err error) {
			if out == fetch.Applied {
				applied = tree
			}
			s.commitList(out, tree, err)
		},
	)

	out, err := h.Wait()
	if out == fetch.Applied && applied.Categories != nil {
		s.saveSnapshot(ctx, applied)
	}
	return out, err
}

func (s *CategoryStore) commitList(out fetch.Outcome, tree model.CategoryTree, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.state.Loading = false

	switch out {
	case fetch.Applied:
		s.state.Categories = tree.Categories
		if s.state.Categories == nil {
			s.state.Categories = []model.Category{}
		}
		s.state.TotalComplaints = tree.TotalComplaints
		s.state.FromCache = false
		s.state.FetchedAt = s.now()
		s.state.Err = nil
		s.recomputeFrequentLocked()

		if !sameIDs(s.state.Frequent, tree.FrequentCategories) {
			s.log.WithFields(logrus.Fields{
				"derived": len(s.state.Frequent),
				"server":  len(tree.FrequentCategories),
			}).Debug("server frequent categories differ from flags; using flags")
		}
	case fetch.Failed:
		s.state.Err = err
		if api.IsAuthError(err) {
			s.state.Categories = []model.Category{}
			s.state.Frequent = []model.Category{}
			s.state.TotalComplaints = 0
			s.state.FromCache = false
		}
		s.log.WithError(err).Warn("category list failed")
	}
	s.changed.notify()
}

// Restore fills an empty store from the last saved snapshot. It reports
// whether anything was restored.
func (s *CategoryStore) Restore(ctx context.Context) (bool, error) {
	if s.snapshots == nil || s.isDisposed() {
		return false, nil
	}

	tree, savedAt, ok, err := s.snapshots.LoadCategoryTree(ctx)
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || len(s.state.Categories) > 0 || !s.state.FetchedAt.IsZero() {
		return false, nil
	}
	s.state.Categories = tree.Categories
	if s.state.Categories == nil {
		s.state.Categories = []model.Category{}
	}
	s.state.TotalComplaints = tree.TotalComplaints
	s.state.FromCache = true
	s.state.FetchedAt = savedAt
	s.recomputeFrequentLocked()
	s.changed.notify()

	s.log.WithFields(logrus.Fields{
		"categories": len(tree.Categories),
		"saved_at":   savedAt,
	}).Debug("categories restored from snapshot")
	return true, nil
}

// CreateCategory creates a category and appends it.
func (s *CategoryStore) CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error) {
	if err := model.Validate(in); err != nil {
		return model.Category{}, err
	}
	if s.isDisposed() {
		return model.Category{}, ErrDisposed
	}

	created, err := s.api.CreateCategory(ctx, in)
	if err != nil {
		return model.Category{}, err
	}

	s.mutate(ctx, func() {
		if i := s.indexLocked(created.ID); i >= 0 {
			s.state.Categories[i] = created.Clone()
			return
		}
		s.state.Categories = append(s.state.Categories, created.Clone())
	})
	return created, nil
}

// UpdateCategory edits a category and replaces it wholesale with the
// server's version.
func (s *CategoryStore) UpdateCategory(ctx context.Context, id string, in model.CategoryInput) (model.Category, error) {
	if strings.TrimSpace(id) == "" {
		return model.Category{}, model.Invalid("ID", "is required")
	}
	if err := model.Validate(in); err != nil {
		return model.Category{}, err
	}
	if s.isDisposed() {
		return model.Category{}, ErrDisposed
	}

	updated, err := s.api.UpdateCategory(ctx, id, in)
	if err != nil {
		return model.Category{}, err
	}
	s.mutate(ctx, func() { s.replaceLocked(updated) })
	return updated, nil
}

// DeleteCategory deletes a category and, with it, its subcategories.
func (s *CategoryStore) DeleteCategory(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return model.Invalid("ID", "is required")
	}
	if s.isDisposed() {
		return ErrDisposed
	}

	if err := s.api.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.mutate(ctx, func() {
		i := s.indexLocked(id)
		if i < 0 {
			return
		}
		cats := make([]model.Category, 0, len(s.state.Categories)-1)
		cats = append(cats, s.state.Categories[:i]...)
		s.state.Categories = append(cats, s.state.Categories[i+1:]...)
	})
	return nil
}

// AddSubCategory creates a subcategory; the parent is replaced with the
// server's version.
func (s *CategoryStore) AddSubCategory(ctx context.Context, categoryID string, in model.SubCategoryInput) (model.Category, error) {
	if strings.TrimSpace(categoryID) == "" {
		return model.Category{}, model.Invalid("CategoryID", "is required")
	}
	if err := model.Validate(in); err != nil {
		return model.Category{}, err
	}
	if s.isDisposed() {
		return model.Category{}, ErrDisposed
	}

	parent, err := s.api.AddSubCategory(ctx, categoryID, in)
	if err != nil {
		return model.Category{}, err
	}
	s.mutate(ctx, func() { s.replaceLocked(parent) })
	return parent, nil
}

// UpdateSubCategory edits a subcategory; the parent is replaced with the
// server's version.
func (s *CategoryStore) UpdateSubCategory(
	ctx context.Context,
	categoryID string,
	subCategoryID string,
	in model.SubCategoryInput,
) (model.Category, error) {
	if strings.TrimSpace(categoryID) == "" || strings.TrimSpace(subCategoryID) == "" {
		return model.Category{}, model.Invalid("SubCategoryID", "is required")
	}
	if err := model.Validate(in); err != nil {
		return model.Category{}, err
	}
	if s.isDisposed() {
		return model.Category{}, ErrDisposed
	}

	parent, err := s.api.UpdateSubCategory(ctx, categoryID, subCategoryID, in)
	if err != nil {
		return model.Category{}, err
	}
	s.mutate(ctx, func() { s.replaceLocked(parent) })
	return parent, nil
}

// DeleteSubCategory removes one subcategory, leaving its siblings alone.
func (s *CategoryStore) DeleteSubCategory(ctx context.Context, categoryID, subCategoryID string) error {
	if strings.TrimSpace(categoryID) == "" || strings.TrimSpace(subCategoryID) == "" {
		return model.Invalid("SubCategoryID", "is required")
	}
	if s.isDisposed() {
		return ErrDisposed
	}

	if err := s.api.DeleteSubCategory(ctx, categoryID, subCategoryID); err != nil {
		return err
	}
	s.mutate(ctx, func() {
		i := s.indexLocked(categoryID)
		if i < 0 {
			return
		}
		cat := s.state.Categories[i].Clone()
		subs := make([]model.SubCategory, 0, len(cat.SubCategories))
		for _, sc := range cat.SubCategories {
			if sc.ID != subCategoryID {
				subs = append(subs, sc)
			}
		}
		cat.SubCategories = subs
		s.state.Categories[i] = cat
	})
	return nil
}

// ClearError resets the error.
func (s *CategoryStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || s.state.Err == nil {
		return
	}
	s.state.Err = nil
	s.changed.notify()
}

// Cancel aborts an in-flight listing and clears loading.
func (s *CategoryStore) Cancel() {
	cancelled := s.list.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cancelled && !s.disposed {
		s.state.Loading = false
		s.changed.notify()
	}
}

// Dispose cancels the listing and rejects further operations.
func (s *CategoryStore) Dispose() {
	s.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.state.Loading = false
	close(s.changed.ch)
}

func (s *CategoryStore) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// mutate applies fn under the lock, recomputes Frequent and refreshes the
// snapshot.
func (s *CategoryStore) mutate(ctx context.Context, fn func()) {
	// A listing issued before the mutation would overwrite it with the
	// older tree.
	listCancelled := s.list.Cancel()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if listCancelled {
		s.state.Loading = false
	}
	fn()
	s.recomputeFrequentLocked()
	s.changed.notify()
	tree := model.CategoryTree{
		Categories:         cloneCategories(s.state.Categories),
		FrequentCategories: cloneCategories(s.state.Frequent),
		TotalComplaints:    s.state.TotalComplaints,
	}
	s.mu.Unlock()

	s.saveSnapshot(ctx, tree)
}

// replaceLocked swaps in the server's version of a category. A category
// not present locally is a stale reference and is ignored.
func (s *CategoryStore) replaceLocked(cat model.Category) {
	i := s.indexLocked(cat.ID)
	if i < 0 {
		s.log.WithField("id", cat.ID).Debug("ignoring response for unknown category")
		return
	}
	s.state.Categories[i] = cat.Clone()
}

func (s *CategoryStore) indexLocked(id string) int {
	for i, c := range s.state.Categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *CategoryStore) recomputeFrequentLocked() {
	frequent := make([]model.Category, 0)
	for _, c := range s.state.Categories {
		if c.IsFrequentlyUsed {
			frequent = append(frequent, c)
		}
	}
	s.state.Frequent = frequent
}

func (s *CategoryStore) saveSnapshot(ctx context.Context, tree model.CategoryTree) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveCategoryTree(ctx, tree); err != nil {
		s.log.WithError(err).Warn("saving category snapshot")
	}
}

func cloneCategories(cats []model.Category) []model.Category {
	out := make([]model.Category, len(cats))
	for i, c := range cats {
		out[i] = c.Clone()
	}
	return out
}

func sameIDs(a, b []model.Category) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
