package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/logging"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/query"
)

// ComplaintState is a snapshot of the complaint store.
type ComplaintState struct {
	Items       []model.Complaint
	TotalCount  int
	CurrentPage int
	TotalPages  int
	PageSize    int

	// Filters is the filter of the most recent List, with the page
	// adjusted after a delete stepped back.
	Filters model.FilterState

	Loading bool
	Err     error

	Detail        *model.Complaint
	DetailLoading bool
	DetailErr     error

	// Saving counts mutations awaiting a server response.
	Saving int
}

// ComplaintStore holds the current page of complaints and one loaded
// complaint detail.
type ComplaintStore struct {
	api    ComplaintAPI
	log    *logrus.Entry
	list   *fetch.Coordinator[model.ComplaintPage]
	detail *fetch.Coordinator[model.Complaint]

	mu       sync.Mutex
	state    ComplaintState
	disposed bool
	changed  notifier
}

// NewComplaintStore creates an empty store backed by client.
func NewComplaintStore(client ComplaintAPI, opts ...Option) *ComplaintStore {
	o := buildOptions(opts)
	f := model.DefaultFilterState()

	return &ComplaintStore{
		api:    client,
		log:    logging.Component(o.log, "complaints"),
		list:   fetch.New[model.ComplaintPage]("complaint_list", o.fetchOptions()...),
		detail: fetch.New[model.Complaint]("complaint_detail", o.fetchOptions()...),
		state: ComplaintState{
			Items:       []model.Complaint{},
			CurrentPage: 1,
			TotalPages:  1,
			PageSize:    f.PageSize,
			Filters:     f,
		},
		changed: newNotifier(),
	}
}

// State returns a copy of the current state.
func (s *ComplaintStore) State() ComplaintState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Items = make([]model.Complaint, len(s.state.Items))
	for i, c := range s.state.Items {
		st.Items[i] = c.Clone()
	}
	if s.state.Detail != nil {
		d := s.state.Detail.Clone()
		st.Detail = &d
	}
	return st
}

// Changed receives a value whenever the state changes. Notifications
// coalesce; the channel is closed by Dispose.
func (s *ComplaintStore) Changed() <-chan struct{} {
	return s.changed.ch
}

// List fetches the page described by filters. A newer List supersedes
// this one; its result is then dropped and the outcome is Stale or
// Aborted with a nil error. Only a Failed outcome returns an error.
func (s *ComplaintStore) List(ctx context.Context, filters model.FilterState) (fetch.Outcome, error) {
	filters = filters.Normalize()
	q := query.Compose(filters)

	if s.isDisposed() {
		return fetch.Aborted, ErrDisposed
	}

	h := s.list.IssueWith(ctx, q.Key(),
		func() {
			s.markLoading(func(st *ComplaintState) {
				st.Loading = true
				st.Err = nil
				st.Filters = filters
				st.PageSize = filters.PageSize
			})
		},
		func(ctx context.Context) (model.ComplaintPage, error) {
			return s.api.ListComplaints(ctx, q)
		},
		func(out fetch.Outcome, page model.ComplaintPage, err error) {
			s.commitList(out, filters, page, err)
		},
	)

	return h.Wait()
}

// markLoading runs as a coordinator start hook, ordered between the
// commits of the previous and the new request.
func (s *ComplaintStore) markLoading(fn func(*ComplaintState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	fn(&s.state)
	s.changed.notify()
}

func (s *ComplaintStore) commitList(out fetch.Outcome, filters model.FilterState, page model.ComplaintPage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.state.Loading = false

	switch out {
	case fetch.Applied:
		s.state.Items = page.Complaints
		s.state.TotalCount = page.TotalComplaints
		s.state.CurrentPage = page.CurrentPage
		if s.state.CurrentPage < 1 {
			s.state.CurrentPage = filters.Page
		}
		s.state.TotalPages = page.TotalPages
		if s.state.TotalPages < 1 {
			s.state.TotalPages = 1
		}
		s.state.Err = nil
		s.log.WithFields(logrus.Fields{
			"items": len(page.Complaints),
			"total": page.TotalComplaints,
			"page":  s.state.CurrentPage,
		}).Debug("complaint list applied")
	case fetch.Failed:
		s.state.Err = err
		s.state.Items = []model.Complaint{}
		s.state.TotalCount = 0
		s.state.TotalPages = 1
		s.log.WithError(err).Warn("complaint list failed")
	}
	s.changed.notify()
}

// GetDetail loads a single complaint. It has its own loading and error
// fields, independent of the list.
func (s *ComplaintStore) GetDetail(ctx context.Context, id string) (fetch.Outcome, error) {
	if strings.TrimSpace(id) == "" {
		return fetch.Failed, model.Invalid("ID", "is required")
	}
	if s.isDisposed() {
		return fetch.Aborted, ErrDisposed
	}

	h := s.detail.IssueWith(ctx, id,
		func() {
			s.markLoading(func(st *ComplaintState) {
				st.DetailLoading = true
				st.DetailErr = nil
				if st.Detail != nil && st.Detail.ID != id {
					st.Detail = nil
				}
			})
		},
		func(ctx context.Context) (model.Complaint, error) {
			return s.api.GetComplaint(ctx, id)
		},
		func(out fetch.Outcome, c model.Complaint, err error) {
			s.commitDetail(out, id, c, err)
		},
	)

	return h.Wait()
}

func (s *ComplaintStore) commitDetail(out fetch.Outcome, id string, c model.Complaint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.state.DetailLoading = false

	switch out {
	case fetch.Applied:
		s.state.Detail = &c
		s.state.DetailErr = nil
	case fetch.Failed:
		s.state.DetailErr = err
		if s.state.Detail != nil && s.state.Detail.ID == id {
			s.state.Detail = nil
		}
		s.log.WithError(err).WithField("id", id).Warn("complaint detail failed")
	}
	s.changed.notify()
}

// Create submits a new complaint. On success the server's complaint is
// prepended to the list.
func (s *ComplaintStore) Create(ctx context.Context, in model.NewComplaint) (model.Complaint, error) {
	if err := model.Validate(in); err != nil {
		return model.Complaint{}, err
	}
	if err := s.beginMutation(); err != nil {
		return model.Complaint{}, err
	}

	created, err := s.api.CreateComplaint(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endMutationLocked()
	if err != nil {
		return model.Complaint{}, err
	}
	if s.disposed {
		return created, nil
	}

	s.state.Items = append([]model.Complaint{created.Clone()}, s.state.Items...)
	s.state.TotalCount++
	s.state.TotalPages = pagesFor(s.state.TotalCount, s.state.PageSize)
	s.changed.notify()

	s.log.WithField("id", created.ID).Info("complaint created")
	return created, nil
}

// Update edits an existing complaint and replaces the matching list item
// and detail.
func (s *ComplaintStore) Update(ctx context.Context, id string, in model.ComplaintUpdate) (model.Complaint, error) {
	if err := model.Validate(in); err != nil {
		return model.Complaint{}, err
	}
	if err := s.beginMutation(); err != nil {
		return model.Complaint{}, err
	}

	updated, err := s.api.UpdateComplaint(ctx, id, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endMutationLocked()
	if err != nil {
		return model.Complaint{}, err
	}
	s.replaceLocked(updated)
	return updated, nil
}

// Remove deletes a complaint. Only pending complaints can be deleted; a
// complaint known locally in any other status is refused without a
// request.
func (s *ComplaintStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if status, ok := s.knownStatusLocked(id); ok && status != model.StatusPending {
		s.mu.Unlock()
		return model.Invalid("Status", fmt.Sprintf("is %s; only pending complaints can be deleted", status))
	}
	s.mu.Unlock()

	if err := s.beginMutation(); err != nil {
		return err
	}

	err := s.api.DeleteComplaint(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endMutationLocked()
	if err != nil {
		return err
	}
	if s.disposed {
		return nil
	}

	items := s.state.Items[:0:0]
	for _, c := range s.state.Items {
		if c.ID != id {
			items = append(items, c)
		}
	}
	s.state.Items = items

	if s.state.TotalCount > 0 {
		s.state.TotalCount--
	}
	s.state.TotalPages = pagesFor(s.state.TotalCount, s.state.PageSize)

	if len(s.state.Items) == 0 && s.state.CurrentPage > 1 {
		s.state.CurrentPage--
	}
	if s.state.CurrentPage > s.state.TotalPages {
		s.state.CurrentPage = s.state.TotalPages
	}
	if s.state.CurrentPage < 1 {
		s.state.CurrentPage = 1
	}
	s.state.Filters = s.state.Filters.WithPage(s.state.CurrentPage)

	if s.state.Detail != nil && s.state.Detail.ID == id {
		s.state.Detail = nil
	}
	s.changed.notify()

	s.log.WithFields(logrus.Fields{
		"id":   id,
		"page": s.state.CurrentPage,
	}).Info("complaint deleted")
	return nil
}

// AddComment posts a comment. Comments on a complaint known to be
// resolved or rejected are refused without a request. The comment is
// appended to the detail only if that complaint is still the one loaded.
func (s *ComplaintStore) AddComment(ctx context.Context, id, text string) (model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Comment{}, model.Invalid("Text", "is required")
	}

	s.mu.Lock()
	if status, ok := s.knownStatusLocked(id); ok && status.Terminal() {
		s.mu.Unlock()
		return model.Comment{}, model.Invalid("Status", fmt.Sprintf("is %s; comments are closed", status))
	}
	s.mu.Unlock()

	if err := s.beginMutation(); err != nil {
		return model.Comment{}, err
	}

	comment, err := s.api.AddComment(ctx, id, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endMutationLocked()
	if err != nil {
		return model.Comment{}, err
	}
	if s.disposed {
		return comment, nil
	}

	if d := s.state.Detail; d != nil && d.ID == id {
		updated := d.Clone()
		updated.Comments = append(updated.Comments, comment)
		s.state.Detail = &updated
	}
	s.changed.notify()
	return comment, nil
}

// UpdateStatus moves a complaint to status. A resolution note is required
// unless the new status is pending.
func (s *ComplaintStore) UpdateStatus(ctx context.Context, id string, status model.Status, note string) (model.Complaint, error) {
	in := model.StatusUpdate{Status: status, Resolution: strings.TrimSpace(note)}
	if err := model.ValidateStatusUpdate(in); err != nil {
		return model.Complaint{}, err
	}
	if err := s.beginMutation(); err != nil {
		return model.Complaint{}, err
	}

	updated, err := s.api.UpdateStatus(ctx, id, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endMutationLocked()
	if err != nil {
		return model.Complaint{}, err
	}
	s.replaceLocked(updated)

	s.log.WithFields(logrus.Fields{
		"id":     id,
		"status": status,
	}).Info("complaint status updated")
	return updated, nil
}

// ClearError resets the list and detail errors.
func (s *ComplaintStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || (s.state.Err == nil && s.state.DetailErr == nil) {
		return
	}
	s.state.Err = nil
	s.state.DetailErr = nil
	s.changed.notify()
}

// Cancel aborts the in-flight list and detail fetches. Their results are
// never applied and loading is cleared.
func (s *ComplaintStore) Cancel() {
	listCancelled := s.list.Cancel()
	detailCancelled := s.detail.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	if listCancelled {
		s.state.Loading = false
	}
	if detailCancelled {
		s.state.DetailLoading = false
	}
	if listCancelled || detailCancelled {
		s.changed.notify()
	}
}

// Dispose cancels outstanding fetches and rejects further operations.
func (s *ComplaintStore) Dispose() {
	s.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.state.Loading = false
	s.state.DetailLoading = false
	close(s.changed.ch)
}

func (s *ComplaintStore) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *ComplaintStore) beginMutation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	s.state.Saving++
	s.changed.notify()
	return nil
}

func (s *ComplaintStore) endMutationLocked() {
	if s.state.Saving > 0 {
		s.state.Saving--
	}
	if !s.disposed {
		s.changed.notify()
	}
}

// knownStatusLocked returns the status of id from the loaded detail or
// the current page.
func (s *ComplaintStore) knownStatusLocked(id string) (model.Status, bool) {
	if d := s.state.Detail; d != nil && d.ID == id {
		return d.Status, true
	}
	for _, c := range s.state.Items {
		if c.ID == id {
			return c.Status, true
		}
	}
	return "", false
}

func (s *ComplaintStore) replaceLocked(updated model.Complaint) {
	if s.disposed {
		return
	}
	for i, c := range s.state.Items {
		if c.ID == updated.ID {
			s.state.Items[i] = mergeSummary(c, updated)
		}
	}
	if d := s.state.Detail; d != nil && d.ID == updated.ID {
		merged := updated.Clone()
		if merged.Comments == nil {
			merged.Comments = d.Comments
		}
		s.state.Detail = &merged
	}
	s.changed.notify()
}

// mergeSummary applies a server response to a list item. Responses to
// mutations may omit populated references; keep the names we had.
func mergeSummary(old, updated model.Complaint) model.Complaint {
	out := updated.Clone()
	if out.Category.Name == "" && out.Category.ID == old.Category.ID {
		out.Category.Name = old.Category.Name
	}
	return out
}

// IsAborted reports whether err is a cancellation that should not be
// shown to the user.
func IsAborted(err error) bool {
	return api.IsAborted(err) || errors.Is(err, ErrDisposed)
}
