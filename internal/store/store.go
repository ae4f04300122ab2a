// Package store holds the client-side state containers for complaints and
// categories. Each store is mutated only by its own operations; callers
// read copies through State and watch Changed for updates.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/fetch"
	"github.com/nhle/complaint-desk/internal/metrics"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/query"
)

// ErrDisposed is returned by operations on a disposed store.
var ErrDisposed = errors.New("store disposed")

// ComplaintAPI is the part of the REST client the complaint store uses.
type ComplaintAPI interface {
	ListComplaints(ctx context.Context, q query.Query) (model.ComplaintPage, error)
	GetComplaint(ctx context.Context, id string) (model.Complaint, error)
	CreateComplaint(ctx context.Context, in model.NewComplaint) (model.Complaint, error)
	UpdateComplaint(ctx context.Context, id string, in model.ComplaintUpdate) (model.Complaint, error)
	DeleteComplaint(ctx context.Context, id string) error
	AddComment(ctx context.Context, id, text string) (model.Comment, error)
	UpdateStatus(ctx context.Context, id string, in model.StatusUpdate) (model.Complaint, error)
}

// CategoryAPI is the part of the REST client the category store uses.
type CategoryAPI interface {
	ListCategories(ctx context.Context) (model.CategoryTree, error)
	CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error)
	UpdateCategory(ctx context.Context, id string, in model.CategoryInput) (model.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	AddSubCategory(ctx context.Context, categoryID string, in model.SubCategoryInput) (model.Category, error)
	UpdateSubCategory(ctx context.Context, categoryID, subCategoryID string, in model.SubCategoryInput) (model.Category, error)
	DeleteSubCategory(ctx context.Context, categoryID, subCategoryID string) error
}

// Snapshotter persists the last category tree so a fresh session can
// render before the first fetch completes.
type Snapshotter interface {
	SaveCategoryTree(ctx context.Context, tree model.CategoryTree) error
	LoadCategoryTree(ctx context.Context) (model.CategoryTree, time.Time, bool, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	log       *logrus.Logger
	metrics   *metrics.Metrics
	snapshots Snapshotter
	now       func() time.Time
}

// WithLogger sets the logger used by the store and its coordinators.
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics counts fetch outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSnapshots enables the category snapshot cache.
func WithSnapshots(s Snapshotter) Option {
	return func(o *options) { o.snapshots = s }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) fetchOptions() []fetch.Option {
	return []fetch.Option{fetch.WithLogger(o.log), fetch.WithMetrics(o.metrics)}
}

// notifier is a coalescing change signal: one pending notification is
// enough to tell a reader to re-read State.
type notifier struct {
	ch chan struct{}
}

func newNotifier() notifier {
	return notifier{ch: make(chan struct{}, 1)}
}

func (n notifier) notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func pagesFor(total, pageSize int) int {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}
