package model

// StatusAll is the status filter value that matches every complaint.
const StatusAll = "all"

// DefaultPageSize is the listing page size used when none is configured.
const DefaultPageSize = 10

// SortOrder controls the ordering of the complaint listing.
type SortOrder string

// Sort orders understood by the server.
const (
	SortNewest       SortOrder = "newest"
	SortOldest       SortOrder = "oldest"
	SortPriorityHigh SortOrder = "priority-high"
	SortPriorityLow  SortOrder = "priority-low"
)

// SortOrders lists every sort order in the order the UI cycles them.
var SortOrders = []SortOrder{
	SortNewest,
	SortOldest,
	SortPriorityHigh,
	SortPriorityLow,
}

// FilterState is the canonical listing filter. Setters return a new
// value; every setter except WithPage resets the page to 1.
type FilterState struct {
	Status   string    `json:"status"`
	Sort     SortOrder `json:"sort"`
	Priority Priority  `json:"priority,omitempty"`
	Search   string    `json:"search"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

// DefaultFilterState returns the filter a fresh listing starts from.
func DefaultFilterState() FilterState {
	return FilterState{
		Status:   StatusAll,
		Sort:     SortNewest,
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// Normalize fills unset fields with their defaults and clamps page and
// page size to positive values.
func (f FilterState) Normalize() FilterState {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Sort == "" {
		f.Sort = SortNewest
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	return f
}

// WithStatus filters by status; pass StatusAll to clear.
func (f FilterState) WithStatus(status string) FilterState {
	f.Status = status
	f.Page = 1
	return f.Normalize()
}

// WithSort changes the ordering.
func (f FilterState) WithSort(sort SortOrder) FilterState {
	f.Sort = sort
	f.Page = 1
	return f.Normalize()
}

// WithPriority filters by priority; pass "" to clear.
func (f FilterState) WithPriority(p Priority) FilterState {
	f.Priority = p
	f.Page = 1
	return f.Normalize()
}

// WithSearch sets the free-text search.
func (f FilterState) WithSearch(search string) FilterState {
	f.Search = search
	f.Page = 1
	return f.Normalize()
}

// WithPageSize changes how many complaints a page holds.
func (f FilterState) WithPageSize(size int) FilterState {
	f.PageSize = size
	f.Page = 1
	return f.Normalize()
}

// WithPage moves to another page, leaving every other field untouched.
func (f FilterState) WithPage(page int) FilterState {
	f.Page = page
	return f.Normalize()
}

// Reset restores the defaults but keeps the page size.
func (f FilterState) Reset() FilterState {
	size := f.PageSize
	out := DefaultFilterState()
	out.PageSize = size
	return out.Normalize()
}

// IsFiltered reports whether any narrowing filter is active.
func (f FilterState) IsFiltered() bool {
	return (f.Status != "" && f.Status != StatusAll) ||
		f.Priority != "" ||
		f.Search != ""
}
