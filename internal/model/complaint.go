package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a complaint. Transitions are decided
// by the server.
type Status string

// Complaint status values as sent on the wire.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Statuses lists every complaint status in display order.
var Statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further discussion is allowed on a
// complaint in this status.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Priority is the urgency assigned by the submitter.
type Priority string

// Priority values as sent on the wire.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Ref points at another entity. The server sends references either as a
// bare id or as a populated object, so both forms decode into a Ref.
type Ref struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON accepts "id", {"_id": "...", "name": "..."} or null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ref{}
		return nil
	}

	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref{ID: id}
		return nil
	}

	type plain Ref
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding reference: %w", err)
	}
	*r = Ref(p)
	return nil
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.ID == "" }

// User is the author of a comment or resolution.
type User struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

// Comment is a single entry in a complaint's discussion thread.
type Comment struct {
	ID        string    `json:"_id,omitempty"`
	Author    User      `json:"user"`
	Text      string    `json:"text" validate:"notblank"`
	CreatedAt time.Time `json:"createdAt"`
}

// Resolution records who closed a complaint and why.
type Resolution struct {
	Note   string    `json:"note"`
	Author *User     `json:"resolvedBy,omitempty"`
	Date   time.Time `json:"resolvedAt"`
}

// Attachment references a file uploaded with a complaint.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Complaint is the full representation of a submitted complaint. List
// responses carry the same shape with comments usually omitted.
type Complaint struct {
	ID          string       `json:"_id" validate:"required"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description"`
	Status      Status       `json:"status" validate:"required,complaint_status"`
	Priority    Priority     `json:"priority" validate:"required,complaint_priority"`
	Category    Ref          `json:"category"`
	SubCategory *Ref         `json:"subCategory,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	Resolution  *Resolution  `json:"resolution,omitempty"`
	Comments    []Comment    `json:"comments,omitempty" validate:"dive"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Deletable reports whether the complaint may still be withdrawn.
func (c Complaint) Deletable() bool {
	return c.Status == StatusPending
}

// Clone returns a deep copy so callers can hold it without sharing
// slices with a store.
func (c Complaint) Clone() Complaint {
	out := c
	if c.SubCategory != nil {
		sc := *c.SubCategory
		out.SubCategory = &sc
	}
	if c.Resolution != nil {
		r := *c.Resolution
		if r.Author != nil {
			a := *r.Author
			r.Author = &a
		}
		out.Resolution = &r
	}
	if c.Comments != nil {
		out.Comments = make([]Comment, len(c.Comments))
		copy(out.Comments, c.Comments)
	}
	if c.Attachments != nil {
		out.Attachments = make([]Attachment, len(c.Attachments))
		copy(out.Attachments, c.Attachments)
	}
	return out
}

// ComplaintPage is one page of the complaint listing.
type ComplaintPage struct {
	Complaints      []Complaint `json:"complaints" validate:"dive"`
	TotalComplaints int         `json:"totalComplaints" validate:"gte=0"`
	CurrentPage     int         `json:"currentPage"`
	TotalPages      int         `json:"totalPages"`
}

// Upload is a file attached to a new complaint.
type Upload struct {
	Filename string `validate:"required"`
	Data     []byte
}

// NewComplaint is the payload for submitting a complaint.
type NewComplaint struct {
	Title         string   `validate:"notblank,min=5,max=100"`
	Description   string   `validate:"required,min=10,max=1000"`
	CategoryID    string   `validate:"required"`
	SubCategoryID string   `validate:"omitempty"`
	Priority      Priority `validate:"required,complaint_priority"`
	Attachments   []Upload `validate:"dive"`
}

// ComplaintUpdate edits the user-owned fields of an existing complaint.
type ComplaintUpdate struct {
	Title       string   `json:"title" validate:"required,min=5,max=100"`
	Description string   `json:"description" validate:"required,min=10,max=1000"`
	Priority    Priority `json:"priority" validate:"required,complaint_priority"`
}

// StatusUpdate is the payload for moving a complaint to a new status.
// A resolution note is required for every status except pending.
type StatusUpdate struct {
	Status     Status `json:"status" validate:"required,complaint_status"`
	Resolution string `json:"resolution"`
}
