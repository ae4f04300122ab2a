package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/query"
)

// Metric route labels for complaint endpoints.
const (
	routeComplaints       = "/complaints"
	routeComplaint        = "/complaints/{id}"
	routeComplaintComment = "/complaints/{id}/comments"
	routeComplaintStatus  = "/complaints/{id}/status"
)

// ListComplaints fetches one page of the complaint listing.
func (c *Client) ListComplaints(ctx context.Context, q query.Query) (model.ComplaintPage, error) {
	path := routeComplaints + "?" + q.Encode()

	var page model.ComplaintPage
	if err := c.get(ctx, routeComplaints, path, &page); err != nil {
		return model.ComplaintPage{}, fmt.Errorf("listing complaints: %w", err)
	}
	if err := model.Validate(page); err != nil {
		return model.ComplaintPage{}, fmt.Errorf("listing complaints: %w", err)
	}
	if page.Complaints == nil {
		page.Complaints = []model.Complaint{}
	}
	return page, nil
}

// GetComplaint fetches a complaint with its comments and resolution.
func (c *Client) GetComplaint(ctx context.Context, id string) (model.Complaint, error) {
	var complaint model.Complaint
	if err := c.get(ctx, routeComplaint, complaintPath(id), &complaint); err != nil {
		return model.Complaint{}, fmt.Errorf("getting complaint %s: %w", id, err)
	}
	if err := model.Validate(complaint); err != nil {
		return model.Complaint{}, fmt.Errorf("getting complaint %s: %w", id, err)
	}
	return complaint, nil
}

// CreateComplaint submits a new complaint as multipart form data so
// attachments can travel with it.
func (c *Client) CreateComplaint(ctx context.Context, in model.NewComplaint) (model.Complaint, error) {
	body, contentType, err := encodeNewComplaint(in)
	if err != nil {
		return model.Complaint{}, fmt.Errorf("encoding complaint: %w", err)
	}

	var created model.Complaint
	if err := c.do(ctx, http.MethodPost, routeComplaints, routeComplaints, body, contentType, &created); err != nil {
		return model.Complaint{}, fmt.Errorf("creating complaint: %w", err)
	}
	if err := model.Validate(created); err != nil {
		return model.Complaint{}, fmt.Errorf("creating complaint: %w", err)
	}
	return created, nil
}

// UpdateComplaint edits the title, description and priority of a
// complaint.
func (c *Client) UpdateComplaint(ctx context.Context, id string, in model.ComplaintUpdate) (model.Complaint, error) {
	var updated model.Complaint
	if err := c.doJSON(ctx, http.MethodPut, routeComplaint, complaintPath(id), in, &updated); err != nil {
		return model.Complaint{}, fmt.Errorf("updating complaint %s: %w", id, err)
	}
	if err := model.Validate(updated); err != nil {
		return model.Complaint{}, fmt.Errorf("updating complaint %s: %w", id, err)
	}
	return updated, nil
}

// DeleteComplaint withdraws a complaint.
func (c *Client) DeleteComplaint(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, routeComplaint, complaintPath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting complaint %s: %w", id, err)
	}
	return nil
}

// AddComment posts a comment and returns the stored comment.
func (c *Client) AddComment(ctx context.Context, id, text string) (model.Comment, error) {
	body := struct {
		Text string `json:"text"`
	}{Text: text}

	var comment model.Comment
	path := complaintPath(id) + "/comments"
	if err := c.doJSON(ctx, http.MethodPost, routeComplaintComment, path, body, &comment); err != nil {
		return model.Comment{}, fmt.Errorf("commenting on complaint %s: %w", id, err)
	}
	if err := model.Validate(comment); err != nil {
		return model.Comment{}, fmt.Errorf("commenting on complaint %s: %w", id, err)
	}
	return comment, nil
}

// UpdateStatus moves a complaint to a new status.
func (c *Client) UpdateStatus(ctx context.Context, id string, in model.StatusUpdate) (model.Complaint, error) {
	var updated model.Complaint
	path := complaintPath(id) + "/status"
	if err := c.doJSON(ctx, http.MethodPatch, routeComplaintStatus, path, in, &updated); err != nil {
		return model.Complaint{}, fmt.Errorf("updating status of complaint %s: %w", id, err)
	}
	if err := model.Validate(updated); err != nil {
		return model.Complaint{}, fmt.Errorf("updating status of complaint %s: %w", id, err)
	}
	return updated, nil
}

func complaintPath(id string) string {
	return routeComplaints + "/" + url.PathEscape(id)
}

func encodeNewComplaint(in model.NewComplaint) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"title", strings.TrimSpace(in.Title)},
		{"description", in.Description},
		{"category", in.CategoryID},
		{"priority", string(in.Priority)},
	}
	if in.SubCategoryID != "" {
		fields = append(fields, [2]string{"subCategory", in.SubCategoryID})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", f[0], err)
		}
	}

	for _, up := range in.Attachments {
		part, err := w.CreateFormFile("attachments", up.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("adding attachment %s: %w", up.Filename, err)
		}
		if _, err := part.Write(up.Data); err != nil {
			return nil, "", fmt.Errorf("writing attachment %s: %w", up.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
