package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/nhle/complaint-desk/internal/model"
)

// Request is a request recorded by FakeServer.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Auth     string
	Header   http.Header
	Body     []byte
}

// URI returns the path with its query string, as sent on the wire.
func (r Request) URI() string {
	if r.RawQuery == "" {
		return r.Method + " " + r.Path
	}
	return r.Method + " " + r.Path + "?" + r.RawQuery
}

type failure struct {
	status  int
	message string
}

// FakeServer is an in-memory complaint backend served under /api.
type FakeServer struct {
	*httptest.Server

	mu         sync.Mutex
	complaints []model.Complaint
	categories []model.Category
	requests   []Request
	failures   map[string]failure
	token      string
	nextID     int
}

// NewFakeServer starts a fake backend that is closed when the test ends.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()

	s := &FakeServer{failures: map[string]failure{}}

	router := mux.NewRouter()
	router.Use(s.record, s.authenticate, s.inject)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/complaints", s.handleListComplaints).Methods(http.MethodGet)
	api.HandleFunc("/complaints", s.handleCreateComplaint).Methods(http.MethodPost)
	api.HandleFunc("/complaints/{id}", s.handleGetComplaint).Methods(http.MethodGet)
	api.HandleFunc("/complaints/{id}", s.handleUpdateComplaint).Methods(http.MethodPut)
	api.HandleFunc("/complaints/{id}", s.handleDeleteComplaint).Methods(http.MethodDelete)
	api.HandleFunc("/complaints/{id}/comments", s.handleAddComment).Methods(http.MethodPost)
	api.HandleFunc("/complaints/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)
	api.HandleFunc("/categories/{id}/subcategories", s.handleAddSubCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}/subcategories/{subId}", s.handleUpdateSubCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}/subcategories/{subId}", s.handleDeleteSubCategory).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

// APIURL returns the base URL to hand to api.NewClient.
func (s *FakeServer) APIURL() string {
	return s.Server.URL + "/api"
}

// SetComplaints replaces the stored complaints.
func (s *FakeServer) SetComplaints(cs ...model.Complaint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complaints = append([]model.Complaint(nil), cs...)
}

// SetCategories replaces the stored categories.
func (s *FakeServer) SetCategories(cs ...model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]model.Category(nil), cs...)
}

// RequireToken makes every request without "Bearer token" fail with 401.
func (s *FakeServer) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Fail makes requests matching method and route template (relative to
// /api, e.g. "/complaints/{id}") respond with status and {message}.
func (s *FakeServer) Fail(method, route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+route] = failure{status: status, message: message}
}

// Requests returns every request received so far.
func (s *FakeServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount returns how many requests were received.
func (s *FakeServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// LastRequest returns the most recent request.
func (s *FakeServer) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Complaint returns the stored complaint with id.
func (s *FakeServer) Complaint(id string) (model.Complaint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.complaintIndex(id)
	if i < 0 {
		return model.Complaint{}, false
	}
	return s.complaints[i].Clone(), true
}

// Middleware

func (s *FakeServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Auth:     r.Header.Get("Authorization"),
			Header:   r.Header.Clone(),
			Body:     body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeMessage(w, http.StatusUnauthorized, "not authorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				s.mu.Lock()
				f, ok := s.failures[r.Method+" "+strings.TrimPrefix(tpl, "/api")]
				s.mu.Unlock()
				if ok {
					writeMessage(w, f.status, f.message)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Complaints

func (s *FakeServer) handleListComplaints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), model.DefaultPageSize)

	s.mu.Lock()
	var matched []model.Complaint
	for _, c := range s.complaints {
		if st := q.Get("status"); st != "" && string(c.Status) != st {
			continue
		}
		if p := q.Get("priority"); p != "" && string(c.Priority) != p {
			continue
		}
		if term := strings.ToLower(q.Get("search")); term != "" &&
			!strings.Contains(strings.ToLower(c.Title), term) &&
			!strings.Contains(strings.ToLower(c.Description), term) {
			continue
		}
		matched = append(matched, c.Clone())
	}
	s.mu.Unlock()

	sortComplaints(matched, q.Get("sort"))

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}

	writeJSON(w, http.StatusOK, model.ComplaintPage{
		Complaints:      append([]model.Complaint{}, matched[start:end]...),
		TotalComplaints: total,
		CurrentPage:     page,
		TotalPages:      pages,
	})
}

func sortComplaints(cs []model.Complaint, order string) {
	rank := map[model.Priority]int{model.PriorityLow: 0, model.PriorityMedium: 1, model.PriorityHigh: 2}
	sort.SliceStable(cs, func(i, j int) bool {
		switch order {
		case string(model.SortOldest):
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		case string(model.SortPriorityHigh):
			return rank[cs[i].Priority] > rank[cs[j].Priority]
		case string(model.SortPriorityLow):
			return rank[cs[i].Priority] < rank[cs[j].Priority]
		default:
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
	})
}

func (s *FakeServer) handleGetComplaint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.complaintIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Complaint not found")
		return
	}
	writeJSON(w, http.StatusOK, s.complaints[i])
}

func (s *FakeServer) handleCreateComplaint(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeMessage(w, http.StatusBadRequest, "expected multipart form")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := model.Complaint{
		ID:          s.newID("c"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Status:      model.StatusPending,
		Priority:    model.Priority(r.FormValue("priority")),
		Category:    model.Ref{ID: r.FormValue("category")},
		CreatedAt:   time.Now().UTC(),
	}
	if sub := r.FormValue("subCategory"); sub != "" {
		c.SubCategory = &model.Ref{ID: sub}
	}
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["attachments"] {
			c.Attachments = append(c.Attachments, model.Attachment{
				Filename: fh.Filename,
				URL:      "/uploads/" + fh.Filename,
			})
		}
	}

	s.complaints = append([]model.Complaint{c}, s.complaints...)
	writeJSON(w, http.StatusCreated, c)
}

func (s *FakeServer) handleUpdateComplaint(w http.ResponseWriter, r *http.Request) {
	var in model.ComplaintUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.complaintIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Complaint not found")
		return
	}
	s.complaints[i].Title = in.Title
	s.complaints[i].Description = in.Description
	s.complaints[i].Priority = in.Priority
	writeJSON(w, http.StatusOK, s.complaints[i])
}

func (s *FakeServer) handleDeleteComplaint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.complaintIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Complaint not found")
		return
	}
	if s.complaints[i].Status != model.StatusPending {
		writeMessage(w, http.StatusBadRequest, "Only pending complaints can be deleted")
		return
	}
	s.complaints = append(s.complaints[:i], s.complaints[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Complaint deleted"})
}

func (s *FakeServer) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.complaintIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Complaint not found")
		return
	}
	if s.complaints[i].Status.Terminal() {
		writeMessage(w, http.StatusBadRequest, "Cannot comment on a closed complaint")
		return
	}
	comment := model.Comment{
		ID:        s.newID("m"),
		Author:    model.User{Name: "Test User"},
		Text:      in.Text,
		CreatedAt: time.Now().UTC(),
	}
	s.complaints[i].Comments = append(s.complaints[i].Comments, comment)
	writeJSON(w, http.StatusCreated, comment)
}

func (s *FakeServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in model.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.complaintIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Complaint not found")
		return
	}
	s.complaints[i].Status = in.Status
	if in.Resolution != "" {
		s.complaints[i].Resolution = &model.Resolution{
			Note:   in.Resolution,
			Author: &model.User{Name: "Admin"},
			Date:   time.Now().UTC(),
		}
	}
	writeJSON(w, http.StatusOK, s.complaints[i])
}

// Categories

func (s *FakeServer) handleListCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := model.CategoryTree{
		Categories:         []model.Category{},
		FrequentCategories: []model.Category{},
	}
	for _, c := range s.categories {
		tree.Categories = append(tree.Categories, c)
		if c.IsFrequentlyUsed {
			tree.FrequentCategories = append(tree.FrequentCategories, c)
		}
		tree.TotalComplaints += c.TotalComplaints
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *FakeServer) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in model.CategoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := model.Category{
		ID:            s.newID("cat"),
		Name:          in.Name,
		Description:   in.Description,
		Icon:          in.Icon,
		SubCategories: []model.SubCategory{},
	}
	s.categories = append(s.categories, c)
	writeJSON(w, http.StatusCreated, c)
}

func (s *FakeServer) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in model.CategoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.categoryIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Category not found")
		return
	}
	s.categories[i].Name = in.Name
	s.categories[i].Description = in.Description
	s.categories[i].Icon = in.Icon
	writeJSON(w, http.StatusOK, s.categories[i])
}

func (s *FakeServer) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.categoryIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Category not found")
		return
	}
	s.categories = append(s.categories[:i], s.categories[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Category deleted"})
}

func (s *FakeServer) handleAddSubCategory(w http.ResponseWriter, r *http.Request) {
	var in model.SubCategoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.categoryIndex(mux.Vars(r)["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Category not found")
		return
	}
	s.categories[i].SubCategories = append(s.categories[i].SubCategories, model.SubCategory{
		ID:          s.newID("sub"),
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
	})
	writeJSON(w, http.StatusCreated, s.categories[i])
}

func (s *FakeServer) handleUpdateSubCategory(w http.ResponseWriter, r *http.Request) {
	var in model.SubCategoryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vars := mux.Vars(r)
	i := s.categoryIndex(vars["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Category not found")
		return
	}
	for j, sc := range s.categories[i].SubCategories {
		if sc.ID == vars["subId"] {
			s.categories[i].SubCategories[j].Name = in.Name
			s.categories[i].SubCategories[j].Description = in.Description
			s.categories[i].SubCategories[j].Icon = in.Icon
			writeJSON(w, http.StatusOK, s.categories[i])
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Subcategory not found")
}

func (s *FakeServer) handleDeleteSubCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := mux.Vars(r)
	i := s.categoryIndex(vars["id"])
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "Category not found")
		return
	}
	subs := s.categories[i].SubCategories
	for j, sc := range subs {
		if sc.ID == vars["subId"] {
			s.categories[i].SubCategories = append(subs[:j:j], subs[j+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Subcategory deleted"})
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Subcategory not found")
}

// Helpers; callers hold s.mu.

func (s *FakeServer) complaintIndex(id string) int {
	for i, c := range s.complaints {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *FakeServer) categoryIndex(id string) int {
	for i, c := range s.categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *FakeServer) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-new-%d", prefix, s.nextID)
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
