package api_test

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/metrics"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/query"
	fake "github.com/nhle/complaint-desk/tests/testutil"
)

func complaint(id string, status model.Status) model.Complaint {
	return model.Complaint{
		ID:        id,
		Title:     "Complaint " + id,
		Status:    status,
		Priority:  model.PriorityMedium,
		Category:  model.Ref{ID: "cat-1", Name: "Facilities"},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestListComplaintsSendsComposedQuery(t *testing.T) {
	srv := fake.NewFakeServer(t)
	srv.SetComplaints(complaint("a", model.StatusPending), complaint("b", model.StatusResolved))
	client := api.NewClient(srv.APIURL(), api.StaticToken("secret"))

	f := model.DefaultFilterState().WithStatus(string(model.StatusPending))
	page, err := client.ListComplaints(context.Background(), query.Compose(f))
	require.NoError(t, err)

	require.Len(t, page.Complaints, 1)
	assert.Equal(t, "a", page.Complaints[0].ID)
	assert.Equal(t, 1, page.TotalComplaints)
	assert.Equal(t, 1, page.TotalPages)

	req, ok := srv.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "GET /api/complaints?status=pending&sort=newest&page=1&limit=10", req.URI())
	assert.Equal(t, "Bearer secret", req.Auth)

	_, err = uuid.Parse(req.Header.Get("X-Request-ID"))
	assert.NoError(t, err, "request id should be a uuid")
}

func TestEmptyTokenSendsNoAuthorization(t *testing.T) {
	srv := fake.NewFakeServer(t)
	client := api.NewClient(srv.APIURL(), nil)

	_, err := client.ListCategories(context.Background())
	require.NoError(t, err)

	req, _ := srv.LastRequest()
	assert.Empty(t, req.Auth)
}

func TestStatusErrorCarriesServerMessage(t *testing.T) {
	srv := fake.NewFakeServer(t)
	srv.Fail(http.MethodGet, "/complaints", http.StatusInternalServerError, "database unavailable")
	client := api.NewClient(srv.APIURL(), nil)

	_, err := client.ListComplaints(context.Background(), query.Compose(model.DefaultFilterState()))
	require.Error(t, err)

	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "database unavailable", statusErr.Message)
	assert.Equal(t, "database unavailable", api.Message(err))
	assert.False(t, api.IsAborted(err))
}

func TestNotFound(t *testing.T) {
	srv := fake.NewFakeServer(t)
	client := api.NewClient(srv.APIURL(), nil)

	_, err := client.GetComplaint(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestUnauthorizedCallsHook(t *testing.T) {
	srv := fake.NewFakeServer(t)
	srv.RequireToken("good")

	var calls int32
	client := api.NewClient(srv.APIURL(), api.StaticToken("bad"),
		api.OnUnauthorized(func() { atomic.AddInt32(&calls, 1) }),
	)

	_, err := client.ListCategories(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, srv.RequestCount(), "401 must not be retried")
}

func TestCancelledRequestIsAborted(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := api.NewClient(srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := client.GetComplaint(ctx, "x")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, api.IsAborted(err))
	case <-time.After(2 * time.Second):
		t.Fatal("request did not return after cancel")
	}
}

func TestMalformedPayloadRejectedAtBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"categories":[{"_id":"c1","name":"Roads","subCategories":[` +
			`{"_id":"s1","name":"Potholes"},{"_id":"s1","name":"Lights"}]}],` +
			`"frequentCategories":[],"totalComplaints":0}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil)
	_, err := client.ListCategories(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
}

func TestReferencesDecodeFromIDOrObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"c1","title":"Broken lift","status":"pending","priority":"high",` +
			`"category":"cat-9","subCategory":{"_id":"sub-2","name":"Elevators"},` +
			`"createdAt":"2026-03-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil)
	c, err := client.GetComplaint(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "cat-9", c.Category.ID)
	require.NotNil(t, c.SubCategory)
	assert.Equal(t, "sub-2", c.SubCategory.ID)
	assert.Equal(t, "Elevators", c.SubCategory.Name)
}

func TestCreateComplaintSendsMultipart(t *testing.T) {
	var (
		fields   = map[string]string{}
		files    []string
		gotCType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCType = r.Header.Get("Content-Type")
		_, params, err := mime.ParseMediaType(gotCType)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			if part.FileName() != "" {
				files = append(files, part.FileName())
				continue
			}
			data, _ := io.ReadAll(part)
			fields[part.FormName()] = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"new-1","title":"Leaking roof","status":"pending",` +
			`"priority":"high","category":"cat-1"}`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, nil)
	created, err := client.CreateComplaint(context.Background(), model.NewComplaint{
		Title:         "Leaking roof",
		Description:   "Water drips from the ceiling in room 12.",
		CategoryID:    "cat-1",
		SubCategoryID: "sub-1",
		Priority:      model.PriorityHigh,
		Attachments:   []model.Upload{{Filename: "photo.jpg", Data: []byte{0xff, 0xd8}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "new-1", created.ID)
	assert.True(t, strings.HasPrefix(gotCType, "multipart/form-data"))
	assert.Equal(t, "Leaking roof", fields["title"])
	assert.Equal(t, "cat-1", fields["category"])
	assert.Equal(t, "sub-1", fields["subCategory"])
	assert.Equal(t, "high", fields["priority"])
	assert.Equal(t, []string{"photo.jpg"}, files)
}

func TestCategoryMutations(t *testing.T) {
	srv := fake.NewFakeServer(t)
	client := api.NewClient(srv.APIURL(), nil)
	ctx := context.Background()

	cat, err := client.CreateCategory(ctx, model.CategoryInput{Name: "Transport"})
	require.NoError(t, err)
	require.NotEmpty(t, cat.ID)

	parent, err := client.AddSubCategory(ctx, cat.ID, model.SubCategoryInput{Name: "Buses"})
	require.NoError(t, err)
	require.Len(t, parent.SubCategories, 1)

	subID := parent.SubCategories[0].ID
	parent, err = client.UpdateSubCategory(ctx, cat.ID, subID, model.SubCategoryInput{Name: "Night buses"})
	require.NoError(t, err)
	assert.Equal(t, "Night buses", parent.SubCategories[0].Name)

	require.NoError(t, client.DeleteSubCategory(ctx, cat.ID, subID))
	require.NoError(t, client.DeleteCategory(ctx, cat.ID))

	err = client.DeleteCategory(ctx, cat.ID)
	assert.True(t, api.IsNotFound(err))

	req, _ := srv.LastRequest()
	assert.Equal(t, "DELETE /api/categories/"+cat.ID, req.URI())
}

func TestRequestMetricsAreRecorded(t *testing.T) {
	srv := fake.NewFakeServer(t)
	m := metrics.New(prometheus.NewRegistry())
	client := api.NewClient(srv.APIURL(), nil, api.WithMetrics(m))

	_, err := client.ListCategories(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/categories", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsInFlight.WithLabelValues("/categories")))
}
