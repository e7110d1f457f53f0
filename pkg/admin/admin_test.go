package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/internal/testdb"
	"github.com/jdziat/delayed/pkg/storage"
)

var now = time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *storage.GormStorage) {
	t.Helper()
	store := storage.NewGormStorage(testdb.Open(t), storage.WithClock(func() time.Time { return now }))
	require.NoError(t, store.Migrate(context.Background()))

	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	srv := httptest.NewServer(NewHandler(store, opts...))
	t.Cleanup(srv.Close)
	return srv, store
}

func insert(t *testing.T, store *storage.GormStorage, failed bool) *core.Job {
	t.Helper()
	msg := "did not work"
	job := &core.Job{Handler: "--- !delayed/ErrorJob {}\n", Attempts: 3, LastError: &msg}
	if failed {
		at := now.Add(-time.Minute)
		job.FailedAt = &at
	}
	require.NoError(t, store.Insert(context.Background(), job))
	return job
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStats(t *testing.T) {
	srv, store := newTestServer(t)
	insert(t, store, false)
	insert(t, store, true)
	insert(t, store, true)

	var stats core.Stats
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/jobs/stats", &stats))
	assert.Equal(t, core.Stats{Pending: 1, Failed: 2}, stats)
}

func TestFailedJobs(t *testing.T) {
	srv, store := newTestServer(t)
	insert(t, store, false)
	failed := insert(t, store, true)

	var body struct {
		Jobs []jobView `json:"jobs"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/jobs/failed", &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, failed.ID, body.Jobs[0].ID)
	assert.Equal(t, "ErrorJob", body.Jobs[0].Name)
	require.NotNil(t, body.Jobs[0].LastError)
	assert.Equal(t, "did not work", *body.Jobs[0].LastError)
}

func TestFailedJobs_Limit(t *testing.T) {
	srv, store := newTestServer(t)
	for range 3 {
		insert(t, store, true)
	}

	var body struct {
		Jobs []jobView `json:"jobs"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/jobs/failed?limit=2", &body))
	assert.Len(t, body.Jobs, 2)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/jobs/failed?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/jobs/failed?limit=-1", nil))
}

func TestFailedJobs_DefaultLimitOption(t *testing.T) {
	srv, store := newTestServer(t, WithDefaultLimit(1))
	insert(t, store, true)
	insert(t, store, true)

	var body struct {
		Jobs []jobView `json:"jobs"`
	}
	getJSON(t, srv.URL+"/jobs/failed", &body)
	assert.Len(t, body.Jobs, 1)
}

func TestGetJob(t *testing.T) {
	srv, store := newTestServer(t)
	job := insert(t, store, false)

	var view jobView
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/jobs/"+job.ID, &view))
	assert.Equal(t, job.ID, view.ID)
	assert.Equal(t, 3, view.Attempts)
	assert.True(t, now.Equal(view.RunAt))
	assert.Nil(t, view.FailedAt)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/jobs/missing", &errBody))
	assert.Equal(t, core.ErrJobNotFound.Error(), errBody["error"])
}

func TestRetry(t *testing.T) {
	srv, store := newTestServer(t)
	failed := insert(t, store, true)
	pending := insert(t, store, false)

	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/jobs/"+failed.ID+"/retry"))

	got, err := store.GetJob(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.False(t, got.Failed())
	assert.Equal(t, 0, got.Attempts)
	assert.True(t, now.Equal(got.RunAt))

	assert.Equal(t, http.StatusConflict, post(t, srv.URL+"/jobs/"+pending.ID+"/retry"))
	assert.Equal(t, http.StatusNotFound, post(t, srv.URL+"/jobs/missing/retry"))
}

func TestWithMiddleware(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	srv, _ := newTestServer(t, WithMiddleware(deny))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
