package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"syllabuscal/internal/config"
	"syllabuscal/internal/scan"
	"syllabuscal/internal/store"
)

// wednesday, 10 January 2024
var fixedNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = t.TempDir()
	cfg.BasicAuth = auth

	clock := func() time.Time { return fixedNow }
	sc, err := scan.New(cfg, st, scan.WithNow(clock))
	require.NoError(t, err)

	s := NewServer(cfg, st, sc)
	s.now = clock
	return s, st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestExtractDoesNotPersist(t *testing.T) {
	s, st := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/extract", `{"text":"Essay due next Friday"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "Essay due", resp.Events[0].Title)
	require.True(t, resp.Events[0].Date.Equal(time.Date(2024, time.January, 19, 23, 59, 0, 0, time.UTC)))

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	rec = do(t, s.Handler(), http.MethodPost, "/api/extract", `{"text":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s.Handler(), http.MethodPost, "/api/extract", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureListDeleteAndCalendar(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	body := `{"text":"Quiz 3 due February 15, 2024 at 3:00 PM\nMidterm Exam: March 1, 2025","url":"https://example.edu/cs101"}`
	rec := do(t, h, http.MethodPost, "/api/capture", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var res scan.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Added, 2)

	rec = do(t, h, http.MethodPost, "/api/capture", body)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Empty(t, res.Added)

	rec = do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	require.Equal(t, "Quiz 3 due", list.Events[0].Title)

	rec = do(t, h, http.MethodGet, "/api/events?days=60", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)

	rec = do(t, h, http.MethodGet, "/api/events?type=exam", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Midterm Exam", list.Events[0].Title)

	rec = do(t, h, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	require.Equal(t, 2, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
	require.Contains(t, rec.Body.String(), "SUMMARY:Quiz 3 due")

	id := list.Events[0].ID
	rec = do(t, h, http.MethodGet, "/api/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/events/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/events/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/events/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, 1, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
	require.NotContains(t, rec.Body.String(), "Midterm Exam")
}

func TestRefreshWithoutSources(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Zero(t, resp.Sources)
	require.Empty(t, resp.Errors)
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, &config.BasicAuthConfig{Username: "student", Password: "s3cret"})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("student", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("student", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSplitJoined(t *testing.T) {
	require.Equal(t, []string{"fetch a: boom", "fetch b: gone"},
		splitJoined(errors.Join(errors.New("fetch a: boom"), errors.New("fetch b: gone"))))
	require.Equal(t, []string{"single"}, splitJoined(errors.New("single")))
}
