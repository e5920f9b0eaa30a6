package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"syllabuscal/internal/config"
	"syllabuscal/internal/ics"
	appLog "syllabuscal/internal/log"
	"syllabuscal/internal/model"
	"syllabuscal/internal/scan"
	"syllabuscal/internal/store"
)

const (
	maxRequestBytes = 1 << 20
	calendarTTL     = 30 * time.Second
)

// EventStore is the part of the event store the API reads and deletes from.
type EventStore interface {
	List(ctx context.Context, f store.Filter) ([]model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	Delete(ctx context.Context, id string) error
}

// Scanner runs extraction and captures.
type Scanner interface {
	Extract(text, src string) []model.Event
	CaptureText(ctx context.Context, text, src string) (scan.Result, error)
	ScanAll(ctx context.Context) (scan.Summary, error)
}

// Server provides the HTTP API over the event store and scanner.
type Server struct {
	cfg     *config.Config
	store   EventStore
	scanner Scanner
	mux     *http.ServeMux
	now     func() time.Time

	// Rendered /calendar.ics, dropped whenever the store changes.
	calMu    sync.RWMutex
	calCache *calendarCache
}

type calendarCache struct {
	body      string
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st EventStore, sc Scanner) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		scanner: sc,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="syllabuscal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("POST /api/capture", s.handleCapture)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
	Count  int           `json:"count"`
}

// handleListEvents lists stored events.
//
// GET /api/events?days=30&backfill=1&type=quiz
//   - days:     only events up to this many days ahead (default: no limit)
//   - backfill: include events this many days in the past (default: all)
//   - type:     only events of this category
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.now().In(s.cfg.Location())

	var f store.Filter
	if days := parseIntDefault(q.Get("days"), 0); days > 0 {
		f.To = now.AddDate(0, 0, days)
	}
	if q.Has("backfill") {
		backfill := max(parseIntDefault(q.Get("backfill"), 0), 0)
		f.From = now.AddDate(0, 0, -backfill)
	}
	f.Type = q.Get("type")

	events, err := s.store.List(r.Context(), f)
	if err != nil {
		appLog.Error("api events: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		appLog.Error("api events: get failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		appLog.Error("api events: delete failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	s.invalidateCalendar()
	w.WriteHeader(http.StatusNoContent)
}

type textRequest struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// handleExtract runs the extractor over posted text without storing
// anything and without the syllabus guard.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTextRequest(w, r)
	if !ok {
		return
	}
	events := s.scanner.Extract(req.Text, req.URL)
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

// handleCapture is the copy-capture endpoint: text the user copied on a
// course page, plus that page's URL.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTextRequest(w, r)
	if !ok {
		return
	}
	res, err := s.scanner.CaptureText(r.Context(), req.Text, req.URL)
	if err != nil {
		appLog.Error("api capture failed", err, "url", req.URL)
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}
	if len(res.Added) > 0 {
		s.invalidateCalendar()
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshResponse struct {
	scan.Summary
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sum, err := s.scanner.ScanAll(r.Context())
	resp := refreshResponse{Summary: sum}
	if err != nil {
		resp.Errors = splitJoined(err)
	}
	if sum.Added > 0 {
		s.invalidateCalendar()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves every stored event as an .ics subscription.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now()

	s.calMu.RLock()
	cc := s.calCache
	s.calMu.RUnlock()

	if cc == nil || now.Sub(cc.updatedAt) >= calendarTTL {
		events, err := s.store.List(r.Context(), store.Filter{})
		if err != nil {
			appLog.Error("calendar export: list failed", err)
			writeError(w, http.StatusInternalServerError, "failed to export calendar")
			return
		}
		body := ics.Export(events, ics.ExportOptions{
			ProductID:     s.cfg.Export.ProductID,
			EventDuration: time.Duration(s.cfg.Export.EventMinutes) * time.Minute,
			Now:           now,
		})
		cc = &calendarCache{body: body, updatedAt: now}

		s.calMu.Lock()
		s.calCache = cc
		s.calMu.Unlock()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="syllabus-events.ics"`)
	_, _ = w.Write([]byte(cc.body))
}

func (s *Server) invalidateCalendar() {
	s.calMu.Lock()
	s.calCache = nil
	s.calMu.Unlock()
}

func decodeTextRequest(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return req, false
	}
	return req, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// splitJoined unpacks an errors.Join result into messages.
func splitJoined(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		out := make([]string, 0, len(j.Unwrap()))
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
