package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"sync"
	"time"

	"syllabuscal/internal/capture"
	"syllabuscal/internal/config"
	"syllabuscal/internal/dateextract"
	"syllabuscal/internal/ics"
	appLog "syllabuscal/internal/log"
	"syllabuscal/internal/model"
	"syllabuscal/internal/source"
)

// Store is where captured events are merged.
type Store interface {
	Merge(ctx context.Context, events []model.Event) ([]model.Event, error)
}

// Fetcher downloads pages and feeds.
type Fetcher interface {
	FetchOne(ctx context.Context, r source.Resource) (source.FetchResult, error)
}

// Renderer returns the visible text of a JavaScript-rendered page.
type Renderer func(ctx context.Context, opts capture.PageOptions) (string, error)

// Result is the outcome of one capture or source scan.
type Result struct {
	Source string `json:"source"`
	// Found is every event extracted, after deduplication within the scan.
	Found []model.Event `json:"found"`
	// Added is the subset of Found that was not stored yet.
	Added []model.Event `json:"added"`
	// Skipped is true when the text did not look like a syllabus.
	Skipped bool `json:"skipped,omitempty"`
}

// Scanner turns text sources into stored events: guard, extract, enrich,
// merge.
type Scanner struct {
	engine  *dateextract.Engine
	store   Store
	fetcher Fetcher
	render  Renderer
	sources []config.SourceConfig

	minLen, maxLen int
	renderTimeout  time.Duration
	horizon        time.Duration
	loc            *time.Location
	now            func() time.Time

	// scanMu keeps ScanAll runs from overlapping (cron tick vs. API refresh).
	scanMu sync.Mutex
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(s *Scanner) { s.fetcher = f }
}

// WithRenderer replaces the headless-browser renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Scanner) { s.render = r }
}

// WithNow fixes the clock used for extraction, feed horizons and Added.
func WithNow(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New builds a Scanner from cfg, merging into st.
func New(cfg *config.Config, st Store, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		store:         st,
		fetcher:       source.NewFetcher(cfg.CacheDir),
		render:        capture.PageText,
		sources:       cfg.Sources,
		minLen:        cfg.Scan.MinTextLen,
		maxLen:        cfg.Scan.MaxTextLen,
		renderTimeout: time.Duration(cfg.Scan.RenderTimeoutSec) * time.Second,
		horizon:       time.Duration(cfg.Scan.HorizonDays) * 24 * time.Hour,
		loc:           cfg.Location(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, dateextract.WithNow(s.now))
	s.engine = dateextract.New(engineOpts...)
	return s, nil
}

// Extract runs the engine over text and enriches the results without
// storing them or applying the syllabus guard.
func (s *Scanner) Extract(text, src string) []model.Event {
	return s.extract(source.Normalize(text), src, dedupKeys{})
}

// CaptureText handles one piece of copied text: if it looks like a
// syllabus, its events are extracted and merged into the store.
func (s *Scanner) CaptureText(ctx context.Context, text, src string) (Result, error) {
	res := Result{Source: src, Found: []model.Event{}, Added: []model.Event{}}

	text = source.Normalize(text)
	if !source.IsSyllabusText(text, s.minLen, s.maxLen) {
		appLog.Debug("capture skipped; not syllabus text", "source", src, "len", len(text))
		res.Skipped = true
		return res, nil
	}

	res.Found = s.extract(text, src, dedupKeys{})
	return s.merge(ctx, res)
}

// CaptureBlocks is CaptureText for a whole document already split into
// blocks; each block is guarded on its own.
func (s *Scanner) CaptureBlocks(ctx context.Context, blocks []string, src string) (Result, error) {
	res := Result{Source: src, Found: []model.Event{}, Added: []model.Event{}}
	seen := dedupKeys{}
	for _, b := range blocks {
		b = source.Normalize(b)
		if !source.IsSyllabusText(b, s.minLen, s.maxLen) {
			continue
		}
		res.Found = append(res.Found, s.extract(b, src, seen)...)
	}
	return s.merge(ctx, res)
}

// ScanSource fetches and captures one configured source.
func (s *Scanner) ScanSource(ctx context.Context, src config.SourceConfig) (Result, error) {
	switch src.Kind {
	case config.KindICS:
		return s.importFeed(ctx, src)
	case config.KindRendered:
		text, err := s.render(ctx, capture.PageOptions{URL: src.URL, Timeout: s.renderTimeout})
		if err != nil {
			return Result{Source: src.URL}, fmt.Errorf("render %s: %w", src.ID, err)
		}
		return s.CaptureBlocks(ctx, Chunk(text, s.maxLen), src.URL)
	default:
		fr, err := s.fetcher.FetchOne(ctx, source.Resource{ID: src.ID, URL: src.URL})
		if err != nil {
			return Result{Source: src.URL}, fmt.Errorf("fetch %s: %w", src.ID, err)
		}
		blocks, err := s.documentBlocks(fr.Body, fr.ContentType)
		if err != nil {
			return Result{Source: src.URL}, fmt.Errorf("read %s: %w", src.ID, err)
		}
		return s.CaptureBlocks(ctx, blocks, src.URL)
	}
}

// ImportFeed imports an ICS feed URL that is not in the configuration.
func (s *Scanner) ImportFeed(ctx context.Context, url string) (Result, error) {
	return s.ScanSource(ctx, config.SourceConfig{ID: url, URL: url, Kind: config.KindICS})
}

// Summary aggregates a ScanAll run.
type Summary struct {
	Sources int `json:"sources"`
	Failed  int `json:"failed"`
	Found   int `json:"found"`
	Added   int `json:"added"`
}

// ScanAll scans every configured source. A failing source is logged and
// does not stop the others; the joined errors are returned with the
// summary.
func (s *Scanner) ScanAll(ctx context.Context) (Summary, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	var (
		sum  Summary
		errs []error
	)
	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sum.Sources++
		res, err := s.ScanSource(ctx, src)
		if err != nil {
			sum.Failed++
			errs = append(errs, err)
			appLog.Error("source scan failed", err, "id", src.ID, "kind", src.Kind)
			continue
		}
		sum.Found += len(res.Found)
		sum.Added += len(res.Added)
	}

	appLog.Info("scan completed", "sources", sum.Sources, "failed", sum.Failed, "found", sum.Found, "added", sum.Added)
	return sum, errors.Join(errs...)
}

func (s *Scanner) importFeed(ctx context.Context, src config.SourceConfig) (Result, error) {
	fr, err := s.fetcher.FetchOne(ctx, source.Resource{ID: src.ID, URL: src.URL})
	if err != nil {
		return Result{Source: src.URL}, fmt.Errorf("fetch %s: %w", src.ID, err)
	}
	feed, err := ics.ParseICS(src.URL, fr.Body)
	if err != nil {
		return Result{Source: src.URL}, fmt.Errorf("parse %s: %w", src.ID, err)
	}

	now := s.now()
	exp, err := ics.ExpandOccurrences(feed, ics.ExpandConfig{
		Location:   s.loc,
		RangeStart: now,
		RangeEnd:   now.Add(s.horizon),
	})
	if err != nil {
		return Result{Source: src.URL}, err
	}
	for i := range exp.Events {
		exp.Events[i].Added = now
	}
	return s.merge(ctx, Result{Source: src.URL, Found: exp.Events, Added: []model.Event{}})
}

func (s *Scanner) documentBlocks(body []byte, contentType string) ([]string, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "text/plain" {
		return Chunk(string(body), s.maxLen), nil
	}
	return source.Blocks(bytes.NewReader(body))
}

func (s *Scanner) merge(ctx context.Context, res Result) (Result, error) {
	if len(res.Found) == 0 {
		return res, nil
	}
	added, err := s.store.Merge(ctx, res.Found)
	if err != nil {
		return res, err
	}
	if added != nil {
		res.Added = added
	}
	appLog.Info("events captured", "source", res.Source, "found", len(res.Found), "added", len(res.Added))
	return res, nil
}
