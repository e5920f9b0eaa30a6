package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "syllabuscal/internal/log"
)

// maxBodyBytes caps a single page or feed download.
const maxBodyBytes = 5 << 20

// Resource is a single URL to fetch.
type Resource struct {
	// ID is an internal identifier (e.g., config source ID).
	ID  string
	URL string
}

// FetchResult contains the outcome of fetching a single resource.
type FetchResult struct {
	Resource    Resource
	Body        []byte // payload, either freshly fetched or from cache
	ContentType string
	FromCache   bool // true if the cached body was reused (304 or failure fallback)
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches pages and feeds with HTTP caching (ETag / Last-Modified)
// and a disk-backed copy of the last good body.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir, one subdirectory per
// URL.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// WithClient replaces the HTTP client (tests use httptest clients).
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// FetchAll fetches every resource. Failures are logged and collected; the
// results only hold resources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, resources []Resource) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(resources))
	errs := make([]error, 0)

	for _, r := range resources {
		res, err := f.FetchOne(ctx, r)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("fetch failed", err, "id", r.ID, "url", redactURL(r.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne fetches a single resource, honoring ETag and Last-Modified. On a
// network error or non-OK status the cached body is returned if present.
func (f *Fetcher) FetchOne(ctx context.Context, r Resource) (FetchResult, error) {
	if r.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return FetchResult{}, fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}

	cachePath := f.cachePathForURL(r.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)
	cached := FetchResult{Resource: r, Body: cachedBody, ContentType: meta.ContentType, FromCache: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", "syllabuscal/1.0")
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("fetch start", "id", r.ID, "url", redactURL(r.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("fetch network error, using cached body", err, "id", r.ID, "url", redactURL(r.URL))
			return cached, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return FetchResult{}, fmt.Errorf("read body: %w", err)
		}

		newMeta := cacheEntry{
			URL:          r.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			ContentType:  resp.Header.Get("Content-Type"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			appLog.Error("cache save failed", err, "id", r.ID, "url", redactURL(r.URL))
		}

		appLog.Info("fetch success", "id", r.ID, "url", redactURL(r.URL), "bytes", len(body))
		return FetchResult{Resource: r, Body: body, ContentType: newMeta.ContentType}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("fetch not modified; using cache", "id", r.ID, "url", redactURL(r.URL))
		return cached, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("fetch non-OK, using cached body", errors.New(resp.Status), "id", r.ID, "url", redactURL(r.URL))
			return cached, nil
		}
		return FetchResult{}, fmt.Errorf("HTTP %s", resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; LMS feed URLs often carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
