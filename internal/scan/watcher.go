package scan

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "syllabuscal/internal/log"
	"syllabuscal/internal/source"
)

const (
	defaultDebounce = 500 * time.Millisecond
	maxFileBytes    = 5 << 20
)

// Watcher captures .txt and .html files written into a drop directory,
// e.g. syllabi saved from a browser or exported from a PDF reader.
type Watcher struct {
	watcher  *fsnotify.Watcher
	scanner  *Scanner
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	// OnCapture, if set, is called after every file capture (tests).
	OnCapture func(path string, res Result, err error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches dir, creating it if needed.
func NewWatcher(dir string, s *Scanner) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		watcher:  fw,
		scanner:  s,
		dir:      dir,
		debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start processes filesystem events in the background until ctx is done
// or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !watchedFile(ev.Name) {
					continue
				}
				w.schedule(ctx, ev.Name)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				appLog.Error("watcher error", err, "dir", w.dir)
			case <-ctx.Done():
				return
			}
		}
	}()
	appLog.Info("watching drop directory", "dir", w.dir)
}

// schedule debounces bursts of writes to the same file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		res, err := w.scanner.CaptureFile(ctx, path)
		if err != nil {
			appLog.Error("file capture failed", err, "path", path)
		}
		if w.OnCapture != nil {
			w.OnCapture(path, res, err)
		}
	})
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()
	return err
}

func watchedFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".html", ".htm":
		return true
	}
	return false
}

// CaptureFile captures a .txt or .html file. The source recorded on the
// events is the file:// URL of path.
func (s *Scanner) CaptureFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{Source: path}, err
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	src := "file://" + filepath.ToSlash(abs)

	var blocks []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		blocks, err = source.Blocks(f)
		if err != nil {
			return Result{Source: src}, err
		}
	default:
		data, err := io.ReadAll(io.LimitReader(f, maxFileBytes))
		if err != nil {
			return Result{Source: src}, err
		}
		blocks = Chunk(string(data), s.maxLen)
	}
	return s.CaptureBlocks(ctx, blocks, src)
}
