package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters. LMS pages lay out their schedule tables for
// desktop widths, so the viewport is a laptop screen.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 1024
	DefaultTimeoutSec = 30
	DefaultSelector   = "body"
)

// PageOptions defines a headless-browser text capture.
type PageOptions struct {
	// URL of the page, e.g. a course's syllabus page.
	URL string

	// WaitSelector is a CSS selector that must be ready before the text is
	// read. Empty means DefaultSelector.
	WaitSelector string

	// Settle is an extra delay after WaitSelector for late XHR renders.
	Settle time.Duration

	Width  int
	Height int

	// Timeout bounds the whole capture. Zero means DefaultTimeoutSec.
	Timeout time.Duration
}

// PageText launches (or attaches to) a headless Chromium via chromedp,
// navigates to opts.URL, waits for opts.WaitSelector and returns the
// rendered innerText of the document body. This is how pages that build
// their content in JavaScript (most LMS course pages) are read.
func PageText(parentCtx context.Context, opts PageOptions) (string, error) {
	if opts.URL == "" {
		return "", fmt.Errorf("capture: URL is required")
	}
	if opts.WaitSelector == "" {
		opts.WaitSelector = DefaultSelector
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var text string
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitReady(opts.WaitSelector, chromedp.ByQuery),
	}
	if opts.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(opts.Settle))
	}
	tasks = append(tasks, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))

	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return text, nil
}
