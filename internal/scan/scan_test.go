package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"syllabuscal/internal/capture"
	"syllabuscal/internal/config"
	"syllabuscal/internal/source"
	"syllabuscal/internal/store"
)

// wednesday, 10 January 2024
var fixedNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

const copiedText = "Quiz 3 due February 15, 2024 at 3:00 PM\nMidterm Exam: March 1, 2025"

type fakeFetcher map[string]source.FetchResult

func (f fakeFetcher) FetchOne(_ context.Context, r source.Resource) (source.FetchResult, error) {
	res, ok := f[r.URL]
	if !ok {
		return source.FetchResult{}, errors.New("HTTP 404 Not Found")
	}
	res.Resource = r
	return res, nil
}

func newTestScanner(t *testing.T, sources []config.SourceConfig, opts ...Option) (*Scanner, *store.Store) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = t.TempDir()
	cfg.Sources = sources
	cfg.Normalize()

	base := []Option{WithNow(func() time.Time { return fixedNow })}
	s, err := New(cfg, st, append(base, opts...)...)
	require.NoError(t, err)
	return s, st
}

func TestCaptureTextMergesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScanner(t, nil)

	res, err := s.CaptureText(ctx, copiedText, "https://example.edu/cs101")
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Len(t, res.Found, 2)
	require.Len(t, res.Added, 2)

	quiz := res.Found[0]
	require.Equal(t, "Quiz 3 due", quiz.Title)
	require.True(t, quiz.Date.Equal(time.Date(2024, time.February, 15, 15, 0, 0, 0, time.UTC)))
	require.Equal(t, "quiz", quiz.Type)
	require.Equal(t, "https://example.edu/cs101", quiz.Source)
	require.Equal(t, "Quiz 3 due February 15, 2024 at 3:00 PM", quiz.Context)
	require.True(t, quiz.AutoCaptured)
	require.Equal(t, fixedNow, quiz.Added)
	require.Greater(t, quiz.Confidence, 0.0)

	require.Equal(t, "Midterm Exam", res.Found[1].Title)
	require.Equal(t, "exam", res.Found[1].Type)

	again, err := s.CaptureText(ctx, copiedText, "https://example.edu/cs101/copy")
	require.NoError(t, err)
	require.Len(t, again.Found, 2)
	require.Empty(t, again.Added)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCaptureTextSkipsNonSyllabusText(t *testing.T) {
	ctx := context.Background()
	s, st := newTestScanner(t, nil)

	res, err := s.CaptureText(ctx, "Lunch with Sam at noon tomorrow, bring snacks", "clipboard")
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.NotNil(t, res.Found)
	require.Empty(t, res.Found)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExtractDoesNotStore(t *testing.T) {
	s, st := newTestScanner(t, nil)

	events := s.Extract("Lab report due 2024-03-30", "api")
	require.Len(t, events, 1)
	require.Equal(t, "Lab report due", events[0].Title)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestScanSourceKinds(t *testing.T) {
	feed := []byte(strings.ReplaceAll(lmsFeed, "\n", "\r\n"))

	fetcher := fakeFetcher{
		"https://example.edu/syllabus": {
			Body:        []byte(`<html><body><nav>Quiz due Jan 1</nav><p>Homework 2 due Feb 20</p><p>Reading: chapter 3</p></body></html>`),
			ContentType: "text/html; charset=utf-8",
		},
		"https://example.edu/notes.txt": {
			Body:        []byte("Week 1\n\nProject proposal due 2/1/2024\n"),
			ContentType: "text/plain",
		},
		"https://lms.example.edu/feed.ics": {Body: feed},
	}
	renderer := func(_ context.Context, opts capture.PageOptions) (string, error) {
		require.Equal(t, "https://lms.example.edu/course/101", opts.URL)
		return "Course schedule\n\nMidterm Exam: March 1, 2025\n\nOffice hours Tuesdays", nil
	}

	s, _ := newTestScanner(t, nil, WithFetcher(fetcher), WithRenderer(renderer))
	ctx := context.Background()

	res, err := s.ScanSource(ctx, config.SourceConfig{ID: "page", URL: "https://example.edu/syllabus", Kind: config.KindPage})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	require.Equal(t, "Homework 2 due", res.Added[0].Title)
	require.True(t, res.Added[0].Date.Equal(time.Date(2024, time.February, 20, 23, 59, 0, 0, time.UTC)))

	res, err = s.ScanSource(ctx, config.SourceConfig{ID: "txt", URL: "https://example.edu/notes.txt", Kind: config.KindPage})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	require.Equal(t, "Project proposal due", res.Added[0].Title)

	res, err = s.ScanSource(ctx, config.SourceConfig{ID: "lms", URL: "https://lms.example.edu/course/101", Kind: config.KindRendered})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	require.Equal(t, "Midterm Exam", res.Added[0].Title)

	res, err = s.ImportFeed(ctx, "https://lms.example.edu/feed.ics")
	require.NoError(t, err)
	require.Len(t, res.Added, 4)
	for _, ev := range res.Added {
		require.Equal(t, 1.0, ev.Confidence)
		require.Equal(t, fixedNow, ev.Added)
	}
}

func TestScanAllContinuesPastFailures(t *testing.T) {
	fetcher := fakeFetcher{
		"https://example.edu/syllabus": {
			Body:        []byte(`<p>Essay 1 due March 4th</p>`),
			ContentType: "text/html",
		},
	}
	sources := []config.SourceConfig{
		{ID: "missing", URL: "https://example.edu/gone", Kind: config.KindPage},
		{ID: "ok", URL: "https://example.edu/syllabus", Kind: config.KindPage},
	}
	s, st := newTestScanner(t, sources, WithFetcher(fetcher))

	sum, err := s.ScanAll(context.Background())
	require.Error(t, err)
	require.Equal(t, Summary{Sources: 2, Failed: 1, Found: 1, Added: 1}, sum)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestChunk(t *testing.T) {
	require.Equal(t, []string{"Week 1", "Quiz 1 due Jan 20\nQuiz 2 due Jan 27"},
		Chunk("Week 1\n\n\nQuiz 1 due Jan 20\nQuiz 2 due Jan 27\n", 100))

	long := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30) + "\n" + strings.Repeat("c", 30)
	require.Equal(t, []string{
		strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30),
		strings.Repeat("c", 30),
	}, Chunk(long, 70))

	require.Empty(t, Chunk("   \n\n ", 100))
}

func TestCaptureFileAndWatcher(t *testing.T) {
	s, _ := newTestScanner(t, nil)
	ctx := context.Background()

	dir := t.TempDir()
	txt := filepath.Join(dir, "week2.txt")
	require.NoError(t, os.WriteFile(txt, []byte("Problem set 2 due Jan 24th\n"), 0o600))

	res, err := s.CaptureFile(ctx, txt)
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	require.True(t, strings.HasPrefix(res.Source, "file://"))

	drop := filepath.Join(dir, "drop")
	w, err := NewWatcher(drop, s)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	type captured struct {
		res Result
		err error
	}
	done := make(chan captured, 1)
	w.OnCapture = func(_ string, res Result, err error) {
		select {
		case done <- captured{res, err}:
		default:
		}
	}
	w.Start(ctx)
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(drop, "ignored.pdf"), []byte("%PDF"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(drop, "cs101.html"),
		[]byte(`<ul><li>Lab 3 report due Feb 2nd</li></ul>`), 0o600))

	select {
	case c := <-done:
		require.NoError(t, c.err)
		require.Len(t, c.res.Added, 1)
		require.Equal(t, "Lab 3 report due", c.res.Added[0].Title)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not capture the dropped file")
	}
}

func TestScheduler(t *testing.T) {
	s, _ := newTestScanner(t, nil)

	_, err := NewScheduler("every now and then", s, time.UTC)
	require.Error(t, err)

	sch, err := NewScheduler("*/30 * * * *", s, time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sch.Start(ctx)
	require.False(t, sch.Next().IsZero())
	require.Zero(t, sch.Next().Minute()%30)
}

const lmsFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example LMS//EN
BEGIN:VEVENT
UID:quiz-weekly
DTSTAMP:20240101T000000Z
DTSTART:20240115T170000Z
DTEND:20240115T173000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20240122T170000Z
SUMMARY:Weekly Quiz
END:VEVENT
BEGIN:VEVENT
UID:quiz-weekly
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240129T170000Z
DTSTART:20240130T170000Z
DTEND:20240130T173000Z
SUMMARY:Weekly Quiz (moved)
END:VEVENT
BEGIN:VEVENT
UID:essay-1
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240220
DTEND;VALUE=DATE:20240221
SUMMARY:Essay 1 due
CATEGORIES:Assignment
END:VEVENT
END:VCALENDAR
`
