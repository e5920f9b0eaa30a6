package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "syllabuscal/internal/log"
)

// Scheduler re-scans all sources on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	scanner *Scanner
	timeout time.Duration
}

// NewScheduler parses spec (standard 5-field cron) and prepares a
// scheduler. Ticks that arrive while a scan is still running are skipped.
func NewScheduler(spec string, s *Scanner, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	sch := &Scheduler{cron: c, scanner: s, timeout: 10 * time.Minute}

	if _, err := c.AddFunc(spec, sch.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid refresh spec %q: %w", spec, err)
	}
	return sch, nil
}

func (sch *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), sch.timeout)
	defer cancel()

	if _, err := sch.scanner.ScanAll(ctx); err != nil {
		appLog.Error("scheduled scan finished with errors", err)
	}
}

// Start runs the scheduler in the background until ctx is done.
func (sch *Scheduler) Start(ctx context.Context) {
	sch.cron.Start()
	for _, e := range sch.cron.Entries() {
		appLog.Info("scan scheduler started", "next", e.Next.Format(time.RFC3339))
	}
	go func() {
		<-ctx.Done()
		<-sch.cron.Stop().Done()
		appLog.Info("scan scheduler stopped")
	}()
}

// Next reports the next scheduled run.
func (sch *Scheduler) Next() time.Time {
	entries := sch.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
