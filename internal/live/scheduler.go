package live

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires jobs on a cron spec in a fixed location, so "40 15"
// means 15:40 exchange time regardless of where the process runs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a stopped scheduler in loc. A nil loc means the
// process-local timezone.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{cron: cron.New(cron.WithLocation(loc))}
}

// Schedule registers job under a standard five-field cron spec.
func (s *Scheduler) Schedule(spec string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("live: schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins firing registered jobs in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		log.Printf("[live] next run at %s", e.Next.Format(time.RFC3339))
	}
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
