package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

// Scheduler runs a job on a cron expression.
type Scheduler struct {
	expr string
	job  func(ctx context.Context)
	now  func() time.Time
}

// NewScheduler validates expr and returns a scheduler for job.
func NewScheduler(expr string, job func(ctx context.Context)) (*Scheduler, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid backup schedule %q", expr)
	}
	return &Scheduler{expr: expr, job: job, now: time.Now}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// Run blocks, invoking the job on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	logger.InfoCF("backup", "Backup schedule active", map[string]any{"schedule": s.expr})
	for {
		next, err := s.Next(s.now())
		if err != nil {
			logger.ErrorCF("backup", "Cannot compute next backup", map[string]any{"error": err.Error()})
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.job(ctx)
		}
	}
}
