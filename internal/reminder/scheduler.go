package reminder

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Scheduler enqueues a reminder for every open visit of the next clinic day.
type Scheduler struct {
	visits  repository.VisitRepository
	queue   *Queue
	calc    *schedule.Calculator
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewScheduler(visits repository.VisitRepository, queue *Queue, calc *schedule.Calculator,
	clk clock.Clock, m *metrics.Metrics) *Scheduler {
	return &Scheduler{visits: visits, queue: queue, calc: calc, clock: clk, metrics: m}
}

// EnqueueTomorrow returns how many jobs were queued. Visits whose patient
// has no email are skipped.
func (s *Scheduler) EnqueueTomorrow(ctx context.Context) (int, error) {
	now := s.clock.Now()
	from, to := s.calc.DayBounds(now.In(s.calc.Location()).AddDate(0, 0, 1))

	reminders, err := s.visits.ListReminders(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to list visits to remind: %w", err)
	}

	jobs := make([]Job, 0, len(reminders))
	for _, r := range reminders {
		if r.PatientEmail == nil || *r.PatientEmail == "" {
			log.Ctx(ctx).Debug().Str("visit_id", r.VisitID.String()).Msg("Skipping reminder without email")
			continue
		}
		job := Job{VisitID: r.VisitID, To: *r.PatientEmail, At: r.DateTime.In(s.calc.Location()), EnqueuedAt: now}
		if r.PatientName != nil {
			job.PatientName = *r.PatientName
		}
		if r.DoctorName != nil {
			job.DoctorName = *r.DoctorName
		}
		jobs = append(jobs, job)
	}

	if err := s.queue.Push(ctx, jobs...); err != nil {
		return 0, err
	}
	s.metrics.RemindersEnqueued.Add(float64(len(jobs)))
	return len(jobs), nil
}

// Start runs EnqueueTomorrow on spec in the clinic zone until ctx ends.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(s.calc.Location()))
	_, err := c.AddFunc(spec, func() {
		n, err := s.EnqueueTomorrow(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to enqueue reminders")
			return
		}
		log.Info().Int("jobs", n).Msg("Reminders enqueued")
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
