package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Worker drains the queue and sends reminder mails.
type Worker struct {
	queue   *Queue
	mail    email.Service
	failed  *zap.Logger
	metrics *metrics.Metrics
	config  Config
}

func NewWorker(queue *Queue, mail email.Service, failed *zap.Logger, m *metrics.Metrics, cfg Config) *Worker {
	return &Worker{queue: queue, mail: mail, failed: failed, metrics: m, config: cfg}
}

// NewFailedJobLogger writes one JSON line per permanently failed job to path.
func NewFailedJobLogger(path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Run blocks until ctx is cancelled, with Concurrency goroutines popping jobs.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.config.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	logger := log.With().Int("worker", id).Logger()
	logger.Info().Msg("Reminder worker started")
	for {
		if ctx.Err() != nil {
			logger.Info().Msg("Reminder worker stopped")
			return
		}
		job, err := w.queue.Pop(ctx, w.config.PopTimeout)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			w.discard(decodeErr)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("Failed to read reminder queue")
				time.Sleep(w.config.Backoff)
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process delivers one job with exponential retries. A job that still fails
// is written to the failed-jobs log; it never takes the worker down.
func (w *Worker) Process(ctx context.Context, job *Job) {
	timer := prometheus.NewTimer(w.metrics.ReminderLatency)
	defer timer.ObserveDuration()

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return w.send(ctx, job)
	}, w.policy(ctx), func(err error, next time.Duration) {
		w.metrics.ReminderRetries.Inc()
		log.Warn().Err(err).Str("visit_id", job.VisitID.String()).Dur("retry_in", next).Msg("Reminder delivery failed")
	})

	if err != nil {
		w.metrics.RemindersFailed.Inc()
		w.failed.Error("reminder failed",
			zap.String("visit_id", job.VisitID.String()),
			zap.String("to", job.To),
			zap.Time("at", job.At),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	w.metrics.RemindersSent.Inc()
}

// discard records a payload that can never be delivered.
func (w *Worker) discard(err *DecodeError) {
	w.metrics.RemindersFailed.Inc()
	w.failed.Error("reminder undecodable",
		zap.String("payload", err.Payload),
		zap.Error(err.Err),
	)
}

func (w *Worker) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.config.Backoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(w.config.Attempts-1)), ctx)
}

func (w *Worker) send(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("panic sending reminder: %v", r))
		}
	}()
	return w.mail.SendReminder(ctx, job.To, job.PatientName, job.DoctorName, job.At)
}
