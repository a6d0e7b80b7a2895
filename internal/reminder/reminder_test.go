package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

var tehran = time.FixedZone("IRST", 3*3600+30*60)

func newQueue(t *testing.T) *Queue {
	q, _ := newQueueWithServer(t)
	return q
}

func newQueueWithServer(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, "test:reminders"), mr
}

type flakyMail struct {
	mu       sync.Mutex
	failures int
	sent     []string
}

func (m *flakyMail) SendPasswordReset(ctx context.Context, to, link string) error { return nil }
func (m *flakyMail) SendVerification(ctx context.Context, to, link string) error  { return nil }
func (m *flakyMail) SendWelcome(ctx context.Context, to, name string) error       { return nil }

func (m *flakyMail) SendReminder(ctx context.Context, to, name, doctor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp: 421 try again later")
	}
	m.sent = append(m.sent, to)
	return nil
}

func testConfig() Config {
	return Config{Concurrency: 2, Attempts: 5, Backoff: time.Millisecond, PopTimeout: 50 * time.Millisecond}
}

func TestQueueIsFIFO(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	first, second := Job{VisitID: uuid.New(), To: "a@example.com"}, Job{VisitID: uuid.New(), To: "b@example.com"}
	require.NoError(t, q.Push(ctx, first, second))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.VisitID, got.VisitID)

	got, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.VisitID, got.VisitID)
}

func TestEnqueueTomorrow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := newQueue(t)
	m := metrics.New(prometheus.NewRegistry())
	clk := clock.NewManaged(time.Date(2025, 1, 6, 7, 0, 0, 0, tehran))

	name, doctorName, mail := "Sara Ahmadi", "Reza Karimi", "sara@example.com"
	patient := &model.Account{Base: model.Base{ID: uuid.New()}, Name: &name, Email: &mail, Role: model.RolePatient, Active: true}
	noEmail := &model.Account{Base: model.Base{ID: uuid.New()}, Name: &name, Role: model.RolePatient, Active: true}
	doctor := &model.Account{Base: model.Base{ID: uuid.New()}, Name: &doctorName, Role: model.RoleDoctor, Active: true}
	for _, a := range []*model.Account{patient, noEmail, doctor} {
		require.NoError(t, store.Accounts().Create(ctx, a))
	}

	visit := func(p *model.Account, at time.Time) {
		require.NoError(t, store.Visits().Create(ctx, &model.Visit{
			Base: model.Base{ID: uuid.New()}, PatientID: p.ID, DoctorID: doctor.ID, DateTime: at,
		}))
	}
	visit(patient, time.Date(2025, 1, 7, 9, 0, 0, 0, tehran))
	visit(noEmail, time.Date(2025, 1, 7, 9, 15, 0, 0, tehran))
	visit(patient, time.Date(2025, 1, 6, 11, 0, 0, 0, tehran))
	visit(patient, time.Date(2025, 1, 8, 0, 0, 0, 0, tehran))

	s := NewScheduler(store.Visits(), q, schedule.NewCalculator(15, tehran), clk, m)
	n, err := s.EnqueueTomorrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemindersEnqueued))

	job, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, mail, job.To)
	assert.Equal(t, "Reza Karimi", job.DoctorName)
	assert.True(t, job.At.Equal(time.Date(2025, 1, 7, 9, 0, 0, 0, tehran)))
}

func TestProcessRetriesUntilDelivered(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := metrics.New(prometheus.NewRegistry())
	mail := &flakyMail{failures: 2}
	w := NewWorker(newQueue(t), mail, zap.New(core), m, testConfig())

	w.Process(context.Background(), &Job{VisitID: uuid.New(), To: "sara@example.com"})

	assert.Equal(t, []string{"sara@example.com"}, mail.sent)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReminderRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemindersSent))
	assert.Zero(t, logs.Len())
}

func TestProcessLogsPermanentFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := metrics.New(prometheus.NewRegistry())
	mail := &flakyMail{failures: 100}
	w := NewWorker(newQueue(t), mail, zap.New(core), m, testConfig())

	job := &Job{VisitID: uuid.New(), To: "sara@example.com"}
	w.Process(context.Background(), job)

	assert.Empty(t, mail.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemindersFailed))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, job.VisitID.String(), entry.ContextMap()["visit_id"])
	assert.EqualValues(t, 5, entry.ContextMap()["attempts"])
}

type panicMail struct{ flakyMail }

func (p *panicMail) SendReminder(ctx context.Context, to, name, doctor string, at time.Time) error {
	panic("template missing")
}

func TestProcessSurvivesPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := NewWorker(newQueue(t), &panicMail{}, zap.New(core), metrics.New(prometheus.NewRegistry()), testConfig())

	assert.NotPanics(t, func() {
		w.Process(context.Background(), &Job{VisitID: uuid.New(), To: "sara@example.com"})
	})
	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, 1, logs.All()[0].ContextMap()["attempts"])
}

func TestRunDrainsQueue(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := []Job{
		{VisitID: uuid.New(), To: "a@example.com"},
		{VisitID: uuid.New(), To: "b@example.com"},
		{VisitID: uuid.New(), To: "c@example.com"},
	}
	require.NoError(t, q.Push(ctx, jobs...))

	mail := &flakyMail{}
	m := metrics.New(prometheus.NewRegistry())
	w := NewWorker(q, mail, zap.NewNop(), m, testConfig())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RemindersSent) == 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, mail.sent)
}

func TestUndecodableJobGoesToFailedLog(t *testing.T) {
	q, mr := newQueueWithServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := mr.Lpush("test:reminders", "{not json")
	require.NoError(t, err)
	good := Job{VisitID: uuid.New(), To: "a@example.com"}
	require.NoError(t, q.Push(ctx, good))

	_, err = q.Pop(ctx, time.Second)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "{not json", decodeErr.Payload)

	_, err = mr.Lpush("test:reminders", "{not json")
	require.NoError(t, err)

	core, logs := observer.New(zapcore.ErrorLevel)
	m := metrics.New(prometheus.NewRegistry())
	mail := &flakyMail{}
	w := NewWorker(q, mail, zap.New(core), m, testConfig())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RemindersSent) == 1 && testutil.ToFloat64(m.RemindersFailed) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "reminder undecodable", entry.Message)
	assert.Equal(t, "{not json", entry.ContextMap()["payload"])
	assert.Equal(t, []string{"a@example.com"}, mail.sent)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("REMINDER_ATTEMPTS", "3")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0 7 * * *", cfg.Schedule)
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, time.Second, cfg.Backoff)
	assert.Equal(t, "failed-jobs.log", cfg.FailedLog)

	t.Setenv("REMINDER_CONCURRENCY", "0")
	_, err = LoadConfig()
	assert.Error(t, err)
}
