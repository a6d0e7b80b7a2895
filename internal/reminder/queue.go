package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is one reminder mail waiting to be sent.
type Job struct {
	VisitID     uuid.UUID `json:"visit_id"`
	To          string    `json:"to"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	At          time.Time `json:"at"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

var ErrEmpty = errors.New("reminder queue is empty")

// DecodeError is returned by Pop when a payload was taken off the list but
// could not be read as a Job. The payload is gone from Redis at that point.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode job %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Queue is a FIFO on a Redis list: LPUSH to add, BRPOP to take.
type Queue struct {
	client *redis.Client
	key    string
}

func NewQueue(client *redis.Client, key string) *Queue {
	return &Queue{client: client, key: key}
}

func (q *Queue) Push(ctx context.Context, jobs ...Job) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(jobs))
	for _, job := range jobs {
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		values = append(values, payload)
	}
	if err := q.client.LPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to push jobs: %w", err)
	}
	return nil
}

// Pop waits up to timeout for a job and returns ErrEmpty when none came.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, &DecodeError{Payload: res[1], Err: err}
	}
	return &job, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
