// Package poller drives a remote asynchronous job to a terminal state by
// reading its status on a fixed interval.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const DefaultInterval = 5 * time.Second

// Snapshot is one decoded status reply of a remote job
type Snapshot interface {
	RawJSON() json.RawMessage
	JobStatus() string
}

// Job describes how to observe one remote job
type Job[T Snapshot] struct {
	ID        string
	Query     func(ctx context.Context) (T, error)
	IsSuccess func(T) bool
	IsFailure func(T) bool
}

// Config bounds a polling loop. MaxAttempts <= 0 polls until the job is
// terminal or ctx is done. OnAttempt, when set, is called after every
// successful status read.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Now         func() time.Time
	OnAttempt   func(attempt int, status string)
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// transient is implemented by query errors that should be retried
type transient interface {
	Transient() bool
}

func isTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}

// undecodable is implemented by query errors that carry a reply the
// service did send
type undecodable interface {
	RawBody() []byte
}

// recordedBody returns the reply behind err as JSON. Bodies that are not
// JSON are kept as a JSON string.
func recordedBody(err error) (json.RawMessage, bool) {
	var u undecodable
	if !errors.As(err, &u) || len(u.RawBody()) == 0 {
		return nil, false
	}
	body := u.RawBody()
	if json.Valid(body) {
		return json.RawMessage(body), true
	}
	quoted, _ := json.Marshal(string(body))
	return quoted, true
}

// Poll queries the job until IsSuccess or IsFailure holds, the attempt
// budget is spent or ctx is done. Every successful read is appended to the
// returned history, including the terminal one. Transient query errors use
// up an attempt without adding a record. A reply that cannot be decoded is
// still recorded before the loop aborts.
//
// The history is returned on every path so callers can persist it.
func Poll[T Snapshot](ctx context.Context, job Job[T], cfg Config) (T, *History, error) {
	cfg = cfg.withDefaults()
	history := NewHistory()
	logger := zerolog.Ctx(ctx).With().Str("job_id", job.ID).Logger()

	var zero T
	var lastStatus string

	bounded := cfg.MaxAttempts > 0
	for attempt := 1; !bounded || attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(cfg.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, history, ctx.Err()
			case <-timer.C:
			}
		}

		snapshot, err := job.Query(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, history, ctxErr
			}
			if isTransient(err) {
				logger.Warn().Err(err).Int("attempt", attempt).Msg("transient status query failure")
				continue
			}
			if body, ok := recordedBody(err); ok {
				history.Append(cfg.Now(), body)
			}
			return zero, history, &QueryError{JobID: job.ID, Attempt: attempt, Err: err}
		}

		history.Append(cfg.Now(), snapshot.RawJSON())
		lastStatus = snapshot.JobStatus()
		logger.Debug().Int("attempt", attempt).Str("status", lastStatus).Msg("polled job status")

		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, lastStatus)
		}

		if job.IsSuccess(snapshot) {
			return snapshot, history, nil
		}
		if job.IsFailure(snapshot) {
			return snapshot, history, &JobFailedError{
				JobID:    job.ID,
				Status:   lastStatus,
				Snapshot: snapshot.RawJSON(),
				Attempts: attempt,
			}
		}
	}

	return zero, history, &PollTimeoutError{JobID: job.ID, Attempts: cfg.MaxAttempts, LastStatus: lastStatus}
}
