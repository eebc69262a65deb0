package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/schooldesk/schooldesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SessionPurger deletes session records that expired before cutoff.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionPurgeJob removes expired rows from user_sessions. Redis expires
// live sessions on its own; the table only keeps the audit trail.
type SessionPurgeJob struct {
	Store   SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPurgeJob wires dependencies for the purge handler.
func NewSessionPurgeJob(store SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	return &SessionPurgeJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the job clock.
func (j *SessionPurgeJob) WithClock(clock func() time.Time) *SessionPurgeJob {
	if clock != nil {
		j.clock = clock
	}
	return j
}

// Handle processes TaskSessionsPurge tasks.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("session purge: handler not configured")
	}
	var payload SessionsPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.GraceHours < 0 {
		payload.GraceHours = 0
	}

	tracker := j.metrics().Track(TaskSessionsPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.clock().Add(-time.Duration(payload.GraceHours) * time.Hour)
	removed, err := j.Store.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		j.logger().Error("purge sessions", slog.Any("error", err))
		return err
	}
	j.metrics().AddSessionsPurged(removed)
	j.logger().Info("purged expired sessions", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}

func (j *SessionPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
