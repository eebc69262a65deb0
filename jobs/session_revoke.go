package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/schooldesk/schooldesk/internal/jobs"
)

// SessionRevoker ends every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID int64) (int, error)
}

// RevokeUserJob retries a revocation that failed inline, typically after a
// role change while Redis was unavailable.
type RevokeUserJob struct {
	Sessions SessionRevoker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewRevokeUserJob wires dependencies for the revocation handler.
func NewRevokeUserJob(sessions SessionRevoker, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevokeUserJob {
	return &RevokeUserJob{Sessions: sessions, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRevokeUserSessions tasks.
func (j *RevokeUserJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sessions == nil {
		return errors.New("revoke sessions: handler not configured")
	}
	var payload RevokeUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID <= 0 {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskRevokeUserSessions)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	revoked, err := j.Sessions.RevokeUser(ctx, payload.UserID)
	if err != nil {
		logger.Warn("revoke user sessions", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		return err
	}
	logger.Info("revoked user sessions", slog.Int64("user_id", payload.UserID), slog.Int("sessions", revoked))
	return nil
}
