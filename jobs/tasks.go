package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge deletes expired session audit records.
	TaskSessionsPurge = "auth:sessions:purge"
	// TaskRevokeUserSessions ends every live session of one user.
	TaskRevokeUserSessions = "auth:sessions:revoke_user"
)

// SessionsPurgePayload configures a purge run. Grace keeps recently expired
// records around for support lookups.
type SessionsPurgePayload struct {
	GraceHours int `json:"grace_hours"`
}

// RevokeUserPayload names the user whose sessions are revoked.
type RevokeUserPayload struct {
	UserID int64 `json:"user_id"`
}

// NewSessionsPurgeTask constructs the purge task.
func NewSessionsPurgeTask(payload SessionsPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, data), nil
}

// NewRevokeUserTask constructs a revocation task.
func NewRevokeUserTask(userID int64) (*asynq.Task, error) {
	data, err := json.Marshal(RevokeUserPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRevokeUserSessions, data, asynq.MaxRetry(10)), nil
}
