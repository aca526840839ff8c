package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzRefresh re-registers permissions, optionally flushing the cache first.
	TaskAuthzRefresh = "authz:refresh"
)

// AuthzRefreshPayload describes an authorization refresh request.
type AuthzRefreshPayload struct {
	Flush bool `json:"flush"`
}

// NewAuthzRefreshTask constructs an Asynq task.
func NewAuthzRefreshTask(flush bool) (*asynq.Task, error) {
	data, err := json.Marshal(AuthzRefreshPayload{Flush: flush})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzRefresh, data), nil
}
