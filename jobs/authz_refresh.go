package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-authz/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Refresher is the part of the permission registry the refresh job drives.
type Refresher interface {
	FlushCache(ctx context.Context) error
	Register(ctx context.Context) error
}

// Notifier broadcasts a completed flush to other processes.
type Notifier interface {
	Invalidate(ctx context.Context) error
}

// AuthzRefreshJob re-binds permissions on behalf of the scheduler or an operator.
type AuthzRefreshJob struct {
	Registry Refresher
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAuthzRefreshJob wires dependencies for the refresh handler. notifier may be nil.
func NewAuthzRefreshJob(registry Refresher, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuthzRefreshJob {
	return &AuthzRefreshJob{Registry: registry, Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuthzRefresh tasks.
func (j *AuthzRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil {
		return errors.New("authz refresh: handler not configured")
	}
	var payload AuthzRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskAuthzRefresh)
	logger := j.logger().With(slog.Bool("flush", payload.Flush))

	err := j.run(ctx, payload)
	if err != nil {
		logger.Error("authz refresh", slog.Any("error", err))
	} else {
		logger.Info("authz refresh completed")
	}
	return tracker.End(err)
}

func (j *AuthzRefreshJob) run(ctx context.Context, payload AuthzRefreshPayload) error {
	if payload.Flush && j.Notifier != nil {
		return j.Notifier.Invalidate(ctx)
	}
	if payload.Flush {
		if err := j.Registry.FlushCache(ctx); err != nil {
			return err
		}
	}
	return j.Registry.Register(ctx)
}

func (j *AuthzRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AuthzRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
