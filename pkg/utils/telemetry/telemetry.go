package telemetry

import (
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// Config holds error reporting configuration
type Config struct {
	DSN         string // empty disables reporting
	Environment string // dev, test, prod
	Release     string
}

// Init configures the global Sentry client. An empty DSN disables
// reporting and every call below becomes a no-op.
func Init(cfg Config) error {
	if cfg.DSN == "" {
		enabled = false
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return err
	}

	enabled = true
	return nil
}

// Enabled reports whether a DSN was configured
func Enabled() bool {
	return enabled
}

// Flush waits for buffered events to be delivered
func Flush(timeout time.Duration) {
	if !enabled {
		return
	}
	sentry.Flush(timeout)
}

// Hub is a per-request reporting scope. The zero value is a no-op,
// so callers never need to check whether reporting is configured.
type Hub struct {
	hub *sentry.Hub
}

// NewHub clones the global hub for one judge request
func NewHub() *Hub {
	if !enabled {
		return &Hub{}
	}
	return &Hub{hub: sentry.CurrentHub().Clone()}
}

// SetUser tags every subsequent capture with the judge request identity
func (h *Hub) SetUser(requestID, submissionID, problemID int64) {
	if h == nil || h.hub == nil {
		return
	}
	h.hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: strconv.FormatInt(requestID, 10)})
		scope.SetTags(map[string]string{
			"submission_id": strconv.FormatInt(submissionID, 10),
			"problem_id":    strconv.FormatInt(problemID, 10),
		})
	})
}

// CaptureException reports err with the task stack attached as extra context
func (h *Hub) CaptureException(err error, taskStack []string) {
	if h == nil || h.hub == nil {
		return
	}
	h.hub.WithScope(func(scope *sentry.Scope) {
		if len(taskStack) > 0 {
			scope.SetExtra("task_stack", taskStack)
		}
		h.hub.CaptureException(err)
	})
}
