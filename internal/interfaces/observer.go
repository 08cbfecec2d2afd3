package interfaces

import (
	"context"

	"github.com/bobmcallan/aviary/internal/models"
)

// Metrics is the set of derived metrics computed over a time window.
type Metrics struct {
	Submitted           int      `json:"submitted"`
	Completed           int      `json:"completed"`
	Failed              int      `json:"failed"`
	FailureRate         float64  `json:"failureRate"`
	AvgProcessingTimeMS *float64 `json:"avgProcessingTimeMs"`
}

// Observer is the append-only event log with trace and metrics queries.
type Observer interface {
	// Log allocates and persists an event, evaluating alerting when action
	// is ActionJobFailed.
	Log(ctx context.Context, action, severity string, body map[string]any) (*models.Event, error)

	// Trace returns every event referencing jobId, in timestamp order.
	Trace(ctx context.Context, jobID string) ([]*models.Event, error)

	// Metrics computes derived metrics over the trailing windowMs.
	Metrics(ctx context.Context, windowMS int64) (*Metrics, error)

	// Close releases resources the observer holds of its own. The store
	// handle is shared through badgerkv.HandleCache and is closed there.
	Close() error
}

// AlertSink receives alert messages emitted when failure rate crosses the
// configured threshold. The default sink writes to standard output.
type AlertSink interface {
	Alert(message string)
}
