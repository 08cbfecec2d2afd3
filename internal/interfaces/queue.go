// Package interfaces defines service contracts for aviary
package interfaces

import (
	"context"

	"github.com/bobmcallan/aviary/internal/models"
)

// Queue is the durable job store and its ordered claim index.
type Queue interface {
	// Submit creates or resets a job for name, returning isDuplicate=true
	// when an existing non-failed record already covers it.
	Submit(ctx context.Context, name string) (job *models.Job, isDuplicate bool, err error)

	// Claim atomically removes and returns the next eligible job, or nil if
	// none is available yet.
	Claim(ctx context.Context) (*models.Job, error)

	// Complete marks a processing job completed with the given result body.
	Complete(ctx context.Context, id string, body map[string]any) (*models.Job, error)

	// Retry returns a processing job to queued state with an incremented
	// retry count and a new availability time.
	Retry(ctx context.Context, id string, nextAvailableAt int64) (*models.Job, error)

	// Fail marks a processing job permanently failed.
	Fail(ctx context.Context, id string) (*models.Job, error)

	// Get performs a point read by job id.
	Get(ctx context.Context, id string) (*models.Job, error)

	// Close releases resources the queue holds of its own. The store handle
	// is shared through badgerkv.HandleCache and is closed there.
	Close() error
}
