package interfaces

import (
	"context"

	"github.com/bobmcallan/aviary/internal/models"
)

// Processor is the external collaborator a worker invokes to research a job.
// It returns a result body on success or an error on failure; the worker
// treats any error as retry-or-fail, never inspecting its type.
type Processor interface {
	Process(ctx context.Context, job *models.Job) (map[string]any, error)
}
