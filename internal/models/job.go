// Package models defines the domain types shared across the queue, worker,
// observer, and admission surface.
package models

import (
	"regexp"
	"strings"
)

// Job statuses, per the lifecycle in internal/queue.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CanonicalID derives a job's deduplication key from a request name:
// leading and trailing whitespace trimmed, lowercased, and each remaining run
// of whitespace collapsed to a single hyphen.
func CanonicalID(name string) string {
	trimmed := strings.TrimSpace(name)
	lowered := strings.ToLower(trimmed)
	return whitespaceRun.ReplaceAllString(lowered, "-")
}

// Job is a unit of research work identified by its canonical id.
type Job struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	CreatedAt   int64          `json:"createdAt"`
	AvailableAt int64          `json:"availableAt"`
	RetryCount  int            `json:"retryCount"`
	Status      string         `json:"status"`
	Body        map[string]any `json:"body,omitempty"`
}
