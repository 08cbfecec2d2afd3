package observer

import (
	"github.com/bobmcallan/aviary/internal/interfaces"
	"github.com/bobmcallan/aviary/internal/models"
)

// computeMetrics derives submitted/completed/failed counts, failure rate,
// and average processing time from a window of events.
func computeMetrics(events []*models.Event) *interfaces.Metrics {
	metrics := &interfaces.Metrics{}
	claimedAt := map[string]int64{}

	for _, event := range events {
		jobID, _ := event.Body["jobId"].(string)
		switch event.Action {
		case models.ActionJobSubmitted:
			metrics.Submitted++
		case models.ActionJobCompleted:
			metrics.Completed++
		case models.ActionJobFailed:
			metrics.Failed++
		case models.ActionJobClaimed:
			if jobID != "" {
				claimedAt[jobID] = event.Timestamp
			}
		}
	}

	completedDen := metrics.Completed + metrics.Failed
	if completedDen > 0 {
		metrics.FailureRate = float64(metrics.Failed) / float64(completedDen)
	}

	var total, pairs int64
	for _, event := range events {
		if event.Action != models.ActionJobCompleted {
			continue
		}
		jobID, _ := event.Body["jobId"].(string)
		claimTime, ok := claimedAt[jobID]
		if !ok {
			continue
		}
		total += event.Timestamp - claimTime
		pairs++
	}
	if pairs > 0 {
		avg := float64(total) / float64(pairs)
		metrics.AvgProcessingTimeMS = &avg
	}

	return metrics
}
