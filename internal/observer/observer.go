// Package observer is the append-only event log: every log write is a new
// key under an ordered table, trace and metrics are read-side scans over
// that same table, and alerting is a side effect evaluated after
// job-failed writes.
package observer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/interfaces"
	"github.com/bobmcallan/aviary/internal/models"
	"github.com/bobmcallan/aviary/internal/storage/badgerkv"
	"github.com/google/uuid"
)

const eventsTable = "events"

// StdoutSink is the default AlertSink: it writes the alert message to
// standard output, one line per alert.
type StdoutSink struct{}

// Alert writes message to standard output.
func (StdoutSink) Alert(message string) {
	fmt.Fprintln(os.Stdout, message)
}

// Observer implements interfaces.Observer over a badgerkv.Store.
type Observer struct {
	store     *badgerkv.Store
	padLen    int
	logger    *common.Logger
	sink      interfaces.AlertSink
	window    int64
	threshold float64
}

// New opens (or reuses, via cache) the database at path and returns an
// Observer backed by it. sink may be nil, in which case StdoutSink is used.
func New(cache *badgerkv.HandleCache, path string, padLen int, defaultWindowMS int64, failureRateThreshold float64, logger *common.Logger, sink interfaces.AlertSink) (*Observer, error) {
	db, err := cache.Open(path)
	if err != nil {
		return nil, fmt.Errorf("observer: open store: %w", err)
	}
	if sink == nil {
		sink = StdoutSink{}
	}
	return &Observer{
		store:     badgerkv.NewStore(db),
		padLen:    padLen,
		logger:    logger,
		sink:      sink,
		window:    defaultWindowMS,
		threshold: failureRateThreshold,
	}, nil
}

// Log allocates and persists an event, then evaluates alerting if action is
// job-failed.
func (o *Observer) Log(ctx context.Context, action, severity string, body map[string]any) (*models.Event, error) {
	now := time.Now().UnixMilli()
	event := &models.Event{
		ID:        uuid.NewString(),
		Timestamp: now,
		Severity:  severity,
		Action:    action,
		Body:      body,
	}

	raw, err := encodeEvent(event)
	if err != nil {
		return nil, fmt.Errorf("observer: encode event: %w", err)
	}
	key := eventKey(now, event.ID, o.padLen)
	if err := o.store.Put(eventsTable, key, raw); err != nil {
		return nil, fmt.Errorf("observer: log %s: %w", action, err)
	}

	if action == models.ActionJobFailed {
		o.evaluateAlert(ctx)
	}
	return event, nil
}

// Trace scans the entire events table and returns every event whose
// body.jobId matches jobID, ordered by timestamp ascending.
func (o *Observer) Trace(ctx context.Context, jobID string) ([]*models.Event, error) {
	entries, err := o.store.ScanFrom(eventsTable, "", 0)
	if err != nil {
		return nil, fmt.Errorf("observer: trace %s: %w", jobID, err)
	}

	var events []*models.Event
	for _, entry := range entries {
		event, err := decodeEvent(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("observer: trace %s: %w", jobID, err)
		}
		if id, ok := event.Body["jobId"].(string); ok && id == jobID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	return events, nil
}

// Metrics computes derived metrics over the trailing windowMS, exploiting
// the events table's ordered keys to bound the scan to [now-windowMS, ∞).
func (o *Observer) Metrics(ctx context.Context, windowMS int64) (*interfaces.Metrics, error) {
	if windowMS <= 0 {
		windowMS = o.window
	}
	events, err := o.windowEvents(windowMS)
	if err != nil {
		return nil, fmt.Errorf("observer: metrics: %w", err)
	}
	return computeMetrics(events), nil
}

// windowEvents returns every event with timestamp >= now-windowMS, in key
// (timestamp) order, via a bounded range scan.
func (o *Observer) windowEvents(windowMS int64) ([]*models.Event, error) {
	start := time.Now().UnixMilli() - windowMS
	if start < 0 {
		start = 0
	}
	entries, err := o.store.ScanFrom(eventsTable, fmt.Sprintf("%0*d", o.padLen, start), 0)
	if err != nil {
		return nil, err
	}
	events := make([]*models.Event, 0, len(entries))
	for _, entry := range entries {
		event, err := decodeEvent(entry.Value)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// evaluateAlert recomputes metrics over the default window and, if the
// failure rate exceeds the configured threshold, emits an alert through the
// sink. Errors reading metrics are logged and swallowed: alerting is a
// best-effort side effect, never a reason to fail the triggering log call.
func (o *Observer) evaluateAlert(ctx context.Context) {
	metrics, err := o.Metrics(ctx, o.window)
	if err != nil {
		o.logger.Warn().Err(err).Msg("observer: failed to evaluate alert metrics")
		return
	}
	if metrics.FailureRate <= o.threshold {
		return
	}
	total := metrics.Completed + metrics.Failed
	message := fmt.Sprintf("ALERT: High failure rate detected: %.1f%% (%d/%d jobs failed)",
		metrics.FailureRate*100, metrics.Failed, total)
	o.sink.Alert(message)
}

// Close is a no-op: the underlying database handle is owned and closed by
// the HandleCache shared across the queue and observer stores.
func (o *Observer) Close() error {
	return nil
}
