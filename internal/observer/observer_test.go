package observer

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/models"
	"github.com/bobmcallan/aviary/internal/storage/badgerkv"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	messages []string
}

func (s *recordingSink) Alert(message string) {
	s.messages = append(s.messages, message)
}

func newTestObserver(t *testing.T, threshold float64, sink *recordingSink) *Observer {
	t.Helper()
	cache := badgerkv.NewHandleCache(common.NewSilentLogger())
	t.Cleanup(func() { _ = cache.Close() })
	o, err := New(cache, t.TempDir(), 13, time.Hour.Milliseconds()*3, threshold, common.NewSilentLogger(), sink)
	require.NoError(t, err)
	return o
}

func TestObserver_LogPersistsEvent(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	event, err := o.Log(ctx, models.ActionJobSubmitted, models.SeverityLog, map[string]any{"jobId": "brown-pelican"})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Equal(t, models.ActionJobSubmitted, event.Action)
}

// P10 Trace completeness.
func TestObserver_TraceReturnsOrderedEventsForJob(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobSubmitted, models.SeverityLog, map[string]any{"jobId": "kestrel"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = o.Log(ctx, models.ActionJobClaimed, models.SeverityLog, map[string]any{"jobId": "kestrel"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = o.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{"jobId": "kestrel"})
	require.NoError(t, err)

	// Unrelated job, should not appear in the trace.
	_, err = o.Log(ctx, models.ActionJobSubmitted, models.SeverityLog, map[string]any{"jobId": "osprey"})
	require.NoError(t, err)

	trace, err := o.Trace(ctx, "kestrel")
	require.NoError(t, err)
	require.Len(t, trace, 3)
	require.Equal(t, models.ActionJobSubmitted, trace[0].Action)
	require.Equal(t, models.ActionJobClaimed, trace[1].Action)
	require.Equal(t, models.ActionJobCompleted, trace[2].Action)
}

// P11 Metrics consistency.
func TestObserver_MetricsFailureRate(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)
	_, err = o.Log(ctx, models.ActionJobFailed, models.SeverityError, map[string]any{"jobId": "b"})
	require.NoError(t, err)

	metrics, err := o.Metrics(ctx, time.Hour.Milliseconds())
	require.NoError(t, err)
	require.Equal(t, 1, metrics.Completed)
	require.Equal(t, 1, metrics.Failed)
	require.InDelta(t, 0.5, metrics.FailureRate, 0.0001)
}

func TestObserver_MetricsFailureRateZeroWhenNoCompletionsOrFailures(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobSubmitted, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)

	metrics, err := o.Metrics(ctx, time.Hour.Milliseconds())
	require.NoError(t, err)
	require.Equal(t, 0.0, metrics.FailureRate)
}

func TestObserver_MetricsAvgProcessingTime(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobClaimed, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = o.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)

	metrics, err := o.Metrics(ctx, time.Hour.Milliseconds())
	require.NoError(t, err)
	require.NotNil(t, metrics.AvgProcessingTimeMS)
	require.GreaterOrEqual(t, *metrics.AvgProcessingTimeMS, float64(0))
}

func TestObserver_MetricsAvgProcessingTimeNilWithoutPairs(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)

	metrics, err := o.Metrics(ctx, time.Hour.Milliseconds())
	require.NoError(t, err)
	require.Nil(t, metrics.AvgProcessingTimeMS)
}

func TestObserver_MetricsExcludesEventsOutsideWindow(t *testing.T) {
	o := newTestObserver(t, 1.0, &recordingSink{})
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour).UnixMilli()
	err := o.store.Put(eventsTable, eventKey(stale, "old-id", o.padLen),
		mustEncode(t, &models.Event{ID: "old-id", Timestamp: stale, Severity: models.SeverityLog, Action: models.ActionJobFailed, Body: map[string]any{"jobId": "old"}}))
	require.NoError(t, err)

	metrics, err := o.Metrics(ctx, time.Minute.Milliseconds())
	require.NoError(t, err)
	require.Equal(t, 0, metrics.Failed)
}

// End-to-end scenario 6: Alert.
func TestObserver_AlertFiresOnHighFailureRate(t *testing.T) {
	sink := &recordingSink{}
	o := newTestObserver(t, 0.5, sink)
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)
	_, err = o.Log(ctx, models.ActionJobFailed, models.SeverityError, map[string]any{"jobId": "b"})
	require.NoError(t, err)
	require.Empty(t, sink.messages)

	_, err = o.Log(ctx, models.ActionJobFailed, models.SeverityError, map[string]any{"jobId": "c"})
	require.NoError(t, err)

	require.Len(t, sink.messages, 1)
	require.Equal(t, "ALERT: High failure rate detected: 66.7% (2/3 jobs failed)", sink.messages[0])
}

func TestObserver_AlertDoesNotFireBelowThreshold(t *testing.T) {
	sink := &recordingSink{}
	o := newTestObserver(t, 0.9, sink)
	ctx := context.Background()

	_, err := o.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{"jobId": "a"})
	require.NoError(t, err)
	_, err = o.Log(ctx, models.ActionJobFailed, models.SeverityError, map[string]any{"jobId": "b"})
	require.NoError(t, err)

	require.Empty(t, sink.messages)
}

func mustEncode(t *testing.T, event *models.Event) []byte {
	t.Helper()
	raw, err := encodeEvent(event)
	require.NoError(t, err)
	return raw
}
