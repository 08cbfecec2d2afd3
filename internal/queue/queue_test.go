package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/models"
	"github.com/bobmcallan/aviary/internal/storage/badgerkv"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	cache := badgerkv.NewHandleCache(common.NewSilentLogger())
	t.Cleanup(func() { _ = cache.Close() })
	q, err := New(cache, t.TempDir(), 13, common.NewSilentLogger(), nil)
	require.NoError(t, err)
	return q
}

func TestQueue_SubmitCreatesQueuedJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, isDuplicate, err := q.Submit(ctx, "Brown Pelican")
	require.NoError(t, err)
	require.False(t, isDuplicate)
	require.Equal(t, "brown-pelican", job.ID)
	require.Equal(t, models.StatusQueued, job.Status)
	require.Equal(t, 0, job.RetryCount)
}

// P1 Uniqueness / P8 Idempotent submission.
func TestQueue_SubmitIsIdempotentWhileNotFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, _, err := q.Submit(ctx, "Kestrel")
	require.NoError(t, err)

	second, isDuplicate, err := q.Submit(ctx, "kestrel")
	require.NoError(t, err)
	require.True(t, isDuplicate)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestQueue_SubmitCanonicalizesWhitespaceAndCase(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _, err := q.Submit(ctx, "  Great   Blue Heron  ")
	require.NoError(t, err)
	require.Equal(t, "great-blue-heron", job.ID)
}

// P9 Reset on failed.
func TestQueue_SubmitResetsFailedJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _, err := q.Submit(ctx, "Osprey")
	require.NoError(t, err)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	_, err = q.Fail(ctx, job.ID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	reset, isDuplicate, err := q.Submit(ctx, "Osprey")
	require.NoError(t, err)
	require.False(t, isDuplicate)
	require.Equal(t, 0, reset.RetryCount)
	require.Equal(t, models.StatusQueued, reset.Status)
	require.Greater(t, reset.CreatedAt, job.CreatedAt)

	reclaimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, job.ID, reclaimed.ID)
}

func TestQueue_ClaimReturnsNoneWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	job, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)
}

// P4 Eligibility.
func TestQueue_ClaimSkipsNotYetEligibleJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _, err := q.Submit(ctx, "Barn Owl")
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).UnixMilli()
	_, err = q.Retry(ctx, job.ID, future)
	require.NoError(t, err)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

// P7 Ordering.
func TestQueue_ClaimReturnsJobsInAvailableAtOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Submit(ctx, "Second")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, _, err = q.Submit(ctx, "Third")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	_, _, err = q.Submit(ctx, "placeholder-for-ordering")
	require.NoError(t, err)

	order := []string{}
	for i := 0; i < 3; i++ {
		job, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		order = append(order, job.ID)
	}
	require.Equal(t, []string{"second", "third", "placeholder-for-ordering"}, order)
}

// P2 Index consistency / P3 Claim exclusivity.
func TestQueue_ConcurrentClaimsNeverReturnSameJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		_, _, err := q.Submit(ctx, string(rune('a'+i))+"-bird")
		require.NoError(t, err)
	}

	var (
		mu     sync.Mutex
		seen   = map[string]int{}
		wg     sync.WaitGroup
		claims = make(chan string, jobCount*2)
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Claim(ctx)
				require.NoError(t, err)
				if job == nil {
					return
				}
				claims <- job.ID
			}
		}()
	}
	wg.Wait()
	close(claims)

	for id := range claims {
		mu.Lock()
		seen[id]++
		mu.Unlock()
	}
	require.Len(t, seen, jobCount)
	for id, count := range seen {
		require.Equalf(t, 1, count, "job %s claimed %d times", id, count)
	}
}

func TestQueue_CompleteSetsStatusAndBody(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _, err := q.Submit(ctx, "Hawk")
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	completed, err := q.Complete(ctx, job.ID, map[string]any{"research": "a bird of prey"})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, completed.Status)
	require.Equal(t, "a bird of prey", completed.Body["research"])
}

func TestQueue_CompleteReturnsNilForMissingJob(t *testing.T) {
	q := newTestQueue(t)
	job, err := q.Complete(context.Background(), "nonexistent", nil)
	require.NoError(t, err)
	require.Nil(t, job)
}

// P5 Retry monotonicity.
func TestQueue_RetryIncrementsRetryCountAndReinsertsIndex(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _, err := q.Submit(ctx, "Falcon")
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	retried, err := q.Retry(ctx, job.ID, time.Now().UnixMilli())
	require.NoError(t, err)
	require.Equal(t, 1, retried.RetryCount)
	require.Equal(t, models.StatusQueued, retried.Status)

	reclaimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, job.ID, reclaimed.ID)
	require.Equal(t, 1, reclaimed.RetryCount)
}

func TestQueue_FailSetsStatusAndLeavesNoIndexEntry(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, _, err := q.Submit(ctx, "Vulture")
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	failed, err := q.Fail(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, failed.Status)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestQueue_GetReturnsNilForMissingJob(t *testing.T) {
	q := newTestQueue(t)
	job, err := q.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestQueue_GetReturnsCurrentState(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	submitted, _, err := q.Submit(ctx, "Sparrow")
	require.NoError(t, err)

	fetched, err := q.Get(ctx, submitted.ID)
	require.NoError(t, err)
	require.Equal(t, submitted.ID, fetched.ID)
	require.Equal(t, models.StatusQueued, fetched.Status)
}

// Claim self-heals an index entry whose job record is missing.
func TestQueue_ClaimSelfHealsOrphanIndexEntry(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.store.Put(indexTable, indexKey(time.Now().UnixMilli(), "ghost", q.padLen), []byte("ghost")))

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Nil(t, job)

	entries, err := q.store.ScanFrom(indexTable, "", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}
