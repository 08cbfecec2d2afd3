// Package queue is the durable job store: a typed record table plus an
// ordered secondary index over (availableAt, id), with claim transitions
// running as single atomic group writes against the embedded store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/interfaces"
	"github.com/bobmcallan/aviary/internal/models"
	"github.com/bobmcallan/aviary/internal/storage/badgerkv"
)

// maxClaimAttempts bounds the retry loop Claim runs under write contention
// from concurrent workers; each attempt is a fresh atomic group write.
const maxClaimAttempts = 8

// Queue implements interfaces.Queue over a badgerkv.Store.
type Queue struct {
	store    *badgerkv.Store
	padLen   int
	logger   *common.Logger
	observer interfaces.Observer
}

// New opens (or reuses, via cache) the database at path and returns a Queue
// backed by it. observer may be nil, in which case Submit logs nothing.
func New(cache *badgerkv.HandleCache, path string, padLen int, logger *common.Logger, observer interfaces.Observer) (*Queue, error) {
	db, err := cache.Open(path)
	if err != nil {
		return nil, fmt.Errorf("queue: open store: %w", err)
	}
	return &Queue{
		store:    badgerkv.NewStore(db),
		padLen:   padLen,
		logger:   logger,
		observer: observer,
	}, nil
}

// Submit creates a new queued job for name, or returns the existing record
// unmodified if one is already queued, processing, or completed. A job
// record in failed state is reset to queued rather than treated as a
// duplicate, giving callers a way to resubmit work that gave up permanently.
func (q *Queue) Submit(ctx context.Context, name string) (*models.Job, bool, error) {
	id := models.CanonicalID(name)
	now := time.Now().UnixMilli()

	var job *models.Job
	var isDuplicate bool

	err := q.store.AtomicWrite(func(tx *badgerkv.Tx) error {
		existing, err := getJob(tx, id)
		if err != nil && !errors.Is(err, badgerkv.ErrNotFound) {
			return err
		}

		if existing != nil && existing.Status != models.StatusFailed {
			job = existing
			isDuplicate = true
			return nil
		}

		record := &models.Job{
			ID:          id,
			Name:        name,
			CreatedAt:   now,
			AvailableAt: now,
			RetryCount:  0,
			Status:      models.StatusQueued,
		}
		if err := putJob(tx, record); err != nil {
			return err
		}
		if err := tx.Put(indexTable, indexKey(now, id, q.padLen), []byte(id)); err != nil {
			return err
		}
		job = record
		isDuplicate = false
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("queue: submit %s: %w", id, err)
	}

	if q.observer != nil {
		action := models.ActionJobSubmitted
		if isDuplicate {
			action = models.ActionJobDuplicate
		}
		_, _ = q.observer.Log(ctx, action, models.SeverityLog, map[string]any{
			"jobId": id,
			"name":  name,
		})
	}
	return job, isDuplicate, nil
}

// Claim removes the earliest eligible index entry and transitions its job
// to processing, as a single atomic group write. It returns (nil, nil) when
// no job is eligible yet, and transparently retries on write conflicts from
// concurrent claimants.
func (q *Queue) Claim(ctx context.Context) (*models.Job, error) {
	now := time.Now().UnixMilli()

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		var claimed *models.Job

		err := q.store.AtomicWrite(func(tx *badgerkv.Tx) error {
			claimed = nil

			entries, err := tx.ScanFrom(indexTable, "", 1)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}

			head := entries[0]
			availableAt, id, err := parseIndexKey(head.Key, q.padLen)
			if err != nil {
				return err
			}
			if availableAt > now {
				return nil
			}

			job, err := getJob(tx, id)
			if err != nil {
				if errors.Is(err, badgerkv.ErrNotFound) {
					// Index entry with no backing job record: drop it and
					// report no claim for this call rather than scanning on.
					return tx.Delete(indexTable, head.Key)
				}
				return err
			}

			if err := tx.Delete(indexTable, head.Key); err != nil {
				return err
			}
			job.Status = models.StatusProcessing
			if err := putJob(tx, job); err != nil {
				return err
			}
			claimed = job
			return nil
		})

		if err == nil {
			return claimed, nil
		}
		if errors.Is(err, badgerkv.ErrConflict) {
			continue
		}
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	return nil, fmt.Errorf("queue: claim: exceeded %d attempts under write contention", maxClaimAttempts)
}

// Complete marks id completed with the given result body. It returns
// (nil, nil) if no job with that id exists. Logging job-completed is the
// worker's responsibility, not the queue's.
func (q *Queue) Complete(ctx context.Context, id string, body map[string]any) (*models.Job, error) {
	job, err := q.transition(id, func(job *models.Job) {
		job.Status = models.StatusCompleted
		job.Body = body
	})
	if err != nil {
		return nil, fmt.Errorf("queue: complete %s: %w", id, err)
	}
	return job, nil
}

// Retry returns id to queued state with an incremented retry count and the
// given next availability time, reinserting its index entry. It returns
// (nil, nil) if no job with that id exists. Logging job-retry is the
// worker's responsibility, not the queue's.
func (q *Queue) Retry(ctx context.Context, id string, nextAvailableAt int64) (*models.Job, error) {
	var job *models.Job

	err := q.store.AtomicWrite(func(tx *badgerkv.Tx) error {
		existing, err := getJob(tx, id)
		if err != nil {
			if errors.Is(err, badgerkv.ErrNotFound) {
				return nil
			}
			return err
		}
		existing.Status = models.StatusQueued
		existing.RetryCount++
		existing.AvailableAt = nextAvailableAt
		if err := putJob(tx, existing); err != nil {
			return err
		}
		if err := tx.Put(indexTable, indexKey(nextAvailableAt, id, q.padLen), []byte(id)); err != nil {
			return err
		}
		job = existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue: retry %s: %w", id, err)
	}
	return job, nil
}

// Fail marks id permanently failed without reinserting an index entry. It
// returns (nil, nil) if no job with that id exists. Logging job-failed is
// the worker's responsibility, not the queue's.
func (q *Queue) Fail(ctx context.Context, id string) (*models.Job, error) {
	job, err := q.transition(id, func(job *models.Job) {
		job.Status = models.StatusFailed
	})
	if err != nil {
		return nil, fmt.Errorf("queue: fail %s: %w", id, err)
	}
	return job, nil
}

// Get performs a point read by job id, returning (nil, nil) if absent.
func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := getJob(q.store, id)
	if err != nil {
		if errors.Is(err, badgerkv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: get %s: %w", id, err)
	}
	return job, nil
}

// Close is a no-op: the underlying database handle is owned and closed by
// the HandleCache shared across the queue and observer stores.
func (q *Queue) Close() error {
	return nil
}

// transition loads id, applies mutate, and writes it back in one atomic
// group write, without touching the index. It returns (nil, nil) if id does
// not exist.
func (q *Queue) transition(id string, mutate func(*models.Job)) (*models.Job, error) {
	var job *models.Job
	err := q.store.AtomicWrite(func(tx *badgerkv.Tx) error {
		existing, err := getJob(tx, id)
		if err != nil {
			if errors.Is(err, badgerkv.ErrNotFound) {
				return nil
			}
			return err
		}
		mutate(existing)
		if err := putJob(tx, existing); err != nil {
			return err
		}
		job = existing
		return nil
	})
	return job, err
}
