// Package worker implements the polling loop that claims jobs from the
// queue, invokes the external processor, and reports the outcome back to
// the queue and observer. Workers share no state beyond those two
// collaborators; all serialization happens inside the queue's atomic claim.
package worker

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/interfaces"
	"github.com/bobmcallan/aviary/internal/models"
)

// Config bounds a worker's polling cadence and retry backoff.
type Config struct {
	PollInterval time.Duration
	BaseDelay    time.Duration
	MaxRetries   int
}

// Worker is one independent polling agent.
type Worker struct {
	id        string
	config    Config
	queue     interfaces.Queue
	observer  interfaces.Observer
	processor interfaces.Processor
	logger    *common.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a worker with a freshly generated id (prefix "w-" plus four
// hex characters).
func New(config Config, queue interfaces.Queue, observer interfaces.Observer, processor interfaces.Processor, logger *common.Logger) *Worker {
	return &Worker{
		id:        newWorkerID(),
		config:    config,
		queue:     queue,
		observer:  observer,
		processor: processor,
		logger:    logger,
	}
}

// Start logs worker-start and begins the polling cycle on its own
// goroutine. Start is idempotent-unsafe: call it once per Worker.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if w.observer != nil {
		_, _ = w.observer.Log(runCtx, models.ActionWorkerStart, models.SeverityLog, map[string]any{"workerId": w.id})
	}
	w.logger.Info().Str("workerId", w.id).Msg("worker started")

	w.wg.Add(1)
	go w.run(runCtx)
}

// Stop signals the polling loop to exit and waits for its current tick to
// finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("workerId", w.id).Msg("worker loop recovered from panic")
		}
	}()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick runs one claim-process-report cycle. It never returns an error:
// store failures are logged and the worker continues on the next tick.
func (w *Worker) tick(ctx context.Context) {
	job, err := w.queue.Claim(ctx)
	if err != nil {
		w.logger.Error().Err(err).Str("workerId", w.id).Msg("claim failed")
		return
	}
	if job == nil {
		return
	}

	if w.observer != nil {
		_, _ = w.observer.Log(ctx, models.ActionJobClaimed, models.SeverityLog, map[string]any{
			"jobId":    job.ID,
			"workerId": w.id,
		})
	}

	result, err := w.processor.Process(ctx, job)
	if err != nil {
		w.handleFailure(ctx, job, err)
		return
	}

	if _, err := w.queue.Complete(ctx, job.ID, result); err != nil {
		w.logger.Error().Err(err).Str("jobId", job.ID).Msg("complete failed")
		return
	}
	if w.observer != nil {
		_, _ = w.observer.Log(ctx, models.ActionJobCompleted, models.SeverityLog, map[string]any{
			"jobId":    job.ID,
			"workerId": w.id,
		})
	}
}

// handleFailure decides retry vs. permanent failure based on the job's
// retry count at the moment of failure, before the queue's own increment.
func (w *Worker) handleFailure(ctx context.Context, job *models.Job, processErr error) {
	if job.RetryCount >= w.config.MaxRetries {
		if _, err := w.queue.Fail(ctx, job.ID); err != nil {
			w.logger.Error().Err(err).Str("jobId", job.ID).Msg("fail failed")
			return
		}
		if w.observer != nil {
			_, _ = w.observer.Log(ctx, models.ActionJobFailed, models.SeverityError, map[string]any{
				"jobId":    job.ID,
				"workerId": w.id,
				"error":    processErr.Error(),
			})
		}
		return
	}

	nextAvailableAt := w.nextAvailableAt(job.RetryCount)
	if _, err := w.queue.Retry(ctx, job.ID, nextAvailableAt); err != nil {
		w.logger.Error().Err(err).Str("jobId", job.ID).Msg("retry failed")
		return
	}
	if w.observer != nil {
		_, _ = w.observer.Log(ctx, models.ActionJobRetry, models.SeverityWarning, map[string]any{
			"jobId":           job.ID,
			"workerId":        w.id,
			"nextAvailableAt": nextAvailableAt,
			"error":           processErr.Error(),
		})
	}
}

// nextAvailableAt computes now + 2^(retryCount+1)*BaseDelay + uniform(0, BaseDelay).
func (w *Worker) nextAvailableAt(retryCount int) int64 {
	backoff := (int64(1) << uint(retryCount+1)) * w.config.BaseDelay.Milliseconds()
	jitter := jitterMS(w.config.BaseDelay.Milliseconds())
	return time.Now().UnixMilli() + backoff + jitter
}

func jitterMS(baseDelayMS int64) int64 {
	if baseDelayMS <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(baseDelayMS))
	if err != nil {
		return 0
	}
	return n.Int64()
}

func newWorkerID() string {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "w-0000"
	}
	return fmt.Sprintf("w-%x", buf)
}
