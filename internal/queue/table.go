package queue

import (
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/aviary/internal/models"
	"github.com/bobmcallan/aviary/internal/storage/badgerkv"
)

const (
	jobTable   = "jobs"
	indexTable = "queue-index"
)

// kvAccessor is satisfied by both *badgerkv.Store and *badgerkv.Tx, letting
// getJob/putJob run either standalone or inside an atomic group write.
type kvAccessor interface {
	Get(table, key string) ([]byte, error)
	Put(table, key string, value []byte) error
	Delete(table, key string) error
	ScanFrom(table, start string, limit int) ([]badgerkv.Entry, error)
}

func getJob(acc kvAccessor, id string) (*models.Job, error) {
	raw, err := acc.Get(jobTable, id)
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("queue: decode job %s: %w", id, err)
	}
	return &job, nil
}

func putJob(acc kvAccessor, job *models.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: encode job %s: %w", job.ID, err)
	}
	return acc.Put(jobTable, job.ID, raw)
}
