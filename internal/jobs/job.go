package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatus_Queued    JobStatus = "queued"
	JobStatus_Running   JobStatus = "running"
	JobStatus_Retrying  JobStatus = "retrying"
	JobStatus_Succeeded JobStatus = "succeeded"
	JobStatus_Dead      JobStatus = "dead"
)

// JobSchema is the Avro schema of the job wire format.
const JobSchema = `{
  "type": "record",
  "name": "Job",
  "namespace": "storefront.jobs",
  "fields": [
    {"name": "eventInternalId", "type": "string"},
    {"name": "dedupKey", "type": "string"},
    {"name": "enqueuedAt", "type": "long"}
  ]
}`

// Job asks the worker to process one payment event. DedupKey is the
// processor's event id; at most one ledger entry exists per key.
type Job struct {
	EventID    uuid.UUID `json:"eventInternalId"`
	DedupKey   string    `json:"dedupKey"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func NewJob(eventID uuid.UUID, dedupKey string, now time.Time) *Job {
	return &Job{
		EventID:    eventID,
		DedupKey:   dedupKey,
		EnqueuedAt: now.UTC(),
	}
}

func (j *Job) ToAvroNative() map[string]any {
	return map[string]any{
		"eventInternalId": j.EventID.String(),
		"dedupKey":        j.DedupKey,
		"enqueuedAt":      j.EnqueuedAt.UnixMilli(),
	}
}

func (j *Job) FromAvroNative(native map[string]any) error {
	rawID, _ := native["eventInternalId"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("job eventInternalId: %w", err)
	}
	key, _ := native["dedupKey"].(string)
	if key == "" {
		return fmt.Errorf("job dedupKey is empty")
	}
	millis, _ := native["enqueuedAt"].(int64)

	j.EventID = id
	j.DedupKey = key
	j.EnqueuedAt = time.UnixMilli(millis).UTC()
	return nil
}

// Entry is a row of the job ledger.
type Entry struct {
	DedupKey    string     `db:"dedup_key"`
	EventID     uuid.UUID  `db:"event_id"`
	Status      JobStatus  `db:"status"`
	Attempts    int        `db:"attempts"`
	MaxAttempts int        `db:"max_attempts"`
	LastError   *string    `db:"last_error"`
	NextRunAt   *time.Time `db:"next_run_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

type DeadLetter struct {
	ID         int64      `db:"id" json:"-"`
	DedupKey   string     `db:"dedup_key" json:"dedupKey"`
	EventID    uuid.UUID  `db:"event_id" json:"eventInternalId"`
	Attempts   int        `db:"attempts" json:"attempts"`
	Reason     string     `db:"reason" json:"reason"`
	FailedAt   time.Time  `db:"failed_at" json:"failedAt"`
	ReplayedAt *time.Time `db:"replayed_at" json:"replayedAt,omitempty"`
}
