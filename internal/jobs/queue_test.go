package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	pkgkafka "github.com/k-code-yt/go-storefront/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func newTestQueue(t *testing.T, pub *fakePublisher, encType pkgkafka.KafkaEncoder) (*Queue, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	enc, err := pkgkafka.NewMsgEncoder(encType, JobSchema)
	require.NoError(t, err)
	return NewQueue(NewLedgerRepo(db), pub, enc, "jobs", DefaultRetryPolicy), db, mock
}

func TestQueueEnqueuePublishesNewJob(t *testing.T) {
	for _, encType := range []pkgkafka.KafkaEncoder{pkgkafka.KafkaEncoder_JSON, pkgkafka.KafkaEncoder_AVRO} {
		t.Run(string(encType), func(t *testing.T) {
			pub := &fakePublisher{}
			q, _, mock := newTestQueue(t, pub, encType)
			job := NewJob(uuid.New(), "evt_1", time.UnixMilli(1_700_000_000_000))

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO queue_jobs").
				WithArgs("evt_1", job.EventID, JobStatus_Queued, 5, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			enqueued, err := q.Enqueue(context.Background(), job)
			require.NoError(t, err)
			assert.True(t, enqueued)
			require.Len(t, pub.msgs, 1)
			assert.Equal(t, "jobs", pub.msgs[0].topic)
			assert.Equal(t, []byte("evt_1"), pub.msgs[0].key)
			assert.Equal(t, string(encType), pub.msgs[0].headers["encoding"])

			got := &Job{}
			require.NoError(t, q.encoder.Decode(pub.msgs[0].value, got))
			assert.Equal(t, job.EventID, got.EventID)
			assert.Equal(t, job.DedupKey, got.DedupKey)
			assert.True(t, job.EnqueuedAt.Equal(got.EnqueuedAt))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQueueEnqueueDuplicateIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	q, _, mock := newTestQueue(t, pub, pkgkafka.KafkaEncoder_JSON)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO queue_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	enqueued, err := q.Enqueue(context.Background(), NewJob(uuid.New(), "evt_1", time.Now()))
	require.NoError(t, err)
	assert.False(t, enqueued)
	assert.Empty(t, pub.msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueEnqueuePublishFailureRollsBack(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	q, _, mock := newTestQueue(t, pub, pkgkafka.KafkaEncoder_JSON)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO queue_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	enqueued, err := q.Enqueue(context.Background(), NewJob(uuid.New(), "evt_1", time.Now()))
	assert.ErrorContains(t, err, "broker down")
	assert.False(t, enqueued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRequeueDeadJob(t *testing.T) {
	pub := &fakePublisher{}
	q, db, mock := newTestQueue(t, pub, pkgkafka.KafkaEncoder_JSON)
	eventID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE queue_jobs SET status").
		WithArgs(JobStatus_Queued, sqlmock.AnyArg(), "evt_9", JobStatus_Succeeded).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(eventID.String()))
	mock.ExpectExec("UPDATE job_dead_letters SET replayed_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := q.Requeue(context.Background(), "evt_9", NewDeadLetterRepo(db))
	require.NoError(t, err)
	assert.Equal(t, eventID, job.EventID)
	assert.Len(t, pub.msgs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRequeueStrandedJob(t *testing.T) {
	pub := &fakePublisher{}
	q, db, mock := newTestQueue(t, pub, pkgkafka.KafkaEncoder_JSON)
	eventID := uuid.New()

	// MarkDead failed, so the entry is still retrying and has no dead letter.
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)UPDATE queue_jobs SET status .+ WHERE dedup_key = \$3 AND status <> \$4`).
		WithArgs(JobStatus_Queued, sqlmock.AnyArg(), "evt_stuck", JobStatus_Succeeded).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(eventID.String()))
	mock.ExpectExec("UPDATE job_dead_letters SET replayed_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	job, err := q.Requeue(context.Background(), "evt_stuck", NewDeadLetterRepo(db))
	require.NoError(t, err)
	assert.Equal(t, eventID, job.EventID)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "evt_stuck", string(pub.msgs[0].key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRequeueRejectsSucceededJob(t *testing.T) {
	pub := &fakePublisher{}
	q, _, mock := newTestQueue(t, pub, pkgkafka.KafkaEncoder_JSON)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE queue_jobs SET status").
		WithArgs(JobStatus_Queued, sqlmock.AnyArg(), "evt_done", JobStatus_Succeeded).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))
	mock.ExpectRollback()

	_, err := q.Requeue(context.Background(), "evt_done", nil)
	assert.True(t, pkgerrors.IsNonExistingKeyError(err))
	assert.Empty(t, pub.msgs)
}
