package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerClaimIncrementsAttempts(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedgerRepo(db)
	job := NewJob(uuid.New(), "evt_1", time.Now())

	mock.ExpectQuery("INSERT INTO queue_jobs").
		WithArgs("evt_1", job.EventID, JobStatus_Running, 5, sqlmock.AnyArg(), JobStatus_Succeeded, JobStatus_Dead).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(2))

	attempt, ok, err := ledger.Claim(context.Background(), job, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, attempt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerClaimTerminalEntry(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedgerRepo(db)

	mock.ExpectQuery("INSERT INTO queue_jobs").WillReturnRows(sqlmock.NewRows([]string{"attempts"}))

	_, ok, err := ledger.Claim(context.Background(), NewJob(uuid.New(), "evt_done", time.Now()), 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerSetStatusMissingEntry(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedgerRepo(db)

	mock.ExpectExec("UPDATE queue_jobs SET status").
		WithArgs(JobStatus_Dead, "boom", nil, sqlmock.AnyArg(), "evt_x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ledger.MarkDead(context.Background(), "evt_x", "boom")
	assert.True(t, pkgerrors.IsNonExistingKeyError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerGetMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT dedup_key").WillReturnRows(sqlmock.NewRows([]string{"dedup_key"}))

	e, err := NewLedgerRepo(db).Get(context.Background(), "evt_none")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDeadLetterRepoInsertAndList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeadLetterRepo(db)
	eventID := uuid.New()
	failedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO job_dead_letters").
		WithArgs("evt_1", eventID, 5, "boom", failedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	dl := &DeadLetter{DedupKey: "evt_1", EventID: eventID, Attempts: 5, Reason: "boom", FailedAt: failedAt}
	require.NoError(t, repo.DeadLetter(context.Background(), dl))
	assert.Equal(t, int64(7), dl.ID)

	mock.ExpectQuery("SELECT id, dedup_key").
		WithArgs(false, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dedup_key", "event_id", "attempts", "reason", "failed_at", "replayed_at"}).
			AddRow(int64(7), "evt_1", eventID.String(), 5, "boom", failedAt, nil))
	letters, err := repo.List(context.Background(), 10, false)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, eventID, letters[0].EventID)
	assert.Nil(t, letters[0].ReplayedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicDeadLetterSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewTopicDeadLetterSink(pub, "dlq")

	require.NoError(t, sink.DeadLetter(context.Background(), &DeadLetter{DedupKey: "evt_1", Attempts: 5, Reason: "boom"}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "dlq", pub.msgs[0].topic)
	assert.Equal(t, "5", pub.msgs[0].headers["attempts"])
	assert.Contains(t, string(pub.msgs[0].value), `"dedupKey":"evt_1"`)
}
