package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	pkgkafka "github.com/k-code-yt/go-storefront/pkg/kafka"
	"github.com/sirupsen/logrus"
)

// Queue publishes jobs to Kafka behind the ledger's dedup key. The ledger
// insert and the publish share one transaction, so a failed publish leaves
// no ledger entry behind and the next Enqueue tries again.
type Queue struct {
	ledger    *LedgerRepo
	publisher Publisher
	encoder   pkgkafka.MsgEncoder
	topic     string
	policy    RetryPolicy
}

func NewQueue(ledger *LedgerRepo, publisher Publisher, encoder pkgkafka.MsgEncoder, topic string, policy RetryPolicy) *Queue {
	return &Queue{
		ledger:    ledger,
		publisher: publisher,
		encoder:   encoder,
		topic:     topic,
		policy:    policy,
	}
}

// Enqueue reports false when a job with the same dedup key was enqueued
// before.
func (q *Queue) Enqueue(ctx context.Context, job *Job) (bool, error) {
	enqueued, err := postgres.TxClosure(ctx, q.ledger.GetRepo(), func(ctx context.Context, tx *sqlx.Tx) (bool, error) {
		created, err := q.ledger.Create(ctx, tx, job, q.policy.MaxAttempts)
		if err != nil || !created {
			return false, err
		}
		return true, q.publish(ctx, job)
	})
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", job.DedupKey, err)
	}

	result := "duplicate"
	if enqueued {
		result = "enqueued"
	}
	metrics.JobsEnqueued.WithLabelValues(result).Inc()
	logrus.WithFields(logrus.Fields{
		"dedupKey": job.DedupKey,
		"eventID":  job.EventID,
		"result":   result,
	}).Info("JOB:ENQUEUE")
	return enqueued, nil
}

// Requeue revives a dead or stranded job with a fresh attempt budget.
func (q *Queue) Requeue(ctx context.Context, dedupKey string, deadLetters *DeadLetterRepo) (*Job, error) {
	return postgres.TxClosure(ctx, q.ledger.GetRepo(), func(ctx context.Context, tx *sqlx.Tx) (*Job, error) {
		job, err := q.ledger.Reset(ctx, tx, dedupKey)
		if err != nil {
			return nil, err
		}
		if deadLetters != nil {
			if _, err := deadLetters.MarkReplayed(ctx, tx, dedupKey, time.Now().UTC()); err != nil {
				return nil, err
			}
		}
		if err := q.publish(ctx, job); err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"dedupKey": job.DedupKey,
			"eventID":  job.EventID,
		}).Warn("JOB:REQUEUED")
		return job, nil
	})
}

func (q *Queue) publish(ctx context.Context, job *Job) error {
	b, err := q.encoder.Encode(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	headers := map[string]string{"encoding": string(q.encoder.GetType())}
	return q.publisher.Publish(ctx, q.topic, []byte(job.DedupKey), b, headers)
}

// NewJobDecoder builds the consumer-side decoder matching encoder.
func NewJobDecoder(encoder pkgkafka.MsgEncoder) pkgkafka.Decoder[*Job] {
	return pkgkafka.EncoderDecoder(encoder, func() *Job { return &Job{} })
}
