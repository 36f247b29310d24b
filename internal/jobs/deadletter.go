package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	pkgkafka "github.com/k-code-yt/go-storefront/pkg/kafka"
)

// DeadLetterSink receives jobs the runner gave up on.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl *DeadLetter) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type DeadLetterRepo struct {
	repo      *sqlx.DB
	tableName string
}

func NewDeadLetterRepo(db *sqlx.DB) *DeadLetterRepo {
	return &DeadLetterRepo{
		repo:      db,
		tableName: DBTableName_DeadLetters,
	}
}

func (r *DeadLetterRepo) DeadLetter(ctx context.Context, dl *DeadLetter) error {
	q := fmt.Sprintf(`INSERT INTO %s (dedup_key, event_id, attempts, reason, failed_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`, r.tableName)
	if err := r.repo.GetContext(ctx, &dl.ID, q, dl.DedupKey, dl.EventID, dl.Attempts, dl.Reason, dl.FailedAt); err != nil {
		return fmt.Errorf("insert dead letter %s: %w", dl.DedupKey, err)
	}
	return nil
}

func (r *DeadLetterRepo) List(ctx context.Context, limit int, includeReplayed bool) ([]DeadLetter, error) {
	q := fmt.Sprintf(`SELECT id, dedup_key, event_id, attempts, reason, failed_at, replayed_at FROM %s
		WHERE ($1 OR replayed_at IS NULL)
		ORDER BY failed_at DESC LIMIT $2`, r.tableName)
	out := []DeadLetter{}
	if err := r.repo.SelectContext(ctx, &out, q, includeReplayed, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DeadLetterRepo) MarkReplayed(ctx context.Context, tx *sqlx.Tx, dedupKey string, at time.Time) (int64, error) {
	q := fmt.Sprintf(`UPDATE %s SET replayed_at = $1 WHERE dedup_key = $2 AND replayed_at IS NULL`, r.tableName)
	res, err := tx.ExecContext(ctx, q, at, dedupKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TopicDeadLetterSink forwards dead letters to a Kafka topic for alerting
// and offline inspection.
type TopicDeadLetterSink struct {
	publisher Publisher
	encoder   pkgkafka.MsgEncoder
	topic     string
}

func NewTopicDeadLetterSink(p Publisher, topic string) *TopicDeadLetterSink {
	return &TopicDeadLetterSink{
		publisher: p,
		encoder:   pkgkafka.NewJsonEncoder(),
		topic:     topic,
	}
}

func (s *TopicDeadLetterSink) DeadLetter(ctx context.Context, dl *DeadLetter) error {
	b, err := s.encoder.Encode(dl)
	if err != nil {
		return err
	}
	headers := map[string]string{
		"attempts": strconv.Itoa(dl.Attempts),
		"reason":   dl.Reason,
	}
	return s.publisher.Publish(ctx, s.topic, []byte(dl.DedupKey), b, headers)
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []DeadLetterSink

func (m MultiSink) DeadLetter(ctx context.Context, dl *DeadLetter) error {
	var errs []error
	for _, s := range m {
		if err := s.DeadLetter(ctx, dl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
