package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/k-code-yt/go-storefront/internal/payment/domain"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
)

const DBTableName_PaymentEvents = "payment_events"

type PaymentEventRepo struct {
	repo      *sqlx.DB
	tableName string
}

func NewPaymentEventRepo(db *sqlx.DB) *PaymentEventRepo {
	return &PaymentEventRepo{
		repo:      db,
		tableName: DBTableName_PaymentEvents,
	}
}

func (r *PaymentEventRepo) GetRepo() *sqlx.DB {
	return r.repo
}

// InsertIfAbsent stores e unless its external id was seen before. It
// returns the internal id of the stored row and whether this call created it.
func (r *PaymentEventRepo) InsertIfAbsent(ctx context.Context, e *domain.PaymentEvent) (uuid.UUID, bool, error) {
	type inserted struct {
		id      uuid.UUID
		created bool
	}
	res, err := postgres.TxClosure(ctx, r.repo, func(ctx context.Context, tx *sqlx.Tx) (inserted, error) {
		var id uuid.UUID
		q := fmt.Sprintf(`INSERT INTO %s (id, event_id, type, payload, received_at) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id) DO NOTHING RETURNING id`, r.tableName)
		err := tx.GetContext(ctx, &id, q, e.ID, e.EventID, e.Type, []byte(e.Payload), e.ReceivedAt)
		if err == nil {
			return inserted{id: id, created: true}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return inserted{}, fmt.Errorf("insert event %s: %w", e.EventID, err)
		}

		q = fmt.Sprintf(`SELECT id FROM %s WHERE event_id = $1`, r.tableName)
		if err := tx.GetContext(ctx, &id, q, e.EventID); err != nil {
			return inserted{}, fmt.Errorf("select existing event %s: %w", e.EventID, err)
		}
		return inserted{id: id}, nil
	})
	return res.id, res.created, err
}

// Get returns nil when no row has the given internal id.
func (r *PaymentEventRepo) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentEvent, error) {
	e := &domain.PaymentEvent{}
	q := fmt.Sprintf(`SELECT id, event_id, type, payload, received_at, processed_at FROM %s WHERE id = $1`, r.tableName)
	err := r.repo.GetContext(ctx, e, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// MarkProcessed sets processed_at only if it is still unset. The row lock it
// takes serializes concurrent workers on the same event; false means
// another transaction got there first.
func (r *PaymentEventRepo) MarkProcessed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	q := fmt.Sprintf(`UPDATE %s SET processed_at = $1 WHERE id = $2 AND processed_at IS NULL`, r.tableName)
	res, err := tx.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark event %s processed: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListUnprocessed pages through unprocessed events in (received_at, id)
// order, starting strictly after the cursor when one is given.
func (r *PaymentEventRepo) ListUnprocessed(ctx context.Context, receivedBefore time.Time, after *domain.EventCursor, limit int) ([]domain.PaymentEvent, error) {
	args := []any{receivedBefore.UTC()}
	keyset := ""
	if after != nil {
		keyset = "AND (received_at, id) > ($2, $3)"
		args = append(args, after.ReceivedAt.UTC(), after.ID)
	}
	args = append(args, limit)

	q := fmt.Sprintf(`SELECT id, event_id, type, payload, received_at, processed_at FROM %s
		WHERE processed_at IS NULL AND received_at < $1 %s
		ORDER BY received_at, id LIMIT $%d`, r.tableName, keyset, len(args))
	events := []domain.PaymentEvent{}
	if err := r.repo.SelectContext(ctx, &events, q, args...); err != nil {
		return nil, fmt.Errorf("list unprocessed events: %w", err)
	}
	return events, nil
}
