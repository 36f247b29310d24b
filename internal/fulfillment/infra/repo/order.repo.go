package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/domain"
)

const (
	DBTableName_Orders     = "orders"
	DBTableName_OrderItems = "order_items"
)

const orderColumns = `id, user_id, status, subtotal, shipping, discount, total,
	stripe_checkout_session_id, stripe_payment_intent_id, created_at`

type OrderRepo struct {
	tableName     string
	itemTableName string
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{
		tableName:     DBTableName_Orders,
		itemTableName: DBTableName_OrderItems,
	}
}

func (r *OrderRepo) FindByID(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Order, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, orderColumns, r.tableName)
	return r.findOne(ctx, tx, q, id)
}

func (r *OrderRepo) FindBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) (*domain.Order, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE stripe_checkout_session_id = $1 ORDER BY created_at LIMIT 1`, orderColumns, r.tableName)
	return r.findOne(ctx, tx, q, sessionID)
}

func (r *OrderRepo) findOne(ctx context.Context, tx *sqlx.Tx, q string, arg any) (*domain.Order, error) {
	o := &domain.Order{}
	err := tx.GetContext(ctx, o, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// MarkPaid moves a PENDING order to PAID. It returns false when the order
// is no longer PENDING.
func (r *OrderRepo) MarkPaid(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, sessionID, paymentIntentID string) (bool, error) {
	q := fmt.Sprintf(`UPDATE %s SET status = $1,
		stripe_checkout_session_id = COALESCE(NULLIF($2, ''), stripe_checkout_session_id),
		stripe_payment_intent_id = COALESCE(NULLIF($3, ''), stripe_payment_intent_id)
		WHERE id = $4 AND status = $5`, r.tableName)
	res, err := tx.ExecContext(ctx, q, domain.OrderStatus_Paid, sessionID, paymentIntentID, id, domain.OrderStatus_Pending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *OrderRepo) ListItems(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) ([]domain.OrderItem, error) {
	q := fmt.Sprintf(`SELECT id, order_id, variant_id, product_name_snapshot, variant_snapshot, unit_price, qty
		FROM %s WHERE order_id = $1 ORDER BY variant_id`, r.itemTableName)
	items := []domain.OrderItem{}
	if err := tx.SelectContext(ctx, &items, q, orderID); err != nil {
		return nil, err
	}
	return items, nil
}
