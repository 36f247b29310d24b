package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/application"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/domain"
	paydomain "github.com/k-code-yt/go-storefront/internal/payment/domain"
	payrepo "github.com/k-code-yt/go-storefront/internal/payment/infra/repo"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
)

// PostgresStore runs fulfillment against the shared storefront database.
type PostgresStore struct {
	db        *sqlx.DB
	events    *payrepo.PaymentEventRepo
	orders    *OrderRepo
	inventory *InventoryRepo
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:        db,
		events:    payrepo.NewPaymentEventRepo(db),
		orders:    NewOrderRepo(),
		inventory: NewInventoryRepo(),
	}
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*paydomain.PaymentEvent, error) {
	return s.events.Get(ctx, id)
}

// RunInTx marks data and constraint errors permanent so the job is
// dead-lettered instead of retried.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	_, err := postgres.TxClosure(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, &pgTx{tx: tx, store: s})
	})
	if postgres.IsDeterministicErr(err) {
		return pkgerrors.NewPermanentError(err)
	}
	return err
}

type pgTx struct {
	tx    *sqlx.Tx
	store *PostgresStore
}

func (t *pgTx) MarkEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return t.store.events.MarkProcessed(ctx, t.tx, id, at)
}

func (t *pgTx) FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return t.store.orders.FindByID(ctx, t.tx, id)
}

func (t *pgTx) FindOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	return t.store.orders.FindBySession(ctx, t.tx, sessionID)
}

func (t *pgTx) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, sessionID, paymentIntentID string) (bool, error) {
	return t.store.orders.MarkPaid(ctx, t.tx, orderID, sessionID, paymentIntentID)
}

func (t *pgTx) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	return t.store.orders.ListItems(ctx, t.tx, orderID)
}

func (t *pgTx) DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	return t.store.inventory.Decrement(ctx, t.tx, variantID, qty)
}

var _ application.Store = (*PostgresStore)(nil)
