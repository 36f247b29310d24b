package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatus_Pending   OrderStatus = "PENDING"
	OrderStatus_Paid      OrderStatus = "PAID"
	OrderStatus_Shipped   OrderStatus = "SHIPPED"
	OrderStatus_Delivered OrderStatus = "DELIVERED"
	OrderStatus_Canceled  OrderStatus = "CANCELED"
)

// Order is created PENDING by checkout. Fulfillment only ever moves it to
// PAID.
type Order struct {
	ID                uuid.UUID       `db:"id"`
	UserID            uuid.UUID       `db:"user_id"`
	Status            OrderStatus     `db:"status"`
	Subtotal          decimal.Decimal `db:"subtotal"`
	Shipping          decimal.Decimal `db:"shipping"`
	Discount          decimal.Decimal `db:"discount"`
	Total             decimal.Decimal `db:"total"`
	CheckoutSessionID *string         `db:"stripe_checkout_session_id"`
	PaymentIntentID   *string         `db:"stripe_payment_intent_id"`
	CreatedAt         time.Time       `db:"created_at"`
}

func (o *Order) IsPending() bool {
	return o.Status == OrderStatus_Pending
}

// VariantSnapshot holds the variant attributes captured at checkout.
type VariantSnapshot struct {
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

func (s VariantSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *VariantSnapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = VariantSnapshot{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("variant snapshot: unsupported type %T", src)
	}
}

type OrderItem struct {
	ID                  uuid.UUID       `db:"id"`
	OrderID             uuid.UUID       `db:"order_id"`
	VariantID           uuid.UUID       `db:"variant_id"`
	ProductNameSnapshot string          `db:"product_name_snapshot"`
	VariantSnapshot     VariantSnapshot `db:"variant_snapshot"`
	UnitPrice           decimal.Decimal `db:"unit_price"`
	Qty                 int             `db:"qty"`
}

type Variant struct {
	ID       uuid.UUID `db:"id"`
	SKU      string    `db:"sku"`
	StockQty int       `db:"stock_qty"`
}

// Shortfall is an item whose stock could not cover its quantity when the
// order was paid. A shortfall never blocks the PAID transition: the order is
// confirmed, the variant stays untouched and the gap is left to operations.
type Shortfall struct {
	VariantID uuid.UUID `json:"variantId"`
	Requested int       `json:"requested"`
}
