package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const DBTableName_Variants = "variants"

// InventoryRepo only writes inside a fulfillment transaction.
type InventoryRepo struct {
	tableName string
}

func NewInventoryRepo() *InventoryRepo {
	return &InventoryRepo{
		tableName: DBTableName_Variants,
	}
}

// Decrement takes qty off the variant only while stock covers it, so stock
// never goes negative. false means a shortfall.
func (r *InventoryRepo) Decrement(ctx context.Context, tx *sqlx.Tx, variantID uuid.UUID, qty int) (bool, error) {
	q := fmt.Sprintf(`UPDATE %s SET stock_qty = stock_qty - $1 WHERE id = $2 AND stock_qty >= $1`, r.tableName)
	res, err := tx.ExecContext(ctx, q, qty, variantID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
