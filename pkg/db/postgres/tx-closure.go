package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type TxFunc[T any] func(ctx context.Context, tx *sqlx.Tx) (T, error)

// TxBeginner is satisfied by *sqlx.DB.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

var defaultTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// TxClosure runs fn in a READ COMMITTED transaction: commit on nil, rollback
// on error or panic.
func TxClosure[T any](ctx context.Context, db TxBeginner, fn TxFunc[T]) (T, error) {
	return TxClosureWithOptions(ctx, db, defaultTxOptions, fn)
}

func TxClosureWithOptions[T any](ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn TxFunc[T]) (res T, err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}

		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
			}
			var zero T
			res = zero
			return
		}

		if cErr := tx.Commit(); cErr != nil {
			var zero T
			res, err = zero, fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(ctx, tx)
}
