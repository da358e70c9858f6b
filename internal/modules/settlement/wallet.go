// README: Wallet creditor backed by the usuario table in PostgreSQL.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"colibri/internal/types"
)

// DB is the subset of pgxpool.Pool the wallet uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresWallet struct {
	db DB
}

func NewPostgresWallet(db DB) *PostgresWallet {
	return &PostgresWallet{db: db}
}

// Credit adds amount to the driver's wallet and returns the new balance.
func (w *PostgresWallet) Credit(ctx context.Context, driver types.ID, amount types.Money) (decimal.Decimal, error) {
	row := w.db.QueryRow(ctx, `
        UPDATE usuario
        SET wallet = COALESCE(wallet, 0) + $1::numeric
        WHERE email = $2
        RETURNING wallet::text`,
		amount.Amount.StringFixed(2),
		string(driver),
	)
	var balance string
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrWalletNotFound, driver)
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}
