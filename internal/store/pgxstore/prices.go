package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

// PriceView implements store.PriceView with pgx.
type PriceView struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewPriceView returns a new PriceView.
func NewPriceView(pool *pgxpool.Pool, clk clock.Clock) *PriceView {
	return &PriceView{pool: pool, clock: clk}
}

func (v *PriceView) Lowest(ctx context.Context, f store.PoolFilter) (*store.PriceRow, error) {
	var b strings.Builder
	b.WriteString(`SELECT product_id, size, final_price::text, final_status, owner
		FROM product_prices
		WHERE product_id = $1 AND size = $2 AND final_status = ANY($3)
		  AND (expires_at IS NULL OR expires_at > $4)`)
	args := []any{f.ProductID, f.Size, f.Statuses, v.clock.Now().UTC()}

	if f.Pool == store.EshopPool {
		b.WriteString(` AND owner IS NULL`)
	} else {
		b.WriteString(` AND owner IS NOT NULL`)
		if f.ExcludeOwner != "" {
			args = append(args, f.ExcludeOwner)
			fmt.Fprintf(&b, ` AND owner <> $%d`, len(args))
		}
	}
	b.WriteString(` ORDER BY final_price ASC, listed_at ASC LIMIT 1`)

	var row store.PriceRow
	var price string
	err := v.pool.QueryRow(ctx, b.String(), args...).Scan(
		&row.ProductID, &row.Size, &price, &row.FinalStatus, &row.Owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying lowest %s price: %w", f.Pool, err)
	}
	if row.FinalPrice, err = parsePrice(price); err != nil {
		return nil, err
	}
	return &row, nil
}
