package sqlxstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

// PriceView implements store.PriceView over the product_prices view.
type PriceView struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewPriceView returns a new PriceView.
func NewPriceView(db *sqlx.DB, clk clock.Clock) *PriceView {
	return &PriceView{db: db, clock: clk}
}

func (v *PriceView) Lowest(ctx context.Context, f store.PoolFilter) (*store.PriceRow, error) {
	query, args := lowestQuery(f, v.clock)
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding status filter: %w", err)
	}

	var row store.PriceRow
	err = v.db.GetContext(ctx, &row, v.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying lowest %s price: %w", f.Pool, err)
	}
	return &row, nil
}

// lowestQuery builds the pool lookup with ? placeholders. The status list is
// left as a single slice argument for sqlx.In to expand.
func lowestQuery(f store.PoolFilter, clk clock.Clock) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT product_id, size, final_price, final_status, owner
		FROM product_prices
		WHERE product_id = ? AND size = ? AND final_status IN (?)
		  AND (expires_at IS NULL OR expires_at > ?)`)
	args := []any{f.ProductID, f.Size, f.Statuses, clk.Now().UTC()}

	switch f.Pool {
	case store.EshopPool:
		b.WriteString(` AND owner IS NULL`)
	default:
		b.WriteString(` AND owner IS NOT NULL`)
		if f.ExcludeOwner != "" {
			b.WriteString(` AND owner <> ?`)
			args = append(args, f.ExcludeOwner)
		}
	}
	b.WriteString(` ORDER BY final_price ASC, listed_at ASC LIMIT 1`)
	return b.String(), args
}
