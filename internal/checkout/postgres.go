package checkout

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/marketplace/pkg/database"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migrations returns the order schema, rooted for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	insertOrderSQL = `INSERT INTO orders (id, buyer_id, status, total_amount, currency, shipping_address, payment_method, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, title, image, quantity, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	pgUniqueViolation = "23505"
)

// PostgresPlacer writes orders straight into the order tables.
type PostgresPlacer struct {
	pool database.DBTX
}

// NewPostgresPlacer creates a placer writing through pool.
func NewPostgresPlacer(pool database.DBTX) *PostgresPlacer {
	return &PostgresPlacer{pool: pool}
}

// PlaceOrder inserts the order and its lines in one transaction.
func (p *PostgresPlacer) PlaceOrder(ctx context.Context, order *Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	qctx, end := database.TraceQuery(ctx, "InsertOrder", insertOrderSQL)
	_, err = tx.Exec(qctx, insertOrderSQL,
		order.ID,
		order.BuyerID,
		order.Status,
		order.TotalAmount,
		order.Currency,
		address,
		order.PaymentMethod,
		order.CreatedAt,
	)
	end(err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.Conflict(fmt.Sprintf("order %s already exists", order.ID))
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		qctx, end := database.TraceQuery(ctx, "InsertOrderItem", insertOrderItemSQL)
		_, err = tx.Exec(qctx, insertOrderItemSQL,
			order.ID,
			line.ProductID,
			line.Title,
			line.Image,
			line.Quantity,
			line.UnitPrice,
			line.Subtotal,
		)
		end(err)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", line.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
