package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/storehub-api/internal/model"
)

type CartRepository interface {
	ListLines(ctx context.Context, userID uuid.UUID) ([]model.CartLine, error)
	GetItem(ctx context.Context, userID, itemID uuid.UUID) (*model.CartItem, error)
	AddItem(ctx context.Context, item *model.CartItem) error
	UpdateQuantity(ctx context.Context, item *model.CartItem) error
	DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error

	LockLines(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]model.CartLine, error)
	ClearTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

const cartLineQuery = `SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,
		p.name, p.price, p.image_url, p.stock_quantity
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.user_id = $1 AND p.is_active`

func scanCartLines(rows pgx.Rows) ([]model.CartLine, error) {
	defer rows.Close()
	var lines []model.CartLine
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt,
			&l.ProductName, &l.ProductPrice, &l.ProductImage, &l.StockQuantity,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListLines returns the user's items whose product is still active, newest first.
func (r *pgCartRepo) ListLines(ctx context.Context, userID uuid.UUID) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx, cartLineQuery+` ORDER BY ci.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return scanCartLines(rows)
}

func (r *pgCartRepo) GetItem(ctx context.Context, userID, itemID uuid.UUID) (*model.CartItem, error) {
	item := &model.CartItem{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, quantity, created_at, updated_at
		 FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID,
	).Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return item, nil
}

// AddItem inserts the line or adds item.Quantity to the existing (user, product)
// line. item is updated with the stored row.
func (r *pgCartRepo) AddItem(ctx context.Context, item *model.CartItem) error {
	query := `INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, NOW(), NOW())
			  ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			  RETURNING id, quantity, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, uuid.New(), item.UserID, item.ProductID, item.Quantity).
		Scan(&item.ID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateQuantity(ctx context.Context, item *model.CartItem) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE cart_items SET quantity = $3, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING product_id, created_at, updated_at`,
		item.ID, item.UserID, item.Quantity,
	).Scan(&item.ProductID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgx.ErrNoRows
		}
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// LockLines locks the user's cart rows, then the referenced active products in
// id order, and returns the joined lines. Concurrent checkouts touching the
// same products queue on the product locks in the same order.
func (r *pgCartRepo) LockLines(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]model.CartLine, error) {
	if _, err := tx.Exec(ctx, `SELECT id FROM cart_items WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	rows, err := tx.Query(ctx, cartLineQuery+` ORDER BY p.id FOR UPDATE OF p`, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart products: %w", err)
	}
	return scanCartLines(rows)
}

func (r *pgCartRepo) ClearTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
