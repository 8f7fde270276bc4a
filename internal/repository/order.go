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

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListAll(ctx context.Context, limit int) ([]model.Order, error)

	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

const orderColumns = `o.id, o.user_id, u.email, o.status, o.total_amount, o.shipping_address,
	o.payment_method, o.created_at, o.updated_at`

const orderFrom = ` FROM orders o JOIN users u ON u.id = o.user_id`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	err := row.Scan(
		&o.ID, &o.UserID, &o.UserEmail, &o.Status, &o.TotalAmount, &o.ShippingAddress,
		&o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create inserts the order header and its items. IDs are assigned here.
func (r *pgOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	order.ID = uuid.New()
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount, shipping_address, payment_method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.Status, order.TotalAmount, order.ShippingAddress, order.PaymentMethod,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		batch.Queue(
			`INSERT INTO order_items (id, order_id, product_id, quantity, price_at_time)
			 VALUES ($1, $2, $3, $4, $5)`,
			order.Items[i].ID, order.ID, order.Items[i].ProductID, order.Items[i].Quantity, order.Items[i].PriceAtTime,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	orders := []model.Order{*order}
	if err := loadItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.user_id = $1 ORDER BY o.created_at DESC`, userID)
}

// ListAll returns the most recent orders across all users.
func (r *pgOrderRepo) ListAll(ctx context.Context, limit int) ([]model.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+orderFrom+` ORDER BY o.created_at DESC LIMIT $1`, limit)
}

func (r *pgOrderRepo) list(ctx context.Context, query string, arg any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if err := loadItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// LockByID returns the order with its items, holding a row lock on the order
// until tx ends.
func (r *pgOrderRepo) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+orderFrom+` WHERE o.id = $1 FOR UPDATE OF o`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	orders := []model.Order{*order}
	if err := loadItems(ctx, tx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) error {
	ct, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// loadItems fills Items on every order with one query, joining the product's
// current name and image for display. Prices come from price_at_time.
func loadItems(ctx context.Context, q querier, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, p.name, p.image_url, oi.quantity, oi.price_at_time
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY p.name`, ids,
	)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.ProductImage,
			&item.Quantity, &item.PriceAtTime,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}
