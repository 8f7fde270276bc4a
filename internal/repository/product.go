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

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error)
	ListAll(ctx context.Context) ([]model.Product, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error

	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) error
	UpdateRating(ctx context.Context, tx pgx.Tx, productID uuid.UUID, stats model.RatingStats) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

const productColumns = `id, name, description, price, image_url, category, stock_quantity,
	rating, review_count, is_active, created_at, updated_at`

var productSorts = map[string]string{
	model.SortFeatured:  "created_at ASC, id ASC",
	model.SortPriceLow:  "price ASC",
	model.SortPriceHigh: "price DESC",
	model.SortRating:    "rating DESC",
	model.SortNewest:    "created_at DESC",
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.Category, &p.StockQuantity,
		&p.Rating, &p.ReviewCount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()
	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, name, description, price, image_url, category, stock_quantity, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING rating, review_count, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.ImageURL,
		product.Category, product.StockQuantity, product.IsActive,
	).Scan(&product.Rating, &product.ReviewCount, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List returns active products only.
func (r *pgProductRepo) List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	orderBy, ok := productSorts[filter.Sort]
	if !ok {
		orderBy = productSorts[model.SortFeatured]
	}
	category := filter.Category
	if category == "all" {
		category = ""
	}

	query := fmt.Sprintf(`SELECT %s FROM products
		WHERE is_active
		  AND ($1 = '' OR category = $1)
		  AND ($2 = '' OR name ILIKE '%%' || $2 || '%%')
		ORDER BY %s`, productColumns, orderBy)

	rows, err := r.pool.Query(ctx, query, category, filter.Search)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ListAll includes inactive products, newest first.
func (r *pgProductRepo) ListAll(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	return products, nil
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	query := `UPDATE products SET name=$2, description=$3, price=$4, image_url=$5, category=$6,
				stock_quantity=$7, is_active=$8, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.ImageURL,
		product.Category, product.StockQuantity, product.IsActive,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgx.ErrNoRows
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReferenced
		}
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgProductRepo) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) error {
	ct, err := tx.Exec(ctx,
		`UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		 WHERE id = $1 AND stock_quantity >= $2`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	return nil
}

func (r *pgProductRepo) UpdateRating(ctx context.Context, tx pgx.Tx, productID uuid.UUID, stats model.RatingStats) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET rating = $2, review_count = $3, updated_at = NOW() WHERE id = $1`,
		productID, stats.Average, stats.Count,
	)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}
