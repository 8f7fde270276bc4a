package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/storehub-api/internal/model"
)

type ReviewRepository interface {
	Upsert(ctx context.Context, tx pgx.Tx, review *model.Review) error
	Stats(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (model.RatingStats, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Review, error)
}

type pgReviewRepo struct{ pool *pgxpool.Pool }

func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &pgReviewRepo{pool: pool}
}

// Upsert writes the review for (user, product, order). A resubmission replaces
// rating and comment and keeps the original id and created_at.
func (r *pgReviewRepo) Upsert(ctx context.Context, tx pgx.Tx, review *model.Review) error {
	query := `INSERT INTO reviews (id, product_id, user_id, order_id, rating, comment, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			  ON CONFLICT (user_id, product_id, order_id) DO UPDATE
			  SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = NOW()
			  RETURNING id, created_at, updated_at`
	err := tx.QueryRow(ctx, query,
		uuid.New(), review.ProductID, review.UserID, review.OrderID, review.Rating, review.Comment,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

// Stats recomputes the product's mean rating, rounded to one decimal place,
// and review count over all of its reviews.
func (r *pgReviewRepo) Stats(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (model.RatingStats, error) {
	var (
		avg   decimal.NullDecimal
		count int
	)
	err := tx.QueryRow(ctx,
		`SELECT ROUND(AVG(rating)::numeric, 1), COUNT(*) FROM reviews WHERE product_id = $1`, productID,
	).Scan(&avg, &count)
	if err != nil {
		return model.RatingStats{}, fmt.Errorf("review stats: %w", err)
	}
	stats := model.RatingStats{Average: decimal.Zero, Count: count}
	if avg.Valid {
		stats.Average = avg.Decimal
	}
	return stats, nil
}

func (r *pgReviewRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, user_id, order_id, rating, comment, created_at, updated_at
		 FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(
			&rv.ID, &rv.ProductID, &rv.UserID, &rv.OrderID, &rv.Rating, &rv.Comment,
			&rv.CreatedAt, &rv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
