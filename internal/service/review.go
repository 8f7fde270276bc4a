package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
)

type ReviewService struct {
	tx          repository.Transactor
	reviewRepo  repository.ReviewRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	cache       ProductCache
	publisher   EventPublisher
	logger      *slog.Logger
}

func NewReviewService(
	tx repository.Transactor,
	reviewRepo repository.ReviewRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	cache ProductCache,
	publisher EventPublisher,
	logger *slog.Logger,
) *ReviewService {
	if publisher == nil {
		publisher = NoopPublisher
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		tx: tx, reviewRepo: reviewRepo, orderRepo: orderRepo, productRepo: productRepo,
		cache: cache, publisher: publisher, logger: logger,
	}
}

// Submit records the user's review of a product bought in a delivered order
// and refreshes the product's rating and review count. Submitting again for
// the same (user, product, order) replaces the earlier review.
func (s *ReviewService) Submit(ctx context.Context, userID uuid.UUID, req dto.SubmitReviewRequest) (*model.Review, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthorized
	}
	if req.ProductID == uuid.Nil || req.OrderID == uuid.Nil {
		return nil, validation("productId and orderId are required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrInvalidRating
	}

	review := &model.Review{
		ProductID: req.ProductID,
		UserID:    userID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
	}

	err := s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		order, err := s.orderRepo.LockByID(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return ErrOrderNotFound
		}
		if !order.HasProduct(req.ProductID) {
			return ErrInvalidOrder
		}
		if order.Status != model.OrderStatusDelivered {
			return ErrNotDelivered
		}

		// Serializes concurrent reviews of the same product around the aggregate.
		product, err := s.productRepo.LockByID(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return ErrProductNotFound
		}

		if err := s.reviewRepo.Upsert(ctx, tx, review); err != nil {
			return err
		}
		stats, err := s.reviewRepo.Stats(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		return s.productRepo.UpdateRating(ctx, tx, req.ProductID, stats)
	})
	if err != nil {
		return nil, fmt.Errorf("submit review: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateProducts(ctx, req.ProductID)
	}
	event := newEvent(model.EventReviewSubmitted, req.OrderID, userID)
	event.ProductIDs = []uuid.UUID{req.ProductID}
	publish(ctx, s.publisher, s.logger, event)

	return review, nil
}

func (s *ReviewService) ListForProduct(ctx context.Context, productID uuid.UUID) ([]model.Review, error) {
	reviews, err := s.reviewRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
