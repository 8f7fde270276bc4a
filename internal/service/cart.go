package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
)

// CartService keeps one line per (user, product). Stock checks here are
// advisory; checkout re-checks under row locks.
type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	lines, err := s.cartRepo.ListLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return model.NewCart(userID, lines), nil
}

// AddItem adds quantity to the user's line for the product, creating it if
// needed. The stock check compares against the requested amount only.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	if product.StockQuantity < quantity {
		return nil, insufficientStock(product.Name)
	}

	item := &model.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
	if err := s.cartRepo.AddItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	item, err := s.cartRepo.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	if item == nil {
		return nil, ErrCartItemNotFound
	}

	product, err := s.productRepo.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.StockQuantity < quantity {
		return nil, insufficientStock(product.Name)
	}

	item.Quantity = quantity
	if err := s.cartRepo.UpdateQuantity(ctx, item); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if err := s.cartRepo.DeleteItem(ctx, userID, itemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCartItemNotFound
		}
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.cartRepo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
