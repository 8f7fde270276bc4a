package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
)

const productCacheTTL = 60 * time.Second

func ProductCacheKey(id uuid.UUID) string { return "product:" + id.String() }

type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client) *ProductService {
	return &ProductService{productRepo: productRepo, redisClient: redisClient}
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	products, err := s.productRepo.List(ctx, model.ProductFilter{
		Category: strings.TrimSpace(req.Category),
		Search:   strings.TrimSpace(req.Search),
		Sort:     req.Sort,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	resp := dto.ToProductListResponse(products)
	return &resp, nil
}

func (s *ProductService) ListAll(ctx context.Context) (*dto.ProductListResponse, error) {
	products, err := s.productRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	resp := dto.ToProductListResponse(products)
	return &resp, nil
}

// GetByID reads through the cache. Inactive products are still returned so
// order history can link to them.
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := ProductCacheKey(id)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := dto.ToProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}

	return &resp, nil
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if req.Price == nil || req.Price.IsNegative() {
		return nil, validation("price must be zero or greater")
	}
	if req.StockQuantity < 0 {
		return nil, validation("stock quantity must be zero or greater")
	}
	product := &model.Product{
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Price:         req.Price.Round(2),
		ImageURL:      req.ImageURL,
		Category:      req.Category,
		StockQuantity: req.StockQuantity,
		IsActive:      true,
	}
	if product.Name == "" {
		return nil, validation("name is required")
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := dto.ToProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
		if product.Name == "" {
			return nil, validation("name is required")
		}
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, validation("price must be zero or greater")
		}
		product.Price = req.Price.Round(2)
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return nil, validation("stock quantity must be zero or greater")
		}
		product.StockQuantity = *req.StockQuantity
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.InvalidateProducts(ctx, id)
	resp := dto.ToProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		if errors.Is(err, repository.ErrReferenced) {
			return ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.InvalidateProducts(ctx, id)
	return nil
}

// InvalidateProducts drops cached entries. Cache errors are ignored; entries
// expire on their own.
func (s *ProductService) InvalidateProducts(ctx context.Context, ids ...uuid.UUID) {
	if s.redisClient == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ProductCacheKey(id)
	}
	s.redisClient.Del(ctx, keys...)
}
