package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storehub-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"max=100"`
	LastName  string `json:"last_name" binding:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsAdmin   bool      `json:"is_admin"`
}

func ToUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID: u.ID, Email: u.Email,
		FirstName: u.FirstName, LastName: u.LastName, IsAdmin: u.IsAdmin,
	}
}

// --- Product ---

type CreateProductRequest struct {
	Name          string           `json:"name" binding:"required,max=255"`
	Description   string           `json:"description"`
	Price         *decimal.Decimal `json:"price" binding:"required"`
	ImageURL      string           `json:"image_url" binding:"omitempty,max=500"`
	Category      string           `json:"category" binding:"max=100"`
	StockQuantity int              `json:"stock_quantity" binding:"min=0"`
	IsActive      *bool            `json:"is_active"`
}

type UpdateProductRequest struct {
	Name          *string          `json:"name" binding:"omitempty,min=1,max=255"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	ImageURL      *string          `json:"image_url" binding:"omitempty,max=500"`
	Category      *string          `json:"category" binding:"omitempty,max=100"`
	StockQuantity *int             `json:"stock_quantity" binding:"omitempty,min=0"`
	IsActive      *bool            `json:"is_active"`
}

type ListProductsRequest struct {
	Category string `form:"category"`
	Search   string `form:"search"`
	Sort     string `form:"sort" binding:"omitempty,oneof=featured price-low price-high rating newest"`
}

type ProductResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	Category      string          `json:"category"`
	StockQuantity int             `json:"stock_quantity"`
	Rating        decimal.Decimal `json:"rating"`
	ReviewCount   int             `json:"review_count"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
}

func ToProductResponse(p *model.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		ImageURL:      p.ImageURL,
		Category:      p.Category,
		StockQuantity: p.StockQuantity,
		Rating:        p.Rating,
		ReviewCount:   p.ReviewCount,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func ToProductListResponse(products []model.Product) ProductListResponse {
	items := make([]ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, ToProductResponse(&products[i]))
	}
	return ProductListResponse{Products: items, Total: len(items)}
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type CartResponse struct {
	Items     []CartItemResponse `json:"items"`
	Total     decimal.Decimal    `json:"total"`
	ItemCount int                `json:"item_count"`
}

type CartItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	StockQuantity int             `json:"stock_quantity"`
	Quantity      int             `json:"quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type CartItemMutationResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func ToCartResponse(c *model.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(c.Items))
	for _, l := range c.Items {
		items = append(items, CartItemResponse{
			ID:            l.ID,
			ProductID:     l.ProductID,
			Name:          l.ProductName,
			Price:         l.ProductPrice,
			ImageURL:      l.ProductImage,
			StockQuantity: l.StockQuantity,
			Quantity:      l.Quantity,
			Subtotal:      l.Subtotal(),
		})
	}
	return CartResponse{Items: items, Total: c.Total, ItemCount: c.ItemCount}
}

func ToCartItemMutationResponse(item *model.CartItem) CartItemMutationResponse {
	return CartItemMutationResponse{ID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity}
}

// --- Order ---

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" binding:"required"`
	PaymentMethod   string `json:"payment_method" binding:"required,max=100"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	UserEmail       string              `json:"user_email,omitempty"`
	Status          model.OrderStatus   `json:"status"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ShippingAddress string              `json:"shipping_address"`
	PaymentMethod   string              `json:"payment_method"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Quantity     int             `json:"quantity"`
	PriceAtTime  decimal.Decimal `json:"price_at_time"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

func ToOrderResponse(o *model.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, i := range o.Items {
		items = append(items, OrderItemResponse{
			ID:           i.ID,
			ProductID:    i.ProductID,
			ProductName:  i.ProductName,
			ProductImage: i.ProductImage,
			Quantity:     i.Quantity,
			PriceAtTime:  i.PriceAtTime,
			Subtotal:     i.Subtotal(),
		})
	}
	return OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		UserEmail:       o.UserEmail,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func ToOrderListResponse(orders []model.Order) OrderListResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, ToOrderResponse(&orders[i]))
	}
	return OrderListResponse{Orders: out, Total: len(out)}
}

// --- Review ---

type SubmitReviewRequest struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	OrderID   uuid.UUID `json:"orderId" binding:"required"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment" binding:"max=2000"`
}

type ReviewResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	UserID    uuid.UUID `json:"user_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ToReviewResponse(r *model.Review) ReviewResponse {
	return ReviewResponse{
		ID: r.ID, ProductID: r.ProductID, UserID: r.UserID, OrderID: r.OrderID,
		Rating: r.Rating, Comment: r.Comment, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func ToReviewResponses(reviews []model.Review) []ReviewResponse {
	out := make([]ReviewResponse, 0, len(reviews))
	for i := range reviews {
		out = append(out, ToReviewResponse(&reviews[i]))
	}
	return out
}
