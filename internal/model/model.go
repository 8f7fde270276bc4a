package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Price         decimal.Decimal
	ImageURL      string
	Category      string
	StockQuantity int
	Rating        decimal.Decimal
	ReviewCount   int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductFilter narrows catalog listings. Empty fields do not filter.
type ProductFilter struct {
	Category string
	Search   string
	Sort     string
}

const (
	SortFeatured  = "featured"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortRating    = "rating"
	SortNewest    = "newest"
)

// CartItem is one (user, product) line. Price is never stored here; it is read
// from the product whenever the cart is listed or checked out.
type CartItem struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine is a cart item joined with the live product it refers to.
type CartLine struct {
	CartItem
	ProductName   string
	ProductPrice  decimal.Decimal
	ProductImage  string
	StockQuantity int
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.ProductPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	UserID    uuid.UUID
	Items     []CartLine
	Total     decimal.Decimal
	ItemCount int
}

// NewCart computes the read-time totals for a list of lines.
func NewCart(userID uuid.UUID, lines []CartLine) *Cart {
	cart := &Cart{UserID: userID, Items: lines, Total: decimal.Zero}
	for _, l := range lines {
		cart.Total = cart.Total.Add(l.Subtotal())
		cart.ItemCount += l.Quantity
	}
	return cart
}

type Review struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	UserID    uuid.UUID
	OrderID   uuid.UUID
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingStats is the aggregate persisted onto a product after each review.
type RatingStats struct {
	Average decimal.Decimal
	Count   int
}
