package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusPaymentPending  OrderStatus = "payment_pending"
	OrderStatusPaymentReceived OrderStatus = "payment_received"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCanceled        OrderStatus = "canceled"
)

// OrderLifecycle lists the forward path. Canceled sits outside it.
var OrderLifecycle = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPaymentPending,
	OrderStatusPaymentReceived,
	OrderStatusDelivered,
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPaymentPending,
		OrderStatusPaymentReceived, OrderStatusDelivered, OrderStatusCanceled:
		return status, true
	}
	return "", false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	UserEmail       string
	Status          OrderStatus
	TotalAmount     decimal.Decimal
	ShippingAddress string
	PaymentMethod   string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	ProductName  string
	ProductImage string
	Quantity     int
	PriceAtTime  decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// HasProduct reports whether the order contains a line for productID.
func (o *Order) HasProduct(productID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Event types published after a committed change.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventReviewSubmitted    = "review.submitted"
)

type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	OrderID    uuid.UUID   `json:"order_id"`
	UserID     uuid.UUID   `json:"user_id"`
	ProductIDs []uuid.UUID `json:"product_ids,omitempty"`
	Status     OrderStatus `json:"status,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
