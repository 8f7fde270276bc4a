package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flicky/storehub-api/internal/apperr"
	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
)

// AdminOrderLimit caps the admin order overview.
const AdminOrderLimit = 50

var orderTracer = otel.Tracer("storehub/service/order")

// ProductCache drops cached product reads after stock or rating changes.
type ProductCache interface {
	InvalidateProducts(ctx context.Context, ids ...uuid.UUID)
}

type OrderService struct {
	tx          repository.Transactor
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	policy      StatusPolicy
	cache       ProductCache
	publisher   EventPublisher
	logger      *slog.Logger

	checkouts      metric.Int64Counter
	statusChanges  metric.Int64Counter
	checkoutAmount metric.Float64Histogram
}

func NewOrderService(
	tx repository.Transactor,
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	policy StatusPolicy,
	cache ProductCache,
	publisher EventPublisher,
	logger *slog.Logger,
) *OrderService {
	if policy == nil {
		policy = PermissivePolicy{}
	}
	if publisher == nil {
		publisher = NoopPublisher
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter("storehub/service/order")
	checkouts, _ := meter.Int64Counter("storehub.checkouts",
		metric.WithDescription("Checkout attempts by outcome"))
	statusChanges, _ := meter.Int64Counter("storehub.order.status_changes",
		metric.WithDescription("Order status updates by target status"))
	checkoutAmount, _ := meter.Float64Histogram("storehub.checkout.amount",
		metric.WithDescription("Total amount of committed orders"))

	return &OrderService{
		tx: tx, orderRepo: orderRepo, cartRepo: cartRepo, productRepo: productRepo,
		policy: policy, cache: cache, publisher: publisher, logger: logger,
		checkouts: checkouts, statusChanges: statusChanges, checkoutAmount: checkoutAmount,
	}
}

// Checkout turns the user's cart into a pending order in one transaction:
// lock cart and product rows, verify stock, snapshot prices, insert the order,
// decrement stock and empty the cart. On any error nothing is written.
func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID, req dto.CheckoutRequest) (*model.Order, error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.Checkout",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	address := strings.TrimSpace(req.ShippingAddress)
	payment := strings.TrimSpace(req.PaymentMethod)
	if address == "" {
		return nil, s.checkoutFailed(ctx, span, validation("shipping address is required"))
	}
	if payment == "" {
		return nil, s.checkoutFailed(ctx, span, validation("payment method is required"))
	}

	var order *model.Order
	err := s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		lines, err := s.cartRepo.LockLines(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		total := decimal.Zero
		items := make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			if l.StockQuantity < l.Quantity {
				return insufficientStock(l.ProductName)
			}
			total = total.Add(l.Subtotal())
			items = append(items, model.OrderItem{
				ProductID:    l.ProductID,
				ProductName:  l.ProductName,
				ProductImage: l.ProductImage,
				Quantity:     l.Quantity,
				PriceAtTime:  l.ProductPrice,
			})
		}

		o := &model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPending,
			TotalAmount:     total,
			ShippingAddress: address,
			PaymentMethod:   payment,
			Items:           items,
		}
		if err := s.orderRepo.Create(ctx, tx, o); err != nil {
			return err
		}

		for _, item := range o.Items {
			if err := s.productRepo.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return insufficientStock(item.ProductName)
				}
				return err
			}
		}

		if err := s.cartRepo.ClearTx(ctx, tx, userID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, s.checkoutFailed(ctx, span, fmt.Errorf("checkout: %w", err))
	}

	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	s.checkoutAmount.Record(ctx, order.TotalAmount.InexactFloat64())
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	productIDs := make([]uuid.UUID, len(order.Items))
	for i, item := range order.Items {
		productIDs[i] = item.ProductID
	}
	if s.cache != nil {
		s.cache.InvalidateProducts(ctx, productIDs...)
	}
	event := newEvent(model.EventOrderCreated, order.ID, userID)
	event.ProductIDs = productIDs
	event.Status = order.Status
	publish(ctx, s.publisher, s.logger, event)

	return order, nil
}

func (s *OrderService) checkoutFailed(ctx context.Context, span trace.Span, err error) error {
	kind := apperr.KindOf(err)
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", kind.String())))
	if kind == apperr.Internal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orderRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetByID returns the order to its owner or to an admin.
func (s *OrderService) GetByID(ctx context.Context, orderID uuid.UUID, user *model.User) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != user.ID && !user.IsAdmin {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

// ListAll returns the most recent orders of all users for the admin overview.
func (s *OrderService) ListAll(ctx context.Context) ([]model.Order, error) {
	orders, err := s.orderRepo.ListAll(ctx, AdminOrderLimit)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus sets an order's status. Unknown literals are rejected before
// any read; the configured policy decides which transitions are allowed.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*model.Order, error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.UpdateStatus",
		trace.WithAttributes(
			attribute.String("order.id", orderID.String()),
			attribute.String("order.status", status),
		))
	defer span.End()

	next, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	var order *model.Order
	err := s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		o, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		if !s.policy.Allow(o.Status, next) {
			return apperr.Newf(apperr.InvalidTransition, "cannot change status from %s to %s", o.Status, next)
		}
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, next); err != nil {
			return err
		}
		o.Status = next
		order = o
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	s.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(next))))
	event := newEvent(model.EventOrderStatusChanged, order.ID, order.UserID)
	event.Status = next
	for _, item := range order.Items {
		event.ProductIDs = append(event.ProductIDs, item.ProductID)
	}
	publish(ctx, s.publisher, s.logger, event)

	return order, nil
}
