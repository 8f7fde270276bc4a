package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (c *recordingCache) InvalidateProducts(_ context.Context, ids ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ids...)
}

type fixture struct {
	store     *memStore
	publisher *recordingPublisher
	cache     *recordingCache

	auth     *AuthService
	products *ProductService
	cart     *CartService
	orders   *OrderService
	reviews  *ReviewService
}

func newFixture(t *testing.T, policy StatusPolicy) *fixture {
	t.Helper()
	store := newMemStore()
	publisher := &recordingPublisher{}
	cache := &recordingCache{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := memUserRepo{store}
	products := memProductRepo{store}
	carts := memCartRepo{store}
	orders := memOrderRepo{store}
	reviews := memReviewRepo{store}

	return &fixture{
		store:     store,
		publisher: publisher,
		cache:     cache,
		auth:      NewAuthService(users, "test-secret", time.Hour),
		products:  NewProductService(products, nil),
		cart:      NewCartService(carts, products),
		orders:    NewOrderService(store, orders, carts, products, policy, cache, publisher, logger),
		reviews:   NewReviewService(store, reviews, orders, products, cache, publisher, logger),
	}
}

func (f *fixture) seedUser(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x"}
	require.NoError(t, memUserRepo{f.store}.Create(context.Background(), u))
	return u
}

func (f *fixture) seedAdmin(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x"}
	require.NoError(t, memUserRepo{f.store}.UpsertAdmin(context.Background(), u))
	return u
}

func (f *fixture) seedProduct(t *testing.T, name, price string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{
		Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock,
		Category: "general", IsActive: true,
	}
	require.NoError(t, memProductRepo{f.store}.Create(context.Background(), p))
	return p
}

func (f *fixture) addToCart(t *testing.T, userID, productID uuid.UUID, qty int) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), userID, productID, qty)
	require.NoError(t, err)
}

func (f *fixture) checkout(userID uuid.UUID) (*model.Order, error) {
	return f.orders.Checkout(context.Background(), userID, dto.CheckoutRequest{
		ShippingAddress: "1 Main St", PaymentMethod: "card",
	})
}

// deliveredOrder places an order for one unit of productID and marks it delivered.
func (f *fixture) deliveredOrder(t *testing.T, userID, productID uuid.UUID) *model.Order {
	t.Helper()
	f.addToCart(t, userID, productID, 1)
	order, err := f.checkout(userID)
	require.NoError(t, err)
	f.store.setOrderStatus(order.ID, model.OrderStatusDelivered)
	return order
}
