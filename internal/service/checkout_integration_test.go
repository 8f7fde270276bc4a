//go:build integration

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
	"github.com/flicky/storehub-api/internal/testutil"
)

var pgPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pg, err := testutil.SetupPostgres(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up postgres: %v\n", err)
		os.Exit(1)
	}
	pgPool = pg.Pool

	code := m.Run()
	pg.Cleanup()
	os.Exit(code)
}

type pgFixture struct {
	users    repository.UserRepository
	products repository.ProductRepository
	carts    repository.CartRepository
	cart     *CartService
	orders   *OrderService
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	require.NoError(t, testutil.TruncateAll(context.Background(), pgPool))

	users := repository.NewUserRepository(pgPool)
	products := repository.NewProductRepository(pgPool)
	carts := repository.NewCartRepository(pgPool)
	orders := repository.NewOrderRepository(pgPool)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &pgFixture{
		users:    users,
		products: products,
		carts:    carts,
		cart:     NewCartService(carts, products),
		orders: NewOrderService(repository.NewTransactor(pgPool), orders, carts, products,
			nil, nil, nil, logger),
	}
}

func (f *pgFixture) user(t *testing.T, email string) uuid.UUID {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID
}

func (f *pgFixture) product(t *testing.T, name, price string, stock int) uuid.UUID {
	t.Helper()
	p := &model.Product{
		Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock, IsActive: true,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p.ID
}

func (f *pgFixture) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.StockQuantity
}

func (f *pgFixture) checkout(userID uuid.UUID) (*model.Order, error) {
	return f.orders.Checkout(context.Background(), userID, dto.CheckoutRequest{
		ShippingAddress: "1 Main St", PaymentMethod: "card",
	})
}

func countOrders(t *testing.T) (orders, items int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, pgPool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	require.NoError(t, pgPool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&items))
	return orders, items
}

func TestCheckout_Postgres_ConcurrentCartsNeverOversell(t *testing.T) {
	const stock = 3

	for round := 0; round < 5; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			f := newPgFixture(t)
			productID := f.product(t, "Limited", "9.99", stock)
			buyers := []uuid.UUID{f.user(t, "one@example.com"), f.user(t, "two@example.com")}
			for _, u := range buyers {
				_, err := f.cart.AddItem(context.Background(), u, productID, stock)
				require.NoError(t, err)
			}

			var (
				wg    sync.WaitGroup
				start = make(chan struct{})
				errs  = make([]error, len(buyers))
			)
			for i, u := range buyers {
				wg.Add(1)
				go func(i int, userID uuid.UUID) {
					defer wg.Done()
					<-start
					_, errs[i] = f.checkout(userID)
				}(i, u)
			}
			close(start)
			wg.Wait()

			var ok, short int
			loser := uuid.Nil
			for i, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrInsufficientStock):
					short++
					loser = buyers[i]
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, 1, short)
			assert.Equal(t, 0, f.stock(t, productID))

			orders, items := countOrders(t)
			assert.Equal(t, 1, orders)
			assert.Equal(t, 1, items)

			lines, err := f.carts.ListLines(context.Background(), loser)
			require.NoError(t, err)
			require.Len(t, lines, 1)
			assert.Equal(t, stock, lines[0].Quantity)
		})
	}
}

func TestCheckout_Postgres_ShortItemWritesNothing(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	buyer := f.user(t, "buyer@example.com")
	plenty := f.product(t, "Plenty", "10.00", 5)
	scarce := f.product(t, "Scarce", "5.00", 1)

	_, err := f.cart.AddItem(ctx, buyer, plenty, 2)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, buyer, scarce, 1)
	require.NoError(t, err)

	// Another shopper takes the last Scarce after it went into this cart.
	require.NoError(t, repository.NewTransactor(pgPool).WithinTx(ctx, func(tx pgx.Tx) error {
		return f.products.DecrementStock(ctx, tx, scarce, 1)
	}))

	_, err = f.checkout(buyer)

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Scarce")

	orders, items := countOrders(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Equal(t, 5, f.stock(t, plenty))
	assert.Equal(t, 0, f.stock(t, scarce))

	lines, err := f.carts.ListLines(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	quantities := map[uuid.UUID]int{}
	for _, l := range lines {
		quantities[l.ProductID] = l.Quantity
	}
	assert.Equal(t, map[uuid.UUID]int{plenty: 2, scarce: 1}, quantities)
}

func TestCheckout_Postgres_CommitsOrderStockAndCart(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	buyer := f.user(t, "happy@example.com")
	a := f.product(t, "Alpha", "10.00", 4)
	b := f.product(t, "Beta", "5.00", 2)

	_, err := f.cart.AddItem(ctx, buyer, a, 2)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, buyer, b, 1)
	require.NoError(t, err)

	order, err := f.checkout(buyer)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("25.00").Equal(order.TotalAmount))
	assert.Equal(t, 2, f.stock(t, a))
	assert.Equal(t, 1, f.stock(t, b))

	lines, err := f.carts.ListLines(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, lines)

	orders, items := countOrders(t)
	assert.Equal(t, 1, orders)
	assert.Equal(t, 2, items)
}
