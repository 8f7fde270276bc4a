package service

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/repository"
)

var memEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// memStore is an in-memory stand-in for the database. WithinTx holds the store
// lock for the whole unit of work (so transactions are serializable) and
// restores a snapshot when fn fails. Methods that take a pgx.Tx assume the
// lock is held; the others take it themselves.
type memStore struct {
	mu sync.Mutex
	memState
	seq int

	// failDecrement makes DecrementStock fail for a product, after earlier
	// writes of the same transaction have been applied.
	failDecrement map[uuid.UUID]error
	commits       int
	rollbacks     int
}

type memState struct {
	users    map[uuid.UUID]model.User
	products map[uuid.UUID]model.Product
	cart     map[uuid.UUID]model.CartItem
	orders   map[uuid.UUID]model.Order
	reviews  map[uuid.UUID]model.Review
}

func newMemStore() *memStore {
	return &memStore{
		memState: memState{
			users:    map[uuid.UUID]model.User{},
			products: map[uuid.UUID]model.Product{},
			cart:     map[uuid.UUID]model.CartItem{},
			orders:   map[uuid.UUID]model.Order{},
			reviews:  map[uuid.UUID]model.Review{},
		},
		failDecrement: map[uuid.UUID]error{},
	}
}

func (s *memStore) tick() time.Time {
	s.seq++
	return memEpoch.Add(time.Duration(s.seq) * time.Millisecond)
}

func (s *memStore) snapshot() memState {
	orders := make(map[uuid.UUID]model.Order, len(s.orders))
	for id, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		orders[id] = o
	}
	return memState{
		users:    cloneMap(s.users),
		products: cloneMap(s.products),
		cart:     cloneMap(s.cart),
		orders:   orders,
		reviews:  cloneMap(s.reviews),
	}
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) WithinTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.memState = snap
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

// product and friends read committed state for assertions.
func (s *memStore) product(id uuid.UUID) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memStore) order(id uuid.UUID) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) counts() (orders, cartItems, reviews int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders), len(s.cart), len(s.reviews)
}

func (s *memStore) setOrderStatus(id uuid.UUID, status model.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	o.Status = status
	s.orders[id] = o
}

func (s *memStore) setPrice(id uuid.UUID, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Price = decimal.RequireFromString(price)
	s.products[id] = p
}

// --- users ---

type memUserRepo struct{ *memStore }

func (r memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = r.tick()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r memUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) UpsertAdmin(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.IsAdmin = true
	for id, u := range r.users {
		if u.Email == user.Email {
			u.PasswordHash = user.PasswordHash
			u.IsAdmin = true
			r.users[id] = u
			*user = u
			return nil
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = r.tick()
	r.users[user.ID] = *user
	return nil
}

// --- products ---

type memProductRepo struct{ *memStore }

func (r memProductRepo) Create(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	p.Rating = decimal.Zero
	p.CreatedAt = r.tick()
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = *p
	return nil
}

func (r memProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r memProductRepo) List(_ context.Context, filter model.ProductFilter) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, p := range r.products {
		if !p.IsActive {
			continue
		}
		if filter.Category != "" && filter.Category != "all" && p.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		switch filter.Sort {
		case model.SortPriceLow:
			return out[i].Price.LessThan(out[j].Price)
		case model.SortPriceHigh:
			return out[i].Price.GreaterThan(out[j].Price)
		case model.SortRating:
			return out[i].Rating.GreaterThan(out[j].Rating)
		case model.SortNewest:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r memProductRepo) ListAll(_ context.Context) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memProductRepo) Update(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	p.UpdatedAt = r.tick()
	r.products[p.ID] = *p
	return nil
}

func (r memProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return pgx.ErrNoRows
	}
	for _, o := range r.orders {
		if o.HasProduct(id) {
			return repository.ErrReferenced
		}
	}
	delete(r.products, id)
	for itemID, item := range r.cart {
		if item.ProductID == id {
			delete(r.cart, itemID)
		}
	}
	return nil
}

func (r memProductRepo) LockByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*model.Product, error) {
	if p, ok := r.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r memProductRepo) DecrementStock(_ context.Context, _ pgx.Tx, productID uuid.UUID, quantity int) error {
	if err := r.failDecrement[productID]; err != nil {
		return err
	}
	p, ok := r.products[productID]
	if !ok || p.StockQuantity < quantity {
		return repository.ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	r.products[productID] = p
	return nil
}

func (r memProductRepo) UpdateRating(_ context.Context, _ pgx.Tx, productID uuid.UUID, stats model.RatingStats) error {
	p := r.products[productID]
	p.Rating = stats.Average
	p.ReviewCount = stats.Count
	r.products[productID] = p
	return nil
}

// --- cart ---

type memCartRepo struct{ *memStore }

func (r memCartRepo) lines(userID uuid.UUID) []model.CartLine {
	var out []model.CartLine
	for _, item := range r.cart {
		if item.UserID != userID {
			continue
		}
		p, ok := r.products[item.ProductID]
		if !ok || !p.IsActive {
			continue
		}
		out = append(out, model.CartLine{
			CartItem:      item,
			ProductName:   p.Name,
			ProductPrice:  p.Price,
			ProductImage:  p.ImageURL,
			StockQuantity: p.StockQuantity,
		})
	}
	return out
}

func (r memCartRepo) ListLines(_ context.Context, userID uuid.UUID) ([]model.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.lines(userID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memCartRepo) GetItem(_ context.Context, userID, itemID uuid.UUID) (*model.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.cart[itemID]; ok && item.UserID == userID {
		return &item, nil
	}
	return nil, nil
}

func (r memCartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	for id, existing := range r.cart {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.UpdatedAt = now
			r.cart[id] = existing
			*item = existing
			return nil
		}
	}
	item.ID = uuid.New()
	item.CreatedAt = now
	item.UpdatedAt = now
	r.cart[item.ID] = *item
	return nil
}

func (r memCartRepo) UpdateQuantity(_ context.Context, item *model.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.cart[item.ID]
	if !ok || existing.UserID != item.UserID {
		return pgx.ErrNoRows
	}
	existing.Quantity = item.Quantity
	existing.UpdatedAt = r.tick()
	r.cart[item.ID] = existing
	*item = existing
	return nil
}

func (r memCartRepo) DeleteItem(_ context.Context, userID, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.cart[itemID]
	if !ok || item.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(r.cart, itemID)
	return nil
}

func (r memCartRepo) clear(userID uuid.UUID) {
	for id, item := range r.cart {
		if item.UserID == userID {
			delete(r.cart, id)
		}
	}
}

func (r memCartRepo) Clear(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear(userID)
	return nil
}

func (r memCartRepo) LockLines(_ context.Context, _ pgx.Tx, userID uuid.UUID) ([]model.CartLine, error) {
	out := r.lines(userID)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out, nil
}

func (r memCartRepo) ClearTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) error {
	r.clear(userID)
	return nil
}

// --- orders ---

type memOrderRepo struct{ *memStore }

func (r memOrderRepo) Create(_ context.Context, _ pgx.Tx, order *model.Order) error {
	order.ID = uuid.New()
	order.CreatedAt = r.tick()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = slices.Clone(order.Items)
	r.orders[order.ID] = stored
	return nil
}

func (r memOrderRepo) view(o model.Order) model.Order {
	o.UserEmail = r.users[o.UserID].Email
	o.Items = slices.Clone(o.Items)
	for i, item := range o.Items {
		if p, ok := r.products[item.ProductID]; ok {
			o.Items[i].ProductName = p.Name
			o.Items[i].ProductImage = p.ImageURL
		}
	}
	return o
}

func (r memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	v := r.view(o)
	return &v, nil
}

func (r memOrderRepo) sorted(keep func(model.Order) bool, limit int) []model.Order {
	var out []model.Order
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, r.view(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(o model.Order) bool { return o.UserID == userID }, 0), nil
}

func (r memOrderRepo) ListAll(_ context.Context, limit int) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(model.Order) bool { return true }, limit), nil
}

func (r memOrderRepo) LockByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*model.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	v := r.view(o)
	return &v, nil
}

func (r memOrderRepo) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status model.OrderStatus) error {
	o, ok := r.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Status = status
	o.UpdatedAt = r.tick()
	r.orders[id] = o
	return nil
}

// --- reviews ---

type memReviewRepo struct{ *memStore }

func (r memReviewRepo) Upsert(_ context.Context, _ pgx.Tx, review *model.Review) error {
	now := r.tick()
	for id, existing := range r.reviews {
		if existing.UserID == review.UserID && existing.ProductID == review.ProductID && existing.OrderID == review.OrderID {
			existing.Rating = review.Rating
			existing.Comment = review.Comment
			existing.UpdatedAt = now
			r.reviews[id] = existing
			*review = existing
			return nil
		}
	}
	review.ID = uuid.New()
	review.CreatedAt = now
	review.UpdatedAt = now
	r.reviews[review.ID] = *review
	return nil
}

func (r memReviewRepo) Stats(_ context.Context, _ pgx.Tx, productID uuid.UUID) (model.RatingStats, error) {
	sum, count := 0, 0
	for _, rv := range r.reviews {
		if rv.ProductID == productID {
			sum += rv.Rating
			count++
		}
	}
	if count == 0 {
		return model.RatingStats{Average: decimal.Zero}, nil
	}
	avg := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(count))).Round(1)
	return model.RatingStats{Average: avg, Count: count}, nil
}

func (r memReviewRepo) ListByProduct(_ context.Context, productID uuid.UUID) ([]model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Review
	for _, rv := range r.reviews {
		if rv.ProductID == productID {
			out = append(out, rv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
