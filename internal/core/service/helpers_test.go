package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

var fixedNow = time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(typ string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store    *storage.MemoryAdapter
	idem     *storage.MemoryIdempotency
	events   *recordingPublisher
	deps     Deps
	ratings  *RatingService
	cart     *CartService
	checkout *CheckoutService
	promo    *PromotionService
	reviews  *ReviewService
	catalog  *CatalogService
	orders   *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryAdapter()
	return newFixtureWithStore(t, store, store)
}

func newFixtureWithStore(t *testing.T, mem *storage.MemoryAdapter, store port.Store) *fixture {
	t.Helper()
	f := &fixture{
		store:  mem,
		idem:   storage.NewMemoryIdempotency(time.Hour),
		events: &recordingPublisher{},
	}
	f.deps = Deps{
		Store:         store,
		Idempotency:   f.idem,
		Events:        f.events,
		TxMaxAttempts: 2,
		Now:           func() time.Time { return fixedNow },
	}
	f.ratings = NewRatingService(store)
	f.cart = NewCartService(f.deps, f.ratings)
	f.checkout = NewCheckoutService(f.deps)
	f.promo = NewPromotionService(f.deps, f.ratings)
	f.reviews = NewReviewService(f.deps)
	f.catalog = NewCatalogService(f.deps, f.ratings)
	f.orders = NewOrderService(f.deps)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) seedListing(sellerID string, id int64, qty int, price string) domain.Listing {
	l := domain.Listing{
		SellerID:    sellerID,
		ListingID:   id,
		Category:    "Electronics",
		Title:       "Listing " + sellerID,
		Name:        "Widget",
		Description: "A widget",
		Quantity:    qty,
		UnitPrice:   dec(price),
		Status:      domain.DeriveStatus(qty, domain.ListingStatusActive),
	}
	f.store.SeedListing(l)
	return l
}

func (f *fixture) listing(t *testing.T, key domain.ListingKey) domain.Listing {
	t.Helper()
	l, err := f.store.GetListing(context.Background(), key)
	if err != nil || l == nil {
		t.Fatalf("listing %s: %v", key, err)
	}
	return *l
}

func (f *fixture) balance(t *testing.T, sellerID string) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetSeller(context.Background(), sellerID)
	if err != nil || a == nil {
		t.Fatalf("seller %s: %v", sellerID, err)
	}
	return a.Balance
}

// conflictStore fails the first n transactions with a lock conflict.
type conflictStore struct {
	*storage.MemoryAdapter
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *conflictStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo port.Repository) error) error {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()
	if fail {
		return port.ErrTxConflict
	}
	return c.MemoryAdapter.WithTx(ctx, fn)
}
