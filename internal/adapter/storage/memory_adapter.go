package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

type memState struct {
	sellers     map[string]decimal.Decimal
	listings    map[domain.ListingKey]domain.Listing
	orders      []domain.Order
	reviews     map[int64]domain.Review
	cart        []domain.CartLine
	promotions  map[domain.ListingKey]domain.PromotedListing
	nextOrderID int64
}

func newMemState() *memState {
	return &memState{
		sellers:     make(map[string]decimal.Decimal),
		listings:    make(map[domain.ListingKey]domain.Listing),
		reviews:     make(map[int64]domain.Review),
		promotions:  make(map[domain.ListingKey]domain.PromotedListing),
		nextOrderID: 1,
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		sellers:     make(map[string]decimal.Decimal, len(s.sellers)),
		listings:    make(map[domain.ListingKey]domain.Listing, len(s.listings)),
		orders:      append([]domain.Order(nil), s.orders...),
		reviews:     make(map[int64]domain.Review, len(s.reviews)),
		cart:        append([]domain.CartLine(nil), s.cart...),
		promotions:  make(map[domain.ListingKey]domain.PromotedListing, len(s.promotions)),
		nextOrderID: s.nextOrderID,
	}
	for k, v := range s.sellers {
		c.sellers[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	return c
}

func (s *memState) cartIndex(buyerID string, key domain.ListingKey) int {
	for i, l := range s.cart {
		if l.BuyerID == buyerID && l.SellerID == key.SellerID && l.ListingID == key.ListingID {
			return i
		}
	}
	return -1
}

// MemoryAdapter is an in-process Store. Transactions run one at a time against
// a copy of the state that replaces the live state on commit.
type MemoryAdapter struct {
	*memRepo

	mu    sync.Mutex
	state *memState
}

func NewMemoryAdapter() *MemoryAdapter {
	m := &MemoryAdapter{state: newMemState()}
	m.memRepo = &memRepo{adapter: m}
	return m
}

func (m *MemoryAdapter) WithTx(ctx context.Context, fn func(ctx context.Context, repo port.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(ctx, &memRepo{state: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// SeedSeller creates or overwrites a seller account.
func (m *MemoryAdapter) SeedSeller(sellerID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.sellers[sellerID] = balance
}

// SeedListing inserts or overwrites a listing as-is.
func (m *MemoryAdapter) SeedListing(l domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.listings[l.Key()] = l
}

// memRepo is bound either to the adapter (each call locks) or to a transaction's working state.
type memRepo struct {
	adapter *MemoryAdapter
	state   *memState
}

func (r *memRepo) do(ctx context.Context, fn func(s *memState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.adapter != nil {
		r.adapter.mu.Lock()
		defer r.adapter.mu.Unlock()
		return fn(r.adapter.state)
	}
	return fn(r.state)
}

func (r *memRepo) GetListing(ctx context.Context, key domain.ListingKey) (*domain.Listing, error) {
	var out *domain.Listing
	err := r.do(ctx, func(s *memState) error {
		if l, ok := s.listings[key]; ok {
			out = &l
		}
		return nil
	})
	return out, err
}

func (r *memRepo) GetListingForUpdate(ctx context.Context, key domain.ListingKey) (*domain.Listing, error) {
	return r.GetListing(ctx, key)
}

func (r *memRepo) ListListingsBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	var out []domain.Listing
	err := r.do(ctx, func(s *memState) error {
		for _, l := range s.listings {
			if l.SellerID == sellerID {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out, err
}

func (r *memRepo) NextListingID(ctx context.Context, sellerID string) (int64, error) {
	var next int64 = 1
	err := r.do(ctx, func(s *memState) error {
		for k := range s.listings {
			if k.SellerID == sellerID && k.ListingID >= next {
				next = k.ListingID + 1
			}
		}
		return nil
	})
	return next, err
}

func (r *memRepo) InsertListing(ctx context.Context, listing domain.Listing) error {
	return r.do(ctx, func(s *memState) error {
		if _, ok := s.listings[listing.Key()]; ok {
			return port.ErrDuplicate
		}
		s.listings[listing.Key()] = listing
		return nil
	})
}

func (r *memRepo) UpdateListing(ctx context.Context, listing domain.Listing) error {
	return r.do(ctx, func(s *memState) error {
		if _, ok := s.listings[listing.Key()]; !ok {
			return port.ErrGuardFailed
		}
		s.listings[listing.Key()] = listing
		return nil
	})
}

func (r *memRepo) DecrementListingQuantity(ctx context.Context, key domain.ListingKey, qty int, status domain.ListingStatus) error {
	return r.do(ctx, func(s *memState) error {
		l, ok := s.listings[key]
		if !ok || l.Quantity < qty {
			return port.ErrGuardFailed
		}
		l.Quantity -= qty
		l.Status = status
		s.listings[key] = l
		return nil
	})
}

func (r *memRepo) GetSeller(ctx context.Context, sellerID string) (*domain.SellerAccount, error) {
	var out *domain.SellerAccount
	err := r.do(ctx, func(s *memState) error {
		if b, ok := s.sellers[sellerID]; ok {
			out = &domain.SellerAccount{SellerID: sellerID, Balance: b}
		}
		return nil
	})
	return out, err
}

func (r *memRepo) GetSellerForUpdate(ctx context.Context, sellerID string) (*domain.SellerAccount, error) {
	return r.GetSeller(ctx, sellerID)
}

func (r *memRepo) CreditSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	return r.do(ctx, func(s *memState) error {
		b, ok := s.sellers[sellerID]
		if !ok {
			return port.ErrGuardFailed
		}
		s.sellers[sellerID] = b.Add(amount)
		return nil
	})
}

func (r *memRepo) DebitSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	return r.do(ctx, func(s *memState) error {
		b, ok := s.sellers[sellerID]
		if !ok || b.LessThan(amount) {
			return port.ErrGuardFailed
		}
		s.sellers[sellerID] = b.Sub(amount)
		return nil
	})
}

func (r *memRepo) InsertOrder(ctx context.Context, order domain.Order) (int64, error) {
	var id int64
	err := r.do(ctx, func(s *memState) error {
		id = s.nextOrderID
		s.nextOrderID++
		order.ID = id
		s.orders = append(s.orders, order)
		return nil
	})
	return id, err
}

func (r *memRepo) GetOrderForBuyer(ctx context.Context, orderID int64, buyerID string) (*domain.Order, error) {
	var out *domain.Order
	err := r.do(ctx, func(s *memState) error {
		for _, o := range s.orders {
			if o.ID == orderID && o.BuyerID == buyerID {
				o := o
				out = &o
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *memRepo) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	var out []domain.Order
	err := r.do(ctx, func(s *memState) error {
		for _, o := range s.orders {
			if o.BuyerID == buyerID {
				out = append(out, o)
			}
		}
		return nil
	})
	return out, err
}

func (r *memRepo) GetReview(ctx context.Context, orderID int64) (*domain.Review, error) {
	var out *domain.Review
	err := r.do(ctx, func(s *memState) error {
		if rv, ok := s.reviews[orderID]; ok {
			out = &rv
		}
		return nil
	})
	return out, err
}

func (r *memRepo) InsertReview(ctx context.Context, review domain.Review) error {
	return r.do(ctx, func(s *memState) error {
		if _, ok := s.reviews[review.OrderID]; ok {
			return port.ErrDuplicate
		}
		s.reviews[review.OrderID] = review
		return nil
	})
}

func (r *memRepo) SellerRatingTotals(ctx context.Context, sellerIDs []string) (map[string]domain.RatingTotals, error) {
	out := make(map[string]domain.RatingTotals)
	want := make(map[string]bool, len(sellerIDs))
	for _, id := range sellerIDs {
		want[id] = true
	}
	err := r.do(ctx, func(s *memState) error {
		for _, o := range s.orders {
			rv, ok := s.reviews[o.ID]
			if !ok {
				continue
			}
			if len(want) > 0 && !want[o.SellerID] {
				continue
			}
			t := out[o.SellerID]
			t.Sum += int64(rv.Rating)
			t.Count++
			out[o.SellerID] = t
		}
		return nil
	})
	return out, err
}

func (r *memRepo) GetCartLine(ctx context.Context, buyerID string, key domain.ListingKey) (*domain.CartLine, error) {
	var out *domain.CartLine
	err := r.do(ctx, func(s *memState) error {
		if i := s.cartIndex(buyerID, key); i >= 0 {
			l := s.cart[i]
			out = &l
		}
		return nil
	})
	return out, err
}

func (r *memRepo) InsertCartLine(ctx context.Context, line domain.CartLine) error {
	return r.do(ctx, func(s *memState) error {
		if s.cartIndex(line.BuyerID, line.ListingKey()) >= 0 {
			return port.ErrDuplicate
		}
		if _, ok := s.listings[line.ListingKey()]; !ok {
			return port.ErrGuardFailed
		}
		s.cart = append(s.cart, line)
		return nil
	})
}

func (r *memRepo) UpdateCartLineQuantity(ctx context.Context, buyerID string, key domain.ListingKey, qty int) error {
	return r.do(ctx, func(s *memState) error {
		i := s.cartIndex(buyerID, key)
		if i < 0 {
			return port.ErrGuardFailed
		}
		s.cart[i].Quantity = qty
		return nil
	})
}

func (r *memRepo) DeleteCartLine(ctx context.Context, buyerID string, key domain.ListingKey) error {
	return r.do(ctx, func(s *memState) error {
		i := s.cartIndex(buyerID, key)
		if i < 0 {
			return port.ErrGuardFailed
		}
		s.cart = append(s.cart[:i], s.cart[i+1:]...)
		return nil
	})
}

func (r *memRepo) DeleteCartLinesForListing(ctx context.Context, key domain.ListingKey) error {
	return r.do(ctx, func(s *memState) error {
		kept := s.cart[:0]
		for _, l := range s.cart {
			if l.ListingKey() != key {
				kept = append(kept, l)
			}
		}
		s.cart = kept
		return nil
	})
}

func (r *memRepo) DeleteCart(ctx context.Context, buyerID string) error {
	return r.do(ctx, func(s *memState) error {
		kept := s.cart[:0]
		for _, l := range s.cart {
			if l.BuyerID != buyerID {
				kept = append(kept, l)
			}
		}
		s.cart = kept
		return nil
	})
}

func (r *memRepo) ListCart(ctx context.Context, buyerID string) ([]domain.CartEntry, error) {
	var out []domain.CartEntry
	err := r.do(ctx, func(s *memState) error {
		for _, l := range s.cart {
			if l.BuyerID != buyerID {
				continue
			}
			listing, ok := s.listings[l.ListingKey()]
			if !ok {
				continue
			}
			out = append(out, domain.CartEntry{Line: l, Listing: listing})
		}
		return nil
	})
	return out, err
}

func (r *memRepo) ListCartForUpdate(ctx context.Context, buyerID string) ([]domain.CartLine, error) {
	var out []domain.CartLine
	err := r.do(ctx, func(s *memState) error {
		for _, l := range s.cart {
			if l.BuyerID == buyerID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

func (r *memRepo) UpsertPromotion(ctx context.Context, promo domain.PromotedListing) error {
	return r.do(ctx, func(s *memState) error {
		key := domain.ListingKey{SellerID: promo.SellerID, ListingID: promo.ListingID}
		if _, ok := s.listings[key]; !ok {
			return port.ErrGuardFailed
		}
		s.promotions[key] = promo
		return nil
	})
}

func (r *memRepo) ListPromotionsBySeller(ctx context.Context, sellerID string) ([]domain.PromotedListing, error) {
	var out []domain.PromotedListing
	err := r.do(ctx, func(s *memState) error {
		for _, p := range s.promotions {
			if p.SellerID == sellerID {
				out = append(out, p)
			}
		}
		return nil
	})
	sortPromotions(out)
	return out, err
}

func (r *memRepo) ListPromotedListings(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	err := r.do(ctx, func(s *memState) error {
		promos := make([]domain.PromotedListing, 0, len(s.promotions))
		for _, p := range s.promotions {
			promos = append(promos, p)
		}
		sortPromotions(promos)
		for _, p := range promos {
			l, ok := s.listings[domain.ListingKey{SellerID: p.SellerID, ListingID: p.ListingID}]
			if ok && l.Status != domain.ListingStatusInactive {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

// sortPromotions orders newest first, matching the SQL adapters.
func sortPromotions(p []domain.PromotedListing) {
	sort.Slice(p, func(i, j int) bool {
		if !p[i].PromotionStartTime.Equal(p[j].PromotionStartTime) {
			return p[i].PromotionStartTime.After(p[j].PromotionStartTime)
		}
		return domain.ListingKey{SellerID: p[i].SellerID, ListingID: p[i].ListingID}.
			Less(domain.ListingKey{SellerID: p[j].SellerID, ListingID: p[j].ListingID})
	})
}
