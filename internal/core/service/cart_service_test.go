package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
)

func TestAddToCart_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.seedListing("seller@x", 1, 5, "12.50")

	require.NoError(t, f.cart.AddToCart(ctx, "buyer@x", l.Key(), 2))

	items, err := f.cart.GetCart(ctx, "buyer@x")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, l.Title, items[0].Product.Info.Title)
	assert.Equal(t, domain.RatingStats{}, items[0].Product.SellerStats)
}

func TestAddToCart_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.seedListing("seller@x", 1, 3, "1.00")
	inactive := f.seedListing("seller@x", 2, 3, "1.00")
	inactive.Status = domain.ListingStatusInactive
	f.store.SeedListing(inactive)
	soldOut := f.seedListing("seller@x", 3, 0, "1.00")

	require.NoError(t, f.cart.AddToCart(ctx, "buyer@x", l.Key(), 1))

	tests := []struct {
		name string
		key  domain.ListingKey
		qty  int
		want error
	}{
		{"already in cart", l.Key(), 1, domain.ErrAlreadyInCart},
		{"missing listing", domain.ListingKey{SellerID: "seller@x", ListingID: 99}, 1, domain.ErrProductNotFound},
		{"inactive listing", inactive.Key(), 1, domain.ErrProductNotFound},
		{"sold out listing", soldOut.Key(), 1, domain.ErrProductNotFound},
		{"zero quantity", l.Key(), 0, domain.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.cart.AddToCart(ctx, "buyer@x", tt.key, tt.qty)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("exceeds stock", func(t *testing.T) {
		err := f.cart.AddToCart(ctx, "other@x", l.Key(), 4)
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		var se *domain.InsufficientStockError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 3, se.Available)
		assert.Equal(t, 4, se.Requested)
		assert.Equal(t, domain.KindInsufficient, domain.KindOf(err))
	})
}

func TestUpdateCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.seedListing("seller@x", 1, 5, "2.00")

	err := f.cart.UpdateCart(ctx, "buyer@x", l.Key(), 2)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)

	require.NoError(t, f.cart.AddToCart(ctx, "buyer@x", l.Key(), 1))
	require.NoError(t, f.cart.UpdateCart(ctx, "buyer@x", l.Key(), 5))

	err = f.cart.UpdateCart(ctx, "buyer@x", l.Key(), 6)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	items, err := f.cart.GetCart(ctx, "buyer@x")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	require.NoError(t, f.cart.UpdateCart(ctx, "buyer@x", l.Key(), 0))
	items, err = f.cart.GetCart(ctx, "buyer@x")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRemoveAndEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedListing("seller@x", 1, 5, "2.00")
	b := f.seedListing("seller@x", 2, 5, "3.00")

	require.NoError(t, f.cart.AddToCart(ctx, "buyer@x", a.Key(), 1))
	require.NoError(t, f.cart.AddToCart(ctx, "buyer@x", b.Key(), 1))

	require.NoError(t, f.cart.RemoveFromCart(ctx, "buyer@x", a.Key()))
	require.NoError(t, f.cart.RemoveFromCart(ctx, "buyer@x", a.Key()), "removing twice is fine")

	items, err := f.cart.GetCart(ctx, "buyer@x")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Product.Info.ListingID)

	require.NoError(t, f.cart.EmptyCart(ctx, "buyer@x"))
	items, err = f.cart.GetCart(ctx, "buyer@x")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestGetCart_ReflectsLiveListingAndRatings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedSeller("seller@x", dec("0"))
	l := f.seedListing("seller@x", 1, 10, "4.00")

	for _, rating := range []int{5, 3} {
		id, err := f.store.InsertOrder(ctx, domain.Order{SellerID: "seller@x", ListingID: 1, BuyerID: "past@x", Quantity: 1, Payment: dec("4.00")})
		require.NoError(t, err)
		require.NoError(t, f.store.InsertReview(ctx, domain.Review{OrderID: id, Rating: rating}))
	}

	require.NoError(t, f.cart.AddToCart(ctx, "buyer@x", l.Key(), 1))
	l.UnitPrice = dec("5.00")
	f.store.SeedListing(l)

	items, err := f.cart.GetCart(ctx, "buyer@x")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Product.Info.UnitPrice.Equal(dec("5.00")))
	assert.Equal(t, domain.RatingStats{AvgRating: 4, ReviewCount: 2}, items[0].Product.SellerStats)
}

func TestAddToCart_ConflictExhaustsAttempts(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	store := &conflictStore{MemoryAdapter: mem, failures: 10}
	f := newFixtureWithStore(t, mem, store)
	l := f.seedListing("seller@x", 1, 5, "1.00")

	err := f.cart.AddToCart(context.Background(), "buyer@x", l.Key(), 1)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.NotErrorIs(t, err, domain.ErrCheckoutConflict)
	assert.Equal(t, "CONCURRENT_UPDATE", domain.CodeOf(err))
	assert.Equal(t, 2, store.calls)
}
