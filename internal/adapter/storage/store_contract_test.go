package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

type seeder interface {
	SeedSeller(sellerID string, balance decimal.Decimal)
	SeedListing(l domain.Listing)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8] + "@test.local"
}

func testListing(sellerID string, id int64, qty int, price string) domain.Listing {
	return domain.Listing{
		SellerID:    sellerID,
		ListingID:   id,
		Category:    "Tools",
		Title:       "Hammer",
		Name:        "Claw hammer",
		Description: "16oz",
		Quantity:    qty,
		UnitPrice:   money(price),
		Status:      domain.DeriveStatus(qty, domain.ListingStatusActive),
	}
}

func runStoreContract(t *testing.T, store port.Store, seed seeder) {
	ctx := context.Background()

	t.Run("listings", func(t *testing.T) {
		seller := uniqueID("seller")
		seed.SeedSeller(seller, money("0"))

		next, err := store.NextListingID(ctx, seller)
		require.NoError(t, err)
		assert.Equal(t, int64(1), next)

		l := testListing(seller, 1, 5, "19.99")
		require.NoError(t, store.InsertListing(ctx, l))
		assert.ErrorIs(t, store.InsertListing(ctx, l), port.ErrDuplicate)

		next, err = store.NextListingID(ctx, seller)
		require.NoError(t, err)
		assert.Equal(t, int64(2), next)

		got, err := store.GetListing(ctx, l.Key())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Hammer", got.Title)
		assert.True(t, got.UnitPrice.Equal(money("19.99")))

		l.Title = "Better hammer"
		l.Status = domain.ListingStatusInactive
		require.NoError(t, store.UpdateListing(ctx, l))

		all, err := store.ListListingsBySeller(ctx, seller)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Better hammer", all[0].Title)
		assert.Equal(t, domain.ListingStatusInactive, all[0].Status)

		missing, err := store.GetListing(ctx, domain.ListingKey{SellerID: seller, ListingID: 99})
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("decrement is guarded", func(t *testing.T) {
		seller := uniqueID("seller")
		seed.SeedSeller(seller, money("0"))
		l := testListing(seller, 1, 1, "5.00")
		seed.SeedListing(l)

		require.NoError(t, store.DecrementListingQuantity(ctx, l.Key(), 1, domain.ListingStatusOutOfStockOrSold))
		got, err := store.GetListing(ctx, l.Key())
		require.NoError(t, err)
		assert.Equal(t, 0, got.Quantity)
		assert.Equal(t, domain.ListingStatusOutOfStockOrSold, got.Status)

		err = store.DecrementListingQuantity(ctx, l.Key(), 1, domain.ListingStatusOutOfStockOrSold)
		assert.ErrorIs(t, err, port.ErrGuardFailed)
	})

	t.Run("seller balance", func(t *testing.T) {
		seller := uniqueID("seller")
		seed.SeedSeller(seller, money("1.00"))

		require.NoError(t, store.DebitSeller(ctx, seller, money("0.4995")))
		assert.ErrorIs(t, store.DebitSeller(ctx, seller, money("1")), port.ErrGuardFailed)
		require.NoError(t, store.CreditSeller(ctx, seller, money("2")))

		acct, err := store.GetSeller(ctx, seller)
		require.NoError(t, err)
		require.NotNil(t, acct)
		assert.True(t, acct.Balance.Equal(money("2.5005")), "balance %s", acct.Balance)

		none, err := store.GetSeller(ctx, uniqueID("ghost"))
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("cart", func(t *testing.T) {
		seller := uniqueID("seller")
		buyer := uniqueID("buyer")
		seed.SeedSeller(seller, money("0"))
		first := testListing(seller, 1, 5, "2.50")
		second := testListing(seller, 2, 5, "3.00")
		seed.SeedListing(first)
		seed.SeedListing(second)

		require.NoError(t, store.InsertCartLine(ctx, domain.CartLine{BuyerID: buyer, SellerID: seller, ListingID: 2, Quantity: 1}))
		require.NoError(t, store.InsertCartLine(ctx, domain.CartLine{BuyerID: buyer, SellerID: seller, ListingID: 1, Quantity: 2}))
		err := store.InsertCartLine(ctx, domain.CartLine{BuyerID: buyer, SellerID: seller, ListingID: 1, Quantity: 1})
		assert.ErrorIs(t, err, port.ErrDuplicate)

		entries, err := store.ListCart(ctx, buyer)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, int64(2), entries[0].Line.ListingID, "insertion order")
		assert.True(t, entries[1].Listing.UnitPrice.Equal(money("2.50")))

		require.NoError(t, store.UpdateCartLineQuantity(ctx, buyer, first.Key(), 4))
		line, err := store.GetCartLine(ctx, buyer, first.Key())
		require.NoError(t, err)
		require.NotNil(t, line)
		assert.Equal(t, 4, line.Quantity)

		require.NoError(t, store.DeleteCartLine(ctx, buyer, second.Key()))
		assert.ErrorIs(t, store.DeleteCartLine(ctx, buyer, second.Key()), port.ErrGuardFailed)

		locked, err := store.ListCartForUpdate(ctx, buyer)
		require.NoError(t, err)
		assert.Len(t, locked, 1)

		require.NoError(t, store.DeleteCart(ctx, buyer))
		entries, err = store.ListCart(ctx, buyer)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("orders and reviews", func(t *testing.T) {
		seller := uniqueID("seller")
		buyer := uniqueID("buyer")
		seed.SeedSeller(seller, money("0"))
		seed.SeedListing(testListing(seller, 1, 5, "10.00"))

		var ids []int64
		for _, rating := range []int{5, 2} {
			id, err := store.InsertOrder(ctx, domain.Order{
				SellerID: seller, ListingID: 1, BuyerID: buyer,
				Date: "2024/3/7", Quantity: 1, Payment: money("10.00"),
			})
			require.NoError(t, err)
			assert.Positive(t, id)
			ids = append(ids, id)
			require.NoError(t, store.InsertReview(ctx, domain.Review{OrderID: id, Rating: rating, Description: "ok"}))
		}

		err := store.InsertReview(ctx, domain.Review{OrderID: ids[0], Rating: 1})
		assert.ErrorIs(t, err, port.ErrDuplicate)

		o, err := store.GetOrderForBuyer(ctx, ids[0], buyer)
		require.NoError(t, err)
		require.NotNil(t, o)
		assert.Equal(t, "2024/3/7", o.Date)
		assert.True(t, o.Payment.Equal(money("10")))

		other, err := store.GetOrderForBuyer(ctx, ids[0], uniqueID("buyer"))
		require.NoError(t, err)
		assert.Nil(t, other)

		orders, err := store.ListOrdersByBuyer(ctx, buyer)
		require.NoError(t, err)
		assert.Len(t, orders, 2)

		rv, err := store.GetReview(ctx, ids[1])
		require.NoError(t, err)
		require.NotNil(t, rv)
		assert.Equal(t, 2, rv.Rating)

		totals, err := store.SellerRatingTotals(ctx, []string{seller, uniqueID("nobody")})
		require.NoError(t, err)
		assert.Equal(t, domain.RatingTotals{Sum: 7, Count: 2}, totals[seller])
		assert.Len(t, totals, 1)
	})

	t.Run("transaction rollback and commit", func(t *testing.T) {
		seller := uniqueID("seller")
		seed.SeedSeller(seller, money("10"))
		boom := errors.New("boom")

		err := store.WithTx(ctx, func(ctx context.Context, repo port.Repository) error {
			if _, err := repo.GetSellerForUpdate(ctx, seller); err != nil {
				return err
			}
			if err := repo.DebitSeller(ctx, seller, money("4")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		acct, err := store.GetSeller(ctx, seller)
		require.NoError(t, err)
		assert.True(t, acct.Balance.Equal(money("10")), "rolled back balance %s", acct.Balance)

		err = store.WithTx(ctx, func(ctx context.Context, repo port.Repository) error {
			return repo.DebitSeller(ctx, seller, money("4"))
		})
		require.NoError(t, err)

		acct, err = store.GetSeller(ctx, seller)
		require.NoError(t, err)
		assert.True(t, acct.Balance.Equal(money("6")), "committed balance %s", acct.Balance)
	})

	t.Run("promotions", func(t *testing.T) {
		seller := uniqueID("seller")
		seed.SeedSeller(seller, money("0"))
		active := testListing(seller, 1, 5, "20.00")
		inactive := testListing(seller, 2, 5, "30.00")
		inactive.Status = domain.ListingStatusInactive
		seed.SeedListing(active)
		seed.SeedListing(inactive)

		start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpsertPromotion(ctx, domain.PromotedListing{SellerID: seller, ListingID: 1, PromotionStartTime: start, Fee: money("1")}))
		require.NoError(t, store.UpsertPromotion(ctx, domain.PromotedListing{SellerID: seller, ListingID: 1, PromotionStartTime: start.Add(time.Hour), Fee: money("1")}))
		require.NoError(t, store.UpsertPromotion(ctx, domain.PromotedListing{SellerID: seller, ListingID: 2, PromotionStartTime: start, Fee: money("1.5")}))

		promos, err := store.ListPromotionsBySeller(ctx, seller)
		require.NoError(t, err)
		require.Len(t, promos, 2)
		assert.Equal(t, int64(1), promos[0].ListingID)
		assert.True(t, promos[0].PromotionStartTime.Equal(start.Add(time.Hour)))

		listed, err := store.ListPromotedListings(ctx)
		require.NoError(t, err)
		var mine []domain.Listing
		for _, l := range listed {
			if l.SellerID == seller {
				mine = append(mine, l)
			}
		}
		require.Len(t, mine, 1)
		assert.Equal(t, int64(1), mine[0].ListingID)
	})
}
