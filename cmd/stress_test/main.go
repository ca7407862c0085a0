package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
)

const (
	sellerID      = "seller@stress"
	listingID     = 1
	initialStock  = 20
	totalRequests = 50
	unitPrice     = "9.99"
)

func main() {
	ctx := context.Background()

	store := storage.NewMemoryAdapter()
	store.SeedSeller(sellerID, decimal.Zero)
	store.SeedListing(domain.Listing{
		SellerID:  sellerID,
		ListingID: listingID,
		Category:  "Stress",
		Title:     "Flash sale item",
		Name:      "item",
		Quantity:  initialStock,
		UnitPrice: decimal.RequireFromString(unitPrice),
		Status:    domain.ListingStatusActive,
	})

	deps := service.Deps{Store: store, TxMaxAttempts: 2}
	ratings := service.NewRatingService(store)
	cart := service.NewCartService(deps, ratings)
	checkout := service.NewCheckoutService(deps)

	key := domain.ListingKey{SellerID: sellerID, ListingID: listingID}
	for i := 0; i < totalRequests; i++ {
		if err := cart.AddToCart(ctx, buyer(i), key, 1); err != nil {
			log.Fatalf("failed to fill cart for %s: %v", buyer(i), err)
		}
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent checkouts
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			if _, err := checkout.ConfirmCheckout(ctx, buyer(n), ""); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Checkouts:  %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d checkouts succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	listing, err := store.GetListing(ctx, key)
	if err != nil || listing == nil {
		log.Fatalf("failed to read listing: %v", err)
	}
	fmt.Printf("Final Stock:      %d (%s)\n", listing.Quantity, listing.Status)
	if listing.Quantity == 0 && listing.Status == domain.ListingStatusOutOfStockOrSold {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", listing.Quantity)
	}

	acct, err := store.GetSeller(ctx, sellerID)
	if err != nil || acct == nil {
		log.Fatalf("failed to read seller: %v", err)
	}
	want := domain.LinePayment(decimal.RequireFromString(unitPrice), initialStock)
	fmt.Printf("Seller Balance:   %s\n", acct.Balance.StringFixed(2))
	if acct.Balance.Equal(want) {
		fmt.Println("PASS: Seller credited for every unit sold")
	} else {
		fmt.Printf("FAIL: Expected balance %s\n", want.StringFixed(2))
	}
}

func buyer(n int) string {
	return fmt.Sprintf("buyer-%d@stress", n)
}
