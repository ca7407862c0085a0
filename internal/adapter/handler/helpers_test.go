package handler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/marketplace/internal/adapter/auth"
	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
)

const testSecret = "handler-test-secret"

type env struct {
	store    *storage.MemoryAdapter
	svc      Services
	verifier *auth.Verifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := storage.NewMemoryAdapter()
	deps := service.Deps{
		Store:         store,
		Idempotency:   storage.NewMemoryIdempotency(time.Hour),
		TxMaxAttempts: 2,
	}
	return &env{store: store, svc: NewServices(deps), verifier: auth.NewVerifier(testSecret)}
}

func (e *env) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	tok, err := e.verifier.Sign(domain.Principal{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) seedListing(sellerID string, id int64, qty int, price string) domain.Listing {
	l := domain.Listing{
		SellerID:    sellerID,
		ListingID:   id,
		Category:    "Books",
		Title:       "Title " + sellerID,
		Name:        "Book",
		Description: "Paperback",
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
		Status:      domain.DeriveStatus(qty, domain.ListingStatusActive),
	}
	e.store.SeedListing(l)
	return l
}
