package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

//go:embed schema/postgres.sql
var postgresSchema string

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
)

// Money columns are read as text and written as text cast to numeric so no
// float conversion happens on either side.
const pgListingColumns = `seller_id, listing_id, category, product_title, product_name, product_description, quantity, product_price::text, status`

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresAdapter struct {
	*pgRepo
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pgRepo: &pgRepo{q: pool}, pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(postgresSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) WithTx(ctx context.Context, fn func(ctx context.Context, repo port.Repository) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return pgErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgRepo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pgErr("commit", err)
	}
	return nil
}

func pgErr(op string, err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%s: %w (%w)", op, port.ErrTxConflict, err)
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w (%w)", op, port.ErrDuplicate, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w (%w)", op, port.ErrGuardFailed, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func pgGuard(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return port.ErrGuardFailed
	}
	return nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return d, nil
}

type pgRepo struct {
	q pgQuerier
}

func scanPgListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var price string
	var status int16
	if err := row.Scan(&l.SellerID, &l.ListingID, &l.Category, &l.Title, &l.Name,
		&l.Description, &l.Quantity, &price, &status); err != nil {
		return l, err
	}
	l.Status = domain.ListingStatus(status)
	var err error
	l.UnitPrice, err = parseMoney(price)
	return l, err
}

func (r *pgRepo) getListing(ctx context.Context, key domain.ListingKey, suffix string) (*domain.Listing, error) {
	l, err := scanPgListing(r.q.QueryRow(ctx,
		`SELECT `+pgListingColumns+` FROM product_listings WHERE seller_id = $1 AND listing_id = $2`+suffix,
		key.SellerID, key.ListingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgErr("query listing", err)
	}
	return &l, nil
}

func (r *pgRepo) GetListing(ctx context.Context, key domain.ListingKey) (*domain.Listing, error) {
	return r.getListing(ctx, key, "")
}

func (r *pgRepo) GetListingForUpdate(ctx context.Context, key domain.ListingKey) (*domain.Listing, error) {
	return r.getListing(ctx, key, " FOR UPDATE")
}

func (r *pgRepo) queryListings(ctx context.Context, op, query string, args ...any) ([]domain.Listing, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr(op, err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, pgErr(op, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr(op, err)
	}
	return out, nil
}

func (r *pgRepo) ListListingsBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	return r.queryListings(ctx, "query listings",
		`SELECT `+pgListingColumns+` FROM product_listings WHERE seller_id = $1 ORDER BY listing_id`, sellerID)
}

func (r *pgRepo) NextListingID(ctx context.Context, sellerID string) (int64, error) {
	var next int64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(listing_id), 0) + 1 FROM product_listings WHERE seller_id = $1`, sellerID).Scan(&next)
	if err != nil {
		return 0, pgErr("next listing id", err)
	}
	return next, nil
}

func (r *pgRepo) InsertListing(ctx context.Context, l domain.Listing) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO product_listings (seller_id, listing_id, category, product_title, product_name,
			product_description, quantity, product_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9)`,
		l.SellerID, l.ListingID, l.Category, l.Title, l.Name, l.Description, l.Quantity,
		l.UnitPrice.String(), int16(l.Status))
	if err != nil {
		return pgErr("insert listing", err)
	}
	return nil
}

func (r *pgRepo) UpdateListing(ctx context.Context, l domain.Listing) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE product_listings
		SET category = $1, product_title = $2, product_name = $3, product_description = $4,
			quantity = $5, product_price = $6::numeric, status = $7
		WHERE seller_id = $8 AND listing_id = $9`,
		l.Category, l.Title, l.Name, l.Description, l.Quantity, l.UnitPrice.String(), int16(l.Status),
		l.SellerID, l.ListingID)
	if err != nil {
		return pgErr("update listing", err)
	}
	return pgGuard(tag)
}

func (r *pgRepo) DecrementListingQuantity(ctx context.Context, key domain.ListingKey, qty int, status domain.ListingStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE product_listings
		SET quantity = quantity - $1, status = $2
		WHERE seller_id = $3 AND listing_id = $4 AND quantity >= $1`,
		qty, int16(status), key.SellerID, key.ListingID)
	if err != nil {
		return pgErr("decrement listing", err)
	}
	return pgGuard(tag)
}

func (r *pgRepo) getSeller(ctx context.Context, sellerID, suffix string) (*domain.SellerAccount, error) {
	var a domain.SellerAccount
	var balance string
	err := r.q.QueryRow(ctx,
		`SELECT seller_id, balance::text FROM sellers WHERE seller_id = $1`+suffix, sellerID).Scan(&a.SellerID, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgErr("query seller", err)
	}
	if a.Balance, err = parseMoney(balance); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgRepo) GetSeller(ctx context.Context, sellerID string) (*domain.SellerAccount, error) {
	return r.getSeller(ctx, sellerID, "")
}

func (r *pgRepo) GetSellerForUpdate(ctx context.Context, sellerID string) (*domain.SellerAccount, error) {
	return r.getSeller(ctx, sellerID, " FOR UPDATE")
}

func (r *pgRepo) CreditSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE sellers SET balance = balance + $1::numeric WHERE seller_id = $2`, amount.String(), sellerID)
	if err != nil {
		return pgErr("credit seller", err)
	}
	return pgGuard(tag)
}

func (r *pgRepo) DebitSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE sellers SET balance = balance - $1::numeric
		WHERE seller_id = $2 AND balance >= $1::numeric`, amount.String(), sellerID)
	if err != nil {
		return pgErr("debit seller", err)
	}
	return pgGuard(tag)
}

func (r *pgRepo) InsertOrder(ctx context.Context, o domain.Order) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO orders (seller_id, listing_id, buyer_id, date, quantity, payment)
		VALUES ($1, $2, $3, $4, $5, $6::numeric)
		RETURNING order_id`,
		o.SellerID, o.ListingID, o.BuyerID, o.Date, o.Quantity, o.Payment.String()).Scan(&id)
	if err != nil {
		return 0, pgErr("insert order", err)
	}
	return id, nil
}

const pgOrderColumns = `order_id, seller_id, listing_id, buyer_id, date, quantity, payment::text`

func scanPgOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var payment string
	if err := row.Scan(&o.ID, &o.SellerID, &o.ListingID, &o.BuyerID, &o.Date, &o.Quantity, &payment); err != nil {
		return o, err
	}
	var err error
	o.Payment, err = parseMoney(payment)
	return o, err
}

func (r *pgRepo) GetOrderForBuyer(ctx context.Context, orderID int64, buyerID string) (*domain.Order, error) {
	o, err := scanPgOrder(r.q.QueryRow(ctx,
		`SELECT `+pgOrderColumns+` FROM orders WHERE order_id = $1 AND buyer_id = $2`, orderID, buyerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgErr("query order", err)
	}
	return &o, nil
}

func (r *pgRepo) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+pgOrderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY order_id`, buyerID)
	if err != nil {
		return nil, pgErr("query orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanPgOrder(rows)
		if err != nil {
			return nil, pgErr("scan order", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *pgRepo) GetReview(ctx context.Context, orderID int64) (*domain.Review, error) {
	var rv domain.Review
	var rating int16
	err := r.q.QueryRow(ctx,
		`SELECT order_id, rating, review_desc FROM reviews WHERE order_id = $1`, orderID).
		Scan(&rv.OrderID, &rating, &rv.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgErr("query review", err)
	}
	rv.Rating = int(rating)
	return &rv, nil
}

func (r *pgRepo) InsertReview(ctx context.Context, rv domain.Review) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO reviews (order_id, review_desc, rating) VALUES ($1, $2, $3)`,
		rv.OrderID, rv.Description, int16(rv.Rating))
	if err != nil {
		return pgErr("insert review", err)
	}
	return nil
}

func (r *pgRepo) SellerRatingTotals(ctx context.Context, sellerIDs []string) (map[string]domain.RatingTotals, error) {
	query := `SELECT o.seller_id, SUM(r.rating)::bigint, COUNT(*)
		FROM reviews r JOIN orders o ON o.order_id = r.order_id`
	var args []any
	if len(sellerIDs) > 0 {
		query += ` WHERE o.seller_id = ANY($1)`
		args = append(args, sellerIDs)
	}
	query += ` GROUP BY o.seller_id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr("query ratings", err)
	}
	defer rows.Close()

	out := make(map[string]domain.RatingTotals)
	for rows.Next() {
		var id string
		var t domain.RatingTotals
		if err := rows.Scan(&id, &t.Sum, &t.Count); err != nil {
			return nil, pgErr("scan ratings", err)
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (r *pgRepo) GetCartLine(ctx context.Context, buyerID string, key domain.ListingKey) (*domain.CartLine, error) {
	var c domain.CartLine
	err := r.q.QueryRow(ctx, `
		SELECT buyer_id, seller_id, listing_id, quantity FROM cart_items
		WHERE buyer_id = $1 AND seller_id = $2 AND listing_id = $3`,
		buyerID, key.SellerID, key.ListingID).Scan(&c.BuyerID, &c.SellerID, &c.ListingID, &c.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgErr("query cart line", err)
	}
	return &c, nil
}

func (r *pgRepo) InsertCartLine(ctx context.Context, c domain.CartLine) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO cart_items (buyer_id, seller_id, listing_id, quantity) VALUES ($1, $2, $3, $4)`,
		c.BuyerID, c.SellerID, c.ListingID, c.Quantity)
	if err != nil {
		return pgErr("insert cart line", err)
	}
	return nil
}

func (r *pgRepo) UpdateCartLineQuantity(ctx context.Context, buyerID string, key domain.ListingKey, qty int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE cart_items SET quantity = $1
		WHERE buyer_id = $2 AND seller_id = $3 AND listing_id = $4`,
		qty, buyerID, key.SellerID, key.ListingID)
	if err != nil {
		return pgErr("update cart line", err)
	}
	return pgGuard(tag)
}

func (r *pgRepo) DeleteCartLine(ctx context.Context, buyerID string, key domain.ListingKey) error {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM cart_items WHERE buyer_id = $1 AND seller_id = $2 AND listing_id = $3`,
		buyerID, key.SellerID, key.ListingID)
	if err != nil {
		return pgErr("delete cart line", err)
	}
	return pgGuard(tag)
}

func (r *pgRepo) DeleteCartLinesForListing(ctx context.Context, key domain.ListingKey) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM cart_items WHERE seller_id = $1 AND listing_id = $2`, key.SellerID, key.ListingID)
	if err != nil {
		return pgErr("delete listing cart lines", err)
	}
	return nil
}

func (r *pgRepo) DeleteCart(ctx context.Context, buyerID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1`, buyerID)
	if err != nil {
		return pgErr("delete cart", err)
	}
	return nil
}

func (r *pgRepo) ListCart(ctx context.Context, buyerID string) ([]domain.CartEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT c.buyer_id, c.seller_id, c.listing_id, c.quantity,
			l.category, l.product_title, l.product_name, l.product_description,
			l.quantity, l.product_price::text, l.status
		FROM cart_items c
		JOIN product_listings l ON l.seller_id = c.seller_id AND l.listing_id = c.listing_id
		WHERE c.buyer_id = $1
		ORDER BY c.line_id`, buyerID)
	if err != nil {
		return nil, pgErr("query cart", err)
	}
	defer rows.Close()

	var out []domain.CartEntry
	for rows.Next() {
		var e domain.CartEntry
		var price string
		var status int16
		if err := rows.Scan(&e.Line.BuyerID, &e.Line.SellerID, &e.Line.ListingID, &e.Line.Quantity,
			&e.Listing.Category, &e.Listing.Title, &e.Listing.Name, &e.Listing.Description,
			&e.Listing.Quantity, &price, &status); err != nil {
			return nil, pgErr("scan cart", err)
		}
		e.Listing.SellerID = e.Line.SellerID
		e.Listing.ListingID = e.Line.ListingID
		e.Listing.Status = domain.ListingStatus(status)
		if e.Listing.UnitPrice, err = parseMoney(price); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepo) ListCartForUpdate(ctx context.Context, buyerID string) ([]domain.CartLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT buyer_id, seller_id, listing_id, quantity FROM cart_items
		WHERE buyer_id = $1 ORDER BY line_id FOR UPDATE`, buyerID)
	if err != nil {
		return nil, pgErr("lock cart", err)
	}
	defer rows.Close()

	var out []domain.CartLine
	for rows.Next() {
		var c domain.CartLine
		if err := rows.Scan(&c.BuyerID, &c.SellerID, &c.ListingID, &c.Quantity); err != nil {
			return nil, pgErr("scan cart line", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgRepo) UpsertPromotion(ctx context.Context, p domain.PromotedListing) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO promoted_products (seller_id, listing_id, promotion_start_time, fee)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (seller_id, listing_id)
		DO UPDATE SET promotion_start_time = EXCLUDED.promotion_start_time, fee = EXCLUDED.fee`,
		p.SellerID, p.ListingID, p.PromotionStartTime.UTC(), p.Fee.String())
	if err != nil {
		return pgErr("upsert promotion", err)
	}
	return nil
}

func (r *pgRepo) ListPromotionsBySeller(ctx context.Context, sellerID string) ([]domain.PromotedListing, error) {
	rows, err := r.q.Query(ctx, `
		SELECT seller_id, listing_id, promotion_start_time, fee::text FROM promoted_products
		WHERE seller_id = $1
		ORDER BY promotion_start_time DESC, listing_id`, sellerID)
	if err != nil {
		return nil, pgErr("query promotions", err)
	}
	defer rows.Close()

	var out []domain.PromotedListing
	for rows.Next() {
		var p domain.PromotedListing
		var fee string
		var start time.Time
		if err := rows.Scan(&p.SellerID, &p.ListingID, &start, &fee); err != nil {
			return nil, pgErr("scan promotion", err)
		}
		p.PromotionStartTime = start.UTC()
		if p.Fee, err = parseMoney(fee); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepo) ListPromotedListings(ctx context.Context) ([]domain.Listing, error) {
	return r.queryListings(ctx, "query promoted listings", `
		SELECT l.seller_id, l.listing_id, l.category, l.product_title, l.product_name,
			l.product_description, l.quantity, l.product_price::text, l.status
		FROM promoted_products p
		JOIN product_listings l ON l.seller_id = p.seller_id AND l.listing_id = p.listing_id
		WHERE l.status <> $1
		ORDER BY p.promotion_start_time DESC, l.seller_id, l.listing_id`, int16(domain.ListingStatusInactive))
}
