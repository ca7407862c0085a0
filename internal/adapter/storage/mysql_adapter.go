package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

//go:embed schema/mysql.sql
var mysqlSchema string

const (
	mysqlErrDeadlock    = 1213
	mysqlErrLockTimeout = 1205
	mysqlErrDupEntry    = 1062
	mysqlErrNoParent    = 1452
)

const listingColumns = `seller_id, listing_id, category, product_title, product_name, product_description, quantity, product_price, status`

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type MySQLAdapter struct {
	*mysqlRepo
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{mysqlRepo: &mysqlRepo{q: db}, db: db}
}

// Migrate creates missing tables.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) WithTx(ctx context.Context, fn func(ctx context.Context, repo port.Repository) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlRepo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mysqlErr("commit", err)
	}
	return nil
}

// mysqlErr wraps err with op and tags deadlocks, lock timeouts and key violations.
func mysqlErr(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDeadlock, mysqlErrLockTimeout:
			return fmt.Errorf("%s: %w (%w)", op, port.ErrTxConflict, err)
		case mysqlErrDupEntry:
			return fmt.Errorf("%s: %w (%w)", op, port.ErrDuplicate, err)
		case mysqlErrNoParent:
			return fmt.Errorf("%s: %w (%w)", op, port.ErrGuardFailed, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type mysqlRepo struct {
	q sqlQuerier
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var l domain.Listing
	var status int
	err := row.Scan(&l.SellerID, &l.ListingID, &l.Category, &l.Title, &l.Name,
		&l.Description, &l.Quantity, &l.UnitPrice, &status)
	l.Status = domain.ListingStatus(status)
	return l, err
}

func (r *mysqlRepo) getListing(ctx context.Context, key domain.ListingKey, suffix string) (*domain.Listing, error) {
	l, err := scanListing(r.q.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM product_listings WHERE seller_id = ? AND listing_id = ?`+suffix,
		key.SellerID, key.ListingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlErr("query listing", err)
	}
	return &l, nil
}

func (r *mysqlRepo) GetListing(ctx context.Context, key domain.ListingKey) (*domain.Listing, error) {
	return r.getListing(ctx, key, "")
}

func (r *mysqlRepo) GetListingForUpdate(ctx context.Context, key domain.ListingKey) (*domain.Listing, error) {
	return r.getListing(ctx, key, " FOR UPDATE")
}

func (r *mysqlRepo) ListListingsBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM product_listings WHERE seller_id = ? ORDER BY listing_id`, sellerID)
	if err != nil {
		return nil, mysqlErr("query listings", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, mysqlErr("scan listing", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *mysqlRepo) NextListingID(ctx context.Context, sellerID string) (int64, error) {
	var next int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(listing_id), 0) + 1 FROM product_listings WHERE seller_id = ?`, sellerID).Scan(&next)
	if err != nil {
		return 0, mysqlErr("next listing id", err)
	}
	return next, nil
}

func (r *mysqlRepo) InsertListing(ctx context.Context, l domain.Listing) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO product_listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.SellerID, l.ListingID, l.Category, l.Title, l.Name, l.Description, l.Quantity, l.UnitPrice, int(l.Status))
	if err != nil {
		return mysqlErr("insert listing", err)
	}
	return nil
}

// UpdateListing does not check RowsAffected: MySQL reports 0 for an update
// that leaves the row unchanged. Callers lock the row first.
func (r *mysqlRepo) UpdateListing(ctx context.Context, l domain.Listing) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE product_listings
		SET category = ?, product_title = ?, product_name = ?, product_description = ?,
			quantity = ?, product_price = ?, status = ?
		WHERE seller_id = ? AND listing_id = ?`,
		l.Category, l.Title, l.Name, l.Description, l.Quantity, l.UnitPrice, int(l.Status),
		l.SellerID, l.ListingID)
	if err != nil {
		return mysqlErr("update listing", err)
	}
	return nil
}

func (r *mysqlRepo) DecrementListingQuantity(ctx context.Context, key domain.ListingKey, qty int, status domain.ListingStatus) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE product_listings
		SET quantity = quantity - ?, status = ?
		WHERE seller_id = ? AND listing_id = ? AND quantity >= ?`,
		qty, int(status), key.SellerID, key.ListingID, qty)
	if err != nil {
		return mysqlErr("decrement listing", err)
	}
	return guardRows(result)
}

func guardRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return port.ErrGuardFailed
	}
	return nil
}

func (r *mysqlRepo) getSeller(ctx context.Context, sellerID, suffix string) (*domain.SellerAccount, error) {
	var a domain.SellerAccount
	err := r.q.QueryRowContext(ctx,
		`SELECT seller_id, balance FROM sellers WHERE seller_id = ?`+suffix, sellerID).Scan(&a.SellerID, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlErr("query seller", err)
	}
	return &a, nil
}

func (r *mysqlRepo) GetSeller(ctx context.Context, sellerID string) (*domain.SellerAccount, error) {
	return r.getSeller(ctx, sellerID, "")
}

func (r *mysqlRepo) GetSellerForUpdate(ctx context.Context, sellerID string) (*domain.SellerAccount, error) {
	return r.getSeller(ctx, sellerID, " FOR UPDATE")
}

// CreditSeller is unguarded: fk_listing_seller keeps a listing's seller row
// alive for as long as an order can be placed against it.
func (r *mysqlRepo) CreditSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sellers SET balance = balance + ? WHERE seller_id = ?`, amount, sellerID)
	if err != nil {
		return mysqlErr("credit seller", err)
	}
	return nil
}

func (r *mysqlRepo) DebitSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE sellers SET balance = balance - ?
		WHERE seller_id = ? AND balance >= ?`, amount, sellerID, amount)
	if err != nil {
		return mysqlErr("debit seller", err)
	}
	return guardRows(result)
}

func (r *mysqlRepo) InsertOrder(ctx context.Context, o domain.Order) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (seller_id, listing_id, buyer_id, date, quantity, payment)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.SellerID, o.ListingID, o.BuyerID, o.Date, o.Quantity, o.Payment)
	if err != nil {
		return 0, mysqlErr("insert order", err)
	}
	return result.LastInsertId()
}

const orderColumns = `order_id, seller_id, listing_id, buyer_id, date, quantity, payment`

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.SellerID, &o.ListingID, &o.BuyerID, &o.Date, &o.Quantity, &o.Payment)
	return o, err
}

func (r *mysqlRepo) GetOrderForBuyer(ctx context.Context, orderID int64, buyerID string) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = ? AND buyer_id = ?`, orderID, buyerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlErr("query order", err)
	}
	return &o, nil
}

func (r *mysqlRepo) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? ORDER BY order_id`, buyerID)
	if err != nil {
		return nil, mysqlErr("query orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mysqlErr("scan order", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *mysqlRepo) GetReview(ctx context.Context, orderID int64) (*domain.Review, error) {
	var rv domain.Review
	err := r.q.QueryRowContext(ctx,
		`SELECT order_id, rating, review_desc FROM reviews WHERE order_id = ?`, orderID).
		Scan(&rv.OrderID, &rv.Rating, &rv.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlErr("query review", err)
	}
	return &rv, nil
}

func (r *mysqlRepo) InsertReview(ctx context.Context, rv domain.Review) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO reviews (order_id, review_desc, rating) VALUES (?, ?, ?)`,
		rv.OrderID, rv.Description, rv.Rating)
	if err != nil {
		return mysqlErr("insert review", err)
	}
	return nil
}

func (r *mysqlRepo) SellerRatingTotals(ctx context.Context, sellerIDs []string) (map[string]domain.RatingTotals, error) {
	query := `SELECT o.seller_id, SUM(r.rating), COUNT(*)
		FROM reviews r JOIN orders o ON o.order_id = r.order_id`
	args := make([]any, 0, len(sellerIDs))
	if len(sellerIDs) > 0 {
		query += ` WHERE o.seller_id IN (?` + strings.Repeat(", ?", len(sellerIDs)-1) + `)`
		for _, id := range sellerIDs {
			args = append(args, id)
		}
	}
	query += ` GROUP BY o.seller_id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mysqlErr("query ratings", err)
	}
	defer rows.Close()

	out := make(map[string]domain.RatingTotals)
	for rows.Next() {
		var id string
		var t domain.RatingTotals
		if err := rows.Scan(&id, &t.Sum, &t.Count); err != nil {
			return nil, mysqlErr("scan ratings", err)
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (r *mysqlRepo) GetCartLine(ctx context.Context, buyerID string, key domain.ListingKey) (*domain.CartLine, error) {
	var c domain.CartLine
	err := r.q.QueryRowContext(ctx, `
		SELECT buyer_id, seller_id, listing_id, quantity FROM cart_items
		WHERE buyer_id = ? AND seller_id = ? AND listing_id = ?`,
		buyerID, key.SellerID, key.ListingID).Scan(&c.BuyerID, &c.SellerID, &c.ListingID, &c.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mysqlErr("query cart line", err)
	}
	return &c, nil
}

func (r *mysqlRepo) InsertCartLine(ctx context.Context, c domain.CartLine) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO cart_items (buyer_id, seller_id, listing_id, quantity) VALUES (?, ?, ?, ?)`,
		c.BuyerID, c.SellerID, c.ListingID, c.Quantity)
	if err != nil {
		return mysqlErr("insert cart line", err)
	}
	return nil
}

func (r *mysqlRepo) UpdateCartLineQuantity(ctx context.Context, buyerID string, key domain.ListingKey, qty int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ?
		WHERE buyer_id = ? AND seller_id = ? AND listing_id = ?`,
		qty, buyerID, key.SellerID, key.ListingID)
	if err != nil {
		return mysqlErr("update cart line", err)
	}
	return nil
}

func (r *mysqlRepo) DeleteCartLine(ctx context.Context, buyerID string, key domain.ListingKey) error {
	result, err := r.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE buyer_id = ? AND seller_id = ? AND listing_id = ?`,
		buyerID, key.SellerID, key.ListingID)
	if err != nil {
		return mysqlErr("delete cart line", err)
	}
	return guardRows(result)
}

func (r *mysqlRepo) DeleteCartLinesForListing(ctx context.Context, key domain.ListingKey) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE seller_id = ? AND listing_id = ?`, key.SellerID, key.ListingID)
	if err != nil {
		return mysqlErr("delete listing cart lines", err)
	}
	return nil
}

func (r *mysqlRepo) DeleteCart(ctx context.Context, buyerID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE buyer_id = ?`, buyerID)
	if err != nil {
		return mysqlErr("delete cart", err)
	}
	return nil
}

func (r *mysqlRepo) ListCart(ctx context.Context, buyerID string) ([]domain.CartEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT c.buyer_id, c.seller_id, c.listing_id, c.quantity,
			l.seller_id, l.listing_id, l.category, l.product_title, l.product_name,
			l.product_description, l.quantity, l.product_price, l.status
		FROM cart_items c
		JOIN product_listings l ON l.seller_id = c.seller_id AND l.listing_id = c.listing_id
		WHERE c.buyer_id = ?
		ORDER BY c.line_id`, buyerID)
	if err != nil {
		return nil, mysqlErr("query cart", err)
	}
	defer rows.Close()

	var out []domain.CartEntry
	for rows.Next() {
		var e domain.CartEntry
		var status int
		if err := rows.Scan(&e.Line.BuyerID, &e.Line.SellerID, &e.Line.ListingID, &e.Line.Quantity,
			&e.Listing.SellerID, &e.Listing.ListingID, &e.Listing.Category, &e.Listing.Title, &e.Listing.Name,
			&e.Listing.Description, &e.Listing.Quantity, &e.Listing.UnitPrice, &status); err != nil {
			return nil, mysqlErr("scan cart", err)
		}
		e.Listing.Status = domain.ListingStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *mysqlRepo) ListCartForUpdate(ctx context.Context, buyerID string) ([]domain.CartLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT buyer_id, seller_id, listing_id, quantity FROM cart_items
		WHERE buyer_id = ? ORDER BY line_id FOR UPDATE`, buyerID)
	if err != nil {
		return nil, mysqlErr("lock cart", err)
	}
	defer rows.Close()

	var out []domain.CartLine
	for rows.Next() {
		var c domain.CartLine
		if err := rows.Scan(&c.BuyerID, &c.SellerID, &c.ListingID, &c.Quantity); err != nil {
			return nil, mysqlErr("scan cart line", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *mysqlRepo) UpsertPromotion(ctx context.Context, p domain.PromotedListing) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO promoted_products (seller_id, listing_id, promotion_start_time, fee)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE promotion_start_time = VALUES(promotion_start_time), fee = VALUES(fee)`,
		p.SellerID, p.ListingID, p.PromotionStartTime.UTC(), p.Fee)
	if err != nil {
		return mysqlErr("upsert promotion", err)
	}
	return nil
}

func (r *mysqlRepo) ListPromotionsBySeller(ctx context.Context, sellerID string) ([]domain.PromotedListing, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT seller_id, listing_id, promotion_start_time, fee FROM promoted_products
		WHERE seller_id = ?
		ORDER BY promotion_start_time DESC, listing_id`, sellerID)
	if err != nil {
		return nil, mysqlErr("query promotions", err)
	}
	defer rows.Close()

	var out []domain.PromotedListing
	for rows.Next() {
		var p domain.PromotedListing
		if err := rows.Scan(&p.SellerID, &p.ListingID, &p.PromotionStartTime, &p.Fee); err != nil {
			return nil, mysqlErr("scan promotion", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *mysqlRepo) ListPromotedListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT l.seller_id, l.listing_id, l.category, l.product_title, l.product_name,
			l.product_description, l.quantity, l.product_price, l.status
		FROM promoted_products p
		JOIN product_listings l ON l.seller_id = p.seller_id AND l.listing_id = p.listing_id
		WHERE l.status <> ?
		ORDER BY p.promotion_start_time DESC, l.seller_id, l.listing_id`, int(domain.ListingStatusInactive))
	if err != nil {
		return nil, mysqlErr("query promoted listings", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, mysqlErr("scan listing", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
