// Package db is the transactional ledger store: users, assets, orders,
// and trades in PostgreSQL, with exclusive row locks for everything the
// matching engine touches. All decimal columns are numeric(32,8) and are
// scanned as text to keep exact scale-8 values.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spotex/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrAssetNotFound = errors.New("asset not found")
	ErrOrderNotFound = errors.New("order not found")

	// ErrTxConflict wraps a serialization failure or deadlock that
	// survived all retries.
	ErrTxConflict = errors.New("store conflict")
)

const txAttempts = 3

// DB wraps a PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx runs fn inside a transaction. Serialization failures and
// deadlocks (SQLSTATE 40001, 40P01) are retried; after the last attempt
// the error is surfaced wrapped in ErrTxConflict. Any other error from
// fn rolls back and is returned as-is.
func (db *DB) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, err)
}

func (db *DB) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func parseDecimal(s, what string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", what, err)
	}
	return d, nil
}

// --- users ---

const userColumns = `id, name, email, password_hash, balance::text, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var balanceStr string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &balanceStr, &u.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	u.Balance, err = parseDecimal(balanceStr, "balance")
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user with an opening cash balance.
func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash string, balance decimal.Decimal) (*models.User, error) {
	row := db.Pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, balance)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		name, email, passwordHash, balance.String())
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserForUpdate reads a user row under an exclusive lock.
func (db *DB) GetUserForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return user, nil
}

// UpdateUserBalance writes a user's cash balance. The row must already
// be locked by the calling transaction.
func (db *DB) UpdateUserBalance(ctx context.Context, tx pgx.Tx, id int64, balance decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET balance = $1 WHERE id = $2`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// --- assets ---

const assetColumns = `id, user_id, symbol, amount::text, locked_amount::text, updated_at`

func scanAsset(row pgx.Row) (*models.Asset, error) {
	var a models.Asset
	var amountStr, lockedStr string
	if err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &amountStr, &lockedStr, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Amount, err = parseDecimal(amountStr, "asset amount"); err != nil {
		return nil, err
	}
	if a.LockedAmount, err = parseDecimal(lockedStr, "asset locked amount"); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssets returns all asset rows for a user, ordered by symbol.
func (db *DB) GetAssets(ctx context.Context, userID int64) ([]models.Asset, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// GetAssetForUpdate reads a (user, symbol) asset row under an exclusive
// lock. Returns ErrAssetNotFound if no row exists.
func (db *DB) GetAssetForUpdate(ctx context.Context, tx pgx.Tx, userID int64, symbol string) (*models.Asset, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		userID, symbol)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to lock asset: %w", err)
	}
	return asset, nil
}

// GetOrCreateAssetForUpdate locks the (user, symbol) asset row, creating
// it with zero amounts first if absent. The on-conflict insert keeps
// concurrent creators from erroring; both end up locking the same row.
func (db *DB) GetOrCreateAssetForUpdate(ctx context.Context, tx pgx.Tx, userID int64, symbol string) (*models.Asset, error) {
	asset, err := db.GetAssetForUpdate(ctx, tx, userID, symbol)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO assets (user_id, symbol, amount, locked_amount)
		 VALUES ($1, $2, 0, 0)
		 ON CONFLICT (user_id, symbol) DO NOTHING`,
		userID, symbol); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	return db.GetAssetForUpdate(ctx, tx, userID, symbol)
}

// UpdateAsset writes an asset row's amounts. The row must already be
// locked by the calling transaction.
func (db *DB) UpdateAsset(ctx context.Context, tx pgx.Tx, id int64, amount, locked decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE assets SET amount = $1, locked_amount = $2, updated_at = now() WHERE id = $3`,
		amount.String(), locked.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// --- orders ---

const orderColumns = `id, user_id, symbol, side, price::text, amount::text, filled_amount::text, status, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var priceStr, amountStr, filledStr string
	var status int
	if err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &priceStr, &amountStr, &filledStr, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	var err error
	if o.Price, err = parseDecimal(priceStr, "order price"); err != nil {
		return nil, err
	}
	if o.Amount, err = parseDecimal(amountStr, "order amount"); err != nil {
		return nil, err
	}
	if o.FilledAmount, err = parseDecimal(filledStr, "order filled amount"); err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// CreateOrder inserts a new order inside the reservation transaction.
func (db *DB) CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, symbol, side, price, amount, filled_amount, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+orderColumns,
		order.UserID, order.Symbol, order.Side,
		order.Price.String(), order.Amount.String(), order.FilledAmount.String(), int(order.Status))
	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrderByID retrieves an order without locking it.
func (db *DB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetOrderForUpdate reads an order row under an exclusive lock.
func (db *DB) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

// GetUserOrderForUpdate locks an order row only if it belongs to the
// user. A row owned by someone else reports ErrOrderNotFound; the API
// does not distinguish the two cases.
func (db *DB) GetUserOrderForUpdate(ctx context.Context, tx pgx.Tx, id, userID int64) (*models.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

// UpdateOrderFill writes an order's filled amount and status and reads
// back the new updated_at. The row must already be locked.
func (db *DB) UpdateOrderFill(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	row := tx.QueryRow(ctx,
		`UPDATE orders SET filled_amount = $1, status = $2, updated_at = now()
		 WHERE id = $3
		 RETURNING updated_at`,
		order.FilledAmount.String(), int(order.Status), order.ID)
	if err := row.Scan(&order.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// ListUserOrders retrieves all orders for a user, newest first.
func (db *DB) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

// OpenOrders returns the resting book for a symbol: buys best-first
// (price DESC), sells best-first (price ASC), time priority within a
// price level, id as the final tie-break.
func (db *DB) OpenOrders(ctx context.Context, symbol string) (buys, sells []models.Order, err error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE symbol = $1 AND status = $2 AND side = $3
		 ORDER BY price DESC, created_at ASC, id ASC`,
		symbol, int(models.StatusOpen), models.SideBuy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query buy orders: %w", err)
	}
	if buys, err = collectOrders(rows); err != nil {
		return nil, nil, err
	}

	rows, err = db.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE symbol = $1 AND status = $2 AND side = $3
		 ORDER BY price ASC, created_at ASC, id ASC`,
		symbol, int(models.StatusOpen), models.SideSell)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query sell orders: %w", err)
	}
	if sells, err = collectOrders(rows); err != nil {
		return nil, nil, err
	}
	return buys, sells, nil
}

// CounterOrdersForUpdate returns the resting counter-orders a taker can
// match, in price-time priority, each under an exclusive lock. Orders
// from the taker's own user are excluded; same-user orders never match.
func (db *DB) CounterOrdersForUpdate(ctx context.Context, tx pgx.Tx, taker *models.Order) ([]models.Order, error) {
	var (
		counterSide string
		priceCond   string
		priceOrder  string
	)
	if taker.Side == models.SideBuy {
		counterSide, priceCond, priceOrder = models.SideSell, "price <= $6", "price ASC"
	} else {
		counterSide, priceCond, priceOrder = models.SideBuy, "price >= $6", "price DESC"
	}

	rows, err := tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE symbol = $1 AND status = $2 AND user_id <> $3 AND id <> $4 AND side = $5 AND `+priceCond+`
		 ORDER BY `+priceOrder+`, created_at ASC, id ASC
		 FOR UPDATE`,
		taker.Symbol, int(models.StatusOpen), taker.UserID, taker.ID, counterSide, taker.Price.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query counter orders: %w", err)
	}
	return collectOrders(rows)
}

// --- trades ---

const tradeColumns = `id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price::text, amount::text, executed_at`

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	var priceStr, amountStr string
	if err := row.Scan(&t.ID, &t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID, &t.Symbol, &priceStr, &amountStr, &t.ExecutedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Price, err = parseDecimal(priceStr, "trade price"); err != nil {
		return nil, err
	}
	if t.Amount, err = parseDecimal(amountStr, "trade amount"); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTrade appends a trade record inside the match transaction.
func (db *DB) CreateTrade(ctx context.Context, tx pgx.Tx, trade *models.Trade) (*models.Trade, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO trades (buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price, amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+tradeColumns,
		trade.BuyOrderID, trade.SellOrderID, trade.BuyerID, trade.SellerID,
		trade.Symbol, trade.Price.String(), trade.Amount.String())
	created, err := scanTrade(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	return created, nil
}

// GetUserTrades retrieves all trades a user participated in, newest first.
func (db *DB) GetUserTrades(ctx context.Context, userID int64) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY executed_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}
