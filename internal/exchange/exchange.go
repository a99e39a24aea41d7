// Package exchange is the order lifecycle and matching core: it
// reserves funds on entry, drives new orders through the book under
// price-time priority, settles fills with exact scale-8 accounting,
// and releases reservations on cancel. All mutation happens inside
// store transactions; concurrent submissions serialize on row locks.
package exchange

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"spotex/internal/db"
	"spotex/internal/events"
	"spotex/internal/metrics"
	"spotex/internal/models"
)

const maxSymbolLen = 10

// Service exposes the order lifecycle operations.
type Service struct {
	db      *db.DB
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(database *db.DB, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: database, events: publisher, metrics: m, logger: logger}
}

// Submit validates and reserves a new order, persists it OPEN, runs a
// match pass, and returns the order in its post-match state. The
// reservation and the order insert share one transaction; the match
// pass is its own transaction, so a resting order is never lost even if
// matching is interrupted.
func (s *Service) Submit(ctx context.Context, userID int64, symbol, side string, price, amount decimal.Decimal) (*models.Order, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateOrderInput(symbol, side, price, amount); err != nil {
		s.metrics.OrderRejected("validation")
		return nil, err
	}

	var order *models.Order
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.reserve(ctx, tx, userID, symbol, side, price, amount); err != nil {
			return err
		}
		created, err := s.db.CreateOrder(ctx, tx, &models.Order{
			UserID:       userID,
			Symbol:       symbol,
			Side:         side,
			Price:        price,
			Amount:       amount,
			FilledAmount: decimal.Zero,
			Status:       models.StatusOpen,
		})
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}
	s.metrics.OrderSubmitted(side)

	rec := &events.Recorder{}
	start := time.Now()
	if err := s.match(ctx, order.ID, rec); err != nil {
		// The order is reserved and resting; it stays on the book and
		// remains matchable by later takers.
		s.logger.Error("match pass failed", "order_id", order.ID, "error", err)
		return nil, err
	}
	s.metrics.ObserveMatch(time.Since(start))
	s.metrics.TradesExecuted(rec.Trades())
	rec.Flush(s.events)

	return s.db.GetOrderByID(ctx, order.ID)
}

// Cancel verifies ownership, refunds the unfilled reservation, and
// transitions the order to CANCELLED. A cancel racing a match
// serializes on the order row lock; whoever loses sees the new status.
func (s *Service) Cancel(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	rec := &events.Recorder{}
	var cancelled *models.Order
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		rec.Reset()
		order, err := s.db.GetUserOrderForUpdate(ctx, tx, orderID, userID)
		if err != nil {
			if errors.Is(err, db.ErrOrderNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if !order.IsOpen() {
			return ErrCannotCancel
		}
		if err := s.refund(ctx, tx, order); err != nil {
			return err
		}
		order.Status = models.StatusCancelled
		if err := s.db.UpdateOrderFill(ctx, tx, order); err != nil {
			return err
		}
		rec.OrderStatusUpdated(*order)
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec.Flush(s.events)
	s.logger.Info("order cancelled", "order_id", cancelled.ID, "user_id", userID)
	return cancelled, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.db.ListUserOrders(ctx, userID)
}

// ListTrades returns the trades the user participated in, newest first.
func (s *Service) ListTrades(ctx context.Context, userID int64) ([]models.Trade, error) {
	return s.db.GetUserTrades(ctx, userID)
}

// Book returns the open orders on a symbol in book priority order.
func (s *Service) Book(ctx context.Context, symbol string) (buys, sells []models.Order, err error) {
	return s.db.OpenOrders(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

// Profile returns a user together with all their asset positions.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.User, []models.Asset, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	assets, err := s.db.GetAssets(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, assets, nil
}

func validateOrderInput(symbol, side string, price, amount decimal.Decimal) error {
	verr := &ValidationError{}
	if symbol == "" {
		verr.add("symbol", "symbol is required")
	} else if len(symbol) > maxSymbolLen {
		verr.add("symbol", "symbol must be at most 10 characters")
	}
	if side != models.SideBuy && side != models.SideSell {
		verr.add("side", "side must be buy or sell")
	}
	if price.Sign() <= 0 {
		verr.add("price", "price must be greater than zero")
	}
	if amount.Sign() <= 0 {
		verr.add("amount", "amount must be greater than zero")
	}
	if verr.empty() {
		return nil
	}
	return verr
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientAsset):
		return "insufficient_asset"
	case errors.Is(err, ErrAssetNotFound):
		return "asset_not_found"
	case errors.Is(err, db.ErrTxConflict):
		return "conflict"
	}
	return "internal"
}
