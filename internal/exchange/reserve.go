package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"spotex/internal/db"
	"spotex/internal/models"
)

// reserve debits cash (buy) or locks inventory (sell) so the order can
// never over-commit. It runs inside the transaction that persists the
// order, so a failed insert also rolls the reservation back.
func (s *Service) reserve(ctx context.Context, tx pgx.Tx, userID int64, symbol, side string, price, amount decimal.Decimal) error {
	switch side {
	case models.SideBuy:
		user, err := s.db.GetUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		required := costAtPrice(price, amount)
		if user.Balance.LessThan(required) {
			return ErrInsufficientBalance
		}
		return s.db.UpdateUserBalance(ctx, tx, userID, user.Balance.Sub(required))

	case models.SideSell:
		asset, err := s.db.GetAssetForUpdate(ctx, tx, userID, symbol)
		if err != nil {
			if errors.Is(err, db.ErrAssetNotFound) {
				return ErrAssetNotFound
			}
			return err
		}
		if asset.Available().LessThan(amount) {
			return ErrInsufficientAsset
		}
		return s.db.UpdateAsset(ctx, tx, asset.ID, asset.Amount, asset.LockedAmount.Add(amount))
	}
	return fmt.Errorf("unknown side %q", side)
}

// refund returns the unfilled part of a reservation on cancel: cash at
// the order's limit price plus commission for a buy, unlocked inventory
// for a sell. Reserve then refund of an unmatched order is the identity
// on scale-8 values.
func (s *Service) refund(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	remaining := order.Remaining()
	if remaining.Sign() <= 0 {
		return nil
	}

	if order.Side == models.SideBuy {
		user, err := s.db.GetUserForUpdate(ctx, tx, order.UserID)
		if err != nil {
			return err
		}
		refund := costAtPrice(order.Price, remaining)
		return s.db.UpdateUserBalance(ctx, tx, order.UserID, user.Balance.Add(refund))
	}

	asset, err := s.db.GetAssetForUpdate(ctx, tx, order.UserID, order.Symbol)
	if err != nil {
		if errors.Is(err, db.ErrAssetNotFound) {
			// No row means nothing is held for this order; tolerated so a
			// cancel can always complete.
			return nil
		}
		return err
	}
	return s.db.UpdateAsset(ctx, tx, asset.ID, asset.Amount, asset.LockedAmount.Sub(remaining))
}
