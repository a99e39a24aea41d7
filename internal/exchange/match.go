package exchange

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"spotex/internal/events"
	"spotex/internal/models"
	"spotex/internal/money"
)

// costAtPrice is what a buy order commits for a quantity at a price:
// the notional plus the 1.5% buyer commission, truncated per step.
func costAtPrice(price, amount decimal.Decimal) decimal.Decimal {
	notional := money.Mul(price, amount)
	return notional.Add(money.Commission(notional))
}

// match drives one order through the book inside a single transaction.
// Lock order: the taker's row first, then the counter-orders in their
// priority order, then per settlement the asset and user rows. Events
// are staged on rec and published by the caller after commit.
func (s *Service) match(ctx context.Context, orderID int64, rec *events.Recorder) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		rec.Reset()

		taker, err := s.db.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		// A cancel may have won the race for the row; nothing to do.
		if !taker.IsOpen() {
			return nil
		}

		counters, err := s.db.CounterOrdersForUpdate(ctx, tx, taker)
		if err != nil {
			return err
		}

		for i := range counters {
			if taker.Remaining().Sign() <= 0 {
				break
			}
			maker := &counters[i]
			if !maker.IsOpen() || maker.Remaining().Sign() <= 0 {
				continue
			}

			qty := money.Min(taker.Remaining(), maker.Remaining())
			// The resting order sets the execution price; the taker never
			// pays worse than its own limit.
			price := maker.Price

			buy, sell := taker, maker
			if taker.Side == models.SideSell {
				buy, sell = maker, taker
			}
			if err := s.settle(ctx, tx, buy, sell, qty, price, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// settle executes one fill: moves inventory one-to-one, settles cash,
// updates both orders' fills and terminal transitions, and appends the
// trade record.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, buy, sell *models.Order, qty, price decimal.Decimal, rec *events.Recorder) error {
	total := money.Mul(price, qty)

	// The buyer's asset row is created lazily on first fill; reservations
	// for buys never touch assets.
	buyerAsset, err := s.db.GetOrCreateAssetForUpdate(ctx, tx, buy.UserID, buy.Symbol)
	if err != nil {
		return err
	}
	sellerAsset, err := s.db.GetAssetForUpdate(ctx, tx, sell.UserID, sell.Symbol)
	if err != nil {
		return err
	}
	buyer, err := s.db.GetUserForUpdate(ctx, tx, buy.UserID)
	if err != nil {
		return err
	}
	seller, err := s.db.GetUserForUpdate(ctx, tx, sell.UserID)
	if err != nil {
		return err
	}

	if err := s.db.UpdateAsset(ctx, tx, buyerAsset.ID, buyerAsset.Amount.Add(qty), buyerAsset.LockedAmount); err != nil {
		return err
	}
	if err := s.db.UpdateAsset(ctx, tx, sellerAsset.ID, sellerAsset.Amount.Sub(qty), sellerAsset.LockedAmount.Sub(qty)); err != nil {
		return err
	}

	// The buyer already paid for this slice at their limit price when the
	// order was reserved. Charge the actual execution cost and return the
	// difference; a fill at the limit price nets to zero.
	rebate := costAtPrice(buy.Price, qty).Sub(costAtPrice(price, qty))
	if rebate.Sign() > 0 {
		if err := s.db.UpdateUserBalance(ctx, tx, buy.UserID, buyer.Balance.Add(rebate)); err != nil {
			return err
		}
	}
	// The seller is credited the full notional; the commission stays with
	// the house out of the buyer's debit.
	if err := s.db.UpdateUserBalance(ctx, tx, sell.UserID, seller.Balance.Add(total)); err != nil {
		return err
	}

	for _, order := range []*models.Order{buy, sell} {
		order.FilledAmount = order.FilledAmount.Add(qty)
		filled := order.FilledAmount.Cmp(order.Amount) >= 0
		if filled {
			order.Status = models.StatusFilled
		}
		if err := s.db.UpdateOrderFill(ctx, tx, order); err != nil {
			return err
		}
		if filled {
			rec.OrderStatusUpdated(*order)
		}
	}

	trade, err := s.db.CreateTrade(ctx, tx, &models.Trade{
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     buy.UserID,
		SellerID:    sell.UserID,
		Symbol:      buy.Symbol,
		Price:       price,
		Amount:      qty,
	})
	if err != nil {
		return err
	}
	rec.OrderMatched(*trade)

	s.logger.Info("trade executed",
		"trade_id", trade.ID,
		"symbol", trade.Symbol,
		"price", money.Format(trade.Price),
		"amount", money.Format(trade.Amount),
		"buy_order_id", buy.ID,
		"sell_order_id", sell.ID,
	)
	return nil
}
