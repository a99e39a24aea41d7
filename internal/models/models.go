package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"spotex/internal/money"
)

// Order sides as persisted and as accepted on the wire.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderStatus is the persisted status code of an order.
type OrderStatus int

const (
	StatusOpen      OrderStatus = 1
	StatusFilled    OrderStatus = 2
	StatusCancelled OrderStatus = 3
)

// Text returns the wire representation of a status code.
func (s OrderStatus) Text() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// User holds the unlocked cash balance. Per-symbol inventory lives in Asset.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Balance      decimal.Decimal
	CreatedAt    time.Time
}

func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Balance string `json:"balance"`
	}{u.ID, u.Name, u.Email, money.Format(u.Balance)})
}

// Asset is a user's inventory of one symbol. LockedAmount is the part
// reserved by that user's open sell orders.
type Asset struct {
	ID           int64
	UserID       int64
	Symbol       string
	Amount       decimal.Decimal
	LockedAmount decimal.Decimal
	UpdatedAt    time.Time
}

// Available is the inventory not reserved by open sell orders.
func (a Asset) Available() decimal.Decimal {
	return a.Amount.Sub(a.LockedAmount)
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Symbol          string `json:"symbol"`
		Amount          string `json:"amount"`
		LockedAmount    string `json:"locked_amount"`
		AvailableAmount string `json:"available_amount"`
	}{a.Symbol, money.Format(a.Amount), money.Format(a.LockedAmount), money.Format(a.Available())})
}

// Order is a resting or in-flight limit order. CreatedAt is the
// time-priority key.
type Order struct {
	ID           int64
	UserID       int64
	Symbol       string
	Side         string
	Price        decimal.Decimal
	Amount       decimal.Decimal
	FilledAmount decimal.Decimal
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining is the unfilled part of the order.
func (o Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.FilledAmount)
}

func (o Order) IsOpen() bool {
	return o.Status == StatusOpen
}

func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID              int64     `json:"id"`
		UserID          int64     `json:"user_id"`
		Symbol          string    `json:"symbol"`
		Side            string    `json:"side"`
		Price           string    `json:"price"`
		Amount          string    `json:"amount"`
		FilledAmount    string    `json:"filled_amount"`
		RemainingAmount string    `json:"remaining_amount"`
		Status          int       `json:"status"`
		StatusText      string    `json:"status_text"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}{
		o.ID, o.UserID, o.Symbol, o.Side,
		money.Format(o.Price), money.Format(o.Amount),
		money.Format(o.FilledAmount), money.Format(o.Remaining()),
		int(o.Status), o.Status.Text(), o.CreatedAt, o.UpdatedAt,
	})
}

// Trade is one executed fill. Immutable once written.
type Trade struct {
	ID          int64
	BuyOrderID  int64
	SellOrderID int64
	BuyerID     int64
	SellerID    int64
	Symbol      string
	Price       decimal.Decimal
	Amount      decimal.Decimal
	ExecutedAt  time.Time
}

// Total is the trade notional, price times amount at scale 8.
func (t Trade) Total() decimal.Decimal {
	return money.Mul(t.Price, t.Amount)
}

func (t Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          int64     `json:"id"`
		BuyOrderID  int64     `json:"buy_order_id"`
		SellOrderID int64     `json:"sell_order_id"`
		BuyerID     int64     `json:"buyer_id"`
		SellerID    int64     `json:"seller_id"`
		Symbol      string    `json:"symbol"`
		Price       string    `json:"price"`
		Amount      string    `json:"amount"`
		Total       string    `json:"total"`
		ExecutedAt  time.Time `json:"executed_at"`
	}{
		t.ID, t.BuyOrderID, t.SellOrderID, t.BuyerID, t.SellerID,
		t.Symbol, money.Format(t.Price), money.Format(t.Amount),
		money.Format(t.Total()), t.ExecutedAt,
	})
}
