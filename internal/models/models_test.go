package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestOrderStatusText(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   string
	}{
		{StatusOpen, "open"},
		{StatusFilled, "filled"},
		{StatusCancelled, "cancelled"},
		{OrderStatus(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.Text(); got != tt.want {
			t.Errorf("Text(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestOrderRemaining(t *testing.T) {
	order := Order{
		Amount:       decimal.RequireFromString("1"),
		FilledAmount: decimal.RequireFromString("0.4"),
	}
	if got := order.Remaining(); got.String() != "0.6" {
		t.Errorf("expected remaining 0.6, got %s", got.String())
	}
}

func TestAssetAvailable(t *testing.T) {
	asset := Asset{
		Amount:       decimal.RequireFromString("2"),
		LockedAmount: decimal.RequireFromString("0.5"),
	}
	if got := asset.Available(); got.String() != "1.5" {
		t.Errorf("expected available 1.5, got %s", got.String())
	}
}

func TestOrderWireFormat(t *testing.T) {
	order := Order{
		ID:           7,
		UserID:       3,
		Symbol:       "BTC",
		Side:         SideBuy,
		Price:        decimal.RequireFromString("50000"),
		Amount:       decimal.RequireFromString("1"),
		FilledAmount: decimal.RequireFromString("0.5"),
		Status:       StatusOpen,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	data, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	// Money and quantity fields are strings with exactly 8 fractional digits.
	if wire["price"] != "50000.00000000" {
		t.Errorf("price = %v, want \"50000.00000000\"", wire["price"])
	}
	if wire["remaining_amount"] != "0.50000000" {
		t.Errorf("remaining_amount = %v, want \"0.50000000\"", wire["remaining_amount"])
	}
	if wire["status"] != float64(1) {
		t.Errorf("status = %v, want 1", wire["status"])
	}
	if wire["status_text"] != "open" {
		t.Errorf("status_text = %v, want open", wire["status_text"])
	}
}

func TestTradeWireFormat(t *testing.T) {
	trade := Trade{
		ID:          1,
		BuyOrderID:  2,
		SellOrderID: 3,
		BuyerID:     4,
		SellerID:    5,
		Symbol:      "BTC",
		Price:       decimal.RequireFromString("48000"),
		Amount:      decimal.RequireFromString("0.5"),
		ExecutedAt:  time.Now(),
	}

	if got := trade.Total(); got.String() != "24000" {
		t.Errorf("expected total 24000, got %s", got.String())
	}

	data, err := json.Marshal(trade)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if wire["total"] != "24000.00000000" {
		t.Errorf("total = %v, want \"24000.00000000\"", wire["total"])
	}
	if wire["buy_order_id"] != float64(2) {
		t.Errorf("buy_order_id = %v, want 2", wire["buy_order_id"])
	}
}

func TestUserWireFormatOmitsPasswordHash(t *testing.T) {
	user := User{
		ID:           1,
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "secret-hash",
		Balance:      decimal.RequireFromString("100000"),
	}
	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, leaked := wire["password_hash"]; leaked {
		t.Error("password hash must not appear on the wire")
	}
	if wire["balance"] != "100000.00000000" {
		t.Errorf("balance = %v, want \"100000.00000000\"", wire["balance"])
	}
}
