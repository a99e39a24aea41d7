package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	d, err := Parse("50000.12345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "50000.12345678" {
		t.Errorf("expected 50000.12345678, got %s", d.String())
	}

	// Digits beyond scale 8 are truncated, not rounded.
	d, err = Parse("0.123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "0.12345678" {
		t.Errorf("expected truncation to 0.12345678, got %s", d.String())
	}

	if _, err := Parse("not-a-number"); err == nil {
		t.Error("expected error for malformed input")
	}
	if _, err := Parse(""); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestMulTruncates(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"50000", "1", "50000"},
		{"48000", "0.5", "24000"},
		{"0.00000001", "0.1", "0"},           // product below scale 8 truncates to zero
		{"0.00000003", "0.33333333", "0"},    // toward zero, not nearest
		{"1.00000001", "1.00000001", "1.00000002"},
	}
	for _, tt := range tests {
		a := decimal.RequireFromString(tt.a)
		b := decimal.RequireFromString(tt.b)
		if got := Mul(a, b); got.String() != tt.want {
			t.Errorf("Mul(%s, %s) = %s, want %s", tt.a, tt.b, got.String(), tt.want)
		}
	}
}

func TestCommission(t *testing.T) {
	notional := decimal.RequireFromString("50000")
	if got := Commission(notional); got.String() != "750" {
		t.Errorf("expected commission 750 on 50000, got %s", got.String())
	}

	// 1.5% of 0.00000100 is 0.000000015, which truncates to 0.00000001.
	small := decimal.RequireFromString("0.00000100")
	if got := Commission(small); got.String() != "0.00000001" {
		t.Errorf("expected truncated commission 0.00000001, got %s", got.String())
	}
}

func TestMin(t *testing.T) {
	a := decimal.RequireFromString("0.5")
	b := decimal.RequireFromString("1")
	if got := Min(a, b); !got.Equal(a) {
		t.Errorf("expected min 0.5, got %s", got.String())
	}
	if got := Min(b, a); !got.Equal(a) {
		t.Errorf("expected min 0.5, got %s", got.String())
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"50000", "50000.00000000"},
		{"49250", "49250.00000000"},
		{"0.5", "0.50000000"},
		{"0", "0.00000000"},
	}
	for _, tt := range tests {
		if got := Format(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("Format(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
