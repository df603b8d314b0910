package types

import (
	"encoding/json"
	"testing"
)

func TestAmountDisplay(t *testing.T) {
	tests := []struct {
		name    string
		amount  Amount
		units   string
		display string
	}{
		{"Face value", NewAmount(100_000_0000000), "1000000000000", "100000.0000000"},
		{"Listing price", NewAmount(97_000_0000000), "970000000000", "97000.0000000"},
		{"One base unit", NewAmount(1), "1", "0.0000001"},
		{"Negative", NewAmount(-1), "-1", "-0.0000001"},
		{"Zero", ZeroAmount(), "0", "0.0000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.amount.String(); got != tt.units {
				t.Errorf("String: got %s, want %s", got, tt.units)
			}
			if got := tt.amount.Display(); got != tt.display {
				t.Errorf("Display: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Amount
		expected Amount
	}{
		{"Add", func() Amount { return NewAmount(100).Add(NewAmount(200)) }, NewAmount(300)},
		{"Sub", func() Amount { return NewAmount(500).Sub(NewAmount(200)) }, NewAmount(300)},
		{"Sub below zero", func() Amount { return NewAmount(100).Sub(NewAmount(200)) }, NewAmount(-100)},
		{"Neg", func() Amount { return NewAmount(100).Neg() }, NewAmount(-100)},
		{"Zero value", func() Amount { return Amount{}.Add(NewAmount(7)) }, NewAmount(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAmountPredicates(t *testing.T) {
	tests := []struct {
		name       string
		amount     Amount
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", ZeroAmount(), true, false, false},
		{"Uninitialized", Amount{}, true, false, false},
		{"Positive", NewAmount(100), false, true, false},
		{"Negative", NewAmount(-100), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.amount.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.amount.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.amount.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestAmountComparison(t *testing.T) {
	if !NewAmount(50).LessThan(NewAmount(100)) {
		t.Error("expected 50 < 100")
	}
	if NewAmount(100).Cmp(NewAmount(100)) != 0 {
		t.Error("expected equal amounts to compare as 0")
	}
	if NewAmount(200).Cmp(NewAmount(100)) != 1 {
		t.Error("expected 200 > 100")
	}
}

func TestParseDisplay(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{"97000", NewAmount(97_000_0000000), false},
		{"0.5", NewAmount(5_000_000), false},
		{"0.0000001", NewAmount(1), false},
		{"0.00000001", Amount{}, true},
		{"abc", Amount{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDisplay(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAmountRejectsFractions(t *testing.T) {
	if _, err := ParseAmount("1.5"); err == nil {
		t.Error("expected error for fractional base units")
	}
	got, err := ParseAmount("1000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(NewAmount(100_000_0000000)) {
		t.Errorf("got %v", got)
	}
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(NewAmount(97_000_0000000))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `"970000000000"` {
		t.Errorf("JSON: got %s", data)
	}

	var fromNumber Amount
	if err := json.Unmarshal([]byte(`42`), &fromNumber); err != nil {
		t.Fatalf("Unmarshal number: %v", err)
	}
	if !fromNumber.Equal(NewAmount(42)) {
		t.Errorf("got %v, want 42", fromNumber)
	}

	var bad Amount
	if err := json.Unmarshal([]byte(`"4.2"`), &bad); err == nil {
		t.Error("expected error for fractional base units")
	}
}

func TestAmountScan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want Amount
	}{
		{"nil", nil, ZeroAmount()},
		{"int64", int64(12), NewAmount(12)},
		{"string", "970000000000", NewAmount(97_000_0000000)},
		{"bytes", []byte("5"), NewAmount(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			if err := a.Scan(tt.src); err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if !a.Equal(tt.want) {
				t.Errorf("got %v, want %v", a, tt.want)
			}
		})
	}

	var a Amount
	if err := a.Scan(3.14); err == nil {
		t.Error("expected error scanning float64")
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Amount
		expected Amount
	}{
		{"Empty", nil, ZeroAmount()},
		{"Single", []Amount{NewAmount(100)}, NewAmount(100)},
		{"Multiple", []Amount{NewAmount(100), NewAmount(200), NewAmount(300)}, NewAmount(600)},
		{"With negatives", []Amount{NewAmount(100), NewAmount(-50)}, NewAmount(50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Sum(tt.values...); !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func BenchmarkAmountAdd(b *testing.B) {
	a1 := NewAmount(100)
	a2 := NewAmount(200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a1.Add(a2)
	}
}

func BenchmarkAmountDisplay(b *testing.B) {
	a := NewAmount(100_000_0000000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.Display()
	}
}
