package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of display precision.
// One whole token equals 10^Decimals base units.
const Decimals = 7

// Amount is a signed quantity of settlement tokens in base units.
// It is always an integer number of base units; arithmetic never rounds.
//
// Examples:
//   - NewAmount(100_000_0000000) displays as "100000.0000000"
//   - MustParseDisplay("97000") equals NewAmount(97_000_0000000)
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalJSON/Scan.
type Amount struct {
	d decimal.Decimal
}

// NewAmount creates an Amount of units base units.
func NewAmount(units int64) Amount { return Amount{d: decimal.NewFromInt(units)} }

// ZeroAmount returns the zero Amount.
func ZeroAmount() Amount { return Amount{d: decimal.Zero} }

// ParseAmount parses an integer string of base units ("1000000000000").
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("amount: parse %q: base units must be integral", s)
	}
	return Amount{d: d}, nil
}

// ParseDisplay parses a whole-token value such as "97000.5" into base units.
// More than Decimals fractional digits is an error.
func ParseDisplay(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	units := d.Shift(Decimals)
	if !units.IsInteger() {
		return Amount{}, fmt.Errorf("amount: %q exceeds %d decimal places", s, Decimals)
	}
	return Amount{d: units}, nil
}

// MustParseDisplay is like ParseDisplay but panics on error. Use for constants.
func MustParseDisplay(s string) Amount {
	a, err := ParseDisplay(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount { return Amount{d: a.d.Add(other.d)} }

// Sub returns a - other.
func (a Amount) Sub(other Amount) Amount { return Amount{d: a.d.Sub(other.d)} }

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// Comparison methods

// Cmp compares a and other: -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.d.Cmp(other.d) }

// Equal reports whether both amounts hold the same number of base units.
func (a Amount) Equal(other Amount) bool { return a.d.Equal(other.d) }

// LessThan reports whether a < other.
func (a Amount) LessThan(other Amount) bool { return a.d.LessThan(other.d) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// IsNegative reports whether the amount is less than zero.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// Formatting methods

// String returns the base-unit integer, e.g. "1000000000000".
func (a Amount) String() string { return a.d.String() }

// Display returns the whole-token value with Decimals fractional digits,
// e.g. "100000.0000000".
func (a Amount) Display() string { return a.d.Shift(-Decimals).StringFixed(Decimals) }

// Decimal returns the base units as a decimal.Decimal.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Int64 returns the base units truncated to int64. ok is false when the
// value does not fit.
func (a Amount) Int64() (v int64, ok bool) {
	bi := a.d.BigInt()
	if !bi.IsInt64() {
		return 0, false
	}
	return bi.Int64(), true
}

// MarshalJSON encodes the amount as a base-unit string so that values
// beyond float64 precision survive JSON.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.d.String())
}

// UnmarshalJSON accepts a base-unit string or a JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount: unmarshal %s: %w", data, err)
		}
		s = n.String()
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as base-unit text.
func (a Amount) Value() (driver.Value, error) {
	return a.d.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = ZeroAmount()
		return nil
	case int64:
		*a = NewAmount(v)
		return nil
	case string:
		parsed, err := ParseAmount(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := ParseAmount(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}

// Sum adds up amounts.
func Sum(values ...Amount) Amount {
	result := ZeroAmount()
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
