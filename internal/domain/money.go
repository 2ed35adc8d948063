package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInvalidCurrency is returned when a currency code is not a 3-letter code.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrNegativeAmount is returned when a negative amount is used where
	// only zero or positive amounts are allowed.
	ErrNegativeAmount = errors.New("negative amount")
)

// minorUnits maps currency codes to their number of decimal places.
// Currencies not listed use the default of 2.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"KWD": 3,
	"BHD": 3,
	"OMR": 3,
}

// Money is an immutable amount in a single currency. Amounts are held as
// exact decimals and rounded to the currency's minor units, never as
// binary floats.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a Money value, rounding to the currency's minor units.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	return Money{amount: amount.Round(exponent(c)), currency: c}, nil
}

// NewMoneyFromString creates a Money value from a decimal string such as "2.50".
func NewMoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(d, currency)
}

// NewMoneyFromMinorUnits creates a Money value from an amount expressed
// in the currency's minor units, e.g. 250 → 2.50 USD, 500 → 500 JPY.
func NewMoneyFromMinorUnits(units int64, currency string) (Money, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if units < 0 {
		return Money{}, fmt.Errorf("%w: %d", ErrNegativeAmount, units)
	}
	return Money{amount: decimal.NewFromInt(units).Shift(-exponent(c)), currency: c}, nil
}

// Zero returns the zero amount for a currency.
func Zero(currency string) Money {
	c := strings.ToUpper(strings.TrimSpace(currency))
	return Money{amount: decimal.Zero, currency: c}
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the 3-letter currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other. The currencies must match and the result must
// not be negative.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	amount := m.amount.Sub(other.amount)
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrNegativeAmount, m.amount, other.amount)
	}
	return Money{amount: amount, currency: m.currency}, nil
}

// MulInt returns m multiplied by a non-negative integer factor.
func (m Money) MulInt(factor int64) (Money, error) {
	if factor < 0 {
		return Money{}, fmt.Errorf("%w: factor %d", ErrNegativeAmount, factor)
	}
	amount := m.amount.Mul(decimal.NewFromInt(factor)).Round(exponent(m.currency))
	return Money{amount: amount, currency: m.currency}, nil
}

// MulDecimal returns m multiplied by an arbitrary decimal factor, rounded
// to the currency's minor units.
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	amount := m.amount.Mul(factor).Round(exponent(m.currency))
	return Money{amount: amount, currency: m.currency}
}

// Cmp compares two amounts of the same currency: -1 if m < other,
// 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Equal reports structural equality: same currency and same amount.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// MinorUnits returns the amount expressed in the currency's minor units,
// e.g. 250 for 2.50 USD. Gateways that bill in cents take this form.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(exponent(m.currency)).IntPart()
}

// StringFixed formats the bare amount at the currency's minor units, e.g. "2.50".
func (m Money) StringFixed() string {
	return m.amount.StringFixed(exponent(m.currency))
}

// String formats the amount at the currency's minor units, e.g. "2.50 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(exponent(m.currency)), m.currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

func exponent(currency string) int32 {
	if units, ok := minorUnits[currency]; ok {
		return units
	}
	return 2
}
