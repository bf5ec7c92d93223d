package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when arithmetic is attempted between
// two Money values of different currencies without an explicit conversion.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an exact decimal amount in a single ISO-4217 currency.
// Amounts are never represented as binary floats.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money from a decimal string (e.g. "100.00") and a
// three-letter uppercase currency code.
func NewMoney(amount string, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	m := Money{Amount: d, Currency: currency}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MustMoney is NewMoney for constants in tests and fixtures; it panics
// on invalid input.
func MustMoney(amount string, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Validate checks the currency code shape and that the amount is finite.
func (m Money) Validate() error {
	if len(m.Currency) != 3 {
		return fmt.Errorf("invalid currency code %q", m.Currency)
	}
	for _, r := range m.Currency {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("invalid currency code %q", m.Currency)
		}
	}
	return nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Both operands must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Cmp compares m against other: -1 if less, 0 if equal, +1 if greater.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return m.Amount.Cmp(other.Amount), nil
}

// Equal reports whether both amount and currency match exactly.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Convert returns the amount expressed in another currency at the given
// rate, together with the rate that was applied. This is the only legal
// cross-currency operation.
func (m Money) Convert(rate decimal.Decimal, toCurrency string) (Money, decimal.Decimal) {
	return Money{
		Amount:   m.Amount.Mul(rate).Round(4),
		Currency: toCurrency,
	}, rate
}

// String renders the amount with its currency, e.g. "100.00 EUR".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
