// Package money provides currency-aware amounts on top of go-money and
// shopspring/decimal: ISO-4217 code recognition, minor-unit conversion,
// display formatting and locale-aware parsing of statement amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	EUR = "EUR"
	USD = "USD"
	GBP = "GBP"
	CZK = "CZK"
	HUF = "HUF"
	PLN = "PLN"
	CHF = "CHF"
	JPY = "JPY" // no decimal places
)

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units and a currency code.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, strings.ToUpper(currencyCode))}
}

// NewFromDecimal creates Money from a decimal amount, rounding to the
// currency's minor unit. Unknown codes fall back to two decimals.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	return New(ToMinorUnits(amount, currencyCode), currencyCode)
}

// IsCurrencyCode reports whether code is a known ISO-4217 code.
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// Fraction returns the number of minor-unit digits of a currency (2 when unknown).
func Fraction(currencyCode string) int {
	if c := money.GetCurrency(strings.ToUpper(currencyCode)); c != nil {
		return c.Fraction
	}
	return 2
}

// ToMinorUnits converts a decimal amount into integer minor units.
func ToMinorUnits(amount decimal.Decimal, currencyCode string) int64 {
	return amount.Shift(int32(Fraction(currencyCode))).Round(0).IntPart()
}

// Amount returns the amount in minor units.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero.
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// IsNegative returns true if the amount is below zero.
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Abs returns the absolute value.
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Absolute()}
}

// Negate flips the sign.
func (m *Money) Negate() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return New(-m.m.Amount(), m.m.Currency().Code)
}

// Equals compares amount and currency.
func (m *Money) Equals(other *Money) bool {
	if m == nil || m.m == nil || other == nil || other.m == nil {
		return false
	}
	eq, err := m.m.Equals(other.m)
	return err == nil && eq
}

// Display returns a formatted string for display, e.g. "€1,234.56".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.m.Display()
}

// String returns the amount as a decimal string, e.g. "1234.56".
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

// ToDecimal converts to decimal.Decimal.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.m.Currency().Fraction))
}

// Convert converts to a different currency; rate is units of the target
// currency per unit of the source currency.
func (m *Money) Convert(targetCurrency string, rate decimal.Decimal) *Money {
	if m == nil || m.m == nil {
		return New(0, targetCurrency)
	}
	return NewFromDecimal(m.ToDecimal().Mul(rate), targetCurrency)
}

// Format renders a decimal amount with its currency for CLI and log output.
func Format(amount decimal.Decimal, currencyCode string) string {
	if !IsCurrencyCode(currencyCode) {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), currencyCode)
	}
	return NewFromDecimal(amount, currencyCode).Display()
}
