package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{"simple decimal", "12.34", EUR, 1234},
		{"negative", "-2.04", EUR, -204},
		{"rounding", "12.345", USD, 1235},
		{"yen has no minor units", "1500", JPY, 1500},
		{"unknown currency uses two decimals", "1.5", "XYZ", 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, m.Amount())
		})
	}
}

func TestIsCurrencyCode(t *testing.T) {
	assert.True(t, IsCurrencyCode("EUR"))
	assert.True(t, IsCurrencyCode("usd"))
	assert.True(t, IsCurrencyCode("CZK"))
	assert.False(t, IsCurrencyCode("ABC"))
	assert.False(t, IsCurrencyCode("EURO"))
	assert.False(t, IsCurrencyCode(""))
}

func TestMoney_ToDecimalAndString(t *testing.T) {
	m := New(-204, EUR)
	assert.True(t, m.ToDecimal().Equal(decimal.RequireFromString("-2.04")))
	assert.Equal(t, "-2.04", m.String())
	assert.True(t, m.IsNegative())
	assert.Equal(t, int64(204), m.Abs().Amount())
	assert.True(t, m.Negate().Equals(New(204, EUR)))
}

func TestMoney_Convert(t *testing.T) {
	usd := NewFromDecimal(decimal.RequireFromString("2.13"), USD)
	rate := decimal.NewFromInt(1).Div(decimal.RequireFromString("1.044117"))
	eur := usd.Convert(EUR, rate)
	assert.Equal(t, EUR, eur.Currency())
	assert.Equal(t, int64(204), eur.Amount())
}

func TestMoney_NilSafety(t *testing.T) {
	var m *Money
	assert.True(t, m.IsZero())
	assert.Equal(t, int64(0), m.Amount())
	assert.Equal(t, "", m.Currency())
	assert.Equal(t, "0.00", m.String())
	assert.False(t, m.Equals(New(0, EUR)))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		style        NumberStyle
		want         string
		wantCurrency string
	}{
		{"european negative", "-2,04", EuropeanStyle, "-2.04", ""},
		{"european thousands", "1.234,56", EuropeanStyle, "1234.56", ""},
		{"space grouping", "1 234,56", EuropeanStyle, "1234.56", ""},
		{"nbsp grouping", "12\u00a0345,00", EuropeanStyle, "12345", ""},
		{"lone dot with two decimals", "2.13", EuropeanStyle, "2.13", ""},
		{"lone dot with three digits is grouping", "1.234", EuropeanStyle, "1234", ""},
		{"long fraction rate", "1,044117", EuropeanStyle, "1.044117", ""},
		{"us format", "1,234.56", USStyle, "1234.56", ""},
		{"us thousands only", "1,234", USStyle, "1234", ""},
		{"trailing minus", "15,00-", EuropeanStyle, "-15", ""},
		{"parentheses", "(10.50)", USStyle, "-10.5", ""},
		{"euro symbol", "€ 12,50", EuropeanStyle, "12.5", EUR},
		{"iso code suffix", "2.13 USD", EuropeanStyle, "2.13", USD},
		{"iso code glued", "12,50EUR", EuropeanStyle, "12.5", EUR},
		{"czech crowns", "1 250 Kč", EuropeanStyle, "1250", CZK},
		{"explicit plus", "+100", EuropeanStyle, "100", ""},
		{"zero style defaults to european", "3,5", NumberStyle{}, "3.5", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.style)
			require.NoError(t, err)
			assert.True(t, got.Amount.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got.Amount, tt.want)
			assert.Equal(t, tt.wantCurrency, got.Currency)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"letters", "abc"},
		{"double decimal", "1,2,3"},
		{"dangling separator", "12,"},
		{"only sign", "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAmount(tt.raw, EuropeanStyle)
			assert.Error(t, err)
		})
	}
}

func TestExtractCurrencyCodes(t *testing.T) {
	assert.Equal(t, []string{"USD"}, ExtractCurrencyCodes("Suma: 2.13 USD 25.02.2023"))
	assert.Empty(t, ExtractCurrencyCodes("no codes here"))
}

func TestTestDataGenerator_Deterministic(t *testing.T) {
	a := NewTestDataGeneratorWithSeed(42).Transactions(EUR, 5)
	b := NewTestDataGeneratorWithSeed(42).Transactions(EUR, 5)
	require.Len(t, a, 5)
	for i := range a {
		assert.Equal(t, a[i].Date, b[i].Date)
		assert.Equal(t, a[i].Merchant, b[i].Merchant)
		assert.True(t, a[i].Amount.Equal(b[i].Amount))
		assert.True(t, a[i].Amount.IsNegative())
	}
}
