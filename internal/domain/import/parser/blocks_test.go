package parser

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
)

func skCard(t testing.TB, defaultYear int) *bankconfig.Compiled {
	t.Helper()
	base, err := bankconfig.MustBuiltinSet().Get("sk-card")
	require.NoError(t, err)
	cfg := base.Config
	cfg.Locale.DefaultYear = defaultYear
	compiled, err := cfg.Compile()
	require.NoError(t, err)
	return compiled
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseLines_StartLine(t *testing.T) {
	cfg := skCard(t, 2025)

	result, err := ParseLines(context.Background(), [][]string{{
		"1. 3. Transakcia platobnou kartou -2,04",
	}}, cfg, LineOptions{})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), c.Date)
	assert.Equal(t, "Transakcia platobnou kartou", c.Description)
	require.True(t, c.Amount.Valid)
	assert.True(t, dec("-2.04").Equal(c.Amount.Decimal))
	assert.Equal(t, "EUR", c.Currency)
	assert.Empty(t, c.FieldErrors)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TransactionCount)
	assert.Equal(t, "2025", result.Metadata["statement_year"])
	assert.Equal(t, "config", result.Metadata["statement_year_source"])
}

func TestParseLines_MerchantLocation(t *testing.T) {
	cfg := skCard(t, 2025)

	result, err := ParseLines(context.Background(), [][]string{{
		"1. 3. Transakcia platobnou kartou -2,04",
		"Miesto: SUPERMARKET FRESH PLU KOSICE",
	}}, cfg, LineOptions{})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, "SUPERMARKET FRESH PLU", c.Merchant)
	assert.Equal(t, "KOSICE", c.Location)
	assert.Equal(t, "Transakcia platobnou kartou", c.Description)
	assert.Len(t, c.RawLines, 2)
}

func TestParseLines_ForeignAmount(t *testing.T) {
	cfg := skCard(t, 2025)

	t.Run("consistent rate", func(t *testing.T) {
		result, err := ParseLines(context.Background(), [][]string{{
			"1. 3. Transakcia platobnou kartou -2,04",
			"Suma: 2.13 USD 25.02.2023 Kurz: 1,044117",
		}}, cfg, LineOptions{})
		require.NoError(t, err)

		require.Len(t, result.Candidates, 1)
		c := result.Candidates[0]
		assert.Equal(t, "EUR", c.Currency)
		assert.True(t, dec("-2.04").Equal(c.Amount.Decimal))
		require.NotNil(t, c.Foreign)
		assert.True(t, dec("2.13").Equal(c.Foreign.Amount), c.Foreign.Amount.String())
		assert.Equal(t, "USD", c.Foreign.Currency)
		assert.True(t, dec("1.044117").Equal(c.Foreign.Rate), c.Foreign.Rate.String())
		assert.Equal(t, time.Date(2023, 2, 25, 0, 0, 0, 0, time.UTC), c.Foreign.RateDate)
		assert.Empty(t, result.Warnings)
	})

	t.Run("inconsistent rate warns", func(t *testing.T) {
		result, err := ParseLines(context.Background(), [][]string{{
			"1. 3. Transakcia platobnou kartou -2,04",
			"Suma: 20.13 USD Kurz: 1,044117",
		}}, cfg, LineOptions{})
		require.NoError(t, err)

		require.Len(t, result.Candidates, 1)
		assert.NotNil(t, result.Candidates[0].Foreign)
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "foreign", result.Warnings[0].Field)
		assert.Equal(t, 2, result.Warnings[0].Line)
	})

	t.Run("unknown currency is a field error", func(t *testing.T) {
		result, err := ParseLines(context.Background(), [][]string{{
			"1. 3. Transakcia platobnou kartou -2,04",
			"Suma: 2.13 XYZ Kurz: 1,044117",
		}}, cfg, LineOptions{})
		require.NoError(t, err)

		c := result.Candidates[0]
		assert.Nil(t, c.Foreign)
		require.Len(t, c.FieldErrors, 1)
		assert.Equal(t, bankconfig.GroupOriginalCurrency, c.FieldErrors[0].Field)
		assert.False(t, c.Complete())
	})
}

func TestParseLines_PartialFailure(t *testing.T) {
	cfg := skCard(t, 2025)

	result, err := ParseLines(context.Background(), [][]string{{
		"1. 3. Transakcia platobnou kartou -2,04",
		"Miesto: SUPERMARKET FRESH PLU KOSICE",
		"2. 3. Transakcia bez sumy",
		"Miesto: LEKAREN BRATISLAVA",
		"3. 3. Nakup -10,00",
	}}, cfg, LineOptions{})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 0, result.Candidates[0].Block)
	assert.Equal(t, 2, result.Candidates[1].Block)
	assert.Equal(t, 1, result.Candidates[1].Index)
	assert.Equal(t, "Nakup", result.Candidates[1].Description)
	assert.Empty(t, result.Candidates[1].Merchant, "continuation of the malformed block must not leak")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Block)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Equal(t, "2. 3. Transakcia bez sumy", result.Errors[0].Raw)
	assert.True(t, result.Success)
}

func TestParseLines_FieldErrors(t *testing.T) {
	cfg := skCard(t, 2025)

	result, err := ParseLines(context.Background(), [][]string{{
		"31. 4. Neexistujuci den -1,00",
	}}, cfg, LineOptions{})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.False(t, c.HasDate())
	assert.True(t, c.Amount.Valid)
	require.Len(t, c.FieldErrors, 1)
	assert.Equal(t, bankconfig.GroupDate, c.FieldErrors[0].Field)
	assert.ErrorIs(t, c.FieldErrors[0], ErrInvalidDate)
	assert.False(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, bankconfig.GroupDate, result.Warnings[0].Field)
}

func TestParseLines_DocumentRules(t *testing.T) {
	cfg := skCard(t, 0)

	pages := [][]string{
		{
			"Výpis za obdobie 1. 3. 2024 - 31. 3. 2024",
			"Dátum Popis Suma",
			"1. 3. Kava -2,50",
			"Karta: 5168 XXXX XXXX 1234",
		},
		{
			"Strana 2",
			"2. 3. Obed -8,90",
			"Referencia: 778899",
			"Konečný zostatok 1 000,00",
			"3. 3. Po konci -1,00",
		},
	}
	result, err := ParseLines(context.Background(), pages, cfg, LineOptions{FallbackYear: 2026, AccountHint: "SK-FALLBACK"})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 2024, result.Candidates[0].Date.Year())
	assert.Equal(t, "5168XXXXXXXX1234", result.Candidates[0].AccountHint)
	assert.Equal(t, "SK-FALLBACK", result.Candidates[1].AccountHint)
	assert.Equal(t, "778899", result.Candidates[1].Reference)
	assert.Equal(t, 6, result.Candidates[1].Line)
	assert.Equal(t, "2024", result.Metadata["statement_year"])
	assert.Equal(t, "document", result.Metadata["statement_year_source"])
	assert.Equal(t, "2", result.Metadata["pages"])
	assert.Equal(t, "2", result.Metadata["blocks"])
}

func TestParseLines_FallbackYear(t *testing.T) {
	cfg := skCard(t, 0)

	t.Run("received year", func(t *testing.T) {
		result, err := ParseLines(context.Background(), [][]string{{"5. 1. Kava -2,50"}}, cfg, LineOptions{FallbackYear: 2026})
		require.NoError(t, err)
		assert.Equal(t, 2026, result.Candidates[0].Date.Year())
		assert.Equal(t, "received", result.Metadata["statement_year_source"])
	})

	t.Run("no year at all", func(t *testing.T) {
		result, err := ParseLines(context.Background(), [][]string{{"5. 1. Kava -2,50"}}, cfg, LineOptions{})
		require.NoError(t, err)
		require.Len(t, result.Candidates[0].FieldErrors, 1)
		assert.ErrorIs(t, result.Candidates[0].FieldErrors[0], ErrMissingYear)
	})
}

func TestParseLines_Idempotent(t *testing.T) {
	cfg := skCard(t, 2025)
	pages := [][]string{{
		"1. 3. Transakcia platobnou kartou -2,04",
		"Miesto: SUPERMARKET FRESH PLU KOSICE",
		"Suma: 2.13 USD 25.02.2023 Kurz: 1,044117",
		"2. 3. bez sumy",
		"3. 3. Nakup -10,00",
	}}

	first, err := ParseLines(context.Background(), pages, cfg, LineOptions{})
	require.NoError(t, err)
	second, err := ParseLines(context.Background(), pages, cfg, LineOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseLines_ParallelKeepsOrder(t *testing.T) {
	cfg := skCard(t, 2025)

	lines := make([]string, 0, 600)
	for i := 1; i <= 300; i++ {
		lines = append(lines,
			fmt.Sprintf("%d. %d. Platba %d -%d,00", i%28+1, i%12+1, i, i),
			fmt.Sprintf("Referencia: REF%d", i))
	}
	result, err := ParseLines(context.Background(), [][]string{lines}, cfg, LineOptions{Workers: 8})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 300)
	for i, c := range result.Candidates {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, fmt.Sprintf("REF%d", i+1), c.Reference)
		assert.True(t, decimal.NewFromInt(int64(-(i + 1))).Equal(c.Amount.Decimal))
	}
}

func TestParseLines_Cancelled(t *testing.T) {
	cfg := skCard(t, 2025)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := ParseLines(ctx, [][]string{{"1. 3. Kava -2,50"}}, cfg, LineOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestParseLines_RequiresDocumentRules(t *testing.T) {
	cfg, err := (&bankconfig.BankConfig{Name: "columns-only"}).Compile()
	require.NoError(t, err)

	_, err = ParseLines(context.Background(), nil, cfg, LineOptions{})
	assert.ErrorIs(t, err, ErrNoDocumentRules)

	_, err = ParseLines(context.Background(), nil, nil, LineOptions{})
	assert.ErrorIs(t, err, ErrNoBankConfig)
}
