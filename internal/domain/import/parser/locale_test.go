package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"dotted", "15.01.2024", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"spaced", "1. 3. 2025", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"iso", "2024-02-29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"compact", "20240131", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.raw, bankconfig.DefaultDateLayouts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "31.02.2024", "soon"} {
		_, err := ParseDate(raw, bankconfig.DefaultDateLayouts)
		assert.ErrorIs(t, err, ErrInvalidDate, raw)
	}
}

func TestDayMonthDate(t *testing.T) {
	got, err := DayMonthDate("1", "3", 2025)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = DayMonthDate("31", "4", 2025)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = DayMonthDate("29", "2", 2023)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = DayMonthDate("1", "13", 2025)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = DayMonthDate("1", "3", 0)
	assert.ErrorIs(t, err, ErrMissingYear)
}

func TestParseYear(t *testing.T) {
	y, err := parseYear("24")
	require.NoError(t, err)
	assert.Equal(t, 2024, y)

	y, err = parseYear(" 2023 ")
	require.NoError(t, err)
	assert.Equal(t, 2023, y)

	_, err = parseYear("123")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParseRate(t *testing.T) {
	cfg := skCard(t, 2025)

	tests := map[string]string{
		"1,044117": "1.044117",
		"1.044117": "1.044117",
		"25,5":     "25.5",
	}
	for raw, want := range tests {
		got, err := parseRate(raw, cfg)
		require.NoError(t, err, raw)
		assert.True(t, dec(want).Equal(got), "%s parsed as %s", raw, got)
	}

	_, err := parseRate("abc", cfg)
	assert.Error(t, err)
}

func TestNormalizeCurrency(t *testing.T) {
	code, ok := normalizeCurrency(" usd ")
	assert.True(t, ok)
	assert.Equal(t, "USD", code)

	_, ok = normalizeCurrency("XYZ")
	assert.False(t, ok)
}

func TestDecodeText(t *testing.T) {
	t.Run("utf-8 with BOM", func(t *testing.T) {
		text, enc, err := DecodeText([]byte("\xEF\xBB\xBFDátum;Suma"), nil)
		require.NoError(t, err)
		assert.Equal(t, "Dátum;Suma", text)
		assert.Equal(t, "utf-8", enc)
	})

	t.Run("invalid utf-8 falls back to windows-1250", func(t *testing.T) {
		raw, err := charmap.Windows1250.NewEncoder().String("Lekáreň Košice")
		require.NoError(t, err)

		text, enc, err := DecodeText([]byte(raw), nil)
		require.NoError(t, err)
		assert.Equal(t, "Lekáreň Košice", text)
		assert.Equal(t, "windows-1250", enc)
	})

	t.Run("configured encoding", func(t *testing.T) {
		raw, err := charmap.ISO8859_2.NewEncoder().String("Žilina")
		require.NoError(t, err)

		text, enc, err := DecodeText([]byte(raw), charmap.ISO8859_2)
		require.NoError(t, err)
		assert.Equal(t, "Žilina", text)
		assert.Equal(t, "iso-8859-2", enc)
	})
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", ""}, splitLines("a\r\nb\n"))
}
