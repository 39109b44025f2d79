package parser

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

func mustCompile(t testing.TB, yaml string) *bankconfig.Compiled {
	t.Helper()
	cfg, err := bankconfig.Parse([]byte(yaml))
	require.NoError(t, err)
	compiled, err := cfg.Compile()
	require.NoError(t, err)
	return compiled
}

func generic(t testing.TB) *bankconfig.Compiled {
	t.Helper()
	cfg, err := bankconfig.MustBuiltinSet().Get(bankconfig.GenericName)
	require.NoError(t, err)
	return cfg
}

func csvDoc(name, body string) statement.RawDocument {
	return statement.RawDocument{Filename: name, Data: []byte(body), AccountHint: "SK00TEST"}
}

func TestDelimitedParser_Parse(t *testing.T) {
	p := NewDelimitedParser(nil)

	t.Run("parses standard CSV", func(t *testing.T) {
		doc := csvDoc("export.csv", `date,description,amount,category
2024-01-15,Coffee Shop,-4.50,Food
2024-01-16,Salary,5000.00,Income
2024-01-17,Groceries,-125.30,Food`)

		result, err := p.Parse(context.Background(), doc, generic(t))
		require.NoError(t, err)

		require.Len(t, result.Candidates, 3)
		assert.Empty(t, result.Errors)
		assert.True(t, result.Success)

		c := result.Candidates[0]
		assert.Equal(t, "Coffee Shop", c.Description)
		assert.True(t, dec("-4.50").Equal(c.Amount.Decimal))
		assert.Equal(t, "Food", c.Category)
		assert.Equal(t, "EUR", c.Currency)
		assert.Equal(t, "SK00TEST", c.AccountHint)
		assert.Equal(t, 2, c.Line)
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), c.Date)
		assert.True(t, dec("5000").Equal(result.Candidates[1].Amount.Decimal))
		assert.Equal(t, "auto", result.Metadata["columns"])
		assert.Equal(t, ",", result.Metadata["delimiter"])
	})

	t.Run("parses Slovak headers and comma decimals", func(t *testing.T) {
		doc := csvDoc("pohyby.csv", `Dátum;Popis;Suma;Mena
15.01.2024;Platba kartou FRESH;-12,50;EUR
16.01.2024;Výplata;1 250,00;EUR`)

		result, err := p.Parse(context.Background(), doc, generic(t))
		require.NoError(t, err)

		require.Len(t, result.Candidates, 2)
		assert.Equal(t, "Platba kartou FRESH", result.Candidates[0].Description)
		assert.True(t, dec("-12.50").Equal(result.Candidates[0].Amount.Decimal))
		assert.True(t, dec("1250").Equal(result.Candidates[1].Amount.Decimal))
		assert.Equal(t, ";", result.Metadata["delimiter"])
		assert.Equal(t, ",", result.Metadata["decimal_separator"])
	})

	t.Run("explicit debit and credit columns", func(t *testing.T) {
		cfg := mustCompile(t, `name: dc
delimiter: ","
columns:
  date: 0
  description: 1
  debit: 2
  credit: 3
locale:
  decimal_separator: "."
  currency: USD
`)
		doc := csvDoc("dc.csv", `when,what,out,in
2024-01-15,Coffee,4.50,
2024-01-16,Salary,,5000.00`)

		result, err := p.Parse(context.Background(), doc, cfg)
		require.NoError(t, err)

		require.Len(t, result.Candidates, 2)
		assert.True(t, dec("-4.5").Equal(result.Candidates[0].Amount.Decimal))
		assert.True(t, dec("5000").Equal(result.Candidates[1].Amount.Decimal))
		assert.Equal(t, "USD", result.Candidates[0].Currency)
		assert.Equal(t, "explicit", result.Metadata["columns"])
	})

	t.Run("inverted sign convention", func(t *testing.T) {
		cfg := mustCompile(t, `name: card
sign_convention: inverted
locale:
  decimal_separator: ","
  thousands_separator: "."
  currency: EUR
`)
		doc := csvDoc("card.csv", "datum;popis;suma\n01.02.2024;Kava;2,50\n")

		result, err := p.Parse(context.Background(), doc, cfg)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.True(t, dec("-2.50").Equal(result.Candidates[0].Amount.Decimal))
	})

	t.Run("debit_negative sign convention", func(t *testing.T) {
		cfg := mustCompile(t, `name: debits
sign_convention: debit_negative
locale:
  decimal_separator: ","
  thousands_separator: "."
  currency: EUR
`)
		doc := csvDoc("debits.csv", "datum;popis;suma\n01.02.2024;Kava;2,50\n02.02.2024;Obed;-8,90\n")

		result, err := p.Parse(context.Background(), doc, cfg)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 2)
		assert.True(t, dec("-2.50").Equal(result.Candidates[0].Amount.Decimal))
		assert.True(t, dec("-8.90").Equal(result.Candidates[1].Amount.Decimal))
	})

	t.Run("blank rows skipped and malformed rows reported", func(t *testing.T) {
		doc := csvDoc("gaps.csv", `date,description,amount
2024-01-15,Coffee,-4.50
,,
,Total,-4.50
2024-01-16,Tea,abc`)

		result, err := p.Parse(context.Background(), doc, generic(t))
		require.NoError(t, err)

		require.Len(t, result.Candidates, 2)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 4, result.Errors[0].Line)
		assert.Equal(t, "1", result.Metadata["blank_records"])

		tea := result.Candidates[1]
		assert.False(t, tea.Amount.Valid)
		require.Len(t, tea.FieldErrors, 1)
		assert.Equal(t, bankconfig.GroupAmount, tea.FieldErrors[0].Field)
		assert.Equal(t, 1, result.CompleteCount())
	})

	t.Run("decodes windows-1250", func(t *testing.T) {
		body, err := charmap.Windows1250.NewEncoder().String("Dátum;Popis;Suma\n15.01.2024;Lekáreň Dr.Max;-3,20\n")
		require.NoError(t, err)

		result, err := p.Parse(context.Background(), csvDoc("cp.csv", body), skCard(t, 0))
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, "Lekáreň Dr.Max", result.Candidates[0].Description)
		assert.Equal(t, "windows-1250", result.Metadata["encoding"])
	})

	t.Run("configured preamble lines", func(t *testing.T) {
		cfg := mustCompile(t, `name: preamble
skip_lines: 2
locale:
  decimal_separator: "."
  currency: EUR
`)
		doc := csvDoc("pre.csv", "Export of account\nGenerated 2024-02-01\ndate,description,amount\n2024-01-15,Coffee,-4.50\n")

		result, err := p.Parse(context.Background(), doc, cfg)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, 4, result.Candidates[0].Line)
		assert.Equal(t, "3", result.Metadata["header_line"])
	})

	t.Run("unknown headers fail the document", func(t *testing.T) {
		doc := csvDoc("odd.csv", "foo,bar\n1,2\n")

		result, err := p.Parse(context.Background(), doc, generic(t))
		require.NoError(t, err)
		assert.False(t, result.Success)
		require.NotEmpty(t, result.Errors)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Parse(ctx, csvDoc("a.csv", "date,amount\n2024-01-01,1\n"), generic(t))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDelimitedParser_LargeFile(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("date,description,amount\n")
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&sb, "2024-01-%02d,Transaction %d,-%d.50\n", i%28+1, i, i%1000)
	}

	result, err := NewDelimitedParser(nil).Parse(context.Background(), csvDoc("big.csv", sb.String()), generic(t))
	require.NoError(t, err)
	assert.Equal(t, 5000, result.TransactionCount)
	assert.Equal(t, 5000, result.CompleteCount())
	assert.Equal(t, 4999, result.Candidates[4999].Index)
}

func BenchmarkDelimitedParser_Parse(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		var sb strings.Builder
		sb.WriteString("Dátum;Popis;Suma\n")
		for i := 0; i < size; i++ {
			fmt.Fprintf(&sb, "%02d.01.2024;Transakcia %d;-1 %03d,50\n", i%28+1, i, i%1000)
		}
		doc := csvDoc("bench.csv", sb.String())
		cfg := generic(b)
		p := NewDelimitedParser(nil)

		b.Run(fmt.Sprintf("%d_rows", size), func(b *testing.B) {
			b.SetBytes(int64(len(doc.Data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = p.Parse(context.Background(), doc, cfg)
			}
		})
	}
}

func BenchmarkParseLines(b *testing.B) {
	cfg := skCard(b, 2025)
	lines := make([]string, 0, 4000)
	for i := 0; i < 2000; i++ {
		lines = append(lines,
			fmt.Sprintf("%d. %d. Transakcia platobnou kartou -%d,04", i%28+1, i%12+1, i%500),
			"Miesto: SUPERMARKET FRESH PLU KOSICE")
	}
	pages := [][]string{lines}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ParseLines(context.Background(), pages, cfg, LineOptions{})
	}
}
