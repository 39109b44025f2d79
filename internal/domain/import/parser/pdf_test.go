package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

type fakeExtractor struct {
	pages [][]string
	err   error
	calls int
}

func (f *fakeExtractor) Extract([]byte) ([][]string, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.pages, "fake", nil
}

func TestPDFParser_Parse(t *testing.T) {
	cfg := skCard(t, 0)
	doc := statement.RawDocument{
		Filename:   "vypis.pdf",
		Data:       []byte("%PDF-1.4 stub"),
		ReceivedAt: time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
	}

	t.Run("segments extracted text", func(t *testing.T) {
		ex := &fakeExtractor{pages: [][]string{{
			"1. 3. Transakcia platobnou kartou -2,04",
			"Miesto: SUPERMARKET FRESH PLU KOSICE",
		}}}
		p := NewPDFParser(nil).WithExtractor(ex)

		result, err := p.Parse(context.Background(), doc, cfg)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), result.Candidates[0].Date)
		assert.Equal(t, "fake", result.Metadata["extraction_method"])
		assert.Equal(t, statement.FormatPDF, result.Format)
		assert.Equal(t, 1, ex.calls)
	})

	t.Run("extraction failure is reported in the result", func(t *testing.T) {
		p := NewPDFParser(nil).WithExtractor(&fakeExtractor{err: ErrUnreadablePDF})

		result, err := p.Parse(context.Background(), doc, cfg)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Empty(t, result.Candidates)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0].Message, "no readable text")
	})

	t.Run("empty document", func(t *testing.T) {
		p := NewPDFParser(nil).WithExtractor(&fakeExtractor{})
		_, err := p.Parse(context.Background(), statement.RawDocument{Filename: "x.pdf"}, cfg)
		assert.ErrorIs(t, err, statement.ErrEmptyDocument)
	})

	t.Run("config without document rules", func(t *testing.T) {
		generic := mustCompile(t, `name: plain
locale:
  currency: EUR
`)
		p := NewPDFParser(nil).WithExtractor(&fakeExtractor{})
		_, err := p.Parse(context.Background(), doc, generic)
		assert.ErrorIs(t, err, ErrNoDocumentRules)
	})
}

func TestLibraryExtractor_RejectsNonPDF(t *testing.T) {
	_, _, err := LibraryExtractor{}.Extract([]byte("definitely not a pdf document"))
	require.Error(t, err)
}

func TestReadable(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  bool
	}{
		{"empty", nil, false},
		{"no digits", []string{"Vypis z uctu"}, false},
		{"statement text", []string{"1. 3. Kava -2,50"}, true},
		{"glyph soup", []string{"\x01\x02\x03\x04\x05\x06\x07\x08 1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readable(tt.pages))
		})
	}
}

func TestPDFParser_ExtractionErrorMessage(t *testing.T) {
	sentinel := errors.New("boom")
	p := NewPDFParser(nil).WithExtractor(&fakeExtractor{err: sentinel})
	result, err := p.Parse(context.Background(), statement.RawDocument{Filename: "a.pdf", Data: []byte("x")}, skCard(t, 2025))
	require.NoError(t, err)
	assert.Equal(t, "boom", result.Errors[0].Message)
}
