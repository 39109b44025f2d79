package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// ErrUnreadablePDF is reported when no extraction method yields text.
var ErrUnreadablePDF = errors.New("no readable text could be extracted from the PDF")

// TextExtractor turns PDF bytes into the lines of each page. The method name
// is recorded in the parse metadata.
type TextExtractor interface {
	Extract(data []byte) (pages [][]string, method string, err error)
}

// PDFParser parses page-oriented statements: text is extracted page by page
// and handed to ParseLines.
type PDFParser struct {
	logger    *slog.Logger
	extractor TextExtractor
	workers   int
}

// NewPDFParser creates a PDF parser backed by LibraryExtractor.
func NewPDFParser(logger *slog.Logger) *PDFParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFParser{logger: logger, extractor: LibraryExtractor{}}
}

// WithExtractor replaces the text extractor.
func (p *PDFParser) WithExtractor(e TextExtractor) *PDFParser {
	p.extractor = e
	return p
}

// WithWorkers sets the block extraction pool size. Zero means GOMAXPROCS.
func (p *PDFParser) WithWorkers(n int) *PDFParser {
	p.workers = n
	return p
}

func (p *PDFParser) Descriptor() statement.Descriptor { return PDFDescriptor }

// Parse extracts text and segments it into candidates. A document whose text
// cannot be extracted yields an unsuccessful result rather than an error.
func (p *PDFParser) Parse(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) (*statement.ParseResult, error) {
	if err := checkInput(ctx, doc, cfg); err != nil {
		return nil, err
	}
	if !cfg.HasDocumentRules() {
		return nil, fmt.Errorf("bank config %q: %w", cfg.Name(), ErrNoDocumentRules)
	}

	pages, method, err := p.extractor.Extract(doc.Data)
	if err != nil {
		p.logger.Warn("pdf text extraction failed",
			slog.String("filename", doc.Filename),
			slog.Any("error", err))
		result := statement.NewParseResult(statement.FormatPDF)
		result.AddStructural(statement.StructuralParseError{Block: -1, Reason: err.Error()})
		result.Metadata["bank_config"] = cfg.Name()
		return result.Finalize(), nil
	}

	result, err := ParseLines(ctx, pages, cfg, LineOptions{
		FallbackYear: yearOf(doc.ReceivedAt),
		AccountHint:  doc.AccountHint,
		Workers:      p.workers,
	})
	if err != nil {
		return nil, err
	}
	result.Metadata["extraction_method"] = method

	p.logger.Debug("parsed pdf statement",
		slog.String("filename", doc.Filename),
		slog.String("method", method),
		slog.Int("candidates", len(result.Candidates)),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}

// LibraryExtractor extracts text with ledongthuc/pdf, trying row grouping
// first and falling back to coordinate reconstruction and plain text.
type LibraryExtractor struct{}

// Extract implements TextExtractor. The library panics on some malformed
// inputs; those are returned as errors.
func (LibraryExtractor) Extract(data []byte) (pages [][]string, method string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, method, err = nil, "", fmt.Errorf("pdf library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open pdf: %w", err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, "", fmt.Errorf("%w: document has no pages", ErrUnreadablePDF)
	}

	methods := []struct {
		name string
		fn   func(*pdf.Reader, int) []string
	}{
		{"rows", extractByRow},
		{"content", extractByContent},
		{"page_text", extractByPagePlainText},
		{"document_text", func(r *pdf.Reader, _ int) []string { return extractByReaderPlainText(r) }},
	}
	for _, m := range methods {
		text := m.fn(r, n)
		if readable(text) {
			out := make([][]string, len(text))
			for i, page := range text {
				out[i] = splitLines(page)
			}
			return out, m.name, nil
		}
	}
	return nil, "", ErrUnreadablePDF
}

func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent rebuilds rows from text object coordinates. PDF Y grows
// upwards, so rows are emitted in descending Y.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type item struct {
		x float64
		s string
	}
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}
		rows := make(map[int][]item)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rows[y] = append(rows[y], item{x: t.X, s: t.S})
		}
		ys := make([]int, 0, len(rows))
		for y := range rows {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		lines := make([]string, 0, len(ys))
		for _, y := range ys {
			items := rows[y]
			sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })
			var sb strings.Builder
			var prevX float64
			for j, it := range items {
				if j > 0 && it.x-prevX > 15 {
					sb.WriteString("  ")
				}
				sb.WriteString(it.s)
				prevX = it.x
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func extractByPagePlainText(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages
}

func extractByReaderPlainText(r *pdf.Reader) []string {
	reader, err := r.GetPlainText()
	if err != nil {
		return nil
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return []string{text}
	}
	return nil
}

// readable rejects empty output and the glyph soup produced by fonts without
// a usable encoding: at least 80% printable runes and at least one digit.
func readable(pages []string) bool {
	total, printable, digits := 0, 0, 0
	for _, p := range pages {
		for _, r := range p {
			total++
			if unicode.IsPrint(r) || unicode.IsSpace(r) {
				printable++
			}
			if unicode.IsDigit(r) {
				digits++
			}
		}
	}
	if total == 0 || digits == 0 {
		return false
	}
	return float64(printable)/float64(total) >= 0.8
}
