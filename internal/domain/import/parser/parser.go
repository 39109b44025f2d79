// Package parser turns raw statement documents into candidate transactions.
// Page documents (PDF) are segmented into blocks by bank-config line
// patterns; delimited text and spreadsheets share a row mapper with an
// explicit column path and a gocsv header-tag path; OFX and QIF map their own
// record structures.
package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// cancelCheckEvery is how many records are read between context checks.
const cancelCheckEvery = 512

// DelimitedParser reads CSV, TSV and other delimited text exports.
type DelimitedParser struct {
	logger *slog.Logger
}

// NewDelimitedParser creates a delimited text parser.
func NewDelimitedParser(logger *slog.Logger) *DelimitedParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &DelimitedParser{logger: logger}
}

func (p *DelimitedParser) Descriptor() statement.Descriptor { return DelimitedDescriptor }

// Parse decodes the text, locates the header row and delimiter, and maps each
// record. Records that cannot be read are reported and skipped.
func (p *DelimitedParser) Parse(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) (*statement.ParseResult, error) {
	if err := checkInput(ctx, doc, cfg); err != nil {
		return nil, err
	}

	text, encName, err := DecodeText(doc.Data, cfg.Encoding)
	if err != nil {
		return documentFailure(statement.FormatCSV, cfg, err), nil
	}

	opts := &sniffer.DetectOptions{HeaderRowIndex: -1, Delimiter: cfg.Delimiter}
	if cfg.Config.SkipLines > 0 {
		opts.HeaderRowIndex = cfg.Config.SkipLines
	}
	fc, err := sniffer.DetectConfigWithOptions([]byte(text), opts)
	if err != nil {
		return documentFailure(statement.FormatCSV, cfg, fmt.Errorf("failed to locate header row: %w", err)), nil
	}

	headers, records, readErrs, err := readDelimited(ctx, text, fc.SkipLines, fc.Delimiter)
	if err != nil {
		return nil, err
	}

	var values []rowValues
	mode := "auto"
	if cfg.Config.Columns.Explicit() {
		mode = "explicit"
		cols, colErr := explicitColumns(headers, cfg.Config.Columns)
		if colErr != nil {
			return documentFailure(statement.FormatCSV, cfg, colErr), nil
		}
		values = make([]rowValues, len(records))
		for i, r := range records {
			values[i] = cols.values(r.cells)
		}
	} else {
		values, err = autoValues(headers, records)
		if err != nil {
			return documentFailure(statement.FormatCSV, cfg, err), nil
		}
	}

	mapper := newRowMapper(cfg, doc.AccountHint, cellOptions{})
	mapper.probe(values)
	result := mapper.mapRecords(statement.FormatCSV, records, values, string(fc.Delimiter))
	for _, e := range readErrs {
		result.AddStructural(e)
	}

	result.Metadata["delimiter"] = string(fc.Delimiter)
	result.Metadata["encoding"] = encName
	result.Metadata["header_line"] = strconv.Itoa(fc.SkipLines + 1)
	result.Metadata["header_fingerprint"] = fc.Fingerprint
	result.Metadata["columns"] = mode
	result.Metadata["decimal_separator"] = string(mapper.style.Decimal)

	p.logger.Debug("parsed delimited statement",
		slog.String("filename", doc.Filename),
		slog.String("delimiter", string(fc.Delimiter)),
		slog.String("encoding", encName),
		slog.Int("records", len(records)),
		slog.Int("candidates", len(result.Candidates)))
	return result.Finalize(), nil
}

// readDelimited reads the header and data records that follow skip lines.
// Record line numbers are one-based over the whole text.
func readDelimited(ctx context.Context, text string, skip int, delim rune) ([]string, []record, []statement.StructuralParseError, error) {
	lines := splitLines(text)
	if skip > len(lines) {
		skip = len(lines)
	}
	r := csv.NewReader(strings.NewReader(strings.Join(lines[skip:], "\n")))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	headers, err := r.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var (
		records []record
		errs    []statement.StructuralParseError
	)
	for n := 0; ; n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, nil, err
			}
		}
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			errs = append(errs, statement.StructuralParseError{
				Block:  -1,
				Line:   skip + pe.Line,
				Reason: pe.Err.Error(),
			})
			continue
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read record: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, record{cells: cells, line: skip + line})
	}
	return headers, records, errs, nil
}

// documentFailure reports a document that could not be mapped at all.
func documentFailure(format statement.Format, cfg *bankconfig.Compiled, err error) *statement.ParseResult {
	result := statement.NewParseResult(format)
	result.AddStructural(statement.StructuralParseError{Block: -1, Reason: err.Error()})
	result.Metadata["bank_config"] = cfg.Name()
	return result.Finalize()
}
