package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// headerScanRows bounds the search for a header row in spreadsheets with
// title blocks above the table.
const headerScanRows = 30

var ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// preferredSheets are tried, case-insensitively, when the config names no sheet.
var preferredSheets = []string{
	"transactions", "transakcie", "pohyby", "transakce", "umsätze",
	"movimentos", "extrato", "statement",
}

// ExcelParser reads OOXML workbooks with excelize and legacy BIFF .xls files
// with extrame/xls.
type ExcelParser struct {
	logger *slog.Logger
}

// NewExcelParser creates a spreadsheet parser.
func NewExcelParser(logger *slog.Logger) *ExcelParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelParser{logger: logger}
}

func (p *ExcelParser) Descriptor() statement.Descriptor { return ExcelDescriptor }

// Parse picks a sheet, finds its header row and maps the rows below it.
func (p *ExcelParser) Parse(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) (*statement.ParseResult, error) {
	if err := checkInput(ctx, doc, cfg); err != nil {
		return nil, err
	}

	var (
		sheets  []sheetRows
		err     error
		variant string
	)
	if bytes.HasPrefix(doc.Data, ole2Magic) {
		variant = "xls"
		sheets, err = readXLS(doc.Data)
	} else {
		variant = "xlsx"
		sheets, err = readXLSX(doc.Data)
	}
	if err != nil {
		return documentFailure(statement.FormatExcel, cfg, err), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sheet, headerIdx, ok := pickSheet(sheets, cfg)
	if !ok {
		return documentFailure(statement.FormatExcel, cfg, fmt.Errorf("%w in any sheet", ErrNoColumns)), nil
	}

	headers := sheet.rows[headerIdx]
	records := make([]record, 0, len(sheet.rows)-headerIdx-1)
	for i := headerIdx + 1; i < len(sheet.rows); i++ {
		records = append(records, record{cells: sheet.rows[i], line: i + 1})
	}

	var values []rowValues
	mode := "auto"
	if cfg.Config.Columns.Explicit() {
		mode = "explicit"
		cols, colErr := explicitColumns(headers, cfg.Config.Columns)
		if colErr != nil {
			return documentFailure(statement.FormatExcel, cfg, colErr), nil
		}
		values = make([]rowValues, len(records))
		for i, r := range records {
			values[i] = cols.values(r.cells)
		}
	} else {
		values, err = autoValues(headers, records)
		if err != nil {
			return documentFailure(statement.FormatExcel, cfg, err), nil
		}
	}

	mapper := newRowMapper(cfg, doc.AccountHint, cellOptions{machineNumbers: true, serialDates: true})
	mapper.probe(values)
	result := mapper.mapRecords(statement.FormatExcel, records, values, "\t")
	result.Metadata["sheet"] = sheet.name
	result.Metadata["header_line"] = strconv.Itoa(headerIdx + 1)
	result.Metadata["workbook"] = variant
	result.Metadata["columns"] = mode

	p.logger.Debug("parsed spreadsheet statement",
		slog.String("filename", doc.Filename),
		slog.String("sheet", sheet.name),
		slog.String("workbook", variant),
		slog.Int("candidates", len(result.Candidates)))
	return result.Finalize(), nil
}

type sheetRows struct {
	name string
	rows [][]string
}

func readXLSX(data []byte) ([]sheetRows, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	out := make([]sheetRows, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		out = append(out, sheetRows{name: name, rows: rows})
	}
	return out, nil
}

// readXLS reads every sheet of a BIFF workbook. The decoder panics on some
// truncated files; those surface as errors.
func readXLS(data []byte) (sheets []sheetRows, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("failed to read xls workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	out := make([]sheetRows, 0, wb.NumSheets())
	for s := 0; s < wb.NumSheets(); s++ {
		sheet := wb.GetSheet(s)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for i := 0; i <= int(sheet.MaxRow); i++ {
			row := sheet.Row(i)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for j := range cells {
				cells[j] = strings.TrimSpace(row.Col(j))
			}
			rows = append(rows, cells)
		}
		out = append(out, sheetRows{name: sheet.Name, rows: rows})
	}
	return out, nil
}

// pickSheet chooses the configured sheet, then a preferred name, then the
// first sheet with a recognisable header row.
func pickSheet(sheets []sheetRows, cfg *bankconfig.Compiled) (sheetRows, int, bool) {
	find := func(s sheetRows) (int, bool) {
		if cfg.Config.SkipLines > 0 {
			return cfg.Config.SkipLines, cfg.Config.SkipLines < len(s.rows)
		}
		return findHeader(s.rows, cfg.Config.Columns)
	}

	if name := cfg.Config.Sheet; name != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.name, name) {
				idx, ok := find(s)
				return s, idx, ok
			}
		}
	}
	for _, preferred := range preferredSheets {
		for _, s := range sheets {
			if strings.EqualFold(s.name, preferred) {
				if idx, ok := find(s); ok {
					return s, idx, true
				}
			}
		}
	}
	for _, s := range sheets {
		if idx, ok := find(s); ok {
			return s, idx, true
		}
	}
	return sheetRows{}, 0, false
}

// findHeader returns the first row that resolves to a date and an amount
// column, through the configured columns when set.
func findHeader(rows [][]string, cols bankconfig.Columns) (int, bool) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if len(rows[i]) == 0 {
			continue
		}
		if cols.Explicit() {
			if _, err := explicitColumns(rows[i], cols); err == nil {
				return i, true
			}
			continue
		}
		if _, ok := suggestedColumns(rows[i]); ok {
			return i, true
		}
	}
	return 0, false
}

// excelSerialDate converts a spreadsheet date serial in the 1900 system.
func excelSerialDate(serial float64) (time.Time, error) {
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: serial %v", ErrInvalidDate, serial)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
