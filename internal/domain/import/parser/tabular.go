package parser

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

// TransactionRow is the header-tagged shape gocsv fills on the auto path.
// Headers are lower-cased and trimmed before matching.
type TransactionRow struct {
	Date        string `csv:"date"`
	DataMov     string `csv:"data mov."`
	Fecha       string `csv:"fecha"`
	Datum       string `csv:"datum"`
	Datum2      string `csv:"dátum"`
	DatumTx     string `csv:"dátum transakcie"`
	DatumPost   string `csv:"dátum zaúčtovania"`
	DatumPlatby string `csv:"datum platby"`
	Buchungstag string `csv:"buchungstag"`

	Description      string `csv:"description"`
	Descricao        string `csv:"descrição"`
	Descripcion      string `csv:"descripción"`
	Details          string `csv:"details"`
	Memo             string `csv:"memo"`
	Popis            string `csv:"popis"`
	PopisTx          string `csv:"popis transakcie"`
	Poznamka         string `csv:"poznámka"`
	Verwendungszweck string `csv:"verwendungszweck"`

	Merchant   string `csv:"merchant"`
	Payee      string `csv:"payee"`
	Obchodnik  string `csv:"obchodník"`
	Empfaenger string `csv:"empfänger"`

	Amount  string `csv:"amount"`
	Valor   string `csv:"valor"`
	Importe string `csv:"importe"`
	Suma    string `csv:"suma"`
	Ciastka string `csv:"čiastka"`
	Castka  string `csv:"částka"`
	Betrag  string `csv:"betrag"`

	Debit  string `csv:"debit"`
	Debito string `csv:"débito"`
	Vydaj  string `csv:"výdaj"`
	Soll   string `csv:"soll"`

	Credit  string `csv:"credit"`
	Credito string `csv:"crédito"`
	Prijem  string `csv:"príjem"`
	Haben   string `csv:"haben"`

	Currency string `csv:"currency"`
	Mena     string `csv:"mena"`
	Mena2    string `csv:"měna"`
	Waehrung string `csv:"währung"`

	Reference  string `csv:"reference"`
	Referencia string `csv:"referencia"`
	VS         string `csv:"variabilný symbol"`
	Referenz   string `csv:"referenz"`

	Category  string `csv:"category"`
	Categoria string `csv:"categoria"`
	Kategoria string `csv:"kategória"`
}

func (r TransactionRow) values() rowValues {
	return rowValues{
		date: coalesce(r.Date, r.DataMov, r.Fecha, r.Datum, r.Datum2, r.DatumTx, r.DatumPost,
			r.DatumPlatby, r.Buchungstag),
		description: coalesce(r.Description, r.Descricao, r.Descripcion, r.Details, r.Memo,
			r.Popis, r.PopisTx, r.Poznamka, r.Verwendungszweck),
		merchant:  coalesce(r.Merchant, r.Payee, r.Obchodnik, r.Empfaenger),
		amount:    coalesce(r.Amount, r.Valor, r.Importe, r.Suma, r.Ciastka, r.Castka, r.Betrag),
		debit:     coalesce(r.Debit, r.Debito, r.Vydaj, r.Soll),
		credit:    coalesce(r.Credit, r.Credito, r.Prijem, r.Haben),
		currency:  coalesce(r.Currency, r.Mena, r.Mena2, r.Waehrung),
		reference: coalesce(r.Reference, r.Referencia, r.VS, r.Referenz),
		category:  coalesce(r.Category, r.Categoria, r.Kategoria),
	}
}

// rowValues are the raw cell strings of one record, keyed by meaning.
type rowValues struct {
	date, description, merchant   string
	amount, debit, credit         string
	currency, reference, category string
}

func (v rowValues) hasAmount() bool {
	return v.amount != "" || v.debit != "" || v.credit != ""
}

// record is one data row with its one-based source line.
type record struct {
	cells []string
	line  int
}

func (r record) blank() bool {
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// columnMap holds zero-based column indices; -1 means absent.
type columnMap struct {
	date, description, merchant   int
	amount, debit, credit         int
	currency, reference, category int
}

func (m columnMap) values(cells []string) rowValues {
	get := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}
	return rowValues{
		date:        get(m.date),
		description: get(m.description),
		merchant:    get(m.merchant),
		amount:      get(m.amount),
		debit:       get(m.debit),
		credit:      get(m.credit),
		currency:    get(m.currency),
		reference:   get(m.reference),
		category:    get(m.category),
	}
}

func (m columnMap) usable() bool {
	return m.date >= 0 && (m.amount >= 0 || m.debit >= 0 || m.credit >= 0)
}

// explicitColumns resolves configured column references against headers.
func explicitColumns(headers []string, cols bankconfig.Columns) (columnMap, error) {
	resolve := func(ref bankconfig.ColumnRef) int {
		if !ref.IsSet() {
			return -1
		}
		return ref.Resolve(headers)
	}
	m := columnMap{
		date:        resolve(cols.Date),
		description: resolve(cols.Description),
		merchant:    resolve(cols.Merchant),
		amount:      resolve(cols.Amount),
		debit:       resolve(cols.Debit),
		credit:      resolve(cols.Credit),
		currency:    resolve(cols.Currency),
		reference:   resolve(cols.Reference),
		category:    resolve(cols.Category),
	}
	if !m.usable() {
		return m, fmt.Errorf("configured columns: %w in headers %q", ErrNoColumns, headers)
	}
	return m, nil
}

// suggestedColumns maps headers through the sniffer's keyword table.
func suggestedColumns(headers []string) (columnMap, bool) {
	s := sniffer.SuggestColumns(headers)
	m := columnMap{
		date:        s.DateCol,
		description: s.DescCol,
		merchant:    s.MerchantCol,
		amount:      s.AmountCol,
		debit:       s.DebitCol,
		credit:      s.CreditCol,
		currency:    s.CurrencyCol,
		reference:   s.ReferenceCol,
		category:    s.CategoryCol,
	}
	return m, m.usable()
}

// sliceReader feeds already-split records to gocsv. Rows are padded or cut
// to the header width.
type sliceReader struct {
	rows [][]string
	pos  int
}

func newSliceReader(headers []string, records []record) *sliceReader {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, normalizeHeaders(headers))
	for _, r := range records {
		row := make([]string, len(headers))
		copy(row, r.cells)
		rows = append(rows, row)
	}
	return &sliceReader{rows: rows}
}

func (s *sliceReader) Read() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceReader) ReadAll() ([][]string, error) {
	rest := s.rows[s.pos:]
	s.pos = len(s.rows)
	return rest, nil
}

var _ gocsv.CSVReader = (*sliceReader)(nil)

func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.ToLower(collapseSpaces(strings.Trim(h, "\ufeff\"")))
	}
	return out
}

// autoValues maps records through the gocsv header tags, falling back to the
// keyword suggestions when no record yields a date.
func autoValues(headers []string, records []record) ([]rowValues, error) {
	var rows []TransactionRow
	if err := gocsv.UnmarshalCSV(newSliceReader(headers, records), &rows); err != nil {
		return nil, fmt.Errorf("failed to map rows by header: %w", err)
	}
	out := make([]rowValues, len(rows))
	dated := false
	for i, r := range rows {
		out[i] = r.values()
		if out[i].date != "" && out[i].hasAmount() {
			dated = true
		}
	}
	if dated && len(out) == len(records) {
		return out, nil
	}

	m, ok := suggestedColumns(headers)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoColumns, headers)
	}
	for i, r := range records {
		out[i] = m.values(r.cells)
	}
	return out, nil
}

// cellOptions tune value parsing for spreadsheet cells.
type cellOptions struct {
	machineNumbers bool // plain "1234.5" cells are numbers, not locale text
	serialDates    bool // numeric date cells are spreadsheet serials
}

// ErrNoColumns is reported when neither the config nor the headers locate a
// date and an amount column.
var ErrNoColumns = errors.New("no date and amount columns recognised")

var machineNumber = regexp.MustCompile(`^-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?$`)

// rowMapper turns mapped record values into candidates.
type rowMapper struct {
	cfg         *bankconfig.Compiled
	style       money.NumberStyle
	layouts     []string
	accountHint string
	opts        cellOptions
}

func newRowMapper(cfg *bankconfig.Compiled, accountHint string, opts cellOptions) *rowMapper {
	return &rowMapper{
		cfg:         cfg,
		style:       cfg.Style,
		layouts:     cfg.DateLayouts,
		accountHint: accountHint,
		opts:        opts,
	}
}

// probe adopts the dialect of the first rows when the config leaves
// separators open. Month-first files get US layouts tried first.
func (m *rowMapper) probe(values []rowValues) *sniffer.RegionalDialect {
	if !m.cfg.ProbeStyle {
		return nil
	}
	n := min(len(values), 20)
	sample := make([][]string, 0, n)
	for _, v := range values[:n] {
		sample = append(sample, []string{coalesce(v.amount, v.debit, v.credit), v.date})
	}
	d := sniffer.ProbeDialect(sample, 0, 1)
	m.style = d.Style()
	if !d.DayFirst {
		m.layouts = append([]string{"01/02/2006", "1/2/2006", "01-02-2006"}, m.layouts...)
	}
	return d
}

// mapRecords builds a result from mapped rows. Blank records are skipped;
// a non-blank record without a date or amount is a structural error.
func (m *rowMapper) mapRecords(format statement.Format, records []record, values []rowValues, delim string) *statement.ParseResult {
	result := statement.NewParseResult(format)
	skipped := 0
	for i, rec := range records {
		if rec.blank() {
			skipped++
			continue
		}
		raw := strings.Join(rec.cells, delim)
		v := values[i]
		if v.date == "" || !v.hasAmount() {
			result.AddStructural(statement.StructuralParseError{
				Block:  i,
				Line:   rec.line,
				Raw:    raw,
				Reason: "record has no date or amount value",
			})
			continue
		}
		result.Append(m.candidate(v, i, rec.line, raw))
	}
	result.Metadata["records"] = strconv.Itoa(len(records))
	result.Metadata["blank_records"] = strconv.Itoa(skipped)
	result.Metadata["bank_config"] = m.cfg.Name()
	return result
}

func (m *rowMapper) candidate(v rowValues, block, line int, raw string) statement.Candidate {
	c := statement.Candidate{
		Block:       block,
		Line:        line,
		Description: cleanDescription(v.description),
		Merchant:    v.merchant,
		Reference:   v.reference,
		Category:    v.category,
		AccountHint: m.accountHint,
		RawLines:    []string{raw},
	}
	if c.Description == "" {
		c.Description = cleanDescription(v.merchant)
	}

	if t, err := m.date(v.date); err != nil {
		c.AddFieldError(bankconfig.GroupDate, v.date, err)
	} else {
		c.Date = t
	}

	amount, found, err := m.amount(v)
	if err != nil {
		c.AddFieldError(bankconfig.GroupAmount, coalesce(v.amount, v.debit, v.credit), err)
	} else {
		c.Amount = decimal.NewNullDecimal(amount)
	}

	switch {
	case v.currency != "":
		code, ok := normalizeCurrency(v.currency)
		if !ok {
			c.AddFieldError(bankconfig.GroupCurrency, v.currency, fmt.Errorf("unknown currency code %q", v.currency))
			break
		}
		c.Currency = code
	case found != "":
		c.Currency = found
	default:
		c.Currency = m.cfg.Currency
	}
	return c
}

func (m *rowMapper) date(raw string) (time.Time, error) {
	if m.opts.serialDates && machineNumber.MatchString(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 1 && f < 2958466 {
			return excelSerialDate(f)
		}
	}
	return ParseDate(raw, m.layouts)
}

// amount applies the sign convention to a single amount column. Debit and
// credit columns net out to credit minus debit under every convention.
func (m *rowMapper) amount(v rowValues) (decimal.Decimal, string, error) {
	if v.amount != "" {
		d, cur, err := m.number(v.amount)
		if err != nil {
			return decimal.Zero, "", err
		}
		return applySign(d, m.cfg), cur, nil
	}

	total := decimal.Zero
	var currency string
	if v.debit != "" {
		d, cur, err := m.number(v.debit)
		if err != nil {
			return decimal.Zero, "", err
		}
		total = total.Sub(d.Abs())
		currency = cur
	}
	if v.credit != "" {
		d, cur, err := m.number(v.credit)
		if err != nil {
			return decimal.Zero, "", err
		}
		total = total.Add(d.Abs())
		if currency == "" {
			currency = cur
		}
	}
	return total, currency, nil
}

func (m *rowMapper) number(raw string) (decimal.Decimal, string, error) {
	if m.opts.machineNumbers && machineNumber.MatchString(raw) {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("%w: %q", money.ErrInvalidAmount, raw)
		}
		return d, "", nil
	}
	parsed, err := money.ParseAmount(raw, m.style)
	if err != nil {
		return decimal.Zero, "", err
	}
	return parsed.Amount, parsed.Currency, nil
}

// coalesce returns the first non-empty trimmed string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func cleanDescription(s string) string {
	return collapseSpaces(s)
}
