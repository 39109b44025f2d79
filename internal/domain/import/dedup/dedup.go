// Package dedup scores candidate transactions against transactions already in
// the store and flags the likely duplicates.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// Score weights of the composite similarity.
const (
	weightAmount = 0.4
	weightDate   = 0.3
	weightText   = 0.3
)

// Defaults used by NewEngine.
const (
	DefaultWindowDays         = 3
	DefaultDuplicateThreshold = 0.7
	DefaultReportThreshold    = 0.4
)

// ExistingTransaction is a stored transaction as returned by a lookup.
type ExistingTransaction struct {
	ID          string
	Date        time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	Merchant    string
	AccountHint string
}

// Query selects stored transactions whose date lies in [From, To] and whose
// amount lies in [MinAmount, MaxAmount], both bounds inclusive.
type Query struct {
	From      time.Time
	To        time.Time
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// Lookup is the read side of the transaction store.
type Lookup interface {
	FindInRange(ctx context.Context, q Query) ([]ExistingTransaction, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, q Query) ([]ExistingTransaction, error)

func (f LookupFunc) FindInRange(ctx context.Context, q Query) ([]ExistingTransaction, error) {
	return f(ctx, q)
}

// Match is one stored transaction that scored above the report threshold.
type Match struct {
	ExistingID string   `json:"existing_id"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Assessment is the duplicate judgement for one candidate.
type Assessment struct {
	Candidate         int     `json:"candidate"`
	IsLikelyDuplicate bool    `json:"is_likely_duplicate"`
	Confidence        float64 `json:"confidence"`
	Matches           []Match `json:"matches"`
	Note              string  `json:"note,omitempty"`
}

// Engine runs duplicate detection. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	windowDays         int
	tolerance          decimal.Decimal
	duplicateThreshold float64
	reportThreshold    float64
	strict             bool
	logger             *slog.Logger
	tracer             trace.Tracer
}

// NewEngine returns an engine with a three-day window, exact amounts and the
// 0.7 / 0.4 thresholds.
func NewEngine() *Engine {
	return &Engine{
		windowDays:         DefaultWindowDays,
		tolerance:          decimal.Zero,
		duplicateThreshold: DefaultDuplicateThreshold,
		reportThreshold:    DefaultReportThreshold,
		logger:             slog.Default(),
		tracer:             otel.Tracer("statement-import/dedup"),
	}
}

// WithWindow sets the ± date window in days.
func (e *Engine) WithWindow(days int) *Engine {
	if days >= 0 {
		e.windowDays = days
	}
	return e
}

// WithAmountTolerance sets the absolute amount tolerance.
func (e *Engine) WithAmountTolerance(tol decimal.Decimal) *Engine {
	e.tolerance = tol.Abs()
	return e
}

// WithThresholds sets the duplicate and report thresholds.
func (e *Engine) WithThresholds(duplicate, report float64) *Engine {
	e.duplicateThreshold = duplicate
	e.reportThreshold = report
	return e
}

// WithStrict makes ties for the best duplicate score an error.
func (e *Engine) WithStrict(strict bool) *Engine {
	e.strict = strict
	return e
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Window returns the configured date window in days.
func (e *Engine) Window() int { return e.windowDays }

// Assess scores every candidate against the stored transactions near it.
// Lookups are batched: one query per merged date range. The result has one
// assessment per candidate, in candidate order.
func (e *Engine) Assess(ctx context.Context, candidates []statement.Candidate, lookup Lookup) ([]Assessment, error) {
	ctx, span := e.tracer.Start(ctx, "dedup.Assess")
	defer span.End()
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	out := make([]Assessment, len(candidates))
	var comparable []int
	for i, c := range candidates {
		out[i] = Assessment{Candidate: c.Index, Matches: []Match{}}
		if !c.HasDate() || !c.Amount.Valid {
			out[i].Note = "candidate has no date or amount and was not compared"
			continue
		}
		comparable = append(comparable, i)
	}

	batches := planBatches(candidates, comparable, e.windowDays, e.tolerance)
	span.SetAttributes(attribute.Int("lookups", len(batches)))

	for _, b := range batches {
		existing, err := e.find(ctx, lookup, b.query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
			return nil, err
		}
		e.logger.Debug("dedup batch",
			slog.Time("from", b.query.From),
			slog.Time("to", b.query.To),
			slog.Int("candidates", len(b.members)),
			slog.Int("existing", len(existing)))

		for _, i := range b.members {
			a, err := e.assessOne(candidates[i], existing)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "ambiguous duplicate")
				return nil, err
			}
			out[i] = a
		}
	}

	flagged := 0
	for _, a := range out {
		if a.IsLikelyDuplicate {
			flagged++
		}
	}
	span.SetAttributes(attribute.Int("flagged", flagged))
	return out, nil
}

func (e *Engine) find(ctx context.Context, lookup Lookup, q Query) ([]ExistingTransaction, error) {
	ctx, span := e.tracer.Start(ctx, "dedup.FindInRange")
	defer span.End()
	span.SetAttributes(
		attribute.String("from", q.From.Format(time.DateOnly)),
		attribute.String("to", q.To.Format(time.DateOnly)),
	)
	existing, err := lookup.FindInRange(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to look up existing transactions: %w", err)
	}
	span.SetAttributes(attribute.Int("existing", len(existing)))
	return existing, nil
}

func (e *Engine) assessOne(c statement.Candidate, existing []ExistingTransaction) (Assessment, error) {
	a := Assessment{Candidate: c.Index, Matches: []Match{}}
	ck := keywords(c.Description, c.Merchant)

	for _, x := range existing {
		days := dayDistance(c.Date, x.Date)
		if days > e.windowDays {
			continue
		}
		diff := c.Amount.Decimal.Sub(x.Amount).Abs()
		if diff.GreaterThan(e.tolerance) {
			continue
		}
		if c.Currency != "" && x.Currency != "" && c.Currency != x.Currency {
			continue
		}

		amountSim := e.amountSimilarity(diff)
		dateSim := e.dateSimilarity(days)
		textSim := jaccard(ck, keywords(x.Description, x.Merchant))
		score := weightAmount*amountSim + weightDate*dateSim + weightText*textSim
		if score < e.reportThreshold {
			continue
		}
		a.Matches = append(a.Matches, Match{
			ExistingID: x.ID,
			Score:      score,
			Reasons:    reasons(c, x, diff, days, textSim),
		})
	}

	sort.Slice(a.Matches, func(i, j int) bool {
		if a.Matches[i].Score != a.Matches[j].Score {
			return a.Matches[i].Score > a.Matches[j].Score
		}
		return a.Matches[i].ExistingID < a.Matches[j].ExistingID
	})
	if len(a.Matches) == 0 {
		return a, nil
	}

	best := a.Matches[0].Score
	a.Confidence = best
	a.IsLikelyDuplicate = best > e.duplicateThreshold

	if e.strict && a.IsLikelyDuplicate {
		var tied []string
		for _, m := range a.Matches {
			if m.Score == best {
				tied = append(tied, m.ExistingID)
			}
		}
		if len(tied) > 1 {
			return Assessment{}, &statement.DuplicateAmbiguousError{Candidate: c.Index, Matches: tied}
		}
	}
	return a, nil
}

// amountSimilarity is 1 for equal amounts and falls linearly to 0 at the
// tolerance. With zero tolerance only equal amounts reach this point.
func (e *Engine) amountSimilarity(diff decimal.Decimal) float64 {
	if diff.IsZero() {
		return 1
	}
	if e.tolerance.IsZero() {
		return 0
	}
	return 1 - diff.Div(e.tolerance).InexactFloat64()
}

// dateSimilarity is 1 on the same day and falls linearly to 0 at the window edge.
func (e *Engine) dateSimilarity(days int) float64 {
	if days == 0 {
		return 1
	}
	if e.windowDays == 0 {
		return 0
	}
	return 1 - float64(days)/float64(e.windowDays)
}

// dayDistance counts calendar days between the dates of a and b.
func dayDistance(a, b time.Time) int {
	d := int(civil(a).Sub(civil(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
