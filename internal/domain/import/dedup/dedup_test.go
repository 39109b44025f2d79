package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

// fakeLookup answers range queries from a slice, the way the store would.
type fakeLookup struct {
	records []ExistingTransaction
	queries []Query
	err     error
}

func (f *fakeLookup) FindInRange(_ context.Context, q Query) ([]ExistingTransaction, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []ExistingTransaction
	for _, r := range f.records {
		if r.Date.Before(q.From) || r.Date.After(q.To) {
			continue
		}
		if r.Amount.LessThan(q.MinAmount) || r.Amount.GreaterThan(q.MaxAmount) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func day(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func candidate(idx int, date time.Time, amt, merchant, desc string) statement.Candidate {
	return statement.Candidate{
		Index:       idx,
		Date:        date,
		Amount:      amount(amt),
		Currency:    "EUR",
		Merchant:    merchant,
		Description: desc,
	}
}

func existing(id string, date time.Time, amt, merchant, desc string) ExistingTransaction {
	return ExistingTransaction{
		ID:          id,
		Date:        date,
		Amount:      decimal.RequireFromString(amt),
		Currency:    "EUR",
		Merchant:    merchant,
		Description: desc,
	}
}

func TestEngine_Assess_MerchantCasingOneDayApart(t *testing.T) {
	lookup := &fakeLookup{records: []ExistingTransaction{
		existing("tx-1", day(3, 2), "-2.04", "Supermarket Fresh Plu", "Transakcia platobnou kartou"),
	}}
	cands := []statement.Candidate{
		candidate(0, day(3, 1), "-2.04", "SUPERMARKET FRESH PLU", "Transakcia platobnou kartou"),
	}

	got, err := NewEngine().Assess(context.Background(), cands, lookup)
	require.NoError(t, err)
	require.Len(t, got, 1)

	a := got[0]
	assert.True(t, a.IsLikelyDuplicate)
	assert.Greater(t, a.Confidence, 0.7)
	assert.InDelta(t, 0.9, a.Confidence, 1e-9)
	require.Len(t, a.Matches, 1)
	assert.Equal(t, "tx-1", a.Matches[0].ExistingID)
	assert.Contains(t, a.Matches[0].Reasons, "same amount")
	assert.Contains(t, a.Matches[0].Reasons, "date within 1 day")
	assert.Contains(t, a.Matches[0].Reasons, "description keyword overlap (100%)")
	assert.Contains(t, a.Matches[0].Reasons, "similar merchant name")
}

func TestEngine_Assess_Scoring(t *testing.T) {
	tests := []struct {
		name      string
		engine    *Engine
		cand      statement.Candidate
		existing  ExistingTransaction
		wantScore float64
		wantDup   bool
		wantMatch bool
		reason    string
	}{
		{
			name:      "same day same text",
			engine:    NewEngine(),
			cand:      candidate(0, day(4, 10), "-15.00", "BILLA", "Platba kartou BILLA"),
			existing:  existing("a", day(4, 10), "-15.00", "BILLA", "BILLA 112"),
			wantScore: 1,
			wantDup:   true,
			wantMatch: true,
			reason:    "same date",
		},
		{
			name:      "amount within tolerance",
			engine:    NewEngine().WithAmountTolerance(decimal.RequireFromString("1")),
			cand:      candidate(0, day(4, 10), "-2.04", "LIDL", "LIDL"),
			existing:  existing("a", day(4, 10), "-2.54", "LIDL", "LIDL"),
			wantScore: 0.8,
			wantDup:   true,
			wantMatch: true,
			reason:    "amount within tolerance",
		},
		{
			name:      "reported but below the duplicate threshold",
			engine:    NewEngine(),
			cand:      candidate(0, day(4, 10), "-9.90", "NETFLIX", "Netflix"),
			existing:  existing("a", day(4, 12), "-9.90", "SPOTIFY", "Spotify"),
			wantScore: 0.5,
			wantDup:   false,
			wantMatch: true,
			reason:    "date within 2 days",
		},
		{
			name:     "outside the window",
			engine:   NewEngine(),
			cand:     candidate(0, day(4, 10), "-9.90", "NETFLIX", "Netflix"),
			existing: existing("a", day(4, 14), "-9.90", "NETFLIX", "Netflix"),
		},
		{
			name:     "different amount with exact matching",
			engine:   NewEngine(),
			cand:     candidate(0, day(4, 10), "-9.90", "NETFLIX", "Netflix"),
			existing: existing("a", day(4, 10), "-9.91", "NETFLIX", "Netflix"),
		},
		{
			name:   "different currency",
			engine: NewEngine(),
			cand:   candidate(0, day(4, 10), "-9.90", "NETFLIX", "Netflix"),
			existing: func() ExistingTransaction {
				x := existing("a", day(4, 10), "-9.90", "NETFLIX", "Netflix")
				x.Currency = "CZK"
				return x
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &fakeLookup{records: []ExistingTransaction{tt.existing}}
			got, err := tt.engine.Assess(context.Background(), []statement.Candidate{tt.cand}, lookup)
			require.NoError(t, err)
			require.Len(t, got, 1)

			a := got[0]
			assert.Equal(t, tt.wantDup, a.IsLikelyDuplicate)
			if !tt.wantMatch {
				assert.Empty(t, a.Matches)
				assert.Zero(t, a.Confidence)
				return
			}
			require.Len(t, a.Matches, 1)
			assert.InDelta(t, tt.wantScore, a.Confidence, 1e-9)
			assert.Contains(t, a.Matches[0].Reasons, tt.reason)
		})
	}
}

func TestEngine_Assess_BatchesLookups(t *testing.T) {
	lookup := &fakeLookup{}
	cands := []statement.Candidate{
		candidate(0, day(3, 20), "-1.00", "", "a"),
		candidate(1, day(3, 1), "-5.00", "", "b"),
		candidate(2, day(3, 3), "-2.00", "", "c"),
	}

	_, err := NewEngine().Assess(context.Background(), cands, lookup)
	require.NoError(t, err)

	require.Len(t, lookup.queries, 2)
	first := lookup.queries[0]
	assert.Equal(t, day(2, 26), first.From)
	assert.Equal(t, day(3, 6), first.To)
	assert.True(t, decimal.RequireFromString("-5").Equal(first.MinAmount))
	assert.True(t, decimal.RequireFromString("-2").Equal(first.MaxAmount))

	second := lookup.queries[1]
	assert.Equal(t, day(3, 17), second.From)
	assert.Equal(t, day(3, 23), second.To)
}

func TestEngine_Assess_IncompleteCandidates(t *testing.T) {
	lookup := &fakeLookup{}
	cands := []statement.Candidate{
		{Index: 0, Description: "no date", Amount: amount("-1")},
		{Index: 1, Description: "no amount", Date: day(1, 1)},
	}

	got, err := NewEngine().Assess(context.Background(), cands, lookup)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, a := range got {
		assert.False(t, a.IsLikelyDuplicate)
		assert.Zero(t, a.Confidence)
		assert.NotEmpty(t, a.Note)
	}
	assert.Empty(t, lookup.queries)
}

func TestEngine_Assess_Ties(t *testing.T) {
	records := []ExistingTransaction{
		existing("b", day(5, 1), "-20.00", "SHELL", "SHELL"),
		existing("a", day(5, 1), "-20.00", "SHELL", "SHELL"),
	}
	cands := []statement.Candidate{candidate(7, day(5, 1), "-20.00", "SHELL", "SHELL")}

	t.Run("default mode reports both", func(t *testing.T) {
		got, err := NewEngine().Assess(context.Background(), cands, &fakeLookup{records: records})
		require.NoError(t, err)
		require.Len(t, got[0].Matches, 2)
		assert.Equal(t, "a", got[0].Matches[0].ExistingID)
		assert.Equal(t, "b", got[0].Matches[1].ExistingID)
		assert.True(t, got[0].IsLikelyDuplicate)
	})

	t.Run("strict mode fails", func(t *testing.T) {
		_, err := NewEngine().WithStrict(true).Assess(context.Background(), cands, &fakeLookup{records: records})
		var ambiguous *statement.DuplicateAmbiguousError
		require.True(t, errors.As(err, &ambiguous))
		assert.Equal(t, 7, ambiguous.Candidate)
		assert.Equal(t, []string{"a", "b"}, ambiguous.Matches)
	})
}

func TestEngine_Assess_LookupError(t *testing.T) {
	boom := errors.New("connection reset")
	cands := []statement.Candidate{candidate(0, day(1, 1), "-1", "", "x")}

	_, err := NewEngine().Assess(context.Background(), cands, &fakeLookup{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestEngine_Assess_Deterministic(t *testing.T) {
	gen := money.NewTestDataGeneratorWithSeed(42)
	var records []ExistingTransaction
	for i, tx := range gen.Transactions(money.EUR, 300) {
		records = append(records, ExistingTransaction{
			ID:          fmt.Sprintf("tx-%03d", i),
			Date:        tx.Date,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Description: tx.Description,
			Merchant:    tx.Merchant,
		})
	}
	var cands []statement.Candidate
	for i, r := range records[:100] {
		cands = append(cands, statement.Candidate{
			Index:       i,
			Date:        r.Date.AddDate(0, 0, i%3),
			Amount:      decimal.NewNullDecimal(r.Amount),
			Currency:    r.Currency,
			Merchant:    r.Merchant,
			Description: r.Description,
		})
	}

	engine := NewEngine().WithAmountTolerance(decimal.RequireFromString("0.50"))
	first, err := engine.Assess(context.Background(), cands, &fakeLookup{records: records})
	require.NoError(t, err)
	second, err := engine.Assess(context.Background(), cands, &fakeLookup{records: records})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for _, a := range first {
		assert.True(t, a.IsLikelyDuplicate, "candidate %d copies an existing record", a.Candidate)
	}
}

func TestKeywordsAndJaccard(t *testing.T) {
	a := keywords("Transakcia platobnou kartou", "Nákup LIDL 1234")
	assert.Equal(t, map[string]struct{}{"lidl": {}}, a)

	b := keywords("LIDL SLOVENSKO")
	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)
	assert.Zero(t, jaccard(keywords(""), keywords("")))
}

func TestSimilarMerchant(t *testing.T) {
	assert.True(t, similarMerchant("STARBUCKS 001", "Starbucks 002"))
	assert.False(t, similarMerchant("NETFLIX", "SPOTIFY"))
	assert.False(t, similarMerchant("DM", "DM"))
}
