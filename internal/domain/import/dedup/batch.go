package dedup

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// batch is one lookup shared by the candidates whose windows overlap.
type batch struct {
	query   Query
	members []int
}

// planBatches sorts the comparable candidates by date and merges their
// ±window ranges into disjoint date ranges. Each range carries the amount
// bounds of its members widened by the tolerance.
func planBatches(candidates []statement.Candidate, comparable []int, windowDays int, tolerance decimal.Decimal) []batch {
	if len(comparable) == 0 {
		return nil
	}
	order := make([]int, len(comparable))
	copy(order, comparable)
	sort.SliceStable(order, func(i, j int) bool {
		return civil(candidates[order[i]].Date).Before(civil(candidates[order[j]].Date))
	})

	var out []batch
	for _, i := range order {
		c := candidates[i]
		from := civil(c.Date).AddDate(0, 0, -windowDays)
		to := civil(c.Date).AddDate(0, 0, windowDays)
		lo := c.Amount.Decimal.Sub(tolerance)
		hi := c.Amount.Decimal.Add(tolerance)

		if n := len(out); n > 0 && !from.After(out[n-1].query.To) {
			cur := &out[n-1]
			if to.After(cur.query.To) {
				cur.query.To = to
			}
			cur.query.MinAmount = decimal.Min(cur.query.MinAmount, lo)
			cur.query.MaxAmount = decimal.Max(cur.query.MaxAmount, hi)
			cur.members = append(cur.members, i)
			continue
		}
		out = append(out, batch{
			query:   Query{From: from, To: to, MinAmount: lo, MaxAmount: hi},
			members: []int{i},
		})
	}
	return out
}
