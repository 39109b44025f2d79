package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

func TestRemapper_Match(t *testing.T) {
	remapper, err := NewRemapper([]MerchantRule{
		{Pattern: "starbucks", MatchType: MatchExact, MerchantName: "Starbucks"},
		{Pattern: "FRESH", MatchType: MatchContains, MerchantName: "Fresh Market"},
		{Pattern: `^BOLT\.EU/[OR]/`, MatchType: MatchRegex, MerchantName: "Bolt"},
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		raw         string
		wantName    string
		shouldMatch bool
	}{
		{"exact case-insensitive", "STARBUCKS", "Starbucks", true},
		{"exact partial no match", "STARBUCKS KOSICE", "", false},
		{"contains middle", "SUPERMARKET FRESH PLU", "Fresh Market", true},
		{"contains case insensitive", "supermarket fresh", "Fresh Market", true},
		{"regex", "bolt.eu/o/2502", "Bolt", true},
		{"regex anchored", "X BOLT.EU/O/", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := remapper.Match(tt.raw)
			assert.Equal(t, tt.shouldMatch, ok)
			assert.Equal(t, tt.wantName, rule.MerchantName)
		})
	}
}

func TestRemapper_FirstRuleWins(t *testing.T) {
	remapper, err := NewRemapper([]MerchantRule{
		{Pattern: "CAFE", MatchType: MatchContains, MerchantName: "Generic Coffee"},
		{Pattern: "STARBUCKS", MatchType: MatchContains, MerchantName: "Starbucks"},
	})
	require.NoError(t, err)

	rule, ok := remapper.Match("STARBUCKS CAFE")
	require.True(t, ok)
	assert.Equal(t, "Generic Coffee", rule.MerchantName)
}

func TestNewRemapper_Invalid(t *testing.T) {
	for _, rule := range []MerchantRule{
		{Pattern: "(", MatchType: MatchRegex},
		{Pattern: "x", MatchType: "fuzzy"},
		{Pattern: " ", MatchType: MatchContains},
	} {
		_, err := NewRemapper([]MerchantRule{rule})
		assert.Error(t, err, "%+v", rule)
	}
}

func TestRemapper_Apply(t *testing.T) {
	groceries := "Groceries"
	mine := "My Corner Shop"
	transport := "Transport"

	remapper, err := NewRemapper([]MerchantRule{
		{Pattern: "FRESH", MatchType: MatchContains, MerchantName: "Fresh", Category: &groceries},
	})
	require.NoError(t, err)

	candidates := []statement.Candidate{
		{Index: 0, Merchant: "SUPERMARKET FRESH PLU", Description: "Transakcia platobnou kartou"},
		{Index: 1, Description: "FRESH KOSICE"},
		{Index: 2, Merchant: "SUPERMARKET FRESH PLU"},
		{Index: 3, Merchant: "BOLT", Category: "Other"},
	}
	out := remapper.Apply(candidates, map[int]Override{
		2: {Merchant: &mine},
		3: {Category: &transport},
		9: {Merchant: &mine},
	})

	require.Len(t, out, 4)
	assert.Equal(t, "Fresh", out[0].Merchant)
	assert.Equal(t, "Groceries", out[0].Category)
	assert.Equal(t, "Fresh", out[1].Merchant, "description is used when no merchant was parsed")
	assert.Equal(t, "My Corner Shop", out[2].Merchant, "index override beats rule")
	assert.Equal(t, "Groceries", out[2].Category)
	assert.Equal(t, "BOLT", out[3].Merchant)
	assert.Equal(t, "Transport", out[3].Category)

	assert.Equal(t, "SUPERMARKET FRESH PLU", candidates[0].Merchant, "input is not mutated")
}

func TestRemapper_NilAppliesOverridesOnly(t *testing.T) {
	var remapper *Remapper
	name := "Renamed"
	out := remapper.Apply([]statement.Candidate{{Index: 0, Merchant: "X"}}, map[int]Override{0: {Merchant: &name}})
	assert.Equal(t, "Renamed", out[0].Merchant)
	assert.True(t, Mappings{}.Empty())
}
