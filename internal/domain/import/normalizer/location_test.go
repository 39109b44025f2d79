package normalizer

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testPlaces   = []string{"BYSTRICA", "KOSICE", "Banska Bystrica", "BRATISLAVA"}
	testPlace    = regexp.MustCompile(`^\p{Lu}[\p{Lu}\-]{2,}$`)
	testSuffixes = []string{"s.r.o.", "a.s.", "GmbH", "& Co. KG", "KG", "AG"}
)

func TestSplitter_Split(t *testing.T) {
	splitter := NewSplitter("", testPlaces, testPlace, testSuffixes)

	tests := []struct {
		name string
		raw  string
		want MerchantLocation
	}{
		{
			name: "known place at the end",
			raw:  "SUPERMARKET FRESH PLU KOSICE",
			want: MerchantLocation{Merchant: "SUPERMARKET FRESH PLU", Location: "KOSICE"},
		},
		{
			name: "multi-word place beats its last word",
			raw:  "TESCO HYPERMARKET  BANSKA BYSTRICA",
			want: MerchantLocation{Merchant: "TESCO HYPERMARKET", Location: "BANSKA BYSTRICA"},
		},
		{
			name: "known place matches case-insensitively",
			raw:  "Kaviareň Mlyn Bratislava",
			want: MerchantLocation{Merchant: "Kaviareň Mlyn", Location: "Bratislava"},
		},
		{
			name: "place pattern on last token",
			raw:  "BILLA 1234 LEVOCA",
			want: MerchantLocation{Merchant: "BILLA 1234", Location: "LEVOCA"},
		},
		{
			name: "suffix is never taken for a place",
			raw:  "ACME GMBH",
			want: MerchantLocation{Merchant: "ACME"},
		},
		{
			name: "suffix stripped before place",
			raw:  "ALZA.CZ a.s. PRAHA-HOLESOVICE",
			want: MerchantLocation{Merchant: "ALZA.CZ", Location: "PRAHA-HOLESOVICE"},
		},
		{
			name: "lone place stays merchant",
			raw:  "KOSICE",
			want: MerchantLocation{Merchant: "KOSICE"},
		},
		{
			name: "lowercase tail is not a place",
			raw:  "amazon marketplace",
			want: MerchantLocation{Merchant: "amazon marketplace"},
		},
		{
			name: "empty",
			raw:  "   ",
			want: MerchantLocation{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitter.Split(tt.raw))
		})
	}
}

func TestSplitter_Delimiter(t *testing.T) {
	splitter := NewSplitter("|", nil, nil, testSuffixes)

	assert.Equal(t,
		MerchantLocation{Merchant: "ALZA.SK", Location: "BRATISLAVA"},
		splitter.Split("ALZA.SK s.r.o. | BRATISLAVA"))
	assert.Equal(t,
		MerchantLocation{Merchant: "A | B", Location: "C"},
		splitter.Split("A | B | C"), "last delimiter wins")
	assert.Equal(t,
		MerchantLocation{Merchant: "NO PLACE |"},
		splitter.Split("NO PLACE |"), "empty location falls through")
}

func TestSplitMerchantLocation(t *testing.T) {
	got := SplitMerchantLocation("SUPERMARKET FRESH PLU KOSICE", "", []string{"KOSICE"}, nil, nil)
	assert.Equal(t, "SUPERMARKET FRESH PLU", got.Merchant)
	assert.Equal(t, "KOSICE", got.Location)
}

func TestStripCorporateSuffixes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tesco Stores SR, a.s.", "Tesco Stores SR"},
		{"Acme Holding GmbH & Co. KG", "Acme Holding"},
		{"DATART INTERNATIONAL A.S.", "DATART INTERNATIONAL"},
		{"BAG", "BAG"},
		{"MEGABAG", "MEGABAG"},
		{"s.r.o.", "s.r.o."},
		{"Plain Name", "Plain Name"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCorporateSuffixes(tt.in, testSuffixes))
		})
	}
}

func TestSuffixStripper_NoSuffixes(t *testing.T) {
	assert.Equal(t, "ACME a.s.", NewSuffixStripper(nil).Strip(" ACME a.s. "))
	var nilStripper *SuffixStripper
	assert.Equal(t, "ACME", nilStripper.Strip("ACME"))
	assert.False(t, nilStripper.IsSuffix("AG"))
}
