package money

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator generates realistic statement test data using gofakeit.
// A seeded generator always produces the same sequence.
type TestDataGenerator struct {
	faker *gofakeit.Faker
	epoch time.Time
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
		epoch: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// TestTransaction represents a generated statement line.
type TestTransaction struct {
	ID          string
	Date        time.Time
	Description string
	Merchant    string
	Location    string
	Amount      decimal.Decimal
	Currency    string
}

// Transaction generates a single card payment within the generator's year.
func (g *TestDataGenerator) Transaction(currency string) TestTransaction {
	merchant := g.Merchant()
	return TestTransaction{
		ID:          g.faker.UUID(),
		Date:        g.epoch.AddDate(0, 0, g.faker.Number(0, 364)),
		Description: g.TransactionDescription() + " " + merchant,
		Merchant:    merchant,
		Location:    g.City(),
		Amount:      g.RandomAmount(1, 50000).Neg(),
		Currency:    currency,
	}
}

// Transactions generates multiple random transactions.
func (g *TestDataGenerator) Transactions(currency string, count int) []TestTransaction {
	txs := make([]TestTransaction, count)
	for i := 0; i < count; i++ {
		txs[i] = g.Transaction(currency)
	}
	return txs
}

// RandomAmount returns an amount between minCents and maxCents with two decimals.
func (g *TestDataGenerator) RandomAmount(minCents, maxCents int) decimal.Decimal {
	return decimal.New(int64(g.faker.Number(minCents, maxCents)), -2)
}

var merchants = []string{
	"TESCO STORES", "BILLA", "LIDL", "KAUFLAND", "SUPERMARKET FRESH PLU",
	"DM DROGERIE MARKT", "SHELL", "SLOVNAFT", "IKEA BRATISLAVA", "ALZA",
	"BOLT", "UBER", "NETFLIX", "SPOTIFY", "MCDONALDS", "STARBUCKS",
	"DECATHLON", "NAY ELEKTRODOM", "PANTA RHEI", "ORANGE SLOVENSKO",
}

var cities = []string{
	"BRATISLAVA", "KOSICE", "ZILINA", "NITRA", "TRNAVA", "PRESOV",
	"BANSKA BYSTRICA", "POPRAD", "PRAHA", "WIEN",
}

var transactionDescriptions = []string{
	"Transakcia platobnou kartou",
	"Platba kartou",
	"Card payment",
	"POS purchase",
	"Online payment",
}

// Merchant returns a random merchant name.
func (g *TestDataGenerator) Merchant() string {
	return merchants[g.faker.Number(0, len(merchants)-1)]
}

// City returns a random place name as printed on card statements.
func (g *TestDataGenerator) City() string {
	return cities[g.faker.Number(0, len(cities)-1)]
}

// TransactionDescription returns a random transaction description.
func (g *TestDataGenerator) TransactionDescription() string {
	return transactionDescriptions[g.faker.Number(0, len(transactionDescriptions)-1)]
}
