package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
)

func seeded() *MemoryStore {
	d := func(day int) time.Time { return time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC) }
	return NewMemoryStore(
		dedup.ExistingTransaction{ID: "x1", Date: d(1), Amount: decimal.RequireFromString("-2.04"), Currency: "EUR"},
		dedup.ExistingTransaction{ID: "x2", Date: d(5), Amount: decimal.RequireFromString("-9.90"), Currency: "EUR"},
		dedup.ExistingTransaction{ID: "x3", Date: d(20), Amount: decimal.RequireFromString("1500"), Currency: "EUR"},
	)
}

func TestMemoryStore_FindInRange(t *testing.T) {
	store := seeded()
	got, err := store.FindInRange(context.Background(), dedup.Query{
		From:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		MinAmount: decimal.RequireFromString("-10"),
		MaxAmount: decimal.RequireFromString("-2.04"),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x1", got[0].ID)
	assert.Equal(t, "x2", got[1].ID)
}

func TestMemoryStore_InsertThenDeleteRestoresContents(t *testing.T) {
	store := seeded()
	before := store.All()
	ctx := context.Background()

	ids, err := store.InsertBatch(ctx, "batch-1", []NewTransaction{
		{Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-1"), Currency: "EUR"},
		{Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-2"), Currency: "EUR"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	other, err := store.InsertBatch(ctx, "batch-2", []NewTransaction{
		{Date: time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-3"), Currency: "EUR"},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, store.Len())

	n, err := store.DeleteBatch(ctx, "batch-1", ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteBatch(ctx, "batch-2", other)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before, store.All())
}

func TestMemoryStore_DeleteBatchMismatch(t *testing.T) {
	store := seeded()
	ctx := context.Background()
	ids, err := store.InsertBatch(ctx, "batch-1", []NewTransaction{
		{Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-1")},
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		batch string
		ids   []string
	}{
		{"foreign record", "batch-1", append([]string{"x1"}, ids...)},
		{"wrong batch", "batch-2", ids},
		{"unknown id", "batch-1", []string{"nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.DeleteBatch(ctx, tt.batch, tt.ids)
			assert.ErrorIs(t, err, ErrBatchMismatch)
			assert.Zero(t, n)
			assert.Equal(t, 4, store.Len())
		})
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := seeded().FindInRange(ctx, dedup.Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
