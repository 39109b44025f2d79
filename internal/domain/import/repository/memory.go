package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
)

type memoryRecord struct {
	tx    dedup.ExistingTransaction
	batch string
}

// MemoryStore is an in-process Store used by tests and CLI dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

// NewMemoryStore returns a store holding existing, which belong to no batch.
func NewMemoryStore(existing ...dedup.ExistingTransaction) *MemoryStore {
	s := &MemoryStore{records: make(map[string]memoryRecord, len(existing))}
	for _, x := range existing {
		if x.ID == "" {
			x.ID = uuid.NewString()
		}
		s.records[x.ID] = memoryRecord{tx: x}
	}
	return s
}

// FindInRange returns matching records ordered by date, then id.
func (s *MemoryStore) FindInRange(ctx context.Context, q dedup.Query) ([]dedup.ExistingTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []dedup.ExistingTransaction
	for _, r := range s.records {
		x := r.tx
		if x.Date.Before(q.From) || x.Date.After(q.To) {
			continue
		}
		if x.Amount.LessThan(q.MinAmount) || x.Amount.GreaterThan(q.MaxAmount) {
			continue
		}
		out = append(out, x)
	}
	sortExisting(out)
	return out, nil
}

// InsertBatch stores txs under batchID.
func (s *MemoryStore) InsertBatch(ctx context.Context, batchID string, txs []NewTransaction) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(txs))
	for _, t := range txs {
		id := uuid.NewString()
		s.records[id] = memoryRecord{
			batch: batchID,
			tx: dedup.ExistingTransaction{
				ID:          id,
				Date:        t.Date,
				Amount:      t.Amount,
				Currency:    t.Currency,
				Description: t.Description,
				Merchant:    t.Merchant,
				AccountHint: t.AccountHint,
			},
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteBatch removes ids when all of them are present in batchID.
func (s *MemoryStore) DeleteBatch(ctx context.Context, batchID string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		r, ok := s.records[id]
		if !ok || r.batch != batchID {
			return 0, fmt.Errorf("%w: record %s", ErrBatchMismatch, id)
		}
	}
	for _, id := range ids {
		delete(s.records, id)
	}
	return len(ids), nil
}

// All returns every stored record ordered by date, then id.
func (s *MemoryStore) All() []dedup.ExistingTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dedup.ExistingTransaction, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.tx)
	}
	sortExisting(out)
	return out
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func sortExisting(xs []dedup.ExistingTransaction) {
	sort.Slice(xs, func(i, j int) bool {
		if !xs[i].Date.Equal(xs[j].Date) {
			return xs[i].Date.Before(xs[j].Date)
		}
		return xs[i].ID < xs[j].ID
	})
}
