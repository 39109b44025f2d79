// Package repository provides the transaction store adapters the import
// workflow commits to and reads existing transactions from.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
)

// ErrBatchMismatch is returned by DeleteBatch when the stored batch no longer
// matches the ids handed out at insert time. Nothing is deleted in that case.
var ErrBatchMismatch = errors.New("stored batch does not match the inserted set")

// NewTransaction is a confirmed candidate ready for insertion.
type NewTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	Merchant    string
	Location    string
	Reference   string
	Category    string
	AccountHint string
}

// Store is the external transaction store as seen by the import workflow.
type Store interface {
	dedup.Lookup

	// InsertBatch inserts all transactions atomically under batchID and returns
	// their ids in input order.
	InsertBatch(ctx context.Context, batchID string, txs []NewTransaction) ([]string, error)

	// DeleteBatch deletes exactly ids from batchID atomically. It fails with
	// ErrBatchMismatch if any id is missing or belongs to another batch.
	DeleteBatch(ctx context.Context, batchID string, ids []string) (int, error)
}
