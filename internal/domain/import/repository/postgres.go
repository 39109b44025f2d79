package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it too.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new PostgreSQL transaction store
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindInRange returns the transactions whose date and amount fall inside q.
func (s *PostgresStore) FindInRange(ctx context.Context, q dedup.Query) ([]dedup.ExistingTransaction, error) {
	query := `
		SELECT id::text, occurred_on, amount::text, currency, description, merchant, account_hint
		FROM transactions
		WHERE occurred_on BETWEEN $1 AND $2
		  AND amount BETWEEN $3 AND $4
		ORDER BY occurred_on, id`

	rows, err := s.db.Query(ctx, query, q.From, q.To, numeric(q.MinAmount), numeric(q.MaxAmount))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []dedup.ExistingTransaction
	for rows.Next() {
		var (
			x      dedup.ExistingTransaction
			amount string
		)
		if err := rows.Scan(&x.ID, &x.Date, &amount, &x.Currency, &x.Description, &x.Merchant, &x.AccountHint); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if x.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount, err)
		}
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return out, nil
}

// InsertBatch inserts txs in one database transaction.
func (s *PostgresStore) InsertBatch(ctx context.Context, batchID string, txs []NewTransaction) ([]string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO transactions (
			id, account_hint, occurred_on, amount, currency, description,
			merchant, location, reference, category, import_batch
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ids := make([]string, 0, len(txs))
	for i, t := range txs {
		id := uuid.NewString()
		_, err := tx.Exec(ctx, insertQuery,
			id,
			t.AccountHint,
			t.Date,
			numeric(t.Amount),
			t.Currency,
			t.Description,
			t.Merchant,
			t.Location,
			t.Reference,
			t.Category,
			batchID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit import batch: %w", err)
	}
	return ids, nil
}

// DeleteBatch deletes ids from batchID in one database transaction. The
// transaction is rolled back unless every id was deleted.
func (s *PostgresStore) DeleteBatch(ctx context.Context, batchID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `DELETE FROM transactions WHERE import_batch = $1 AND id = ANY($2::uuid[])`
	result, err := tx.Exec(ctx, query, batchID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete import batch: %w", err)
	}
	if n := result.RowsAffected(); n != int64(len(ids)) {
		return 0, fmt.Errorf("%w: deleted %d of %d rows of batch %s", ErrBatchMismatch, n, len(ids), shortID(batchID))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit batch deletion: %w", err)
	}
	return len(ids), nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
