package normalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// GlobalScope holds rules that apply to every account.
const GlobalScope = ""

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MerchantOverride is a persisted merchant rule. Scope is an account hint or
// GlobalScope.
type MerchantOverride struct {
	ID            uuid.UUID  `json:"id"`
	Scope         string     `json:"scope"`
	MatchPattern  string     `json:"match_pattern"`
	MatchType     string     `json:"match_type"` // "exact", "contains", "regex"
	MerchantName  string     `json:"merchant_name"`
	Category      *string    `json:"category,omitempty"`
	MatchCount    int        `json:"match_count"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Rule converts the override into a remapper rule.
func (o MerchantOverride) Rule() MerchantRule {
	return MerchantRule{
		Pattern:      o.MatchPattern,
		MatchType:    o.MatchType,
		MerchantName: o.MerchantName,
		Category:     o.Category,
	}
}

// OverrideStore manages reusable merchant overrides in the database
type OverrideStore struct {
	db DB
}

// NewOverrideStore creates a new override store
func NewOverrideStore(db DB) *OverrideStore {
	return &OverrideStore{db: db}
}

const overrideColumns = `id, scope, match_pattern, match_type, merchant_name, category,
			match_count, last_matched_at, created_at, updated_at`

// SaveOverride creates or updates an override
func (s *OverrideStore) SaveOverride(ctx context.Context, override MerchantOverride) (*MerchantOverride, error) {
	if _, err := NewRemapper([]MerchantRule{override.Rule()}); err != nil {
		return nil, fmt.Errorf("invalid override: %w", err)
	}

	query := `
		INSERT INTO merchant_overrides (
			scope, match_pattern, match_type, merchant_name, category
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, match_pattern) DO UPDATE SET
			match_type = EXCLUDED.match_type,
			merchant_name = EXCLUDED.merchant_name,
			category = EXCLUDED.category,
			updated_at = now()
		RETURNING ` + overrideColumns

	var result MerchantOverride
	err := s.db.QueryRow(ctx, query,
		override.Scope,
		override.MatchPattern,
		override.MatchType,
		override.MerchantName,
		override.Category,
	).Scan(
		&result.ID, &result.Scope, &result.MatchPattern, &result.MatchType,
		&result.MerchantName, &result.Category,
		&result.MatchCount, &result.LastMatchedAt, &result.CreatedAt, &result.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save merchant override: %w", err)
	}
	return &result, nil
}

// ListOverrides returns the overrides for scope followed by the global ones,
// most used first.
func (s *OverrideStore) ListOverrides(ctx context.Context, scope string) ([]MerchantOverride, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM merchant_overrides
		WHERE scope = $1 OR scope = ''
		ORDER BY (scope = '') ASC, match_count DESC, updated_at DESC
	`

	rows, err := s.db.Query(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchant overrides: %w", err)
	}
	defer rows.Close()

	var overrides []MerchantOverride
	for rows.Next() {
		var o MerchantOverride
		err := rows.Scan(
			&o.ID, &o.Scope, &o.MatchPattern, &o.MatchType,
			&o.MerchantName, &o.Category,
			&o.MatchCount, &o.LastMatchedAt, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merchant override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// Rules returns the overrides for scope as remapper rules.
func (s *OverrideStore) Rules(ctx context.Context, scope string) ([]MerchantRule, error) {
	overrides, err := s.ListOverrides(ctx, scope)
	if err != nil {
		return nil, err
	}
	rules := make([]MerchantRule, 0, len(overrides))
	for _, o := range overrides {
		rules = append(rules, o.Rule())
	}
	return rules, nil
}

// RecordMatch bumps the usage counter of an override.
func (s *OverrideStore) RecordMatch(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE merchant_overrides
		SET match_count = match_count + 1, last_matched_at = now()
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record override match: %w", err)
	}
	return nil
}

// DeleteOverride removes an override
func (s *OverrideStore) DeleteOverride(ctx context.Context, scope string, overrideID uuid.UUID) error {
	query := `DELETE FROM merchant_overrides WHERE id = $1 AND scope = $2`
	result, err := s.db.Exec(ctx, query, overrideID, scope)
	if err != nil {
		return fmt.Errorf("failed to delete merchant override: %w", err)
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
