package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// ConfirmRequest selects what to import. A nil Selected imports every
// candidate not flagged as a likely duplicate.
type ConfirmRequest struct {
	Selected []int               `json:"selected,omitempty"`
	Mappings normalizer.Mappings `json:"mappings"`
}

// ConfirmResult reports what a confirmation inserted. Every candidate is
// counted exactly once.
type ConfirmResult struct {
	Token              string    `json:"token"`
	Imported           int       `json:"imported"`
	SkippedByChoice    int       `json:"skipped_by_choice"`
	SkippedAsDuplicate int       `json:"skipped_as_duplicate"`
	SkippedIncomplete  int       `json:"skipped_incomplete"`
	RollbackToken      string    `json:"rollback_token"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// Confirm hands the selected candidates to the store in one atomic insert and
// issues a rollback token for exactly that set. An invalid selection or a
// store failure leaves the session in the analyzed stage.
func (s *ImportService) Confirm(ctx context.Context, token string, req ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Confirm", trace.WithAttributes(attribute.String("token", token)))
	defer span.End()

	sess, err := s.acquire(token, opConfirm)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.mu.Lock()
	candidates := sess.result.Candidates
	assessments := sess.assessments
	accountHint := sess.doc.AccountHint
	s.mu.Unlock()

	plan, err := planConfirm(candidates, assessments, req.Selected)
	if err != nil {
		s.finish(sess, nil)
		span.RecordError(err)
		return nil, err
	}

	remapper, err := s.remapper(ctx, accountHint, req.Mappings)
	if err != nil {
		s.finish(sess, nil)
		span.RecordError(err)
		return nil, err
	}
	remapped := remapper.Apply(candidates, req.Mappings.ByIndex)

	txs := make([]repository.NewTransaction, 0, len(plan.imported))
	for _, i := range plan.imported {
		txs = append(txs, newTransaction(remapped[i], accountHint))
	}

	batchID := uuid.NewString()
	ids, err := s.store.InsertBatch(ctx, batchID, txs)
	if err != nil {
		s.finish(sess, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("failed to insert confirmed transactions: %w", err)
	}

	result := &ConfirmResult{
		Token:              token,
		Imported:           len(ids),
		SkippedByChoice:    plan.byChoice,
		SkippedAsDuplicate: plan.asDuplicate,
		SkippedIncomplete:  plan.incomplete,
		RollbackToken:      uuid.NewString(),
	}
	var stale bool
	s.finish(sess, func() {
		if sess.stage.Terminal() {
			stale = true
			return
		}
		result.ExpiresAt = s.now().Add(s.limits.RollbackWindow)
		sess.batchID = batchID
		sess.insertedIDs = ids
		sess.rollbackToken = result.RollbackToken
		sess.rollbackExpires = result.ExpiresAt
		s.rollbacks[result.RollbackToken] = token
		s.moveLocked(sess, StageConfirmed)
	})
	if stale {
		if _, err := s.store.DeleteBatch(ctx, batchID, ids); err != nil {
			s.logger.Error("failed to undo insert of failed session",
				slog.String("token", token),
				slog.String("batch", batchID),
				slog.Any("error", err))
		}
		err := &statement.SessionStateError{Token: token, Stage: string(StageFailed), Operation: string(opConfirm)}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("imported", result.Imported))
	s.logger.Info("import confirmed",
		slog.String("token", token),
		slog.String("batch", batchID),
		slog.Int("imported", result.Imported),
		slog.Int("skipped_by_choice", result.SkippedByChoice),
		slog.Int("skipped_as_duplicate", result.SkippedAsDuplicate),
		slog.Int("skipped_incomplete", result.SkippedIncomplete))
	return result, nil
}

type confirmPlan struct {
	imported    []int
	byChoice    int
	asDuplicate int
	incomplete  int
}

// planConfirm decides per candidate whether it is imported or why not.
// Explicitly selected likely duplicates are imported.
func planConfirm(candidates []statement.Candidate, assessments []dedup.Assessment, selected []int) (confirmPlan, error) {
	duplicate := make(map[int]bool, len(assessments))
	for _, a := range assessments {
		if a.IsLikelyDuplicate {
			duplicate[a.Candidate] = true
		}
	}

	var chosen map[int]bool
	if selected != nil {
		chosen = make(map[int]bool, len(selected))
		for _, i := range selected {
			if i < 0 || i >= len(candidates) {
				return confirmPlan{}, fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidSelection, i, len(candidates))
			}
			if chosen[i] {
				return confirmPlan{}, fmt.Errorf("%w: index %d selected twice", ErrInvalidSelection, i)
			}
			chosen[i] = true
		}
	}

	var p confirmPlan
	for i, c := range candidates {
		wanted := !duplicate[c.Index]
		if chosen != nil {
			wanted = chosen[i]
		}
		switch {
		case wanted && (!c.HasDate() || !c.Amount.Valid):
			p.incomplete++
		case wanted:
			p.imported = append(p.imported, i)
		case duplicate[c.Index]:
			p.asDuplicate++
		default:
			p.byChoice++
		}
	}
	return p, nil
}

// remapper combines the request rules with the stored ones. Request rules
// come first so they win.
func (s *ImportService) remapper(ctx context.Context, scope string, m normalizer.Mappings) (*normalizer.Remapper, error) {
	rules := append([]normalizer.MerchantRule(nil), m.Rules...)
	if s.overrides != nil {
		stored, err := s.overrides.Rules(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to load merchant overrides: %w", err)
		}
		rules = append(rules, stored...)
	}
	r, err := normalizer.NewRemapper(rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMappings, err)
	}
	return r, nil
}

func newTransaction(c statement.Candidate, accountHint string) repository.NewTransaction {
	if c.AccountHint != "" {
		accountHint = c.AccountHint
	}
	return repository.NewTransaction{
		Date:        c.Date,
		Amount:      c.Amount.Decimal,
		Currency:    c.Currency,
		Description: c.Description,
		Merchant:    c.Merchant,
		Location:    c.Location,
		Reference:   c.Reference,
		Category:    c.Category,
		AccountHint: accountHint,
	}
}

// RollbackResult reports a completed rollback.
type RollbackResult struct {
	Token         string `json:"token"`
	RollbackToken string `json:"rollback_token"`
	Deleted       int    `json:"deleted"`
}

// Rollback deletes exactly the records inserted by the confirmation that
// issued rollbackToken. A store failure is terminal for the token and fails
// the session.
func (s *ImportService) Rollback(ctx context.Context, rollbackToken string) (*RollbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Rollback", trace.WithAttributes(attribute.String("rollback_token", rollbackToken)))
	defer span.End()

	sess, err := s.acquireRollback(rollbackToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.mu.Lock()
	token, batchID, ids := sess.token, sess.batchID, sess.insertedIDs
	s.mu.Unlock()

	deleted, err := s.store.DeleteBatch(ctx, batchID, ids)
	if err != nil {
		failure := &statement.RollbackFailedError{RollbackToken: rollbackToken, Err: err}
		s.finish(sess, func() { s.failLocked(sess, failure.Error()) })
		s.metrics.rollback("failed")
		span.RecordError(failure)
		span.SetStatus(codes.Error, "rollback failed")
		s.logger.Error("rollback failed",
			slog.String("token", token),
			slog.String("batch", batchID),
			slog.Any("error", err))
		return nil, failure
	}

	s.finish(sess, func() {
		sess.insertedIDs = nil
		s.moveLocked(sess, StageRolledBack)
	})
	s.metrics.rollback("success")
	s.logger.Info("import rolled back",
		slog.String("token", token),
		slog.String("batch", batchID),
		slog.Int("deleted", deleted))
	return &RollbackResult{Token: token, RollbackToken: rollbackToken, Deleted: deleted}, nil
}

func (s *ImportService) acquireRollback(rollbackToken string) (*session, error) {
	s.mu.Lock()
	token, ok := s.rollbacks[rollbackToken]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRollbackTokenUnknown, rollbackToken)
	}
	sess, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRollbackTokenUnknown, rollbackToken)
	}
	stage, expires := sess.stage, sess.rollbackExpires
	s.mu.Unlock()

	if stage == StageRolledBack {
		s.metrics.rollback("already_rolled_back")
		return nil, &statement.AlreadyRolledBackError{RollbackToken: rollbackToken}
	}
	if stage == StageConfirmed && s.now().After(expires) {
		s.metrics.rollback("expired")
		return nil, fmt.Errorf("%w: token %s expired at %s", ErrRollbackExpired, rollbackToken, expires.Format(time.RFC3339))
	}
	sess, err := s.acquire(token, opRollback)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRollbackTokenUnknown, rollbackToken)
	}
	return sess, err
}
