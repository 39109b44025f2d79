package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// Session returns a snapshot of the session behind token.
func (s *ImportService) Session(token string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	return sess.snapshot(), nil
}

// Fail moves a session to the failed stage from any non-terminal stage. A
// failed confirmed session keeps its records but loses its rollback token.
func (s *ImportService) Fail(ctx context.Context, token, reason string) error {
	_, span := s.tracer.Start(ctx, "import.Fail")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	if sess.busy != "" {
		return &statement.SessionBusyError{Token: token, Operation: string(opFail)}
	}
	if !allowed(opFail, sess.stage) {
		return &statement.SessionStateError{Token: token, Stage: string(sess.stage), Operation: string(opFail)}
	}
	s.failLocked(sess, reason)
	s.logger.Warn("import session failed", slog.String("token", token), slog.String("reason", reason))
	return nil
}

// Abandon cancels an in-flight parse, discards partial results and fails the
// session. Only a running preview can be interrupted; a session busy with
// analysis or confirmation reports SessionBusyError. Confirmed sessions must
// be rolled back instead.
func (s *ImportService) Abandon(ctx context.Context, token string) error {
	_, span := s.tracer.Start(ctx, "import.Abandon", trace.WithAttributes(attribute.String("token", token)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	if sess.busy != "" && sess.busy != opPreview {
		err := &statement.SessionBusyError{Token: token, Operation: string(opAbandon)}
		span.RecordError(err)
		return err
	}
	if !allowed(opAbandon, sess.stage) {
		err := &statement.SessionStateError{Token: token, Stage: string(sess.stage), Operation: string(opAbandon)}
		span.RecordError(err)
		return err
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	s.failLocked(sess, "abandoned")
	s.logger.Info("import session abandoned", slog.String("token", token))
	return nil
}

// ExpireSessions forgets every session untouched for longer than the
// retention period, cancelling parses still running for them, and returns how
// many were removed. Sessions busy with analysis or confirmation are left for
// a later sweep. Rolled-back sessions are kept until then so that repeated
// rollbacks keep failing with AlreadyRolledBackError.
func (s *ImportService) ExpireSessions(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.limits.Retention)
	removed := 0
	for token, sess := range s.sessions {
		if !sess.updatedAt.Before(cutoff) {
			continue
		}
		if sess.busy != "" && sess.busy != opPreview {
			continue
		}
		if sess.cancel != nil {
			sess.cancel()
		}
		if sess.rollbackToken != "" {
			delete(s.rollbacks, sess.rollbackToken)
		}
		sess.releaseBuffers()
		delete(s.sessions, token)
		removed++
	}
	if removed > 0 {
		s.logger.Info("expired import sessions", slog.Int("removed", removed), slog.Int("remaining", len(s.sessions)))
	}
	return removed
}
