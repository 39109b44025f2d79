// Package service provides the import orchestration logic: the session state
// machine that takes an uploaded statement through preview, duplicate analysis,
// confirmation and rollback.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

var (
	ErrSessionNotFound      = errors.New("import session not found")
	ErrRollbackTokenUnknown = errors.New("rollback token not recognised")
	ErrRollbackExpired      = errors.New("rollback window has expired")
	ErrInvalidSelection     = errors.New("invalid candidate selection")
	ErrInvalidMappings      = errors.New("invalid remapping rules")
)

// Limits bound the resources one service instance holds.
type Limits struct {
	MaxUploadBytes int64
	RollbackWindow time.Duration
	Retention      time.Duration
	ParseWorkers   int
	PreviewSample  int
}

// DefaultLimits returns 20 MiB uploads, a 24 hour rollback window, 48 hour
// session retention, one parse worker per CPU and a 20 row preview sample.
func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes: 20 << 20,
		RollbackWindow: 24 * time.Hour,
		Retention:      48 * time.Hour,
		ParseWorkers:   runtime.GOMAXPROCS(0),
		PreviewSample:  20,
	}
}

// OverrideSource supplies stored merchant rules for an account scope.
type OverrideSource interface {
	Rules(ctx context.Context, scope string) ([]normalizer.MerchantRule, error)
}

// ImportService orchestrates upload, preview, duplicate analysis, confirmation
// and rollback of statement imports.
type ImportService struct {
	registry  *parser.Registry
	configs   *bankconfig.Set
	detector  *sniffer.Detector
	engine    *dedup.Engine
	store     repository.Store
	overrides OverrideSource
	sanitizer *normalizer.MerchantSanitizer
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	limits    Limits
	pool      *parsePool

	mu        sync.Mutex
	sessions  map[string]*session
	rollbacks map[string]string // rollback token -> upload token
}

// NewImportService creates a new import service
func NewImportService(registry *parser.Registry, configs *bankconfig.Set, engine *dedup.Engine, store repository.Store, logger *slog.Logger) *ImportService {
	if logger == nil {
		logger = slog.Default()
	}
	limits := DefaultLimits()
	return &ImportService{
		registry:  registry,
		configs:   configs,
		detector:  sniffer.NewDetector(registry.Descriptors()).WithHintResolver(configs.PreferredFormats),
		engine:    engine,
		store:     store,
		sanitizer: normalizer.NewMerchantSanitizer(),
		logger:    logger,
		tracer:    otel.Tracer("statement-import/service"),
		now:       time.Now,
		limits:    limits,
		pool:      newParsePool(limits.ParseWorkers),
		sessions:  make(map[string]*session),
		rollbacks: make(map[string]string),
	}
}

// WithClock replaces the wall clock, for tests.
func (s *ImportService) WithClock(now func() time.Time) *ImportService {
	s.now = now
	return s
}

// WithMetrics enables Prometheus metrics.
func (s *ImportService) WithMetrics(m *Metrics) *ImportService {
	s.metrics = m
	return s
}

// WithLimits replaces the resource limits. Zero fields keep their defaults.
func (s *ImportService) WithLimits(l Limits) *ImportService {
	d := DefaultLimits()
	if l.MaxUploadBytes <= 0 {
		l.MaxUploadBytes = d.MaxUploadBytes
	}
	if l.RollbackWindow <= 0 {
		l.RollbackWindow = d.RollbackWindow
	}
	if l.Retention <= 0 {
		l.Retention = d.Retention
	}
	if l.ParseWorkers <= 0 {
		l.ParseWorkers = d.ParseWorkers
	}
	if l.PreviewSample <= 0 {
		l.PreviewSample = d.PreviewSample
	}
	if l.ParseWorkers != s.limits.ParseWorkers {
		s.pool.close()
		s.pool = newParsePool(l.ParseWorkers)
	}
	s.limits = l
	return s
}

// WithOverrides adds stored merchant rules to every confirmation.
func (s *ImportService) WithOverrides(src OverrideSource) *ImportService {
	s.overrides = src
	return s
}

// WithSanitizer replaces the merchant sanitizer used to suggest categories.
// A nil sanitizer disables suggestions.
func (s *ImportService) WithSanitizer(ms *normalizer.MerchantSanitizer) *ImportService {
	s.sanitizer = ms
	return s
}

// Limits returns the effective limits.
func (s *ImportService) Limits() Limits { return s.limits }

// Close stops the parse workers.
func (s *ImportService) Close() {
	s.pool.close()
}

// UploadRequest is one statement upload.
type UploadRequest struct {
	Filename    string
	Data        []byte
	BankHint    string
	AccountHint string
}

// UploadResult reports the new session and what the detector found.
type UploadResult struct {
	Token             string           `json:"token"`
	Detected          bool             `json:"detected"`
	Format            statement.Format `json:"format,omitempty"`
	Method            sniffer.Method   `json:"method,omitempty"`
	BankConfig        string           `json:"bank_config"`
	ExtensionMismatch bool             `json:"extension_mismatch,omitempty"`
	Errors            []string         `json:"errors,omitempty"`
}

// Upload stores the document in a new session and detects its format. An
// undetectable format does not fail the upload; it is reported in the result
// and fails the session at preview.
func (s *ImportService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	_, span := s.tracer.Start(ctx, "import.Upload")
	defer span.End()

	if len(req.Data) == 0 {
		return nil, statement.ErrEmptyDocument
	}
	if int64(len(req.Data)) > s.limits.MaxUploadBytes {
		span.SetStatus(codes.Error, "upload too large")
		return nil, fmt.Errorf("%w: %d bytes, limit %d", statement.ErrUploadTooLarge, len(req.Data), s.limits.MaxUploadBytes)
	}

	now := s.now()
	data := make([]byte, len(req.Data))
	copy(data, req.Data)
	doc := statement.RawDocument{
		Filename:    req.Filename,
		Data:        data,
		BankHint:    req.BankHint,
		AccountHint: req.AccountHint,
		ReceivedAt:  now,
	}

	sess := &session{
		token:     uuid.NewString(),
		stage:     StageUploaded,
		createdAt: now,
		updatedAt: now,
		doc:       doc,
		config:    s.configs.Resolve(req.BankHint),
	}
	result := &UploadResult{Token: sess.token}
	if sess.config != nil {
		result.BankConfig = sess.config.Name()
	}

	detection, err := s.detector.Detect(doc.Filename, doc.Sample(sniffer.SampleSize), req.BankHint)
	if err != nil {
		sess.detectErr = err
		result.Errors = append(result.Errors, err.Error())
		s.metrics.upload("unknown")
	} else {
		sess.detection = &detection
		result.Detected = true
		result.Format = detection.Descriptor.Format
		result.Method = detection.Method
		result.ExtensionMismatch = detection.ExtensionMismatch
		s.metrics.upload(string(detection.Descriptor.Format))
	}
	if sess.config == nil {
		result.Errors = append(result.Errors, "no bank config available for hint "+req.BankHint)
	}

	s.mu.Lock()
	s.sessions[sess.token] = sess
	s.mu.Unlock()
	s.metrics.entered(StageUploaded)

	span.SetAttributes(
		attribute.String("token", sess.token),
		attribute.String("format", string(result.Format)),
		attribute.Int("bytes", len(data)),
	)
	s.logger.Info("statement uploaded",
		slog.String("token", sess.token),
		slog.String("filename", req.Filename),
		slog.String("format", string(result.Format)),
		slog.String("bank_config", result.BankConfig),
		slog.Int("bytes", len(data)))
	return result, nil
}

// Preview is the parse outcome shown to the user before analysis.
type Preview struct {
	Token            string                 `json:"token"`
	Format           statement.Format       `json:"format"`
	BankConfig       string                 `json:"bank_config"`
	TransactionCount int                    `json:"transaction_count"`
	CompleteCount    int                    `json:"complete_count"`
	Sample           []statement.Candidate  `json:"sample"`
	Errors           []statement.Issue      `json:"errors"`
	Warnings         []statement.Issue      `json:"warnings"`
	Metadata         map[string]string      `json:"metadata"`
	Result           *statement.ParseResult `json:"-"`
}

// Preview parses the uploaded document on the parse pool and stores the
// result in the session. Re-previewing recomputes from the same bytes.
func (s *ImportService) Preview(ctx context.Context, token string) (*Preview, error) {
	ctx, span := s.tracer.Start(ctx, "import.Preview", trace.WithAttributes(attribute.String("token", token)))
	defer span.End()

	sess, err := s.acquire(token, opPreview)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.mu.Lock()
	doc, detection, detectErr, cfg := sess.doc, sess.detection, sess.detectErr, sess.config
	parseCtx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if detection == nil || cfg == nil {
		if detectErr == nil {
			detectErr = &statement.NotSupportedError{Filename: doc.Filename, Reason: "no bank config available"}
		}
		s.finish(sess, func() { s.failLocked(sess, detectErr.Error()) })
		span.RecordError(detectErr)
		span.SetStatus(codes.Error, "format not supported")
		return nil, detectErr
	}

	p, err := s.registry.Resolve(detection.Descriptor)
	if err != nil {
		s.finish(sess, func() { s.failLocked(sess, err.Error()) })
		span.RecordError(err)
		return nil, err
	}

	var (
		result   *statement.ParseResult
		parseErr error
	)
	started := time.Now()
	if err := s.pool.run(parseCtx, func(ctx context.Context) {
		result, parseErr = p.Parse(ctx, doc, cfg)
	}); err != nil && parseErr == nil {
		parseErr = err
	}
	took := time.Since(started)

	if parseErr != nil {
		s.finish(sess, nil)
		if errors.Is(parseErr, context.Canceled) && s.abandoned(sess) {
			parseErr = fmt.Errorf("import session %s was abandoned: %w", token, parseErr)
		} else {
			parseErr = fmt.Errorf("failed to parse %s: %w", doc.Filename, parseErr)
		}
		span.RecordError(parseErr)
		span.SetStatus(codes.Error, "parse failed")
		return nil, parseErr
	}

	if detection.ExtensionMismatch {
		result.AddWarning(-1, 0, fmt.Sprintf("file extension does not match detected format %s", detection.Descriptor.Format), doc.Filename)
	}
	if s.sanitizer != nil {
		s.sanitizer.Annotate(result.Candidates)
	}
	result.Metadata["bank_config"] = cfg.Name()
	result.Metadata["detection"] = string(detection.Method)

	var stale bool
	s.finish(sess, func() {
		if sess.stage.Terminal() {
			stale = true
			return
		}
		sess.result = result
		sess.assessments = nil
		sess.transactionCount = result.TransactionCount
		s.moveLocked(sess, StagePreviewed)
	})
	if stale {
		return nil, fmt.Errorf("import session %s was abandoned: %w", token, context.Canceled)
	}

	s.metrics.parsed(string(result.Format), took, len(result.Errors), len(result.Warnings))
	span.SetAttributes(
		attribute.Int("candidates", result.TransactionCount),
		attribute.Int("errors", len(result.Errors)),
		attribute.Int("warnings", len(result.Warnings)),
	)
	s.logger.Info("statement parsed",
		slog.String("token", token),
		slog.String("format", string(result.Format)),
		slog.Int("candidates", result.TransactionCount),
		slog.Int("errors", len(result.Errors)),
		slog.Int("warnings", len(result.Warnings)),
		slog.Duration("took", took))

	return s.preview(token, cfg.Name(), result), nil
}

func (s *ImportService) preview(token, cfgName string, result *statement.ParseResult) *Preview {
	n := min(s.limits.PreviewSample, len(result.Candidates))
	return &Preview{
		Token:            token,
		Format:           result.Format,
		BankConfig:       cfgName,
		TransactionCount: result.TransactionCount,
		CompleteCount:    result.CompleteCount(),
		Sample:           result.Candidates[:n],
		Errors:           result.Errors,
		Warnings:         result.Warnings,
		Metadata:         result.Metadata,
		Result:           result,
	}
}

// Analysis is the duplicate assessment of every candidate of a session.
type Analysis struct {
	Token       string             `json:"token"`
	Assessments []dedup.Assessment `json:"assessments"`
	Duplicates  int                `json:"duplicates"`
}

// Analyze runs duplicate detection against the current store contents. It is
// always recomputed; repeated calls see new store state.
func (s *ImportService) Analyze(ctx context.Context, token string) (*Analysis, error) {
	ctx, span := s.tracer.Start(ctx, "import.Analyze", trace.WithAttributes(attribute.String("token", token)))
	defer span.End()

	sess, err := s.acquire(token, opAnalyze)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.mu.Lock()
	candidates := sess.result.Candidates
	s.mu.Unlock()

	assessments, err := s.engine.Assess(ctx, candidates, s.store)
	if err != nil {
		s.finish(sess, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "duplicate analysis failed")
		return nil, fmt.Errorf("failed to analyze duplicates: %w", err)
	}

	duplicates := 0
	for _, a := range assessments {
		if a.IsLikelyDuplicate {
			duplicates++
		}
	}
	var stale bool
	s.finish(sess, func() {
		if sess.stage.Terminal() {
			stale = true
			return
		}
		sess.assessments = assessments
		s.moveLocked(sess, StageAnalyzed)
	})
	if stale {
		return nil, &statement.SessionStateError{Token: token, Stage: string(StageFailed), Operation: string(opAnalyze)}
	}

	s.metrics.flagged(duplicates)
	span.SetAttributes(attribute.Int("duplicates", duplicates))
	s.logger.Info("duplicates analyzed",
		slog.String("token", token),
		slog.Int("candidates", len(assessments)),
		slog.Int("duplicates", duplicates))

	return &Analysis{Token: token, Assessments: assessments, Duplicates: duplicates}, nil
}

// acquire checks that op may run on the session now and marks it busy.
func (s *ImportService) acquire(token string, op operation) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	if sess.busy != "" {
		return nil, &statement.SessionBusyError{Token: token, Operation: string(op)}
	}
	if !allowed(op, sess.stage) {
		return nil, &statement.SessionStateError{Token: token, Stage: string(sess.stage), Operation: string(op)}
	}
	sess.busy = op
	return sess, nil
}

// finish clears the busy mark, applying update under the lock first.
func (s *ImportService) finish(sess *session, update func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update != nil {
		update()
	}
	sess.busy = ""
	sess.cancel = nil
}

func (s *ImportService) moveLocked(sess *session, to Stage) {
	sess.stage = to
	sess.updatedAt = s.now()
	if to == StageConfirmed || to.Terminal() {
		sess.releaseBuffers()
	}
	s.metrics.entered(to)
}

func (s *ImportService) failLocked(sess *session, reason string) {
	if sess.stage.Terminal() {
		return
	}
	if sess.rollbackToken != "" {
		delete(s.rollbacks, sess.rollbackToken)
		sess.rollbackToken = ""
	}
	sess.failReason = reason
	s.moveLocked(sess, StageFailed)
}

func (s *ImportService) abandoned(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sess.stage == StageFailed
}
