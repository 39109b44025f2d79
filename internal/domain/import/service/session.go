package service

import (
	"context"
	"slices"
	"time"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// Stage is the workflow state of an import session.
type Stage string

const (
	StageUploaded   Stage = "uploaded"
	StagePreviewed  Stage = "previewed"
	StageAnalyzed   Stage = "analyzed"
	StageConfirmed  Stage = "confirmed"
	StageRolledBack Stage = "rolled_back"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further operation can leave the stage.
func (s Stage) Terminal() bool { return s == StageRolledBack || s == StageFailed }

type operation string

const (
	opPreview  operation = "preview"
	opAnalyze  operation = "analyze"
	opConfirm  operation = "confirm"
	opRollback operation = "rollback"
	opFail     operation = "fail"
	opAbandon  operation = "abandon"
)

// transitions lists, per operation, the stages it may start from and the
// stage it leaves the session in on success.
var transitions = map[operation]struct {
	from []Stage
	to   Stage
}{
	opPreview:  {from: []Stage{StageUploaded, StagePreviewed}, to: StagePreviewed},
	opAnalyze:  {from: []Stage{StagePreviewed, StageAnalyzed}, to: StageAnalyzed},
	opConfirm:  {from: []Stage{StageAnalyzed}, to: StageConfirmed},
	opRollback: {from: []Stage{StageConfirmed}, to: StageRolledBack},
	opFail:     {from: []Stage{StageUploaded, StagePreviewed, StageAnalyzed, StageConfirmed}, to: StageFailed},
	opAbandon:  {from: []Stage{StageUploaded, StagePreviewed, StageAnalyzed}, to: StageFailed},
}

func allowed(op operation, from Stage) bool {
	return slices.Contains(transitions[op].from, from)
}

// session is the mutable state behind an upload token. All fields are guarded
// by ImportService.mu.
type session struct {
	token     string
	stage     Stage
	createdAt time.Time
	updatedAt time.Time

	doc       statement.RawDocument
	detection *sniffer.Detection
	detectErr error
	config    *bankconfig.Compiled

	result      *statement.ParseResult
	assessments []dedup.Assessment

	busy   operation
	cancel context.CancelFunc

	transactionCount int
	batchID          string
	insertedIDs      []string
	rollbackToken    string
	rollbackExpires  time.Time
	failReason       string
}

// releaseBuffers drops the upload bytes and the parse snapshot.
func (s *session) releaseBuffers() {
	s.doc.Data = nil
	s.result = nil
	s.assessments = nil
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	Token             string           `json:"token"`
	Stage             Stage            `json:"stage"`
	Filename          string           `json:"filename"`
	Format            statement.Format `json:"format,omitempty"`
	BankConfig        string           `json:"bank_config,omitempty"`
	TransactionCount  int              `json:"transaction_count"`
	RollbackToken     string           `json:"rollback_token,omitempty"`
	RollbackExpiresAt *time.Time       `json:"rollback_expires_at,omitempty"`
	FailReason        string           `json:"fail_reason,omitempty"`
	Busy              bool             `json:"busy"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		Token:            s.token,
		Stage:            s.stage,
		Filename:         s.doc.Filename,
		TransactionCount: s.transactionCount,
		RollbackToken:    s.rollbackToken,
		FailReason:       s.failReason,
		Busy:             s.busy != "",
		CreatedAt:        s.createdAt,
		UpdatedAt:        s.updatedAt,
	}
	if s.detection != nil {
		snap.Format = s.detection.Descriptor.Format
	}
	if s.config != nil {
		snap.BankConfig = s.config.Name()
	}
	if !s.rollbackExpires.IsZero() {
		expires := s.rollbackExpires
		snap.RollbackExpiresAt = &expires
	}
	return snap
}
