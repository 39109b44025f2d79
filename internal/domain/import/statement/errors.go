package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyDocument  = errors.New("document is empty")
	ErrUploadTooLarge = errors.New("document exceeds the upload size limit")
)

// NotSupportedError is returned when no parser can be resolved for a document.
type NotSupportedError struct {
	Filename string
	Reason   string
}

func (e *NotSupportedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported statement format: %q", e.Filename)
	}
	return fmt.Sprintf("unsupported statement format: %q: %s", e.Filename, e.Reason)
}

// StructuralParseError describes a block or record that could not be segmented.
// It never aborts the document; parsers record it and move on.
type StructuralParseError struct {
	Block  int
	Line   int
	Raw    string
	Reason string
}

func (e StructuralParseError) Error() string {
	return fmt.Sprintf("block %d (line %d): %s", e.Block, e.Line, e.Reason)
}

// FieldParseError describes one unparseable sub-field of an otherwise
// recognised block. The candidate is still emitted with that field empty.
type FieldParseError struct {
	Block int
	Line  int
	Field string
	Raw   string
	Err   error
}

func (e FieldParseError) Error() string {
	return fmt.Sprintf("block %d (line %d), field %s: %v", e.Block, e.Line, e.Field, e.Err)
}

func (e FieldParseError) Unwrap() error { return e.Err }

func (e FieldParseError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Block   int    `json:"block"`
		Line    int    `json:"line"`
		Field   string `json:"field"`
		Raw     string `json:"raw,omitempty"`
		Message string `json:"message"`
	}{e.Block, e.Line, e.Field, e.Raw, msg})
}

// SessionStateError is returned when an operation is invoked out of sequence.
type SessionStateError struct {
	Token     string
	Stage     string
	Operation string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("cannot %s import session %s in stage %s", e.Operation, e.Token, e.Stage)
}

// SessionBusyError is returned when a session already has an operation in flight.
type SessionBusyError struct {
	Token     string
	Operation string
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("import session %s is busy, rejected %s", e.Token, e.Operation)
}

// AlreadyRolledBackError is returned by a second rollback with the same token.
type AlreadyRolledBackError struct {
	RollbackToken string
}

func (e *AlreadyRolledBackError) Error() string {
	return fmt.Sprintf("rollback token %s was already used", e.RollbackToken)
}

// RollbackFailedError wraps the store failure that ended a rollback. The token
// is dead afterwards.
type RollbackFailedError struct {
	RollbackToken string
	Err           error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback %s failed: %v", e.RollbackToken, e.Err)
}

func (e *RollbackFailedError) Unwrap() error { return e.Err }

// DuplicateAmbiguousError is only raised when duplicate detection runs in
// strict mode and several existing records tie for the best score.
type DuplicateAmbiguousError struct {
	Candidate int
	Matches   []string
}

func (e *DuplicateAmbiguousError) Error() string {
	return fmt.Sprintf("candidate %d matches %d existing records equally: %s",
		e.Candidate, len(e.Matches), strings.Join(e.Matches, ", "))
}
