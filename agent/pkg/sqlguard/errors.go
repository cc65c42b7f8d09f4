package sqlguard

import (
	"errors"
	"fmt"
)

// Reason classifies why a candidate statement was rejected. The value is
// shown to the LLM in correction prompts.
type Reason string

const (
	ReasonEmpty             Reason = "empty_sql"
	ReasonParse             Reason = "parse_error"
	ReasonMultiple          Reason = "multiple_statements"
	ReasonNotSelect         Reason = "not_select"
	ReasonMutation          Reason = "mutation"
	ReasonUnknownTable      Reason = "unknown_table"
	ReasonUnknownColumn     Reason = "unknown_column"
	ReasonForbiddenFunction Reason = "forbidden_function"
	// ReasonNotEmpty only labels the rejection metric when a non-empty
	// statement is replaced with NoMatchSQL; it never reaches a correction.
	ReasonNotEmpty Reason = "not_empty"
)

// Rejection describes one rejected candidate.
type Rejection struct {
	Reason Reason
	Detail string
	SQL    string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(sql string, reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...), SQL: sql}
}

// ErrSynthesis matches every SynthesisError.
var ErrSynthesis = errors.New("sql synthesis failed")

// SynthesisError is returned when no valid statement was produced within the
// retry budget.
type SynthesisError struct {
	Attempts int
	Last     *Rejection
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("no valid SQL after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *SynthesisError) Unwrap() error {
	return e.Last
}

func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesis
}
