package sekai

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrStaleEntity is returned when an entity handle refers to a deleted
	// (or recycled) entity.
	ErrStaleEntity = errors.New("sekai: stale entity")
	// ErrStaleTable is returned when a TableHandle refers to a deleted table.
	ErrStaleTable = errors.New("sekai: stale table handle")
	// ErrLocked is returned by operations that refuse to mutate a table that
	// is currently being iterated.
	ErrLocked = errors.New("sekai: table is locked")
)

// AssertCode categorizes precondition and invariant violations.
type AssertCode string

const (
	CodeInvalidParameter AssertCode = "INVALID_PARAMETER"
	CodeInvalidOperation AssertCode = "INVALID_OPERATION"
	CodeLockedTable      AssertCode = "LOCKED_TABLE"
	CodeOutOfRange       AssertCode = "OUT_OF_RANGE"
	CodeInternal         AssertCode = "INTERNAL_ERROR"
)

// AssertError is the panic value used for programmer errors, such as
// mutating a locked table or passing a wildcard where a concrete id is
// required. These are not meant to be recovered from.
type AssertError struct {
	Code    AssertCode
	Message string
}

// Error implements the error interface.
func (e *AssertError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ecsAssert panics with an *AssertError when cond is false.
func ecsAssert(cond bool, code AssertCode, format string, args ...any) {
	if !cond {
		panic(&AssertError{Code: code, Message: fmt.Sprintf(format, args...)})
	}
}

// QueryErrorCode categorizes query compilation failures.
type QueryErrorCode string

const (
	// ErrCodeInvalidTerm indicates a term that is malformed on its own.
	ErrCodeInvalidTerm QueryErrorCode = "INVALID_TERM"
	// ErrCodeUnresolvedID indicates a name or id that does not resolve to a
	// live entity.
	ErrCodeUnresolvedID QueryErrorCode = "UNRESOLVED_ID"
	// ErrCodeInvalidOperator indicates an invalid operator combination, such
	// as Not inside an Or chain.
	ErrCodeInvalidOperator QueryErrorCode = "INVALID_OPERATOR"
	// ErrCodeUnboundVariable indicates a variable used before any term can
	// bind it.
	ErrCodeUnboundVariable QueryErrorCode = "UNBOUND_VARIABLE"
	// ErrCodeTooManyTerms indicates more fields than the iterator can track.
	ErrCodeTooManyTerms QueryErrorCode = "TOO_MANY_TERMS"
	// ErrCodeTooManyVariables indicates more variables than the VM can track.
	ErrCodeTooManyVariables QueryErrorCode = "TOO_MANY_VARIABLES"
)

// QueryError describes a single compile-time failure. Term is the index of
// the offending term, or -1 when the error applies to the whole query.
type QueryError struct {
	Code    QueryErrorCode
	Term    int
	Message string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Term >= 0 {
		return fmt.Sprintf("%s: term %d: %s", e.Code, e.Term, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func queryErrorf(code QueryErrorCode, term int, format string, args ...any) *QueryError {
	return &QueryError{Code: code, Term: term, Message: fmt.Sprintf(format, args...)}
}

// IsQueryError reports whether err (or any error aggregated into it) is a
// *QueryError with the given code.
func IsQueryError(err error, code QueryErrorCode) bool {
	for _, e := range multierr.Errors(err) {
		var qe *QueryError
		if errors.As(e, &qe) && qe.Code == code {
			return true
		}
	}
	return false
}
