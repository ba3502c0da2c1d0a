// Package repository defines error types that are reused across multiple
// repositories and by the session layer above them. These sentinel values
// allow handlers to distinguish between failure scenarios. Conflict errors
// all wrap ErrConflict, so a caller that only needs the class can test
// errors.Is(err, ErrConflict) and one that needs the reason can test the
// specific sentinel.
package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict is the class of every error caused by concurrent or stale
// state: another terminal already seated someone, closed the slip, or
// checked the player out. Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// Conflict sentinels. Each one wraps ErrConflict.
var (
	ErrSeatTaken          = fmt.Errorf("%w: seat taken", ErrConflict)
	ErrPlayerAlreadyRated = fmt.Errorf("%w: player already rated", ErrConflict)
	ErrSessionNotFound    = fmt.Errorf("%w: session not found", ErrConflict)
	ErrAlreadyClosed      = fmt.Errorf("%w: already closed", ErrConflict)
	ErrVisitClosed        = fmt.Errorf("%w: visit closed", ErrConflict)
	ErrOpenVisitElsewhere = fmt.Errorf("%w: open visit at another casino", ErrConflict)
)

// ErrDuplicateOpenVisit is returned by VisitRepo.InsertTx when a concurrent
// writer created the player's open visit first. The transaction must be
// abandoned and the winner's visit read back.
var ErrDuplicateOpenVisit = errors.New("open visit already exists")

// Not-found sentinels for reference data. Handlers translate them into 404.
var (
	ErrCasinoNotFound = errors.New("casino not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrTableNotFound  = errors.New("gaming table not found")
	ErrVisitNotFound  = errors.New("visit not found")
)

// ErrForbidden means the caller is scoped to another casino than the row
// it touched. Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrStoreUnavailable is returned when the store timed out or the
// connection broke. The operation may be retried.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError lists request problems found before the store was
// touched.
type ValidationError struct {
	Problems []string
}

// Validation builds a ValidationError from one or more problems.
func Validation(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
