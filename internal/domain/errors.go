package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input; nothing is written.
type ValidationError struct {
	Entity string
	ID     int64
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d: %s %s", e.Entity, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Entity, e.Field, e.Reason)
}

// PreconditionError rejects an operation the current state does not allow.
type PreconditionError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
}

// IntegrityWarning describes a broken hierarchy reference met during aggregation.
// It is logged, never returned to the caller.
type IntegrityWarning struct {
	MemberID int64
	Relation string
	RefID    int64
	Reason   string
}

func (w IntegrityWarning) Error() string {
	return fmt.Sprintf("member %d: %s %d %s", w.MemberID, w.Relation, w.RefID, w.Reason)
}

// PrintLimitExceeded is raised once a report has been printed the allowed number of times.
type PrintLimitExceeded struct {
	Kind     PrintKind
	TargetID int64
	Limit    int
}

func (e *PrintLimitExceeded) Error() string {
	return fmt.Sprintf("%s %d: print limit of %d reached", e.Kind, e.TargetID, e.Limit)
}

func Invalid(entity string, id int64, field, reason string) error {
	return &ValidationError{Entity: entity, ID: id, Field: field, Reason: reason}
}

func Precondition(entity string, id int64, format string, args ...any) error {
	return &PreconditionError{Entity: entity, ID: id, Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPrecondition(err error) bool {
	var p *PreconditionError
	return errors.As(err, &p)
}

func IsPrintLimit(err error) bool {
	var p *PrintLimitExceeded
	return errors.As(err, &p)
}
