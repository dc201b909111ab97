package models

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaMismatch         = errors.New("variant and payload disagree")
	ErrUnknownVariant         = errors.New("unknown variant")
	ErrNotFound               = errors.New("content item not found")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrConfirmationFailed     = errors.New("ledger confirmation failed")

	ErrNotAPoll          = errors.New("content item is not a poll")
	ErrUnknownPollOption = errors.New("poll does not have a option like that")
	ErrPollClosed        = errors.New("poll has been ended")
)

// SchemaMismatchError describes which rule of the variant/payload invariant
// an item broke.
type SchemaMismatchError struct {
	ItemID    uint
	Variant   Variant
	Populated []Variant
}

func (e *SchemaMismatchError) Error() string {
	switch len(e.Populated) {
	case 0:
		return fmt.Sprintf("item #%d (%s) has no payload", e.ItemID, e.Variant)
	case 1:
		return fmt.Sprintf("item #%d is tagged %s but carries a %s payload", e.ItemID, e.Variant, e.Populated[0])
	default:
		return fmt.Sprintf("item #%d (%s) carries %d payloads: %v", e.ItemID, e.Variant, len(e.Populated), e.Populated)
	}
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// ValidationFailed names the first draft field that broke a rule.
type ValidationFailed struct {
	Field string
	Rule  string
}

func (e *ValidationFailed) Error() string {
	return fmt.Sprintf("field %s failed rule %s", e.Field, e.Rule)
}

// PreStepFailed aborts a submission before any content item is created.
type PreStepFailed struct {
	Step  string
	Cause error
}

func (e *PreStepFailed) Error() string {
	return fmt.Sprintf("pre-step %s failed: %v", e.Step, e.Cause)
}

func (e *PreStepFailed) Unwrap() error {
	return e.Cause
}

type ConfirmationFailedError struct {
	TxRef string
	Cause error
}

func (e *ConfirmationFailedError) Error() string {
	return fmt.Sprintf("transaction %s was not confirmed: %v", e.TxRef, e.Cause)
}

func (e *ConfirmationFailedError) Is(target error) bool {
	return target == ErrConfirmationFailed
}

func (e *ConfirmationFailedError) Unwrap() error {
	return e.Cause
}

// UnstoredSubmission is returned when every pre-step succeeded but the content
// item could not be created. Payload carries the folded resource ids, a retry
// that starts from it must not run the pre-steps again.
type UnstoredSubmission struct {
	Payload Payload
	TxRef   string
	Cause   error
}

func (e *UnstoredSubmission) Error() string {
	return fmt.Sprintf("ledger transaction %s succeeded but its content item was not stored: %v", e.TxRef, e.Cause)
}

func (e *UnstoredSubmission) Unwrap() error {
	return e.Cause
}
