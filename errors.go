package factor

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for common failure scenarios. Compare with errors.Is
// from github.com/cockroachdb/errors, or use the Is* helpers below, so that
// marked errors match their category.
var (
	// Initialization errors
	ErrAlreadyInitialized = errors.New("factor: already initialized")
	ErrNotInitialized     = errors.New("factor: not initialized")

	// General errors
	ErrNotFound      = errors.New("factor: not found")
	ErrAlreadyExists = errors.New("factor: already exists")
	ErrUnauthorized  = errors.New("factor: unauthorized")
	ErrInvalidInput  = errors.New("factor: invalid input")

	// Lifecycle errors
	ErrInvalidStateTransition = errors.New("factor: invalid state transition")
	ErrNotYetDue              = errors.New("factor: not yet due")

	// Payment errors
	ErrTransferFailed = errors.New("factor: payment transfer failed")
	ErrNotSupported   = errors.New("factor: not supported by the payment collaborator")

	// Store errors
	ErrStoreClosed       = errors.New("factor: store is closed")
	ErrTransactionFailed = errors.New("factor: transaction failed")
	ErrMigrationFailed   = errors.New("factor: migration failed")
)

// Specific rejections, marked with their category.
var (
	ErrInvoiceNotFound = errors.Mark(errors.New("factor: invoice not found"), ErrNotFound)
	ErrListingNotFound = errors.Mark(errors.New("factor: not listed"), ErrNotFound)

	ErrNotDesignatedBuyer = errors.Mark(errors.New("factor: only designated buyer can verify"), ErrUnauthorized)
	ErrNotOwner           = errors.Mark(errors.New("factor: not the owner"), ErrUnauthorized)
	ErrNotOriginalBuyer   = errors.Mark(errors.New("factor: only original buyer can settle"), ErrUnauthorized)
	ErrNotAdmin           = errors.Mark(errors.New("factor: only the admin can deposit"), ErrUnauthorized)
	ErrNonceReused        = errors.Mark(errors.New("factor: signed request already used"), ErrUnauthorized)
)

// Error codes are stable machine-readable names for error categories.
const (
	CodeAlreadyInitialized = "already_initialized"
	CodeNotInitialized     = "not_initialized"
	CodeNotFound           = "not_found"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidInput       = "invalid_input"
	CodeInvalidTransition  = "invalid_transition"
	CodeNotYetDue          = "not_yet_due"
	CodeTransferFailed     = "transfer_failed"
	CodeNotSupported       = "not_supported"
	CodeInternal           = "internal"
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("factor: validation failed for %s: %s", e.Field, e.Message)
}

// invalid builds a ValidationError marked as ErrInvalidInput.
func invalid(field, message string) error {
	return errors.Mark(ValidationError{Field: field, Message: message}, ErrInvalidInput)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized returns true if the caller lacked the required identity.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsInvalidTransition returns true if the invoice was in the wrong status.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

// IsTransferFailure returns true if the payment collaborator rejected the
// transfer.
func IsTransferFailure(err error) bool {
	return errors.Is(err, ErrTransferFailed)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried by the caller. The engine itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}

// Code maps err to its stable error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyInitialized):
		return CodeAlreadyInitialized
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidStateTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotYetDue):
		return CodeNotYetDue
	case errors.Is(err, ErrTransferFailed):
		return CodeTransferFailed
	case errors.Is(err, ErrNotSupported):
		return CodeNotSupported
	default:
		return CodeInternal
	}
}
