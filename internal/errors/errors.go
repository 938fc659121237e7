// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrSessionNotFound   = errors.New("capture session not found")
	ErrNotConnected      = errors.New("google account not connected")
	ErrInvalidAttachment = errors.New("invalid attachment")
	ErrExtraction        = errors.New("unable to extract trade fields")
	ErrCommitFailed      = errors.New("trade commit failed")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrInputValidation   = errors.New("input validation failed")
	ErrJobNotFound       = errors.New("analysis job not found")
	ErrStateExpired      = errors.New("oauth state expired")
	ErrStateInvalid      = errors.New("oauth state invalid")
	ErrOAuthExchange     = errors.New("oauth code exchange failed")
	ErrDatabaseError     = errors.New("database error")
	ErrRecordNotFound    = errors.New("record not found")
	ErrForbidden         = errors.New("forbidden")
)

// GatewayError represents a failure of an upstream model call. It always
// matches ErrModelUnavailable.
type GatewayError struct {
	Operation string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("model gateway [%s]: %v", e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is reports ErrModelUnavailable so callers can branch on the sentinel.
func (e *GatewayError) Is(target error) bool {
	return target == ErrModelUnavailable
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(operation string, err error) *GatewayError {
	return &GatewayError{
		Operation: operation,
		Err:       err,
	}
}

// ExtractionError represents a malformed value returned for a field the model
// claimed to know.
type ExtractionError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(field string, value interface{}, message string) *ExtractionError {
	return &ExtractionError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// AttachmentError represents an attachment rejected before persistence.
type AttachmentError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *AttachmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attachment error [%s]: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("attachment error [%s]: %s", e.Filename, e.Reason)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}

func (e *AttachmentError) Is(target error) bool {
	return target == ErrInvalidAttachment
}

// NewAttachmentError creates a new AttachmentError.
func NewAttachmentError(filename, reason string, err error) *AttachmentError {
	return &AttachmentError{
		Filename: filename,
		Reason:   reason,
		Err:      err,
	}
}

// CommitError represents a failure of the ingestion collaborator.
type CommitError struct {
	UserID    string
	SessionID string
	Err       error
}

func (e *CommitError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("commit error [%s/%s]: %v", e.UserID, e.SessionID, e.Err)
	}
	return fmt.Sprintf("commit error [%s]: %v", e.UserID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailed
}

// NewCommitError creates a new CommitError.
func NewCommitError(userID, sessionID string, err error) *CommitError {
	return &CommitError{
		UserID:    userID,
		SessionID: sessionID,
		Err:       err,
	}
}

// ValidationError represents a validation error on caller input.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
