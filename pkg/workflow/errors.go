// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a workflow error.
type ErrorKind string

const (
	// KindTransient is a failure that may succeed on retry. It never escapes the step executor.
	KindTransient ErrorKind = "transient"
	// KindFatal is a non-retryable step failure, including exhausted retries.
	KindFatal ErrorKind = "fatal"
	// KindConflict signals contention on an idempotency key or an exclusive resource.
	KindConflict ErrorKind = "conflict"
	// KindCompensation is a failed undo action.
	KindCompensation ErrorKind = "compensation"
	// KindValidation is an invalid submission input.
	KindValidation ErrorKind = "validation"
	// KindUnauthorized is a failed capability check.
	KindUnauthorized ErrorKind = "unauthorized"
)

// Reason refines why a step failed.
type Reason string

const (
	ReasonError            Reason = "error"
	ReasonTimeout          Reason = "timeout"
	ReasonRetriesExhausted Reason = "retries_exhausted"
	ReasonNonRetryable     Reason = "non_retryable"
	ReasonContention       Reason = "contention"
	ReasonInProgress       Reason = "in_progress"
	ReasonRejected         Reason = "rejected"
)

// predefined error codes
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeWorkflowInProgress   = "WORKFLOW_IN_PROGRESS"
	ErrCodeStepFailed           = "STEP_FAILED"
	ErrCodeCompensationFailed   = "COMPENSATION_FAILED"
	ErrCodeAssetUploadFailed    = "ASSET_UPLOAD_FAILED"
	ErrCodeRecordPersistFailed  = "RECORD_PERSIST_FAILED"
	ErrCodePaymentCaptureFailed = "PAYMENT_CAPTURE_FAILED"
	ErrCodeSlotUnavailable      = "SLOT_UNAVAILABLE"
	ErrCodeSlotConfirmFailed    = "SLOT_CONFIRM_FAILED"
	ErrCodeProductNotFound      = "PRODUCT_NOT_FOUND"
	ErrCodeNotificationFailed   = "NOTIFICATION_FAILED"
)

var (
	// ErrConflict is wrapped by step actions that lost a race for an exclusive resource.
	ErrConflict = errors.New("resource contention")
	// ErrUnknownWorkflow is returned for submissions naming no registered definition.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrNoResult is returned when a step result is requested before the step succeeded.
	ErrNoResult = errors.New("step has no recorded result")
)

// Error is the typed failure carried by outcomes and step records.
type Error struct {
	Kind      ErrorKind              `json:"kind"`
	Code      string                 `json:"code"`
	Step      string                 `json:"step,omitempty"`
	Reason    Reason                 `json:"reason,omitempty"`
	Message   string                 `json:"message"`
	Attempts  int                    `json:"attempts,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

// NewError creates a new Error of the given kind.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewStepError creates the error recorded for a failed step.
func NewStepError(kind ErrorKind, step, code string, reason Reason, attempts int, cause error) *Error {
	if code == "" {
		code = ErrCodeStepFailed
	}
	message := string(reason)
	if cause != nil {
		message = cause.Error()
	}
	e := NewError(kind, code, message)
	e.Step = step
	e.Reason = reason
	e.Attempts = attempts
	e.cause = cause
	return e
}

// NewConflictError creates a contention error.
func NewConflictError(code, message string) *Error {
	e := NewError(KindConflict, code, message)
	e.Reason = ReasonContention
	return e
}

// NewInProgressError is returned when a key is held by a non-terminal instance.
func NewInProgressError(key string) *Error {
	e := NewError(KindConflict, ErrCodeWorkflowInProgress, "workflow already in progress")
	e.Reason = ReasonInProgress
	return e.WithDetail("idempotency_key", key)
}

// NewValidationError creates an input validation error.
func NewValidationError(message string, cause error) *Error {
	e := NewError(KindValidation, ErrCodeInvalidInput, message)
	e.Reason = ReasonRejected
	e.cause = cause
	return e
}

// NewUnauthorizedError creates a failed capability check error for a step.
func NewUnauthorizedError(step, capability string, cause error) *Error {
	e := NewError(KindUnauthorized, ErrCodeUnauthorized, fmt.Sprintf("missing capability %q", capability))
	e.Step = step
	e.Reason = ReasonRejected
	e.cause = cause
	return e
}

// NewCompensationError creates an error for a failed undo action.
func NewCompensationError(step string, attempts int, cause error) *Error {
	e := NewError(KindCompensation, ErrCodeCompensationFailed, "compensation failed")
	if cause != nil {
		e.Message = cause.Error()
	}
	e.Step = step
	e.Attempts = attempts
	e.cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: %s (step: %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause when the error was created in-process.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail adds a detail to the Error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsError extracts a workflow Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsConflict reports whether err is a contention failure.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	e, ok := AsError(err)
	return ok && e.Kind == KindConflict
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindValidation
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or is a conflict.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || IsConflict(err)
}
