// Package errors provides the unified error type and factory functions for the
// TerraSight-Intelligence platform.  Every layer of the application (domain,
// application, infrastructure, interfaces) uses AppError as the single carrier
// for structured error information, enabling consistent HTTP responses,
// logging, and monitoring.
//
// The platform distinguishes environmental conditions (missing imagery,
// remote-compute timeouts, absent collaborator data) from programmer and
// configuration defects.  Only the latter are treated as fatal; the former are
// recovered locally and surfaced as flags on results.  The IsRecoverable
// helper encodes that split.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// AppError is the single structured error type used throughout the platform.
// It satisfies the standard error interface and supports Go 1.13+ error
// wrapping so that errors.Is / errors.As / errors.Unwrap work transparently
// across all layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeDataUnavailable, "no capture for window 2025-07-01..2025-07-08")
//	return errors.Wrap(repoErr, errors.ErrCodeDatabaseError, "failed to persist run artifact")
//	return errors.NotFound("region central-valley not found").WithDetail("searched active regions")
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description of the error, suitable
	// for inclusion in API responses returned to callers.
	Message string

	// Detail carries supplementary context (window bounds, region IDs, etc.)
	// that aids debugging without leaking sensitive internals to end users.
	Detail string

	// Cause is the underlying error that triggered this AppError, enabling
	// errors.Is / errors.As traversal of the full error chain.
	Cause error

	// Stack contains the formatted call-stack captured at the point of error
	// creation.  It is intentionally not included in Error() output; callers
	// that need it can inspect the field directly (e.g., structured logger
	// middleware).
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>"; the detail segment is omitted when
// Detail is empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap returns the underlying cause error, enabling errors.Is and errors.As
// to traverse the full error chain without additional boilerplate at call sites.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set to the
// supplied string.  It is safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// New constructs a fresh AppError with the given code and message.
// A call-stack snapshot is captured automatically.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.
// If err is nil, Wrap returns nil so it can be used inline.
//
// When err is already an *AppError and code is CodeUnknown the original code
// is preserved, preventing loss of the original classification during
// cross-layer propagation.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.  It is the idiomatic way to check domain-specific failure modes:
//
//	if errors.IsCode(err, errors.ErrCodeDataUnavailable) { ... }
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsDataUnavailable reports whether err carries the "no usable capture"
// signature.  The adaptive date search and the per-region fallback key off
// this check specifically: other error classes must not trigger a lookback.
func IsDataUnavailable(err error) bool {
	return IsCode(err, ErrCodeDataUnavailable)
}

// IsComputationTimeout reports whether err carries the remote-compute timeout
// signature.
func IsComputationTimeout(err error) bool {
	return IsCode(err, ErrCodeComputationTimeout) || IsCode(err, ErrCodeTimeout)
}

// IsRecoverable reports whether err represents an environmental condition
// that the pipeline recovers from locally (degraded data, retries, neutral
// defaults) as opposed to a caller or configuration defect.
func IsRecoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeDataUnavailable, ErrCodeComputationTimeout, ErrCodeEmptyComposite,
		ErrCodeDateSearchExhausted, ErrCodeDataSourceUnavailable,
		ErrCodeDataSourceRateLimited, ErrCodeDataSourceParseError:
		return true
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain.  If no *AppError is present, CodeUnknown is returned.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// NotFound constructs a CodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Stack:   captureStack(1),
	}
}

// InvalidParam constructs a CodeInvalidParam AppError.
func InvalidParam(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidParam,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Configuration constructs a CodeConfiguration AppError.  Configuration
// defects are the only error class the platform treats as fatal: they
// indicate a caller defect rather than an environmental condition.
func Configuration(message string) *AppError {
	return &AppError{
		Code:    CodeConfiguration,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Internal constructs a CodeInternal AppError.  Use this for unexpected
// server-side failures where no more specific code applies.
func Internal(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Stack:   captureStack(1),
	}
}

// DataUnavailable constructs an ErrCodeDataUnavailable AppError.
func DataUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrCodeDataUnavailable,
		Message: message,
		Stack:   captureStack(1),
	}
}

// ComputationTimeout constructs an ErrCodeComputationTimeout AppError.
func ComputationTimeout(message string) *AppError {
	return &AppError{
		Code:    ErrCodeComputationTimeout,
		Message: message,
		Stack:   captureStack(1),
	}
}
