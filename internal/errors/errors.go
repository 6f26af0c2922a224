// Package errors defines the structured error used across DevLens.
//
// A DevLensError names the layer that failed (Category) and a stable
// machine-readable Code. Transports never match on messages: they ask
// KindOf for the coarse class and map that onto HTTP or gRPC status.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the layer an error came from.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInput      ErrorCategory = "INPUT"
	ErrCategoryAnalysis   ErrorCategory = "ANALYSIS"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

const (
	// request shape
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeEmptyName      = "EMPTY_NAME"
	CodeInvalidID      = "INVALID_ID"

	// uploaded event data
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNoClassifiedRows = "NO_CLASSIFIED_ROWS"
	CodeParseFailed      = "PARSE_FAILED"

	CodeTimeout = "TIMEOUT"

	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	CodeAnalysisNotFound = "ANALYSIS_NOT_FOUND"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeCorruptRecord    = "CORRUPT_RECORD"

	CodeUnexpected = "UNEXPECTED"
)

// DevLensError is the error type returned by every DevLens package.
type DevLensError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

func (e *DevLensError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

func (e *DevLensError) Unwrap() error { return e.Cause }

// Is matches any DevLensError with the same category and code, so a bare
// New(...) can serve as a sentinel.
func (e *DevLensError) Is(target error) bool {
	t, ok := target.(*DevLensError)
	return ok && e.Category == t.Category && e.Code == t.Code
}

func New(category ErrorCategory, code, message string) *DevLensError {
	return &DevLensError{Category: category, Code: code, Message: message}
}

func Wrap(category ErrorCategory, code, message string, cause error) *DevLensError {
	return &DevLensError{Category: category, Code: code, Message: message, Cause: cause}
}

func NewValidationError(code, message string) *DevLensError {
	return New(ErrCategoryValidation, code, message)
}

func NewInputError(code, message string) *DevLensError {
	return New(ErrCategoryInput, code, message)
}

func NewAnalysisError(code, message string, cause error) *DevLensError {
	return Wrap(ErrCategoryAnalysis, code, message, cause)
}

func NewStorageError(code, message string, cause error) *DevLensError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *DevLensError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewInternalError(message string, cause error) *DevLensError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// GetCategory returns "" for errors that are not DevLensErrors.
func GetCategory(err error) ErrorCategory {
	var de *DevLensError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

// GetCode returns "" for errors that are not DevLensErrors.
func GetCode(err error) string {
	var de *DevLensError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Kind is the transport-independent class of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// KindOf classifies err. Plain context deadline errors count as timeouts
// so callers need not wrap them first.
func KindOf(err error) Kind {
	switch code := GetCode(err); {
	case code == CodeAnalysisNotFound || code == CodeObjectNotFound:
		return KindNotFound
	case code == CodeTimeout || errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	switch GetCategory(err) {
	case ErrCategoryValidation, ErrCategoryInput:
		return KindInvalid
	}
	return KindInternal
}

// IsNotFound reports whether err means a missing analysis or object.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool { return KindOf(err) == KindInvalid }
