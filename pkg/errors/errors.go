// Package errors provides the structured error taxonomy for webvfs: every
// failure carries a stable machine-readable code and, where one applies, the
// offending path.
package errors

import (
	stderr "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a structured error code for filesystem operations.
type ErrorCode string

const (
	// Path and tree errors
	ErrCodePathInvalid       ErrorCode = "PATH_INVALID"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeExists            ErrorCode = "EXISTS"
	ErrCodeNotDirectory      ErrorCode = "NOT_DIRECTORY"
	ErrCodeIsDirectory       ErrorCode = "IS_DIRECTORY"
	ErrCodeDirectoryNotEmpty ErrorCode = "DIRECTORY_NOT_EMPTY"
	ErrCodeInvalidMove       ErrorCode = "INVALID_MOVE"

	// Resource limits
	ErrCodeFileTooLarge  ErrorCode = "FILE_TOO_LARGE"
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// Lifecycle
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCodeInitFailed     ErrorCode = "INIT_FAILED"

	// Storage backends
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"

	// Configuration and resilience
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"

	// Anything else
	ErrCodeFSError ErrorCode = "FS_ERROR"
)

// Category is the coarse grouping of an error code.
type Category string

const (
	CategoryPath          Category = "path"
	CategoryTree          Category = "tree"
	CategoryResource      Category = "resource"
	CategoryState         Category = "state"
	CategoryStorage       Category = "storage"
	CategoryConfiguration Category = "configuration"
	CategoryInternal      Category = "internal"
)

// VFSError is the single error type returned by the engine. Kinds are
// distinguished by Code rather than by type.
type VFSError struct {
	Code      ErrorCode `json:"code"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Path      string    `json:"path,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *VFSError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path %q)", e.Path)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *VFSError) Unwrap() error {
	return e.Cause
}

// Is matches any *VFSError with the same code (for errors.Is compatibility).
func (e *VFSError) Is(target error) bool {
	if t, ok := target.(*VFSError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new error with the category derived from the code.
func NewError(code ErrorCode, message string) *VFSError {
	return &VFSError{
		Code:     code,
		Category: GetCategory(code),
		Message:  message,
	}
}

// Errorf is NewError with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *VFSError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) Category {
	switch code {
	case ErrCodePathInvalid:
		return CategoryPath
	case ErrCodeNotFound, ErrCodeExists, ErrCodeNotDirectory, ErrCodeIsDirectory,
		ErrCodeDirectoryNotEmpty, ErrCodeInvalidMove:
		return CategoryTree
	case ErrCodeFileTooLarge, ErrCodeQuotaExceeded:
		return CategoryResource
	case ErrCodeNotInitialized, ErrCodeInitFailed:
		return CategoryState
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeRetryExhausted, ErrCodeCircuitOpen:
		return CategoryStorage
	case ErrCodeInvalidConfig:
		return CategoryConfiguration
	default:
		return CategoryInternal
	}
}

// WithPath sets the offending path.
func (e *VFSError) WithPath(path string) *VFSError {
	e.Path = path
	return e
}

// WithOperation sets the operation that failed.
func (e *VFSError) WithOperation(operation string) *VFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *VFSError) WithCause(cause error) *VFSError {
	e.Cause = cause
	return e
}

// Constructors for the common kinds.

func PathInvalid(path, reason string) *VFSError {
	return NewError(ErrCodePathInvalid, reason).WithPath(path)
}

func NotFound(path string) *VFSError {
	return NewError(ErrCodeNotFound, "no such file or directory").WithPath(path)
}

func Exists(path string) *VFSError {
	return NewError(ErrCodeExists, "file exists").WithPath(path)
}

func NotDirectory(path string) *VFSError {
	return NewError(ErrCodeNotDirectory, "not a directory").WithPath(path)
}

func IsDirectory(path string) *VFSError {
	return NewError(ErrCodeIsDirectory, "is a directory").WithPath(path)
}

func DirectoryNotEmpty(path string) *VFSError {
	return NewError(ErrCodeDirectoryNotEmpty, "directory not empty").WithPath(path)
}

func InvalidMove(path, reason string) *VFSError {
	return NewError(ErrCodeInvalidMove, reason).WithPath(path)
}

func FileTooLarge(path string, size, limit int64) *VFSError {
	return Errorf(ErrCodeFileTooLarge, "file size %d exceeds limit %d", size, limit).WithPath(path)
}

func QuotaExceeded(path string, needed, available int64) *VFSError {
	return Errorf(ErrCodeQuotaExceeded, "needs %d bytes, %d available", needed, available).WithPath(path)
}

func NotInitialized() *VFSError {
	return NewError(ErrCodeNotInitialized, "filesystem not initialized")
}

// CodeOf extracts the code of err, or "" when err is not a *VFSError.
func CodeOf(err error) ErrorCode {
	var vfsErr *VFSError
	if stderr.As(err, &vfsErr) {
		return vfsErr.Code
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func IsNotFound(err error) bool       { return HasCode(err, ErrCodeNotFound) }
func IsExists(err error) bool         { return HasCode(err, ErrCodeExists) }
func IsPathInvalid(err error) bool    { return HasCode(err, ErrCodePathInvalid) }
func IsNotInitialized(err error) bool { return HasCode(err, ErrCodeNotInitialized) }

// Wrap converts an arbitrary error into a *VFSError, leaving existing ones
// untouched so their codes survive.
func Wrap(err error, code ErrorCode, operation string) error {
	if err == nil {
		return nil
	}
	var vfsErr *VFSError
	if stderr.As(err, &vfsErr) {
		return err
	}
	return NewError(code, "").WithOperation(operation).WithCause(err)
}
