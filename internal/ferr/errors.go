// Package ferr provides the structured error taxonomy used across forge:
// NotFound, AlreadyExists, Corruption, Transport, ProtocolMismatch,
// CompilationError, and Cancelled.
package ferr

import (
	"errors"
	"fmt"
)

// Category classifies an error per the taxonomy.
type Category string

const (
	CategoryNotFound         Category = "NOT_FOUND"
	CategoryAlreadyExists    Category = "ALREADY_EXISTS"
	CategoryCorruption       Category = "CORRUPTION"
	CategoryTransport        Category = "TRANSPORT"
	CategoryProtocolMismatch Category = "PROTOCOL_MISMATCH"
	CategoryCompilationError Category = "COMPILATION_ERROR"
	CategoryCancelled        Category = "CANCELLED"
)

// Code identifies a specific error condition within a category.
type Code string

const (
	CodeHashRefNotFound        Code = "HASH_REF_NOT_FOUND"
	CodeAliasNotFound          Code = "ALIAS_NOT_FOUND"
	CodeCompilerNotFound       Code = "COMPILER_NOT_FOUND"
	CodeResourceNotFound       Code = "RESOURCE_NOT_FOUND"
	CodeHashRefAlreadyExists   Code = "HASH_REF_ALREADY_EXISTS"
	CodeLeafAlreadyExists      Code = "INDEX_TREE_LEAF_ALREADY_EXISTS"
	CodeCorruptedTree          Code = "CORRUPTED_TREE"
	CodeIntegrityFailure       Code = "INTEGRITY_FAILURE"
	CodeInvalidManifest        Code = "INVALID_MANIFEST"
	CodeLeafNotFound           Code = "INDEX_TREE_LEAF_NOT_FOUND"
	CodeInvalidIndexKey        Code = "INVALID_INDEX_KEY"
	CodeTransportError         Code = "TRANSPORT_ERROR"
	CodeVersionMismatch        Code = "VERSION_MISMATCH"
	CodeInvalidTransform       Code = "INVALID_TRANSFORM"
	CodeUnexpectedHashRef      Code = "UNEXPECTED_HASH_REF"
	CodeInvalidIdentifier      Code = "INVALID_IDENTIFIER"
	CodeAssetStoreError        Code = "ASSET_STORE_ERROR"
	CodeCompilationFailed      Code = "COMPILATION_FAILED"
	CodeCancelled              Code = "CANCELLED"
)

// Error is forge's structured error value.
type Error struct {
	Code       Code
	Message    string
	Category   Category
	Cause      error
	Details    map[string]string
	Suggestion string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports equality by Code, matching errors.Is semantics against another *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail attaches a diagnostic key/value pair and returns the receiver.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches a user-facing remediation hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Retryable reports whether the caller may retry the failed operation.
// Only Transport-category errors are retryable (spec section 7).
func (e *Error) Retryable() bool {
	return e.Category == CategoryTransport
}

func categoryFromCode(code Code) Category {
	switch code {
	case CodeHashRefNotFound, CodeAliasNotFound, CodeCompilerNotFound, CodeResourceNotFound, CodeLeafNotFound:
		return CategoryNotFound
	case CodeHashRefAlreadyExists, CodeLeafAlreadyExists:
		return CategoryAlreadyExists
	case CodeCorruptedTree, CodeIntegrityFailure, CodeInvalidManifest, CodeAssetStoreError:
		return CategoryCorruption
	case CodeTransportError:
		return CategoryTransport
	case CodeVersionMismatch, CodeInvalidTransform, CodeUnexpectedHashRef, CodeInvalidIdentifier, CodeInvalidIndexKey:
		return CategoryProtocolMismatch
	case CodeCompilationFailed:
		return CategoryCompilationError
	case CodeCancelled:
		return CategoryCancelled
	default:
		return CategoryCorruption
	}
}

// New creates an Error with a category derived from code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Category: categoryFromCode(code)}
}

// Wrap creates an Error wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// NotFound builds a NotFound-category error.
func NotFound(code Code, message string) *Error {
	e := New(code, message)
	e.Category = CategoryNotFound
	return e
}

// Transport builds a Transport-category error, always retryable.
func Transport(message string, cause error) *Error {
	e := Wrap(CodeTransportError, message, cause)
	e.Category = CategoryTransport
	return e
}

// CompilationError builds a CompilationError-category error, attaching stderr.
func CompilationError(message, stderr string) *Error {
	e := New(CodeCompilationFailed, message)
	e.Category = CategoryCompilationError
	if stderr != "" {
		e.WithDetail("stderr", stderr)
	}
	return e
}

// Cancelled wraps a context cancellation as a Cancelled-category error.
func Cancelled(cause error) *Error {
	e := Wrap(CodeCancelled, "operation cancelled", cause)
	e.Category = CategoryCancelled
	return e
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsRetryable reports whether err is a *Error whose category is Transport.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// GetCategory returns the Category of err, or "" if err is not a *Error.
func GetCategory(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}
