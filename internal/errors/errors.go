// Package errors provides custom error types for the intent-verification library.
package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrEmptyArgument indicates that a required argument was nil or empty.
	ErrEmptyArgument = errors.New("required argument is empty")

	// ErrRepositoryUnreachable indicates that the repository could not be cloned or opened.
	ErrRepositoryUnreachable = errors.New("repository unreachable")

	// ErrCommitNotFound indicates that a commit identifier does not resolve in the repository.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrAuthRejected indicates that the completion service rejected the API credential.
	ErrAuthRejected = errors.New("credential rejected by completion service")

	// ErrUnparseableResponse indicates that a completion could not be parsed into a verdict.
	ErrUnparseableResponse = errors.New("unparseable completion response")

	// ErrContentUnavailable indicates that a hosting API would not serve the content of a file.
	ErrContentUnavailable = errors.New("file content unavailable")

	// ErrDoubleRelease indicates that an FFI handle was released twice or was never issued.
	ErrDoubleRelease = errors.New("handle already released or unknown")
)

// ValidationError represents an error in configuration or input validation.
type ValidationError struct {
	Field string
	Value interface{}
	Msg   string
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s (value: %v): %s", e.Field, e.Value, e.Msg)
}

// Unwrap returns the underlying error, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validation creates a new ValidationError.
func Validation(field string, value interface{}, msg string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Msg: msg}
}

// Empty returns a ValidationError for a missing required argument.
func Empty(field string) *ValidationError {
	return &ValidationError{Field: field, Value: "", Msg: "must not be empty", Err: ErrEmptyArgument}
}

// APIError represents an error from an external API.
type APIError struct {
	Service    string
	Method     string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error in %s (status %d): %v", e.Service, e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API error in %s: %v", e.Service, e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// API wraps err as an APIError for the given service and method.
func API(service, method string, err error) *APIError {
	return &APIError{Service: service, Method: method, Err: err}
}

// RetrievalError represents a failure to materialize the change set of a repository.
type RetrievalError struct {
	RepoURL string
	Ref     string
	Err     error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("retrieving %s at %s: %v", e.RepoURL, e.Ref, e.Err)
	}
	return fmt.Sprintf("retrieving %s: %v", e.RepoURL, e.Err)
}

// Unwrap returns the underlying error.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// AuthError represents a credential rejected by the completion service.
// It is always fatal for the invocation that produced it.
type AuthError struct {
	Service string
	Err     error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected the credential: %v", e.Service, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is reports ErrAuthRejected as matching every AuthError.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuthRejected
}

// ReviewError represents a recoverable failure to review a single file.
type ReviewError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ReviewError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("review error for %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("review error for %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ReviewError) Unwrap() error {
	return e.Err
}

// IsInvocationError reports whether err aborts a whole invocation: invalid
// arguments, an unreachable repository, unknown commits or a rejected credential.
func IsInvocationError(err error) bool {
	if err == nil {
		return false
	}
	var (
		validation *ValidationError
		retrieval  *RetrievalError
		auth       *AuthError
	)
	return errors.As(err, &validation) || errors.As(err, &retrieval) || errors.As(err, &auth)
}

// IsAuth reports whether err carries a rejected credential.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}
