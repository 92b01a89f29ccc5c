package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or configuration
	ErrCatSampling   ErrorCategory = "sampling"   // Not enough usable generations
	ErrCatOracle     ErrorCategory = "oracle"     // Similarity backend failure
	ErrCatPolicy     ErrorCategory = "policy"     // Policy configuration rejected
	ErrCatExecution  ErrorCategory = "execution"  // Generation provider failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Provider rate limited
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Predefined error codes
const (
	CodeInsufficientSamples = "INSUFFICIENT_SAMPLES"
	CodeOracleUnavailable   = "ORACLE_UNAVAILABLE"
	CodeInvalidPolicy       = "INVALID_POLICY_CONFIG"
	CodeMalformedGeneration = "MALFORMED_GENERATION"
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeEmptyPrompt         = "EMPTY_PROMPT"
	CodePromptTooLong       = "PROMPT_TOO_LONG"
	CodeNotFound            = "NOT_FOUND"
	CodeExtractorFailed     = "EXTRACTOR_FAILED"
	CodeInvalidClustering   = "INVALID_CLUSTERING"
	CodeReportCorrupted     = "REPORT_CORRUPTED"
)

// MaxPromptLength is the maximum allowed prompt length.
const MaxPromptLength = 100000

// Sentinel values for errors.Is matching.
var (
	ErrInsufficientSamples = &DomainError{Category: ErrCatSampling, Code: CodeInsufficientSamples}
	ErrOracleUnavailable   = &DomainError{Category: ErrCatOracle, Code: CodeOracleUnavailable}
	ErrInvalidPolicy       = &DomainError{Category: ErrCatPolicy, Code: CodeInvalidPolicy}
)

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// InsufficientSamples reports that fewer usable generations exist than the
// policy requires. Callers may retry generation.
func InsufficientSamples(got, want int) *DomainError {
	return &DomainError{
		Category:  ErrCatSampling,
		Code:      CodeInsufficientSamples,
		Message:   fmt.Sprintf("got %d usable generations, policy requires %d", got, want),
		Retryable: true,
		Details: map[string]interface{}{
			"got":  got,
			"want": want,
		},
	}
}

// OracleUnavailable reports that the similarity backend could not answer.
func OracleUnavailable(oracle string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatOracle,
		Code:      CodeOracleUnavailable,
		Message:   fmt.Sprintf("similarity oracle %q unavailable", oracle),
		Retryable: true,
		Cause:     cause,
	}
}

// InvalidPolicy reports a policy that cannot be evaluated.
func InvalidPolicy(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatPolicy,
		Code:      CodeInvalidPolicy,
		Message:   message,
		Retryable: false,
	}
}

// MalformedGeneration describes a generation excluded from evaluation.
// It is recorded as a warning and never returned on its own.
func MalformedGeneration(index int, why string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeMalformedGeneration,
		Message:   fmt.Sprintf("generation #%d excluded: %s", index+1, why),
		Retryable: false,
		Details: map[string]interface{}{
			"index": index,
		},
	}
}

// ErrGeneration creates a provider execution error.
func ErrGeneration(provider string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeGenerationFailed,
		Message:   fmt.Sprintf("provider %q failed to generate", provider),
		Retryable: true,
		Cause:     cause,
	}
}

// ErrProviderUnavailable reports a provider that is not configured or reachable.
func ErrProviderUnavailable(provider, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeProviderUnavailable,
		Message:   fmt.Sprintf("provider %q: %s", provider, message),
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrReportCorrupted reports a stored report that failed verification.
func ErrReportCorrupted(id, message string) *DomainError {
	return &DomainError{
		Category: ErrCatInternal,
		Code:     CodeReportCorrupted,
		Message:  fmt.Sprintf("report %s: %s", id, message),
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// GetCode extracts the error code, or "" for non-domain errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsInsufficientSamples reports whether err is an InsufficientSamples failure.
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, ErrInsufficientSamples)
}

// IsOracleUnavailable reports whether err is an OracleUnavailable failure.
func IsOracleUnavailable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable)
}

// IsInvalidPolicy reports whether err is an InvalidPolicyConfig failure.
func IsInvalidPolicy(err error) bool {
	return errors.Is(err, ErrInvalidPolicy)
}
