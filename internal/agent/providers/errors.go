// Package providers adapts hosted LLM APIs to the agent.LLMProvider interface.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorReason classifies a provider failure.
type ErrorReason string

const (
	ReasonRateLimit      ErrorReason = "rate_limit"
	ReasonAuth           ErrorReason = "auth"
	ReasonBilling        ErrorReason = "billing"
	ReasonTimeout        ErrorReason = "timeout"
	ReasonServerError    ErrorReason = "server_error"
	ReasonInvalidRequest ErrorReason = "invalid_request"
	ReasonContentFilter  ErrorReason = "content_filter"
	ReasonUnknown        ErrorReason = "unknown"
)

// IsRetryable reports whether a request failing for this reason may succeed
// when repeated.
func (r ErrorReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a classified error returned by a provider.
type ProviderError struct {
	Reason    ErrorReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause, classifying it from its text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus sets the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode sets the API error code, reclassifying when the code is known.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// ClassifyError derives a reason from an error's text.
func ClassifyError(err error) ErrorReason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "deadline exceeded", "etimedout"):
		return ReasonTimeout
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return ReasonRateLimit
	case containsAny(msg, "unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"):
		return ReasonAuth
	case containsAny(msg, "billing", "quota", "insufficient_quota", "payment required", "402"):
		return ReasonBilling
	case containsAny(msg, "content_filter", "content policy", "safety"):
		return ReasonContentFilter
	case containsAny(msg, "internal server error", "bad gateway", "service unavailable", "overloaded",
		"500", "502", "503", "504", "connection reset", "connection refused"):
		return ReasonServerError
	case containsAny(msg, "invalid_request", "bad request", "400"):
		return ReasonInvalidRequest
	}
	return ReasonUnknown
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func classifyStatusCode(status int) ErrorReason {
	switch {
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	case status >= 400:
		return ReasonInvalidRequest
	}
	return ReasonUnknown
}

func classifyErrorCode(code string) ErrorReason {
	switch strings.ToLower(code) {
	case "rate_limit_exceeded", "rate_limit_error":
		return ReasonRateLimit
	case "invalid_api_key", "authentication_error", "permission_error":
		return ReasonAuth
	case "insufficient_quota", "billing_error":
		return ReasonBilling
	case "overloaded_error", "api_error", "server_error":
		return ReasonServerError
	case "content_filter":
		return ReasonContentFilter
	case "invalid_request_error":
		return ReasonInvalidRequest
	}
	return ReasonUnknown
}

// GetProviderError extracts a *ProviderError from err's chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if perr, ok := GetProviderError(err); ok {
		return perr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
