package engine

import "fmt"

// Code categorizes fatal turn failures.
type Code string

const (
	CodeInvalidRequest  Code = "invalid_request"
	CodeUpgradeRequired Code = "upgrade_required"
	CodeEmptyReply      Code = "empty_reply"
	CodeProvider        Code = "provider_error"
	CodeNotFound        Code = "not_found"
	CodeUnavailable     Code = "unavailable"
	CodeInternal        Code = "internal_error"
)

// Error is the tagged failure a turn surfaces to the transport layer.
// Degradable context failures never become an Error; only fatal
// conditions do.
type Error struct {
	Code            Code   `json:"code"`
	Message         string `json:"message"`
	Status          int    `json:"-"`
	UpgradeRequired bool   `json:"upgradeRequired,omitempty"`
	cause           error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewInvalidRequestError marks a client mistake, mapped to 400.
func NewInvalidRequestError(message string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message, Status: 400}
}

// NewUpgradeRequiredError marks a denied subscription check, mapped to
// 402 with the upgrade marker set.
func NewUpgradeRequiredError(message string) *Error {
	return &Error{Code: CodeUpgradeRequired, Message: message, Status: 402, UpgradeRequired: true}
}

// NewEmptyReplyError marks a completion that produced no usable text.
func NewEmptyReplyError(cause error) *Error {
	return &Error{Code: CodeEmptyReply, Message: "the assistant produced no reply", Status: 502, cause: cause}
}

// NewProviderError wraps a failing external call.
func NewProviderError(message string, cause error) *Error {
	return &Error{Code: CodeProvider, Message: message, Status: 502, cause: cause}
}

// NewUnavailableError marks a feature whose provider is not configured.
func NewUnavailableError(message string) *Error {
	return &Error{Code: CodeUnavailable, Message: message, Status: 503}
}

// NewNotFoundError marks a missing resource, mapped to 404.
func NewNotFoundError(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: 404}
}

// NewInternalError wraps an unexpected failure, mapped to 500.
func NewInternalError(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Status: 500, cause: cause}
}
