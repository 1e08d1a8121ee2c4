package identity

import (
	"errors"
	"fmt"
)

// Messages the providers use for well known failures. The session manager
// classifies sign-in errors by these strings.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgRateLimited        = "Too many requests"
	MsgUserExists         = "User already registered"
	MsgSessionMissing     = "Auth session missing!"
	MsgInvalidRefresh     = "Invalid Refresh Token"
	MsgUserNotFound       = "User not found"
)

// APIError is a failure reported by the identity provider.
type APIError struct {
	Status  int    // HTTP status, or the closest equivalent for in-memory providers
	Code    string // Provider error code when available
	Message string // Provider message
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return e.Message
}

// NewAPIError builds an APIError.
func NewAPIError(status int, message string) *APIError {
	return &APIError{Status: status, Message: message}
}

// MessageOf returns the provider message of err, or err.Error() for other errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
