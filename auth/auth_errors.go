package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-clinic-session/internal/errors"
	"github.com/jrsteele09/go-clinic-session/identity"
)

var (
	ErrProfileNotFound    = errors.New("profile not found for user")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrOrphanedAccount    = errors.New("sign-up rollback failed; provider account has no profile")
	ErrInvalidSignUp      = errors.New("invalid sign-up request")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrAlreadyStarted     = errors.New("session manager already started")
	ErrClosed             = errors.New("session manager closed")
	ErrSessionExpired     = apperrors.ErrSessionExpired
)

// SignInCategory is the user facing class of a sign-in failure.
type SignInCategory string

const (
	CategoryInvalidCredentials SignInCategory = "invalid_credentials"
	CategoryEmailNotConfirmed  SignInCategory = "email_not_confirmed"
	CategoryRateLimited        SignInCategory = "rate_limited"
	CategoryOther              SignInCategory = "other"
)

const (
	msgInvalidCredentials = "incorrect email or password"
	msgEmailNotConfirmed  = "email address has not been confirmed; check your inbox"
	msgRateLimited        = "too many sign-in attempts; wait a moment and try again"
)

// SignInError is a classified sign-in failure. Error returns the message to
// show the user; the provider error is available through Unwrap.
type SignInError struct {
	Category SignInCategory
	Message  string
	Err      error
}

func (e *SignInError) Error() string {
	return e.Message
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

// Is matches the shared credential sentinels so callers can branch with errors.Is.
func (e *SignInError) Is(target error) bool {
	switch target {
	case apperrors.ErrInvalidCredentials:
		return e.Category == CategoryInvalidCredentials
	case apperrors.ErrEmailNotConfirmed:
		return e.Category == CategoryEmailNotConfirmed
	case apperrors.ErrRateLimited:
		return e.Category == CategoryRateLimited
	}
	return false
}

// classifySignInError maps provider failures onto SignInCategory.
func classifySignInError(err error) *SignInError {
	msg := identity.MessageOf(err)
	lower := strings.ToLower(msg)

	var apiErr *identity.APIError
	rateLimited := errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests

	switch {
	case strings.Contains(lower, strings.ToLower(identity.MsgInvalidCredentials)):
		return &SignInError{Category: CategoryInvalidCredentials, Message: msgInvalidCredentials, Err: err}
	case strings.Contains(lower, strings.ToLower(identity.MsgEmailNotConfirmed)):
		return &SignInError{Category: CategoryEmailNotConfirmed, Message: msgEmailNotConfirmed, Err: err}
	case rateLimited, strings.Contains(lower, "too many requests"), strings.Contains(lower, "rate limit"):
		return &SignInError{Category: CategoryRateLimited, Message: msgRateLimited, Err: err}
	}
	return &SignInError{Category: CategoryOther, Message: msg, Err: err}
}

// SignUpStage is the step at which a sign-up failed.
type SignUpStage string

const (
	StageValidation SignUpStage = "validation"
	StageAccount    SignUpStage = "account"
	StageProfile    SignUpStage = "profile"
	StageRollback   SignUpStage = "rollback"
)

// SignUpError reports a failed sign-up. At StageProfile the provider account
// was deleted again; at StageRollback the deletion failed too and UserID names
// the orphaned account.
type SignUpError struct {
	Stage       SignUpStage
	UserID      string
	Err         error
	RollbackErr error
}

func (e *SignUpError) Error() string {
	switch e.Stage {
	case StageProfile:
		return fmt.Sprintf("sign-up failed creating profile for %s (account removed): %v", e.UserID, e.Err)
	case StageRollback:
		return fmt.Sprintf("sign-up failed creating profile for %s: %v; removing account failed: %v", e.UserID, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("sign-up failed at %s: %v", e.Stage, e.Err)
}

func (e *SignUpError) Unwrap() []error {
	errs := []error{e.Err}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

func (e *SignUpError) Is(target error) bool {
	return target == ErrOrphanedAccount && e.Stage == StageRollback
}
