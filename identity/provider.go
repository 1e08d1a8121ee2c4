package identity

import (
	"context"

	"github.com/jrsteele09/go-clinic-session/sessions"
)

// Event names the cause of a session change notification.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// SessionStart is returned by a successful password sign-in.
type SessionStart struct {
	User    sessions.Identity
	Session *sessions.Session
}

// SignUpResult carries the created account. Session is nil when the provider
// requires email confirmation before the first sign-in.
type SignUpResult struct {
	User    sessions.Identity
	Session *sessions.Session
}

// SessionChangeFunc receives provider notifications. A nil session means the
// user is signed out.
type SessionChangeFunc func(ctx context.Context, event Event, session *sessions.Session)

// Subscription is released with Unsubscribe, which blocks until the delivery
// goroutine has stopped. It must not be called from inside the callback.
type Subscription interface {
	Unsubscribe()
}

// Provider is the identity service issuing and refreshing sessions.
type Provider interface {
	// GetCurrentSession returns the held session or nil when signed out
	GetCurrentSession(ctx context.Context) (*sessions.Session, error)

	// SignInWithPassword authenticates and emits EventSignedIn on success
	SignInWithPassword(ctx context.Context, email, password string) (*SessionStart, error)

	// SignOut revokes the held session and emits EventSignedOut
	SignOut(ctx context.Context) error

	// SignUp creates an account; metadata is stored with the provider user
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)

	// RefreshSession exchanges the refresh token and emits EventTokenRefreshed
	RefreshSession(ctx context.Context) (*sessions.Session, error)

	// OnSessionChange registers fn for ordered session change notifications
	OnSessionChange(fn SessionChangeFunc) Subscription

	// DeleteUser removes an account using privileged credentials
	DeleteUser(ctx context.Context, userID string) error
}
