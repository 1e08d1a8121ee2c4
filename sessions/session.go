package sessions

import "time"

// Identity is the minimal reference to the authenticated principal.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the credential bundle issued by the identity provider. It is
// replaced wholesale on every sign-in or refresh and never mutated in place.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
	ExpiresAt    int64    `json:"expires_at"` // Unix seconds
	User         Identity `json:"user"`
}

// IsValid reports whether the session is still live at now.
func (s *Session) IsValid(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.ExpiresAt > now.Unix()
}

// ExpiresIn returns the time left before expiry. Negative once expired.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.ExpiresAt-now.Unix()) * time.Second
}

// Expiry returns ExpiresAt as a time.Time.
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// Identity returns a copy of the principal, or nil for a nil session.
func (s *Session) Identity() *Identity {
	if s == nil {
		return nil
	}
	id := s.User
	return &id
}

// Clone returns an independent copy so holders never share a pointer with the
// provider.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
