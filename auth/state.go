package auth

import (
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/jrsteele09/go-clinic-session/sessions"
)

// Status is the lifecycle state of the session manager.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// transitions lists the allowed status changes. Anything else is a bug and is
// logged at error level.
var transitions = map[Status]map[Status]struct{}{
	StatusUninitialized: {
		StatusAuthenticating:  {},
		StatusUnauthenticated: {},
	},
	StatusAuthenticating: {
		StatusAuthenticating:  {},
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusAuthenticated: {
		StatusAuthenticating:  {},
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusUnauthenticated: {
		StatusAuthenticating:  {},
		StatusUnauthenticated: {},
	},
}

func canTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// State is a consistent snapshot of the authentication truth. Session,
// Identity and Profile always belong together; during a token rotation the
// previous triple stays visible with Status == StatusAuthenticating until the
// new one resolves.
type State struct {
	Status      Status
	Session     *sessions.Session
	Identity    *sessions.Identity
	Profile     *profiles.Profile
	Loading     bool  // a session probe, refresh or profile fetch is in flight
	Initialized bool  // the first session check has completed
	Visible     bool  // the host is foregrounded
	LastError   error // why the last de-authentication happened, if it was a failure
	Version     uint64
}

// Authenticated reports whether an identity with an active profile is held.
func (s State) Authenticated() bool {
	return s.Identity != nil && s.Profile != nil && s.Profile.Active
}

// Can reports whether the held profile may open the area.
func (s State) Can(a profiles.Area) bool {
	return s.Authenticated() && s.Profile.CanAccess(a)
}

func (s State) clone() State {
	c := s
	c.Session = s.Session.Clone()
	c.Profile = s.Profile.Clone()
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	return c
}
