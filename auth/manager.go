package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-clinic-session/identity"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/jrsteele09/go-clinic-session/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultCallTimeout      = 15 * time.Second
	DefaultRefreshThreshold = 300 * time.Second
)

// Manager owns the authentication truth of the application: the current
// session, the identity it belongs to and that identity's clinic profile.
// All three change together under one lock and no lock is held across a
// provider or profile store call.
type Manager struct {
	provider         identity.Provider
	profiles         profiles.Repo
	validator        *Validator
	logger           zerolog.Logger
	nowTime          func() time.Time
	callTimeout      time.Duration
	refreshThreshold time.Duration

	lock   sync.Mutex
	state  State
	seq    uint64 // acquisition sequence; a completion applies only while its seq is current
	sub    identity.Subscription
	closed bool

	// signUps counts in-flight sign-ups by normalized email. Provider
	// notifications for those accounts are adopted by SignUp once the
	// profile exists instead of racing the insert.
	signUps map[string]int

	listenersLock sync.Mutex
	listeners     map[int]*listener
	nextListener  int
}

type listener struct {
	fn      func(State)
	version uint64 // last version delivered
}

type ManagerOption func(*Manager)

func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithCallTimeout bounds each provider and profile store call. A timeout is
// handled like any other transient provider failure.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithRefreshThreshold sets how close to expiry a session must be before a
// host signal requests a refresh.
func WithRefreshThreshold(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.refreshThreshold = d
		}
	}
}

// NewManager wires the manager to its collaborators. Call Start to subscribe
// to the provider and run the initial session probe.
func NewManager(provider identity.Provider, profileRepo profiles.Repo, options ...ManagerOption) (*Manager, error) {
	if provider == nil {
		return nil, errors.New("[NewManager] identity provider is required")
	}
	if profileRepo == nil {
		return nil, errors.New("[NewManager] profile repo is required")
	}
	m := &Manager{
		provider:         provider,
		profiles:         profileRepo,
		validator:        NewValidator(),
		logger:           zerolog.Nop(),
		nowTime:          time.Now,
		callTimeout:      DefaultCallTimeout,
		refreshThreshold: DefaultRefreshThreshold,
		state:            State{Status: StatusUninitialized, Visible: true},
		listeners:        make(map[int]*listener),
		signUps:          make(map[string]int),
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "session_manager").Logger()
	return m, nil
}

// Start registers for provider notifications and probes for an existing
// session. Probe failures are not returned; they leave the manager
// unauthenticated with State().LastError set.
func (m *Manager) Start(ctx context.Context) error {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return ErrClosed
	}
	if m.sub != nil {
		m.lock.Unlock()
		return ErrAlreadyStarted
	}
	m.sub = m.provider.OnSessionChange(m.HandleSessionChange)
	m.seq++
	seq := m.seq
	m.state.Loading = true
	snapshot := m.touchLocked()
	m.lock.Unlock()
	m.publish(snapshot)

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	session, err := m.provider.GetCurrentSession(cctx)
	cancel()

	switch {
	case err != nil:
		m.logger.Warn().Err(err).Msg("initial session probe failed")
		m.clearIf(seq, errors.Wrap(err, "[Manager.Start] probe session"), "probe failed")
	case session == nil:
		m.clearIf(seq, nil, "no stored session")
	case !session.IsValid(m.nowTime()):
		m.clearIf(seq, ErrSessionExpired, "stored session expired")
	default:
		_ = m.authenticate(ctx, identity.EventInitialSession, session, seq)
	}
	return nil
}

// Close deregisters the provider subscription. It must not be called from a
// state listener or from inside HandleSessionChange.
func (m *Manager) Close() {
	m.lock.Lock()
	sub := m.sub
	m.sub = nil
	m.closed = true
	m.lock.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// HandleSessionChange applies a provider notification. A nil session clears
// all auth state; anything else re-acquires the identity and its profile.
func (m *Manager) HandleSessionChange(ctx context.Context, event identity.Event, session *sessions.Session) {
	m.logger.Debug().Str("event", string(event)).Bool("has_session", session != nil).Msg("session change")
	if session == nil {
		m.clear(nil, string(event))
		return
	}
	if m.signUpPending(session.User.Email) {
		m.logger.Debug().Str("event", string(event)).Str("user_id", session.User.ID).Msg("deferring session of account being signed up")
		return
	}
	_ = m.authenticate(ctx, event, session, 0)
}

func (m *Manager) beginSignUp(email string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.signUps[email]++
}

func (m *Manager) endSignUp(email string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.signUps[email]--
	if m.signUps[email] <= 0 {
		delete(m.signUps, email)
	}
}

func (m *Manager) signUpPending(email string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.signUps[NormalizeEmail(email)] > 0
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state.clone()
}

func (m *Manager) Authenticated() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state.Authenticated()
}

// Can reports whether the current profile may open the area.
func (m *Manager) Can(a profiles.Area) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state.Can(a)
}

// Subscribe registers fn for state changes and immediately delivers the
// current state. Snapshots arrive in Version order; a listener that falls
// behind skips intermediate versions. fn must not call Subscribe or the
// returned unsubscribe.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.listenersLock.Lock()
	id := m.nextListener
	m.nextListener++
	l := &listener{fn: fn}
	m.listeners[id] = l
	initial := m.State()
	l.version = initial.Version
	fn(initial)
	m.listenersLock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersLock.Lock()
			delete(m.listeners, id)
			m.listenersLock.Unlock()
		})
	}
}

// authenticate acquires the profile for session and commits the triple. seq
// is the acquisition already reserved by the caller, or zero to reserve one.
func (m *Manager) authenticate(ctx context.Context, event identity.Event, session *sessions.Session, seq uint64) error {
	session = session.Clone()
	userID := session.User.ID

	m.lock.Lock()
	if seq == 0 {
		m.seq++
		seq = m.seq
	} else if seq != m.seq {
		m.lock.Unlock()
		return nil
	}
	from := m.state.Status
	m.transitionLocked(StatusAuthenticating, string(event), userID)
	m.state.Loading = true
	snapshot := m.touchLocked()
	m.lock.Unlock()
	m.publish(snapshot)
	m.logger.Debug().Str("from", string(from)).Str("user_id", userID).Uint64("seq", seq).Msg("acquiring profile")

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	profile, err := m.profiles.GetByUserID(cctx, userID)
	cancel()

	reason := m.profileFailure(profile, err)

	m.lock.Lock()
	if seq != m.seq {
		m.lock.Unlock()
		m.logger.Debug().Str("user_id", userID).Uint64("seq", seq).Msg("discarding stale profile result")
		return nil
	}
	if reason != nil {
		m.logger.Warn().Err(reason).Str("user_id", userID).Msg("profile acquisition failed")
		snapshot = m.clearLocked(reason, "profile unavailable")
		m.lock.Unlock()
		m.publish(snapshot)
		return reason
	}
	m.transitionLocked(StatusAuthenticated, string(event), userID)
	m.state.Session = session
	m.state.Identity = session.Identity()
	m.state.Profile = profile.Clone()
	m.state.Loading = false
	m.state.Initialized = true
	m.state.LastError = nil
	snapshot = m.touchLocked()
	m.lock.Unlock()
	m.publish(snapshot)
	return nil
}

// profileFailure turns a profile lookup result into the reason the session
// cannot stand, or nil when the profile is usable.
func (m *Manager) profileFailure(profile *profiles.Profile, err error) error {
	switch {
	case errors.Is(err, profiles.ErrNotFound):
		return ErrProfileNotFound
	case err != nil:
		return errors.Wrap(err, "[Manager.authenticate] fetch profile")
	case profile == nil:
		return ErrProfileNotFound
	case !profile.Active:
		return ErrAccountDisabled
	}
	return nil
}

// clear drops all auth state and invalidates in-flight acquisitions.
func (m *Manager) clear(reason error, cause string) {
	m.lock.Lock()
	snapshot := m.clearLocked(reason, cause)
	m.lock.Unlock()
	m.publish(snapshot)
}

// clearIf clears only if acquisition seq is still current.
func (m *Manager) clearIf(seq uint64, reason error, cause string) {
	m.lock.Lock()
	if seq != m.seq {
		m.lock.Unlock()
		return
	}
	snapshot := m.clearLocked(reason, cause)
	m.lock.Unlock()
	m.publish(snapshot)
}

// clearLocked resets the state to unauthenticated. Caller holds m.lock.
func (m *Manager) clearLocked(reason error, cause string) State {
	m.seq++
	userID := ""
	if m.state.Identity != nil {
		userID = m.state.Identity.ID
	}
	m.transitionLocked(StatusUnauthenticated, cause, userID)
	m.state = State{
		Status:      StatusUnauthenticated,
		Initialized: true,
		Visible:     m.state.Visible,
		LastError:   reason,
		Version:     m.state.Version,
	}
	return m.touchLocked()
}

// transitionLocked moves to status and logs the change. Caller holds m.lock.
func (m *Manager) transitionLocked(to Status, cause, userID string) {
	from := m.state.Status
	if !canTransition(from, to) {
		m.logger.Error().Str("from", string(from)).Str("to", string(to)).Msg("unexpected session transition")
	}
	m.state.Status = to
	if from == to {
		return
	}
	evt := m.logger.Info()
	if to == StatusAuthenticating {
		evt = m.logger.Debug()
	}
	evt.Str("from", string(from)).Str("to", string(to)).Str("reason", cause).Str("user_id", userID).Msg("session transition")
}

// touchLocked bumps the version and returns a snapshot. Caller holds m.lock.
func (m *Manager) touchLocked() State {
	m.state.Version++
	return m.state.clone()
}

// publish delivers a snapshot to every listener that has not seen a newer one.
func (m *Manager) publish(s State) {
	m.listenersLock.Lock()
	defer m.listenersLock.Unlock()

	for _, l := range m.listeners {
		if s.Version <= l.version {
			continue
		}
		l.version = s.Version
		l.fn(s)
	}
}
