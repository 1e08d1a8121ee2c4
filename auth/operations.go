package auth

import (
	"context"

	"github.com/jrsteele09/go-clinic-session/identity"
	"github.com/jrsteele09/go-clinic-session/internal/utils"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/pkg/errors"
)

// SignIn authenticates with email and password. The returned session is for
// display only: the manager adopts it when the provider's SIGNED_IN
// notification arrives. Failures are *SignInError.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*identity.SessionStart, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, &SignInError{Category: CategoryInvalidCredentials, Message: msgInvalidCredentials, Err: ErrMissingCredentials}
	}

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	start, err := m.provider.SignInWithPassword(cctx, email, password)
	if err != nil {
		signInErr := classifySignInError(err)
		m.logger.Warn().Err(err).Str("email", email).Str("category", string(signInErr.Category)).Msg("sign in failed")
		return nil, signInErr
	}
	m.logger.Info().Str("user_id", start.User.ID).Msg("signed in")
	return start, nil
}

// SignOut ends the provider session and clears local state before returning.
// On provider failure local state is left untouched.
func (m *Manager) SignOut(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	if err := m.provider.SignOut(cctx); err != nil {
		m.logger.Warn().Err(err).Msg("sign out failed")
		return errors.Wrap(err, "[Manager.SignOut] provider sign out")
	}
	m.clear(nil, "signed out")
	return nil
}

// SignUp creates a provider account and its profile. When the provider opens
// a session for the new account it is adopted only after the profile is
// stored. If the profile cannot be stored the account is deleted again; when
// that also fails the returned error matches ErrOrphanedAccount and carries
// the account id.
func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) (*profiles.Profile, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := m.validator.ValidateSignUp(req); err != nil {
		return nil, &SignUpError{Stage: StageValidation, Err: err}
	}

	m.beginSignUp(req.Email)
	defer m.endSignUp(req.Email)

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	result, err := m.provider.SignUp(cctx, req.Email, req.Password, map[string]any{
		"full_name": req.FullName,
		"role":      req.Role.String(),
	})
	cancel()
	if err != nil {
		m.logger.Warn().Err(err).Str("email", req.Email).Msg("sign up failed")
		return nil, &SignUpError{Stage: StageAccount, Err: err}
	}
	userID := result.User.ID

	profile := &profiles.Profile{
		UserID:   userID,
		FullName: req.FullName,
		Role:     req.Role,
		Active:   true,
		Email:    req.Email,
		Phone:    utils.NilIfEmpty(req.Phone),
	}
	cctx, cancel = context.WithTimeout(ctx, m.callTimeout)
	insertErr := m.profiles.Insert(cctx, profile)
	cancel()
	if insertErr == nil {
		m.logger.Info().Str("user_id", userID).Str("role", req.Role.String()).Msg("signed up")
		if result.Session != nil {
			// The provider's SIGNED_IN for this account was deferred above.
			_ = m.authenticate(ctx, identity.EventSignedIn, result.Session, 0)
		}
		return profile, nil
	}

	m.logger.Warn().Err(insertErr).Str("user_id", userID).Msg("profile insert failed, removing account")
	if result.Session != nil {
		m.dropSignUpSession(ctx)
	}

	cctx, cancel = context.WithTimeout(ctx, m.callTimeout)
	rollbackErr := m.provider.DeleteUser(cctx, userID)
	cancel()
	if rollbackErr != nil {
		m.logger.Error().Err(rollbackErr).Str("user_id", userID).Msg("orphaned account: rollback failed")
		return nil, &SignUpError{Stage: StageRollback, UserID: userID, Err: insertErr, RollbackErr: rollbackErr}
	}
	return nil, &SignUpError{Stage: StageProfile, UserID: userID, Err: insertErr}
}

// dropSignUpSession signs out a session the provider opened during a failed
// sign-up so nothing of the half-created account stays authenticated.
func (m *Manager) dropSignUpSession(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	if err := m.provider.SignOut(cctx); err != nil {
		m.logger.Warn().Err(err).Msg("sign out after failed sign up")
	}
	m.clear(nil, "sign up failed")
}

// RefreshProfile re-reads the current identity's profile, leaving the
// session alone. A missing or deactivated profile clears all auth state.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.lock.Lock()
	if m.state.Identity == nil {
		m.lock.Unlock()
		return ErrNotAuthenticated
	}
	seq := m.seq
	userID := m.state.Identity.ID
	m.lock.Unlock()

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	profile, err := m.profiles.GetByUserID(cctx, userID)
	cancel()

	reason := m.profileFailure(profile, err)

	m.lock.Lock()
	if seq != m.seq {
		m.lock.Unlock()
		return nil
	}
	if reason != nil && !errors.Is(reason, ErrProfileNotFound) && !errors.Is(reason, ErrAccountDisabled) {
		m.lock.Unlock()
		m.logger.Warn().Err(reason).Str("user_id", userID).Msg("profile refresh failed")
		return reason
	}
	var snapshot State
	if reason != nil {
		snapshot = m.clearLocked(reason, "profile revoked")
	} else {
		m.state.Profile = profile.Clone()
		snapshot = m.touchLocked()
	}
	m.lock.Unlock()
	m.publish(snapshot)
	return reason
}

// IsSessionValid reports whether a session is held and not yet expired.
func (m *Manager) IsSessionValid() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state.Session.IsValid(m.nowTime())
}

// RefreshSession asks the provider for a fresh session and re-acquires the
// profile for it. Any failure clears all auth state.
func (m *Manager) RefreshSession(ctx context.Context) error {
	m.lock.Lock()
	m.state.Loading = true
	snapshot := m.touchLocked()
	m.lock.Unlock()
	m.publish(snapshot)

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	session, err := m.provider.RefreshSession(cctx)
	cancel()
	if err == nil && session == nil {
		err = identity.NewAPIError(0, identity.MsgSessionMissing)
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("session refresh failed")
		wrapped := errors.Wrap(err, "[Manager.RefreshSession] refresh")
		m.clear(wrapped, "refresh failed")
		return wrapped
	}
	return m.authenticate(ctx, identity.EventTokenRefreshed, session, 0)
}
