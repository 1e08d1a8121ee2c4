package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-clinic-session/host"
)

var _ host.Handler = (*Manager)(nil)

// HandleHostSignal reacts to the host being shown, hidden or focused. On
// visibility or focus an expired session is cleared and one that expires
// within the refresh threshold is refreshed through the provider; the
// provider's notification then drives the state change.
func (m *Manager) HandleHostSignal(ctx context.Context, s host.Signal) {
	switch s {
	case host.SignalVisible:
		m.setVisible(true)
		m.checkExpiry(ctx)
	case host.SignalHidden:
		m.setVisible(false)
	case host.SignalFocus:
		m.checkExpiry(ctx)
	case host.SignalBlur:
	default:
		m.logger.Debug().Str("signal", s.String()).Msg("ignoring host signal")
	}
}

// RunExpiryMonitor checks the session every interval while the host is
// visible, until ctx is done.
func (m *Manager) RunExpiryMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.lock.Lock()
			visible := m.state.Visible
			m.lock.Unlock()
			if visible {
				m.checkExpiry(ctx)
			}
		}
	}
}

func (m *Manager) setVisible(visible bool) {
	m.lock.Lock()
	if m.state.Visible == visible {
		m.lock.Unlock()
		return
	}
	m.state.Visible = visible
	snapshot := m.touchLocked()
	m.lock.Unlock()
	m.publish(snapshot)
}

func (m *Manager) checkExpiry(ctx context.Context) {
	m.lock.Lock()
	session := m.state.Session
	seq := m.seq
	m.lock.Unlock()
	if session == nil {
		return
	}

	remaining := session.ExpiresIn(m.nowTime())
	switch {
	case remaining <= 0:
		m.logger.Info().Str("user_id", session.User.ID).Msg("session expired")
		m.clearIf(seq, ErrSessionExpired, "session expired")
	case remaining < m.refreshThreshold:
		m.logger.Debug().Dur("remaining", remaining).Msg("session near expiry, requesting refresh")
		cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
		if _, err := m.provider.RefreshSession(cctx); err != nil {
			m.logger.Warn().Err(err).Msg("background refresh failed")
		}
	}
}
