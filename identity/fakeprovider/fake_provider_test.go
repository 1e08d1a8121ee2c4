package fakeprovider_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-clinic-session/identity"
	"github.com/jrsteele09/go-clinic-session/identity/fakeprovider"
	apperrors "github.com/jrsteele09/go-clinic-session/internal/errors"
	"github.com/jrsteele09/go-clinic-session/sessions"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "doctor@clinic.test"
	testPassword = "Consulta2024"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestProvider(t *testing.T, options ...fakeprovider.Option) *fakeprovider.FakeProvider {
	t.Helper()
	options = append([]fakeprovider.Option{fakeprovider.WithNowTime(func() time.Time { return testNow })}, options...)
	return fakeprovider.New(options...)
}

type eventLog struct {
	lock   sync.Mutex
	events []identity.Event
}

func (l *eventLog) record(_ context.Context, e identity.Event, _ *sessions.Session) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) get() []identity.Event {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]identity.Event(nil), l.events...)
}

func TestSignInIssuesVerifiableSession(t *testing.T) {
	p := newTestProvider(t)
	userID, err := p.AddUser(testEmail, testPassword, nil)
	require.NoError(t, err)

	log := &eventLog{}
	sub := p.OnSessionChange(log.record)
	defer sub.Unsubscribe()

	start, err := p.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, userID, start.User.ID)
	require.Equal(t, testNow.Add(time.Hour).Unix(), start.Session.ExpiresAt)
	require.NotEmpty(t, start.Session.RefreshToken)

	claims, err := p.ParseAccessToken(start.Session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userID, claims.Subject)

	_, err = newTestProvider(t).ParseAccessToken(start.Session.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	current, err := p.GetCurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, start.Session.AccessToken, current.AccessToken)

	require.Eventually(t, func() bool {
		return len(log.get()) == 1 && log.get()[0] == identity.EventSignedIn
	}, time.Second, 5*time.Millisecond)
}

func TestSignInFailures(t *testing.T) {
	p := newTestProvider(t, fakeprovider.WithMaxFailedAttempts(2), fakeprovider.WithAutoConfirm(false))
	_, err := p.SignUp(context.Background(), testEmail, testPassword, nil)
	require.NoError(t, err)

	_, err = p.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.Equal(t, identity.MsgEmailNotConfirmed, identity.MessageOf(err))

	_, err = p.SignInWithPassword(context.Background(), "nobody@clinic.test", testPassword)
	require.Equal(t, identity.MsgInvalidCredentials, identity.MessageOf(err))

	for i := 0; i < 2; i++ {
		_, err = p.SignInWithPassword(context.Background(), testEmail, "wrong")
		require.Equal(t, identity.MsgInvalidCredentials, identity.MessageOf(err))
	}
	_, err = p.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.Equal(t, identity.MsgRateLimited, identity.MessageOf(err))
}

func TestSignUpAutoConfirmStartsSession(t *testing.T) {
	p := newTestProvider(t)

	res, err := p.SignUp(context.Background(), testEmail, testPassword, map[string]any{"full_name": "Ana"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.True(t, p.HasUser(res.User.ID))

	_, err = p.SignUp(context.Background(), testEmail, testPassword, nil)
	require.Equal(t, identity.MsgUserExists, identity.MessageOf(err))
}

func TestRefreshRotatesTokens(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.AddUser(testEmail, testPassword, nil)
	require.NoError(t, err)
	start, err := p.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	refreshed, err := p.RefreshSession(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, start.Session.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, start.User.ID, refreshed.User.ID)

	// the old refresh token no longer works once rotated
	p.SetCurrentSession(start.Session)
	_, err = p.RefreshSession(context.Background())
	require.Equal(t, identity.MsgInvalidRefresh, identity.MessageOf(err))
}

func TestRefreshWithoutSession(t *testing.T) {
	_, err := newTestProvider(t).RefreshSession(context.Background())
	require.Equal(t, identity.MsgSessionMissing, identity.MessageOf(err))
}

func TestSignOutClearsSession(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.AddUser(testEmail, testPassword, nil)
	require.NoError(t, err)
	_, err = p.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, p.SignOut(context.Background()))
	current, err := p.GetCurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestDeleteUser(t *testing.T) {
	p := newTestProvider(t)
	id, err := p.AddUser(testEmail, testPassword, nil)
	require.NoError(t, err)

	require.NoError(t, p.DeleteUser(context.Background(), id))
	require.False(t, p.HasUser(id))
	require.Equal(t, identity.MsgUserNotFound, identity.MessageOf(p.DeleteUser(context.Background(), id)))
}

func TestFailNext(t *testing.T) {
	p := newTestProvider(t)
	boom := errors.New("network down")
	p.FailNext(fakeprovider.OpGetSession, boom)

	_, err := p.GetCurrentSession(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = p.GetCurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, p.Calls(fakeprovider.OpGetSession))
}
