// Package fakeprovider is an in-memory identity.Provider. It hashes passwords
// with bcrypt, issues HS256 access tokens and rotates refresh tokens the way
// a hosted provider does, so it backs both the tests and the CLI's memory mode.
package fakeprovider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-clinic-session/identity"
	apperrors "github.com/jrsteele09/go-clinic-session/internal/errors"
	"github.com/jrsteele09/go-clinic-session/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL        = time.Hour
	defaultMaxFailedAttempts = 5
	refreshTokenLength       = 32
)

// Operation names a provider call for failure injection.
type Operation string

const (
	OpGetSession Operation = "get_session"
	OpSignIn     Operation = "sign_in"
	OpSignOut    Operation = "sign_out"
	OpSignUp     Operation = "sign_up"
	OpRefresh    Operation = "refresh"
	OpDeleteUser Operation = "delete_user"
)

type user struct {
	ID             string
	Email          string
	PasswordHash   string
	Confirmed      bool
	Metadata       map[string]any
	FailedAttempts int
	CreatedAt      time.Time
}

var _ identity.Provider = (*FakeProvider)(nil)

type FakeProvider struct {
	lock          sync.Mutex
	users         map[string]*user  // keyed by email
	refreshTokens map[string]string // refresh token -> user id
	current       *sessions.Session
	failures      map[Operation][]error
	calls         map[Operation]int
	broadcaster   *identity.Broadcaster

	signingKey  []byte
	sessionTTL  time.Duration
	autoConfirm bool
	maxFailed   int
	nowTime     func() time.Time
}

type Option func(*FakeProvider)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(now func() time.Time) Option {
	return func(p *FakeProvider) {
		p.nowTime = now
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(p *FakeProvider) {
		p.sessionTTL = ttl
	}
}

// WithAutoConfirm controls whether sign-up confirms the email immediately and
// starts a session. Defaults to true.
func WithAutoConfirm(autoConfirm bool) Option {
	return func(p *FakeProvider) {
		p.autoConfirm = autoConfirm
	}
}

// WithMaxFailedAttempts sets how many wrong passwords an account tolerates
// before sign-in is rate limited.
func WithMaxFailedAttempts(n int) Option {
	return func(p *FakeProvider) {
		p.maxFailed = n
	}
}

func WithSigningKey(key []byte) Option {
	return func(p *FakeProvider) {
		p.signingKey = key
	}
}

func New(options ...Option) *FakeProvider {
	p := &FakeProvider{
		users:         make(map[string]*user),
		refreshTokens: make(map[string]string),
		failures:      make(map[Operation][]error),
		calls:         make(map[Operation]int),
		broadcaster:   identity.NewBroadcaster(),
		sessionTTL:    defaultSessionTTL,
		autoConfirm:   true,
		maxFailed:     defaultMaxFailedAttempts,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.signingKey == nil {
		p.signingKey = []byte(randomHex(32))
	}
	return p
}

// AddUser registers a confirmed account directly, without emitting events.
func (p *FakeProvider) AddUser(email, password string, metadata map[string]any) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.users[email]; ok {
		return "", identity.NewAPIError(http.StatusUnprocessableEntity, identity.MsgUserExists)
	}
	u := &user{ID: uuid.New().String(), Email: email, PasswordHash: hash, Confirmed: true, Metadata: metadata, CreatedAt: p.nowTime()}
	p.users[email] = u
	return u.ID, nil
}

// ConfirmEmail marks the account as confirmed.
func (p *FakeProvider) ConfirmEmail(email string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	u, ok := p.users[email]
	if !ok {
		return identity.NewAPIError(http.StatusNotFound, identity.MsgUserNotFound)
	}
	u.Confirmed = true
	return nil
}

// FailNext makes the next call to op return err.
func (p *FakeProvider) FailNext(op Operation, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// Calls returns how many times op was invoked.
func (p *FakeProvider) Calls(op Operation) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.calls[op]
}

// HasUser reports whether an account with the id exists.
func (p *FakeProvider) HasUser(userID string) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.userByID(userID) != nil
}

// Emit pushes a notification to subscribers as if it came from the provider.
func (p *FakeProvider) Emit(event identity.Event, session *sessions.Session) {
	p.broadcaster.Emit(event, session)
}

// SetCurrentSession replaces the held session without emitting events.
func (p *FakeProvider) SetCurrentSession(s *sessions.Session) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = s.Clone()
}

func (p *FakeProvider) GetCurrentSession(ctx context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.begin(ctx, OpGetSession); err != nil {
		return nil, err
	}
	return p.current.Clone(), nil
}

func (p *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.SessionStart, error) {
	p.lock.Lock()

	if err := p.begin(ctx, OpSignIn); err != nil {
		p.lock.Unlock()
		return nil, err
	}

	u, ok := p.users[email]
	if ok && u.FailedAttempts >= p.maxFailed {
		p.lock.Unlock()
		return nil, identity.NewAPIError(http.StatusTooManyRequests, identity.MsgRateLimited)
	}
	if !ok || !CheckPasswordHash(password, u.PasswordHash) {
		if ok {
			u.FailedAttempts++
		}
		p.lock.Unlock()
		return nil, identity.NewAPIError(http.StatusBadRequest, identity.MsgInvalidCredentials)
	}
	if !u.Confirmed {
		p.lock.Unlock()
		return nil, identity.NewAPIError(http.StatusBadRequest, identity.MsgEmailNotConfirmed)
	}
	u.FailedAttempts = 0

	s, err := p.issueSession(u)
	if err != nil {
		p.lock.Unlock()
		return nil, err
	}
	p.current = s
	p.lock.Unlock()

	p.broadcaster.Emit(identity.EventSignedIn, s)
	return &identity.SessionStart{User: s.User, Session: s.Clone()}, nil
}

func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	if err := p.begin(ctx, OpSignOut); err != nil {
		p.lock.Unlock()
		return err
	}
	if p.current != nil {
		delete(p.refreshTokens, p.current.RefreshToken)
	}
	p.current = nil
	p.lock.Unlock()

	p.broadcaster.Emit(identity.EventSignedOut, nil)
	return nil
}

func (p *FakeProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.SignUpResult, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.lock.Lock()
	if err := p.begin(ctx, OpSignUp); err != nil {
		p.lock.Unlock()
		return nil, err
	}
	if _, ok := p.users[email]; ok {
		p.lock.Unlock()
		return nil, identity.NewAPIError(http.StatusUnprocessableEntity, identity.MsgUserExists)
	}

	u := &user{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Confirmed:    p.autoConfirm,
		Metadata:     metadata,
		CreatedAt:    p.nowTime(),
	}
	p.users[email] = u
	result := &identity.SignUpResult{User: sessions.Identity{ID: u.ID, Email: u.Email}}

	if !p.autoConfirm {
		p.lock.Unlock()
		return result, nil
	}

	s, err := p.issueSession(u)
	if err != nil {
		p.lock.Unlock()
		return nil, err
	}
	p.current = s
	p.lock.Unlock()

	result.Session = s.Clone()
	p.broadcaster.Emit(identity.EventSignedIn, s)
	return result, nil
}

func (p *FakeProvider) RefreshSession(ctx context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	if err := p.begin(ctx, OpRefresh); err != nil {
		p.lock.Unlock()
		return nil, err
	}
	if p.current == nil {
		p.lock.Unlock()
		return nil, identity.NewAPIError(http.StatusUnauthorized, identity.MsgSessionMissing)
	}

	userID, ok := p.refreshTokens[p.current.RefreshToken]
	u := p.userByID(userID)
	if !ok || u == nil {
		p.current = nil
		p.lock.Unlock()
		return nil, identity.NewAPIError(http.StatusUnauthorized, identity.MsgInvalidRefresh)
	}
	delete(p.refreshTokens, p.current.RefreshToken)

	s, err := p.issueSession(u)
	if err != nil {
		p.lock.Unlock()
		return nil, err
	}
	p.current = s
	p.lock.Unlock()

	p.broadcaster.Emit(identity.EventTokenRefreshed, s)
	return s.Clone(), nil
}

func (p *FakeProvider) OnSessionChange(fn identity.SessionChangeFunc) identity.Subscription {
	return p.broadcaster.Subscribe(fn)
}

func (p *FakeProvider) DeleteUser(ctx context.Context, userID string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.begin(ctx, OpDeleteUser); err != nil {
		return err
	}
	u := p.userByID(userID)
	if u == nil {
		return identity.NewAPIError(http.StatusNotFound, identity.MsgUserNotFound)
	}
	delete(p.users, u.Email)
	for token, id := range p.refreshTokens {
		if id == userID {
			delete(p.refreshTokens, token)
		}
	}
	return nil
}

// ParseAccessToken verifies an access token issued by this provider.
func (p *FakeProvider) ParseAccessToken(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return p.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.nowTime))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	return claims, nil
}

// begin records the call and returns an injected failure or the context error.
// Caller holds p.lock.
func (p *FakeProvider) begin(ctx context.Context, op Operation) error {
	p.calls[op]++
	if errs := p.failures[op]; len(errs) > 0 {
		p.failures[op] = errs[1:]
		return errs[0]
	}
	return ctx.Err()
}

// issueSession mints an access token and a fresh refresh token. Caller holds p.lock.
func (p *FakeProvider) issueSession(u *user) (*sessions.Session, error) {
	now := p.nowTime()
	exp := now.Add(p.sessionTTL)

	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"role":  "authenticated",
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.New().String(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := randomHex(refreshTokenLength)
	p.refreshTokens[refreshToken] = u.ID

	return &sessions.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    exp.Unix(),
		User:         sessions.Identity{ID: u.ID, Email: u.Email},
	}, nil
}

func (p *FakeProvider) userByID(id string) *user {
	for _, u := range p.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("fakeprovider: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
