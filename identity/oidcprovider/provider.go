// Package oidcprovider implements identity.Provider against an OpenID Connect
// issuer: password and refresh grants via golang.org/x/oauth2, ID token
// verification via go-oidc, plus GoTrue style sign-up and admin endpoints.
package oidcprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-clinic-session/identity"
	apperrors "github.com/jrsteele09/go-clinic-session/internal/errors"
	"github.com/jrsteele09/go-clinic-session/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ identity.Provider = (*Provider)(nil)

type Provider struct {
	config        Config
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	broadcaster   *identity.Broadcaster
	logger        zerolog.Logger
	nowTime       func() time.Time
	lock          sync.Mutex
	current       *sessions.Session
}

type Option func(*Provider)

// WithVerifier replaces the ID token verifier built from discovery.
func WithVerifier(v *oidc.IDTokenVerifier) Option {
	return func(p *Provider) {
		p.verifier = v
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(now func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = now
	}
}

// New discovers the issuer and returns a provider with no session held.
func New(ctx context.Context, cfg Config, options ...Option) (*Provider, error) {
	cfg = cfg.withDefaults()
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("[oidcprovider.New] issuer URL and client ID are required")
	}

	ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	discovered, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[oidcprovider.New] failed to create OIDC provider: %w", err)
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := discovered.Claims(&extra); err != nil {
		return nil, fmt.Errorf("[oidcprovider.New] failed to read discovery claims: %w", err)
	}

	p := &Provider{
		config: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     discovered.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier:      discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		revocationURL: extra.RevocationEndpoint,
		broadcaster:   identity.NewBroadcaster(),
		logger:        zerolog.Nop(),
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// GetCurrentSession returns the held session, refreshing it first when it has
// expired and a refresh token is available.
func (p *Provider) GetCurrentSession(ctx context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	current := p.current.Clone()
	p.lock.Unlock()

	if current == nil || current.IsValid(p.nowTime()) {
		return current, nil
	}
	if current.RefreshToken == "" {
		return nil, nil
	}
	return p.RefreshSession(ctx)
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.SessionStart, error) {
	tok, err := p.oauth2Config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, toAPIError(err)
	}

	s, err := p.sessionFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	p.setCurrent(s)

	p.broadcaster.Emit(identity.EventSignedIn, s)
	return &identity.SessionStart{User: s.User, Session: s.Clone()}, nil
}

// SignOut revokes the refresh token when the issuer advertises a revocation
// endpoint. The local session is dropped and SIGNED_OUT emitted even if
// revocation fails; that failure is only logged since the sign-out itself
// has already happened.
func (p *Provider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	current := p.current
	p.current = nil
	p.lock.Unlock()

	if current != nil && current.RefreshToken != "" && p.revocationURL != "" {
		if err := p.revoke(ctx, current.RefreshToken); err != nil {
			p.logger.Warn().Err(err).Str("user_id", current.User.ID).Msg("refresh token revocation failed")
		}
	}

	p.broadcaster.Emit(identity.EventSignedOut, nil)
	return nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.SignUpResult, error) {
	body := map[string]any{"email": email, "password": password, "data": metadata}

	var resp signUpResponse
	if err := p.doJSON(ctx, http.MethodPost, p.config.SignUpURL, "", body, &resp); err != nil {
		return nil, err
	}

	result := &identity.SignUpResult{User: resp.identity()}
	if result.User.ID == "" {
		return nil, errors.New("[oidcprovider.SignUp] response did not include a user id")
	}
	if resp.AccessToken == "" {
		return result, nil
	}

	s := resp.session(p.nowTime())
	p.setCurrent(s)
	result.Session = s.Clone()
	p.broadcaster.Emit(identity.EventSignedIn, s)
	return result, nil
}

// RefreshSession exchanges the held refresh token. A rejected refresh token
// drops the local session and emits EventSignedOut.
func (p *Provider) RefreshSession(ctx context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	current := p.current.Clone()
	p.lock.Unlock()

	if current == nil || current.RefreshToken == "" {
		return nil, identity.NewAPIError(http.StatusUnauthorized, identity.MsgSessionMissing)
	}

	src := p.oauth2Config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		apiErr := toAPIError(err)
		var ae *identity.APIError
		if errors.As(apiErr, &ae) && ae.Status >= 400 && ae.Status < 500 {
			p.setCurrent(nil)
			p.broadcaster.Emit(identity.EventSignedOut, nil)
		}
		return nil, apiErr
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}

	s, err := p.sessionFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	p.setCurrent(s)

	p.broadcaster.Emit(identity.EventTokenRefreshed, s)
	return s.Clone(), nil
}

func (p *Provider) OnSessionChange(fn identity.SessionChangeFunc) identity.Subscription {
	return p.broadcaster.Subscribe(fn)
}

func (p *Provider) DeleteUser(ctx context.Context, userID string) error {
	if p.config.AdminToken == "" {
		return errors.New("[oidcprovider.DeleteUser] admin token is not configured")
	}
	target := p.config.AdminUsersURL + "/" + url.PathEscape(userID)
	return p.doJSON(ctx, http.MethodDelete, target, p.config.AdminToken, nil, nil)
}

func (p *Provider) setCurrent(s *sessions.Session) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = s.Clone()
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.config.HTTPClient)
}

// sessionFromToken converts a token response. The principal comes from the
// verified ID token when present, otherwise from the access token claims.
func (p *Provider) sessionFromToken(ctx context.Context, tok *oauth2.Token) (*sessions.Session, error) {
	s := &sessions.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    strings.ToLower(tok.Type()),
	}
	if !tok.Expiry.IsZero() {
		s.ExpiresAt = tok.Expiry.Unix()
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken != "" {
		idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.config.HTTPClient), rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("[oidcprovider] ID token verification failed: %w: %w", apperrors.ErrInvalidToken, err)
		}
		var claims struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("[oidcprovider] failed to extract claims: %w", err)
		}
		s.User = sessions.Identity{ID: claims.Sub, Email: claims.Email}
	}

	// Access token claims fill whatever the ID token did not provide
	if s.User.ID == "" || s.ExpiresAt == 0 {
		claims, err := accessTokenClaims(tok.AccessToken)
		if err != nil {
			return nil, err
		}
		if s.User.ID == "" {
			s.User = sessions.Identity{ID: claims.sub, Email: claims.email}
		}
		if s.ExpiresAt == 0 {
			s.ExpiresAt = claims.exp
		}
	}
	if s.User.ID == "" {
		return nil, errors.New("[oidcprovider] token response did not identify a user")
	}
	return s, nil
}

type tokenClaims struct {
	sub   string
	email string
	exp   int64
}

// accessTokenClaims reads a JWT access token without verifying it; the token
// came straight from the issuer's token endpoint over TLS.
func accessTokenClaims(raw string) (tokenClaims, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return tokenClaims{}, fmt.Errorf("[oidcprovider] failed to parse access token: %w: %w", apperrors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return tokenClaims{}, errors.New("[oidcprovider] error extracting claims")
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	exp, _ := claims["exp"].(float64)
	return tokenClaims{sub: sub, email: email, exp: int64(exp)}, nil
}

func (p *Provider) revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("[oidcprovider.SignOut] revoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}
	return nil
}

func (p *Provider) doJSON(ctx context.Context, method, target, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", target, err)
	}
	return nil
}
