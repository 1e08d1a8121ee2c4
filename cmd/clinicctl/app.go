package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-clinic-session/auth"
	"github.com/jrsteele09/go-clinic-session/identity"
	"github.com/jrsteele09/go-clinic-session/identity/fakeprovider"
	"github.com/jrsteele09/go-clinic-session/identity/oidcprovider"
	"github.com/jrsteele09/go-clinic-session/internal/config"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/jrsteele09/go-clinic-session/profiles/pgrepo"
	fakeprofilerepo "github.com/jrsteele09/go-clinic-session/profiles/repofake"
	"github.com/rs/zerolog"
)

// app is everything a command needs, built from configuration.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	provider identity.Provider
	profiles profiles.Repo
	manager  *auth.Manager
	pool     *pgxpool.Pool
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.provider = provider

	if url := cfg.GetDatabaseURL(); url != "" {
		pool, err := pgrepo.Connect(ctx, url, cfg.GetMaxConns())
		if err != nil {
			return nil, fmt.Errorf("connect profile store: %w", err)
		}
		a.pool = pool
		a.profiles = pgrepo.New(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, profiles are kept in memory")
		a.profiles = fakeprofilerepo.NewFakeProfileRepo()
	}

	a.manager, err = auth.NewManager(a.provider, a.profiles,
		auth.WithLogger(logger),
		auth.WithCallTimeout(cfg.GetCallTimeout()),
		auth.WithRefreshThreshold(cfg.GetRefreshThreshold()),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func newProvider(ctx context.Context, cfg config.Config, logger zerolog.Logger) (identity.Provider, error) {
	switch cfg.GetIdentityMode() {
	case config.IdentityModeOIDC:
		p, err := oidcprovider.New(ctx, oidcprovider.Config{
			IssuerURL:    cfg.GetIssuerURL(),
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			AdminToken:   cfg.GetAdminToken(),
		}, oidcprovider.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("identity provider: %w", err)
		}
		return p, nil
	case config.IdentityModeMemory:
		return fakeprovider.New(), nil
	}
	return nil, fmt.Errorf("unknown identity mode %q", cfg.GetIdentityMode())
}

// seedMemoryAccount registers the given credentials in memory mode so a
// fresh process has someone to sign in as.
func (a *app) seedMemoryAccount(ctx context.Context, email, password string, role profiles.Role) error {
	fake, ok := a.provider.(*fakeprovider.FakeProvider)
	if !ok {
		return nil
	}
	email = auth.NormalizeEmail(email)
	userID, err := fake.AddUser(email, password, map[string]any{"role": role.String()})
	if err != nil {
		return fmt.Errorf("seed account: %w", err)
	}
	return a.profiles.Insert(ctx, &profiles.Profile{
		UserID:   userID,
		FullName: email,
		Role:     role,
		Active:   true,
	})
}

// signIn starts the manager, signs in and waits until the provider
// notification has been turned into an authenticated state or a failure.
func (a *app) signIn(ctx context.Context, email, password string) (auth.State, error) {
	if err := a.manager.Start(ctx); err != nil {
		return auth.State{}, err
	}

	since := a.manager.State().Version
	resolved := make(chan auth.State, 1)
	unsubscribe := a.manager.Subscribe(func(s auth.State) {
		if s.Version <= since {
			return
		}
		if s.Status == auth.StatusAuthenticated || (s.Status == auth.StatusUnauthenticated && s.LastError != nil) {
			select {
			case resolved <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if _, err := a.manager.SignIn(ctx, email, password); err != nil {
		return auth.State{}, err
	}

	timeout := time.NewTimer(a.cfg.GetCallTimeout())
	defer timeout.Stop()
	select {
	case s := <-resolved:
		if s.Status != auth.StatusAuthenticated {
			return s, s.LastError
		}
		return s, nil
	case <-timeout.C:
		return a.manager.State(), fmt.Errorf("timed out waiting for session")
	case <-ctx.Done():
		return a.manager.State(), ctx.Err()
	}
}

func (a *app) close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
