package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-clinic-session/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("IDP_MODE", "")

	c := config.New()

	require.Equal(t, "DEV", c.GetEnv())
	require.True(t, c.IsDev())
	require.Equal(t, config.IdentityModeMemory, c.GetIdentityMode())
	require.Equal(t, 15*time.Second, c.GetCallTimeout())
	require.Equal(t, 5*time.Minute, c.GetRefreshThreshold())
	require.Equal(t, time.Minute, c.GetPollInterval())
	require.Equal(t, int32(10), c.GetMaxConns())
	require.Empty(t, c.GetDatabaseURL())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("IDP_MODE", "OIDC")
	t.Setenv("IDP_ISSUER", "https://auth.example.com/")
	t.Setenv("SESSION_CALL_TIMEOUT", "3s")
	t.Setenv("DB_MAX_CONNS", "4")

	c := config.New()

	require.Equal(t, "PROD", c.GetEnv())
	require.False(t, c.IsDev())
	require.Equal(t, config.IdentityModeOIDC, c.GetIdentityMode())
	require.Equal(t, "https://auth.example.com", c.GetIssuerURL())
	require.Equal(t, 3*time.Second, c.GetCallTimeout())
	require.Equal(t, int32(4), c.GetMaxConns())
}

func TestNewFromViper(t *testing.T) {
	v := viper.New()
	v.Set("APP_NAME", "Front Desk")
	v.Set("LOG_LEVEL", "DEBUG")

	c := config.NewFromViper(v)

	require.Equal(t, "Front Desk", c.GetAppName())
	require.Equal(t, "debug", c.GetLogLevel())
	require.Equal(t, "DEV", c.GetEnv())
}
