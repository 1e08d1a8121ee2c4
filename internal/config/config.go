package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	IdentityConfig
	DatabaseConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type IdentityConfig interface {
	GetIdentityMode() string
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetAdminToken() string
}

type DatabaseConfig interface {
	GetDatabaseURL() string
	GetMaxConns() int32
}

type SessionConfig interface {
	GetCallTimeout() time.Duration
	GetRefreshThreshold() time.Duration
	GetPollInterval() time.Duration
}

type mainConfig struct {
	EnvVars
	Identity
	Database
	Session
}

// New loads configuration from the environment and, when present, a .env file
// in the working directory.
func New() Config {
	return NewFromViper(load(".env"))
}

// NewFromViper builds a Config over an existing viper instance.
func NewFromViper(v *viper.Viper) Config {
	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Identity: Identity{v: v},
		Database: Database{v: v},
		Session:  Session{v: v},
	}
}

func load(file string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// A missing .env file is not an error
	_ = v.ReadInConfig()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(appNameVar, "Clinic Session")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(identityModeVar, IdentityModeMemory)
	v.SetDefault(maxConnsVar, 10)
	v.SetDefault(callTimeoutVar, "15s")
	v.SetDefault(refreshThresholdVar, "5m")
	v.SetDefault(pollIntervalVar, "1m")
}
