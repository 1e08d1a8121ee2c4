package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	callTimeoutVar      = "SESSION_CALL_TIMEOUT"
	refreshThresholdVar = "SESSION_REFRESH_THRESHOLD"
	pollIntervalVar     = "SESSION_POLL_INTERVAL"
)

type Session struct {
	v *viper.Viper
}

var _ SessionConfig = Session{}

// GetCallTimeout bounds every identity provider and profile store call.
func (s Session) GetCallTimeout() time.Duration {
	return s.v.GetDuration(callTimeoutVar)
}

// GetRefreshThreshold is how close to expiry a session must be before a
// visibility or focus signal asks the provider for a refresh.
func (s Session) GetRefreshThreshold() time.Duration {
	return s.v.GetDuration(refreshThresholdVar)
}

func (s Session) GetPollInterval() time.Duration {
	return s.v.GetDuration(pollIntervalVar)
}
