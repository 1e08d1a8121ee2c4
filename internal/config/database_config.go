package config

import "github.com/spf13/viper"

const (
	databaseURLVar = "DATABASE_URL"
	maxConnsVar    = "DB_MAX_CONNS"
)

type Database struct {
	v *viper.Viper
}

var _ DatabaseConfig = Database{}

// GetDatabaseURL returns the profile store connection string. Empty means the
// in-memory store is used.
func (d Database) GetDatabaseURL() string {
	return d.v.GetString(databaseURLVar)
}

func (d Database) GetMaxConns() int32 {
	return d.v.GetInt32(maxConnsVar)
}
