package config

import "time"

type Config interface {
	EnvConfig
	HTTPConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetVaultKey() string
	GetEnv() string
}

type HTTPConfig interface {
	GetHTTPTimeout() time.Duration
	GetRefreshTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
