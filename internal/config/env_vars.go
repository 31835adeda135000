package config

import (
	"os"
	"strconv"
	"time"
)

const (
	appNameVar        = "APP_NAME"
	baseURLVar        = "API_BASE_URL"
	folderEnvVar      = "DATA_FOLDER"
	vaultKeyVar       = "VAULT_KEY"
	httpTimeoutVar    = "HTTP_TIMEOUT_SECONDS"
	refreshTimeoutVar = "REFRESH_TIMEOUT_SECONDS"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}
var _ HTTPConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Benkinet")
}

// GetBaseURL returns the backend API root (e.g. "https://api.benkinet.example").
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// GetVaultKey returns the key material for the credential vault. On a real
// device this comes from the platform keychain, not an env var.
func (EnvVars) GetVaultKey() string {
	return GetEnv(vaultKeyVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetHTTPTimeout() time.Duration {
	return secondsEnv(httpTimeoutVar, 30*time.Second)
}

func (EnvVars) GetRefreshTimeout() time.Duration {
	return secondsEnv(refreshTimeoutVar, 15*time.Second)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func secondsEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
