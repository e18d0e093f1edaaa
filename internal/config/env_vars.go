package config

import (
	"os"
	"time"
)

const (
	appNameVar     = "ACCESS_APP_NAME"
	serverURLVar   = "ACCESS_SERVER_URL"
	apiPrefixVar   = "ACCESS_API_PREFIX"
	folderEnvVar   = "ACCESS_DATA_FOLDER"
	logLevelVar    = "ACCESS_LOG_LEVEL"
	metricsAddrVar = "ACCESS_METRICS_ADDR"
	configFileVar  = "ACCESS_CONFIG_FILE"

	// DefaultServerURL is used until the user saves a different one.
	DefaultServerURL = "https://api.myapp.com"
)

type EnvVars struct {
	file *FileValues
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, e.file.str(func(f *FileValues) string { return f.AppName }, "Access Client"))
}

// GetServerURL returns the backend base URL used when nothing has been saved in the store yet.
func (e EnvVars) GetServerURL() string {
	return GetEnv(serverURLVar, e.file.str(func(f *FileValues) string { return f.ServerURL }, DefaultServerURL))
}

// GetAPIPrefix is inserted between the base URL and every endpoint, e.g. "/v1".
func (e EnvVars) GetAPIPrefix() string {
	return GetEnv(apiPrefixVar, e.file.str(func(f *FileValues) string { return f.APIPrefix }, ""))
}

func (e EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, e.file.str(func(f *FileValues) string { return f.DataFolder }, "./data"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, e.file.str(func(f *FileValues) string { return f.LogLevel }, "info"))
}

// GetMetricsAddr is empty when the metrics endpoint is disabled.
func (e EnvVars) GetMetricsAddr() string {
	return GetEnv(metricsAddrVar, e.file.str(func(f *FileValues) string { return f.MetricsAddr }, ""))
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// ConfigFile returns the YAML file named by ACCESS_CONFIG_FILE, if any.
func ConfigFile() string {
	return GetEnv(configFileVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses envVar with time.ParseDuration, falling back to defaultValue
// when the variable is unset or malformed.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
