package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileValues is the optional YAML overlay. Environment variables win over the file,
// the file wins over built-in defaults.
type FileValues struct {
	AppName        string `yaml:"app_name"`
	ServerURL      string `yaml:"server_url"`
	APIPrefix      string `yaml:"api_prefix"`
	DataFolder     string `yaml:"data_folder"`
	LogLevel       string `yaml:"log_level"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LeadTime       string `yaml:"lead_time"`
	RequestTimeout string `yaml:"request_timeout"`
	PollInterval   string `yaml:"poll_interval"`
	Store          struct {
		Kind          string `yaml:"kind"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPrefix   string `yaml:"redis_prefix"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		PostgresTable string `yaml:"postgres_table"`
	} `yaml:"store"`
}

// Load reads a YAML config file and layers it under the environment.
// An empty path is the same as New().
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return New(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config.Load] read %s: %w", path, err)
	}
	var fv FileValues
	if err := yaml.Unmarshal(b, &fv); err != nil {
		return nil, fmt.Errorf("[config.Load] parse %s: %w", path, err)
	}
	if err := fv.validate(); err != nil {
		return nil, fmt.Errorf("[config.Load] %s: %w", path, err)
	}
	return newConfig(&fv), nil
}

func (f *FileValues) validate() error {
	for name, v := range map[string]string{
		"lead_time":       f.LeadTime,
		"request_timeout": f.RequestTimeout,
		"poll_interval":   f.PollInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s must be a duration: %w", name, err)
		}
	}
	if f.ServerURL != "" && !strings.HasPrefix(f.ServerURL, "http") {
		return fmt.Errorf("server_url must start with http:// or https://")
	}
	return nil
}

func (f *FileValues) str(get func(*FileValues) string, defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	if v := get(f); v != "" {
		return v
	}
	return defaultValue
}

func (f *FileValues) duration(get func(*FileValues) string, defaultValue time.Duration) time.Duration {
	if f == nil {
		return defaultValue
	}
	d, err := time.ParseDuration(get(f))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
