package config

import "time"

const (
	leadTimeVar       = "ACCESS_LEAD_TIME"
	requestTimeoutVar = "ACCESS_REQUEST_TIMEOUT"
)

type Session struct {
	file *FileValues
}

var _ SessionConfig = Session{}

// GetRefreshLeadTime is subtracted from the access token expiry when scheduling a refresh.
func (s Session) GetRefreshLeadTime() time.Duration {
	return GetEnvDuration(leadTimeVar, s.file.duration(func(f *FileValues) string { return f.LeadTime }, 30*time.Second))
}

// GetHealthCheckTimeout bounds the /health probe made when the server URL changes.
func (Session) GetHealthCheckTimeout() time.Duration {
	return 5 * time.Second
}

// GetRequestTimeout bounds every backend call at the HTTP client level.
func (s Session) GetRequestTimeout() time.Duration {
	return GetEnvDuration(requestTimeoutVar, s.file.duration(func(f *FileValues) string { return f.RequestTimeout }, 30*time.Second))
}
