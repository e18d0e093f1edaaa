package config

import "time"

const pollIntervalVar = "ACCESS_POLL_INTERVAL"

type Poll struct {
	file *FileValues
}

var _ PollConfig = Poll{}

// GetPollInterval is how often the server list is re-synced; zero disables polling.
func (p Poll) GetPollInterval() time.Duration {
	return GetEnvDuration(pollIntervalVar, p.file.duration(func(f *FileValues) string { return f.PollInterval }, time.Minute))
}
