package main

import "github.com/jrsteele09/go-access-client/servers"

const (
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Gray   = "\033[90m" // Bright black, often appears as gray

	ResetColor = "\033[0m"
)

var statusColors = map[servers.Status]string{
	servers.StatusAccessGranted: Green,
	servers.StatusIdle:          Gray,
	servers.StatusOffline:       Yellow,
}

func colourStatus(status servers.Status) string {
	colour, ok := statusColors[status]
	if !ok {
		colour = Gray
	}
	return colour + string(status) + ResetColor
}
