// Package servers keeps the user's list of saved servers and reconciles each
// server's access status against the backend.
package servers

import (
	"strconv"
	"strings"
)

// storeKey is where the saved server list is persisted.
const storeKey = "saved_servers"

type Status string

const (
	StatusIdle          Status = "idle"
	StatusAccessGranted Status = "access-granted"
	StatusOffline       Status = "offline"
)

// Record is one saved server. Status and TimeRemaining are presentation state and
// are reset on load.
type Record struct {
	ID            string  `json:"id"`
	Status        Status  `json:"status"`
	TimeRemaining *string `json:"timeRemaining,omitempty"`
}

// FormatRemaining renders a minutes count as "1h 5m" or "45m". Absent or
// non-numeric input renders as "".
func FormatRemaining(minutes *string) string {
	if minutes == nil {
		return ""
	}
	n, err := strconv.Atoi(strings.TrimSpace(*minutes))
	if err != nil || n < 0 {
		return ""
	}
	if n >= 60 {
		return strconv.Itoa(n/60) + "h " + strconv.Itoa(n%60) + "m"
	}
	return strconv.Itoa(n) + "m"
}
