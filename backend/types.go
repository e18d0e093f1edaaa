package backend

// Endpoints, relative to the base URL and API prefix.
const (
	pathLogin   = "/login"
	pathRefresh = "/token/refresh"
	pathLogout  = "/logout"
	pathAccess  = "/access"
	pathHealth  = "/health"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Username     string `json:"username"`
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair is the body of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// AccessStatus is the backend's view of the caller's access to one server.
type AccessStatus struct {
	Server        string   `json:"server"`
	IP            string   `json:"ip"`
	IsActive      bool     `json:"is_active"`
	Expiration    *float64 `json:"expiration"` // unix seconds, may be fractional
	TimeRemaining *string  `json:"time_remaining"`
}

type AccessRequest struct {
	ServerID string `json:"server_id"`
}
