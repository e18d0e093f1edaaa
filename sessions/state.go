package sessions

type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
	StatusRefreshing      Status = "refreshing"
)

// ExpiredMessage is shown after a background refresh fails.
const ExpiredMessage = "Session expired. Please log in again."

// State is what the presentation layer renders.
type State struct {
	Status     Status
	Identifier string
	Message    string
}

func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}
