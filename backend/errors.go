package backend

import (
	"errors"
	"fmt"
)

// Code is the fixed failure taxonomy callers branch on.
type Code int

const (
	CodeNone Code = iota
	CodeAuth
	CodeForbidden
	CodeNotFound
	CodeDuplicate
	CodeServer
	CodeOffline
	CodeNetwork
	CodeUnknown
)

var codeNames = map[Code]string{
	CodeNone:      "NONE",
	CodeAuth:      "AUTH",
	CodeForbidden: "FORBIDDEN",
	CodeNotFound:  "NOT_FOUND",
	CodeDuplicate: "DUPLICATE",
	CodeServer:    "SERVER",
	CodeOffline:   "OFFLINE",
	CodeNetwork:   "NETWORK",
	CodeUnknown:   "UNKNOWN",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a failure tagged with its taxonomy code. Status is the HTTP status that
// produced it, when there was one.
type Error struct {
	Code   Code
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := "ERR_" + e.Code.String()
	if e.Code == CodeUnknown {
		msg = fmt.Sprintf("ERR_UNKNOWN:%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code. A target with a zero Status matches any status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Status == 0 || t.Status == e.Status)
}

// Sentinels for errors.Is.
var (
	ErrAuth      = &Error{Code: CodeAuth}
	ErrForbidden = &Error{Code: CodeForbidden}
	ErrNotFound  = &Error{Code: CodeNotFound}
	ErrDuplicate = &Error{Code: CodeDuplicate}
	ErrServer    = &Error{Code: CodeServer}
	ErrOffline   = &Error{Code: CodeOffline}
	ErrNetwork   = &Error{Code: CodeNetwork}
	ErrUnknown   = &Error{Code: CodeUnknown}
)

// ErrTimedOut is returned by CheckHealth when the probe deadline passes.
var ErrTimedOut = errors.New("connection timed out")

// FromStatus maps a non-2xx HTTP status onto the taxonomy.
func FromStatus(status int) *Error {
	switch status {
	case 401:
		return &Error{Code: CodeAuth, Status: status}
	case 403:
		return &Error{Code: CodeForbidden, Status: status}
	case 404:
		return &Error{Code: CodeNotFound, Status: status}
	case 500:
		return &Error{Code: CodeServer, Status: status}
	case 502, 503:
		return &Error{Code: CodeOffline, Status: status}
	default:
		return &Error{Code: CodeUnknown, Status: status}
	}
}

// Normalize returns err as a tagged *Error. Anything not already tagged is a NETWORK failure.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Code: CodeNetwork, Err: err}
}

// CodeOf returns the taxonomy code carried by err; CodeNone for nil and CodeNetwork
// for untagged errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return CodeNetwork
}

// LoginFailedMessage is shown when the backend rejects the user's credentials.
const LoginFailedMessage = "Incorrect username or password."

var messages = map[Code]string{
	CodeAuth:      "Please Log In",
	CodeForbidden: "Access Denied",
	CodeNotFound:  "Server Deleted",
	CodeDuplicate: "Server Already Added",
	CodeServer:    "Server Error",
	CodeOffline:   "Backend Offline",
	CodeNetwork:   "Backend Offline",
	CodeUnknown:   "Request Failed",
}

// Message is the user-facing text for err. It never includes backend-provided text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return messages[CodeOf(err)]
}

// LoginMessage is Message with the credentials-specific wording for AUTH.
func LoginMessage(err error) string {
	if CodeOf(err) == CodeAuth {
		return LoginFailedMessage
	}
	return Message(err)
}
