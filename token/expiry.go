// Package token reads the claims of access tokens issued by the backend.
//
// The client never verifies signatures; that is the backend's job. It only needs the
// expiry instant to decide when to renew a session.
package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// alphabet maps the standard base64 alphabet onto the URL-safe one so payloads encoded
// with either decode the same way.
var alphabet = strings.NewReplacer("+", "-", "/", "_")

// Claims decodes the payload (second segment) of a three segment token.
// The header and signature segments are not inspected.
func Claims(raw string) (jwt.MapClaims, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, false
	}

	payload, err := segmentParser.DecodeSegment(alphabet.Replace(parts[1]))
	if err != nil {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, false
	}
	return claims, true
}

// ExpiryOf returns the instant carried by the token's exp claim. It reports false for
// malformed tokens and for a missing, non-numeric or zero exp.
func ExpiryOf(raw string) (time.Time, bool) {
	claims, ok := Claims(raw)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Unix() == 0 {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether raw has expired at now. A token without a readable expiry
// counts as expired because it cannot be trusted.
func Expired(raw string, now time.Time) bool {
	exp, ok := ExpiryOf(raw)
	if !ok {
		return true
	}
	return !exp.After(now)
}

// Subject returns the sub claim, or "" when absent.
func Subject(raw string) string {
	claims, ok := Claims(raw)
	if !ok {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
