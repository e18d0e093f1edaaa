// Package tokenfake mints signed access tokens for tests.
package tokenfake

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "tokenfake-secret"

// Sign creates an HS256 token carrying claims.
func Sign(claims jwt.MapClaims) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}

// ExpiringAt returns a token for subject whose exp is at.
func ExpiringAt(subject string, at time.Time) string {
	return Sign(jwt.MapClaims{
		"sub": subject,
		"iat": at.Add(-time.Hour).Unix(),
		"exp": at.Unix(),
	})
}

// ExpiringIn returns a token that expires d from now.
func ExpiringIn(subject string, d time.Duration) string {
	return ExpiringAt(subject, time.Now().Add(d))
}

// WithoutExpiry returns a well formed token that has no exp claim.
func WithoutExpiry(subject string) string {
	return Sign(jwt.MapClaims{"sub": subject})
}

// Unsigned builds header.payload.sig by hand from an arbitrary payload value,
// encoding the payload with enc. Used to exercise decoding edge cases.
func Unsigned(payload any, enc *base64.Encoding) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return header + "." + enc.EncodeToString(b) + ".sig"
}
