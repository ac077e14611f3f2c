package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiryBuffer is how close to exp a token counts as expiring.
	DefaultExpiryBuffer = 60 * time.Second
	// DefaultRefreshThreshold is how close to exp a proactive refresh kicks in.
	DefaultRefreshThreshold = 10 * time.Minute
	// DefaultMaxCheckInterval caps the gap between two monitor checks.
	DefaultMaxCheckInterval = 30 * time.Minute
	// MinCheckInterval is the floor for the gap between two monitor checks.
	MinCheckInterval = time.Minute
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// subjectClaims are searched in order for the user identifier.
var subjectClaims = []string{"sub", "userId", "id"}

var base64URLToStd = strings.NewReplacer("-", "+", "_", "/")

// DecodePayload decodes the claim set of a bearer token without verifying its
// signature. The server stays the authority on validity; the client only uses
// the claims for scheduling. Malformed tokens yield false, never an error.
func DecodePayload(token string) (jwtlib.MapClaims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		log.Warn().Int("segments", len(parts)).Msg("[JWT] Invalid JWT format: token should have 3 parts")
		return nil, false
	}
	if parts[1] == "" {
		log.Warn().Msg("[JWT] Payload part is missing")
		return nil, false
	}

	segment := base64URLToStd.Replace(parts[1])
	if rem := len(segment) % 4; rem != 0 {
		segment += strings.Repeat("=", 4-rem)
	}

	decoded, err := base64.StdEncoding.DecodeString(segment)
	if err != nil {
		log.Warn().Err(err).Msg("[JWT] Error decoding JWT payload")
		return nil, false
	}

	var claims jwtlib.MapClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		log.Warn().Err(err).Msg("[JWT] Error parsing JWT payload")
		return nil, false
	}
	if claims == nil {
		log.Warn().Msg("[JWT] JWT payload is not an object")
		return nil, false
	}
	return claims, true
}

// expiresAt returns the exp claim in seconds since epoch.
func expiresAt(token string) (int64, bool) {
	claims, ok := DecodePayload(token)
	if !ok {
		return 0, false
	}
	return expiryOf(claims)
}

func expiryOf(claims jwtlib.MapClaims) (int64, bool) {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Unix() <= 0 {
		return 0, false
	}
	return exp.Unix(), true
}

// RemainingSeconds returns the whole seconds left until exp, never negative.
// Undecodable tokens and tokens without exp have no time left.
func RemainingSeconds(token string) int64 {
	exp, ok := expiresAt(token)
	if !ok {
		return 0
	}
	return max(0, exp-NowTimeFunc().Unix())
}

// IsExpiredOrExpiring reports whether the token expires within buffer. A token
// whose expiry cannot be read is treated as expired.
func IsExpiredOrExpiring(token string, buffer time.Duration) bool {
	claims, ok := DecodePayload(token)
	if !ok {
		return true
	}
	exp, ok := expiryOf(claims)
	if !ok {
		log.Warn().Msg("[JWT] Token payload is missing expiration claim")
		return true
	}
	untilExpiry := time.Duration(exp-NowTimeFunc().Unix()) * time.Second
	return untilExpiry <= buffer
}

// ShouldRefresh reports whether the remaining lifetime is within threshold.
func ShouldRefresh(token string, threshold time.Duration) bool {
	return time.Duration(RemainingSeconds(token))*time.Second <= threshold
}

// NextCheckInterval returns when the token should be looked at again: a third
// of its remaining lifetime, clamped to [MinCheckInterval, maxInterval]. It
// returns false once the token has expired.
func NextCheckInterval(token string, maxInterval time.Duration) (time.Duration, bool) {
	remaining := RemainingSeconds(token)
	if remaining <= 0 {
		return 0, false
	}
	interval := time.Duration(remaining) * time.Second / 3
	if interval > maxInterval {
		interval = maxInterval
	}
	if interval < MinCheckInterval {
		interval = MinCheckInterval
	}
	return interval, true
}

// SubjectID returns the user identifier from sub, userId or id, whichever is
// found first.
func SubjectID(token string) (string, bool) {
	claims, ok := DecodePayload(token)
	if !ok {
		return "", false
	}
	for _, name := range subjectClaims {
		switch v := claims[name].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64), true
			}
		}
	}
	return "", false
}

// ExpirationTime returns exp as a time.Time.
func ExpirationTime(token string) (time.Time, bool) {
	exp, ok := expiresAt(token)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(exp, 0), true
}
