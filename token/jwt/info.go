package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Info summarises everything the client derives from a token.
type Info struct {
	Payload          jwtlib.MapClaims `json:"payload"`
	UserID           string           `json:"userId,omitempty"`
	ExpirationDate   *time.Time       `json:"expirationDate,omitempty"`
	IssuedDate       *time.Time       `json:"issuedDate,omitempty"`
	RemainingSeconds int64            `json:"remainingSeconds"`
	RemainingMinutes int64            `json:"remainingMinutes"`
	IsExpired        bool             `json:"isExpired"`
	IsExpiring       bool             `json:"isExpiring"`
	ShouldRefresh    bool             `json:"shouldRefresh"`
}

// Inspect decodes token and computes its Info using the default buffer and
// refresh threshold.
func Inspect(token string) (*Info, bool) {
	claims, ok := DecodePayload(token)
	if !ok {
		return nil, false
	}

	info := &Info{Payload: claims}
	info.UserID, _ = SubjectID(token)
	if exp, ok := ExpirationTime(token); ok {
		info.ExpirationDate = &exp
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issued := iat.Time
		info.IssuedDate = &issued
	}
	info.RemainingSeconds = RemainingSeconds(token)
	info.RemainingMinutes = info.RemainingSeconds / 60
	info.IsExpired = IsExpiredOrExpiring(token, 0)
	info.IsExpiring = IsExpiredOrExpiring(token, DefaultExpiryBuffer)
	info.ShouldRefresh = ShouldRefresh(token, DefaultRefreshThreshold)
	return info, true
}

// LogInfo writes the token summary at debug level.
func LogInfo(logger zerolog.Logger, token, label string) {
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}

	info, ok := Inspect(token)
	if !ok {
		logger.Warn().Str("label", label).Msg("Failed to decode token")
		return
	}

	event := logger.Debug().
		Str("label", label).
		Str("user_id", info.UserID).
		Int64("remaining_seconds", info.RemainingSeconds).
		Bool("expired", info.IsExpired).
		Bool("expiring", info.IsExpiring).
		Bool("should_refresh", info.ShouldRefresh)
	if info.IssuedDate != nil {
		event = event.Time("issued_at", *info.IssuedDate)
	}
	if info.ExpirationDate != nil {
		event = event.Time("expires_at", *info.ExpirationDate)
	}
	event.Msg("Token information")
}
