package jwt_test

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/droniapp/go-auth-client/token/jwt"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func freezeTime(t *testing.T) {
	t.Helper()
	jwt.NowTimeFunc = func() time.Time { return fixedNow }
	t.Cleanup(func() { jwt.NowTimeFunc = time.Now })
}

func signedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func tokenExpiringIn(t *testing.T, d time.Duration) string {
	t.Helper()
	return signedToken(t, jwtlib.MapClaims{
		"sub": "user-1",
		"iat": fixedNow.Add(-time.Hour).Unix(),
		"exp": fixedNow.Add(d).Unix(),
	})
}

func rawToken(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + payload + ".signature"
}

func TestDecodePayload(t *testing.T) {
	freezeTime(t)

	claims, ok := jwt.DecodePayload(tokenExpiringIn(t, time.Hour))
	require.True(t, ok)
	require.Equal(t, "user-1", claims["sub"])

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{name: "two segments", token: "header.payload", ok: false},
		{name: "four segments", token: "a.b.c.d", ok: false},
		{name: "empty payload", token: "a..c", ok: false},
		{name: "not base64", token: rawToken("!!!not-base64!!!"), ok: false},
		{name: "not json", token: rawToken(base64.RawURLEncoding.EncodeToString([]byte("plain text"))), ok: false},
		{name: "json array", token: rawToken(base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`))), ok: false},
		{name: "json null", token: rawToken(base64.RawURLEncoding.EncodeToString([]byte(`null`))), ok: false},
		{name: "unpadded url-safe", token: rawToken(base64.RawURLEncoding.EncodeToString([]byte(`{"a":"??>"}`))), ok: true},
		{name: "padded std", token: rawToken(base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))), ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, ok := jwt.DecodePayload(tt.token)
			require.Equal(t, tt.ok, ok)
			if !ok {
				require.Nil(t, claims)
			}
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	freezeTime(t)

	require.Equal(t, int64(3600), jwt.RemainingSeconds(tokenExpiringIn(t, time.Hour)))
	require.Equal(t, int64(0), jwt.RemainingSeconds(tokenExpiringIn(t, -10*time.Second)))
	require.Equal(t, int64(0), jwt.RemainingSeconds("garbage"))
	require.Equal(t, int64(0), jwt.RemainingSeconds(signedToken(t, jwtlib.MapClaims{"sub": "x"})))
}

func TestIsExpiredOrExpiring(t *testing.T) {
	freezeTime(t)

	require.True(t, jwt.IsExpiredOrExpiring(tokenExpiringIn(t, 5*time.Second), jwt.DefaultExpiryBuffer))
	require.False(t, jwt.IsExpiredOrExpiring(tokenExpiringIn(t, time.Hour), jwt.DefaultExpiryBuffer))
	require.True(t, jwt.IsExpiredOrExpiring(tokenExpiringIn(t, 60*time.Second), jwt.DefaultExpiryBuffer))
	require.False(t, jwt.IsExpiredOrExpiring(tokenExpiringIn(t, 61*time.Second), jwt.DefaultExpiryBuffer))
	require.True(t, jwt.IsExpiredOrExpiring("not.a.jwt", jwt.DefaultExpiryBuffer), "undecodable tokens fail safe")
	require.True(t, jwt.IsExpiredOrExpiring(signedToken(t, jwtlib.MapClaims{"sub": "x"}), 0), "missing exp fails safe")
}

func captureWarnings(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous, level := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(level)
	})
	return &buf
}

func TestIsExpiredOrExpiringWarnsOncePerToken(t *testing.T) {
	freezeTime(t)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "wrong segment count", token: "only.two", message: "Invalid JWT format"},
		{name: "undecodable payload", token: rawToken("!!!"), message: "Error decoding JWT payload"},
		{name: "missing exp", token: signedToken(t, jwtlib.MapClaims{"sub": "x"}), message: "missing expiration claim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureWarnings(t)

			require.True(t, jwt.IsExpiredOrExpiring(tt.token, jwt.DefaultExpiryBuffer))
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 1)
			require.Contains(t, lines[0], tt.message)
		})
	}
}

func TestShouldRefresh(t *testing.T) {
	freezeTime(t)

	require.True(t, jwt.ShouldRefresh(tokenExpiringIn(t, 10*time.Minute), jwt.DefaultRefreshThreshold))
	require.True(t, jwt.ShouldRefresh(tokenExpiringIn(t, -10*time.Second), jwt.DefaultRefreshThreshold))
	require.False(t, jwt.ShouldRefresh(tokenExpiringIn(t, 11*time.Minute), jwt.DefaultRefreshThreshold))
}

func TestNextCheckInterval(t *testing.T) {
	freezeTime(t)

	tests := []struct {
		name      string
		remaining time.Duration
		want      time.Duration
	}{
		{name: "third of remaining", remaining: 30 * time.Minute, want: 10 * time.Minute},
		{name: "capped at max", remaining: 24 * time.Hour, want: 30 * time.Minute},
		{name: "floored at one minute", remaining: 90 * time.Second, want: time.Minute},
		{name: "one second left", remaining: time.Second, want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := jwt.NextCheckInterval(tokenExpiringIn(t, tt.remaining), jwt.DefaultMaxCheckInterval)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
			require.GreaterOrEqual(t, got, jwt.MinCheckInterval)
			require.LessOrEqual(t, got, jwt.DefaultMaxCheckInterval)
		})
	}

	_, ok := jwt.NextCheckInterval(tokenExpiringIn(t, -10*time.Second), jwt.DefaultMaxCheckInterval)
	require.False(t, ok)
	_, ok = jwt.NextCheckInterval("garbage", jwt.DefaultMaxCheckInterval)
	require.False(t, ok)
}

func TestSubjectID(t *testing.T) {
	freezeTime(t)

	tests := []struct {
		name   string
		claims jwtlib.MapClaims
		want   string
		ok     bool
	}{
		{name: "sub wins", claims: jwtlib.MapClaims{"sub": "a", "userId": "b", "id": "c"}, want: "a", ok: true},
		{name: "userId before id", claims: jwtlib.MapClaims{"userId": "b", "id": "c"}, want: "b", ok: true},
		{name: "id last", claims: jwtlib.MapClaims{"id": "c"}, want: "c", ok: true},
		{name: "numeric id", claims: jwtlib.MapClaims{"id": 42}, want: "42", ok: true},
		{name: "empty sub skipped", claims: jwtlib.MapClaims{"sub": "", "id": "c"}, want: "c", ok: true},
		{name: "none", claims: jwtlib.MapClaims{"exp": 1}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := jwt.SubjectID(signedToken(t, tt.claims))
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInspect(t *testing.T) {
	freezeTime(t)

	info, ok := jwt.Inspect(tokenExpiringIn(t, 5*time.Minute))
	require.True(t, ok)
	require.Equal(t, "user-1", info.UserID)
	require.Equal(t, int64(300), info.RemainingSeconds)
	require.Equal(t, int64(5), info.RemainingMinutes)
	require.False(t, info.IsExpired)
	require.False(t, info.IsExpiring)
	require.True(t, info.ShouldRefresh)
	require.NotNil(t, info.ExpirationDate)
	require.True(t, info.ExpirationDate.Equal(fixedNow.Add(5*time.Minute)))
	require.NotNil(t, info.IssuedDate)
	require.True(t, info.IssuedDate.Equal(fixedNow.Add(-time.Hour)))

	_, ok = jwt.Inspect("garbage")
	require.False(t, ok)
}
