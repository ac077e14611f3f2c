package config

import "time"

type GatewayConfig interface {
	GetHTTPTimeout() time.Duration
	GetReissuePath() string
	GetReissueTimeout() time.Duration
	GetLoginPath() string
	GetHomePath() string
}

type Gateway struct{}

var _ GatewayConfig = Gateway{}

func (Gateway) GetHTTPTimeout() time.Duration {
	return GetDurationEnv("HTTP_TIMEOUT", 15*time.Second)
}

func (Gateway) GetReissuePath() string {
	return GetEnv("REISSUE_PATH", "/reissue")
}

func (Gateway) GetReissueTimeout() time.Duration {
	return GetDurationEnv("REISSUE_TIMEOUT", 10*time.Second)
}

// GetLoginPath is where unauthenticated users and expired sessions are sent.
func (Gateway) GetLoginPath() string {
	return GetEnv("LOGIN_PATH", "/login")
}

// GetHomePath is where a successful login lands.
func (Gateway) GetHomePath() string {
	return GetEnv("HOME_PATH", "/dashboard/user")
}
