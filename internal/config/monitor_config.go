package config

import "time"

type MonitorConfig interface {
	GetRefreshThreshold() time.Duration
	GetMaxCheckInterval() time.Duration
	GetVisibilityBuffer() time.Duration
}

type Monitor struct{}

var _ MonitorConfig = Monitor{}

func (Monitor) GetRefreshThreshold() time.Duration {
	return GetDurationEnv("REFRESH_THRESHOLD", 10*time.Minute)
}

func (Monitor) GetMaxCheckInterval() time.Duration {
	return GetDurationEnv("MAX_CHECK_INTERVAL", 30*time.Minute)
}

func (Monitor) GetVisibilityBuffer() time.Duration {
	return GetDurationEnv("VISIBILITY_BUFFER", time.Minute)
}
