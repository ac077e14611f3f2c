package config

import (
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	GatewayConfig
	MonitorConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBackendURL() string
	GetDataFolder() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	Gateway
	Monitor
	Storage
}

func New() Config {
	return mainConfig{}
}

// Load reads a .env file into the process environment. Variables that are
// already set are left untouched.
func Load(path string) error {
	return godotenv.Load(path)
}
