package config

import (
	"path/filepath"
	"time"
)

const (
	StorageDriverMemory = "memory"
	StorageDriverFile   = "file"
	StorageDriverRedis  = "redis"
	StorageDriverSQLite = "sqlite"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetStorageFile() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
	GetRedisTimeout() time.Duration
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageDriver() string {
	return GetEnv("STORAGE_DRIVER", StorageDriverFile)
}

func (Storage) GetStorageFile() string {
	return GetEnv("STORAGE_FILE", filepath.Join(EnvVars{}.GetDataFolder(), "local_storage.json"))
}

func (Storage) GetSQLitePath() string {
	return GetEnv("SQLITE_PATH", filepath.Join(EnvVars{}.GetDataFolder(), "local_storage.db"))
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetIntEnv("REDIS_DB", 0)
}

func (Storage) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "droni:")
}

func (Storage) GetRedisTimeout() time.Duration {
	return GetDurationEnv("REDIS_TIMEOUT", 2*time.Second)
}
