package session

import (
	"github.com/pkg/errors"
)

// StorageKey is the durable storage key holding the raw bearer token.
const StorageKey = "accessToken"

// ErrNotFound is returned by Storage.Get when the key is absent.
var ErrNotFound = errors.New("storage key not found")

// Storage is durable client key/value storage surviving process restarts.
// Implementations must be safe for concurrent use.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}
