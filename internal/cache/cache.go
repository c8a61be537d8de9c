package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// NoExpiration stores a value until it is deleted
const NoExpiration time.Duration = -1

// Cache defines a byte-level key/value layer
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Keys() ([]string, error)
	Clear() error
}

// fileName derives a filesystem-safe name from an arbitrary key
func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return "jobsift-v1-" + hex.EncodeToString(hash[:])
}
