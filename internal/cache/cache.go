// Package cache stores collaborator responses (registry lookups) between
// builds. Values are opaque bytes; callers own the encoding.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Kind selects a cache implementation
const (
	KindNone    = "none"
	KindMemory  = "memory"
	KindDisk    = "disk"
	KindLayered = "layered"
)

// Options configures New
type Options struct {
	Kind string
	Dir  string
	TTL  time.Duration
}

// Key builds a namespaced key from parts. Parts are lower-cased and
// trimmed so equivalent queries share an entry.
func Key(namespace string, parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	hash := sha256.Sum256([]byte(strings.Join(norm, "\x00")))
	return "siteintent:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}

// New creates the cache named by opts.Kind; KindNone returns nil
func New(opts Options) (Cache, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	switch opts.Kind {
	case "", KindNone:
		return nil, nil
	case KindMemory:
		return NewMemoryCache(ttl, 10*time.Minute), nil
	case KindDisk:
		if opts.Dir == "" {
			return nil, fmt.Errorf("disk cache needs a directory")
		}
		return NewDiskCache(opts.Dir, ttl), nil
	case KindLayered:
		if opts.Dir == "" {
			return nil, fmt.Errorf("layered cache needs a directory")
		}
		return NewLayeredCache(ttl, opts.Dir, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache kind: %s (supported: none, memory, disk, layered)", opts.Kind)
	}
}
