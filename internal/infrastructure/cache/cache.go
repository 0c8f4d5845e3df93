// Package cache provides the cache backends that sit in front of the entity
// store. Values are opaque bytes; callers own serialization. A miss is never an
// error: entries may be evicted at any time.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MaxKeyLength is the longest key handed to a backend. It matches the
// memcache limit so keys stay portable across backends.
const MaxKeyLength = 250

// Cache abstracts the caching backend.
type Cache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value; a zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SafeKey returns key unchanged when it fits MaxKeyLength. Longer keys keep a
// readable prefix and replace the remainder with its xxhash digest.
func SafeKey(key string) string {
	if len(key) <= MaxKeyLength {
		return key
	}
	digest := fmt.Sprintf("#%016x", xxhash.Sum64String(key))
	return key[:MaxKeyLength-len(digest)] + digest
}

// Family extracts the cache family from a versioned key such as
// "v1:last:Play:-:1700000000:1699990000". Unversioned keys report "other".
func Family(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || !strings.HasPrefix(parts[0], "v") {
		return "other"
	}
	return parts[1]
}
