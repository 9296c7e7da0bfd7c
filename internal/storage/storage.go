// Package storage abstracts the blob store the pipeline persists artifacts
// into. Uploads return opaque storage locators ("storage://<key>") that are
// never handed to external clients directly; callers exchange them for
// time-limited signed URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocatorScheme prefixes every internal storage reference.
const LocatorScheme = "storage://"

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("storage: object not found")

// Store is the consumed object-store capability.
type Store interface {
	// Upload persists data under key and returns the locator for it.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Download fetches the object bytes for key.
	Download(ctx context.Context, key string) ([]byte, error)
	// SignedURL produces an externally fetchable, time-limited URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Locator wraps a storage key in the internal locator scheme.
func Locator(key string) string {
	return LocatorScheme + strings.TrimLeft(key, "/")
}

// IsLocator reports whether s is an internal storage locator.
func IsLocator(s string) bool {
	return strings.HasPrefix(s, LocatorScheme)
}

// KeyFromLocator extracts the storage key from a locator.
func KeyFromLocator(locator string) (string, error) {
	if !IsLocator(locator) {
		return "", fmt.Errorf("storage: not a locator: %q", locator)
	}
	key := strings.TrimPrefix(locator, LocatorScheme)
	if key == "" {
		return "", errors.New("storage: empty locator key")
	}
	return key, nil
}

// ResolveURL exchanges a locator for a signed URL. Values that are already
// plain URLs pass through untouched, so legacy records keep working.
func ResolveURL(ctx context.Context, store Store, locatorOrURL string, ttl time.Duration) (string, error) {
	if !IsLocator(locatorOrURL) {
		return locatorOrURL, nil
	}
	key, err := KeyFromLocator(locatorOrURL)
	if err != nil {
		return "", err
	}
	return store.SignedURL(ctx, key, ttl)
}
