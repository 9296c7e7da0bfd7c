// Package kv defines the narrow key-value contract the job store and the
// usage ledger are built on. Records are small JSON blobs; every backend only
// needs get/set/delete plus prefix listing, so the orchestrator never depends
// on which store is configured.
package kv

import "context"

// Store is the minimal record store contract.
type Store interface {
	// Get returns the value for key, with found=false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
