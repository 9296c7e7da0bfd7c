package kv

import (
	"context"
	"errors"
	"fmt"

	"shotpack/internal/storage"
)

// ObjectStore layers the record contract over the object store, persisting
// each record as a small JSON object. It is the default backend: the design
// runs without any database, so job and usage records live next to the
// artifacts they describe.
type ObjectStore struct {
	store storage.Store
}

// NewObjectStore wraps an object store as a record store.
func NewObjectStore(store storage.Store) *ObjectStore {
	return &ObjectStore{store: store}
}

func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.store.Download(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: object get %q: %w", key, err)
	}
	return data, true, nil
}

func (s *ObjectStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.store.Upload(ctx, key, value, "application/json"); err != nil {
		return fmt.Errorf("kv: object set %q: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("kv: object delete %q: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("kv: object list %q: %w", prefix, err)
	}
	return keys, nil
}

var _ Store = (*ObjectStore)(nil)
