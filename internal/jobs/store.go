// Package jobs owns the pack generation lifecycle: the persisted job record,
// the background runner, and the orchestrator that drives a job from queued
// to done or error.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"shotpack/internal/domain"
	"shotpack/internal/kv"
)

const metadataPrefix = "jobs/metadata/"

// Store persists job records as JSON documents in the configured record store.
type Store struct {
	records kv.Store
	now     func() time.Time
}

// NewStore wraps the given record store.
func NewStore(records kv.Store) *Store {
	return &Store{records: records, now: time.Now}
}

// NewJobID mints a sortable job identifier.
func NewJobID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("job-%d-%s", time.Now().UnixMilli(), suffix)
}

func jobKey(id string) string {
	return metadataPrefix + id + ".json"
}

// Get loads one job record. Returns domain.ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	data, ok, err := s.records.Get(ctx, jobKey(id))
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Put writes the job record, stamping updatedAt.
func (s *Store) Put(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.records.Set(ctx, jobKey(job.ID), data); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

// Update applies mutate to the current record and writes it back. The record
// store offers no compare-and-swap, so concurrent updates are last writer
// wins; the orchestrator serializes its own writes per job.
func (s *Store) Update(ctx context.Context, id string, mutate func(*domain.Job) error) (*domain.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	if err := s.Put(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns every job record, newest first.
func (s *Store) List(ctx context.Context) ([]*domain.Job, error) {
	keys, err := s.records.List(ctx, metadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*domain.Job, 0, len(keys))
	for _, key := range keys {
		data, ok, err := s.records.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		out = append(out, &job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListByOwner returns the owner's jobs, newest first.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*domain.Job, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Job, 0, len(all))
	for _, job := range all {
		if job.Owner == owner {
			out = append(out, job)
		}
	}
	return out, nil
}

// Delete removes a job record.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.records.Delete(ctx, jobKey(id))
}
