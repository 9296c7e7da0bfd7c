// Package quota gates job admission. Usage records are keyed by resolved
// identity but located by fallback-tolerant fingerprint matching, so a user
// whose signals drifted (or who checks out from a different browsing context)
// still maps onto the same ledger entry.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shotpack/internal/domain"
	"shotpack/internal/identity"
	"shotpack/internal/kv"
)

// usagePrefix locates usage records in the record store.
const usagePrefix = "users/usage/"

// Admission reasons reported to callers.
const (
	ReasonProUser       = "pro_user"
	ReasonFreeLimit     = "free_limit"
	ReasonLimitExceeded = "limit_exceeded"
)

// Policy isolates the product decisions from the mechanics. ChargeOnAdmission
// keeps the anti-abuse stance of charging quota when a job is accepted rather
// than when it completes.
type Policy struct {
	FreePackLimit     int
	ChargeOnAdmission bool
}

// DefaultPolicy mirrors the shipped product behavior: one free pack, charged
// at admission.
var DefaultPolicy = Policy{FreePackLimit: 1, ChargeOnAdmission: true}

// Decision is the admission surface consulted before any job is created.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
	PacksUsed int    `json:"packsUsed"`
	IsPro     bool   `json:"isPro"`
}

// Stats aggregates the ledger for dashboards.
type Stats struct {
	TotalUsers int `json:"totalUsers"`
	FreeUsers  int `json:"freeUsers"`
	ProUsers   int `json:"proUsers"`
	TotalPacks int `json:"totalPacks"`
}

// Ledger tracks per-identity usage.
type Ledger struct {
	store  kv.Store
	policy Policy
	logger zerolog.Logger
	now    func() time.Time
}

// NewLedger builds a ledger over the given record store.
func NewLedger(store kv.Store, policy Policy, logger zerolog.Logger) *Ledger {
	if policy.FreePackLimit <= 0 {
		policy.FreePackLimit = DefaultPolicy.FreePackLimit
	}
	return &Ledger{store: store, policy: policy, logger: logger, now: time.Now}
}

// Resolve returns the usage record for a resolution, creating it on first
// contact. Existing records are located by fingerprint matching, re-keyed to
// the latest identity string, refreshed, and lazily stripped of an expired
// pro entitlement.
func (l *Ledger) Resolve(ctx context.Context, res identity.Resolution) (*domain.UsageRecord, error) {
	now := l.now()
	serialized := res.Fingerprint.Encode()

	rec, oldKey, err := l.findByFingerprint(ctx, serialized)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rec.Fingerprint = serialized
		rec.LastUsedAt = now
		if rec.Identity != res.Identity {
			rec.Identity = res.Identity
			if err := l.store.Delete(ctx, oldKey); err != nil {
				l.logger.Warn().Err(err).Str("key", oldKey).Msg("quota: drop stale usage key failed")
			}
		}
		l.expireEntitlement(rec, now)
		if err := l.save(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	// The fingerprint scan can miss a record that still exists under this
	// identity: pid_ tokens keep the identity stable while the fingerprint
	// shifts with network and headers. Reuse that record rather than
	// overwriting it with a zeroed one.
	rec, err = l.load(ctx, usageKey(res.Identity))
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rec.Fingerprint = serialized
		rec.LastUsedAt = now
		l.expireEntitlement(rec, now)
		if err := l.save(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	rec = &domain.UsageRecord{
		Identity:    res.Identity,
		Fingerprint: serialized,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := l.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CanAdmit is the admission gate: pro users always pass, free users pass
// while under the pack limit.
func (l *Ledger) CanAdmit(ctx context.Context, res identity.Resolution) (Decision, error) {
	rec, err := l.Resolve(ctx, res)
	if err != nil {
		return Decision{}, err
	}
	if rec.ProActive(l.now()) {
		return Decision{Allowed: true, Reason: ReasonProUser, PacksUsed: rec.PacksUsed, IsPro: true}, nil
	}
	if rec.PacksUsed < l.policy.FreePackLimit {
		return Decision{Allowed: true, Reason: ReasonFreeLimit, PacksUsed: rec.PacksUsed}, nil
	}
	return Decision{Allowed: false, Reason: ReasonLimitExceeded, PacksUsed: rec.PacksUsed}, nil
}

// RecordAdmission charges one pack to the identity. Called exactly once per
// accepted job, at accept time; a job that later fails keeps its charge.
func (l *Ledger) RecordAdmission(ctx context.Context, res identity.Resolution) error {
	if !l.policy.ChargeOnAdmission {
		return nil
	}
	rec, err := l.Resolve(ctx, res)
	if err != nil {
		return err
	}
	rec.PacksUsed++
	rec.LastUsedAt = l.now()
	return l.save(ctx, rec)
}

// GrantEntitlement extends (or sets) the pro window of whichever record the
// given serialized fingerprint matches. Payment collaborators call this with
// the fingerprint captured at checkout, which may come from a different
// browsing context than the one that consumes the grant.
func (l *Ledger) GrantEntitlement(ctx context.Context, fingerprint string, months int) error {
	if months <= 0 {
		months = 1
	}
	rec, _, err := l.findByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("quota: no usage record matches fingerprint: %w", domain.ErrNotFound)
	}
	return l.grant(ctx, rec, months)
}

// GrantIdentity grants pro directly to a known identity string (admin path).
func (l *Ledger) GrantIdentity(ctx context.Context, identityStr string, months int) error {
	if months <= 0 {
		months = 1
	}
	rec, err := l.load(ctx, usageKey(identityStr))
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNotFound
	}
	return l.grant(ctx, rec, months)
}

// RevokeIdentity clears the pro entitlement of a known identity (admin path).
func (l *Ledger) RevokeIdentity(ctx context.Context, identityStr string) error {
	rec, err := l.load(ctx, usageKey(identityStr))
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNotFound
	}
	rec.IsPro = false
	rec.ProExpiresAt = nil
	rec.LastUsedAt = l.now()
	if err := l.save(ctx, rec); err != nil {
		return err
	}
	l.logger.Info().Str("identity", rec.Identity).Msg("quota: pro entitlement revoked")
	return nil
}

func (l *Ledger) grant(ctx context.Context, rec *domain.UsageRecord, months int) error {
	now := l.now()
	base := now
	if rec.ProActive(now) && rec.ProExpiresAt != nil && rec.ProExpiresAt.After(now) {
		base = *rec.ProExpiresAt
	}
	expires := base.AddDate(0, months, 0)
	rec.IsPro = true
	rec.ProExpiresAt = &expires
	rec.LastUsedAt = now
	if err := l.save(ctx, rec); err != nil {
		return err
	}
	l.logger.Info().
		Str("identity", rec.Identity).
		Time("expires", expires).
		Msg("quota: pro entitlement granted")
	return nil
}

// Stats aggregates all usage records.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	keys, err := l.store.List(ctx, usagePrefix)
	if err != nil {
		return Stats{}, err
	}
	now := l.now()
	var stats Stats
	for _, key := range keys {
		rec, err := l.load(ctx, key)
		if err != nil || rec == nil {
			continue
		}
		stats.TotalUsers++
		stats.TotalPacks += rec.PacksUsed
		if rec.ProActive(now) {
			stats.ProUsers++
		}
	}
	stats.FreeUsers = stats.TotalUsers - stats.ProUsers
	return stats, nil
}

// findByFingerprint scans all records for a fingerprint match. The ledger is
// small (one record per distinct visitor) so a full scan is acceptable; a
// multi-key index would be the first optimization if that changes.
func (l *Ledger) findByFingerprint(ctx context.Context, fingerprint string) (*domain.UsageRecord, string, error) {
	keys, err := l.store.List(ctx, usagePrefix)
	if err != nil {
		return nil, "", fmt.Errorf("quota: list usage records: %w", err)
	}
	for _, key := range keys {
		rec, err := l.load(ctx, key)
		if err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("quota: skip unreadable usage record")
			continue
		}
		if rec == nil {
			continue
		}
		if identity.MatchesSerialized(rec.Fingerprint, fingerprint) {
			return rec, key, nil
		}
	}
	return nil, "", nil
}

func (l *Ledger) load(ctx context.Context, key string) (*domain.UsageRecord, error) {
	data, found, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var rec domain.UsageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("quota: decode usage record %q: %w", key, err)
	}
	return &rec, nil
}

func (l *Ledger) save(ctx context.Context, rec *domain.UsageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("quota: encode usage record: %w", err)
	}
	return l.store.Set(ctx, usageKey(rec.Identity), data)
}

func (l *Ledger) expireEntitlement(rec *domain.UsageRecord, now time.Time) {
	if rec.IsPro && rec.ProExpiresAt != nil && rec.ProExpiresAt.Before(now) {
		rec.IsPro = false
		rec.ProExpiresAt = nil
	}
}

func usageKey(identityStr string) string {
	return usagePrefix + identityStr + ".json"
}
