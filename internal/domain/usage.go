package domain

import "time"

// UsageRecord tracks pack consumption and entitlement for one resolved
// identity. Fingerprint retains the latest serialized fingerprint bundle so
// later requests can be matched back to this record even when the resolved
// identity string drifts.
type UsageRecord struct {
	Identity     string     `json:"identity"`
	Fingerprint  string     `json:"fingerprint"`
	PacksUsed    int        `json:"packsUsed"`
	IsPro        bool       `json:"isPro"`
	ProExpiresAt *time.Time `json:"proExpiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   time.Time  `json:"lastUsedAt"`
}

// ProActive reports whether the record carries an unexpired pro entitlement.
func (u *UsageRecord) ProActive(now time.Time) bool {
	if !u.IsPro {
		return false
	}
	return u.ProExpiresAt == nil || u.ProExpiresAt.After(now)
}
