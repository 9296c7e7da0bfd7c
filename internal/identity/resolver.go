package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"shotpack/internal/infra/geoip"
)

// persistentIDPrefix namespaces identities minted from client persistent tokens.
const persistentIDPrefix = "pid_"

// Resolution carries everything downstream consumers need: the identity
// string for keying and the fingerprint bundle for fallback matching.
type Resolution struct {
	Identity    string
	Fingerprint Bundle
}

// Resolver turns requests into identities. It never fails: with no client
// blob and no usable headers the hashed IP alone still yields a digest.
type Resolver struct {
	salt string
	geo  geoip.CountryResolver
	now  func() time.Time
}

// NewResolver builds a Resolver. geo may be nil when no GeoIP database is
// configured.
func NewResolver(salt string, geo geoip.CountryResolver) *Resolver {
	return &Resolver{salt: salt, geo: geo, now: time.Now}
}

// Resolve derives the identity for a request. When the client blob carries a
// persistentId, that token wins and is wrapped in the pid_ namespace; the
// fingerprint bundle is still computed so the ledger can refresh its stored
// copy. Otherwise the identity is derived from the bundle's primary digest,
// which keeps it deterministic for identical signals.
func (r *Resolver) Resolve(req *http.Request, clientBlob string) Resolution {
	country := ""
	if r.geo != nil {
		if code, err := r.geo.CountryCode(ClientIP(req)); err == nil {
			country = code
		}
	}
	signals := CollectSignals(req, r.salt, country)
	bundle := Fingerprint(signals, clientBlob, r.now())

	if token := persistentToken(clientBlob); token != "" {
		return Resolution{Identity: persistentIDPrefix + token, Fingerprint: bundle}
	}
	return Resolution{Identity: identityFromBundle(bundle), Fingerprint: bundle}
}

func identityFromBundle(b Bundle) string {
	sum := sha256.Sum256([]byte("fp|" + b.Primary))
	return hex.EncodeToString(sum[:])[:digestLen]
}

func persistentToken(blob string) string {
	if blob == "" {
		return ""
	}
	var payload struct {
		PersistentID string `json:"persistentId"`
	}
	if err := json.Unmarshal([]byte(blob), &payload); err != nil {
		return ""
	}
	return payload.PersistentID
}
