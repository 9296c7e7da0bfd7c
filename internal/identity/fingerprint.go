// Package identity derives a pseudo-stable identity for each request without
// accounts. A client may present a persistent token it minted from stable
// device signals; otherwise the request is fingerprinted from server-observed
// signals combined with whatever raw client signal blob was supplied.
//
// A fingerprint is a bundle: one primary digest plus fallback digests
// computed from progressively reduced signal sets, so minor drift (browser
// updates, clock skew) still re-identifies the same entity. Matching is
// deliberately permissive: continuity for honest users is worth more here
// than anti-fraud precision.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// digestLen is the number of hex characters kept from each SHA-256 digest.
const digestLen = 16

// Bundle is a serialized-friendly fingerprint: a primary digest and the
// fallback digests derived from reduced signal sets.
type Bundle struct {
	Primary   string   `json:"primary"`
	Fallbacks []string `json:"fallbacks"`
	Generated int64    `json:"generated"`
}

// Encode serializes the bundle to its canonical JSON form.
func (b Bundle) Encode() string {
	data, _ := json.Marshal(b)
	return string(data)
}

// DecodeBundle parses a serialized bundle. The empty bundle and an error are
// returned for malformed input; callers fall back to raw string comparison.
func DecodeBundle(s string) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Matches reports whether two bundles plausibly belong to the same entity:
// equal primaries, one primary appearing in the other's fallbacks, or any
// fallback intersection. The relation is reflexive and symmetric.
func Matches(a, b Bundle) bool {
	if a.Primary != "" && a.Primary == b.Primary {
		return true
	}
	if contains(b.Fallbacks, a.Primary) || contains(a.Fallbacks, b.Primary) {
		return true
	}
	for _, fa := range a.Fallbacks {
		if contains(b.Fallbacks, fa) {
			return true
		}
	}
	return false
}

// MatchesSerialized compares two serialized bundles, degrading to exact
// string equality when either side does not parse.
func MatchesSerialized(stored, current string) bool {
	sb, errS := DecodeBundle(stored)
	cb, errC := DecodeBundle(current)
	if errS != nil || errC != nil {
		return stored == current
	}
	return Matches(sb, cb)
}

// Fingerprint computes the bundle for one request.
//
// The primary digest covers the full combined signal document. Fallbacks:
// the document without the client timestamp, then a core subset (screen,
// user agent, language, timezone, canvas digest, hashed IP) that survives
// most browser updates.
func Fingerprint(server Signals, clientBlob string, now time.Time) Bundle {
	client := parseClientBlob(clientBlob)

	combined := map[string]any{"server": server.document()}
	if client != nil {
		combined["client"] = client
	}

	bundle := Bundle{
		Primary:   digest(combined),
		Generated: now.Unix(),
	}

	if client != nil {
		trimmed := make(map[string]any, len(client))
		for k, v := range client {
			if k != "timestamp" {
				trimmed[k] = v
			}
		}
		bundle.Fallbacks = append(bundle.Fallbacks, digest(map[string]any{
			"server": server.document(),
			"client": trimmed,
		}))
	}

	bundle.Fallbacks = append(bundle.Fallbacks, digest(coreFactors(server, client)))
	return bundle
}

// coreFactors reduces the signal set to the subset least likely to drift.
func coreFactors(server Signals, client map[string]any) map[string]any {
	core := map[string]any{
		"screen":    clientString(client, "screen"),
		"userAgent": server.UserAgent,
		"language":  server.Language,
		"timezone":  clientString(client, "timezone"),
		"canvas":    clientString(client, "canvas"),
		"ip":        server.HashedIP,
	}
	if ua := clientString(client, "userAgent"); ua != "" {
		core["userAgent"] = ua
	}
	if lang := clientString(client, "language"); lang != "" {
		core["language"] = lang
	}
	return core
}

func parseClientBlob(blob string) map[string]any {
	if blob == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return nil
	}
	return m
}

func clientString(client map[string]any, key string) string {
	if client == nil {
		return ""
	}
	if s, ok := client[key].(string); ok {
		return s
	}
	return ""
}

// digest hashes a signal document to its short hex form. json.Marshal sorts
// map keys, so equal documents always produce equal digests.
func digest(doc any) string {
	data, _ := json.Marshal(doc)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:digestLen]
}

func contains(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
