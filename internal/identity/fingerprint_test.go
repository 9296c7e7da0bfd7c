package identity

import (
	"testing"
	"time"
)

func testSignals() Signals {
	return Signals{
		HashedIP:  HashIP("203.0.113.7", "salt"),
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Language:  "en-US",
		Country:   "US",
		Headers: map[string]string{
			"Accept":          "image/avif,image/webp,*/*",
			"Accept-Encoding": "gzip, deflate, br",
		},
	}
}

const clientBlob = `{"screen":"1920x1080","timezone":"Europe/Berlin","canvas":"c4nv4s","userAgent":"Mozilla/5.0 (X11; Linux x86_64)","language":"en-US","timestamp":1700000000}`

func TestFingerprintDeterministic(t *testing.T) {
	now := time.Unix(1700000100, 0)

	a := Fingerprint(testSignals(), clientBlob, now)
	b := Fingerprint(testSignals(), clientBlob, now)

	if a.Primary == "" || len(a.Primary) != 16 {
		t.Fatalf("Primary = %q, want 16 hex chars", a.Primary)
	}
	if a.Primary != b.Primary {
		t.Fatalf("primaries differ for identical input: %q vs %q", a.Primary, b.Primary)
	}
	if len(a.Fallbacks) != 2 {
		t.Fatalf("Fallbacks = %v, want 2 entries with a client blob", a.Fallbacks)
	}
	if !Matches(a, b) {
		t.Fatal("identical bundles do not match")
	}
	if !Matches(a, a) {
		t.Fatal("match is not reflexive")
	}
}

func TestFingerprintTimestampDriftStillMatches(t *testing.T) {
	now := time.Unix(1700000100, 0)
	drifted := `{"screen":"1920x1080","timezone":"Europe/Berlin","canvas":"c4nv4s","userAgent":"Mozilla/5.0 (X11; Linux x86_64)","language":"en-US","timestamp":1700009999}`

	a := Fingerprint(testSignals(), clientBlob, now)
	b := Fingerprint(testSignals(), drifted, now.Add(time.Hour))

	if a.Primary == b.Primary {
		t.Fatal("timestamp change should alter the primary digest")
	}
	if !Matches(a, b) {
		t.Fatal("timestamp drift should still match via fallbacks")
	}
	if !Matches(b, a) {
		t.Fatal("match is not symmetric")
	}
}

func TestFingerprintHeaderDriftMatchesOnCore(t *testing.T) {
	now := time.Unix(1700000100, 0)
	a := Fingerprint(testSignals(), clientBlob, now)

	changed := testSignals()
	changed.Headers["Accept"] = "text/html,application/xhtml+xml"
	b := Fingerprint(changed, clientBlob, now)

	if a.Primary == b.Primary {
		t.Fatal("header change should alter the primary digest")
	}
	if !Matches(a, b) {
		t.Fatal("header drift should still match via the core factor fallback")
	}
}

func TestFingerprintUnrelatedUsersDoNotMatch(t *testing.T) {
	now := time.Unix(1700000100, 0)
	a := Fingerprint(testSignals(), clientBlob, now)

	other := Signals{
		HashedIP:  HashIP("198.51.100.42", "salt"),
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)",
		Language:  "fr-FR",
		Country:   "FR",
		Headers:   map[string]string{},
	}
	otherBlob := `{"screen":"2560x1600","timezone":"Europe/Paris","canvas":"other","timestamp":1700000000}`
	b := Fingerprint(other, otherBlob, now)

	if Matches(a, b) {
		t.Fatal("unrelated signal sets must not match")
	}
}

func TestFingerprintWithoutClientBlob(t *testing.T) {
	now := time.Unix(1700000100, 0)
	b := Fingerprint(testSignals(), "", now)

	if b.Primary == "" {
		t.Fatal("fingerprint must still be produced without a client blob")
	}
	if len(b.Fallbacks) != 1 {
		t.Fatalf("Fallbacks = %v, want only the core factor fallback", b.Fallbacks)
	}
}

func TestMatchesSerialized(t *testing.T) {
	now := time.Unix(1700000100, 0)
	driftedBlob := `{"screen":"1920x1080","timezone":"Europe/Berlin","canvas":"c4nv4s","userAgent":"Mozilla/5.0 (X11; Linux x86_64)","language":"en-US","timestamp":1700012345}`
	a := Fingerprint(testSignals(), clientBlob, now).Encode()
	drifted := Fingerprint(testSignals(), driftedBlob, now.Add(time.Minute)).Encode()

	if !MatchesSerialized(a, a) {
		t.Fatal("serialized bundle does not match itself")
	}
	if !MatchesSerialized(a, drifted) {
		t.Fatal("serialized drifted bundle should match via fallbacks")
	}
	// Malformed input degrades to string equality.
	if !MatchesSerialized("opaque-token", "opaque-token") {
		t.Fatal("equal opaque tokens should match")
	}
	if MatchesSerialized("opaque-token", "different-token") {
		t.Fatal("distinct opaque tokens must not match")
	}
}

func TestHashIP(t *testing.T) {
	a := HashIP("203.0.113.7", "salt")
	if len(a) != 8 {
		t.Fatalf("HashIP length = %d, want 8", len(a))
	}
	if a != HashIP("203.0.113.7", "salt") {
		t.Fatal("HashIP is not deterministic")
	}
	if a == HashIP("203.0.113.7", "other-salt") {
		t.Fatal("salt does not affect HashIP")
	}
	if a == HashIP("203.0.113.8", "salt") {
		t.Fatal("ip does not affect HashIP")
	}
}
