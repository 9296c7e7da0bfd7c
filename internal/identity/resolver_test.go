package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFingerprintRequest(ua string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req.RemoteAddr = "203.0.113.7:4321"
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return req
}

func TestResolvePersistentTokenWins(t *testing.T) {
	r := NewResolver("salt", nil)
	req := newFingerprintRequest("Mozilla/5.0")

	res := r.Resolve(req, `{"persistentId":"abc123","screen":"1920x1080"}`)
	if res.Identity != "pid_abc123" {
		t.Fatalf("Identity = %q, want pid_abc123", res.Identity)
	}
	if res.Fingerprint.Primary == "" {
		t.Fatal("fingerprint bundle must still be computed alongside a persistent token")
	}
}

func TestResolveDeterministicWithoutToken(t *testing.T) {
	r := NewResolver("salt", nil)

	a := r.Resolve(newFingerprintRequest("Mozilla/5.0"), "")
	b := r.Resolve(newFingerprintRequest("Mozilla/5.0"), "")

	if a.Identity == "" || len(a.Identity) != 16 {
		t.Fatalf("Identity = %q, want 16 hex chars", a.Identity)
	}
	if strings.HasPrefix(a.Identity, persistentIDPrefix) {
		t.Fatalf("Identity %q unexpectedly namespaced", a.Identity)
	}
	if a.Identity != b.Identity {
		t.Fatalf("identical requests resolved to different identities: %q vs %q", a.Identity, b.Identity)
	}

	c := r.Resolve(newFingerprintRequest("curl/8.0"), "")
	if c.Identity == a.Identity {
		t.Fatal("different user agents resolved to the same identity")
	}
}

func TestResolveNeverFails(t *testing.T) {
	r := NewResolver("salt", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4321"
	req.Header.Del("User-Agent")

	res := r.Resolve(req, "not-json{{")
	if res.Identity == "" || res.Fingerprint.Primary == "" {
		t.Fatalf("Resolve degraded to empty output: %+v", res)
	}
}
