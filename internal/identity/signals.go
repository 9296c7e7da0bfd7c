package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// Signals are the server-observable request factors that feed fingerprinting.
// The raw IP never leaves this package; only its salted hash is carried.
type Signals struct {
	HashedIP  string
	UserAgent string
	Language  string
	Country   string
	Headers   map[string]string
}

// fingerprintHeaders is the stable header subset hashed into the fingerprint.
var fingerprintHeaders = []string{
	"Accept",
	"Accept-Encoding",
	"Accept-Language",
	"Dnt",
	"Sec-Fetch-Dest",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Site",
	"Upgrade-Insecure-Requests",
}

// CollectSignals extracts fingerprint signals from an HTTP request. country
// may be empty when no GeoIP database is configured.
func CollectSignals(r *http.Request, salt, country string) Signals {
	s := Signals{
		HashedIP:  HashIP(ClientIP(r), salt),
		UserAgent: r.Header.Get("User-Agent"),
		Language:  primaryLanguage(r.Header.Get("Accept-Language")),
		Country:   country,
		Headers:   make(map[string]string, len(fingerprintHeaders)),
	}
	for _, h := range fingerprintHeaders {
		if v := r.Header.Get(h); v != "" {
			s.Headers[h] = v
		}
	}
	return s
}

// document renders the signals as the map hashed into digests.
func (s Signals) document() map[string]any {
	return map[string]any{
		"ip":        s.HashedIP,
		"userAgent": s.UserAgent,
		"language":  s.Language,
		"country":   s.Country,
		"headers":   s.Headers,
	}
}

// HashIP produces the short salted digest of an IP. Resolution never fails:
// an empty IP hashes the salt alone, trading uniqueness for availability.
func HashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])[:8]
}

// ClientIP picks the original client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); ip != "" && net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// primaryLanguage normalizes an Accept-Language header to its best tag.
func primaryLanguage(header string) string {
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return strings.TrimSpace(strings.Split(header, ",")[0])
	}
	return tags[0].String()
}
