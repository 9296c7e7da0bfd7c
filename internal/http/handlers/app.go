// Package handlers holds the HTTP surface. Every handler hangs off App so the
// router stays a plain wiring list.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"shotpack/internal/domain"
	"shotpack/internal/identity"
	"shotpack/internal/infra"
	"shotpack/internal/jobs"
	"shotpack/internal/quota"
	"shotpack/internal/storage"
)

// fingerprintHeader carries the serialized client fingerprint blob on
// non-multipart requests.
const fingerprintHeader = "X-Fingerprint"

type App struct {
	Cfg          *infra.Config
	Logger       infra.Logger
	Jobs         *jobs.Store
	Orchestrator *jobs.Orchestrator
	Ledger       *quota.Ledger
	Resolver     *identity.Resolver
	Blobs        storage.Store

	// Files is set only when the filesystem store is active; it backs the
	// /static signed-URL surface.
	Files *storage.FileStore
}

func NewApp(cfg *infra.Config, logger infra.Logger) *App {
	return &App{Cfg: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

// fail maps domain sentinel errors to status codes; anything unrecognized is
// a 500 with a generic body so internals never leak.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, domain.ErrAccessDenied):
		a.error(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusPaymentRequired, "Free limit exceeded")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// resolve derives the caller's identity from the request plus the optional
// client fingerprint blob (form field on create, header elsewhere).
func (a *App) resolve(r *http.Request, clientBlob string) identity.Resolution {
	if clientBlob == "" {
		clientBlob = r.Header.Get(fingerprintHeader)
	}
	return a.Resolver.Resolve(r, clientBlob)
}
