package handlers

import (
	"net/http"
)

// Usage returns the caller's admission state without consuming anything.
func (a *App) Usage(w http.ResponseWriter, r *http.Request) {
	res := a.resolve(r, "")
	decision, err := a.Ledger.CanAdmit(r.Context(), res)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, decision)
}

// UsageStats aggregates the ledger for dashboards.
func (a *App) UsageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Ledger.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, stats)
}
