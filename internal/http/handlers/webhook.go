package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"shotpack/internal/domain"
)

const webhookSignatureHeader = "X-Webhook-Signature"

type paymentEvent struct {
	Fingerprint string `json:"fingerprint"`
	Months      int    `json:"months"`
}

// PaymentWebhook upgrades the matching usage record to pro. The caller signs
// the raw body with the shared secret (hex HMAC-SHA256); unsigned or
// mis-signed deliveries are rejected before any parsing side effects.
func (a *App) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Cfg.WebhookSecret == "" {
		a.error(w, http.StatusNotImplemented, "Webhook not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.error(w, http.StatusBadRequest, "Unreadable body")
		return
	}

	mac := hmac.New(sha256.New, []byte(a.Cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	got := r.Header.Get(webhookSignatureHeader)
	if got == "" || !hmac.Equal([]byte(expected), []byte(got)) {
		a.error(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if event.Fingerprint == "" {
		a.error(w, http.StatusBadRequest, "fingerprint is required")
		return
	}

	if err := a.Ledger.GrantEntitlement(r.Context(), event.Fingerprint, event.Months); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "No usage record matches fingerprint")
			return
		}
		a.fail(w, r, err)
		return
	}

	a.Logger.Info().Int("months", event.Months).Msg("pro entitlement granted via webhook")
	a.json(w, http.StatusOK, map[string]string{"status": "upgraded"})
}
