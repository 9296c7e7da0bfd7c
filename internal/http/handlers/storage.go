package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"shotpack/internal/storage"
)

type signURLRequest struct {
	URL string `json:"url"`
}

// SignURL exchanges an internal storage locator for a short-lived signed URL.
// Plain URLs pass through so old records keep working.
func (a *App) SignURL(w http.ResponseWriter, r *http.Request) {
	var req signURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		a.error(w, http.StatusBadRequest, "url is required")
		return
	}

	signed, err := storage.ResolveURL(r.Context(), a.Blobs, req.URL, a.Cfg.SignedURLTTL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": signed})
}

// Static serves filesystem-store objects behind the HMAC-expiring token the
// store embeds in its signed URLs. Mounted only when the filesystem backend
// is active.
func (a *App) Static(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "Not found")
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/static/")
	if key == "" {
		a.error(w, http.StatusNotFound, "Not found")
		return
	}

	q := r.URL.Query()
	if !a.Files.VerifyStaticToken(key, q.Get("exp"), q.Get("sig")) {
		a.error(w, http.StatusForbidden, "Invalid or expired token")
		return
	}

	data, err := a.Files.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "Not found")
			return
		}
		a.fail(w, r, err)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}
