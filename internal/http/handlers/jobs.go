package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shotpack/internal/domain"
	"shotpack/internal/jobs"
	"shotpack/internal/storage"
)

const maxUploadBytes = 8 << 20

// CreateJob validates the upload, gates it through the quota ledger, records
// the admission, and launches the pipeline. The response carries only the
// job id; clients poll for everything else.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes + 1<<20); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	res := a.resolve(r, r.FormValue("fingerprint"))

	decision, err := a.Ledger.CanAdmit(r.Context(), res)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !decision.Allowed {
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error":     "Free limit exceeded",
			"type":      "LIMIT_EXCEEDED",
			"packsUsed": decision.PacksUsed,
			"isProUser": decision.IsPro,
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	style := r.FormValue("style")
	if !domain.ValidStyle(style) {
		a.error(w, http.StatusBadRequest, "Valid style is required")
		return
	}
	if header.Size > maxUploadBytes {
		a.error(w, http.StatusBadRequest, "File size must be less than 8MB")
		return
	}
	if mime := header.Header.Get("Content-Type"); !strings.HasPrefix(mime, "image/") {
		a.error(w, http.StatusBadRequest, "File must be an image")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if len(raw) > maxUploadBytes {
		a.error(w, http.StatusBadRequest, "File size must be less than 8MB")
		return
	}

	upscale := r.FormValue("upscale") == "true"

	job := &domain.Job{
		ID:        jobs.NewJobID(),
		Status:    domain.JobStatusQueued,
		Progress:  0,
		Style:     domain.Style(style),
		Upscale:   upscale,
		Images:    []string{},
		Owner:     res.Identity,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Jobs.Put(r.Context(), job); err != nil {
		a.fail(w, r, err)
		return
	}

	// Admission is charged now, not at completion. A job that later fails
	// still consumed the credit.
	if err := a.Ledger.RecordAdmission(r.Context(), res); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record admission")
	}

	if err := a.Orchestrator.Launch(job, raw); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to launch pipeline")
		_, _ = a.Jobs.Update(r.Context(), job.ID, func(j *domain.Job) error {
			j.Status = domain.JobStatusError
			j.Error = "Service busy, please try again"
			return nil
		})
		a.error(w, http.StatusServiceUnavailable, "Service busy, please try again")
		return
	}

	a.json(w, http.StatusOK, map[string]string{"jobId": job.ID})
}

// JobStatus returns the record as stored; images and zipUrl are raw storage
// locators the client exchanges via the storage/url endpoint.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"status":   job.Status,
		"progress": job.Progress,
		"images":   job.Images,
		"zipUrl":   job.ZipURL,
		"error":    job.Error,
	})
}

// ListJobs returns the caller's jobs, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	res := a.resolve(r, "")
	list, err := a.Jobs.ListByOwner(r.Context(), res.Identity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": list, "total": len(list)})
}

// CancelJob marks a queued or running job as cancelled. Ownership is strict.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	res := a.resolve(r, "")
	job, err := a.Orchestrator.Cancel(r.Context(), chi.URLParam(r, "id"), res.Identity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"message": "Job cancelled successfully",
		"status":  job.Status,
	})
}

// RetryJob resets a failed job and re-runs the pipeline from the stored
// original.
func (a *App) RetryJob(w http.ResponseWriter, r *http.Request) {
	res := a.resolve(r, "")
	job, err := a.Orchestrator.Retry(r.Context(), chi.URLParam(r, "id"), res.Identity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"message": "Job queued for retry",
		"status":  job.Status,
	})
}

// DownloadJob exchanges a completed job's zip locator for a short-lived
// signed URL. The caller must still pass the ledger gate.
func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	res := a.resolve(r, "")
	decision, err := a.Ledger.CanAdmit(r.Context(), res)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !decision.Allowed && !decision.IsPro {
		a.json(w, http.StatusForbidden, map[string]string{
			"error": "Access denied",
			"type":  "LIMIT_EXCEEDED",
		})
		return
	}

	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.JobStatusDone || job.ZipURL == "" {
		a.error(w, http.StatusBadRequest, "Job not completed or ZIP not available")
		return
	}

	downloadURL, err := storage.ResolveURL(r.Context(), a.Blobs, job.ZipURL, a.Cfg.DownloadURLTTL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"downloadUrl": downloadURL})
}

// CleanupStuck force-fails the caller's running jobs that stopped
// progressing, plus ownerless records. The in-process sweeper covers all
// owners; the endpoint remains for manual or cron-driven sweeps.
func (a *App) CleanupStuck(w http.ResponseWriter, r *http.Request) {
	res := a.resolve(r, "")
	failed, err := a.Orchestrator.CleanupStuck(r.Context(), res.Identity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"cleaned": len(failed),
		"jobIds":  failed,
	})
}
