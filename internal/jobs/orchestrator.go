package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shotpack/internal/domain"
	"shotpack/internal/imaging"
	"shotpack/internal/infra"
	"shotpack/internal/providers/image"
	"shotpack/internal/storage"
	"shotpack/internal/styles"
	"shotpack/pkg/zip"
)

// CancelledMessage is written into the job record on explicit user cancel.
const CancelledMessage = "Cancelled by user"

// StuckMessage is written when the sweeper force-fails an abandoned job.
const StuckMessage = "Job timed out - execution deadline exceeded"

const (
	canvasSize    = 1024
	upscaleTarget = 2048
)

// errAborted signals a cooperative stop: the record already reflects the
// outcome (user cancel) and must not be overwritten.
var errAborted = errors.New("jobs: run aborted")

// Options wires an Orchestrator.
type Options struct {
	Store    *Store
	Blobs    storage.Store
	Provider image.Provider
	Runner   *Runner
	Logger   infra.Logger

	BatchSize    int
	Budget       time.Duration
	BatchPause   time.Duration
	RetryBackoff time.Duration
	StuckTimeout time.Duration

	Now func() time.Time
}

// Orchestrator drives the pack pipeline: normalize, generate six variants in
// batches, optionally upscale, archive, finish. It runs fire-and-forget on
// the runner; every failure lands in the job record, never in a caller.
type Orchestrator struct {
	store    *Store
	blobs    storage.Store
	provider image.Provider
	upscaler image.Upscaler
	runner   *Runner
	logger   infra.Logger

	batchSize    int
	budget       time.Duration
	batchPause   time.Duration
	retryBackoff time.Duration
	stuckTimeout time.Duration

	now func() time.Time
}

// NewOrchestrator applies defaults and derives the optional upscaler from the
// provider.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        opts.Store,
		blobs:        opts.Blobs,
		provider:     opts.Provider,
		runner:       opts.Runner,
		logger:       opts.Logger,
		batchSize:    opts.BatchSize,
		budget:       opts.Budget,
		batchPause:   opts.BatchPause,
		retryBackoff: opts.RetryBackoff,
		stuckTimeout: opts.StuckTimeout,
		now:          opts.Now,
	}
	if o.batchSize < 1 {
		o.batchSize = 2
	}
	if o.budget <= 0 {
		o.budget = 270 * time.Second
	}
	if o.batchPause <= 0 {
		o.batchPause = time.Second
	}
	if o.retryBackoff <= 0 {
		o.retryBackoff = 2 * time.Second
	}
	if o.stuckTimeout <= 0 {
		o.stuckTimeout = 15 * time.Minute
	}
	if o.now == nil {
		o.now = time.Now
	}
	if up, ok := opts.Provider.(image.Upscaler); ok {
		o.upscaler = up
	}
	return o
}

// Launch enqueues the pipeline for a freshly created job. raw holds the
// uploaded file bytes; pass nil on retry to resume from the stored original.
func (o *Orchestrator) Launch(job *domain.Job, raw []byte) error {
	id := job.ID
	return o.runner.Enqueue(func(ctx context.Context) {
		o.run(ctx, id, raw)
	})
}

func (o *Orchestrator) run(ctx context.Context, jobID string, raw []byte) {
	start := o.now()
	logger := o.logger.With().Str("job_id", jobID).Logger()

	err := o.execute(ctx, jobID, raw, logger)
	elapsed := o.now().Sub(start)
	switch {
	case err == nil:
		infra.ObservePipelineJob("done", elapsed)
		logger.Info().Dur("elapsed", elapsed).Msg("job completed")
	case errors.Is(err, errAborted):
		infra.ObservePipelineJob("cancelled", elapsed)
		logger.Info().Dur("elapsed", elapsed).Msg("job aborted")
	default:
		infra.ObservePipelineJob("error", elapsed)
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("job failed")
		o.fail(ctx, jobID, err.Error())
	}
}

func (o *Orchestrator) execute(ctx context.Context, jobID string, raw []byte, logger infra.Logger) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return errAborted
	}

	job.Status = domain.JobStatusRunning
	job.Progress = 5
	if err := o.store.Put(ctx, job); err != nil {
		return err
	}

	// Stage 1: normalize the upload, or on retry reuse the stored original.
	var normalized []byte
	if raw != nil {
		normalized, err = imaging.Normalize(raw)
		if err != nil {
			return fmt.Errorf("process input image: %w", err)
		}
		key := fmt.Sprintf("uploads/%s/original.jpg", jobID)
		locator, err := o.blobs.Upload(ctx, key, normalized, "image/jpeg")
		if err != nil {
			return fmt.Errorf("store original image: %w", err)
		}
		job.OriginalURL = locator
	} else {
		if job.OriginalURL == "" {
			return errors.New("no stored original image to resume from")
		}
		key, err := storage.KeyFromLocator(job.OriginalURL)
		if err != nil {
			return fmt.Errorf("resolve original image: %w", err)
		}
		normalized, err = o.blobs.Download(ctx, key)
		if err != nil {
			return fmt.Errorf("fetch original image: %w", err)
		}
	}
	job.Progress = 10
	if err := o.store.Put(ctx, job); err != nil {
		return err
	}

	style, ok := styles.Lookup(job.Style)
	if !ok {
		return fmt.Errorf("invalid style: %s", job.Style)
	}
	prompts := styles.BuildPrompts(style.Prompt)

	// Stage 2: batched variant generation with a strict barrier per batch.
	results, err := o.generate(ctx, job, normalized, prompts, logger)
	if err != nil {
		return err
	}

	valid := make([]string, 0, len(results))
	for _, locator := range results {
		if locator != "" {
			valid = append(valid, locator)
		}
	}
	if len(valid) == 0 {
		return errors.New("No images were generated successfully")
	}

	// Stage 3: optional upscale; per-image failure falls back to the
	// pre-upscale variant.
	if job.Upscale && o.upscaler != nil {
		valid = o.upscaleAll(ctx, jobID, valid, logger)
	}
	if aborted, err := o.checkpoint(ctx, jobID, 90); err != nil || aborted {
		if aborted {
			return errAborted
		}
		return err
	}

	// Stage 4: archive the pack.
	zipLocator, err := o.archive(ctx, jobID, valid)
	if err != nil {
		return fmt.Errorf("assemble pack archive: %w", err)
	}

	_, err = o.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Status == domain.JobStatusError {
			return errAborted
		}
		j.Status = domain.JobStatusDone
		j.Progress = 100
		j.Images = valid
		j.ZipURL = zipLocator
		j.Error = ""
		return nil
	})
	return err
}

// generate fills the six slots in batches. Slot results land at their fixed
// index so the final ordering is deterministic regardless of completion
// order; a permanently failed slot stays empty.
func (o *Orchestrator) generate(ctx context.Context, job *domain.Job, source []byte, prompts [domain.PackSize]string, logger infra.Logger) ([]string, error) {
	deadline := o.now().Add(o.budget)
	span := 60
	if job.Upscale {
		span = 70
	}

	results := make([]string, domain.PackSize)
	var (
		mu        sync.Mutex
		completed int
	)

	for batchStart := 0; batchStart < domain.PackSize; batchStart += o.batchSize {
		if aborted, err := o.checkpoint(ctx, job.ID, 0); err != nil {
			return nil, err
		} else if aborted {
			return nil, errAborted
		}
		if o.now().After(deadline) {
			logger.Warn().Int("next_slot", batchStart).Msg("time budget exceeded; abandoning remaining slots")
			break
		}

		batchEnd := batchStart + o.batchSize
		if batchEnd > domain.PackSize {
			batchEnd = domain.PackSize
		}

		var wg sync.WaitGroup
		for slot := batchStart; slot < batchEnd; slot++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				locator, err := o.generateSlot(ctx, job, source, prompts[slot], slot)
				if err != nil {
					logger.Warn().Err(err).Int("variant", slot+1).Msg("variant permanently failed")
					return
				}
				mu.Lock()
				results[slot] = locator
				completed++
				progress := 10 + completed*span/domain.PackSize
				mu.Unlock()

				_, uerr := o.store.Update(ctx, job.ID, func(j *domain.Job) error {
					if j.Status == domain.JobStatusError {
						return nil
					}
					if progress > j.Progress {
						j.Progress = progress
					}
					j.Images = appendUnique(j.Images, locator)
					return nil
				})
				if uerr != nil {
					logger.Warn().Err(uerr).Int("variant", slot+1).Msg("progress update failed")
				}
			}(slot)
		}
		wg.Wait()

		if batchEnd < domain.PackSize {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.batchPause):
			}
		}
	}
	return results, nil
}

// generateSlot runs one variant with a single retry and linear backoff.
func (o *Orchestrator) generateSlot(ctx context.Context, job *domain.Job, source []byte, prompt string, slot int) (string, error) {
	const maxRetries = 1

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			infra.CountGenerationAttempt("retry")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(o.retryBackoff * time.Duration(attempt)):
			}
		}

		result, err := o.provider.Edit(ctx, image.EditRequest{
			SourceImage: source,
			SourceMIME:  "image/jpeg",
			Prompt:      prompt,
			Width:       canvasSize,
			Height:      canvasSize,
			RequestID:   job.ID,
			Slot:        slot,
		})
		if err != nil {
			infra.CountGenerationAttempt("failed")
			lastErr = err
			continue
		}

		key := fmt.Sprintf("outputs/%s/%d.jpg", job.ID, slot+1)
		locator, err := o.blobs.Upload(ctx, key, result.Data, "image/jpeg")
		if err != nil {
			infra.CountGenerationAttempt("failed")
			lastErr = err
			continue
		}
		infra.CountGenerationAttempt("success")
		return locator, nil
	}
	return "", fmt.Errorf("variant %d failed after %d attempts: %w", slot+1, maxRetries+1, lastErr)
}

func (o *Orchestrator) upscaleAll(ctx context.Context, jobID string, locators []string, logger infra.Logger) []string {
	out := make([]string, len(locators))
	for i, locator := range locators {
		out[i] = locator

		key, err := storage.KeyFromLocator(locator)
		if err != nil {
			continue
		}
		data, err := o.blobs.Download(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Int("variant", i+1).Msg("fetch for upscale failed; keeping original")
			continue
		}
		upscaled, err := o.upscaler.Upscale(ctx, data, upscaleTarget, upscaleTarget)
		if err != nil {
			logger.Warn().Err(err).Int("variant", i+1).Msg("upscale failed; keeping original")
			continue
		}
		upKey := fmt.Sprintf("outputs/%s/%d_2x.jpg", jobID, i+1)
		upLocator, err := o.blobs.Upload(ctx, upKey, upscaled, "image/jpeg")
		if err != nil {
			logger.Warn().Err(err).Int("variant", i+1).Msg("store upscaled variant failed; keeping original")
			continue
		}
		out[i] = upLocator
	}
	return out
}

func (o *Orchestrator) archive(ctx context.Context, jobID string, locators []string) (string, error) {
	assets := make([]zip.Asset, 0, len(locators))
	for i, locator := range locators {
		key, err := storage.KeyFromLocator(locator)
		if err != nil {
			continue
		}
		data, err := o.blobs.Download(ctx, key)
		if err != nil {
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("image_%d.jpg", i+1),
			MIME:     "image/jpeg",
			Data:     data,
		})
	}
	packed, err := zip.ArchivePack(assets)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("results/%s/pack.zip", jobID)
	return o.blobs.Upload(ctx, key, packed, "application/zip")
}

// checkpoint reloads the record to honor out-of-band cancellation. When
// progress > 0 the record also advances to it (never backwards).
func (o *Orchestrator) checkpoint(ctx context.Context, jobID string, progress int) (aborted bool, err error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status == domain.JobStatusError {
		return true, nil
	}
	if progress > job.Progress {
		job.Progress = progress
		if err := o.store.Put(ctx, job); err != nil {
			return false, err
		}
	}
	return false, nil
}

// fail records the failure message verbatim unless the record already carries
// a terminal error (an explicit cancel wins).
func (o *Orchestrator) fail(ctx context.Context, jobID, message string) {
	_, err := o.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Status == domain.JobStatusError {
			return errAborted
		}
		j.Status = domain.JobStatusError
		j.Error = message
		return nil
	})
	if err != nil && !errors.Is(err, errAborted) {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to record job error")
	}
}

// Cancel marks a queued or running job as user-cancelled. Ownership is
// strict; the in-flight run observes the terminal state at its next
// checkpoint and stops.
func (o *Orchestrator) Cancel(ctx context.Context, jobID, owner string) (*domain.Job, error) {
	return o.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Owner != owner {
			return domain.ErrAccessDenied
		}
		if !j.Cancellable() {
			return fmt.Errorf("%w: job is %s", domain.ErrInvalidState, j.Status)
		}
		j.Status = domain.JobStatusError
		j.Error = CancelledMessage
		return nil
	})
}

// Retry resets a failed job and re-runs the pipeline from the stored
// normalized original.
func (o *Orchestrator) Retry(ctx context.Context, jobID, owner string) (*domain.Job, error) {
	job, err := o.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Owner != owner {
			return domain.ErrAccessDenied
		}
		if j.Status != domain.JobStatusError {
			return fmt.Errorf("%w: only failed jobs can be retried", domain.ErrInvalidState)
		}
		j.Status = domain.JobStatusQueued
		j.Progress = 0
		j.Images = nil
		j.ZipURL = ""
		j.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := o.Launch(job, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// CleanupStuck force-fails running jobs that have not progressed within the
// stuck timeout. Queued jobs are left alone: a long runner backlog is not a
// wedged execution. A non-empty owner restricts the sweep to that owner's
// jobs plus ownerless records; the in-process sweeper passes "" to cover all
// owners. Returns the ids it failed.
func (o *Orchestrator) CleanupStuck(ctx context.Context, owner string) ([]string, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := o.now().Add(-o.stuckTimeout)

	var failed []string
	for _, job := range all {
		if job.Status != domain.JobStatusRunning || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if owner != "" && job.Owner != "" && job.Owner != owner {
			continue
		}
		_, err := o.store.Update(ctx, job.ID, func(j *domain.Job) error {
			if j.Status != domain.JobStatusRunning {
				return errAborted
			}
			j.Status = domain.JobStatusError
			j.Error = StuckMessage
			return nil
		})
		if err != nil {
			if errors.Is(err, errAborted) {
				continue
			}
			return failed, err
		}
		failed = append(failed, job.ID)
		o.logger.Warn().Str("job_id", job.ID).Time("updated_at", job.UpdatedAt).Msg("force-failed stuck job")
	}
	return failed, nil
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
