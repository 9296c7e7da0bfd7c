package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shotpack/internal/domain"
	"shotpack/internal/kv"
	imgprov "shotpack/internal/providers/image"
	"shotpack/internal/storage"
)

// flakyProvider fails deterministically per slot so partial-success and
// zero-success paths can be exercised.
type flakyProvider struct {
	failSlot func(slot int) bool
	calls    atomic.Int64
}

func (p *flakyProvider) Edit(ctx context.Context, req imgprov.EditRequest) (*imgprov.Result, error) {
	p.calls.Add(1)
	if p.failSlot != nil && p.failSlot(req.Slot) {
		return nil, errors.New("synthetic provider failure")
	}
	return &imgprov.Result{Data: []byte(fmt.Sprintf("variant-%d", req.Slot)), Format: "image/jpeg"}, nil
}

type testEnv struct {
	store        *Store
	blobs        storage.Store
	orchestrator *Orchestrator
}

func newTestEnv(t *testing.T, provider imgprov.Provider) *testEnv {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir(), "http://localhost:8080", "test-secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := NewStore(kv.NewMemoryStore())
	orchestrator := NewOrchestrator(Options{
		Store:        store,
		Blobs:        blobs,
		Provider:     provider,
		Logger:       zerolog.Nop(),
		BatchSize:    2,
		Budget:       time.Minute,
		BatchPause:   time.Millisecond,
		RetryBackoff: time.Millisecond,
	})
	return &testEnv{store: store, blobs: blobs, orchestrator: orchestrator}
}

func seedJob(t *testing.T, env *testEnv, upscale bool) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:        NewJobID(),
		Status:    domain.JobStatusQueued,
		Style:     domain.StyleMarble,
		Upscale:   upscale,
		Images:    []string{},
		Owner:     "owner-1",
		CreatedAt: time.Now().UTC(),
	}
	if err := env.store.Put(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func testUpload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode upload: %v", err)
	}
	return buf.Bytes()
}

func TestPipelineCompletesFullPack(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	job := seedJob(t, env, false)
	ctx := context.Background()

	env.orchestrator.run(ctx, job.ID, testUpload(t))

	got, err := env.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error=%q), want done", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Fatalf("progress = %d, want 100", got.Progress)
	}
	if len(got.Images) != domain.PackSize {
		t.Fatalf("images = %d, want %d", len(got.Images), domain.PackSize)
	}
	for i, locator := range got.Images {
		if !storage.IsLocator(locator) {
			t.Fatalf("image %d is not a storage locator: %q", i, locator)
		}
	}
	if !strings.HasPrefix(got.OriginalURL, "storage://uploads/") {
		t.Fatalf("originalUrl = %q", got.OriginalURL)
	}
	if got.ZipURL != fmt.Sprintf("storage://results/%s/pack.zip", job.ID) {
		t.Fatalf("zipUrl = %q", got.ZipURL)
	}

	// The archive holds one entry per produced variant.
	key, _ := storage.KeyFromLocator(got.ZipURL)
	packed, err := env.blobs.Download(ctx, key)
	if err != nil {
		t.Fatalf("download zip: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(packed), int64(len(packed)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != domain.PackSize {
		t.Fatalf("zip entries = %d, want %d", len(zr.File), domain.PackSize)
	}
	if zr.File[0].Name != "image_1.jpg" {
		t.Fatalf("first zip entry = %q", zr.File[0].Name)
	}
}

func TestPipelineUpscaleReplacesVariants(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	job := seedJob(t, env, true)
	ctx := context.Background()

	env.orchestrator.run(ctx, job.ID, testUpload(t))

	got, err := env.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error=%q), want done", got.Status, got.Error)
	}
	for i, locator := range got.Images {
		if !strings.HasSuffix(locator, "_2x.jpg") {
			t.Fatalf("image %d not upscaled: %q", i, locator)
		}
	}
}

func TestPipelinePartialSuccess(t *testing.T) {
	provider := &flakyProvider{failSlot: func(slot int) bool { return slot != 0 }}
	env := newTestEnv(t, provider)
	job := seedJob(t, env, false)
	ctx := context.Background()

	env.orchestrator.run(ctx, job.ID, testUpload(t))

	got, err := env.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error=%q), want done with partial pack", got.Status, got.Error)
	}
	if len(got.Images) != 1 {
		t.Fatalf("images = %v, want the single surviving variant", got.Images)
	}
	// Each failing slot is attempted twice (one retry).
	wantCalls := int64(1 + (domain.PackSize-1)*2)
	if calls := provider.calls.Load(); calls != wantCalls {
		t.Fatalf("provider calls = %d, want %d", calls, wantCalls)
	}
}

func TestPipelineZeroSuccessFails(t *testing.T) {
	provider := &flakyProvider{failSlot: func(int) bool { return true }}
	env := newTestEnv(t, provider)
	job := seedJob(t, env, false)
	ctx := context.Background()

	env.orchestrator.run(ctx, job.ID, testUpload(t))

	got, err := env.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.Error != "No images were generated successfully" {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestPipelineUndecodableInputFails(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	job := seedJob(t, env, false)
	ctx := context.Background()

	env.orchestrator.run(ctx, job.ID, []byte("not an image"))

	got, _ := env.store.Get(ctx, job.ID)
	if got.Status != domain.JobStatusError || got.Error == "" {
		t.Fatalf("job = %s error=%q, want error with message", got.Status, got.Error)
	}
}

func TestCancelOwnershipAndState(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	job := seedJob(t, env, false)
	ctx := context.Background()

	if _, err := env.orchestrator.Cancel(ctx, job.ID, "someone-else"); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("Cancel by stranger = %v, want ErrAccessDenied", err)
	}

	cancelled, err := env.orchestrator.Cancel(ctx, job.ID, "owner-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.JobStatusError || cancelled.Error != CancelledMessage {
		t.Fatalf("cancelled job = %s error=%q", cancelled.Status, cancelled.Error)
	}

	if _, err := env.orchestrator.Cancel(ctx, job.ID, "owner-1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("Cancel of terminal job = %v, want ErrInvalidState", err)
	}
	if _, err := env.orchestrator.Cancel(ctx, "job-unknown", "owner-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Cancel of unknown job = %v, want ErrNotFound", err)
	}
}

func TestCancelledJobIsNotOverwritten(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	job := seedJob(t, env, false)
	ctx := context.Background()

	if _, err := env.orchestrator.Cancel(ctx, job.ID, "owner-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// The run observes the terminal record at its first checkpoint and stops
	// without touching the outcome.
	env.orchestrator.run(ctx, job.ID, testUpload(t))

	got, _ := env.store.Get(ctx, job.ID)
	if got.Status != domain.JobStatusError || got.Error != CancelledMessage {
		t.Fatalf("cancelled job overwritten: %s error=%q", got.Status, got.Error)
	}
	if len(got.Images) != 0 {
		t.Fatalf("cancelled job accumulated images: %v", got.Images)
	}
}

func TestRetryRerunsFromStoredOriginal(t *testing.T) {
	provider := &flakyProvider{failSlot: func(int) bool { return true }}
	env := newTestEnv(t, provider)
	job := seedJob(t, env, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.orchestrator.run(ctx, job.ID, testUpload(t))
	failed, _ := env.store.Get(ctx, job.ID)
	if failed.Status != domain.JobStatusError || failed.OriginalURL == "" {
		t.Fatalf("setup: job = %s originalUrl=%q", failed.Status, failed.OriginalURL)
	}

	runner := NewRunner(1, 4, zerolog.Nop())
	runner.Start(ctx)
	defer runner.Stop()
	env.orchestrator.runner = runner

	// The provider recovers; retry must succeed from the stored original.
	provider.failSlot = func(int) bool { return false }

	retried, err := env.orchestrator.Retry(ctx, job.ID, "owner-1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != domain.JobStatusQueued || retried.Progress != 0 || retried.Error != "" {
		t.Fatalf("retried job not reset: %+v", retried)
	}

	got := awaitTerminal(t, env.store, job.ID, 5*time.Second)
	if got.Status != domain.JobStatusDone {
		t.Fatalf("retried job = %s error=%q, want done", got.Status, got.Error)
	}
	if len(got.Images) != domain.PackSize {
		t.Fatalf("retried images = %d, want %d", len(got.Images), domain.PackSize)
	}

	if _, err := env.orchestrator.Retry(ctx, job.ID, "owner-1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("Retry of done job = %v, want ErrInvalidState", err)
	}
}

func TestRetryWithoutOriginalFailsFast(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	job := seedJob(t, env, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := env.store.Update(ctx, job.ID, func(j *domain.Job) error {
		j.Status = domain.JobStatusError
		j.Error = "boom"
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed job: %v", err)
	}

	runner := NewRunner(1, 4, zerolog.Nop())
	runner.Start(ctx)
	defer runner.Stop()
	env.orchestrator.runner = runner

	if _, err := env.orchestrator.Retry(ctx, job.ID, "owner-1"); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	got := awaitTerminal(t, env.store, job.ID, 5*time.Second)
	if got.Status != domain.JobStatusError || !strings.Contains(got.Error, "no stored original") {
		t.Fatalf("job = %s error=%q, want fast failure", got.Status, got.Error)
	}
}

func TestCleanupStuck(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	ctx := context.Background()
	base := time.Now().UTC()

	mkJob := func(status domain.JobStatus, age time.Duration, owner string) string {
		job := seedJob(t, env, false)
		env.store.now = func() time.Time { return base.Add(-age) }
		_, err := env.store.Update(ctx, job.ID, func(j *domain.Job) error {
			j.Status = status
			j.Owner = owner
			return nil
		})
		env.store.now = time.Now
		if err != nil {
			t.Fatalf("seed %s job: %v", status, err)
		}
		return job.ID
	}

	stuckID := mkJob(domain.JobStatusRunning, 16*time.Minute, "owner-1")
	freshID := mkJob(domain.JobStatusRunning, 14*time.Minute, "owner-1")
	doneID := mkJob(domain.JobStatusDone, 20*time.Minute, "owner-1")
	// A stale queued job is a backlog, not a wedged run.
	queuedID := mkJob(domain.JobStatusQueued, 16*time.Minute, "owner-1")

	env.orchestrator.now = func() time.Time { return base }

	failed, err := env.orchestrator.CleanupStuck(ctx, "")
	if err != nil {
		t.Fatalf("CleanupStuck: %v", err)
	}
	if len(failed) != 1 || failed[0] != stuckID {
		t.Fatalf("CleanupStuck = %v, want only %s", failed, stuckID)
	}

	stuck, _ := env.store.Get(ctx, stuckID)
	if stuck.Status != domain.JobStatusError || stuck.Error != StuckMessage {
		t.Fatalf("stuck job = %s error=%q", stuck.Status, stuck.Error)
	}
	fresh, _ := env.store.Get(ctx, freshID)
	if fresh.Status != domain.JobStatusRunning {
		t.Fatalf("fresh job swept: %s", fresh.Status)
	}
	done, _ := env.store.Get(ctx, doneID)
	if done.Status != domain.JobStatusDone {
		t.Fatalf("done job swept: %s", done.Status)
	}
	queued, _ := env.store.Get(ctx, queuedID)
	if queued.Status != domain.JobStatusQueued {
		t.Fatalf("queued job swept: %s", queued.Status)
	}
}

func TestCleanupStuckOwnerScope(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	ctx := context.Background()
	base := time.Now().UTC()

	mkStuck := func(owner string) string {
		job := seedJob(t, env, false)
		env.store.now = func() time.Time { return base.Add(-16 * time.Minute) }
		_, err := env.store.Update(ctx, job.ID, func(j *domain.Job) error {
			j.Status = domain.JobStatusRunning
			j.Owner = owner
			return nil
		})
		env.store.now = time.Now
		if err != nil {
			t.Fatalf("seed stuck job: %v", err)
		}
		return job.ID
	}

	mineID := mkStuck("owner-1")
	otherID := mkStuck("owner-2")
	legacyID := mkStuck("")

	env.orchestrator.now = func() time.Time { return base }

	failed, err := env.orchestrator.CleanupStuck(ctx, "owner-1")
	if err != nil {
		t.Fatalf("CleanupStuck: %v", err)
	}
	swept := map[string]bool{}
	for _, id := range failed {
		swept[id] = true
	}
	if !swept[mineID] || !swept[legacyID] || swept[otherID] || len(failed) != 2 {
		t.Fatalf("CleanupStuck(owner-1) = %v, want %s and %s only", failed, mineID, legacyID)
	}

	other, _ := env.store.Get(ctx, otherID)
	if other.Status != domain.JobStatusRunning {
		t.Fatalf("foreign job swept: %s", other.Status)
	}
}

func TestStoreListByOwner(t *testing.T) {
	env := newTestEnv(t, &imgprov.MockProvider{})
	ctx := context.Background()

	first := seedJob(t, env, false)
	second := seedJob(t, env, false)
	other := seedJob(t, env, false)
	_, err := env.store.Update(ctx, other.ID, func(j *domain.Job) error {
		j.Owner = "owner-2"
		return nil
	})
	if err != nil {
		t.Fatalf("reassign owner: %v", err)
	}

	mine, err := env.store.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListByOwner = %d jobs, want 2", len(mine))
	}
	for _, job := range mine {
		if job.ID != first.ID && job.ID != second.ID {
			t.Fatalf("unexpected job in listing: %s", job.ID)
		}
	}
}

func awaitTerminal(t *testing.T, store *Store, id string, timeout time.Duration) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		if err == nil && job.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", id, timeout)
	return nil
}
