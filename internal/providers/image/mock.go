package image

import (
	"context"
	"fmt"
	"time"

	"shotpack/internal/providers/genai"
)

// MockProvider produces deterministic placeholder images without any remote
// calls. It is the default provider when no API key is configured and the
// workhorse for tests, where the optional latency keeps cancellation paths
// honest.
type MockProvider struct {
	// Latency is the artificial delay applied per call. Zero means immediate.
	Latency time.Duration
}

// Edit renders a placeholder keyed on the request identity so repeated runs
// yield identical bytes per slot.
func (p *MockProvider) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	seed := fmt.Sprintf("%s|%d|%s", req.RequestID, req.Slot, req.Prompt)
	data := genai.RenderPlaceholder(dimension(req.Width), dimension(req.Height), seed)
	return &Result{Data: data, Format: "image/jpeg"}, nil
}

// Upscale re-renders the placeholder at the requested target dimensions.
func (p *MockProvider) Upscale(ctx context.Context, data []byte, width, height int) ([]byte, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	seed := fmt.Sprintf("upscale|%d|%d|%d", len(data), width, height)
	return genai.RenderPlaceholder(dimension(width), dimension(height), seed), nil
}

func (p *MockProvider) wait(ctx context.Context) error {
	if p.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func dimension(v int) int {
	if v <= 0 {
		return 1024
	}
	return v
}
