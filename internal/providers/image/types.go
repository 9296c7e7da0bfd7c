// Package image defines the pluggable generation capability the pipeline
// drives: given a source image and a prompt, return a new image. Providers
// must tolerate being swapped for the deterministic simulator in tests.
package image

import "context"

// EditRequest describes one variant generation call.
type EditRequest struct {
	SourceImage []byte
	SourceMIME  string
	Prompt      string
	Width       int
	Height      int
	RequestID   string
	Slot        int
}

// Result is the produced image.
type Result struct {
	Data   []byte
	Format string
}

// Provider is the minimal generation contract.
type Provider interface {
	Edit(ctx context.Context, req EditRequest) (*Result, error)
}

// Upscaler is the optional enlargement capability. Providers that do not
// implement it leave variants at generation resolution.
type Upscaler interface {
	Upscale(ctx context.Context, data []byte, width, height int) ([]byte, error)
}
