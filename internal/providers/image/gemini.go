package image

import (
	"context"
	"fmt"

	"shotpack/internal/providers/genai"
)

// GeminiProvider adapts the genai client to the Provider contract.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider wraps an already configured genai client.
func NewGeminiProvider(client *genai.Client) (*GeminiProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return &GeminiProvider{client: client}, nil
}

// Edit delegates to the Gemini image edit endpoint.
func (p *GeminiProvider) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	asset, err := p.client.EditImage(ctx, genai.EditRequest{
		Prompt:    req.Prompt,
		Image:     req.SourceImage,
		MIME:      req.SourceMIME,
		Width:     req.Width,
		Height:    req.Height,
		RequestID: req.RequestID,
		Slot:      req.Slot,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Data: asset.Data, Format: asset.Format}, nil
}
