// Package genai is a lightweight facade over the Gemini generateContent API
// for image editing. Without an API key (or when the remote call fails) it
// falls back to deterministic synthetic images so the rest of the pipeline
// stays fully exercised in local and CI environments.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shotpack/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client invokes the Gemini image-edit endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// EditRequest carries one source image plus the edit instruction.
type EditRequest struct {
	Prompt    string
	Image     []byte
	MIME      string
	Width     int
	Height    int
	RequestID string
	Slot      int
}

// ImageAsset is the normalized result returned by the client.
type ImageAsset struct {
	Data   []byte
	Format string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// EditImage sends the source image and prompt to Gemini and returns the
// edited image. Remote failures degrade to a deterministic synthetic asset
// rather than surfacing an error, keeping the pipeline operational when the
// upstream service misbehaves.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.apiKey == "" {
		return c.syntheticEdit(req), nil
	}

	asset, err := c.remoteEdit(ctx, req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("model", c.model).
			Str("request_id", req.RequestID).
			Msg("genai: remote image edit failed; falling back to synthetic asset")
		return c.syntheticEdit(req), nil
	}
	if asset == nil || len(asset.Data) == 0 {
		return c.syntheticEdit(req), nil
	}
	return asset, nil
}

func (c *Client) remoteEdit(ctx context.Context, req EditRequest) (*ImageAsset, error) {
	mime := req.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{
					MimeType: mime,
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(data) == 0 {
				continue
			}
			format := part.InlineData.MimeType
			if format == "" {
				format = "image/png"
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Int("slot", req.Slot).
				Msg("genai: received remote edited image")
			return &ImageAsset{Data: data, Format: format}, nil
		}
	}
	return nil, fmt.Errorf("no image content returned")
}

func (c *Client) syntheticEdit(req EditRequest) *ImageAsset {
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	seed := fmt.Sprintf("%s|%d|%s", req.RequestID, req.Slot, req.Prompt)
	data := RenderPlaceholder(width, height, seed)

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Int("slot", req.Slot).
		Msg("genai: generated synthetic edited image")

	return &ImageAsset{Data: data, Format: "image/jpeg"}
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

// RenderPlaceholder produces a deterministic JPEG for the given seed: a flat
// tinted field with a contrasting center block, enough to be visually
// distinguishable per variant while staying byte-stable across runs.
func RenderPlaceholder(width, height int, seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	base := color.RGBA{R: 128 + sum[0]/2, G: 128 + sum[1]/2, B: 128 + sum[2]/2, A: 255}
	accent := color.RGBA{R: sum[3], G: sum[4], B: sum[5], A: 255}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, base)
		}
	}
	x0, y0 := width/4, height/4
	for y := y0; y < y0+height/2; y++ {
		for x := x0; x < x0+width/2; x++ {
			img.SetRGBA(x, y, accent)
		}
	}

	buf := &bytes.Buffer{}
	_ = jpeg.Encode(buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}
