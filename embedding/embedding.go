// Package embedding provides the embedding client used for semantic routing
// and the semantic cache tier.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// Embedder turns text into a vector. The pipeline treats failures as
// non-fatal: a request without an embedding skips semantic routing.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config configures the OpenAI-shaped embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// Client calls an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "embedding")),
	}
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedText embeds a single input.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "embedding provider returned no vectors")
	}
	return vectors[0], nil
}

// Embed embeds a batch of inputs, returned in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{
		Input:      inputs,
		Model:      c.cfg.Model,
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode embeddings request").WithCause(err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to build embeddings request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embedding request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read embeddings response").WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return nil, c.mapError(resp.StatusCode, body)
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embeddings response is not valid JSON").WithCause(err)
	}

	out := make([][]float32, len(inputs))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	for i, v := range out {
		if v == nil {
			c.logger.Warn("embedding missing for input", zap.Int("index", i))
			return nil, types.NewError(types.ErrUpstreamError, "embedding provider returned an incomplete batch")
		}
	}
	return out, nil
}

func (c *Client) mapError(status int, body []byte) *types.Error {
	code := types.ErrUpstreamError
	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return types.NewError(code, "embedding provider error: "+msg).
		WithHTTPStatus(status).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}
