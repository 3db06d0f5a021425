package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szarkamarci/modularai/internal/utils"
)

// EmbedderClient invokes an Ollama-compatible embeddings endpoint. The model
// version passed per call selects which embedder serves the request; the
// pipeline never hardcodes a model name.
type EmbedderClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewEmbedderClient constructs a client for the configured embedder endpoint.
func NewEmbedderClient(endpoint string, timeout time.Duration) *EmbedderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmbedderClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed returns the embedding vector for text under the given model version.
func (c *EmbedderClient) Embed(ctx context.Context, text, modelVersion string) ([]float32, error) {
	const op = "embedder.Embed"
	if c == nil || c.endpoint == "" {
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op, "embedder endpoint not configured", nil)
	}

	payload, err := json.Marshal(map[string]string{
		"model":  modelVersion,
		"prompt": text,
	})
	if err != nil {
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.NewAppError(utils.KindTimeout, op, "embedder request timed out", err)
		}
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op, "embedder request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op,
			fmt.Sprintf("embedder returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}

	var response struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op, "decode embedder response", err)
	}
	if len(response.Embedding) == 0 {
		return nil, utils.NewAppError(utils.KindEmbedderUnavailable, op, "embedder returned empty vector", nil)
	}
	return response.Embedding, nil
}

// EmbedBatch embeds multiple texts concurrently with bounded parallelism.
// Returns nil (not an error) for empty input.
func (c *EmbedderClient) EmbedBatch(ctx context.Context, texts []string, modelVersion string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := c.Embed(gCtx, text, modelVersion)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
