package vectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bank-reconciliation-service/pkg/errors"
)

const (
	defaultEmbeddingURL   = "https://api.openai.com/v1/embeddings"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig holds the OpenAI embeddings settings
type EmbedderConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	URL               string        `mapstructure:"url"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	httpClient *http.Client
	config     EmbedderConfig
	limiter    *rate.Limiter
}

// NewOpenAIEmbedder creates an embedder. A missing key is reported by Embed,
// not here, so similarity search degrades instead of failing startup.
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	if cfg.URL == "" {
		cfg.URL = defaultEmbeddingURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	return &OpenAIEmbedder{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding of text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(e.config.APIKey) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "openai-api-key", "", nil)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, errors.NetworkError(errors.CodeTimeout, e.config.URL, err)
	}

	body, err := json.Marshal(map[string]string{
		"model": e.config.Model,
		"input": text,
	})
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "build embedding request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, e.config.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, e.config.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NetworkError(errors.CodeUnexpectedResponse, e.config.URL,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.NetworkError(errors.CodeUnexpectedResponse, e.config.URL, err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, errors.NetworkError(errors.CodeUnexpectedResponse, e.config.URL, fmt.Errorf("no embedding in response"))
	}
	return decoded.Data[0].Embedding, nil
}
