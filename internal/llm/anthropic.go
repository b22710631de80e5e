// Package llm is the HTTP client for the Anthropic Messages API used by the
// inference matching tier.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-haiku-20240307"
	anthropicVersion = "2023-06-01"
)

// Config holds the client settings
type Config struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond and Burst bound the outgoing request rate
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	// CacheTTL keeps identical prompts from being sent twice; zero disables the cache
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DefaultConfig returns the production settings without a key
func DefaultConfig() Config {
	return Config{
		BaseURL:           defaultBaseURL,
		Model:             defaultModel,
		MaxTokens:         500,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		CacheTTL:          time.Hour,
	}
}

// AnthropicClient sends prompts to the Messages API
type AnthropicClient struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	cache      *cache.Cache
	logger     logger.Logger
}

// NewAnthropicClient creates a client. Unset fields take their defaults.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "llm.api_key", "", nil)
	}

	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}

	client := &AnthropicClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger.GetGlobalLogger().WithComponent("anthropic_client"),
	}
	if cfg.CacheTTL > 0 {
		client.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return client, nil
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends one system and user prompt and returns the text of the first
// content block. Identical prompts are served from the cache.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key := promptKey(c.config.Model, systemPrompt, userPrompt)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug("LLM reply served from cache")
			return cached.(string), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.NetworkError(errors.CodeTimeout, c.endpoint(), err)
	}

	body, err := json.Marshal(messageRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return "", errors.InternalError(errors.CodeUnexpectedError, "encode llm request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", errors.InternalError(errors.CodeUnexpectedError, "build llm request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NetworkError(errors.CodeConnectionFailed, c.endpoint(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NetworkError(errors.CodeConnectionFailed, c.endpoint(), err)
	}
	if resp.StatusCode != http.StatusOK {
		code := errors.CodeUnexpectedResponse
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			code = errors.CodeServiceUnavailable
		}
		return "", errors.NetworkError(code, c.endpoint(),
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var decoded messageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", errors.NetworkError(errors.CodeUnexpectedResponse, c.endpoint(), err)
	}
	if len(decoded.Content) == 0 {
		return "", errors.NetworkError(errors.CodeUnexpectedResponse, c.endpoint(), fmt.Errorf("no content in response"))
	}

	c.logger.WithFields(logger.Fields{
		"model":         c.config.Model,
		"input_tokens":  decoded.Usage.InputTokens,
		"output_tokens": decoded.Usage.OutputTokens,
		"duration":      time.Since(start),
	}).Debug("LLM call completed")

	text := decoded.Content[0].Text
	if c.cache != nil {
		c.cache.Set(key, text, cache.DefaultExpiration)
	}
	return text, nil
}

func (c *AnthropicClient) endpoint() string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/v1/messages"
}

func promptKey(model, systemPrompt, userPrompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
