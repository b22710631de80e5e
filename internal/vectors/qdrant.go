// Package vectors stores approved transactions as embeddings in Qdrant and
// finds previously approved transactions that resemble a new one.
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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

const (
	// CollectionName is the Qdrant collection holding approved transactions
	CollectionName = "transaction_patterns"
	// VectorSize matches text-embedding-3-small
	VectorSize = 1536
)

// Config holds the Qdrant connection settings
type Config struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// DefaultConfig returns settings for a local Qdrant
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              6333,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 20,
	}
}

// TransactionPattern is an approved transaction as stored in the collection
type TransactionPattern struct {
	ID               uuid.UUID       `json:"-"`
	TransactionID    string          `json:"wise_transaction_id"`
	EntityName       string          `json:"entity_name"`
	TransactionType  string          `json:"transaction_type"`
	Counterparty     string          `json:"counterparty,omitempty"`
	Description      string          `json:"description,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	MatchedTo        string          `json:"matched_to"`
	MatchType        string          `json:"match_type"`
	ApprovedAt       time.Time       `json:"approved_at"`
}

// SimilarPattern is a search hit with its cosine similarity
type SimilarPattern struct {
	Pattern TransactionPattern
	Score   float64
}

// Client talks to the Qdrant REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	embedder   Embedder
	limiter    *rate.Limiter
	logger     logger.Logger
	now        func() time.Time
}

// NewClient creates a client. The embedder vectorises transactions for both
// storage and search.
func NewClient(cfg Config, embedder Embedder) *Client {
	defaults := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}

	baseURL := cfg.Host
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		config:     cfg,
		embedder:   embedder,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     logger.GetGlobalLogger().WithComponent("vector_client"),
		now:        time.Now,
	}
}

// EmbeddingText is the text embedded for a transaction
func EmbeddingText(tx *models.Transaction) string {
	var parts []string
	if tx.Description != "" {
		parts = append(parts, tx.Description)
	}
	if tx.CounterpartyName != "" {
		parts = append(parts, "counterparty: "+tx.CounterpartyName)
	}
	if tx.PaymentReference != "" {
		parts = append(parts, "reference: "+tx.PaymentReference)
	}
	parts = append(parts, "type: "+tx.Kind)
	parts = append(parts, fmt.Sprintf("amount: %s %s", tx.Amount.String(), tx.Currency))
	return strings.Join(parts, " | ")
}

// EnsureCollection creates the collection when it does not exist yet
func (c *Client) EnsureCollection(ctx context.Context) error {
	path := "/collections/" + CollectionName
	status, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return errors.NetworkError(errors.CodeUnexpectedResponse, c.baseURL+path, fmt.Errorf("status %d", status))
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     VectorSize,
			"distance": "Cosine",
		},
	}
	status, raw, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.NetworkError(errors.CodeUnexpectedResponse, c.baseURL+path, fmt.Errorf("status %d: %s", status, raw))
	}
	c.logger.WithField("collection", CollectionName).Info("Created Qdrant collection")
	return nil
}

// StorePattern embeds an approved transaction and stores it with the ledger
// transaction it was matched to
func (c *Client) StorePattern(ctx context.Context, tx *models.Transaction, matchedTo, matchType string) (uuid.UUID, error) {
	embedding, err := c.embedder.Embed(ctx, EmbeddingText(tx))
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	pattern := TransactionPattern{
		ID:               id,
		TransactionID:    tx.ID,
		EntityName:       tx.EntityName,
		TransactionType:  tx.Kind,
		Counterparty:     tx.CounterpartyName,
		Description:      tx.Description,
		PaymentReference: tx.PaymentReference,
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		MatchedTo:        matchedTo,
		MatchType:        matchType,
		ApprovedAt:       c.now().UTC(),
	}

	path := "/collections/" + CollectionName + "/points"
	body := map[string]any{
		"points": []map[string]any{{
			"id":      id.String(),
			"vector":  embedding,
			"payload": pattern,
		}},
	}
	status, raw, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return uuid.Nil, err
	}
	if status != http.StatusOK {
		return uuid.Nil, errors.NetworkError(errors.CodeUnexpectedResponse, c.baseURL+path, fmt.Errorf("status %d: %s", status, raw))
	}

	c.logger.WithFields(logger.Fields{
		"pattern_id":     id,
		"transaction_id": tx.ID,
	}).Info("Stored transaction pattern")
	return id, nil
}

type searchResponse struct {
	Result []struct {
		ID      string             `json:"id"`
		Score   float64            `json:"score"`
		Payload TransactionPattern `json:"payload"`
	} `json:"result"`
}

// FindSimilar returns stored approvals whose similarity to tx is at least minScore
func (c *Client) FindSimilar(ctx context.Context, tx *models.Transaction, minScore float64, limit int) ([]SimilarPattern, error) {
	embedding, err := c.embedder.Embed(ctx, EmbeddingText(tx))
	if err != nil {
		return nil, err
	}

	path := "/collections/" + CollectionName + "/points/search"
	body := map[string]any{
		"vector":          embedding,
		"limit":           limit,
		"score_threshold": minScore,
		"with_payload":    true,
	}
	status, raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.NetworkError(errors.CodeUnexpectedResponse, c.baseURL+path, fmt.Errorf("status %d: %s", status, raw))
	}

	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.NetworkError(errors.CodeUnexpectedResponse, c.baseURL+path, err)
	}

	results := make([]SimilarPattern, 0, len(decoded.Result))
	for _, hit := range decoded.Result {
		pattern := hit.Payload
		if id, err := uuid.Parse(hit.ID); err == nil {
			pattern.ID = id
		}
		results = append(results, SimilarPattern{Pattern: pattern, Score: hit.Score})
	}
	return results, nil
}

// DeletePattern removes a stored pattern and reports whether Qdrant accepted it
func (c *Client) DeletePattern(ctx context.Context, id uuid.UUID) (bool, error) {
	path := "/collections/" + CollectionName + "/points/delete"
	status, _, err := c.do(ctx, http.MethodPost, path, map[string]any{"points": []string{id.String()}})
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	endpoint := c.baseURL + path
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, errors.NetworkError(errors.CodeTimeout, endpoint, err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errors.InternalError(errors.CodeUnexpectedError, "encode qdrant request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, errors.InternalError(errors.CodeUnexpectedError, "build qdrant request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	return resp.StatusCode, raw, nil
}
