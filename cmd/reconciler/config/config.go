// Package config turns viper settings into the configuration structs of the
// reconciliation components.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bank-reconciliation-service/internal/learning"
	"bank-reconciliation-service/internal/llm"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/internal/vectors"
	"bank-reconciliation-service/pkg/logger"
)

// Configuration keys. Each is also read from RECONCILER_<KEY> with dashes
// turned into underscores.
const (
	KeyAnthropicAPIKey  = "anthropic-api-key"
	KeyAnthropicBaseURL = "anthropic-base-url"
	KeyLLMModel         = "llm-model"
	KeyLLMTimeout       = "llm-timeout"
	KeyLLMRate          = "llm-rate"
	KeyNoLLM            = "no-llm"
	KeyOpenAIAPIKey     = "openai-api-key"
	KeyQdrantHost       = "qdrant-host"
	KeyQdrantPort       = "qdrant-port"
	KeyQdrantAPIKey     = "qdrant-api-key"
	KeyBoostTimeout     = "boost-timeout"
	KeyDatabase         = "database"
	KeyEntitiesFile     = "entities-file"
	KeyWorkers          = "workers"
	KeyLedgerCacheTTL   = "ledger-cache-ttl"
	KeyLogLevel         = "log-level"
	KeyLogFormat        = "log-format"
	KeyLogFile          = "log-file"
)

// EnvPrefix is the prefix of environment overrides
const EnvPrefix = "RECONCILER"

// providerEnv lists the unprefixed variables the upstream SDKs use, so an
// existing .env works unchanged
var providerEnv = map[string]string{
	KeyAnthropicAPIKey: "ANTHROPIC_API_KEY",
	KeyOpenAIAPIKey:    "OPENAI_API_KEY",
	KeyQdrantHost:      "QDRANT_HOST",
	KeyQdrantPort:      "QDRANT_PORT",
	KeyQdrantAPIKey:    "QDRANT_API_KEY",
}

// Settings are the resolved runtime settings of the CLI
type Settings struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	LLMModel         string
	LLMTimeout       time.Duration
	LLMRate          float64
	NoLLM            bool

	OpenAIAPIKey string
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	BoostTimeout time.Duration

	Database       string
	EntitiesFile   string
	Workers        int
	LedgerCacheTTL time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

// SetDefaults registers defaults and environment bindings on v
func SetDefaults(v *viper.Viper) {
	llmDefaults := llm.DefaultConfig()
	qdrantDefaults := vectors.DefaultConfig()

	v.SetDefault(KeyAnthropicBaseURL, llmDefaults.BaseURL)
	v.SetDefault(KeyLLMModel, llmDefaults.Model)
	v.SetDefault(KeyLLMTimeout, llmDefaults.Timeout)
	v.SetDefault(KeyLLMRate, llmDefaults.RequestsPerSecond)
	v.SetDefault(KeyQdrantHost, qdrantDefaults.Host)
	v.SetDefault(KeyQdrantPort, qdrantDefaults.Port)
	v.SetDefault(KeyBoostTimeout, learning.DefaultConfig().Timeout)
	v.SetDefault(KeyDatabase, "reconciler.db")
	v.SetDefault(KeyWorkers, reconciler.DefaultConfig().Workers)
	v.SetDefault(KeyLedgerCacheTTL, reconciler.DefaultLedgerCacheTTL)
	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range providerEnv {
		_ = v.BindEnv(key, envName(key), env)
	}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Load reads the settings from v and validates them
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		AnthropicAPIKey:  strings.TrimSpace(v.GetString(KeyAnthropicAPIKey)),
		AnthropicBaseURL: v.GetString(KeyAnthropicBaseURL),
		LLMModel:         v.GetString(KeyLLMModel),
		LLMTimeout:       v.GetDuration(KeyLLMTimeout),
		LLMRate:          v.GetFloat64(KeyLLMRate),
		NoLLM:            v.GetBool(KeyNoLLM),
		OpenAIAPIKey:     strings.TrimSpace(v.GetString(KeyOpenAIAPIKey)),
		QdrantHost:       v.GetString(KeyQdrantHost),
		QdrantPort:       v.GetInt(KeyQdrantPort),
		QdrantAPIKey:     v.GetString(KeyQdrantAPIKey),
		BoostTimeout:     v.GetDuration(KeyBoostTimeout),
		Database:         v.GetString(KeyDatabase),
		EntitiesFile:     v.GetString(KeyEntitiesFile),
		Workers:          v.GetInt(KeyWorkers),
		LedgerCacheTTL:   v.GetDuration(KeyLedgerCacheTTL),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
		LogFile:          v.GetString(KeyLogFile),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the settings are usable
func (s *Settings) Validate() error {
	if s.Workers <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyWorkers, s.Workers)
	}
	if s.LLMTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyLLMTimeout, s.LLMTimeout)
	}
	if s.LLMRate <= 0 {
		return fmt.Errorf("%s must be positive, got %g", KeyLLMRate, s.LLMRate)
	}
	if s.BoostTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyBoostTimeout, s.BoostTimeout)
	}
	if s.LedgerCacheTTL < 0 {
		return fmt.Errorf("%s cannot be negative", KeyLedgerCacheTTL)
	}
	if s.QdrantPort <= 0 || s.QdrantPort > 65535 {
		return fmt.Errorf("%s must be a valid port, got %d", KeyQdrantPort, s.QdrantPort)
	}
	return s.LoggerConfig().Validate()
}

// LLMEnabled reports whether the inference tier can run
func (s *Settings) LLMEnabled() bool {
	return !s.NoLLM && s.AnthropicAPIKey != ""
}

// SimilarityEnabled reports whether pattern boosting can run. Embeddings need
// an OpenAI key; Qdrant itself may be unauthenticated.
func (s *Settings) SimilarityEnabled() bool {
	return s.OpenAIAPIKey != "" && s.QdrantHost != ""
}

// LLMClientConfig returns the Anthropic client settings
func (s *Settings) LLMClientConfig() llm.Config {
	cfg := llm.DefaultConfig()
	cfg.APIKey = s.AnthropicAPIKey
	cfg.BaseURL = s.AnthropicBaseURL
	cfg.Model = s.LLMModel
	cfg.Timeout = s.LLMTimeout
	cfg.RequestsPerSecond = s.LLMRate
	return cfg
}

// LLMMatcherConfig returns the inference tier settings
func (s *Settings) LLMMatcherConfig() *matcher.LLMConfig {
	cfg := matcher.DefaultLLMConfig()
	cfg.Enabled = s.LLMEnabled()
	cfg.Timeout = s.LLMTimeout
	return cfg
}

// QdrantConfig returns the similarity store settings
func (s *Settings) QdrantConfig() vectors.Config {
	cfg := vectors.DefaultConfig()
	cfg.Host = s.QdrantHost
	cfg.Port = s.QdrantPort
	cfg.APIKey = s.QdrantAPIKey
	return cfg
}

// EmbedderConfig returns the embeddings settings
func (s *Settings) EmbedderConfig() vectors.EmbedderConfig {
	return vectors.EmbedderConfig{APIKey: s.OpenAIAPIKey}
}

// LearningConfig returns the similarity lookup settings
func (s *Settings) LearningConfig() learning.Config {
	cfg := learning.DefaultConfig()
	cfg.Timeout = s.BoostTimeout
	return cfg
}

// ReconcilerConfig returns the batch settings
func (s *Settings) ReconcilerConfig() *reconciler.Config {
	cfg := reconciler.DefaultConfig()
	cfg.Workers = s.Workers
	return cfg
}

// LoggerConfig returns the logging settings. A log file switches the output
// to that file.
func (s *Settings) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if s.LogLevel != "" {
		cfg.Level = logger.Level(strings.ToLower(s.LogLevel))
	}
	if s.LogFormat != "" {
		cfg.Format = logger.Format(strings.ToLower(s.LogFormat))
	}
	if s.LogFile != "" {
		cfg.Output = logger.FileOutput
		cfg.File = s.LogFile
	}
	return cfg
}

// Registry loads the entity registry file, or the built-in group when none
// is configured
func (s *Settings) Registry() (*matcher.EntityRegistry, error) {
	if s.EntitiesFile == "" {
		return matcher.DefaultEntityRegistry(), nil
	}
	return matcher.LoadEntityRegistry(s.EntitiesFile)
}

// CreateTransactionParserConfig creates the bank transaction parser settings
func CreateTransactionParserConfig(delimiter, currency, entity string, profileID int64) (*parsers.TransactionParserConfig, error) {
	cfg := parsers.DefaultTransactionParserConfig()
	d, err := ParseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	cfg.Parse.Delimiter = d
	cfg.DefaultCurrency = strings.ToUpper(currency)
	cfg.DefaultEntityName = entity
	cfg.DefaultProfileID = profileID
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction parser config: %w", err)
	}
	return cfg, nil
}

// CreateLedgerParserConfig creates the ledger export parser settings
func CreateLedgerParserConfig(delimiter, currency string, includeReconciled bool) (*parsers.LedgerParserConfig, error) {
	cfg := parsers.DefaultLedgerParserConfig()
	d, err := ParseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	cfg.Parse.Delimiter = d
	cfg.DefaultCurrency = strings.ToUpper(currency)
	cfg.IncludeReconciled = includeReconciled
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger parser config: %w", err)
	}
	return cfg, nil
}

// ParseDelimiter accepts a single character or the names "tab" and "semicolon"
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", ",", "comma":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	case "semicolon":
		return ';', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, includeReasons, unmatchedOnly bool) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(strings.ToLower(format))
	cfg.IncludeReasons = includeReasons
	if unmatchedOnly {
		cfg.IncludeMatched = false
	}

	switch cfg.Format {
	case reporter.FormatJSON:
		// Reasons are always present in JSON
		cfg.IncludeReasons = true
	case reporter.FormatCSV, reporter.FormatXLSX:
		cfg.UseColors = false
		cfg.SortByConfidence = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDate parses a YYYY-MM-DD flag value. An empty value yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return t, nil
}

// EndOfDay moves a date to its last second so the whole day is included
func EndOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Second)
}

// ResolveSubsidiary picks the ledger subsidiary of an entity: an explicit
// override first, then the registry entry
func ResolveSubsidiary(registry *matcher.EntityRegistry, overrides map[string]string, entityName string) (string, error) {
	for name, id := range overrides {
		if strings.EqualFold(strings.TrimSpace(name), entityName) && id != "" {
			return id, nil
		}
	}
	if entity, ok := registry.LookupName(entityName); ok && entity.SubsidiaryID != "" {
		return entity.SubsidiaryID, nil
	}

	msg := fmt.Sprintf("no ledger subsidiary configured for entity %q", entityName)
	if _, ok := registry.LookupName(entityName); !ok {
		if closest, distance, found := registry.Closest(entityName); found && distance <= 3 {
			msg += fmt.Sprintf(" (did you mean %q?)", closest.Name)
		}
	}
	return "", fmt.Errorf("%s", msg)
}
