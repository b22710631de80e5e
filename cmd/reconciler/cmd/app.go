package cmd

import (
	"context"

	"github.com/spf13/viper"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/internal/learning"
	"bank-reconciliation-service/internal/llm"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/storage"
	"bank-reconciliation-service/internal/vectors"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// app holds the components shared by the commands of one invocation
type app struct {
	settings *config.Settings
	registry *matcher.EntityRegistry
	store    *storage.Store
	learner  *learning.PatternLearner
	logger   logger.Logger
}

// loadSettings reads the validated settings from the global viper instance
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err).
			WithSuggestion("Check the configuration file, RECONCILER_* variables and flags")
	}
	return settings, nil
}

// newApp loads the settings and the entity registry. The database is opened
// only when withStore is set, so read-only commands work without one.
func newApp(ctx context.Context, withStore bool) (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	registry, err := settings.Registry()
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyEntitiesFile, settings.EntitiesFile, err).
			WithSuggestion("Fix the entity registry file or unset entities-file to use the built-in group")
	}

	a := &app{
		settings: settings,
		registry: registry,
		logger:   logger.GetGlobalLogger().WithComponent("cli"),
	}

	if withStore {
		a.store, err = storage.Open(ctx, settings.Database)
		if err != nil {
			return nil, err
		}
	}
	a.learner = a.newLearner()
	return a, nil
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// newLearner wires the similarity store and the pattern store into a learner.
// Missing credentials leave the corresponding side disabled.
func (a *app) newLearner() *learning.PatternLearner {
	var store learning.SimilarityStore
	if a.settings.SimilarityEnabled() {
		embedder := vectors.NewOpenAIEmbedder(a.settings.EmbedderConfig())
		store = vectors.NewClient(a.settings.QdrantConfig(), embedder)
	} else {
		a.logger.Debug("Similarity search disabled: no embeddings key configured")
	}

	var submitter learning.PatternSubmitter
	if a.store != nil {
		submitter = a.store
	}
	return learning.NewPatternLearner(store, submitter, a.settings.LearningConfig())
}

// newLLMMatcher returns the inference tier, or nil when it is disabled
func (a *app) newLLMMatcher() (*matcher.LLMMatcher, error) {
	if !a.settings.LLMEnabled() {
		if !a.settings.NoLLM {
			a.logger.Warn("Inference tier disabled: no Anthropic API key configured")
		}
		return nil, nil
	}
	client, err := llm.NewAnthropicClient(a.settings.LLMClientConfig())
	if err != nil {
		return nil, err
	}
	return matcher.NewLLMMatcher(client, a.settings.LLMMatcherConfig()), nil
}

// newPipeline assembles the matching pipeline
func (a *app) newPipeline() (*reconciler.Pipeline, error) {
	llmMatcher, err := a.newLLMMatcher()
	if err != nil {
		return nil, err
	}
	return reconciler.NewPipeline(reconciler.Components{
		Registry: a.registry,
		LLM:      llmMatcher,
		Booster:  a.learner,
		Config:   a.settings.ReconcilerConfig(),
	}), nil
}

// ensureCollection prepares the similarity collection when search is enabled.
// Failure only disables boosting quality, so it is logged.
func (a *app) ensureCollection(ctx context.Context) {
	if !a.settings.SimilarityEnabled() {
		return
	}
	client := vectors.NewClient(a.settings.QdrantConfig(), vectors.NewOpenAIEmbedder(a.settings.EmbedderConfig()))
	if err := client.EnsureCollection(ctx); err != nil {
		a.logger.WithError(err).Warn("Similarity collection unavailable, pattern boosts will be skipped")
	}
}
