// Package loanflow provides a top-level convenience entry point for
// building a screening pipeline with minimal boilerplate.
//
// Usage:
//
//	import "github.com/nilayparikh/loanflow"
//
//	p, err := loanflow.New(loanflow.WithModelEndpoint(baseURL, apiKey, "openai/gpt-4o-mini"))
//	p, err := loanflow.New(loanflow.WithProvider(myProvider), loanflow.WithThresholds(35, 75))
//
//	result, err := p.Process(ctx, application)
//
// The pipeline defaults to an in-memory review queue and the 40/80
// routing band. Production deployments that need a shared queue, the
// processed-loan history, or metrics should wire [pipeline.New]
// directly.
package loanflow

import (
	"time"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/config"
	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/pipeline"
	"github.com/nilayparikh/loanflow/riskmodel"
	"github.com/nilayparikh/loanflow/types"
)

// Option configures the pipeline created by [New].
type Option func(*options)

type options struct {
	provider     riskmodel.Provider
	store        escalation.Store
	history      *history.Store
	logger       *zap.Logger
	thresholds   loan.Thresholds
	modelTimeout time.Duration

	// Endpoint shortcut fields, used when provider is nil.
	baseURL string
	apiKey  string
	model   string
}

// WithProvider sets a pre-built scoring provider.
func WithProvider(p riskmodel.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithModelEndpoint builds a scoring client for any OpenAI-compatible
// chat completions endpoint.
func WithModelEndpoint(baseURL, apiKey, model string) Option {
	return func(o *options) {
		o.baseURL = baseURL
		o.apiKey = apiKey
		o.model = model
	}
}

// WithThresholds overrides the routing band. Scores below approve
// auto-approve, at or above decline auto-decline, between escalate.
func WithThresholds(approve, decline float64) Option {
	return func(o *options) {
		o.thresholds = loan.Thresholds{Approve: approve, Decline: decline}
	}
}

// WithModelTimeout bounds the single model call per application.
func WithModelTimeout(d time.Duration) Option {
	return func(o *options) { o.modelTimeout = d }
}

// WithStore replaces the default in-memory review queue.
func WithStore(store escalation.Store) Option {
	return func(o *options) { o.store = store }
}

// WithHistory mirrors every run into the processed-loan history.
func WithHistory(h *history.Store) Option {
	return func(o *options) { o.history = h }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a ready-to-use screening pipeline. A scoring provider
// must be supplied via [WithProvider] or [WithModelEndpoint].
func New(opts ...Option) (*pipeline.Pipeline, error) {
	defaults := config.DefaultPipelineConfig()
	o := &options{
		thresholds: loan.Thresholds{
			Approve: defaults.ApproveThreshold,
			Decline: defaults.DeclineThreshold,
		},
		modelTimeout: defaults.ModelTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	provider := o.provider
	if provider == nil {
		if o.baseURL == "" {
			return nil, types.NewConfigurationError("a scoring provider is required: use WithProvider or WithModelEndpoint")
		}
		modelCfg := config.DefaultRiskModelConfig()
		provider = riskmodel.NewClient(riskmodel.Config{
			ProviderName: modelCfg.ProviderName,
			BaseURL:      o.baseURL,
			APIKey:       o.apiKey,
			Model:        o.model,
			Timeout:      modelCfg.Timeout,
			Temperature:  modelCfg.Temperature,
			MaxTokens:    modelCfg.MaxTokens,
		}, o.logger)
	}

	store := o.store
	if store == nil {
		store = escalation.NewMemoryStore()
	}

	return pipeline.New(pipeline.Config{
		Thresholds:   o.thresholds,
		ModelTimeout: o.modelTimeout,
	}, pipeline.Dependencies{
		Provider: provider,
		Store:    store,
		History:  o.history,
		Logger:   o.logger,
	})
}
