package riskmodel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ScoreCache is the slice of cache behavior the decorator needs. The
// Redis cache manager satisfies it without an adapter.
type ScoreCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// CachedProvider wraps a Provider with fingerprint-keyed caching.
// Identical applications with identical rule results reuse the stored
// verdict instead of paying for another model call. Cache failures are
// treated as misses; the wrapped provider is always the fallback.
type CachedProvider struct {
	inner  Provider
	cache  ScoreCache
	ttl    time.Duration
	logger *zap.Logger
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider decorates inner with cache lookups. A zero ttl
// defaults to one hour.
func NewCachedProvider(inner Provider, cache ScoreCache, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl == 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "riskmodel_cache")),
	}
}

// Name reports the wrapped provider's name.
func (p *CachedProvider) Name() string { return p.inner.Name() }

// Assess checks the cache before delegating. Only successful verdicts
// are stored, so a degraded run retries the model next time.
func (p *CachedProvider) Assess(ctx context.Context, input Input) (*Assessment, error) {
	key := fingerprint(input)

	var cached Assessment
	if err := p.cache.GetJSON(ctx, key, &cached); err == nil {
		p.logger.Debug("verdict cache hit",
			zap.String("applicant_id", input.Application.ApplicantID),
			zap.String("key", key),
		)
		return &cached, nil
	}

	assessment, err := p.inner.Assess(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetJSON(ctx, key, assessment, p.ttl); err != nil {
		p.logger.Debug("verdict cache store failed", zap.String("key", key), zap.Error(err))
	}
	return assessment, nil
}

// HealthCheck delegates to the wrapped provider.
func (p *CachedProvider) HealthCheck(ctx context.Context) error {
	return p.inner.HealthCheck(ctx)
}

// fingerprint derives a stable key from every field that influences
// the verdict. Two inputs with the same fingerprint are interchangeable
// as far as the model is concerned.
func fingerprint(input Input) string {
	payload, _ := json.Marshal(struct {
		App       interface{} `json:"app"`
		DTI       float64     `json:"dti"`
		LTV       float64     `json:"ltv"`
		RuleScore int         `json:"rule_score"`
	}{input.Application, input.DTI, input.LTV, input.RuleScore})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("loanflow:riskmodel:%s", hex.EncodeToString(sum[:16]))
}
