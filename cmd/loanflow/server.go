package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nilayparikh/loanflow/api/handlers"
	"github.com/nilayparikh/loanflow/config"
	"github.com/nilayparikh/loanflow/escalation"
	"github.com/nilayparikh/loanflow/history"
	"github.com/nilayparikh/loanflow/internal/cache"
	"github.com/nilayparikh/loanflow/internal/database"
	"github.com/nilayparikh/loanflow/internal/metrics"
	"github.com/nilayparikh/loanflow/internal/server"
	"github.com/nilayparikh/loanflow/internal/telemetry"
	"github.com/nilayparikh/loanflow/loan"
	"github.com/nilayparikh/loanflow/pipeline"
	"github.com/nilayparikh/loanflow/riskmodel"
)

// Server wires the pipeline, the stores, and the review API behind two
// managed listeners, one for the API and one for Prometheus scrapes.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	telemetry *telemetry.Providers
	pool      *database.PoolManager
	cache     *cache.Manager

	hub             *escalation.Hub
	escalationStore escalation.Store
	historyStore    *history.Store
	provider        riskmodel.Provider
	pipe            *pipeline.Pipeline

	metricsCollector *metrics.Collector

	healthHandler     *handlers.HealthHandler
	escalationHandler *handlers.EscalationHandler
	loanHandler       *handlers.LoanHandler
	statsHandler      *handlers.StatsHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a server instance. The database handle may be nil
// when neither the database review queue nor the history log is
// configured.
func NewServer(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
}

// Start brings up every component in dependency order.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("loanflow", s.logger)

	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("telemetry init failed, trace export disabled", zap.Error(err))
	} else {
		s.telemetry = providers
	}

	if s.db != nil {
		pool, err := database.NewPoolManager(s.db, database.PoolConfig{
			Name:            "loanflow",
			MaxOpenConns:    s.cfg.Database.MaxOpenConns,
			MaxIdleConns:    s.cfg.Database.MaxIdleConns,
			ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("failed to configure database pool: %w", err)
		}
		s.pool = pool.WithMetrics(s.metricsCollector)
	}

	if err := s.initCache(); err != nil {
		s.logger.Warn("model verdict cache disabled", zap.Error(err))
	}

	if err := s.initStores(); err != nil {
		return fmt.Errorf("failed to init stores: %w", err)
	}

	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("escalation_store", storeTypeLabel(s.cfg.Escalation.StoreType)),
		zap.Bool("history_enabled", s.historyStore != nil),
		zap.Bool("model_cache_enabled", s.cache != nil),
	)

	return nil
}

// initCache connects the Redis verdict cache when the risk model asks
// for one.
func (s *Server) initCache() error {
	if !s.cfg.RiskModel.CacheEnabled {
		return nil
	}

	manager, err := cache.NewManager(cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		DefaultTTL:   s.cfg.RiskModel.CacheTTL,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}, s.logger)
	if err != nil {
		return err
	}

	s.cache = manager.WithMetrics(s.metricsCollector)
	return nil
}

// initStores builds the review queue and the loan history.
func (s *Server) initStores() error {
	s.hub = escalation.NewHub(s.logger)

	base, err := escalation.NewStore(context.Background(), escalation.Config{
		Type: escalation.StoreType(s.cfg.Escalation.StoreType),
		Mongo: escalation.MongoConfig{
			URI:        s.cfg.Escalation.Mongo.URI,
			Database:   s.cfg.Escalation.Mongo.Database,
			Collection: s.cfg.Escalation.Mongo.Collection,
		},
	}, escalation.Dependencies{
		DB:     s.db,
		Logger: s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create escalation store: %w", err)
	}
	s.escalationStore = escalation.NewNotifyingStore(base, s.hub)

	if s.cfg.History.Enabled {
		if s.db == nil {
			s.logger.Warn("loan history disabled: no database connection")
		} else {
			hist, err := history.New(s.db, s.logger)
			if err != nil {
				return err
			}
			if err := hist.AutoMigrate(); err != nil {
				return fmt.Errorf("failed to migrate loan history: %w", err)
			}
			s.historyStore = hist
		}
	}

	return nil
}

// initPipeline builds the scoring provider chain and the pipeline.
func (s *Server) initPipeline() error {
	var provider riskmodel.Provider = riskmodel.NewClient(riskmodel.Config{
		ProviderName: s.cfg.RiskModel.ProviderName,
		BaseURL:      s.cfg.RiskModel.BaseURL,
		APIKey:       s.cfg.RiskModel.APIKey,
		Model:        s.cfg.RiskModel.Model,
		EndpointPath: s.cfg.RiskModel.EndpointPath,
		Timeout:      s.cfg.RiskModel.Timeout,
		Temperature:  s.cfg.RiskModel.Temperature,
		MaxTokens:    s.cfg.RiskModel.MaxTokens,
	}, s.logger)

	if s.cache != nil {
		provider = riskmodel.NewCachedProvider(provider, s.cache, s.cfg.RiskModel.CacheTTL, s.logger)
	}
	s.provider = provider

	pipe, err := pipeline.New(pipeline.Config{
		Thresholds: loan.Thresholds{
			Approve: s.cfg.Pipeline.ApproveThreshold,
			Decline: s.cfg.Pipeline.DeclineThreshold,
		},
		ModelTimeout: s.cfg.Pipeline.ModelTimeout,
	}, pipeline.Dependencies{
		Provider: provider,
		Store:    s.escalationStore,
		History:  s.historyStore,
		Metrics:  s.metricsCollector,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	s.pipe = pipe

	return nil
}

// initHandlers builds the API handler set.
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.pool.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cache.Ping))
	}

	s.escalationHandler = handlers.NewEscalationHandler(s.escalationStore, s.hub, s.logger).
		WithHistory(s.historyStore).
		WithMetrics(s.metricsCollector)
	if s.cfg.Server.AllowedOrigin != "" {
		s.escalationHandler.WithOriginPatterns(s.cfg.Server.AllowedOrigin)
	}

	s.loanHandler = handlers.NewLoanHandler(s.pipe, s.historyStore, s.logger)
	s.statsHandler = handlers.NewStatsHandler(s.escalationStore, s.historyStore, s.logger).
		WithCache(s.cache)
}

// startHTTPServer registers the routes, wraps them in the middleware
// chain, and starts the API listener.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// Literal segments win over {id}, so pending and watch never
	// collide with the record route.
	mux.HandleFunc("GET /api/v1/escalations", s.escalationHandler.HandleListAll)
	mux.HandleFunc("GET /api/v1/escalations/pending", s.escalationHandler.HandleListPending)
	mux.HandleFunc("GET /api/v1/escalations/watch", s.escalationHandler.HandleWatch)
	mux.HandleFunc("GET /api/v1/escalations/{id}", s.escalationHandler.HandleGet)
	mux.HandleFunc("POST /api/v1/escalations/{id}/decide", s.escalationHandler.HandleDecide)

	mux.HandleFunc("GET /api/v1/loans", s.loanHandler.HandleList)
	mux.HandleFunc("POST /api/v1/loans/process", s.loanHandler.HandleProcess)
	mux.HandleFunc("GET /api/v1/loans/{applicantID}", s.loanHandler.HandleGet)

	mux.HandleFunc("GET /api/v1/stats", s.statsHandler.HandleStats)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.AllowedOrigin),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		ReviewerAuth(s.cfg.Server.AuthSecret, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		MaxConns:        s.cfg.Server.MaxConns,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer exposes /metrics on its own listener so scrapes
// never compete with API traffic.
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a termination signal arrives, then
// drains everything.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops accepting work, drains in-flight requests, and
// releases every resource in reverse dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.hub != nil {
		s.hub.Close()
	}

	if s.escalationStore != nil {
		if err := s.escalationStore.Close(); err != nil {
			s.logger.Error("escalation store close error", zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}

func storeTypeLabel(storeType string) string {
	if storeType == "" {
		return "memory"
	}
	return storeType
}
