package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/idkhub-com/reactive-agents/api"
	"github.com/idkhub-com/reactive-agents/config"
	"github.com/idkhub-com/reactive-agents/embedding"
	"github.com/idkhub-com/reactive-agents/evals"
	"github.com/idkhub-com/reactive-agents/events"
	"github.com/idkhub-com/reactive-agents/gateway/cache"
	"github.com/idkhub-com/reactive-agents/gateway/dialects"
	"github.com/idkhub-com/reactive-agents/gateway/pipeline"
	"github.com/idkhub-com/reactive-agents/internal/database"
	"github.com/idkhub-com/reactive-agents/internal/metrics"
	"github.com/idkhub-com/reactive-agents/internal/pool"
	"github.com/idkhub-com/reactive-agents/internal/server"
	"github.com/idkhub-com/reactive-agents/internal/telemetry"
	"github.com/idkhub-com/reactive-agents/internal/tlsutil"
	"github.com/idkhub-com/reactive-agents/optimize"
	"github.com/idkhub-com/reactive-agents/storage"
	"github.com/idkhub-com/reactive-agents/types"
)

// Server assembles and owns the gateway subsystems.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	store     *storage.DB
	rdb       *redis.Client
	broadcast *events.Broadcaster
	workers   *pool.Workers
	collector *metrics.Collector
	otel      *telemetry.Providers

	httpManager *server.Manager
}

func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start wires the subsystems and begins serving. It returns once the
// listener accepts requests.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("reactive_agents", s.logger)

	otelProviders, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = otelProviders

	store, err := s.openStorage()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	s.store = store

	dialects.RegisterAll()

	handler, err := s.buildHandler()
	if err != nil {
		return err
	}

	serverConfig := server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  s.cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("gateway started",
		zap.String("addr", s.httpManager.Addr()),
		zap.String("database", s.cfg.Database.Driver),
		zap.Bool("redis", s.rdb != nil),
	)
	return nil
}

func (s *Server) openStorage() (*storage.DB, error) {
	var dialector gorm.Dialector
	switch s.cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.Database.Path)
	default:
		dialector = postgres.Open(s.cfg.Database.DSN())
	}
	store, err := storage.Open(dialector, s.logger)
	if err != nil {
		return nil, err
	}
	if err := database.Configure(store.Gorm(), database.DefaultPoolConfig(), s.logger); err != nil {
		s.logger.Warn("connection pool tuning failed", zap.Error(err))
	}
	return store, nil
}

// buildHandler assembles the pipeline, the evaluation machinery and the HTTP
// surface around them.
func (s *Server) buildHandler() (http.Handler, error) {
	if s.cfg.Redis.Addr != "" {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			PoolSize: s.cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rdb.Ping(pingCtx).Err(); err != nil {
			s.logger.Warn("redis not reachable, cache runs local-only", zap.Error(err))
			s.rdb = nil
		}
	}

	responseCache := cache.New(cache.Config{
		LocalMaxSize: s.cfg.Cache.LocalMaxSize,
		DefaultTTL:   s.cfg.Cache.DefaultTTL,
	}, s.rdb, s.logger)

	var embedder embedding.Embedder
	if s.cfg.Embedding.APIKey != "" {
		embedder = embedding.New(embedding.Config{
			BaseURL:    s.cfg.Embedding.BaseURL,
			APIKey:     s.cfg.Embedding.APIKey,
			Model:      s.cfg.Embedding.Model,
			Dimensions: s.cfg.Embedding.Dimensions,
			Timeout:    s.cfg.Embedding.Timeout,
		}, s.logger)
	} else {
		s.logger.Info("embedding API key not configured, semantic routing disabled")
	}

	optimizer := optimize.New(s.store, &optimize.StaticGenerator{}, s.logger)
	s.broadcast = events.NewBroadcaster(s.logger)

	pipe := pipeline.New(s.store, pipeline.Options{
		Cache:     responseCache,
		Optimizer: optimizer,
		Embedder:  embedder,
		Events:    s.broadcast,
		Client:    tlsutil.Client(0),
		Logger:    s.logger,
	})

	judge := pipeline.NewJudgeClient(pipe, s.cfg.Judge.Provider, s.cfg.Judge.APIKey, s.cfg.Judge.Agent)
	registry := evals.NewDefaultRegistry(judge, s.logger)
	runner := evals.NewRunner(registry, s.store, s.logger)
	scorer := evals.NewScorer(registry, s.store, optimizer, s.logger)

	s.workers = pool.NewWorkers(4, 256, s.logger)
	pipe.OnComplete = func(log types.Log) {
		s.recordLogMetrics(log)
		s.workers.Submit(func(ctx context.Context) {
			scorer.ScoreLog(ctx, log)
		})
	}

	if err := s.bootstrapJudgeAgent(); err != nil {
		return nil, fmt.Errorf("bootstrap judge agent: %w", err)
	}

	router := api.NewRouter(api.Deps{
		Store:    s.store,
		Executor: pipe,
		Events:   s.broadcast,
		Registry: registry,
		Runner:   runner,
		Logger:   s.logger,
		Version:  Version,
	})
	router.Handle("GET /metrics", s.collector.Handler())

	return Chain(router,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		Metrics(s.collector),
	), nil
}

// recordLogMetrics feeds the finalized log into the Prometheus collector.
func (s *Server) recordLogMetrics(log types.Log) {
	s.collector.RecordRequest(string(log.FunctionName), log.Provider, log.Status,
		time.Duration(log.DurationMS)*time.Millisecond)
	if log.CacheStatus != "" {
		s.collector.RecordCacheEvent(string(log.CacheStatus))
	}
	if ttft, ok := log.TTFT(); ok {
		s.collector.RecordFirstToken(log.Provider, ttft)
	}
	if log.SkillID != "" && log.ArmID != "" {
		s.collector.RecordArmSelection(log.SkillID)
	}
}

// bootstrapJudgeAgent makes sure the agent the judge attributes its traffic
// to exists; the pipeline auto-creates the reserved judge skill under it.
func (s *Server) bootstrapJudgeAgent() error {
	name := s.cfg.Judge.Agent
	if name == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.store.GetAgentByName(ctx, name); err == nil {
		return nil
	} else if types.GetErrorCode(err) != types.ErrNotFound {
		return err
	}
	agent := types.Agent{Name: name, Description: "Internal agent for gateway-originated traffic."}
	if err := s.store.CreateAgent(ctx, &agent); err != nil {
		return err
	}
	s.logger.Info("created judge agent", zap.String("agent", name))
	return nil
}

// WaitForShutdown blocks until a signal or server failure, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown releases subsystems in dependency order: listener first, then the
// background workers so in-flight scoring drains, then shared clients.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.workers != nil {
		s.workers.Close()
	}
	if s.broadcast != nil {
		s.broadcast.Close()
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("redis shutdown error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}
	s.logger.Info("graceful shutdown completed")
}
