package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/api/handlers"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/cache"
	"github.com/BaSui01/memflow/internal/database"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/internal/server"
	"github.com/BaSui01/memflow/internal/telemetry"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// metricsNamespace 是所有 Prometheus 指标的前缀
const metricsNamespace = "memflow"

// dbStatsInterval 是连接池指标采样周期
const dbStatsInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Memflow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers
	db     *gorm.DB

	// 存储层
	pool         *database.PoolManager
	cacheManager *cache.Manager
	store        *memory.TieredStore

	// 记忆子系统
	service      *memory.Service
	decay        *memory.DecayEngine
	consolidator *memory.Consolidator

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	memoryHandler *handlers.MemoryHandler
	healthHandler *handlers.HealthHandler

	// 指标收集器
	registry         *prometheus.Registry
	metricsCollector *metrics.Collector

	// 后台 goroutine 生命周期管理
	backgroundCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
		db:     db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollector(metricsNamespace, s.registry, s.logger)

	backgroundCtx, cancel := context.WithCancel(context.Background())
	s.backgroundCancel = cancel

	// 2. 初始化记忆子系统
	if err := s.initMemory(backgroundCtx); err != nil {
		return fmt.Errorf("failed to init memory subsystem: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(backgroundCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("redis_enabled", s.cfg.Redis.Enabled),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initMemory 构建存储层与记忆子系统，并启动后台任务
func (s *Server) initMemory(ctx context.Context) error {
	// 数据库连接池
	pool, err := database.NewPoolManager(s.db, database.PoolConfig{
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init connection pool: %w", err)
	}
	s.pool = pool

	// 长期记忆：持久化优先的分层存储
	durable := database.NewStore(pool, s.logger)
	s.store = memory.NewTieredStore(durable, memory.TieredStoreConfig{}, s.logger)
	s.metricsCollector.RegisterCacheCounters(metricsNamespace, s.registry,
		s.store.CacheHits, s.store.CacheMisses)

	// 短期记忆：Redis 环形缓冲，未启用时退回进程内实现
	var shortTerm memory.ShortTermStore
	if s.cfg.Redis.Enabled {
		manager, err := cache.NewManager(cache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		s.cacheManager = manager
		shortTerm = memory.NewRedisShortTerm(manager.Client(), s.cfg.Memory.ShortTermCap, s.logger)
	} else {
		shortTerm = memory.NewInMemoryShortTerm(s.cfg.Memory.ShortTermCap, s.logger)
	}

	// 事实抽取：规则策略始终开启；模型策略需要外部客户端注入，
	// 仅有配置开关时保持规则抽取并提示。
	extractor := memory.NewExtractor(s.logger)
	if s.cfg.Extraction.ModelEnabled {
		s.logger.Warn("model extraction enabled in config but no model client is wired, using rule strategies only")
	}

	semantic := memory.NewSemanticStore(s.logger)
	retrieval := memory.NewRetrieval(s.store, memory.LexicalOverlap, s.logger)

	s.service = memory.NewService(
		memory.ServiceConfig{
			DefaultScope:      types.MemoryScope(s.cfg.Memory.DefaultScope),
			DefaultImportance: s.cfg.Memory.DefaultImportance,
		},
		s.store, shortTerm, semantic, extractor, retrieval,
		s.logger,
	)

	// 后台任务：重要性衰减与冗余合并
	s.decay = memory.NewDecayEngine(s.store, memory.DecayConfig{
		Factor:   s.cfg.Memory.Decay.Factor,
		Floor:    s.cfg.Memory.Decay.Floor,
		Grace:    s.cfg.Memory.Decay.Grace,
		Interval: s.cfg.Memory.Decay.Interval,
	}, s.logger)
	s.decay.OnPass = func(res memory.DecayResult) {
		s.metricsCollector.RecordDecayPass(res.Decayed)
	}
	if err := s.decay.Start(ctx); err != nil {
		return fmt.Errorf("failed to start decay engine: %w", err)
	}

	s.consolidator = memory.NewConsolidator(s.store, memory.ConsolidatorConfig{
		GroupThreshold: s.cfg.Memory.Consolidation.GroupThreshold,
		Interval:       s.cfg.Memory.Consolidation.Interval,
		RunTimeout:     s.cfg.Memory.Consolidation.RunTimeout,
		Parallelism:    s.cfg.Memory.Consolidation.Parallelism,
	}, s.logger)
	s.consolidator.OnRun = func(res memory.ConsolidateResult) {
		s.metricsCollector.RecordMerged(res.Merged)
	}
	if err := s.consolidator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consolidator: %w", err)
	}

	// 连接池指标采样
	s.wg.Add(1)
	go s.collectDBStats(ctx)

	s.logger.Info("Memory subsystem initialized")
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.memoryHandler = handlers.NewMemoryHandler(s.service, s.metricsCollector, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cacheManager.Ping))
	}

	s.logger.Info("Handlers initialized")
}

// collectDBStats 周期性采样连接池状态
func (s *Server) collectDBStats(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.pool.Stats()
			s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver,
				stats.OpenConnections, stats.Idle)
		}
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 记忆 API 路由
	// ========================================
	s.memoryHandler.RegisterRoutes(mux)

	// ========================================
	// 构建中间件链
	// ========================================
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 1. 停止后台任务（衰减、合并、指标采样、限流清理）
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}
	if s.decay != nil {
		s.decay.Stop()
	}
	if s.consolidator != nil {
		s.consolidator.Stop()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭存储层连接
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭 OpenTelemetry
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
