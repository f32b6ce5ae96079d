package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apascualco/careway/internal/application"
	"github.com/apascualco/careway/internal/domain"
	"github.com/apascualco/careway/internal/infrastructure/auth"
	"github.com/apascualco/careway/internal/infrastructure/cache"
	"github.com/apascualco/careway/internal/infrastructure/config"
	"github.com/apascualco/careway/internal/infrastructure/http/handler"
	"github.com/apascualco/careway/internal/infrastructure/http/middleware"
	"github.com/apascualco/careway/internal/infrastructure/observability"
	"github.com/apascualco/careway/internal/infrastructure/proxy"
	"github.com/apascualco/careway/internal/infrastructure/ratelimit"
	"github.com/apascualco/careway/internal/infrastructure/redis"
	"github.com/gin-gonic/gin"
)

const (
	RateLimitBackendRedis  = "redis"
	RateLimitBackendMemory = "memory"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	httpServer *http.Server
	startTime  time.Time

	redisClient *redis.Client
	store       *cache.Store
	cacheWriter *cache.AsyncWriter
	registry    *application.Registry
	registrar   *application.Registrar
	discovery   *application.Discovery
	balancer    *application.LoadBalancer
	rateLimiter ratelimit.RateLimiter
	verifier    auth.SessionVerifier
	metrics     *observability.Metrics
	recorder    observability.Recorder
	proxy       *proxy.Handler

	loopCancel context.CancelFunc
}

func NewServer(cfg *config.Config) (*Server, error) {
	redisClient, err := redis.NewClient(redis.Options{
		URL:      cfg.RedisURL,
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	s := &Server{
		config:      cfg,
		startTime:   time.Now(),
		redisClient: redisClient,
		recorder:    observability.Noop{},
	}

	if cfg.MetricsEnabled {
		s.metrics = observability.NewMetrics()
		s.recorder = s.metrics
	}

	s.store = cache.NewStore(redisClient.Client, cache.Config{
		Enabled: cfg.CacheEnabled,
		TTL:     cfg.CacheTTL,
		Prefix:  cfg.CachePrefix,
	})
	s.cacheWriter = cache.NewAsyncWriter(s.store, 0)
	slog.Debug("cache store configured",
		slog.Bool("enabled", cfg.CacheEnabled),
		slog.Duration("ttl", cfg.CacheTTL),
		slog.String("prefix", cfg.CachePrefix),
	)

	s.registry = application.NewRegistry(s.store, application.RegistryConfig{Key: cfg.RegistryKey})

	checker := application.NewHTTPHealthChecker(cfg.HealthCheckTimeout)
	s.discovery = application.NewDiscovery(s.registry, checker, application.DiscoveryConfig{
		Interval: cfg.HealthCheckInterval,
	})

	strategy, err := application.NewStrategy(cfg.LBStrategy)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	s.balancer = application.NewLoadBalancer(s.registry, checker, application.LoadBalancerConfig{
		Strategy:           strategy,
		HealthCheckEnabled: cfg.LBHealthCheckEnabled,
		Interval:           cfg.HealthCheckInterval,
		UnhealthyThreshold: cfg.LBUnhealthyThreshold,
		Observer:           s.recorder,
	})
	s.registrar = application.NewRegistrar(s.registry, s.balancer)
	slog.Info("load balancer configured",
		slog.String("strategy", strategy.Name()),
		slog.Bool("health_checks", cfg.LBHealthCheckEnabled),
		slog.Int("unhealthy_threshold", cfg.LBUnhealthyThreshold),
	)

	switch cfg.RateLimitBackend {
	case RateLimitBackendRedis, "":
		s.rateLimiter = ratelimit.NewLimiter(redisClient.Client, "ratelimit")
	case RateLimitBackendMemory:
		s.rateLimiter = ratelimit.NewInMemoryLimiter()
		slog.Warn("rate limiting uses the in-memory limiter, counts are per replica")
	default:
		_ = redisClient.Close()
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimitBackend)
	}

	s.verifier, err = auth.NewVerifier(auth.Options{
		Mode:         cfg.AuthMode,
		VerifyURL:    cfg.AuthVerifyURL,
		PublicKeyPEM: cfg.AuthJWTPublicKey,
		Timeout:      cfg.AuthTimeout,
	})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to create session verifier: %w", err)
	}
	if cfg.AuthMode == "" {
		slog.Warn("AUTH_MODE not set, routes requiring auth will reject every request")
	}

	s.proxy = proxy.NewHandler(s.balancer, proxy.Config{
		Timeout:  cfg.ProxyTimeout,
		Recorder: s.recorder,
	})

	s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() {
	if s.config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())

	s.router.GET("/health", handler.HealthHandler(s.startTime, s.config.Version))
	s.router.GET("/ready", handler.ReadyHandler(s.redisClient))
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.setupAdminRoutes(s.router.Group(""))
	if prefix := s.config.GatewayPrefix; prefix != "" && prefix != "/" {
		s.setupAdminRoutes(s.router.Group(prefix))
	}
	s.setupServiceRoutes()

	s.router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, http.StatusNotFound, "route_not_found", "no route matches "+c.Request.URL.Path)
	})
}

func (s *Server) setupAdminRoutes(group *gin.RouterGroup) {
	registryHandler := handler.NewRegistryHandler(s.registrar, s.registry, s.balancer)
	cacheHandler := handler.NewCacheHandler(s.store)

	registry := group.Group("/registry")
	{
		registry.POST("/services", registryHandler.Register)
		registry.GET("/services", registryHandler.ListServices)
		registry.GET("/services/:id", registryHandler.GetService)
		registry.DELETE("/services/:id", registryHandler.Deregister)
		registry.GET("/discover/:name", registryHandler.Discover)
	}

	cacheGroup := group.Group("/cache")
	{
		cacheGroup.DELETE("/invalidate/*pattern", cacheHandler.Invalidate)
		cacheGroup.DELETE("/clear", cacheHandler.Clear)
	}
}

// setupServiceRoutes mounts one pipeline per declared route:
// cache, auth, rate limit, tag, proxy.
func (s *Server) setupServiceRoutes() {
	cacheCfg := middleware.CacheConfig{
		Reader:   s.store,
		Writer:   s.cacheWriter,
		TTL:      s.config.CacheTTL,
		Recorder: s.recorder,
	}

	for _, route := range s.config.Routes {
		chain := []gin.HandlerFunc{middleware.Cache(cacheCfg, route)}
		if route.Auth {
			chain = append(chain, middleware.Auth(s.verifier))
		}
		if route.RateLimit != nil {
			chain = append(chain, middleware.RateLimit(s.rateLimiter, route, s.recorder))
		}
		chain = append(chain, middleware.Tag(route), s.proxy.Handle)

		pattern := route.RouterPattern()
		if route.AnyMethod() {
			s.router.Any(pattern, chain...)
		} else {
			s.router.Handle(normalizeMethod(route.Method), pattern, chain...)
		}

		slog.Debug("route mounted",
			slog.String("pattern", pattern),
			slog.String("method", route.Method),
			slog.String("service", route.Service),
			slog.Bool("auth", route.Auth),
			slog.Bool("rate_limited", route.RateLimit != nil),
		)
	}
}

func normalizeMethod(m string) string {
	if m == "" || m == domain.MethodAny {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Registrar() *application.Registrar {
	return s.registrar
}

// Start launches the discovery and eviction loops.
func (s *Server) Start(ctx context.Context) {
	ctx, s.loopCancel = context.WithCancel(ctx)
	if s.config.DiscoveryEnabled {
		s.discovery.Start(ctx)
	}
	s.balancer.Start(ctx)

	slog.Info("background loops started",
		slog.Bool("discovery", s.config.DiscoveryEnabled),
		slog.Bool("eviction", s.config.LBHealthCheckEnabled),
		slog.String("strategy", s.balancer.Strategy()),
		slog.Duration("interval", s.config.HealthCheckInterval),
	)
}

func (s *Server) Run() error {
	if err := s.redisClient.Ping(context.Background()); err != nil {
		slog.Warn("redis not reachable at startup, cache and registry degrade until it is", slog.Any("error", err))
	}

	s.Start(context.Background())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, stops the loops, drains pending cache
// writes and closes Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if s.loopCancel != nil {
		s.loopCancel()
	}
	s.discovery.Stop()
	s.balancer.Stop()
	slog.InfoContext(ctx, "background loops stopped")

	if err := s.cacheWriter.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pending cache writes: %w", err))
	}
	if err := s.redisClient.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
