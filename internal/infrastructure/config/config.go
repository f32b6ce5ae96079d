package config

import (
	"fmt"
	"os"
	"time"

	"github.com/apascualco/careway/internal/domain"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	RedisURL      string `envconfig:"REDIS_URL" default:""`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	CacheEnabled bool          `envconfig:"CACHE_ENABLED" default:"true"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"300s"`
	CachePrefix  string        `envconfig:"CACHE_PREFIX" default:"cache"`
	RegistryKey  string        `envconfig:"REGISTRY_KEY" default:"services:registry"`

	DiscoveryEnabled    bool          `envconfig:"DISCOVERY_ENABLED" default:"true"`
	HealthCheckInterval time.Duration `envconfig:"HEALTH_CHECK_INTERVAL" default:"30s"`
	HealthCheckTimeout  time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	LBStrategy           string `envconfig:"LB_STRATEGY" default:"round-robin"`
	LBHealthCheckEnabled bool   `envconfig:"LB_HEALTH_CHECK_ENABLED" default:"true"`
	LBUnhealthyThreshold int    `envconfig:"LB_UNHEALTHY_THRESHOLD" default:"1"`

	ProxyTimeout  time.Duration `envconfig:"PROXY_TIMEOUT" default:"10s"`
	GatewayPrefix string        `envconfig:"GATEWAY_PREFIX" default:"/api"`
	RoutesFile    string        `envconfig:"ROUTES_FILE" default:""`

	RateLimitBackend string `envconfig:"RATE_LIMIT_BACKEND" default:"redis"`

	AuthMode         string        `envconfig:"AUTH_MODE" default:""`
	AuthVerifyURL    string        `envconfig:"AUTH_VERIFY_URL" default:""`
	AuthJWTPublicKey string        `envconfig:"AUTH_JWT_PUBLIC_KEY" default:""`
	AuthTimeout      time.Duration `envconfig:"AUTH_TIMEOUT" default:"5s"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	Routes []domain.RouteConfig `ignored:"true"`

	Version   string `ignored:"true"`
	Commit    string `ignored:"true"`
	BuildDate string `ignored:"true"`
}

func Load(version, commit, buildDate string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Version, cfg.Commit, cfg.BuildDate = version, commit, buildDate

	routes := DefaultRoutes(cfg.GatewayPrefix)
	if cfg.RoutesFile != "" {
		var err error
		routes, err = LoadRoutes(cfg.RoutesFile, cfg.GatewayPrefix)
		if err != nil {
			return nil, err
		}
	}
	if err := domain.ValidateRoutes(routes); err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}
	cfg.Routes = routes

	return &cfg, nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

type routesFile struct {
	Routes []domain.RouteConfig `yaml:"routes"`
}

// LoadRoutes reads a YAML route table. Routes without an explicit
// stripPrefix inherit the gateway prefix.
func LoadRoutes(path, gatewayPrefix string) ([]domain.RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	return ParseRoutes(data, gatewayPrefix)
}

func ParseRoutes(data []byte, gatewayPrefix string) ([]domain.RouteConfig, error) {
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}
	for i := range f.Routes {
		if f.Routes[i].StripPrefix == "" {
			f.Routes[i].StripPrefix = gatewayPrefix
		}
	}
	return f.Routes, nil
}

// DefaultRoutes is the built-in route table for the childcare services.
func DefaultRoutes(gatewayPrefix string) []domain.RouteConfig {
	return []domain.RouteConfig{
		{
			Path:        gatewayPrefix + "/test-service/*",
			Service:     "test-service",
			Method:      domain.MethodAny,
			RateLimit:   &domain.RateLimit{Window: 15 * time.Minute, Max: 100},
			StripPrefix: gatewayPrefix,
		},
		{
			Path:        gatewayPrefix + "/tracking/*",
			Service:     "tracking-service",
			Method:      domain.MethodAny,
			Auth:        true,
			StripPrefix: gatewayPrefix,
		},
		{
			Path:        gatewayPrefix + "/booking/*",
			Service:     "booking-service",
			Method:      domain.MethodAny,
			Auth:        true,
			StripPrefix: gatewayPrefix,
		},
		{
			Path:        gatewayPrefix + "/children/*",
			Service:     "child-service",
			Method:      domain.MethodAny,
			Auth:        true,
			StripPrefix: gatewayPrefix,
		},
	}
}
