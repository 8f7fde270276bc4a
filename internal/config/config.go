package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Auth      AuthConfig
	Order     OrderConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"storehub"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	// MigrateOnStart applies pending migrations before serving.
	MigrateOnStart bool `env:"DB_MIGRATE_ON_START" envDefault:"false"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// RabbitMQConfig with an empty URL disables event publishing.
type RabbitMQConfig struct {
	URL string `env:"RABBITMQ_URL" envDefault:""`
}

func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"super-secret-key"`
	TokenTTL        time.Duration `env:"JWT_EXPIRATION" envDefault:"168h"`
	CookieSecure    bool          `env:"AUTH_COOKIE_SECURE" envDefault:"false"`
	RateLimitCount  int64         `env:"AUTH_RATE_LIMIT_COUNT" envDefault:"5"`
	RateLimitPeriod time.Duration `env:"AUTH_RATE_LIMIT_PERIOD" envDefault:"1m"`
}

type OrderConfig struct {
	StatusPolicy string `env:"ORDER_STATUS_POLICY" envDefault:"permissive"`
}

type TelemetryConfig struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"storehub-api"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
	// OTLPEndpoint empty disables trace export.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
