package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "LEASEBOOK"

type Config struct {
	App     AppConfig
	DB      DBConfig
	CORS    CORSConfig
	JWT     JWTConfig
	Redis   RedisConfig
	Storage StorageConfig
	Worker  WorkerConfig
	Review  ReviewConfig
}

type AppConfig struct {
	Env       string `envconfig:"LEASEBOOK_APP_ENV" default:"dev"`
	HTTPAddr  string `envconfig:"LEASEBOOK_HTTP_ADDR" default:":8080"`
	LogLevel  string `envconfig:"LEASEBOOK_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LEASEBOOK_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type DBConfig struct {
	Driver          string        `envconfig:"LEASEBOOK_DB_DRIVER" default:"postgres"`
	DSN             string        `envconfig:"LEASEBOOK_DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"LEASEBOOK_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"LEASEBOOK_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"LEASEBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
}

type CORSConfig struct {
	AllowedOrigins   []string `envconfig:"LEASEBOOK_CORS_ALLOWED_ORIGINS"`
	AllowCredentials bool     `envconfig:"LEASEBOOK_CORS_ALLOW_CREDENTIALS" default:"false"`
}

type JWTConfig struct {
	Secret string        `envconfig:"LEASEBOOK_JWT_SECRET" required:"true"`
	TTL    time.Duration `envconfig:"LEASEBOOK_JWT_TTL" default:"168h"`
}

// RedisConfig is optional; an empty URL disables the attention cache.
type RedisConfig struct {
	URL      string        `envconfig:"LEASEBOOK_REDIS_URL"`
	CacheTTL time.Duration `envconfig:"LEASEBOOK_REDIS_CACHE_TTL" default:"5m"`
}

type StorageConfig struct {
	Dir            string `envconfig:"LEASEBOOK_STORAGE_DIR" default:"uploads"`
	MaxUploadBytes int64  `envconfig:"LEASEBOOK_STORAGE_MAX_UPLOAD_BYTES" default:"10485760"`
}

type WorkerConfig struct {
	Enabled             bool          `envconfig:"LEASEBOOK_WORKER_ENABLED" default:"true"`
	PollInterval        time.Duration `envconfig:"LEASEBOOK_WORKER_POLL_INTERVAL" default:"800ms"`
	SweepInterval       time.Duration `envconfig:"LEASEBOOK_WORKER_SWEEP_INTERVAL" default:"24h"`
	SweepLookbackMonths int           `envconfig:"LEASEBOOK_WORKER_SWEEP_LOOKBACK_MONTHS" default:"6"`
}

type ReviewConfig struct {
	VisibleMonths     int `envconfig:"LEASEBOOK_REVIEW_VISIBLE_MONTHS" default:"6"`
	RenewalNoticeDays int `envconfig:"LEASEBOOK_REVIEW_RENEWAL_NOTICE_DAYS" default:"60"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	origins := cfg.CORS.AllowedOrigins[:0]
	for _, o := range cfg.CORS.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORS.AllowedOrigins = origins

	switch cfg.DB.Driver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
	return cfg, nil
}
