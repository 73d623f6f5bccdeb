package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/generatororacle/backend/pkg/payment"
)

const (
	EnvLocal      = "local"
	EnvDev        = "dev"
	EnvProduction = "production"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Env          string   `env:"APP_ENV" env-default:"local"`
	Port         int      `env:"PORT" env-default:"4001"`
	DatabaseURL  string   `env:"DATABASE_URL" env-required:"true"`
	CORSOrigins  []string `env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	CookieSecure bool     `env:"COOKIE_SECURE" env-default:"false"`

	SessionTTL       time.Duration `env:"SESSION_TTL" env-default:"168h"`
	SessionRetention time.Duration `env:"SESSION_RETENTION" env-default:"720h"`

	Redis Redis
	AMQP  AMQP
	Mpesa Mpesa
	Jobs  Jobs

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Redis is optional; an empty address disables the login throttle.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// AMQP is optional; without a URL domain events are only logged.
type AMQP struct {
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE" env-default:"oracle.events"`
}

type Mpesa struct {
	ConsumerKey    string        `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `env:"MPESA_CONSUMER_SECRET"`
	Passkey        string        `env:"MPESA_PASSKEY"`
	Shortcode      string        `env:"MPESA_SHORTCODE"`
	Environment    string        `env:"MPESA_ENVIRONMENT" env-default:"sandbox"`
	CallbackURL    string        `env:"MPESA_CALLBACK_URL"`
	Timeout        time.Duration `env:"MPESA_TIMEOUT" env-default:"15s"`
}

type Jobs struct {
	SessionCleanup   string        `env:"SESSION_CLEANUP_SCHEDULE" env-default:"@hourly"`
	PaymentReconcile string        `env:"PAYMENT_RECONCILE_SCHEDULE" env-default:"@every 2m"`
	ReconcileAfter   time.Duration `env:"PAYMENT_RECONCILE_AFTER" env-default:"2m"`
}

// Load reads an optional .env file (or the given files) and then the
// environment. Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProduction:
	default:
		return fmt.Errorf("config: APP_ENV must be local, dev or production, got %q", c.Env)
	}
	switch c.Mpesa.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("config: MPESA_ENVIRONMENT must be sandbox or production, got %q", c.Mpesa.Environment)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}

	if c.Env == EnvProduction {
		if !c.Gateway().Configured() {
			return fmt.Errorf("config: production requires MPESA_CONSUMER_KEY, MPESA_CONSUMER_SECRET, MPESA_PASSKEY, MPESA_SHORTCODE and MPESA_CALLBACK_URL")
		}
		if !c.CookieSecure {
			return fmt.Errorf("config: production requires COOKIE_SECURE=true")
		}
	}
	return nil
}

// Gateway returns the Daraja client settings.
func (c *Config) Gateway() payment.MpesaConfig {
	return payment.MpesaConfig{
		ConsumerKey:    c.Mpesa.ConsumerKey,
		ConsumerSecret: c.Mpesa.ConsumerSecret,
		Passkey:        c.Mpesa.Passkey,
		Shortcode:      c.Mpesa.Shortcode,
		Environment:    c.Mpesa.Environment,
		CallbackURL:    c.Mpesa.CallbackURL,
		Timeout:        c.Mpesa.Timeout,
	}
}

// Logger builds the process logger: text at debug level locally, JSON at
// info level everywhere else.
func (c *Config) Logger() *slog.Logger {
	if c.Env == EnvLocal {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
