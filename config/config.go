package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	extErrors "github.com/pkg/errors"
)

var validate *validator.Validate = validator.New()

// Environment is the type for defining the running environment
type Environment string

// define constants
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

// BrokerKind selects the transport used for outbound notifications
type BrokerKind string

const (
	BrokerAMQP BrokerKind = "amqp"
	BrokerNATS BrokerKind = "nats"
	BrokerLog  BrokerKind = "log"
)

// Config is the typed view of the .env file for every binary
type Config struct {
	Environment Environment

	PostgresURI string `env:"POSTGRES_URI" validate:"required"`
	RedisURI    string `env:"REDIS_URI" validate:"required"`
	RedisPW     string `env:"REDIS_PW"`
	StripeKey   string `env:"STRIPE_KEY"`

	Broker  BrokerKind `env:"BROKER" envDefault:"log" validate:"oneof=amqp nats log"`
	AMQPURI string     `env:"AMQP_URI" validate:"required_if=Broker amqp"`
	NATSURI string     `env:"NATS_URI" validate:"required_if=Broker nats"`

	ListenAddr    string   `env:"LISTEN_ADDR" envDefault:":42069"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:","`
	CronSecret    string   `env:"CRON_SECRET"`
	JWTSigningKey string   `env:"JWT_SIGNING_KEY" validate:"omitempty,min=16"`

	PlansPath       string        `env:"PLANS_PATH"`
	Timezone        string        `env:"BILLING_TIMEZONE" envDefault:"UTC"`
	Schedule        string        `env:"BILLING_SCHEDULE" envDefault:"0 2 * * *"`
	CallTimeout     time.Duration `env:"CALL_TIMEOUT" envDefault:"15s"`
	GracePeriodDays int           `env:"GRACE_PERIOD_DAYS" envDefault:"3" validate:"gte=0"`
	RunLockTTL      time.Duration `env:"RUN_LOCK_TTL" envDefault:"1h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SiteName     string `env:"SITE_NAME" envDefault:"AdBill"`
	SiteURL      string `env:"SITE_URL"`
}

// Location resolves the billing time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DotFile returns the .env file for the running environment and the Environment itself
func DotFile(envVar string) (string, Environment) {
	if strings.EqualFold(os.Getenv(envVar), "production") {
		return ".env.production", EnvProduction
	}
	return ".env.development", EnvDevelopment
}

// Load reads dotFile (if present) into the process environment, then parses and validates Config
func Load(dotFile string, environment Environment) (*Config, error) {
	if len(dotFile) > 0 {
		if err := godotenv.Load(dotFile); err != nil && !os.IsNotExist(err) {
			return nil, extErrors.Wrap(err, "Cannot load configurations from .env")
		}
	}
	return Parse(environment)
}

// Parse builds Config from the current process environment
func Parse(environment Environment) (*Config, error) {
	cfg := &Config{
		Environment: environment,
	}
	if err := env.Parse(cfg); err != nil {
		return nil, extErrors.Wrap(err, "Cannot parse configurations")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, extErrors.Wrap(err, "Invalid configurations")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid BILLING_TIMEZONE %q: %v", cfg.Timezone, err)
	}
	return cfg, nil
}
