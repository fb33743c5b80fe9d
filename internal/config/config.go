package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

// Config is parsed from the environment once at startup and injected into
// each service. There is no package-global accessor, a service only sees
// what it is handed.
type Config struct {
	Hostname string `env:"KUVERT_HOSTNAME" envDefault:"localhost"`

	DbURI string `env:"KUVERT_DB_URI" envDefault:"./kuvert.sqlite"`

	APIPort         int    `env:"KUVERT_API_PORT" envDefault:"8080"`
	APIAutoTLS      bool   `env:"KUVERT_API_AUTO_TLS" envDefault:"false"` // use echo AutoTLSManager for getting a certificate for KUVERT_HOSTNAME
	APIAutoTLSEmail string `env:"KUVERT_API_AUTO_TLS_EMAIL"`              // account email for Let's Encrypt

	// Auth for the project and template endpoints. "jwt" verifies a signed
	// bearer token, "static" accepts one fixed token (local and test use).
	AuthMode        string `env:"KUVERT_AUTH_MODE" envDefault:"jwt"`
	AuthJWTSecret   string `env:"KUVERT_AUTH_JWT_SECRET"`
	AuthJWTIssuer   string `env:"KUVERT_AUTH_JWT_ISSUER" envDefault:"kuvert"`
	AuthStaticToken string `env:"KUVERT_AUTH_STATIC_TOKEN"`

	// Delivery queue broker. An empty nsqd address selects the in-process
	// queue, which is only suitable for single-node deployments.
	NSQdAddr          string        `env:"KUVERT_NSQD_ADDR"`
	NSQLookupdAddr    string        `env:"KUVERT_NSQLOOKUPD_ADDR"`
	QueueTopic        string        `env:"KUVERT_QUEUE_TOPIC" envDefault:"deliveries"`
	QueueChannel      string        `env:"KUVERT_QUEUE_CHANNEL" envDefault:"workers"`
	VisibilityTimeout time.Duration `env:"KUVERT_VISIBILITY_TIMEOUT" envDefault:"60s"`
	MaxInFlight       int           `env:"KUVERT_MAX_IN_FLIGHT" envDefault:"64"`

	Workers         int             `env:"KUVERT_WORKERS" envDefault:"5"`
	MaxAttempts     int             `env:"KUVERT_MAX_ATTEMPTS" envDefault:"6"`
	BackoffSchedule []time.Duration `env:"KUVERT_BACKOFF_SCHEDULE" envSeparator:"," envDefault:"1s,4s,16s,1m,4m"`
	SendTimeout     time.Duration   `env:"KUVERT_SEND_TIMEOUT" envDefault:"15s"`
	SendRate        int             `env:"KUVERT_SEND_RATE" envDefault:"10"` // transport sends per second across all workers

	SMTPHost     string `env:"KUVERT_SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int    `env:"KUVERT_SMTP_PORT" envDefault:"25"`
	SMTPUser     string `env:"KUVERT_SMTP_USER"`
	SMTPPassword string `env:"KUVERT_SMTP_PASSWORD"`
	SMTPFrom     string `env:"KUVERT_SMTP_FROM" envDefault:"noreply@localhost"`
}

func Load() (Config, error) {
	var cfg Config
	err := env.Parse(&cfg)
	return cfg, err
}
