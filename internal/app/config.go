package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PAYFLOW_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (PAYFLOW_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (PAYFLOW_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Tamara       TamaraConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// TamaraConfig holds the Tamara gateway credentials and endpoints.
type TamaraConfig struct {
	APIURL            string        `default:"https://api-sandbox.tamara.co" env:"API_URL" usage:"Tamara API base URL (PAYFLOW_TAMARA_API_URL)" flag:"tamara-api-url"`
	APIToken          string        `usage:"Tamara API bearer token (PAYFLOW_TAMARA_API_TOKEN)" flag:"tamara-api-token"`
	NotificationToken string        `usage:"Tamara webhook signing secret (PAYFLOW_TAMARA_NOTIFICATION_TOKEN)" flag:"tamara-notification-token"`
	NotificationURL   string        `usage:"Publicly reachable webhook URL registered with Tamara" flag:"tamara-notification-url"`
	Timeout           time.Duration `default:"30s" usage:"Tamara HTTP request timeout" flag:"tamara-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

// loadConfig is the testable core of LoadConfig: args are the command-line
// arguments the flag loader parses (tests pass an empty slice so the test
// binary's -test.* flags are not seen).
func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PAYFLOW",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/payflow/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PAYFLOW_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's PAYFLOW_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
