package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded once at process start and
// passed by injection to every component that needs it. SERVICE_ENV selects
// a profile of defaults; individual environment variables override the profile.
type Config struct {
	// Environment profile: default, localdev, staging
	Env string

	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	JoinTimeout     time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Notifier
	NotifierThreads  int           // worker count in the pool
	NotifierPoolSize int           // bound on concurrently live provider instances
	PollInterval     time.Duration // max delay between database polls for new jobs
	RetryDelay       time.Duration // delay before a retry successor becomes eligible
	MaxRetryAttempts int           // initial retries_remaining on a fresh job
	SendRatePerSec   int           // provider send throttle for this instance

	// Provider selection: console or smtp
	EmailProvider string

	// SMTP provider tuning
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
	FromEmail    string
}

const (
	ProviderConsole = "console"
	ProviderSMTP    = "smtp"
)

func Load() (*Config, error) {
	env := getEnv("SERVICE_ENV", "default")

	cfg := &Config{
		Env: env,

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		JoinTimeout:     getDuration("JOIN_TIMEOUT", 10*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		NotifierThreads:  getInt("NOTIFIER_THREADS", 1),
		NotifierPoolSize: getInt("NOTIFIER_POOL_SIZE", 1),
		PollInterval:     getSeconds("NOTIFIER_POLL_SECONDS", 60),
		RetryDelay:       getSeconds("JOB_RETRY_SECONDS", 300),
		MaxRetryAttempts: getInt("JOB_MAX_RETRY_ATTEMPTS", 3),
		SendRatePerSec:   getInt("SEND_RATE_PER_SECOND", 10),

		EmailProvider: getEnv("EMAIL_PROVIDER", providerDefault(env)),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getInt("SMTP_PORT", 25),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPUseTLS:   getBool("SMTP_USE_TLS", false),
		FromEmail:    getEnv("SMTP_FROM_EMAIL", "Notification Service <support@localhost>"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmailProvider != ProviderConsole && cfg.EmailProvider != ProviderSMTP {
		return nil, fmt.Errorf("EMAIL_PROVIDER must be %q or %q, got %q",
			ProviderConsole, ProviderSMTP, cfg.EmailProvider)
	}
	if cfg.NotifierThreads < 1 {
		return nil, fmt.Errorf("NOTIFIER_THREADS must be at least 1")
	}
	if cfg.NotifierPoolSize < 1 {
		return nil, fmt.Errorf("NOTIFIER_POOL_SIZE must be at least 1")
	}
	if cfg.MaxRetryAttempts < 0 {
		return nil, fmt.Errorf("JOB_MAX_RETRY_ATTEMPTS must not be negative")
	}

	return cfg, nil
}

// providerDefault keeps real transports out of development profiles:
// only staging defaults to smtp, everything else prints to the console.
func providerDefault(env string) string {
	if env == "staging" {
		return ProviderSMTP
	}
	return ProviderConsole
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// getSeconds reads an integer number of seconds. The *_SECONDS options keep
// their historical integer form rather than Go duration syntax.
func getSeconds(key string, defaultSecs int) time.Duration {
	return time.Duration(getInt(key, defaultSecs)) * time.Second
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
