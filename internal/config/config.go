package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Mail         MailConfig
	Notification NotificationConfig
	Credentials  CredentialsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// AuthConfig defines token verification and password hashing parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	// Bootstrap account created at startup when no user holds BootstrapEmail.
	BootstrapEmail    string
	BootstrapPassword string
}

// SLAConfig drives the periodic SLA scan.
type SLAConfig struct {
	ScanIntervalMinutes int
	WarningThresholds   []int
	Workers             int
}

// MailConfig drives the inbound mail connector.
type MailConfig struct {
	PollIntervalMinutes int
	ConnectRetries      int
	RetryDelaySeconds   int
	DialTimeoutSeconds  int
	Mailbox             string
	SubjectKeywords     []string
}

// NotificationConfig holds outbound notification settings.
type NotificationConfig struct {
	Queue             string
	QueueKey          string
	QueueSize         int
	SendRatePerSecond float64
	SendBurst         int
	BreakerTimeoutSec int
	BreakerMinFails   uint32
	BrandName         string
	EmailFrom         string
}

// CredentialsConfig holds the key used to decrypt stored mail credentials.
type CredentialsConfig struct {
	EncryptionKey string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	thresholds, err := ParseThresholds(getEnv("SLA_WARNING_THRESHOLDS", "30,15,5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_WARNING_THRESHOLDS: %w", err)
	}

	rate, err := strconv.ParseFloat(getEnv("NOTIFY_SEND_RATE_PER_SECOND", "5"), 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid NOTIFY_SEND_RATE_PER_SECOND: %q", os.Getenv("NOTIFY_SEND_RATE_PER_SECOND"))
	}

	queue := strings.ToLower(getEnv("NOTIFY_QUEUE", "memory"))
	if queue != "memory" && queue != "redis" {
		return nil, fmt.Errorf("invalid NOTIFY_QUEUE %q: want memory or redis", queue)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-sla-monitor"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapEmail:        os.Getenv("AUTH_BOOTSTRAP_EMAIL"),
			BootstrapPassword:     os.Getenv("AUTH_BOOTSTRAP_PASSWORD"),
		},
		SLA: SLAConfig{
			ScanIntervalMinutes: getEnvAsInt("SLA_SCAN_INTERVAL_MINUTES", 10),
			WarningThresholds:   thresholds,
			Workers:             getEnvAsInt("SLA_SCAN_WORKERS", 4),
		},
		Mail: MailConfig{
			PollIntervalMinutes: getEnvAsInt("MAIL_POLL_INTERVAL_MINUTES", 5),
			ConnectRetries:      getEnvAsInt("MAIL_CONNECT_RETRIES", 3),
			RetryDelaySeconds:   getEnvAsInt("MAIL_RETRY_DELAY_SECONDS", 30),
			DialTimeoutSeconds:  getEnvAsInt("MAIL_DIAL_TIMEOUT_SECONDS", 30),
			Mailbox:             getEnv("MAIL_MAILBOX", "INBOX"),
			SubjectKeywords:     getEnvAsList("MAIL_SUBJECT_KEYWORDS", []string{"reporte", "report"}),
		},
		Notification: NotificationConfig{
			Queue:             queue,
			QueueKey:          getEnv("NOTIFY_QUEUE_KEY", "helpdesk:notifications"),
			QueueSize:         getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			SendRatePerSecond: rate,
			SendBurst:         getEnvAsInt("NOTIFY_SEND_BURST", 5),
			BreakerTimeoutSec: getEnvAsInt("NOTIFY_BREAKER_TIMEOUT_SECONDS", 60),
			BreakerMinFails:   uint32(getEnvAsInt("NOTIFY_BREAKER_MIN_FAILURES", 5)),
			BrandName:         getEnv("NOTIFY_BRAND_NAME", "HelpdeskOI"),
			EmailFrom:         getEnv("NOTIFY_EMAIL_FROM", ""),
		},
		Credentials: CredentialsConfig{
			EncryptionKey: os.Getenv("HELPDESK_ENCRYPTION_KEY"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ScanInterval returns the pause between SLA scans.
func (s SLAConfig) ScanInterval() time.Duration {
	if s.ScanIntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.ScanIntervalMinutes) * time.Minute
}

// PollInterval returns the pause between mailbox checks.
func (m MailConfig) PollInterval() time.Duration {
	if m.PollIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(m.PollIntervalMinutes) * time.Minute
}

// RetryDelay returns the fixed wait between connection attempts.
func (m MailConfig) RetryDelay() time.Duration {
	if m.RetryDelaySeconds < 0 {
		return 0
	}
	return time.Duration(m.RetryDelaySeconds) * time.Second
}

// DialTimeout bounds a single connection attempt.
func (m MailConfig) DialTimeout() time.Duration {
	if m.DialTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(m.DialTimeoutSeconds) * time.Second
}

// BreakerTimeout is how long the SMTP breaker stays open.
func (n NotificationConfig) BreakerTimeout() time.Duration {
	if n.BreakerTimeoutSec <= 0 {
		return time.Minute
	}
	return time.Duration(n.BreakerTimeoutSec) * time.Second
}

// ParseThresholds parses a comma separated minute ladder, returning it in strictly
// descending order without duplicates.
func ParseThresholds(raw string) ([]int, error) {
	seen := map[int]struct{}{}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		minutes, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", part, err)
		}
		if minutes <= 0 {
			return nil, fmt.Errorf("threshold %d must be positive", minutes)
		}
		if _, dup := seen[minutes]; dup {
			continue
		}
		seen[minutes] = struct{}{}
		out = append(out, minutes)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds in %q", raw)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
