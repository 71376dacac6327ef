package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	WorkerPort  int    `env:"WORKER_HTTP_PORT,default=9091"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	EmailDomain string `env:"NOTIFY_EMAIL_DOMAIN,default=notifications.service.gov.uk"`
	SigningKey  string `env:"CALLBACK_SIGNING_SECRET,required=true"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=1h"`

	WorkerConcurrency int           `env:"WORKER_CONCURRENCY,default=16"`
	WorkerPrefetch    int           `env:"WORKER_PREFETCH,default=16"`
	TaskMaxAttempts   int           `env:"TASK_MAX_ATTEMPTS,default=5"`
	TaskRetryDelay    time.Duration `env:"TASK_RETRY_DELAY,default=30s"`

	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	RateLimitOverrides string `env:"RATE_LIMIT_OVERRIDES"`

	SMSProviderName          string `env:"SMS_PROVIDER_NAME,default=mmg"`
	SMSProviderURL           string `env:"SMS_PROVIDER_URL,required=true"`
	SMSSecondaryProviderName string `env:"SMS_SECONDARY_PROVIDER_NAME,default=firetext"`
	SMSSecondaryProviderURL  string `env:"SMS_SECONDARY_PROVIDER_URL"`

	SESProviderName    string `env:"SES_PROVIDER_NAME,default=ses"`
	SESRegion          string `env:"SES_REGION,default=eu-west-2"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SESEndpointURL     string `env:"SES_ENDPOINT_URL"`

	CallbackTimeout        time.Duration `env:"CALLBACK_TIMEOUT,default=5s"`
	CallbackRetryableCodes string        `env:"CALLBACK_RETRYABLE_STATUS_CODES"`
	CallbackBreakerTrips   uint32        `env:"CALLBACK_BREAKER_FAILURES,default=5"`
	CallbackBreakerOpenFor time.Duration `env:"CALLBACK_BREAKER_OPEN_TIMEOUT,default=30s"`

	SNSCertCacheSize int           `env:"SNS_CERT_CACHE_SIZE,default=64"`
	SNSCertCacheTTL  time.Duration `env:"SNS_CERT_CACHE_TTL,default=1h"`
	SESGraceWindow   time.Duration `env:"SES_CALLBACK_GRACE_WINDOW,default=5m"`

	ReplayInterval  time.Duration `env:"REPLAY_INTERVAL,default=10m"`
	ReplayOlderThan time.Duration `env:"REPLAY_OLDER_THAN,default=4h"`
	ReplayBatchSize int           `env:"REPLAY_BATCH_SIZE,default=100"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := cfg.RateLimits(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := cfg.RetryableStatusCodes(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// RateLimits parses RATE_LIMIT_OVERRIDES, e.g. "sms=50,email=200".
func (c *Config) RateLimits() (map[string]int, error) {
	overrides := make(map[string]int)
	for _, pair := range splitList(c.RateLimitOverrides) {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid rate limit override %q", pair)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid rate limit for %q: %q", key, value)
		}
		overrides[key] = limit
	}
	return overrides, nil
}

// RetryableStatusCodes parses CALLBACK_RETRYABLE_STATUS_CODES. Unset means
// 408 and 429.
func (c *Config) RetryableStatusCodes() ([]int, error) {
	items := splitList(c.CallbackRetryableCodes)
	if len(items) == 0 {
		return []int{408, 429}, nil
	}
	codes := make([]int, 0, len(items))
	for _, item := range items {
		code, err := strconv.Atoi(item)
		if err != nil || code < 400 || code > 499 {
			return nil, fmt.Errorf("invalid retryable status code %q", item)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
