package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Pay modes.
const (
	PayModeProd = "prod"
	PayModeMock = "mock"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress      string
	DatabaseURI     string
	RedisURL        string
	KafkaBrokers    []string
	KafkaTopic      string
	JWTSecret       string
	LogLevel        string
	ShutdownTimeout time.Duration

	// AdminRegisterKey must accompany operator registration; empty disables it.
	AdminRegisterKey string

	PayMode           string
	WeChat            WeChat
	PayNotifyURL      string
	RefundNotifyURL   string
	WebhookTolerance  time.Duration
	WebhookDedupTTL   time.Duration
	PendingOrderTTL   time.Duration
	ExpirySweepPeriod time.Duration

	FulfillmentPollInterval time.Duration
	FulfillmentBatch        int
	WorkerPoolSize          int
	FulfillmentMaxAttempts  int
	FulfillmentBackoff      time.Duration
}

// WeChat groups merchant and mini-program credentials.
type WeChat struct {
	AppID        string
	AppSecret    string
	MchID        string
	MchSerial    string
	PrivateKey   string
	PlatformCert string
	APIv3Key     string
	PayBaseURL   string
	APIBaseURL   string
}

const (
	defaultRunAddress         = ":8080"
	defaultJWTSecret          = "change-me-in-production"
	defaultLogLevel           = "info"
	defaultKafkaTopic         = "bookshop.orders"
	defaultShutdownTimeout    = 10 * time.Second
	defaultWebhookTolerance   = 5 * time.Minute
	defaultWebhookDedupTTL    = 24 * time.Hour
	defaultPendingOrderTTL    = 30 * time.Minute
	defaultExpirySweep        = time.Minute
	defaultFulfillmentPoll    = 5 * time.Second
	defaultFulfillmentBatch   = 32
	defaultWorkerPoolSize     = 4
	defaultMaxAttempts        = 8
	defaultFulfillmentBackoff = 30 * time.Second
	defaultPayBaseURL         = "https://api.mch.weixin.qq.com"
	defaultAPIBaseURL         = "https://api.weixin.qq.com"
)

// Load parses configuration from an optional .env file, environment variables and flags.
func Load() (*Config, error) {
	// A missing .env is fine; variables already set in the environment win.
	_ = godotenv.Load()
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:      getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:     getString(lookup, "DATABASE_URI", ""),
		RedisURL:        getString(lookup, "REDIS_URL", ""),
		KafkaBrokers:    splitList(getString(lookup, "KAFKA_BROKERS", "")),
		KafkaTopic:      getString(lookup, "KAFKA_TOPIC", defaultKafkaTopic),
		JWTSecret:       getString(lookup, "JWT_SECRET", defaultJWTSecret),
		LogLevel:        getString(lookup, "LOG_LEVEL", defaultLogLevel),
		ShutdownTimeout: getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		PayMode:         strings.ToLower(getString(lookup, "PAY_MODE", PayModeProd)),

		AdminRegisterKey: getString(lookup, "ADMIN_REGISTER_KEY", ""),

		WeChat: WeChat{
			AppID:        getString(lookup, "WECHAT_APP_ID", ""),
			AppSecret:    getString(lookup, "WECHAT_APP_SECRET", ""),
			MchID:        getString(lookup, "WECHAT_MCH_ID", ""),
			MchSerial:    getString(lookup, "WECHAT_MCH_SERIAL", ""),
			PrivateKey:   getString(lookup, "WECHAT_PRIVATE_KEY", ""),
			PlatformCert: getString(lookup, "WECHAT_PLATFORM_CERT", ""),
			APIv3Key:     getString(lookup, "WECHAT_API_V3_KEY", ""),
			PayBaseURL:   getString(lookup, "WECHAT_PAY_BASE_URL", defaultPayBaseURL),
			APIBaseURL:   getString(lookup, "WECHAT_API_BASE_URL", defaultAPIBaseURL),
		},

		PayNotifyURL:      getString(lookup, "PAY_NOTIFY_URL", ""),
		RefundNotifyURL:   getString(lookup, "REFUND_NOTIFY_URL", ""),
		WebhookTolerance:  getDuration(lookup, "WEBHOOK_TOLERANCE", defaultWebhookTolerance),
		WebhookDedupTTL:   getDuration(lookup, "WEBHOOK_DEDUP_TTL", defaultWebhookDedupTTL),
		PendingOrderTTL:   getDuration(lookup, "PENDING_ORDER_TTL", defaultPendingOrderTTL),
		ExpirySweepPeriod: getDuration(lookup, "EXPIRY_SWEEP_INTERVAL", defaultExpirySweep),

		FulfillmentPollInterval: getDuration(lookup, "FULFILLMENT_POLL_INTERVAL", defaultFulfillmentPoll),
		FulfillmentBatch:        getInt(lookup, "FULFILLMENT_BATCH", defaultFulfillmentBatch),
		WorkerPoolSize:          getInt(lookup, "WORKER_POOL_SIZE", defaultWorkerPoolSize),
		FulfillmentMaxAttempts:  getInt(lookup, "FULFILLMENT_MAX_ATTEMPTS", defaultMaxAttempts),
		FulfillmentBackoff:      getDuration(lookup, "FULFILLMENT_BACKOFF", defaultFulfillmentBackoff),
	}

	fs := flag.NewFlagSet("bookshop", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		shutdownTimeoutStr = cfg.ShutdownTimeout.String()
		pendingTTLStr      = cfg.PendingOrderTTL.String()
	)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Secret for signing admin tokens")
	fs.StringVar(&cfg.AdminRegisterKey, "admin-register-key", cfg.AdminRegisterKey, "Key required to register operators")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.PayMode, "pay-mode", cfg.PayMode, "Payment mode (prod or mock)")
	fs.IntVar(&cfg.WorkerPoolSize, "worker-pool", cfg.WorkerPoolSize, "Number of concurrent fulfillment workers")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")
	fs.StringVar(&pendingTTLStr, "pending-ttl", pendingTTLStr, "Age after which unpaid orders are closed")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if cfg.PendingOrderTTL, err = time.ParseDuration(pendingTTLStr); err != nil {
		return nil, fmt.Errorf("invalid pending ttl: %w", err)
	}

	if secretFile, ok := lookup("JWT_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt secret file: %w", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(content))
	}

	cfg.normalize()

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	if cfg.PayNotifyURL == "" || cfg.RefundNotifyURL == "" {
		return nil, fmt.Errorf("pay and refund notify URLs must be provided")
	}

	switch cfg.PayMode {
	case PayModeMock:
		if cfg.WeChat.APIv3Key == "" {
			return nil, fmt.Errorf("mock pay mode requires WECHAT_API_V3_KEY")
		}
	case PayModeProd:
		if missing := cfg.WeChat.missing(); len(missing) > 0 {
			return nil, fmt.Errorf("wechat credentials missing: %s", strings.Join(missing, ", "))
		}
	default:
		return nil, fmt.Errorf("unknown pay mode %q", cfg.PayMode)
	}

	return cfg, nil
}

func (c *Config) normalize() {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = defaultWorkerPoolSize
	}
	if c.FulfillmentBatch <= 0 {
		c.FulfillmentBatch = defaultFulfillmentBatch
	}
	if c.FulfillmentMaxAttempts <= 0 {
		c.FulfillmentMaxAttempts = defaultMaxAttempts
	}
	if c.FulfillmentBackoff <= 0 {
		c.FulfillmentBackoff = defaultFulfillmentBackoff
	}
	if c.FulfillmentPollInterval <= 0 {
		c.FulfillmentPollInterval = defaultFulfillmentPoll
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.WebhookTolerance <= 0 {
		c.WebhookTolerance = defaultWebhookTolerance
	}
	if c.WebhookDedupTTL <= 0 {
		c.WebhookDedupTTL = defaultWebhookDedupTTL
	}
	if c.PendingOrderTTL <= 0 {
		c.PendingOrderTTL = defaultPendingOrderTTL
	}
	if c.ExpirySweepPeriod <= 0 {
		c.ExpirySweepPeriod = defaultExpirySweep
	}
	c.PayMode = strings.ToLower(strings.TrimSpace(c.PayMode))
}

func (w WeChat) missing() []string {
	required := []struct {
		key   string
		value string
	}{
		{"WECHAT_APP_ID", w.AppID},
		{"WECHAT_APP_SECRET", w.AppSecret},
		{"WECHAT_MCH_ID", w.MchID},
		{"WECHAT_MCH_SERIAL", w.MchSerial},
		{"WECHAT_PRIVATE_KEY", w.PrivateKey},
		{"WECHAT_PLATFORM_CERT", w.PlatformCert},
		{"WECHAT_API_V3_KEY", w.APIv3Key},
	}
	var out []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			out = append(out, r.key)
		}
	}
	return out
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
