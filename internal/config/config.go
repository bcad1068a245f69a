package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Queue processing modes.
const (
	ModeQueued = "queued"
	ModeSync   = "sync"
)

// Process roles.
const (
	RoleAll    = "all"
	RoleAPI    = "api"
	RoleWorker = "worker"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Role string
	API  struct {
		Port       string
		BasePath   string
		AdminToken string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Telegram struct {
		BotToken    string
		BotUsername string
		APIURL      string
		RateLimit   int
		// Polling answers /start links through long polling on the api role.
		Polling bool
	}
	Email struct {
		SMTPHost     string
		SMTPPort     int
		SMTPSecure   bool
		Username     string
		Password     string
		From         string
		UseSendmail  bool
		SendmailPath string
	}
	Queue struct {
		Mode              string
		Workers           int
		MaxAttempts       int
		BackoffBase       time.Duration
		CompletedHistory  int
		ProcessingTimeout time.Duration
	}
	Dedup struct {
		Window        time.Duration
		SweepInterval time.Duration
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	cfg.Role = os.Getenv("ROLE")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.API.AdminToken = os.Getenv("ADMIN_TOKEN")

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = intEnv("REDIS_DB", 0)

	// Kafka is optional; an empty broker disables the consumer
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.APIURL = os.Getenv("TELEGRAM_API_URL")
	cfg.Telegram.RateLimit = intEnv("TELEGRAM_RATE_LIMIT", 25)
	cfg.Telegram.BotUsername = os.Getenv("TELEGRAM_BOT_USERNAME")
	cfg.Telegram.Polling = boolEnv("TELEGRAM_POLLING", true)

	cfg.Email.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.Email.SMTPPort = intEnv("SMTP_PORT", 587)
	cfg.Email.SMTPSecure = boolEnv("SMTP_SECURE", false)
	cfg.Email.Username = os.Getenv("SMTP_USER")
	cfg.Email.Password = os.Getenv("SMTP_PASS")
	cfg.Email.From = os.Getenv("SMTP_FROM")
	cfg.Email.UseSendmail = boolEnv("EMAIL_USE_SENDMAIL", false)
	cfg.Email.SendmailPath = os.Getenv("SENDMAIL_PATH")

	cfg.Queue.Mode = os.Getenv("QUEUE_MODE")
	cfg.Queue.Workers = intEnv("QUEUE_WORKERS", 0)
	cfg.Queue.MaxAttempts = intEnv("QUEUE_MAX_ATTEMPTS", 0)
	cfg.Queue.BackoffBase = durationEnv("QUEUE_BACKOFF_BASE", 0)
	cfg.Queue.CompletedHistory = intEnv("QUEUE_COMPLETED_HISTORY", 0)
	cfg.Queue.ProcessingTimeout = durationEnv("QUEUE_PROCESSING_TIMEOUT", 0)

	cfg.Dedup.Window = durationEnv("DEDUP_WINDOW", 0)
	cfg.Dedup.SweepInterval = durationEnv("DEDUP_SWEEP_INTERVAL", 0)

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	missing := []string{}
	if c.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if c.Queue.Mode == ModeQueued && c.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.Kafka.Broker != "" && c.Kafka.Topic == "" {
		missing = append(missing, "KAFKA_TOPIC")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}

	switch c.Queue.Mode {
	case ModeQueued, ModeSync:
	default:
		return fmt.Errorf("invalid QUEUE_MODE %q", c.Queue.Mode)
	}
	switch c.Role {
	case RoleAll, RoleAPI, RoleWorker:
	default:
		return fmt.Errorf("invalid ROLE %q", c.Role)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Role == "" {
		cfg.Role = RoleAll
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "omnicore-webhooks"
	}
	if cfg.Email.SendmailPath == "" {
		cfg.Email.SendmailPath = "/usr/sbin/sendmail"
	}
	if cfg.Queue.Mode == "" {
		cfg.Queue.Mode = ModeQueued
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 5
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.BackoffBase == 0 {
		cfg.Queue.BackoffBase = 2 * time.Second
	}
	if cfg.Queue.CompletedHistory == 0 {
		cfg.Queue.CompletedHistory = 100
	}
	if cfg.Queue.ProcessingTimeout == 0 {
		cfg.Queue.ProcessingTimeout = time.Minute
	}
	if cfg.Dedup.Window == 0 {
		cfg.Dedup.Window = 60 * time.Second
	}
	if cfg.Dedup.SweepInterval == 0 {
		cfg.Dedup.SweepInterval = 120 * time.Second
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
