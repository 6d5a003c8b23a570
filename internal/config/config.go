package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
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
	Auth struct {
		JWTSecret         string
		SessionTTLMinutes int
	}
	API struct {
		Port     string
		BasePath string
	}
	WS struct {
		MaxConnsPerChannel int
		AdminChannel       string
	}
	RateLimit struct {
		ConnectLimit  int
		PeriodSeconds int
	}
	Alerts struct {
		IntervalSeconds  int
		TimeframeMinutes int
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

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = db
	}

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if m, err := strconv.Atoi(os.Getenv("SESSION_TTL_MINUTES")); err == nil {
		cfg.Auth.SessionTTLMinutes = m
	}

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	if n, err := strconv.Atoi(os.Getenv("WS_MAX_CONNS_PER_CHANNEL")); err == nil {
		cfg.WS.MaxConnsPerChannel = n
	}
	cfg.WS.AdminChannel = os.Getenv("WS_ADMIN_CHANNEL")

	if n, err := strconv.Atoi(os.Getenv("RATE_CONNECT_LIMIT")); err == nil {
		cfg.RateLimit.ConnectLimit = n
	}
	if n, err := strconv.Atoi(os.Getenv("RATE_PERIOD_SECONDS")); err == nil {
		cfg.RateLimit.PeriodSeconds = n
	}

	if n, err := strconv.Atoi(os.Getenv("ALERT_INTERVAL_SECONDS")); err == nil {
		cfg.Alerts.IntervalSeconds = n
	}
	if n, err := strconv.Atoi(os.Getenv("ALERT_TIMEFRAME_MINUTES")); err == nil {
		cfg.Alerts.TimeframeMinutes = n
	}

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Auth.SessionTTLMinutes == 0 {
		cfg.Auth.SessionTTLMinutes = 300
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.WS.MaxConnsPerChannel == 0 {
		cfg.WS.MaxConnsPerChannel = 100
	}
	if cfg.WS.AdminChannel == "" {
		cfg.WS.AdminChannel = "admin_alerts"
	}
	if cfg.RateLimit.ConnectLimit == 0 {
		cfg.RateLimit.ConnectLimit = 60
	}
	if cfg.RateLimit.PeriodSeconds == 0 {
		cfg.RateLimit.PeriodSeconds = 60
	}
	if cfg.Alerts.IntervalSeconds == 0 {
		cfg.Alerts.IntervalSeconds = 60
	}
	if cfg.Alerts.TimeframeMinutes == 0 {
		cfg.Alerts.TimeframeMinutes = 5
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}
