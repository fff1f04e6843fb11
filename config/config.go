package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"confluence-engine/internal/logging"
)

// ErrInvalidConfig wraps every validation failure from Load
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

type Config struct {
	Server     ServerConfig     `json:"server"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Logging    logging.Config   `json:"logging"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Kafka      KafkaConfig      `json:"kafka"`
	ClickHouse ClickHouseConfig `json:"clickhouse"`
	Telegram   TelegramConfig   `json:"telegram"`
	Vault      VaultConfig      `json:"vault"`

	// TuningFile is an optional YAML overlay for the analysis tables
	TuningFile string `json:"tuning_file"`
}

// ServerConfig holds the HTTP observability server settings
type ServerConfig struct {
	Enabled         bool   `json:"enabled" default:"true"`
	Host            string `json:"host" default:"0.0.0.0"`
	Port            int    `json:"port" default:"8080" validate:"gte=1,lte=65535"`
	AllowedOrigins  string `json:"allowed_origins" default:"*"`
	ReadTimeout     int    `json:"read_timeout" default:"30"` // seconds
	WriteTimeout    int    `json:"write_timeout" default:"30"`
	ShutdownTimeout int    `json:"shutdown_timeout" default:"10"`

	RateLimit float64 `json:"rate_limit" default:"20" validate:"gte=0"` // requests per second per client, 0 disables
	RateBurst int     `json:"rate_burst" default:"40" validate:"gte=1"`
}

// SchedulerConfig controls the analysis loop
type SchedulerConfig struct {
	Symbols         []string `json:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\"]" validate:"min=1,dive,required"`
	IntervalSeconds int      `json:"interval_seconds" default:"60" validate:"gte=1"`
	Workers         int      `json:"workers" default:"4" validate:"gte=1"`
	FetchRate       float64  `json:"fetch_rate" default:"10" validate:"gt=0"` // fetches per second across all symbols
	FetchBurst      int      `json:"fetch_burst" default:"20" validate:"gte=1"`
	FetchTimeout    int      `json:"fetch_timeout" default:"10" validate:"gte=1"` // seconds
	BookDepth       int      `json:"book_depth" default:"50" validate:"gte=5"`
	TradeLimit      int      `json:"trade_limit" default:"200" validate:"gte=5"`
	CandleLimit     int      `json:"candle_limit" default:"200" validate:"gte=50"`
	SimulatedSeed   int64    `json:"simulated_seed" default:"42"`
}

// Interval returns the tick period
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host" default:"localhost"`
	Port     int    `json:"port" default:"5432"`
	User     string `json:"user" default:"postgres"`
	Password string `json:"password"`
	DBName   string `json:"dbname" default:"confluence"`
	SSLMode  string `json:"sslmode" default:"disable" validate:"oneof=disable require verify-ca verify-full prefer allow"`
	MaxConns int32  `json:"max_conns" default:"10" validate:"gte=1"`
}

// RedisConfig holds Redis configuration for gate state and candle caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address" default:"localhost:6379"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size" default:"10" validate:"gte=1"`
}

// KafkaConfig holds the signal stream producer settings
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers" default:"[\"localhost:9092\"]"`
	Topic   string   `json:"topic" default:"confluence.signals"`
}

// ClickHouseConfig holds the breakdown warehouse settings
type ClickHouseConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address" default:"localhost:9000"`
	Database string `json:"database" default:"default"`
	Username string `json:"username" default:"default"`
	Password string `json:"password"`
}

// TelegramConfig holds Telegram notification settings
type TelegramConfig struct {
	Enabled       bool    `json:"enabled"`
	BotToken      string  `json:"bot_token"`
	ChatID        int64   `json:"chat_id"`
	MinConfidence float64 `json:"min_confidence" default:"0.7" validate:"gte=0,lte=1"`
}

// VaultConfig holds HashiCorp Vault configuration for secret resolution
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address" default:"http://localhost:8200"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path" default:"secret"`
	SecretPath string `json:"secret_path" default:"confluence-engine"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// DSN returns the pgx connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// Load builds the configuration from defaults, then the JSON file at path
// when it exists, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("error applying defaults: %w", err)
	}

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section's constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) && !c.Vault.Enabled {
		return fmt.Errorf("%w: telegram enabled without bot token and chat id", ErrInvalidConfig)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.Server.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.Server.Enabled)
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", cfg.Server.Port)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	// Scheduler
	if symbols := getEnvOrDefault("SCHEDULER_SYMBOLS", ""); symbols != "" {
		cfg.Scheduler.Symbols = splitList(symbols)
	}
	if d := getEnvDurationOrDefault("SCHEDULER_INTERVAL", 0); d >= time.Second {
		cfg.Scheduler.IntervalSeconds = int(d / time.Second)
	}
	cfg.Scheduler.Workers = getEnvIntOrDefault("SCHEDULER_WORKERS", cfg.Scheduler.Workers)
	cfg.Scheduler.FetchRate = getEnvFloatOrDefault("SCHEDULER_FETCH_RATE", cfg.Scheduler.FetchRate)

	// Logging
	cfg.Logging.Level = strings.ToLower(getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level))
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
	cfg.Logging.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.Logging.IncludeFile)

	// Database
	cfg.Database.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnvOrDefault("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	// Kafka
	cfg.Kafka.Enabled = getEnvBoolOrDefault("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := getEnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)

	// ClickHouse
	cfg.ClickHouse.Enabled = getEnvBoolOrDefault("CLICKHOUSE_ENABLED", cfg.ClickHouse.Enabled)
	cfg.ClickHouse.Address = getEnvOrDefault("CLICKHOUSE_ADDRESS", cfg.ClickHouse.Address)
	cfg.ClickHouse.Database = getEnvOrDefault("CLICKHOUSE_DATABASE", cfg.ClickHouse.Database)
	cfg.ClickHouse.Username = getEnvOrDefault("CLICKHOUSE_USERNAME", cfg.ClickHouse.Username)
	cfg.ClickHouse.Password = getEnvOrDefault("CLICKHOUSE_PASSWORD", cfg.ClickHouse.Password)

	// Telegram
	cfg.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.Telegram.Enabled)
	cfg.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	if id := getEnvIntOrDefault("TELEGRAM_CHAT_ID", 0); id != 0 {
		cfg.Telegram.ChatID = int64(id)
	}

	// Vault
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)

	cfg.TuningFile = getEnvOrDefault("TUNING_FILE", cfg.TuningFile)
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a configuration file populated with defaults
func GenerateSampleConfig(filename string) error {
	cfg := Config{}
	if err := defaults.Set(&cfg); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
