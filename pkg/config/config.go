package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// SimulatorConfig drives the market engine and its read API.
type SimulatorConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	HistoryCap     int           `mapstructure:"history_cap"`
	APIPort        string        `mapstructure:"api_port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ProcessorConfig struct {
	NumWorkers  int           `mapstructure:"num_workers"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	HistoryCap  int           `mapstructure:"history_cap"`
}

// GatewayConfig lists the symbols clients may subscribe to. Empty means the
// seeded instrument catalog.
type GatewayConfig struct {
	ValidTickers []string `mapstructure:"valid_tickers"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`    // debug, info, warn, error
	Encoding string `mapstructure:"encoding"` // json or console
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	setDefaults(v)

	// 3. Map dot-notation to underscores (e.g., "simulator.interval" -> "SIMULATOR_INTERVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flat env vars only reach nested structs when bound explicitly
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "simulator.interval", "simulator.history_cap", "simulator.api_port", "simulator.request_timeout")
	bindEnv(v, "processor.num_workers", "processor.snapshot_ttl", "processor.history_cap")
	bindEnv(v, "gateway.valid_tickers")
	bindEnv(v, "logger.level", "logger.encoding")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "market-processor-group")

	v.SetDefault("simulator.interval", 3*time.Second)
	v.SetDefault("simulator.history_cap", 50)
	v.SetDefault("simulator.api_port", ":8081")
	v.SetDefault("simulator.request_timeout", 2*time.Second)

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.snapshot_ttl", time.Hour)
	v.SetDefault("processor.history_cap", 50)

	v.SetDefault("gateway.valid_tickers", []string{})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator interval must be positive, got %s", c.Simulator.Interval)
	}
	if c.Simulator.HistoryCap < 1 || c.Processor.HistoryCap < 1 {
		return fmt.Errorf("history cap must be at least 1")
	}
	if c.Processor.NumWorkers < 1 {
		return fmt.Errorf("processor needs at least one worker, got %d", c.Processor.NumWorkers)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
