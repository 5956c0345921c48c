package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
	RedisURL   string `mapstructure:"redis_url"`

	HistoryLimit int           `mapstructure:"history_limit"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`

	// Client side.
	Transport       string        `mapstructure:"transport"`
	ServerURL       string        `mapstructure:"server_url"`
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
	TypingTTL       time.Duration `mapstructure:"typing_ttl"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("store", "memory")
	v.SetDefault("sqlite_path", "./data/hearth.db")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("history_limit", 100)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("transport", "socket")
	v.SetDefault("server_url", "ws://localhost:8080/ws")
	v.SetDefault("heartbeat_period", "30s")
	v.SetDefault("typing_ttl", "3s")
	v.SetDefault("poll_interval", "15s")
	v.SetDefault("max_reconnects", 10)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
