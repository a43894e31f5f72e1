package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
	Ingest struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"ingest"`
	Engine struct {
		Pairs          []string      `yaml:"pairs"`
		Timeframes     []string      `yaml:"timeframes"`
		Periods        []int         `yaml:"periods"`
		HistoryLimit   int           `yaml:"history_limit"`
		IncrementalCap int           `yaml:"incremental_cap"`
		StateTTL       time.Duration `yaml:"state_ttl"`
		CursorTTL      time.Duration `yaml:"cursor_ttl"`
		CycleInterval  time.Duration `yaml:"cycle_interval"`
	} `yaml:"engine"`
	Dispatch struct {
		Workers    int `yaml:"workers"`
		QueueSize  int `yaml:"queue_size"`
		MaxRetries int `yaml:"max_retries"`
		Breaker    struct {
			Threshold int           `yaml:"threshold"`
			Timeout   time.Duration `yaml:"timeout"`
		} `yaml:"breaker"`
		RateLimit struct {
			Window    time.Duration `yaml:"window"`
			MaxEvents int           `yaml:"max_events"`
		} `yaml:"rate_limit"`
	} `yaml:"dispatch"`
	Channels struct {
		Telegram struct {
			Enabled  bool   `yaml:"enabled"`
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
		} `yaml:"telegram"`
		Webhook struct {
			Enabled bool   `yaml:"enabled"`
			URL     string `yaml:"url"`
		} `yaml:"webhook"`
		Kafka struct {
			Enabled      bool     `yaml:"enabled"`
			Brokers      []string `yaml:"brokers"`
			Topic        string   `yaml:"topic"`
			RequiredAcks int      `yaml:"required_acks"`
			Compression  string   `yaml:"compression"`
			Async        bool     `yaml:"async"`
		} `yaml:"kafka"`
	} `yaml:"channels"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PAIRS"); v != "" {
		c.Engine.Pairs = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Channels.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Channels.Telegram.ChatID = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Channels.Webhook.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Channels.Kafka.Brokers = strings.Split(v, ",")
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Engine.HistoryLimit <= 0 {
		c.Engine.HistoryLimit = 200
	}
	if c.Engine.IncrementalCap <= 0 {
		c.Engine.IncrementalCap = 10
	}
	if c.Engine.StateTTL <= 0 {
		c.Engine.StateTTL = time.Hour
	}
	if c.Engine.CursorTTL <= 0 {
		c.Engine.CursorTTL = 24 * time.Hour
	}
	if c.Engine.CycleInterval <= 0 {
		c.Engine.CycleInterval = time.Minute
	}
	if len(c.Engine.Periods) == 0 {
		c.Engine.Periods = []int{20, 50}
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = 256
	}
	if c.Dispatch.MaxRetries <= 0 {
		c.Dispatch.MaxRetries = 3
	}
	if c.Dispatch.Breaker.Threshold <= 0 {
		c.Dispatch.Breaker.Threshold = 5
	}
	if c.Dispatch.Breaker.Timeout <= 0 {
		c.Dispatch.Breaker.Timeout = 30 * time.Second
	}
	if c.Dispatch.RateLimit.Window <= 0 {
		c.Dispatch.RateLimit.Window = time.Minute
	}
	if c.Dispatch.RateLimit.MaxEvents <= 0 {
		c.Dispatch.RateLimit.MaxEvents = 20
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Engine.Pairs) == 0 {
		return fmt.Errorf("engine.pairs cannot be empty")
	}
	if len(c.Engine.Timeframes) == 0 {
		return fmt.Errorf("engine.timeframes cannot be empty")
	}
	for _, p := range c.Engine.Periods {
		if p < 2 {
			return fmt.Errorf("engine.periods must all be >= 2, got %d", p)
		}
	}
	if c.Engine.IncrementalCap >= c.Engine.HistoryLimit {
		return fmt.Errorf("engine.incremental_cap must be smaller than engine.history_limit")
	}
	if c.Channels.Kafka.Enabled && len(c.Channels.Kafka.Brokers) == 0 {
		return fmt.Errorf("channels.kafka.brokers required when kafka channel enabled")
	}
	if c.Channels.Telegram.Enabled && (c.Channels.Telegram.BotToken == "" || c.Channels.Telegram.ChatID == "") {
		return fmt.Errorf("channels.telegram.bot_token and chat_id required when telegram channel enabled")
	}
	if c.Channels.Webhook.Enabled && c.Channels.Webhook.URL == "" {
		return fmt.Errorf("channels.webhook.url required when webhook channel enabled")
	}
	return nil
}
