package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Provider      ProviderConfig     `mapstructure:"provider"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Tracker       TrackerConfig      `mapstructure:"tracker"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ProviderConfig contains blockchain-data provider configuration.
// API keys are read from MORALIS_API_1..MORALIS_API_N environment
// variables; blank slots are dropped.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKeys        []string      `mapstructure:"api_keys"`
	MaxAPIKeys     int           `mapstructure:"max_api_keys"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// TrackerConfig contains fleet-sweep scheduling configuration
type TrackerConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	IngestWindow      time.Duration `mapstructure:"ingest_window"`
	CursorResetTime   string        `mapstructure:"cursor_reset_time"` // HH:MM local time
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	TransactionsLimit int           `mapstructure:"transactions_limit"`
}

// NotificationConfig contains realtime and operator-alert configuration
type NotificationConfig struct {
	EnableWebSocket    bool          `mapstructure:"enable_websocket"`
	EnableRedis        bool          `mapstructure:"enable_redis"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	RedisPassword      string        `mapstructure:"redis_password"`
	RedisDB            int           `mapstructure:"redis_db"`
	RedisChannel       string        `mapstructure:"redis_channel"`
	OperatorWebhookURL string        `mapstructure:"operator_webhook_url"`
	SendTimeout        time.Duration `mapstructure:"send_timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("WALLET_TRACKER")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if operatorURL := os.Getenv("OPERATOR_WEBHOOK_URL"); operatorURL != "" {
		config.Notifications.OperatorWebhookURL = operatorURL
	}

	// Collect the credential pool from the environment unless the config
	// file supplied one explicitly (test setups do).
	if len(config.Provider.APIKeys) == 0 {
		config.Provider.APIKeys = collectAPIKeys(config.Provider.MaxAPIKeys)
	}

	return &config, nil
}

// collectAPIKeys gathers MORALIS_API_1..MORALIS_API_n, dropping blanks
func collectAPIKeys(max int) []string {
	keys := make([]string, 0, max)
	for i := 1; i <= max; i++ {
		if key := os.Getenv(fmt.Sprintf("MORALIS_API_%d", i)); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "wallet-tracker")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Provider defaults
	viper.SetDefault("provider.base_url", "https://deep-index.moralis.io/api/v2.2")
	viper.SetDefault("provider.max_api_keys", 50)
	viper.SetDefault("provider.request_timeout", "30s")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/tracker.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Tracker defaults (the original sweep cadence is 30 seconds)
	viper.SetDefault("tracker.poll_interval", "30s")
	viper.SetDefault("tracker.ingest_window", "24h")
	viper.SetDefault("tracker.cursor_reset_time", "00:00")
	viper.SetDefault("tracker.sweep_interval", "6h")
	viper.SetDefault("tracker.transactions_limit", 50)

	// Notification defaults
	viper.SetDefault("notifications.enable_websocket", true)
	viper.SetDefault("notifications.enable_redis", false)
	viper.SetDefault("notifications.redis_addr", "localhost:6379")
	viper.SetDefault("notifications.redis_db", 0)
	viper.SetDefault("notifications.redis_channel", "wallet-tracker:transactions")
	viper.SetDefault("notifications.send_timeout", "10s")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker poll interval must be positive")
	}
	if c.Tracker.IngestWindow <= 0 {
		return fmt.Errorf("tracker ingest window must be positive")
	}
	if _, err := time.Parse("15:04", c.Tracker.CursorResetTime); err != nil {
		return fmt.Errorf("tracker cursor reset time must be HH:MM: %w", err)
	}
	return nil
}
