package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Agents      AgentsConfig    `mapstructure:"agents"`
	Simulator   SimulatorConfig `mapstructure:"simulator"`
	Stats       StatsConfig     `mapstructure:"stats"`
	Reports     ReportsConfig   `mapstructure:"reports"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`
	WriteTimeout    int `mapstructure:"write_timeout"`
	IdleTimeout     int `mapstructure:"idle_timeout"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
	ConnMaxLifetime    int    `mapstructure:"connection_max_lifetime"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	Database     int    `mapstructure:"database"`
	DialTimeout  int    `mapstructure:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	PoolSize     int    `mapstructure:"pool_size"`
}

// KafkaConfig contains the transaction feed settings. The feed is optional;
// with Enabled=false the monitor agent performs no ingestion.
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	MinBytes      int      `mapstructure:"min_bytes"`
	MaxBytes      int      `mapstructure:"max_bytes"`
	MaxWait       int      `mapstructure:"max_wait"`
	BufferSize    int      `mapstructure:"buffer_size"`
}

// AuthConfig contains dashboard authentication settings
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTExpiry     int    `mapstructure:"jwt_expiry"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// AgentsConfig contains bootstrap intervals per agent type
type AgentsConfig struct {
	IntervalSeconds map[string]int `mapstructure:"interval_seconds"`
}

// SimulatorConfig contains the synthetic transaction generator settings
type SimulatorConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	Seed            int64  `mapstructure:"seed"`
	Network         string `mapstructure:"network"`
}

// StatsConfig contains the dashboard stats broadcaster settings
type StatsConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	SampleSize      int `mapstructure:"sample_size"`
}

// ReportsConfig contains report generation settings
type ReportsConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	StepDelayMs int    `mapstructure:"step_delay_ms"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CHAIN_MONITOR")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env vars still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host not configured")
	}
	if c.Server.Port == 0 {
		return fmt.Errorf("server port not configured")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.shutdown_timeout", 15)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "chain_monitor")
	viper.SetDefault("database.username", "chain_monitor")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_connections", 25)
	viper.SetDefault("database.max_idle_connections", 25)
	viper.SetDefault("database.connection_max_lifetime", 300)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.dial_timeout", 5)
	viper.SetDefault("redis.read_timeout", 3)
	viper.SetDefault("redis.write_timeout", 3)
	viper.SetDefault("redis.pool_size", 10)

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.topic", "chain.transactions")
	viper.SetDefault("kafka.consumer_group", "chain-monitor")
	viper.SetDefault("kafka.min_bytes", 1)
	viper.SetDefault("kafka.max_bytes", 1048576)
	viper.SetDefault("kafka.max_wait", 2)
	viper.SetDefault("kafka.buffer_size", 1000)

	// Auth defaults
	viper.SetDefault("auth.jwt_expiry", 60)
	viper.SetDefault("auth.admin_username", "admin")

	// Agent bootstrap intervals
	viper.SetDefault("agents.interval_seconds.monitor", 30)
	viper.SetDefault("agents.interval_seconds.behavior_analysis", 60)
	viper.SetDefault("agents.interval_seconds.risk_scoring", 30)
	viper.SetDefault("agents.interval_seconds.alerting", 45)
	viper.SetDefault("agents.interval_seconds.reporting", 120)

	// Simulator defaults
	viper.SetDefault("simulator.enabled", false)
	viper.SetDefault("simulator.interval_seconds", 5)
	viper.SetDefault("simulator.network", "ethereum")

	// Stats defaults
	viper.SetDefault("stats.interval_seconds", 15)
	viper.SetDefault("stats.cache_ttl_seconds", 10)
	viper.SetDefault("stats.sample_size", 1000)

	// Reports defaults
	viper.SetDefault("reports.output_dir", "reports")
	viper.SetDefault("reports.step_delay_ms", 500)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.endpoint", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars() {
	if host := os.Getenv("DATABASE_HOST"); host != "" {
		viper.Set("database.host", host)
	}
	if port := os.Getenv("DATABASE_PORT"); port != "" {
		viper.Set("database.port", port)
	}
	if name := os.Getenv("DATABASE_NAME"); name != "" {
		viper.Set("database.name", name)
	}
	if username := os.Getenv("DATABASE_USERNAME"); username != "" {
		viper.Set("database.username", username)
	}
	if password := os.Getenv("DATABASE_PASSWORD"); password != "" {
		viper.Set("database.password", password)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("redis.host", host)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("redis.password", password)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		viper.Set("kafka.brokers", strings.Split(brokers, ","))
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("auth.jwt_secret", jwtSecret)
	}
	if adminPassword := os.Getenv("ADMIN_PASSWORD"); adminPassword != "" {
		viper.Set("auth.admin_password", adminPassword)
	}
}
