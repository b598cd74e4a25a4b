package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Booking   BookingConfig   `mapstructure:"booking"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	MachineId      uint16   `mapstructure:"machine_id"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds relational storage configuration
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns the data source name for the configured driver
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	case DriverSQLite:
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
	}
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PushChannelSize  int           `mapstructure:"push_channel_size"`
	PushWorkerNum    int           `mapstructure:"push_worker_num"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// KafkaConfig holds the notification sink configuration
type KafkaConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Mechanism string   `mapstructure:"mechanism"` // PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512
	UseTLS    bool     `mapstructure:"use_tls"`
	CertFile  string   `mapstructure:"cert_file"`
	KeyFile   string   `mapstructure:"key_file"`
	CAFile    string   `mapstructure:"ca_file"`
}

// NotifyConfig holds notification dispatcher configuration
type NotifyConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	WorkerNum int `mapstructure:"worker_num"`
}

// BookingConfig holds the booking directory client configuration.
// An empty BaseURL disables booking context prefill.
type BookingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Global config instance
var GlobalConfig *Config

// envPrefix is the prefix of environment overrides, e.g. TRATO_DATABASE_PASSWORD
const envPrefix = "TRATO"

// Load loads configuration from file.
// A .env file in the working directory is loaded first when present and
// environment variables override file values.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return errors.New("websocket.ping_period must be less than websocket.pong_wait")
	}
	return nil
}

// SetDefaults fills every unset setting that has a usable default
func (c *Config) SetDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Server.MachineId == 0 {
		c.Server.MachineId = 1
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Path == "" {
		c.Database.Path = "trato.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "trato:"
	}
	if c.JWT.ExpireHours == 0 {
		c.JWT.ExpireHours = 168 // 7 days
	}
	if c.WebSocket.MaxConnNum == 0 {
		c.WebSocket.MaxConnNum = 10000
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = 51200
	}
	if c.WebSocket.WriteWait == 0 {
		c.WebSocket.WriteWait = 10 * time.Second
	}
	if c.WebSocket.PongWait == 0 {
		c.WebSocket.PongWait = 30 * time.Second
	}
	if c.WebSocket.PingPeriod == 0 {
		c.WebSocket.PingPeriod = 27 * time.Second
	}
	if c.WebSocket.PushChannelSize == 0 {
		c.WebSocket.PushChannelSize = 10000
	}
	if c.WebSocket.PushWorkerNum == 0 {
		c.WebSocket.PushWorkerNum = 10
	}
	if c.WebSocket.WriteChannelSize == 0 {
		c.WebSocket.WriteChannelSize = 256
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "trato.notifications"
	}
	if c.Kafka.Mechanism == "" {
		c.Kafka.Mechanism = "PLAIN"
	}
	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = 1024
	}
	if c.Notify.WorkerNum == 0 {
		c.Notify.WorkerNum = 2
	}
	if c.Booking.Timeout == 0 {
		c.Booking.Timeout = 2 * time.Second
	}
}
