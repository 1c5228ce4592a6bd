package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string `mapstructure:"APP_NAME"`
	Port                          int    `mapstructure:"PORT"`
	LogLevel                      string `mapstructure:"LOG_LEVEL"`
	PrettyLogs                    bool   `mapstructure:"PRETTY_LOGS"`
	HttpServerWriteTimeoutSeconds int    `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS"`
	HttpServerReadTimeoutSeconds  int    `mapstructure:"HTTP_SERVER_READ_TIMEOUT_SECONDS"`
	HttpServerIdleTimeoutSeconds  int    `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS"`
	StartupMaxAttempts            int    `mapstructure:"STARTUP_MAX_ATTEMPTS"`

	// StoreDriver selects postgres or the in-memory store
	StoreDriver string `mapstructure:"STORE_DRIVER"`

	// Database host
	DatabaseHost string `mapstructure:"DB_HOST"`
	// Database port
	DatabasePort int `mapstructure:"DB_PORT"`
	// Database user
	DatabaseUserName string `mapstructure:"DB_USER_NAME"`
	// Database user password
	DatabasePassword string `mapstructure:"DB_PASSWORD"`
	// Database name
	DatabaseName string `mapstructure:"DB_NAME"`
	// Database SSL Mode
	DatabaseSSLMode string `mapstructure:"DB_SSL_MODE"`
	// Max Open Conns
	DatabaseMaxOpenConns int `mapstructure:"DB_MAX_OPEN_CONNS"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `mapstructure:"DB_MAX_IDLE_CONNS"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	// Database Migration Version
	DatabaseMigrationVersion uint `mapstructure:"DB_MIGRATION_VERSION"`
	// Database Migration Force
	DatabaseMigrationForce int `mapstructure:"DB_MIGRATION_FORCE"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`
	// Run migrations during serve startup
	DatabaseMigrateOnStart bool `mapstructure:"DB_MIGRATE_ON_START"`

	// Auth Enabled - when false, the X-User-ID header names the operator
	AuthEnabled bool `mapstructure:"AUTH_ENABLED"`
	// Auth Issuer URL
	AuthIssuerURL string `mapstructure:"AUTH_ISSUER_URL"`
	// Auth Client ID
	AuthClientID string `mapstructure:"AUTH_CLIENT_ID"`

	// Redis
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     int    `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Locking: redis for multi-instance deployments, local for a single process
	LockDriver      string        `mapstructure:"LOCK_DRIVER"`
	LockTTL         time.Duration `mapstructure:"LOCK_TTL"`
	LockWaitTimeout time.Duration `mapstructure:"LOCK_WAIT_TIMEOUT"`

	// Kafka
	KafkaBrokers         []string `mapstructure:"KAFKA_BROKERS"`
	KafkaInputTopic      string   `mapstructure:"KAFKA_INPUT_TOPIC"`
	KafkaConsumerGroup   string   `mapstructure:"KAFKA_CONSUMER_GROUP"`
	KafkaOutputTopic     string   `mapstructure:"KAFKA_OUTPUT_TOPIC"`
	KafkaErrorTopic      string   `mapstructure:"KAFKA_ERROR_TOPIC"`
	KafkaConsumerEnabled bool     `mapstructure:"KAFKA_CONSUMER_ENABLED"`
	KafkaProducerEnabled bool     `mapstructure:"KAFKA_PRODUCER_ENABLED"`
	KafkaRequiredAcks    int      `mapstructure:"KAFKA_REQUIRED_ACKS"`

	// Hold maturity sweep
	SweepEnabled   bool          `mapstructure:"SWEEP_ENABLED"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepBatchSize int           `mapstructure:"SWEEP_BATCH_SIZE"`

	// Settlement
	RateTablePath     string `mapstructure:"RATE_TABLE_PATH"`
	DefaultUnitTarget int    `mapstructure:"DEFAULT_UNIT_TARGET"`

	// Tracing
	OTLPEnabled  bool   `mapstructure:"OTLP_ENABLED"`
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	OTLPProtocol string `mapstructure:"OTLP_PROTOCOL"`
	OTLPInsecure bool   `mapstructure:"OTLP_INSECURE"`
}

var defaults = map[string]any{
	"APP_NAME":                          "fern",
	"PORT":                              3000,
	"LOG_LEVEL":                         "info",
	"PRETTY_LOGS":                       false,
	"HTTP_SERVER_WRITE_TIMEOUT_SECONDS": 10,
	"HTTP_SERVER_READ_TIMEOUT_SECONDS":  10,
	"HTTP_SERVER_IDLE_TIMEOUT_SECONDS":  10,
	"STARTUP_MAX_ATTEMPTS":              5,

	"STORE_DRIVER":               "postgres",
	"DB_HOST":                    "localhost",
	"DB_PORT":                    5432,
	"DB_USER_NAME":               "",
	"DB_PASSWORD":                "",
	"DB_NAME":                    "fern",
	"DB_SSL_MODE":                "disable",
	"DB_MAX_OPEN_CONNS":          25,
	"DB_MAX_IDLE_CONNS":          10,
	"DB_CONN_MAX_LIFETIME":       "10m",
	"DB_MIGRATION_FOLDER_PATH":   "db/pg",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,
	"DB_MIGRATE_ON_START":        true,

	"AUTH_ENABLED":    false,
	"AUTH_ISSUER_URL": "",
	"AUTH_CLIENT_ID":  "",

	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"LOCK_DRIVER":       "redis",
	"LOCK_TTL":          "30s",
	"LOCK_WAIT_TIMEOUT": "10s",

	"KAFKA_BROKERS":          "localhost:9092",
	"KAFKA_INPUT_TOPIC":      "settlement.commands",
	"KAFKA_CONSUMER_GROUP":   "fern-settlement",
	"KAFKA_OUTPUT_TOPIC":     "settlement.events",
	"KAFKA_ERROR_TOPIC":      "settlement.commands.dlq",
	"KAFKA_CONSUMER_ENABLED": true,
	"KAFKA_PRODUCER_ENABLED": true,
	"KAFKA_REQUIRED_ACKS":    -1,

	"SWEEP_ENABLED":    true,
	"SWEEP_INTERVAL":   "1m",
	"SWEEP_BATCH_SIZE": 500,

	"RATE_TABLE_PATH":     "",
	"DEFAULT_UNIT_TARGET": 48,

	"OTLP_ENABLED":  false,
	"OTLP_ENDPOINT": "localhost:4317",
	"OTLP_PROTOCOL": "grpc",
	"OTLP_INSECURE": true,
}

// Load reads .env files (when present) and the environment into a Config.
// Environment variables win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
