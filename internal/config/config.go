package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	DBMaxConns int

	RedisHost string
	RedisPort string
	NatsHost  string
	NatsPort  string

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	ApiPort        string
	CORSOrigins    string
	ApiEnabled     string
	GRPCHost       string
	GRPCPort       string
	GRPCListenPort string

	StoreProvider  string
	BusProvider    string
	WorkerProvider string
	BusBufferSize  int

	LockWaitTimeout    time.Duration
	LockLeaseTimeout   time.Duration
	LockRetryDelay     time.Duration
	CancelWindowYears  int
	MaxAccountsPerUser int
	CacheTTL           time.Duration

	LogLevel string
}

// New loads and validates configuration from environment variables.
// HTTP server is optional: if TALLY_API_ENABLED != "true", ApiAddr() returns an error
// and the HTTP server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:         os.Getenv("TALLY_POSTGRES_USER"),
		DBPass:         os.Getenv("TALLY_POSTGRES_PASSWORD"),
		DBHost:         os.Getenv("TALLY_POSTGRES_HOST"),
		DBPort:         getEnv("TALLY_POSTGRES_PORT", "5432"),
		DBName:         os.Getenv("TALLY_POSTGRES_DB"),
		SSLMode:        os.Getenv("TALLY_POSTGRES_SSLMODE"),
		DBMaxConns:     getEnvInt("TALLY_POSTGRES_MAX_CONNS", 10),
		RedisHost:      os.Getenv("TALLY_REDIS_HOST"),
		RedisPort:      os.Getenv("TALLY_REDIS_PORT"),
		NatsHost:       os.Getenv("TALLY_NATS_HOST"),
		NatsPort:       os.Getenv("TALLY_NATS_PORT"),
		KafkaBrokers:   os.Getenv("TALLY_KAFKA_BROKERS"),
		KafkaTopic:     getEnv("TALLY_KAFKA_TOPIC", "ledger.transactions.recorded"),
		KafkaGroupID:   getEnv("TALLY_KAFKA_GROUP_ID", "tally-projection"),
		ApiPort:        os.Getenv("TALLY_API_PORT"),
		CORSOrigins:    getEnv("TALLY_CORS_ORIGINS", "*"),
		ApiEnabled:     os.Getenv("TALLY_API_ENABLED"),
		GRPCHost:       os.Getenv("TALLY_GRPC_HOST"),
		GRPCPort:       os.Getenv("TALLY_GRPC_PORT"),
		GRPCListenPort: getEnv("TALLY_GRPC_LISTEN_PORT", "50051"),
		StoreProvider:  getEnv("TALLY_STORE_PROVIDER", "postgres"),
		BusProvider:    os.Getenv("TALLY_BUS_PROVIDER"),
		WorkerProvider: os.Getenv("TALLY_WORKER_PROVIDER"),
		BusBufferSize:  getEnvInt("TALLY_BUS_BUFFER_SIZE", 1024),

		LockWaitTimeout:    getEnvDuration("TALLY_LOCK_WAIT_TIMEOUT", time.Second),
		LockLeaseTimeout:   getEnvDuration("TALLY_LOCK_LEASE_TIMEOUT", 15*time.Second),
		LockRetryDelay:     getEnvDuration("TALLY_LOCK_RETRY_DELAY", 50*time.Millisecond),
		CancelWindowYears:  getEnvInt("TALLY_CANCEL_WINDOW_YEARS", 1),
		MaxAccountsPerUser: getEnvInt("TALLY_MAX_ACCOUNTS_PER_USER", 10),
		CacheTTL:           getEnvDuration("TALLY_CACHE_TTL", 10*time.Minute),

		LogLevel: getEnv("TALLY_LOG_LEVEL", "info"),
	}

	// Required: database
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
			return nil, fmt.Errorf("missing required env for database: TALLY_POSTGRES_USER/HOST/DB/SSLMODE")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be 'postgres' or 'memory'", cfg.StoreProvider)
	}

	// Required: redis holds the account locks
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: TALLY_REDIS_HOST/PORT")
	}

	// Required: bus provider
	if cfg.BusProvider == "" {
		return nil, fmt.Errorf("missing required env: TALLY_BUS_PROVIDER (nats|grpc|kafka)")
	}
	if !validProvider(cfg.BusProvider) {
		return nil, fmt.Errorf("invalid bus provider %q, must be 'nats', 'grpc' or 'kafka'", cfg.BusProvider)
	}

	// Worker provider defaults to the bus provider
	if cfg.WorkerProvider == "" {
		cfg.WorkerProvider = cfg.BusProvider
	}
	if !validProvider(cfg.WorkerProvider) {
		return nil, fmt.Errorf("invalid worker provider %q, must be 'nats', 'grpc' or 'kafka'", cfg.WorkerProvider)
	}
	if cfg.BusProvider == "grpc" && (cfg.GRPCHost == "" || cfg.GRPCPort == "") {
		return nil, fmt.Errorf("missing required env for grpc bus: TALLY_GRPC_HOST/PORT")
	}
	if (cfg.BusProvider == "nats" || cfg.WorkerProvider == "nats") && (cfg.NatsHost == "" || cfg.NatsPort == "") {
		return nil, fmt.Errorf("missing required env for nats: TALLY_NATS_HOST/PORT")
	}
	if (cfg.BusProvider == "kafka" || cfg.WorkerProvider == "kafka") && cfg.KafkaBrokers == "" {
		return nil, fmt.Errorf("missing required env for kafka: TALLY_KAFKA_BROKERS")
	}

	// Lock timeouts
	if cfg.LockWaitTimeout < 0 || cfg.LockRetryDelay <= 0 {
		return nil, fmt.Errorf("invalid lock timing: wait %s, retry delay %s", cfg.LockWaitTimeout, cfg.LockRetryDelay)
	}
	if cfg.LockLeaseTimeout <= cfg.LockWaitTimeout {
		return nil, fmt.Errorf("TALLY_LOCK_LEASE_TIMEOUT (%s) must exceed TALLY_LOCK_WAIT_TIMEOUT (%s)",
			cfg.LockLeaseTimeout, cfg.LockWaitTimeout)
	}
	if cfg.CancelWindowYears < 1 || cfg.MaxAccountsPerUser < 1 {
		return nil, fmt.Errorf("TALLY_CANCEL_WINDOW_YEARS and TALLY_MAX_ACCOUNTS_PER_USER must be positive")
	}

	return cfg, nil
}

func validProvider(p string) bool {
	return p == "nats" || p == "grpc" || p == "kafka"
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%s", c.GRPCHost, c.GRPCPort)
}

func (c *Config) GRPCListenAddr() string {
	return ":" + c.GRPCListenPort
}

func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) CORSOriginList() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if TALLY_API_ENABLED != "true"; callers should skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("TALLY_API_PORT is required when TALLY_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (TALLY_API_ENABLED != true)")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
