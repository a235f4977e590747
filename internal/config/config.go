package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/gateway/asaas"
)

// TrustMode says whether the push payload is ground truth or just a hint
// that must be confirmed against the provider API. Confirming is the
// default: an unauthenticated push is not trusted on its own.
type TrustMode string

const (
	TrustModeConfirm TrustMode = "confirm"
	TrustModePush    TrustMode = "push"
)

type Config struct {
	HTTPPort int

	DBConfig struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	MigrationsPath string

	KafkaBrokerURL     string
	KafkaAlertsTopic   string
	KafkaStockTopic    string
	KafkaReplayTopic   string
	KafkaConsumerGroup string

	AsaasBaseURL string
	AsaasToken   string
	AsaasSandbox bool
	AsaasTimeout time.Duration

	InvoicePrefix      string
	TrustMode          TrustMode
	CreditedIsTerminal bool

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration
}

func LoadConfig() (*Config, error) {
	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("RECONCILER_HTTP_PORT", 8080)

	cfg.DBConfig.Host = getEnvOrDefault("RECONCILER_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("RECONCILER_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("RECONCILER_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("RECONCILER_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("RECONCILER_DB_NAME", "reconciler_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("RECONCILER_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("RECONCILER_MIGRATIONS_PATH", "file://migrations")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaAlertsTopic = getEnvOrDefault("KAFKA_OPERATOR_ALERTS_TOPIC", "operator_alerts")
	cfg.KafkaStockTopic = getEnvOrDefault("KAFKA_STOCK_EVENTS_TOPIC", "stock_adjustments")
	cfg.KafkaReplayTopic = getEnvOrDefault("KAFKA_NOTIFICATION_REPLAY_TOPIC", "notification_replays")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "reconciler-replay-group")

	cfg.AsaasSandbox = getEnvAsBool("ASAAS_SANDBOX", false)
	defaultBaseURL := asaas.ProductionBaseURL
	if cfg.AsaasSandbox {
		defaultBaseURL = asaas.SandboxBaseURL
	}
	cfg.AsaasBaseURL = getEnvOrDefault("ASAAS_BASE_URL", defaultBaseURL)
	cfg.AsaasToken = getEnvOrDefault("ASAAS_ACCESS_TOKEN", "")
	cfg.AsaasTimeout = getEnvAsDuration("ASAAS_TIMEOUT", 60*time.Second)

	cfg.InvoicePrefix = getEnvOrDefault("INVOICE_PREFIX", "WC-")
	cfg.CreditedIsTerminal = getEnvAsBool("CREDITED_IS_TERMINAL", false)

	switch mode := TrustMode(getEnvOrDefault("NOTIFICATION_TRUST_MODE", string(TrustModeConfirm))); mode {
	case TrustModeConfirm, TrustModePush:
		cfg.TrustMode = mode
	default:
		return nil, fmt.Errorf("invalid NOTIFICATION_TRUST_MODE %q (want %q or %q)", mode, TrustModeConfirm, TrustModePush)
	}

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	if cfg.TrustMode == TrustModeConfirm && cfg.AsaasToken == "" {
		return nil, fmt.Errorf("ASAAS_ACCESS_TOKEN is required when NOTIFICATION_TRUST_MODE is %q", TrustModeConfirm)
	}

	return cfg, nil
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
