package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/email"
	postgres "github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/storage/postgres"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName        string
	Env                string
	PaymentsViaRestate bool
	HTTP               HTTPConfig
	Restate            RestateConfig
	Kafka              KafkaConfig
	Database           postgres.DatabaseConfig
	Email              EmailConfig
	OpenPayments       OpenPaymentsConfig
	Authz              AuthzConfig
}

type HTTPConfig struct {
	Addr string
}

type RestateConfig struct {
	ListenAddr string
	IngressURL string
}

type KafkaConfig struct {
	Brokers       []string
	PaymentsTopic string
	EmailGroup    string
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type EmailConfig struct {
	SMTP          email.SMTPConfig
	DemoRecipient string
}

type OpenPaymentsConfig struct {
	ClientWalletAddress string
	KeyID               string
	PrivateKeyPath      string
	PrivateKey          string
	PayerWalletAddress  string
	PayeeWalletAddress  string
	IncomingPaymentTTL  time.Duration
	HTTPTimeout         time.Duration
	GrantPollAttempts   int
	FinishURI           string
}

type AuthzConfig struct {
	OpenFGAURL string
	StoreID    string
}

// Load reads configuration from environment variables, applying sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "payment-orchestrator"),
		Env:         getEnv("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_LISTEN_ADDR", ":3000"),
		},
		Restate: RestateConfig{
			ListenAddr: getEnv("RESTATE_LISTEN_ADDR", ":9081"),
			IngressURL: getEnv("RESTATE_INGRESS_URL", "http://127.0.0.1:8080"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			PaymentsTopic: getEnv("KAFKA_PAYMENTS_TOPIC", "payments.v1"),
			EmailGroup:    getEnv("KAFKA_EMAIL_GROUP_ID", "email-workers"),
		},
		Email: EmailConfig{
			SMTP: email.SMTPConfig{
				Host:     getEnv("SMTP_HOST", ""),
				Port:     getEnv("SMTP_PORT", "1025"),
				From:     getEnv("SMTP_FROM", "no-reply@example.local"),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
			},
			DemoRecipient: getEnv("DEMO_TO_EMAIL", "test@example.local"),
		},
		OpenPayments: OpenPaymentsConfig{
			ClientWalletAddress: getEnv("OPEN_PAYMENTS_CLIENT_ADDRESS", ""),
			KeyID:               getEnv("OPEN_PAYMENTS_KEY_ID", ""),
			PrivateKeyPath:      getEnv("OPEN_PAYMENTS_PRIVATE_KEY_PATH", ""),
			PrivateKey:          getEnv("OPEN_PAYMENTS_PRIVATE_KEY", ""),
			PayerWalletAddress:  getEnv("OPEN_PAYMENTS_PAYER_WALLET", ""),
			PayeeWalletAddress:  getEnv("OPEN_PAYMENTS_PAYEE_WALLET", ""),
			FinishURI:           getEnv("OPEN_PAYMENTS_FINISH_URI", ""),
		},
		Authz: AuthzConfig{
			OpenFGAURL: getEnv("OPENFGA_API_URL", ""),
			StoreID:    getEnv("OPENFGA_STORE_ID", ""),
		},
	}

	var err error
	if cfg.PaymentsViaRestate, err = strconv.ParseBool(getEnv("PAYMENTS_VIA_RESTATE", "false")); err != nil {
		return Config{}, fmt.Errorf("parse PAYMENTS_VIA_RESTATE: %w", err)
	}
	if cfg.OpenPayments.IncomingPaymentTTL, err = time.ParseDuration(getEnv("OPEN_PAYMENTS_INCOMING_TTL", "60m")); err != nil {
		return Config{}, fmt.Errorf("parse OPEN_PAYMENTS_INCOMING_TTL: %w", err)
	}
	if cfg.OpenPayments.HTTPTimeout, err = time.ParseDuration(getEnv("OPEN_PAYMENTS_HTTP_TIMEOUT", "15s")); err != nil {
		return Config{}, fmt.Errorf("parse OPEN_PAYMENTS_HTTP_TIMEOUT: %w", err)
	}
	if cfg.OpenPayments.GrantPollAttempts, err = strconv.Atoi(getEnv("OPEN_PAYMENTS_GRANT_POLL_ATTEMPTS", "3")); err != nil {
		return Config{}, fmt.Errorf("parse OPEN_PAYMENTS_GRANT_POLL_ATTEMPTS: %w", err)
	}

	portStr := getEnv("PAYMENTS_DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse PAYMENTS_DB_PORT: %w", err)
	}

	cfg.Database = postgres.DatabaseConfig{
		Host:     getEnv("PAYMENTS_DB_HOST", ""),
		Port:     port,
		Database: getEnv("PAYMENTS_DB_NAME", "payments"),
		User:     getEnv("PAYMENTS_DB_USER", "payments"),
		Password: getEnv("PAYMENTS_DB_PASSWORD", ""),
		SSLMode:  getEnv("PAYMENTS_DB_SSLMODE", "disable"),
	}

	return cfg, nil
}

// Validate checks the settings the payment core cannot start without.
func (c Config) Validate() error {
	op := c.OpenPayments
	var missing []string
	if op.ClientWalletAddress == "" {
		missing = append(missing, "OPEN_PAYMENTS_CLIENT_ADDRESS")
	}
	if op.KeyID == "" {
		missing = append(missing, "OPEN_PAYMENTS_KEY_ID")
	}
	if op.PrivateKeyPath == "" && op.PrivateKey == "" {
		missing = append(missing, "OPEN_PAYMENTS_PRIVATE_KEY_PATH or OPEN_PAYMENTS_PRIVATE_KEY")
	}
	if op.PayerWalletAddress == "" {
		missing = append(missing, "OPEN_PAYMENTS_PAYER_WALLET")
	}
	if op.PayeeWalletAddress == "" {
		missing = append(missing, "OPEN_PAYMENTS_PAYEE_WALLET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
