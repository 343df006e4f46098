package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	appconfig "github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/config"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/email"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/events"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appconfig.Load()
	if err != nil {
		logging.MustNew("email-worker", "").Fatal("config_load_failed", zap.Error(err))
	}
	logger := logging.MustNew("email-worker", cfg.Env)
	defer func() { _ = logger.Sync() }()

	if !cfg.Kafka.Enabled() {
		logger.Fatal("kafka_brokers_not_configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.EmailGroup, cfg.Kafka.PaymentsTopic)
	defer consumer.Close()
	consumer.OnError(func(msg kafka.Message, err error) {
		logger.Warn("payment_event_skipped",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	})

	notifier := email.NewNotifier(pickSender(cfg, logger), cfg.Email.DemoRecipient)
	logger.Info("email_worker_consuming", zap.String("group", cfg.Kafka.EmailGroup), zap.String("topic", cfg.Kafka.PaymentsTopic))
	if err := consumer.Run(ctx, notifier.Handle); err != nil {
		logger.Fatal("email_worker_stopped", zap.Error(err))
	}
}

// pickSender uses SMTP if configured; else falls back to logging.
func pickSender(cfg appconfig.Config, logger *zap.Logger) email.Sender {
	if cfg.Email.SMTP.Host != "" {
		return email.NewSMTPSender(cfg.Email.SMTP)
	}
	return email.LogSender{Logger: logger}
}
