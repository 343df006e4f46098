package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/restatedev/sdk-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/api"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/authz"
	appconfig "github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/config"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/events"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/grant"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/secrets"
	postgres "github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/storage/postgres"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/telemetry"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

const version = "1.0.0"

func loadConfig() (appconfig.Config, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return appconfig.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return appconfig.Config{}, err
	}
	return cfg, nil
}

func newLogger(lc fx.Lifecycle, cfg appconfig.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config, logger *zap.Logger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, cfg.ServiceName, version)
			if err != nil {
				logger.Warn("tracing_disabled", zap.Error(err))
				return nil
			}
			logger.Info("tracing_initialized", zap.String("service", cfg.ServiceName))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *telemetry.Metrics {
	return telemetry.NewMetrics(reg)
}

// newSQLDB returns nil when no database is configured or reachable; session
// persistence is then skipped.
func newSQLDB(lc fx.Lifecycle, cfg appconfig.Config, logger *zap.Logger) *sql.DB {
	if !cfg.Database.Enabled() {
		logger.Info("session_store_disabled")
		return nil
	}
	db, err := postgres.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Warn("session_store_unavailable", zap.String("host", cfg.Database.Host), zap.Error(err))
		return nil
	}
	logger.Info("session_store_connected", zap.String("database", cfg.Database.Database))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return db.Close() },
	})
	return db
}

func newSessionRepository(db *sql.DB) *postgres.SessionRepository {
	if db == nil {
		return nil
	}
	return postgres.NewSessionRepository(db)
}

// newKafkaProducer returns nil when no brokers are configured.
func newKafkaProducer(lc fx.Lifecycle, cfg appconfig.Config) *events.Producer {
	if !cfg.Kafka.Enabled() {
		return nil
	}
	prod := events.NewProducer(cfg.Kafka.Brokers)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return prod.Close() },
	})
	return prod
}

func newOpenPaymentsClient(cfg appconfig.Config, metrics *telemetry.Metrics) (*openpayments.Client, error) {
	op := cfg.OpenPayments
	identity, err := openpayments.LoadIdentity(op.ClientWalletAddress, op.KeyID, op.PrivateKeyPath, op.PrivateKey)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(metrics.RoundTripper(http.DefaultTransport)),
		Timeout:   op.HTTPTimeout,
	}
	return openpayments.NewClient(identity, openpayments.WithHTTPClient(httpClient)), nil
}

func newOrchestrator(cfg appconfig.Config, client *openpayments.Client, metrics *telemetry.Metrics, prod *events.Producer, repo *postgres.SessionRepository) *payment.Orchestrator {
	op := cfg.OpenPayments
	opts := []grant.Option{grant.WithPollAttempts(op.GrantPollAttempts)}
	if op.FinishURI != "" {
		opts = append(opts, grant.WithFinishURI(op.FinishURI))
	}
	grants := grant.NewNegotiator(client, opts...)

	observers := payment.Observers{payment.LogObserver{}, metrics}
	if prod != nil {
		observers = append(observers, events.NewSessionPublisher(prod))
	}
	if repo != nil {
		observers = append(observers, repo)
	}

	return payment.NewOrchestrator(
		payment.OrchestratorConfig{PayerWallet: op.PayerWalletAddress, PayeeWallet: op.PayeeWalletAddress},
		wallet.NewResolver(client),
		payment.NewIncomingPayments(grants, client, op.IncomingPaymentTTL),
		payment.NewQuotes(grants, client),
		payment.NewOutgoingPayments(grants, client),
		observers,
	)
}

// newPayments picks the entrypoint used by the HTTP API: the Restate ingress
// when enabled, the in-process orchestrator otherwise.
func newPayments(cfg appconfig.Config, orch *payment.Orchestrator) api.Payments {
	if cfg.PaymentsViaRestate {
		return payment.NewIngressClient(cfg.Restate.IngressURL)
	}
	return orch
}

func registerWebServer(lc fx.Lifecycle, cfg appconfig.Config, logger *zap.Logger, shutdowner fx.Shutdowner, payments api.Payments, client *openpayments.Client, repo *postgres.SessionRepository, reg *prometheus.Registry) {
	deps := api.Deps{
		Service:  cfg.ServiceName,
		Payments: payments,
		Wallets: []api.WalletEntry{
			{ID: "payer", Name: "Payer", WalletURL: cfg.OpenPayments.PayerWalletAddress},
			{ID: "payee", Name: "Payee", WalletURL: cfg.OpenPayments.PayeeWalletAddress},
		},
		Resolver: wallet.NewResolver(client),
		Authz:    authz.New(cfg.Authz.OpenFGAURL, cfg.Authz.StoreID),
		Logger:   logger,
	}
	if repo != nil {
		deps.Sessions = repo
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", api.NewRouter(deps))
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http_listening", zap.String("addr", cfg.HTTP.Addr), zap.Bool("via_restate", cfg.PaymentsViaRestate))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http_server_failed", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}

func buildRestateServer(orch *payment.Orchestrator) *server.Restate {
	h := payment.NewHandlers(orch)
	return server.NewRestate().
		Bind(h.Service()).
		Bind(h.Object())
}

func registerRestateServer(lc fx.Lifecycle, cfg appconfig.Config, logger *zap.Logger, shutdowner fx.Shutdowner, srv *server.Restate) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("restate_listening",
				zap.String("addr", cfg.Restate.ListenAddr),
				zap.Strings("services", []string{payment.ServiceName, payment.ObjectName}),
			)
			go func() {
				defer close(done)
				if err := srv.Start(ctx, cfg.Restate.ListenAddr); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("restate_server_failed", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func main() {
	_ = godotenv.Load()
	if err := secrets.BootstrapFromOpenBao(context.Background()); err != nil {
		logging.MustNew("payment-orchestrator", "").Fatal("openbao_bootstrap_failed", zap.Error(err))
	}

	app := fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger { return &fxevent.ZapLogger{Logger: l} }),
		fx.Provide(
			loadConfig,
			newLogger,
			newRegistry,
			newMetrics,
			newSQLDB,
			newSessionRepository,
			newKafkaProducer,
			newOpenPaymentsClient,
			newOrchestrator,
			newPayments,
			buildRestateServer,
		),
		fx.Invoke(
			setupTelemetry,
			registerWebServer,
			registerRestateServer,
		),
	)
	if err := app.Err(); err != nil {
		os.Exit(1)
	}
	app.Run()
}
