package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/authz"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/storage/postgres"
)

// Payments is satisfied by payment.Orchestrator and payment.IngressClient.
type Payments interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Outcome, error)
	Complete(ctx context.Context, req payment.CompleteRequest) (*payment.Outcome, error)
}

// Sessions looks up persisted sessions. Optional.
type Sessions interface {
	Get(ctx context.Context, key string) (*postgres.SessionRecord, error)
}

type Deps struct {
	Service  string
	Payments Payments
	Sessions Sessions
	Wallets  []WalletEntry
	Resolver WalletResolver
	Authz    authz.Client
	Logger   *zap.Logger
}

// NewRouter builds the public HTTP surface.
func NewRouter(d Deps) http.Handler {
	if d.Authz == nil {
		d.Authz = authz.NoopClient{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	object := authz.PaymentsObject(d.Service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogger(d.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		p := &paymentsHandler{payments: d.Payments, sessions: d.Sessions}
		r.With(authz.Require(d.Authz, authz.Static(object, authz.RelationInitiate))).
			Method(http.MethodPost, "/payments", otelhttp.NewHandler(http.HandlerFunc(p.initiate), "payments-initiate"))
		r.With(authz.Require(d.Authz, authz.Static(object, authz.RelationComplete))).
			Method(http.MethodPost, "/payments/complete", otelhttp.NewHandler(http.HandlerFunc(p.complete), "payments-complete"))
		r.Get("/payments/callback", interactionCallback)
		if d.Sessions != nil {
			r.Get("/payments/sessions/{key}", p.session)
		}

		wh := &walletsHandler{entries: d.Wallets, resolver: d.Resolver}
		r.Get("/wallets", wh.list)
	})
	return r
}

func withLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			next.ServeHTTP(w, r.WithContext(logging.ContextWithLogger(r.Context(), logger)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
