package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/authz"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.MustNew("seed-authz", "")
	defer func() { _ = logger.Sync() }()

	api := getenv("OPENFGA_API_URL", "http://localhost:8081")
	store := os.Getenv("OPENFGA_STORE_ID")
	if store == "" {
		logger.Fatal("OPENFGA_STORE_ID not set. Create a store and export its ID.")
	}
	object := authz.PaymentsObject(getenv("SERVICE_NAME", "payment-orchestrator"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := authz.NewOpenFGAClient(api, store)

	tuples := []authz.Tuple{
		{User: "user:alice", Relation: authz.RelationInitiate, Object: object},
		{User: "user:alice", Relation: authz.RelationComplete, Object: object},
		{User: "user:bob", Relation: authz.RelationComplete, Object: object},
	}
	if err := client.Write(ctx, tuples...); err != nil {
		logger.Fatal("write_tuples_failed", zap.Error(err))
	}
	logger.Info("seeded_tuples", zap.Int("count", len(tuples)), zap.String("object", object))

	expect := []struct {
		tuple authz.Tuple
		want  bool
	}{
		{authz.Tuple{User: "user:alice", Relation: authz.RelationInitiate, Object: object}, true},
		{authz.Tuple{User: "user:bob", Relation: authz.RelationInitiate, Object: object}, false},
		{authz.Tuple{User: "user:bob", Relation: authz.RelationComplete, Object: object}, true},
	}
	for _, e := range expect {
		allowed, err := client.Check(ctx, e.tuple.User, e.tuple.Object, e.tuple.Relation)
		if err != nil {
			logger.Fatal("check_failed", zap.String("user", e.tuple.User), zap.Error(err))
		}
		logger.Info("check", zap.String("user", e.tuple.User), zap.String("relation", e.tuple.Relation), zap.Bool("allowed", allowed))
		if allowed != e.want {
			logger.Fatal("seed_verification_failed", zap.String("user", e.tuple.User), zap.String("relation", e.tuple.Relation))
		}
	}
	logger.Info("authz_seed_verified")
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
