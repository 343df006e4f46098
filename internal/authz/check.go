package authz

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
)

const (
	RelationInitiate = "can_initiate"
	RelationComplete = "can_complete"
)

// PaymentsObject names the object guarding a service's payment endpoints.
func PaymentsObject(service string) string {
	return "payments:" + service
}

// PrincipalFromRequest extracts the effective principal.
// Order of precedence:
// - act_as cookie (if set)
// - X-Principal header
// - X-User header
// - anonymous
func PrincipalFromRequest(r *http.Request) string {
	if c, err := r.Cookie("act_as"); err == nil && c.Value != "" {
		return c.Value
	}
	if v := r.Header.Get("X-Principal"); v != "" {
		return v
	}
	if v := r.Header.Get("X-User"); v != "" {
		return v
	}
	return "user:anonymous"
}

// Can checks authorization for the request principal. Errors deny.
func Can(ctx context.Context, c Client, r *http.Request, object, relation string) (bool, error) {
	principal := PrincipalFromRequest(r)
	allowed, err := c.Check(ctx, principal, object, relation)
	if err != nil {
		logging.FromContext(ctx).Warn("authz_check_failed",
			zap.String("user", principal),
			zap.String("object", object),
			zap.String("relation", relation),
			zap.Error(err),
		)
		return false, err
	}
	return allowed, nil
}
