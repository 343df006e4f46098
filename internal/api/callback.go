package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
)

// GET /api/payments/callback
//
// The authorization server redirects the payer here once the interaction
// finishes. The caller still holds the resume handle, so the interact
// reference is handed back for it to pass to /api/payments/complete.
func interactionCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logger := logging.FromContext(r.Context())

	if reason := q.Get("error"); reason != "" {
		logger.Info("payment_interaction_rejected", zap.String("reason", reason))
		writeJSON(w, http.StatusOK, map[string]any{"status": "rejected", "error": reason})
		return
	}

	ref := q.Get("interact_ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing interact_ref")
		return
	}
	logger.Info("payment_interaction_finished", zap.Bool("has_hash", q.Get("hash") != ""))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "received",
		"interactRef": ref,
		"hash":        q.Get("hash"),
	})
}
