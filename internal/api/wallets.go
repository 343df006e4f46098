package api

import (
	"context"
	"net/http"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/wallet"
)

// WalletEntry is a wallet the service is configured to use.
type WalletEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	WalletURL string `json:"walletUrl"`
}

type WalletResolver interface {
	Resolve(ctx context.Context, id string) (*wallet.Address, error)
}

type walletView struct {
	WalletEntry
	AssetCode  string `json:"assetCode,omitempty"`
	AssetScale *int   `json:"assetScale,omitempty"`
}

type walletsHandler struct {
	entries  []WalletEntry
	resolver WalletResolver
}

// GET /api/wallets. Entries that resolve are enriched with their public name
// and asset; unreachable wallets are still listed.
func (h *walletsHandler) list(w http.ResponseWriter, r *http.Request) {
	out := make([]walletView, 0, len(h.entries))
	for _, e := range h.entries {
		v := walletView{WalletEntry: e}
		if h.resolver != nil {
			if addr, err := h.resolver.Resolve(r.Context(), e.WalletURL); err == nil {
				if addr.PublicName != "" {
					v.Name = addr.PublicName
				}
				v.AssetCode = addr.AssetCode
				scale := addr.AssetScale
				v.AssetScale = &scale
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "wallets": out})
}
