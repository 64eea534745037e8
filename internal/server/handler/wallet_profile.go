package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// WalletProfileService builds the per-wallet aggregate.
type WalletProfileService interface {
	Get(ctx context.Context, wallet string) (domain.WalletProfile, error)
}

// WalletProfileHandler serves wallet profiles.
type WalletProfileHandler struct {
	profiles WalletProfileService
	logger   *slog.Logger
}

// NewWalletProfileHandler creates a WalletProfileHandler.
func NewWalletProfileHandler(profiles WalletProfileService, logger *slog.Logger) *WalletProfileHandler {
	return &WalletProfileHandler{profiles: profiles, logger: logHandler(logger, "wallet_profile")}
}

// GetProfile returns the wallet's category breakdown and interest profile.
// Unknown wallets get a zero-valued profile.
// GET /api/wallet-profile/{wallet}
func (h *WalletProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), pathParam(r, "wallet"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load wallet profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
