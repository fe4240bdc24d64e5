package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/models"
	"evrewards/backend/services/rewards-service/internal/service"
)

// NewInitializePlatformHandler handles POST /platform/initialize. The signer becomes admin.
func NewInitializePlatformHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		FeeBps uint64 `json:"fee_bps"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		admin, ok := requireSigner(w, r)
		if !ok {
			return
		}
		var req request
		if !decodeJSON(w, r, &req) {
			return
		}

		registry, err := svc.InitializePlatform(r.Context(), admin, req.FeeBps)
		if err != nil {
			writeServiceError(w, logger, "initialize_platform", err)
			return
		}
		writeJSON(w, http.StatusCreated, registry)
	}
}

// NewPlatformHandler handles GET /platform: the registry, when initialized, and the
// derived program addresses.
func NewPlatformHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type response struct {
		Initialized bool                     `json:"initialized"`
		Registry    *models.PlatformRegistry `json:"registry,omitempty"`
		Authorities *service.Authorities     `json:"authorities"`
		Decimals    int                      `json:"decimals"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		authorities, err := svc.Authorities()
		if err != nil {
			writeServiceError(w, logger, "authorities", err)
			return
		}

		registry, err := svc.Platform(r.Context())
		if err != nil && !errors.Is(err, host.ErrAccountNotFound) {
			writeServiceError(w, logger, "platform", err)
			return
		}

		writeJSON(w, http.StatusOK, response{
			Initialized: registry != nil,
			Registry:    registry,
			Authorities: authorities,
			Decimals:    models.RewardDecimals,
		})
	}
}

// NewSustainabilityHandler handles GET /insights/sustainability.
func NewSustainabilityHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insights, err := svc.Sustainability(r.Context())
		if err != nil {
			writeServiceError(w, logger, "sustainability", err)
			return
		}
		writeJSON(w, http.StatusOK, insights)
	}
}
