package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/service"
)

// NewRegisterDriverHandler handles POST /drivers. The signer must be the platform admin.
func NewRegisterDriverHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Driver        address.Address `json:"driver"`
		PricePerPoint uint64          `json:"price_per_point"`
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
		if req.Driver.IsZero() {
			writeError(w, http.StatusBadRequest, "driver is required")
			return
		}

		record, err := svc.RegisterDriver(r.Context(), admin, req.Driver, req.PricePerPoint)
		if err != nil {
			writeServiceError(w, logger, "register_driver", err)
			return
		}
		writeJSON(w, http.StatusCreated, newDriverResponse(*record))
	}
}

// NewListDriversHandler handles GET /drivers.
func NewListDriversHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.Drivers(r.Context())
		if err != nil {
			writeServiceError(w, logger, "drivers", err)
			return
		}
		out := make([]driverResponse, 0, len(records))
		for _, d := range records {
			out = append(out, newDriverResponse(d))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"drivers": out})
	}
}

// NewGetDriverHandler handles GET /drivers/{driver}.
func NewGetDriverHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driver, ok := pathAddress(w, r, "driver")
		if !ok {
			return
		}
		record, err := svc.Driver(r.Context(), driver)
		if err != nil {
			writeServiceError(w, logger, "driver", err)
			return
		}
		writeJSON(w, http.StatusOK, newDriverResponse(*record))
	}
}

// NewHoldingsHandler handles GET /drivers/{driver}/holdings.
func NewHoldingsHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type response struct {
		*service.Holdings
		AmountDisplay    string `json:"amount_display"`
		DelegatedDisplay string `json:"delegated_display"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := pathAddress(w, r, "driver")
		if !ok {
			return
		}
		holdings, err := svc.Holdings(r.Context(), owner)
		if err != nil {
			writeServiceError(w, logger, "holdings", err)
			return
		}

		resp := response{Holdings: holdings, AmountDisplay: formatPoints(0), DelegatedDisplay: formatPoints(0)}
		if holdings.Account != nil {
			resp.AmountDisplay = formatPoints(holdings.Account.Amount)
			resp.DelegatedDisplay = formatPoints(holdings.Account.DelegatedAmount)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewApproveAccessHandler handles POST /drivers/access.
func NewApproveAccessHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Driver         address.Address  `json:"driver"`
		Activate       bool             `json:"activate"`
		DelegateAmount uint64           `json:"delegate_amount"`
		TokenAccount   *address.Address `json:"token_account"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		signer, ok := requireSigner(w, r)
		if !ok {
			return
		}
		var req request
		if !decodeJSON(w, r, &req) {
			return
		}

		record, err := svc.ApprovePlatformAccess(r.Context(), signer, service.ApproveAccessInput{
			Driver:         req.Driver,
			Activate:       req.Activate,
			DelegateAmount: req.DelegateAmount,
			TokenAccount:   req.TokenAccount,
		})
		if err != nil {
			writeServiceError(w, logger, "approve_platform_access", err)
			return
		}
		writeJSON(w, http.StatusOK, newDriverResponse(*record))
	}
}
