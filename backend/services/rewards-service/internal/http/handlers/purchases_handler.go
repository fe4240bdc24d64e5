package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/service"
)

// NewBuyPointsHandler handles POST /drivers/{driver}/purchases. The signer is the buyer.
func NewBuyPointsHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Amount             uint64           `json:"amount"`
		SolPayment         uint64           `json:"sol_payment"`
		PlatformAuthority  *address.Address `json:"platform_authority"`
		DriverTokenAccount *address.Address `json:"driver_token_account"`
		BuyerTokenAccount  *address.Address `json:"buyer_token_account"`
	}
	type response struct {
		*service.Purchase
		AmountDisplay string `json:"amount_display"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		buyer, ok := requireSigner(w, r)
		if !ok {
			return
		}
		driver, ok := pathAddress(w, r, "driver")
		if !ok {
			return
		}
		var req request
		if !decodeJSON(w, r, &req) {
			return
		}

		purchase, err := svc.BuyPoints(r.Context(), buyer, service.BuyPointsInput{
			Driver:             driver,
			Amount:             req.Amount,
			SolPayment:         req.SolPayment,
			PlatformAuthority:  req.PlatformAuthority,
			DriverTokenAccount: req.DriverTokenAccount,
			BuyerTokenAccount:  req.BuyerTokenAccount,
		})
		if err != nil {
			writeServiceError(w, logger, "buy_points", err)
			return
		}
		writeJSON(w, http.StatusOK, response{Purchase: purchase, AmountDisplay: formatPoints(purchase.Amount)})
	}
}
