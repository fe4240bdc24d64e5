package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/service"
)

const maxSessionsLimit = 500

// NewRecordSessionHandler handles POST /sessions. The signer is the charging driver.
func NewRecordSessionHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		ChargerCode        string `json:"charger_code"`
		EnergyUsedMilliKWh uint64 `json:"energy_used_milli_kwh"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		driver, ok := requireSigner(w, r)
		if !ok {
			return
		}
		var req request
		if !decodeJSON(w, r, &req) {
			return
		}

		session, err := svc.RecordSession(r.Context(), driver, service.RecordSessionInput{
			ChargerCode:        req.ChargerCode,
			EnergyUsedMilliKWh: req.EnergyUsedMilliKWh,
		})
		if err != nil {
			writeServiceError(w, logger, "record_session", err)
			return
		}
		writeJSON(w, http.StatusCreated, newSessionResponse(*session))
	}
}

// NewListSessionsHandler handles GET /drivers/{driver}/sessions?limit=n.
func NewListSessionsHandler(svc *service.PlatformService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driver, ok := pathAddress(w, r, "driver")
		if !ok {
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(parsed, maxSessionsLimit)
		}

		sessions, err := svc.Sessions(r.Context(), driver, limit)
		if err != nil {
			writeServiceError(w, logger, "sessions", err)
			return
		}
		out := make([]sessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, newSessionResponse(s))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
	}
}
