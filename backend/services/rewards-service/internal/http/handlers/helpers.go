package handlers

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/host"
	"evrewards/backend/services/rewards-service/internal/http/middleware"
	"evrewards/backend/services/rewards-service/internal/models"
	"evrewards/backend/services/rewards-service/internal/service"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type programErrorResponse struct {
	Error string        `json:"error"`
	Code  uint32        `json:"code"`
	Name  string        `json:"name"`
	Class service.Class `json:"class"`
}

var classStatus = map[service.Class]int{
	service.ClassAuthorization:  http.StatusForbidden,
	service.ClassState:          http.StatusConflict,
	service.ClassArithmetic:     http.StatusUnprocessableEntity,
	service.ClassExternalLedger: http.StatusBadGateway,
	service.ClassNotFound:       http.StatusNotFound,
}

// writeServiceError renders program errors with their code; anything else is a 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	var pe *service.Error
	if errors.As(err, &pe) {
		writeJSON(w, classStatus[pe.Class], programErrorResponse{
			Error: pe.Error(),
			Code:  pe.Code,
			Name:  pe.Name,
			Class: pe.Class,
		})
		return
	}
	if errors.Is(err, host.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (address.Address, bool) {
	addr, err := address.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" address")
		return address.Zero, false
	}
	return addr, true
}

func requireSigner(w http.ResponseWriter, r *http.Request) (address.Address, bool) {
	signer, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing signer")
		return address.Zero, false
	}
	return signer, true
}

// formatPoints renders a smallest-unit amount with the reward asset's decimals.
func formatPoints(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -models.RewardDecimals).StringFixed(models.RewardDecimals)
}

type driverResponse struct {
	models.DriverRecord
	TotalPointsDisplay string `json:"total_points_display"`
}

func newDriverResponse(d models.DriverRecord) driverResponse {
	return driverResponse{DriverRecord: d, TotalPointsDisplay: formatPoints(d.TotalPoints)}
}

type sessionResponse struct {
	models.SessionRecord
	PointsDisplay string `json:"points_display"`
}

func newSessionResponse(s models.SessionRecord) sessionResponse {
	return sessionResponse{SessionRecord: s, PointsDisplay: formatPoints(s.PointsEarned)}
}
