package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/auth"
)

// NewChallengeHandler handles POST /auth/challenge.
func NewChallengeHandler(authService *auth.Service, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Signer address.Address `json:"signer"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Signer.IsZero() {
			writeError(w, http.StatusBadRequest, "signer is required")
			return
		}

		challenge, err := authService.Issue(r.Context(), req.Signer)
		if err != nil {
			logger.Error("failed to issue challenge", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to issue challenge")
			return
		}
		writeJSON(w, http.StatusOK, challenge)
	}
}

// NewTokenHandler handles POST /auth/token.
func NewTokenHandler(authService *auth.Service, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Signer    address.Address `json:"signer"`
		Signature string          `json:"signature"`
	}
	type response struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Signer.IsZero() || req.Signature == "" {
			writeError(w, http.StatusBadRequest, "signer and signature are required")
			return
		}

		token, err := authService.Exchange(r.Context(), req.Signer, req.Signature)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidSignature) || errors.Is(err, auth.ErrNoChallenge) {
				writeError(w, http.StatusUnauthorized, "invalid challenge response")
				return
			}
			logger.Error("failed to issue token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}

		writeJSON(w, http.StatusOK, response{Token: token, TokenType: "Bearer"})
	}
}
