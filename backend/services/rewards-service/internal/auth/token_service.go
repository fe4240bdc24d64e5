package auth

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"evrewards/backend/services/rewards-service/internal/address"
)

const tokenKeyInfo = "evrewards/jwt-hs256"

// Claims is the JWT payload naming the verified signer.
type Claims struct {
	Signer string `json:"signer"`
	jwt.RegisteredClaims
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	key       []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewTokenService derives the signing key from secret.
func NewTokenService(secret string, expiresIn time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token: secret is required")
	}
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo)), key); err != nil {
		return nil, err
	}
	return &TokenService{key: key, expiresIn: expiresIn, now: time.Now}, nil
}

// GenerateToken issues JWT for signer.
func (t *TokenService) GenerateToken(signer address.Address) (string, error) {
	if signer.IsZero() {
		return "", errors.New("token: signer is required")
	}

	now := t.now().UTC()
	claims := Claims{
		Signer: signer.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   signer.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// ValidateToken verifies tokenString and returns the signer it was issued to.
func (t *TokenService) ValidateToken(tokenString string) (address.Address, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("token: unexpected signing method")
		}
		return t.key, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return address.Zero, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return address.Zero, errors.New("token: invalid claims")
	}
	return address.Parse(claims.Signer)
}
