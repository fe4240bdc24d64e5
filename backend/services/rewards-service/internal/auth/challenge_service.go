package auth

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
)

const challengePrefix = "evrewards:login:"

var (
	// ErrInvalidSignature is returned when a challenge response does not verify.
	ErrInvalidSignature = errors.New("auth: invalid signature")
	// ErrNoChallenge is returned when the signer has no pending challenge.
	ErrNoChallenge = errors.New("auth: no pending challenge")
)

// ChallengeStore keeps pending challenges. Take must delete what it returns.
type ChallengeStore interface {
	Save(ctx context.Context, signer address.Address, nonce string) error
	Take(ctx context.Context, signer address.Address) (string, error)
}

// Challenge is the message a signer must sign with its ed25519 key.
type Challenge struct {
	Signer  address.Address `json:"signer"`
	Message string          `json:"message"`
}

// Service proves control of an address and issues a token for it.
type Service struct {
	store     ChallengeStore
	tokenizer *TokenService
	logger    *zap.Logger
}

// NewService builds Service.
func NewService(store ChallengeStore, tokenizer *TokenService, logger *zap.Logger) *Service {
	return &Service{store: store, tokenizer: tokenizer, logger: logger}
}

// Issue stores a fresh challenge for signer.
func (s *Service) Issue(ctx context.Context, signer address.Address) (*Challenge, error) {
	if signer.IsZero() {
		return nil, errors.New("auth: signer is required")
	}
	nonce := uuid.NewString()
	if err := s.store.Save(ctx, signer, nonce); err != nil {
		return nil, err
	}
	return &Challenge{Signer: signer, Message: challengePrefix + nonce}, nil
}

// Exchange verifies the base58 signature over the pending challenge and returns a token.
// The challenge is consumed whether or not the signature verifies.
func (s *Service) Exchange(ctx context.Context, signer address.Address, signature string) (string, error) {
	nonce, err := s.store.Take(ctx, signer)
	if err != nil {
		s.logger.Debug("challenge lookup failed", zap.String("signer", signer.String()), zap.Error(err))
		return "", ErrNoChallenge
	}

	sig := base58.Decode(signature)
	if len(sig) != ed25519.SignatureSize {
		return "", ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(signer.Bytes()), []byte(challengePrefix+nonce), sig) {
		return "", ErrInvalidSignature
	}

	token, err := s.tokenizer.GenerateToken(signer)
	if err != nil {
		return "", err
	}
	s.logger.Info("signer authenticated", zap.String("signer", signer.String()))
	return token, nil
}
