package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/auth"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/ton"
)

const proofPayloadTTL = 5 * time.Minute

// TON Connect network ids.
var tonNetworkIDs = map[string]string{
	"mainnet": "-239",
	"testnet": "-3",
}

// AuthService turns a TON Connect proof into a token naming the caller address.
type AuthService struct {
	nonces    auth.NonceStore
	verifier  *ton.Verifier
	network   string
	jwtSecret string
	jwtTTL    time.Duration
	log       *zap.Logger
}

func NewAuthService(nonces auth.NonceStore, verifier *ton.Verifier, network, jwtSecret string, jwtTTL time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		nonces:    nonces,
		verifier:  verifier,
		network:   network,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		log:       log,
	}
}

// GeneratePayload issues a single-use nonce the wallet signs into its proof.
func (s *AuthService) GeneratePayload(ctx context.Context) (string, error) {
	payload, err := s.nonces.Issue(ctx, proofPayloadTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create proof payload: %w", err)
	}
	return payload, nil
}

type Session struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// Login verifies a proof and returns a token for the proven address.
func (s *AuthService) Login(ctx context.Context, data ton.ProofData) (*Session, error) {
	// Consume first so a failed verification still burns the nonce.
	if err := s.nonces.Consume(ctx, data.Proof.Payload); err != nil {
		if errors.Is(err, auth.ErrUnknownNonce) {
			return nil, fmt.Errorf("%w: %v", models.ErrNotAuthorized, err)
		}
		return nil, err
	}

	if want, ok := tonNetworkIDs[s.network]; ok && data.Network != "" && data.Network != want {
		return nil, fmt.Errorf("%w: network mismatch: expected %s, got %s", models.ErrInvalidInput, want, data.Network)
	}

	address, err := s.verifier.Verify(data)
	if err != nil {
		return nil, fmt.Errorf("%w: proof verification failed: %v", models.ErrNotAuthorized, err)
	}

	token, err := auth.GenerateJWT(s.jwtSecret, address, s.jwtTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Info("caller authenticated", zap.String("address", address))
	return &Session{Token: token, Address: address}, nil
}
