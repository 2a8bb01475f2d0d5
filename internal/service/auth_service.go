package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	clientRepo ports.ClientRepository
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	clientRepo ports.ClientRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		clientRepo: clientRepo,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
	}
}

// RegisterClient provisions an API client account with a generated key pair.
// The plaintext secret is returned once and stored only as an Argon2id hash.
func (s *AuthServiceImpl) RegisterClient(ctx context.Context, req ports.RegisterClientRequest) (*ports.RegisterClientResponse, error) {
	if req.Name == "" {
		return nil, apperror.Validation("client name is required")
	}

	accessKey, err := generateRandomHex(32) // 64 hex chars
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate access key: %w", err))
	}

	secretKey, err := generateRandomHex(32) // 64 hex chars
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret key: %w", err))
	}

	secretHash, err := s.hashSvc.Hash(secretKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash secret key: %w", err))
	}

	now := time.Now().UTC()
	client := &domain.APIClient{
		ID:            uuid.New(),
		Name:          req.Name,
		AccessKey:     accessKey,
		SecretKeyHash: secretHash,
		Capabilities:  req.Capabilities,
		Status:        domain.ClientStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create client: %w", err))
	}

	return &ports.RegisterClientResponse{
		ClientID:  client.ID,
		AccessKey: accessKey,
		SecretKey: secretKey,
	}, nil
}

// Authenticate resolves an access key + secret pair to the client account.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, accessKey, secret string) (*domain.APIClient, error) {
	client, err := s.clientRepo.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find client: %w", err))
	}
	if client == nil {
		return nil, apperror.ErrUnauthorized()
	}

	valid, err := s.hashSvc.Verify(secret, client.SecretKeyHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify secret: %w", err))
	}
	if !valid {
		return nil, apperror.ErrUnauthorized()
	}

	if !client.IsActive() {
		return nil, apperror.ErrUnauthorized()
	}

	return client, nil
}

// Login exchanges credentials for an operator JWT.
func (s *AuthServiceImpl) Login(ctx context.Context, accessKey, secret string) (string, time.Time, error) {
	client, err := s.Authenticate(ctx, accessKey, secret)
	if err != nil {
		return "", time.Time{}, err
	}

	token, expiry, err := s.tokenSvc.Generate(client.ID, client.AccessKey)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}

// ResolveToken maps a validated JWT back to the client account.
func (s *AuthServiceImpl) ResolveToken(ctx context.Context, token string) (*domain.APIClient, error) {
	claims, err := s.tokenSvc.Validate(token)
	if err != nil {
		return nil, apperror.ErrInvalidToken()
	}

	client, err := s.clientRepo.GetByAccessKey(ctx, claims.AccessKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find client: %w", err))
	}
	if client == nil || client.ID != claims.ClientID {
		return nil, apperror.ErrInvalidToken()
	}
	if !client.IsActive() {
		return nil, apperror.ErrUnauthorized()
	}

	return client, nil
}

// generateRandomHex generates a random hex string of n bytes.
func generateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
