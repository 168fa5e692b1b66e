package jwks

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"
)

// JWKSService publishes the signing keys and hands out the active one
type JWKSService struct {
	repository JWKSRepository
}

// NewJWKSService registers key as the active signing key
func NewJWKSService(repository JWKSRepository, key *rsa.PrivateKey) (*JWKSService, error) {
	s := &JWKSService{repository: repository}
	if _, err := s.AddKey(context.Background(), key, true); err != nil {
		return nil, err
	}
	return s, nil
}

func NewJWKSServiceWithKey(key *rsa.PrivateKey) (*JWKSService, error) {
	return NewJWKSService(NewInMemoryJWKSRepository(), key)
}

// AddKey stores key under its thumbprint id
func (s *JWKSService) AddKey(ctx context.Context, key *rsa.PrivateKey, active bool) (*KeyPair, error) {
	kp := &KeyPair{
		Kid:        KeyID(&key.PublicKey),
		Alg:        "RS256",
		PrivateKey: key,
		CreatedAt:  time.Now().UTC(),
		Active:     active,
	}
	if err := s.repository.AddKey(ctx, kp); err != nil {
		return nil, fmt.Errorf("failed to add key %s: %w", kp.Kid, err)
	}
	return kp, nil
}

// GetJWKS returns the public keys in JWKS format
func (s *JWKSService) GetJWKS(ctx context.Context) (*JWKS, error) {
	keys, err := s.repository.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	set := &JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, kp := range keys {
		set.Keys = append(set.Keys, kp.ToJWK())
	}
	return set, nil
}

func (s *JWKSService) GetActiveSigningKey(ctx context.Context) (*KeyPair, error) {
	return s.repository.GetActiveKey(ctx)
}

func (s *JWKSService) GetKeyByID(ctx context.Context, kid string) (*KeyPair, error) {
	return s.repository.GetKeyByID(ctx, kid)
}

// RotateKeys generates a new active key; old keys stay published for verification
func (s *JWKSService) RotateKeys(ctx context.Context) (*KeyPair, error) {
	key, err := GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	kp, err := s.AddKey(ctx, key, true)
	if err != nil {
		return nil, err
	}
	slog.Info("Rotated signing keys", "new_active_kid", kp.Kid)
	return kp, nil
}
