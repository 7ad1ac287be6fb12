// Package token issues and resolves the secure links sent to recommenders.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"letters/api/internal/recommendation"
)

// entropyBytes is the amount of randomness in every issued token.
const entropyBytes = 32

// Record is the persisted binding of a token digest to its request.
type Record struct {
	RequestID string
	ExpiresAt time.Time
}

// Store persists token bindings. AttachToken fails with ErrConflict when the
// request already has a token and ErrNotFound when the request is unknown.
type Store interface {
	AttachToken(ctx context.Context, requestID string, digest, sealed []byte, expiresAt time.Time) error
	LookupToken(ctx context.Context, digest []byte) (Record, error)
}

// Issued is a freshly minted token.
type Issued struct {
	Token     string
	Sealed    []byte
	ExpiresAt time.Time
}

type Service struct {
	store Store
	codec *Codec
	clock func() time.Time
}

func NewService(store Store, codec *Codec) *Service {
	return &Service{store: store, codec: codec, clock: time.Now}
}

// Issue mints the one token a request will ever have.
func (s *Service) Issue(ctx context.Context, requestID string, ttl time.Duration) (Issued, error) {
	if strings.TrimSpace(requestID) == "" {
		return Issued{}, fmt.Errorf("issue token: request id is required")
	}
	if ttl <= 0 {
		return Issued{}, fmt.Errorf("issue token: ttl must be positive")
	}

	raw, err := generate()
	if err != nil {
		return Issued{}, fmt.Errorf("issue token: %w", err)
	}
	sealed, err := s.codec.Seal(raw)
	if err != nil {
		return Issued{}, fmt.Errorf("issue token: %w", err)
	}
	expiresAt := s.clock().UTC().Add(ttl)
	if err := s.store.AttachToken(ctx, requestID, s.codec.Digest(raw), sealed, expiresAt); err != nil {
		return Issued{}, fmt.Errorf("issue token: %w", err)
	}
	return Issued{Token: raw, Sealed: sealed, ExpiresAt: expiresAt}, nil
}

// Resolve returns the request bound to token. Lookups never extend expiry.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", recommendation.ErrNotFound
	}
	record, err := s.store.LookupToken(ctx, s.codec.Digest(token))
	if err != nil {
		return "", err
	}
	if s.clock().After(record.ExpiresAt) {
		return "", recommendation.ErrExpired
	}
	return record.RequestID, nil
}

// Reveal recovers a sealed token so a link can be rendered again.
func (s *Service) Reveal(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", fmt.Errorf("reveal token: %w", recommendation.ErrNotFound)
	}
	raw, err := s.codec.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("reveal token: %w", err)
	}
	return raw, nil
}

func generate() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
