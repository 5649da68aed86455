package pending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/clock"
)

type StoreOption func(*Store)

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// Store is the TTL-bounded staging area for checkout payloads. Expiry is
// checked lazily on Get; Sweeper reclaims the rest.
type Store struct {
	repo  Repository
	clock clock.Clock
	ttl   time.Duration
}

func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{
		repo:  repo,
		clock: clock.NewSystem(),
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) Put(ctx context.Context, sessionID string, payload json.RawMessage) (*PendingOrder, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: checkout session id is required", ErrValidation)
	}
	if !isJSONObject(payload) {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrValidation)
	}

	now := s.clock.Now()
	p := &PendingOrder{
		CheckoutSessionID: sessionID,
		Payload:           payload,
		ExpiresAt:         now.Add(s.ttl),
		CreatedAt:         now,
	}

	if err := s.repo.Insert(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			log.Info().Str("checkout_session_id", sessionID).Msg("pending: checkout session already staged")
			return nil, ErrDuplicateSession
		}
		return nil, fmt.Errorf("pending: failed to stage order: %w", err)
	}

	log.Info().Str("checkout_session_id", sessionID).Time("expires_at", p.ExpiresAt).Msg("pending: order staged")
	return p, nil
}

// Get returns the live entry for sessionID. An expired entry is removed and
// reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*PendingOrder, error) {
	p, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pending: failed to get staged order: %w", err)
	}

	now := s.clock.Now()
	if !p.Expired(now) {
		return p, nil
	}

	if _, err := s.repo.DeleteIfExpired(ctx, sessionID, now); err != nil {
		log.Warn().Err(err).Str("checkout_session_id", sessionID).Msg("pending: failed to remove expired entry")
	} else {
		log.Info().Str("checkout_session_id", sessionID).Time("expired_at", p.ExpiresAt).Msg("pending: expired entry removed on read")
	}

	return nil, ErrNotFound
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("pending: failed to delete staged order: %w", err)
	}
	return nil
}

func isJSONObject(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
