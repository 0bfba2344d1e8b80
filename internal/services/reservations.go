package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/config"
	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
	"github.com/aweb-dev/aweb/internal/validate"
)

// ReservationService manages per-project named leases. Expiry is evaluated
// lazily against the clock at call time; no sweeper runs.
type ReservationService struct {
	store store.Store
	cfg   *config.Config
	now   func() time.Time
}

func NewReservationService(s store.Store, cfg *config.Config) *ReservationService {
	return &ReservationService{store: s, cfg: cfg, now: time.Now}
}

func (s *ReservationService) requireAgent(ctx context.Context, p *auth.Principal) (*model.Agent, error) {
	if !p.Agent() {
		return nil, fmt.Errorf("%w: reservations require an agent-bound key", model.ErrForbidden)
	}
	return s.store.Agents().GetByID(ctx, p.ProjectID, p.AgentID)
}

func (s *ReservationService) Acquire(ctx context.Context, p *auth.Principal, resourceKey string, ttlSeconds int, metadata map[string]any) (*model.Reservation, error) {
	resourceKey = strings.TrimSpace(resourceKey)
	if resourceKey == "" {
		return nil, fmt.Errorf("%w: resource_key is required", model.ErrValidation)
	}
	agent, err := s.requireAgent(ctx, p)
	if err != nil {
		return nil, err
	}
	ttl := validate.ClampTTL(ttlSeconds, s.cfg.ReservationDefaultTTLSeconds, s.cfg.ReservationMaxTTLSeconds)
	now := s.now().UTC()
	return s.store.Reservations().Acquire(ctx, &model.Reservation{
		ProjectID:     p.ProjectID,
		ResourceKey:   resourceKey,
		HolderAgentID: agent.AgentID,
		HolderAlias:   agent.Alias,
		ExpiresAt:     now.Add(time.Duration(ttl) * time.Second),
		Metadata:      metadata,
	}, now)
}

func (s *ReservationService) Renew(ctx context.Context, p *auth.Principal, resourceKey string, ttlSeconds int) (time.Time, error) {
	if _, err := s.requireAgent(ctx, p); err != nil {
		return time.Time{}, err
	}
	ttl := validate.ClampTTL(ttlSeconds, s.cfg.ReservationDefaultTTLSeconds, s.cfg.ReservationMaxTTLSeconds)
	now := s.now().UTC()
	expiresAt := now.Add(time.Duration(ttl) * time.Second)
	if err := s.store.Reservations().Renew(ctx, p.ProjectID, resourceKey, p.AgentID, now, expiresAt); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

func (s *ReservationService) Release(ctx context.Context, p *auth.Principal, resourceKey string) (bool, error) {
	if _, err := s.requireAgent(ctx, p); err != nil {
		return false, err
	}
	return s.store.Reservations().Release(ctx, p.ProjectID, resourceKey, p.AgentID, s.now().UTC())
}

// Revoke bulk-releases the caller's own leases, optionally narrowed to a
// resource-key prefix.
func (s *ReservationService) Revoke(ctx context.Context, p *auth.Principal, prefix string) (int, error) {
	if _, err := s.requireAgent(ctx, p); err != nil {
		return 0, err
	}
	return s.store.Reservations().RevokeOwn(ctx, p.ProjectID, p.AgentID, prefix)
}

func (s *ReservationService) List(ctx context.Context, p *auth.Principal, prefix string) ([]*model.Reservation, error) {
	return s.store.Reservations().List(ctx, p.ProjectID, prefix, s.now().UTC())
}
