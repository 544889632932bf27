package service

import (
	"context"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store"
)

type ChallengeService struct {
	Store store.Store
}

// List returns challenges, active ones only unless includeRetired is set.
func (s *ChallengeService) List(ctx context.Context, includeRetired bool) ([]domain.Challenge, error) {
	return s.Store.Challenges().ListChallenges(ctx, !includeRetired)
}
