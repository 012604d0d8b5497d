package service

import (
	"context"

	"canopy/internal/cache"
	"canopy/internal/models"
	"canopy/internal/repository"
)

// PlanterService serves the per-planter aggregate.
type PlanterService struct {
	users repository.UserRepository
}

func NewPlanterService(users repository.UserRepository) *PlanterService {
	return &PlanterService{users: users}
}

// Planters returns every user with at least one tree. The result is cached
// briefly; tree mutations invalidate it.
func (s *PlanterService) Planters(ctx context.Context) ([]models.PlanterSummary, error) {
	var out []models.PlanterSummary
	err := cache.Aside(ctx, cache.PlantersKey, &out, cache.PlantersTTL, func() error {
		users, err := s.users.ListPlantersWithTrees(ctx)
		if err != nil {
			return err
		}
		out = make([]models.PlanterSummary, 0, len(users))
		for i := range users {
			out = append(out, models.NewPlanterSummary(&users[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.PlanterSummary{}
	}
	return out, nil
}
