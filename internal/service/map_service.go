package service

import (
	"context"
	"log/slog"
	"sort"

	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/observability"
	"canopy/internal/repository"
	"canopy/internal/validation"
)

// MapService manages named maps and who may open them.
type MapService struct {
	maps  repository.MapRepository
	users repository.UserRepository
}

func NewMapService(maps repository.MapRepository, users repository.UserRepository) *MapService {
	return &MapService{maps: maps, users: users}
}

// EnsurePublic returns the ownerless Public map, creating it on first use.
// Repeated and concurrent calls yield the same row.
func (s *MapService) EnsurePublic(ctx context.Context) (*models.Map, error) {
	m, created, err := s.maps.FirstOrCreatePublic(ctx)
	if err != nil {
		return nil, err
	}
	if created {
		observability.MapsCreated.Inc()
		middleware.Logger.InfoContext(ctx, "public map created", slog.Uint64("map_id", uint64(m.ID)))
	}
	return m, nil
}

// Create adds a map owned by ownerID.
func (s *MapService) Create(ctx context.Context, ownerID uint, name string) (*models.Map, error) {
	normalized, err := validation.NormalizeMapName(name)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	m := &models.Map{Name: normalized, OwnerID: &ownerID}
	if err := s.maps.Create(ctx, m); err != nil {
		return nil, err
	}
	observability.MapsCreated.Inc()
	return m, nil
}

// List returns the maps userID may open: Public first, then owned, then
// invited.
func (s *MapService) List(ctx context.Context, userID uint) ([]models.Map, error) {
	maps, err := s.maps.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank := func(m *models.Map) int {
		switch {
		case m.IsPublic():
			return 0
		case *m.OwnerID == userID:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(maps, func(i, j int) bool {
		return rank(&maps[i]) < rank(&maps[j])
	})
	return maps, nil
}

// ListAll returns every map with its invitations.
func (s *MapService) ListAll(ctx context.Context) ([]models.Map, error) {
	return s.maps.List(ctx)
}

// Get loads a map the user may see. Unknown maps are 404, hidden ones 403.
func (s *MapService) Get(ctx context.Context, userID uint, name string) (*models.Map, error) {
	m, err := s.maps.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !m.VisibleTo(userID) {
		return nil, models.NewForbiddenError("You do not have access to this map")
	}
	return m, nil
}

// Invite grants the user with email access to the map. Only the owner may
// invite; inviting twice is harmless.
func (s *MapService) Invite(ctx context.Context, ownerID uint, name, email string) (*models.Map, error) {
	m, err := s.maps.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if m.IsPublic() || *m.OwnerID != ownerID {
		return nil, models.NewForbiddenError("Only the map owner can invite users")
	}
	return s.invite(ctx, m, email)
}

// InviteAsOperator skips the ownership check. It backs the admin CLI.
func (s *MapService) InviteAsOperator(ctx context.Context, name, email string) (*models.Map, error) {
	m, err := s.maps.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.invite(ctx, m, email)
}

func (s *MapService) invite(ctx context.Context, m *models.Map, email string) (*models.Map, error) {
	normalized, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", normalized)
	}
	if m.VisibleTo(user.ID) && !m.IsPublic() {
		return m, nil
	}
	if err := s.maps.Invite(ctx, m, user); err != nil {
		return nil, err
	}
	return s.maps.GetByName(ctx, m.Name)
}
