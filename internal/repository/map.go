package repository

import (
	"context"
	"errors"

	"canopy/internal/models"
	"canopy/internal/observability"

	"gorm.io/gorm"
)

// MapRepository defines persistence operations for maps and invitations.
type MapRepository interface {
	Create(ctx context.Context, m *models.Map) error
	GetByName(ctx context.Context, name string) (*models.Map, error)
	FirstOrCreatePublic(ctx context.Context) (*models.Map, bool, error)
	ListVisible(ctx context.Context, userID uint) ([]models.Map, error)
	List(ctx context.Context) ([]models.Map, error)
	Invite(ctx context.Context, m *models.Map, user *models.User) error
}

type mapRepository struct {
	db *gorm.DB
}

// NewMapRepository returns a new MapRepository implementation.
func NewMapRepository(db *gorm.DB) MapRepository {
	return &mapRepository{db: db}
}

func (r *mapRepository) Create(ctx context.Context, m *models.Map) error {
	defer observability.TrackQuery("create", "maps")()

	if err := r.db.WithContext(ctx).Omit("InvitedUsers").Create(m).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("A map with that name already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// GetByName loads the map with its invited users.
func (r *mapRepository) GetByName(ctx context.Context, name string) (*models.Map, error) {
	defer observability.TrackQuery("get_by_name", "maps")()

	var m models.Map
	err := r.db.WithContext(ctx).
		Preload("InvitedUsers").
		Where("name = ?", name).
		First(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "Map", name)
	}
	return &m, nil
}

// FirstOrCreatePublic finds the ownerless Public map, creating it when absent.
// created reports whether this call inserted it. A concurrent insert that
// loses the unique-name race falls back to reading the winner's row.
func (r *mapRepository) FirstOrCreatePublic(ctx context.Context) (*models.Map, bool, error) {
	defer observability.TrackQuery("first_or_create", "maps")()

	var m models.Map
	err := r.db.WithContext(ctx).Where("name = ?", models.PublicMapName).First(&m).Error
	if err == nil {
		return &m, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, models.NewInternalError(err)
	}

	m = models.Map{Name: models.PublicMapName}
	if err := r.db.WithContext(ctx).Omit("InvitedUsers").Create(&m).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return nil, false, models.NewInternalError(err)
		}
		var existing models.Map
		if err := r.db.WithContext(ctx).Where("name = ?", models.PublicMapName).First(&existing).Error; err != nil {
			return nil, false, models.NewInternalError(err)
		}
		return &existing, false, nil
	}
	return &m, true, nil
}

// ListVisible returns the maps userID may open: ownerless, owned or invited.
func (r *mapRepository) ListVisible(ctx context.Context, userID uint) ([]models.Map, error) {
	defer observability.TrackQuery("list_visible", "maps")()

	var maps []models.Map
	err := r.db.WithContext(ctx).
		Where("maps.owner_id IS NULL OR maps.owner_id = ? OR EXISTS (SELECT 1 FROM map_invitations mi WHERE mi.map_id = maps.id AND mi.user_id = ?)", userID, userID).
		Order("maps.id ASC").
		Find(&maps).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return maps, nil
}

func (r *mapRepository) List(ctx context.Context) ([]models.Map, error) {
	defer observability.TrackQuery("list", "maps")()

	var maps []models.Map
	if err := r.db.WithContext(ctx).Preload("InvitedUsers").Order("maps.id ASC").Find(&maps).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return maps, nil
}

// Invite adds user to the map's invitation list. Repeat invitations are no-ops.
func (r *mapRepository) Invite(ctx context.Context, m *models.Map, user *models.User) error {
	defer observability.TrackQuery("invite", "map_invitations")()

	if err := r.db.WithContext(ctx).Model(m).Association("InvitedUsers").Append(user); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
