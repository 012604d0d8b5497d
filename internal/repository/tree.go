package repository

import (
	"context"
	"errors"

	"canopy/internal/models"
	"canopy/internal/observability"

	"gorm.io/gorm"
)

// TreeRepository defines persistence operations for trees and their images.
type TreeRepository interface {
	Create(ctx context.Context, tree *models.Tree) error
	GetByID(ctx context.Context, id uint) (*models.Tree, error)
	List(ctx context.Context, planterID *uint) ([]models.Tree, error)
	ListForCustodian(ctx context.Context, planterID uint) ([]models.Tree, error)
	ListForSupplier(ctx context.Context) ([]models.Tree, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	AppendImage(ctx context.Context, img *models.TreeImage) error
	Delete(ctx context.Context, id uint) error
}

type treeRepository struct {
	db *gorm.DB
}

// NewTreeRepository returns a new TreeRepository implementation.
func NewTreeRepository(db *gorm.DB) TreeRepository {
	return &treeRepository{db: db}
}

func imagesOldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("tree_images.created_at ASC, tree_images.id ASC")
}

// Create inserts the tree and any images attached to it in one statement set.
func (r *treeRepository) Create(ctx context.Context, tree *models.Tree) error {
	defer observability.TrackQuery("create", "trees")()

	if err := r.db.WithContext(ctx).Omit("Planter").Create(tree).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Tree identifier already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *treeRepository) GetByID(ctx context.Context, id uint) (*models.Tree, error) {
	defer observability.TrackQuery("get", "trees")()

	var tree models.Tree
	err := r.db.WithContext(ctx).
		Preload("Planter").
		Preload("Images", imagesOldestFirst).
		First(&tree, id).Error
	if err != nil {
		return nil, notFoundOr(err, "Tree", id)
	}
	return &tree, nil
}

// List returns trees newest first, optionally only those of one planter.
func (r *treeRepository) List(ctx context.Context, planterID *uint) ([]models.Tree, error) {
	defer observability.TrackQuery("list", "trees")()

	q := r.db.WithContext(ctx).
		Preload("Planter").
		Preload("Images", imagesOldestFirst).
		Order("trees.created_at DESC, trees.id DESC")
	if planterID != nil {
		q = q.Where("trees.planter_id = ?", *planterID)
	}

	var trees []models.Tree
	if err := q.Find(&trees).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return trees, nil
}

// ListForCustodian returns the planter's trees by planted date, newest first,
// with images and the update log (newest first).
func (r *treeRepository) ListForCustodian(ctx context.Context, planterID uint) ([]models.Tree, error) {
	defer observability.TrackQuery("list_custodian", "trees")()

	var trees []models.Tree
	err := r.db.WithContext(ctx).
		Preload("Images", imagesOldestFirst).
		Preload("Updates", func(db *gorm.DB) *gorm.DB {
			return db.Order("tree_updates.created_at DESC, tree_updates.id DESC")
		}).
		Where("trees.planter_id = ?", planterID).
		Order("trees.planted_date DESC, trees.id DESC").
		Find(&trees).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return trees, nil
}

// ListForSupplier returns every tree by planted date, newest first, with the
// planter and images newest first.
func (r *treeRepository) ListForSupplier(ctx context.Context) ([]models.Tree, error) {
	defer observability.TrackQuery("list_supplier", "trees")()

	var trees []models.Tree
	err := r.db.WithContext(ctx).
		Preload("Planter").
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("tree_images.created_at DESC, tree_images.id DESC")
		}).
		Order("trees.planted_date DESC, trees.id DESC").
		Find(&trees).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return trees, nil
}

// Update applies column updates to one tree.
func (r *treeRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	defer observability.TrackQuery("update", "trees")()

	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Tree{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Tree", id)
	}
	return nil
}

func (r *treeRepository) AppendImage(ctx context.Context, img *models.TreeImage) error {
	defer observability.TrackQuery("create", "tree_images")()

	if err := r.db.WithContext(ctx).Create(img).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Delete removes the tree with its images and updates.
func (r *treeRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery("delete", "trees")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tree_id = ?", id).Delete(&models.TreeImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tree_id = ?", id).Delete(&models.TreeUpdate{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Tree{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Tree", id)
		}
		return models.NewInternalError(err)
	}
	return nil
}
