package service

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"canopy/internal/cache"
	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/notifications"
	"canopy/internal/observability"
	"canopy/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// CreateTreeInput carries a new plant. PlanterID always comes from the
// session, never from the client.
type CreateTreeInput struct {
	PlanterID uint
	Species   string
	Latitude  float64
	Longitude float64
	PlantedAt *time.Time
	Status    string
	Image     *UploadImageInput
}

// UpdateTreeInput is a partial update. Nil fields are left unchanged.
type UpdateTreeInput struct {
	UserID    uint
	TreeID    uint
	Species   *string
	PlantedAt *time.Time
	Status    *string
	Image     *UploadImageInput
}

// TreeService implements the plant resource operations.
type TreeService struct {
	trees    repository.TreeRepository
	images   *ImageService
	notifier *notifications.Notifier
}

func NewTreeService(trees repository.TreeRepository, images *ImageService) *TreeService {
	return &TreeService{trees: trees, images: images}
}

// SetNotifier routes tree change events to live tracking feeds.
func (s *TreeService) SetNotifier(n *notifications.Notifier) {
	s.notifier = n
}

// changed drops the cached planter aggregate and tells tracking feeds.
func (s *TreeService) changed(ctx context.Context, action string, treeID, planterID uint) {
	cache.InvalidatePlanters(ctx)
	ev := notifications.PlantersChanged{Action: action, TreeID: treeID, PlanterID: planterID}
	if err := s.notifier.PublishPlantersChanged(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "planters change not published",
			slog.String("action", action), slog.String("error", err.Error()))
	}
}

func validateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return models.NewValidationError("Latitude must be a number between -90 and 90")
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return models.NewValidationError("Longitude must be a number between -180 and 180")
	}
	return nil
}

// Create persists a tree for the session user. An image that cannot be stored
// is logged and dropped; the tree is created regardless.
func (s *TreeService) Create(ctx context.Context, in CreateTreeInput) (*models.Tree, error) {
	if in.PlanterID == 0 {
		return nil, models.NewAuthenticationError("Authentication required")
	}
	species := strings.TrimSpace(in.Species)
	if species == "" {
		return nil, models.NewValidationError("Name is required")
	}
	if err := validateCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "TreeService", "Create",
		attribute.Int64("planter.id", int64(in.PlanterID)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	tree := &models.Tree{
		Species:   species,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Status:    strings.TrimSpace(in.Status),
		PlanterID: in.PlanterID,
	}
	if in.PlantedAt != nil {
		tree.PlantedDate = *in.PlantedAt
	}

	if url, ok := s.storeImage(ctx, in.Image); ok {
		tree.Images = []models.TreeImage{{URL: url}}
	}

	if err = s.trees.Create(ctx, tree); err != nil {
		return nil, err
	}
	observability.TreesCreated.WithLabelValues(strconv.FormatBool(len(tree.Images) > 0)).Inc()
	s.changed(ctx, notifications.ActionCreated, tree.ID, tree.PlanterID)

	created, err := s.trees.GetByID(ctx, tree.ID)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// storeImage uploads img and reports its URL. Failures never propagate.
func (s *TreeService) storeImage(ctx context.Context, img *UploadImageInput) (string, bool) {
	if img == nil {
		return "", false
	}
	stored, err := s.images.Upload(ctx, *img)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "tree image upload skipped",
			slog.String("filename", img.Filename),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return stored.URL, true
}

func (s *TreeService) Get(ctx context.Context, id uint) (*models.Tree, error) {
	return s.trees.GetByID(ctx, id)
}

// List returns every tree newest first, or only planterID's trees.
func (s *TreeService) List(ctx context.Context, planterID *uint) ([]models.Tree, error) {
	return s.trees.List(ctx, planterID)
}

// loadOwned resolves the tree and checks that userID planted it. A missing
// tree is reported before ownership.
func (s *TreeService) loadOwned(ctx context.Context, userID, treeID uint) (*models.Tree, error) {
	tree, err := s.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if tree.PlanterID != userID {
		return nil, models.NewForbiddenError("You can only modify your own trees")
	}
	return tree, nil
}

// Update applies a partial update to a tree the user owns.
func (s *TreeService) Update(ctx context.Context, in UpdateTreeInput) (*models.Tree, error) {
	if _, err := s.loadOwned(ctx, in.UserID, in.TreeID); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if in.Species != nil {
		species := strings.TrimSpace(*in.Species)
		if species == "" {
			return nil, models.NewValidationError("Name cannot be empty")
		}
		fields["species"] = species
	}
	if in.PlantedAt != nil {
		fields["planted_date"] = *in.PlantedAt
	}
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		if status == "" {
			return nil, models.NewValidationError("Status cannot be empty")
		}
		fields["status"] = status
	}

	if err := s.trees.Update(ctx, in.TreeID, fields); err != nil {
		return nil, err
	}
	if url, ok := s.storeImage(ctx, in.Image); ok {
		if err := s.trees.AppendImage(ctx, &models.TreeImage{TreeID: in.TreeID, URL: url}); err != nil {
			return nil, err
		}
	}
	s.changed(ctx, notifications.ActionUpdated, in.TreeID, in.UserID)

	return s.trees.GetByID(ctx, in.TreeID)
}

// Delete removes a tree the user owns with its images and updates.
func (s *TreeService) Delete(ctx context.Context, userID, treeID uint) error {
	if _, err := s.loadOwned(ctx, userID, treeID); err != nil {
		return err
	}
	if err := s.trees.Delete(ctx, treeID); err != nil {
		return err
	}
	observability.TreesDeleted.Inc()
	s.changed(ctx, notifications.ActionDeleted, treeID, userID)
	return nil
}

// CustodianTrees is the custodian's own planting history.
func (s *TreeService) CustodianTrees(ctx context.Context, userID uint) ([]models.CustodianTree, error) {
	trees, err := s.trees.ListForCustodian(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.CustodianTree, 0, len(trees))
	for i := range trees {
		out = append(out, models.NewCustodianTree(&trees[i]))
	}
	return out, nil
}

// SupplierTrees is every tree with its planter, for oversight.
func (s *TreeService) SupplierTrees(ctx context.Context) ([]models.SupplierTree, error) {
	trees, err := s.trees.ListForSupplier(ctx)
	if err != nil {
		return nil, err
	}
	return models.NewSupplierTrees(trees), nil
}
