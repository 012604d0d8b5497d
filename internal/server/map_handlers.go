package server

import (
	"context"

	"canopy/internal/mapview"
	"canopy/internal/middleware"
	"canopy/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateMap handles POST /api/maps
// @Summary Create a map
// @Tags maps
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string} true "Map name, 5 to 32 characters"
// @Success 201 {object} models.Map
// @Failure 400 {object} models.ErrorResponse
// @Router /maps [post]
func (s *Server) CreateMap(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name" form:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	m, err := s.mapService.Create(c.UserContext(), sessionUser(c).UserID, req.Name)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// GetMaps handles GET /api/maps
// @Summary List visible maps
// @Description Public first, then maps the user owns, then maps they were invited to
// @Tags maps
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Map
// @Router /maps [get]
func (s *Server) GetMaps(c *fiber.Ctx) error {
	maps, err := s.mapService.List(c.UserContext(), sessionUser(c).UserID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(maps)
}

// GetMap handles GET /api/maps/:name
// @Summary Get a map
// @Tags maps
// @Produce json
// @Security BearerAuth
// @Param name path string true "Map name"
// @Success 200 {object} models.Map
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /maps/{name} [get]
func (s *Server) GetMap(c *fiber.Ctx) error {
	m, err := s.mapService.Get(c.UserContext(), sessionUser(c).UserID, c.Params("name"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(m)
}

// InviteToMap handles POST /api/maps/:name/invitations
// @Summary Invite a user to a map
// @Description Only the owner may invite. Inviting twice is a no-op.
// @Tags maps
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Param name path string true "Map name"
// @Param request body object{email=string} true "Invitee"
// @Success 200 {object} models.Map
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /maps/{name}/invitations [post]
func (s *Server) InviteToMap(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email" form:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	m, err := s.mapService.Invite(c.UserContext(), sessionUser(c).UserID, c.Params("name"), req.Email)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(m)
}

// GetMapMarkers handles GET /api/maps/:name/markers
// @Summary Map markers
// @Description Marker payload for the session role: planter aggregates for suppliers, the user's own trees otherwise
// @Tags maps
// @Produce json
// @Security BearerAuth
// @Param name path string true "Map name"
// @Success 200 {object} mapview.Payload
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /maps/{name}/markers [get]
func (s *Server) GetMapMarkers(c *fiber.Ctx) error {
	sess := sessionUser(c)
	if _, err := s.mapService.Get(c.UserContext(), sess.UserID, c.Params("name")); err != nil {
		return mapServiceError(c, err)
	}

	payload, err := s.markerPayload(c.UserContext(), sess)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(payload)
}

// markerView picks the view for a role. Suppliers oversee everyone through
// the planter aggregate; everyone else sees the trees they planted.
func (s *Server) markerView(sess *middleware.Session) *mapview.View {
	if sess.Role == models.RoleSupplier {
		return mapview.NewView(mapview.Options{
			Mode:  mapview.ModePlanters,
			Fetch: s.fetchPlanters,
		})
	}

	userID := sess.UserID
	return mapview.NewView(mapview.Options{
		Mode: mapview.ModeTrees,
		Fetch: func(ctx context.Context) (mapview.Data, error) {
			trees, err := s.treeService.List(ctx, &userID)
			if err != nil {
				return mapview.Data{}, err
			}
			return mapview.Data{Trees: mapview.TreesFromModels(trees)}, nil
		},
	})
}

func (s *Server) fetchPlanters(ctx context.Context) (mapview.Data, error) {
	summaries, err := s.planterService.Planters(ctx)
	if err != nil {
		return mapview.Data{}, err
	}
	return mapview.Data{Planters: mapview.PlantersFromSummaries(summaries)}, nil
}

func (s *Server) markerPayload(ctx context.Context, sess *middleware.Session) (mapview.Payload, error) {
	v := s.markerView(sess)
	if err := v.Load(ctx); err != nil {
		return mapview.Payload{}, err
	}
	return v.Payload(), nil
}
