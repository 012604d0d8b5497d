package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/service"
	"canopy/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// plantForm holds the submitted plant fields by name. The plant endpoints
// accept multipart forms (with an optional image), urlencoded forms and JSON.
type plantForm map[string]string

func (f plantForm) lookup(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// species reads "name", falling back to "species".
func (f plantForm) species() (string, bool) {
	if v, ok := f["name"]; ok {
		return v, true
	}
	return f.lookup("species")
}

func readPlantForm(c *fiber.Ctx) (plantForm, error) {
	form := plantForm{}

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		var raw map[string]any
		if len(c.Body()) > 0 {
			if err := json.Unmarshal(c.Body(), &raw); err != nil {
				return nil, err
			}
		}
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
			case string:
				form[k] = val
			case float64:
				form[k] = strconv.FormatFloat(val, 'f', -1, 64)
			default:
				form[k] = fmt.Sprint(val)
			}
		}
		return form, nil
	}

	if mf, err := c.MultipartForm(); err == nil {
		for k, vs := range mf.Value {
			if len(vs) > 0 {
				form[k] = vs[0]
			}
		}
		return form, nil
	}

	c.Context().PostArgs().VisitAll(func(k, v []byte) {
		form[string(k)] = string(v)
	})
	return form, nil
}

// readPlantImage returns the optional "image" upload. A file that cannot be
// read is treated like no file at all.
func readPlantImage(c *fiber.Ctx) *service.UploadImageInput {
	file, err := c.FormFile("image")
	if err != nil || file == nil || file.Size == 0 {
		return nil
	}
	src, err := file.Open()
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "plant image unreadable", slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "plant image unreadable", slog.String("error", err.Error()))
		return nil
	}
	return &service.UploadImageInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}
}

func parsePlantedAt(form plantForm) (*time.Time, error) {
	raw, ok := form.lookup("plantedAt")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := validation.ParsePlantedAt(raw)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return &t, nil
}

// CreatePlant handles POST /api/plants
// @Summary Plant a tree
// @Description Record a planted tree for the session user. The image is optional and its failure never fails the request.
// @Tags plants
// @Accept multipart/form-data,json
// @Produce json
// @Security BearerAuth
// @Param name formData string true "Species"
// @Param latitude formData number true "Latitude"
// @Param longitude formData number true "Longitude"
// @Param plantedAt formData string false "RFC 3339 or YYYY-MM-DD"
// @Param status formData string false "Status, PLANTED by default"
// @Param image formData file false "Photo"
// @Success 201 {object} models.PlantView
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /plants [post]
func (s *Server) CreatePlant(c *fiber.Ctx) error {
	form, err := readPlantForm(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	species, _ := form.species()
	if strings.TrimSpace(species) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Name is required"))
	}
	lat, err := validation.ParseLatitude(form["latitude"])
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
	}
	lng, err := validation.ParseLongitude(form["longitude"])
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
	}
	plantedAt, err := parsePlantedAt(form)
	if err != nil {
		return mapServiceError(c, err)
	}

	tree, err := s.treeService.Create(c.UserContext(), service.CreateTreeInput{
		PlanterID: sessionUser(c).UserID,
		Species:   species,
		Latitude:  lat,
		Longitude: lng,
		PlantedAt: plantedAt,
		Status:    form["status"],
		Image:     readPlantImage(c),
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(models.NewPlantView(tree))
}

// GetPlants handles GET /api/plants
// @Summary List plants
// @Description Every planted tree, newest first
// @Tags plants
// @Produce json
// @Param planterId query int false "Only this planter's trees"
// @Success 200 {array} models.PlantView
// @Failure 400 {object} models.ErrorResponse
// @Router /plants [get]
func (s *Server) GetPlants(c *fiber.Ctx) error {
	var planterID *uint
	if raw := strings.TrimSpace(c.Query("planterId")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid planter ID"))
		}
		pid := uint(id)
		planterID = &pid
	}

	trees, err := s.treeService.List(c.UserContext(), planterID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(models.PlantViews(trees))
}

// GetPlant handles GET /api/plants/:id
// @Summary Get a plant
// @Tags plants
// @Produce json
// @Param id path int true "Tree ID"
// @Success 200 {object} models.PlantView
// @Failure 404 {object} models.ErrorResponse
// @Router /plants/{id} [get]
func (s *Server) GetPlant(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	tree, err := s.treeService.Get(c.UserContext(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(models.NewPlantView(tree))
}

// UpdatePlant handles PATCH /api/plants/:id
// @Summary Update a plant
// @Description Partial update by the planter. A new image is appended.
// @Tags plants
// @Accept multipart/form-data,json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Tree ID"
// @Success 200 {object} models.PlantView
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /plants/{id} [patch]
func (s *Server) UpdatePlant(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	form, err := readPlantForm(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.UpdateTreeInput{
		UserID: sessionUser(c).UserID,
		TreeID: id,
		Image:  readPlantImage(c),
	}
	if v, ok := form.species(); ok {
		in.Species = &v
	}
	if v, ok := form.lookup("status"); ok {
		in.Status = &v
	}
	if in.PlantedAt, err = parsePlantedAt(form); err != nil {
		return mapServiceError(c, err)
	}

	tree, err := s.treeService.Update(c.UserContext(), in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(models.NewPlantView(tree))
}

// DeletePlant handles DELETE /api/plants/:id
// @Summary Delete a plant
// @Tags plants
// @Produce json
// @Security BearerAuth
// @Param id path int true "Tree ID"
// @Success 200 {object} object{ok=bool}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /plants/{id} [delete]
func (s *Server) DeletePlant(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.treeService.Delete(c.UserContext(), sessionUser(c).UserID, id); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
