package server

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"strings"

	"canopy/internal/featureflags"
	"canopy/internal/mapview"
	"canopy/internal/models"

	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

type landingPage struct {
	DefaultMap string
	Error      string
}

type mapPage struct {
	Map         *models.Map
	RoleClass   string
	Payload     mapview.Payload
	MapboxToken string
	Tracking    bool
}

func (s *Server) render(c *fiber.Ctx, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		return mapServiceError(c, models.NewInternalError(err))
	}
	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}

// LandingPage handles GET /
func (s *Server) LandingPage(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, "landing.html", landingPage{DefaultMap: models.PublicMapName})
}

// MapPage handles GET /map/:name. MapGate has already resolved the session;
// the role only decides which view the page draws.
func (s *Server) MapPage(c *fiber.Ctx) error {
	sess := sessionUser(c)

	m, err := s.mapService.Get(c.UserContext(), sess.UserID, c.Params("name"))
	if err != nil {
		status := models.StatusFor(err)
		if status >= fiber.StatusInternalServerError {
			return mapServiceError(c, err)
		}
		msg := "Map unavailable"
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		return s.render(c, status, "landing.html", landingPage{DefaultMap: models.PublicMapName, Error: msg})
	}

	payload, err := s.markerPayload(c.UserContext(), sess)
	if err != nil {
		return mapServiceError(c, err)
	}

	return s.render(c, fiber.StatusOK, "map.html", mapPage{
		Map:         m,
		RoleClass:   strings.ToLower(string(sess.Role)),
		Payload:     payload,
		MapboxToken: s.config.MapboxToken,
		Tracking:    sess.Role == models.RoleSupplier && s.featureFlags.Enabled(featureflags.TrackingFeed, sess.UserID),
	})
}
