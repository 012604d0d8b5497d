package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags returns the configured flag names and their evaluated
// state for the current user.
// @Summary Feature flags
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{flags=[]string,evaluated=map[string]bool}
// @Router /admin/feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)

	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"flags":     []string{},
			"evaluated": map[string]bool{},
		})
	}

	names := s.featureFlags.Names()
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{
		"flags":     names,
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}

// GetUsers handles GET /api/admin/users
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {array} models.User
// @Router /admin/users [get]
func (s *Server) GetUsers(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	users, err := s.userService.ListUsers(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(users)
}
