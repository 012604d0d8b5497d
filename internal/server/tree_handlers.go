package server

import "github.com/gofiber/fiber/v2"

// GetCustodianTrees handles GET /api/custodian/trees
// @Summary Custodian trees
// @Description The custodian's own trees with photos and update history
// @Tags dashboards
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{trees=[]models.CustodianTree}
// @Failure 401 {object} models.ErrorResponse
// @Router /custodian/trees [get]
func (s *Server) GetCustodianTrees(c *fiber.Ctx) error {
	trees, err := s.treeService.CustodianTrees(c.UserContext(), sessionUser(c).UserID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"trees": trees})
}

// GetSupplierTrees handles GET /api/supplier/trees
// @Summary Supplier trees
// @Description Every tree with its planter and latest photo
// @Tags dashboards
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{trees=[]models.SupplierTree}
// @Failure 401 {object} models.ErrorResponse
// @Router /supplier/trees [get]
func (s *Server) GetSupplierTrees(c *fiber.Ctx) error {
	trees, err := s.treeService.SupplierTrees(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"trees": trees})
}

// GetPlanters handles GET /api/planters
// @Summary Planter aggregate
// @Description Every user who planted at least one tree, with their trees
// @Tags planters
// @Produce json
// @Success 200 {array} models.PlanterSummary
// @Router /planters [get]
func (s *Server) GetPlanters(c *fiber.Ctx) error {
	planters, err := s.planterService.Planters(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(planters)
}
