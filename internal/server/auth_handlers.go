package server

import (
	"log/slog"
	"time"

	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AuthResponse is returned by register and login. The token is also set as
// the session cookie; API clients send it back as a bearer token.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create a CUSTODIAN or SUPPLIER account and start a session
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body object{name=string,email=string,password=string,role=string} true "Registration"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name" form:"name"`
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
		Role     string `json:"role" form:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	resp, err := s.startSession(c, user)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Authenticate with email and password and start a session
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	resp, err := s.startSession(c, user)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(resp)
}

// Logout handles POST /api/auth/logout. The token stops being accepted even
// by clients that kept a copy.
// @Summary Logout
// @Tags auth
// @Produce json
// @Success 200 {object} object{ok=bool}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if sess, err := s.sessions.Parse(c.UserContext(), middleware.TokenFromRequest(c)); err == nil {
		if err := s.sessions.Revoke(c.UserContext(), sess); err != nil {
			middleware.Logger.WarnContext(c.UserContext(), "session revocation failed",
				slog.String("error", err.Error()))
		}
	}
	middleware.ClearSessionCookie(c)
	return c.JSON(fiber.Map{"ok": true})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), sessionUser(c).UserID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(user)
}

func (s *Server) startSession(c *fiber.Ctx, user *models.User) (*AuthResponse, error) {
	token, sess, err := s.sessions.Issue(user.ID, user.Role)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	middleware.SetSessionCookie(c, token, sess.ExpiresAt, s.config.CookieSecure)
	return &AuthResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: user}, nil
}
