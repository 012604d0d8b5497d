// Package middleware provides request logging, session authentication, rate
// limiting, tracing and metrics middleware for the application.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"canopy/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

const (
	tokenIssuer   = "canopy-api"
	tokenAudience = "canopy-client"
)

// Session is the validated identity behind a request.
type Session struct {
	UserID    uint
	Role      models.Role
	TokenID   string
	ExpiresAt time.Time
}

// RevocationStore records logged-out token IDs.
type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// SessionManager issues and validates signed session tokens. The same token
// is accepted from the session cookie or an Authorization bearer header.
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationStore
	now     func() time.Time
}

// NewSessionManager returns a manager signing with secret. revoked may be nil.
func NewSessionManager(secret string, ttl time.Duration, revoked RevocationStore) *SessionManager {
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: revoked,
		now:     time.Now,
	}
}

// TTL is the lifetime of issued sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a new session token for the user.
func (m *SessionManager) Issue(userID uint, role models.Role) (string, *Session, error) {
	if len(m.secret) == 0 {
		return "", nil, fmt.Errorf("session secret not configured")
	}

	now := m.now()
	s := &Session{
		UserID:    userID,
		Role:      role,
		TokenID:   fmt.Sprintf("%d-%s", now.Unix(), uuid.New().String()[:8]),
		ExpiresAt: now.Add(m.ttl),
	}
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"role": string(role),
		"iss":  tokenIssuer,
		"aud":  tokenAudience,
		"exp":  s.ExpiresAt.Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"jti":  s.TokenID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Parse validates a token and returns its session. Every failure is an
// authentication error.
func (m *SessionManager) Parse(ctx context.Context, tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, models.NewAuthenticationError("Authentication required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, models.NewAuthenticationError("Invalid or expired session")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewAuthenticationError("Invalid session claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return nil, models.NewAuthenticationError("Invalid session subject")
	}

	roleRaw, _ := claims["role"].(string)
	role, ok := models.ParseRole(roleRaw)
	if !ok || roleRaw == "" {
		return nil, models.NewAuthenticationError("Invalid session role")
	}

	s := &Session{UserID: uint(userID), Role: role}
	s.TokenID, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}

	if s.TokenID != "" && m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, s.TokenID)
		if err != nil {
			Logger.WarnContext(ctx, "session revocation lookup failed", "error", err)
		} else if revoked {
			return nil, models.NewAuthenticationError("Session has been revoked")
		}
	}

	return s, nil
}

// Revoke blacklists the session until it would have expired anyway.
func (m *SessionManager) Revoke(ctx context.Context, s *Session) error {
	if m.revoked == nil || s == nil || s.TokenID == "" {
		return nil
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.revoked.Revoke(ctx, s.TokenID, ttl)
}

// TokenFromRequest reads the session token from the cookie, falling back to
// an Authorization bearer header.
func TokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(SessionCookieName); token != "" {
		return token
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SetSessionCookie writes the session cookie.
func SetSessionCookie(c *fiber.Ctx, token string, expires time.Time, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SessionRequired rejects requests without a valid session with 401 and
// stores the session in locals for downstream handlers.
func SessionRequired(m *SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := m.Parse(c.UserContext(), TokenFromRequest(c))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		attachSession(c, s)
		return c.Next()
	}
}

// RoleRequired must run after SessionRequired. A session with any other role
// is treated as unauthenticated for the route.
func RoleRequired(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, ok := CurrentSession(c)
		if !ok || s.Role != role {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewAuthenticationError("Unauthorized"))
		}
		return c.Next()
	}
}

// MapGate guards server-rendered map pages: without a valid session the
// request is redirected to the landing page. Roles are not consulted here.
func MapGate(m *SessionManager, landing string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := m.Parse(c.UserContext(), c.Cookies(SessionCookieName))
		if err != nil {
			return c.Redirect(landing, fiber.StatusFound)
		}
		attachSession(c, s)
		return c.Next()
	}
}

// CurrentSession returns the session stored by SessionRequired or MapGate.
func CurrentSession(c *fiber.Ctx) (*Session, bool) {
	s, ok := c.Locals("session").(*Session)
	return s, ok && s != nil
}

func attachSession(c *fiber.Ctx, s *Session) {
	c.Locals("session", s)
	c.Locals("userID", s.UserID)
	c.Locals("role", string(s.Role))

	ctx := context.WithValue(c.UserContext(), UserIDKey, s.UserID)
	ctx = context.WithValue(ctx, RoleKey, string(s.Role))
	c.SetUserContext(ctx)
}

// RedisRevocations stores revoked token IDs under blacklist:<jti>.
type RedisRevocations struct {
	rdb *redis.Client
}

// NewRedisRevocations returns a revocation store. A nil client never revokes.
func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if r == nil || r.rdb == nil {
		return false, nil
	}
	n, err := r.rdb.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, "blacklist:"+tokenID, "1", ttl).Err()
}
