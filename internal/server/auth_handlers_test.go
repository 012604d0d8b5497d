package server

import (
	"net/http"
	"testing"

	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
		expectedRole   models.Role
	}{
		{
			name:           "Default role",
			body:           map[string]string{"name": "Amina", "email": "amina@example.com", "password": "password123"},
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleCustodian,
		},
		{
			name:           "Supplier",
			body:           map[string]string{"name": "Sam", "email": "sam@example.com", "password": "password123", "role": "supplier"},
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleSupplier,
		},
		{
			name:           "Duplicate email",
			body:           map[string]string{"name": "Amina", "email": "AMINA@example.com", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Admin self registration",
			body:           map[string]string{"name": "Eve", "email": "eve@example.com", "password": "password123", "role": "ADMIN"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Short password",
			body:           map[string]string{"name": "Bo", "email": "bo@example.com", "password": "short"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, request{
				method:      http.MethodPost,
				path:        "/api/auth/register",
				body:        jsonBody(t, tt.body),
				contentType: fiber.MIMEApplicationJSON,
			})
			require.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.expectedStatus != http.StatusCreated {
				assert.Nil(t, sessionCookie(resp))
				return
			}

			body := decode[AuthResponse](t, resp)
			assert.NotEmpty(t, body.Token)
			require.NotNil(t, body.User)
			assert.Equal(t, tt.expectedRole, body.User.Role)

			cookie := sessionCookie(resp)
			require.NotNil(t, cookie)
			assert.Equal(t, body.Token, cookie.Value)
			assert.True(t, cookie.HttpOnly)
		})
	}

	assert.Equal(t, int64(2), countRows(t, ts.db, &models.User{}))
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	testutil.CreateUser(t, ts.db, "Amina", "amina@example.com", models.RoleCustodian)

	resp := ts.do(t, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        formBody(map[string]string{"email": "amina@example.com", "password": "wrong-password"}),
		contentType: fiber.MIMEApplicationForm,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        formBody(map[string]string{"email": "ghost@example.com", "password": "password123"}),
		contentType: fiber.MIMEApplicationForm,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        formBody(map[string]string{"email": "amina@example.com", "password": "password123"}),
		contentType: fiber.MIMEApplicationForm,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[AuthResponse](t, resp).Token

	// The same token works from the cookie and as a bearer token.
	resp = ts.do(t, request{method: http.MethodGet, path: "/api/auth/me", cookie: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "amina@example.com", decode[models.User](t, resp).Email)

	resp = ts.do(t, request{method: http.MethodGet, path: "/api/auth/me", token: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ts := newTestServer(t, withRedis(rdb))
	user := testutil.CreateUser(t, ts.db, "Amina", "amina@example.com", models.RoleCustodian)
	token := ts.token(t, user)

	resp := ts.do(t, request{method: http.MethodGet, path: "/api/auth/me", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, request{method: http.MethodPost, path: "/api/auth/logout", cookie: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.NotEmpty(t, mr.Keys())

	resp = ts.do(t, request{method: http.MethodGet, path: "/api/auth/me", token: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, request{method: http.MethodPost, path: "/api/auth/logout"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
