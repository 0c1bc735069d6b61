package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/lending-service/pkg/auth"
	md "github.com/openshelf/lending-service/pkg/middleware"
)

func signToken(t *testing.T, userID, role string, expiresAt *jwt.NumericDate) string {
	t.Helper()
	claims := &auth.Claims{}
	claims.Profile.UserID = userID
	claims.Profile.Role = role
	claims.ExpiresAt = expiresAt

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.JWTKey)
	require.NoError(t, err)
	return token
}

func newProtectedEcho(handler echo.HandlerFunc, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/me", handler, mws...)
	return e
}

func TestJwtAuthentication(t *testing.T) {
	t.Parallel()

	echoClaims := func(c echo.Context) error {
		userID, role, ok := auth.FromContext(c.Request().Context())
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "no auth context")
		}
		return c.JSON(http.StatusOK, map[string]string{"userId": userID, "role": role})
	}

	tests := []struct {
		name          string
		authorization string
		expectedCode  int
	}{
		{
			name:          "ok",
			authorization: "Bearer " + signToken(t, "id-1", auth.RoleReader, jwt.NewNumericDate(time.Now().Add(time.Hour))),
			expectedCode:  http.StatusOK,
		},
		{
			name:          "ok. token without expiry",
			authorization: "Bearer " + signToken(t, "id-1", auth.RoleReader, nil),
			expectedCode:  http.StatusOK,
		},
		{
			name:          "err. expired token",
			authorization: "Bearer " + signToken(t, "id-1", auth.RoleReader, jwt.NewNumericDate(time.Now().Add(-time.Hour))),
			expectedCode:  http.StatusUnauthorized,
		},
		{
			name:          "err. missing header",
			authorization: "",
			expectedCode:  http.StatusUnauthorized,
		},
		{
			name:          "err. not a bearer token",
			authorization: "Basic dXNlcjpwYXNz",
			expectedCode:  http.StatusUnauthorized,
		},
		{
			name:          "err. garbage token",
			authorization: "Bearer not.a.jwt",
			expectedCode:  http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newProtectedEcho(echoClaims, md.JwtAuthentication)

			r := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
			if tt.authorization != "" {
				r.Header.Set(md.AuthorizationHeader, tt.authorization)
			}
			w := httptest.NewRecorder()
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	t.Parallel()

	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	tests := []struct {
		name         string
		role         string
		expectedCode int
	}{
		{name: "ok. admin passes", role: auth.RoleAdmin, expectedCode: http.StatusNoContent},
		{name: "err. reader forbidden", role: auth.RoleReader, expectedCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newProtectedEcho(ok, md.JwtAuthentication, md.AdminOnly)

			token := signToken(t, "id-1", tt.role, jwt.NewNumericDate(time.Now().Add(time.Hour)))
			r := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
			r.Header.Set(md.AuthorizationHeader, "Bearer "+token)
			w := httptest.NewRecorder()
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
		})
	}
}
