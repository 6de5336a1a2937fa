package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware guards routes that require an authenticated user.
type Middleware struct {
	authService *AuthService
}

func NewMiddleware(authService *AuthService) *Middleware {
	return &Middleware{authService: authService}
}

// Auth requires a valid Bearer token and stores the claims in context.
func (m *Middleware) Auth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := m.authService.ValidateToken(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			setUserContext(c, claims)
			return next(c)
		}
	}
}

// RequireAdmin rejects non-admin users. Must run after Auth.
func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			isAdmin, ok := c.Get("is_admin").(bool)
			if !ok || !isAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "admin privileges required")
			}
			return next(c)
		}
	}
}

// OptionalAuth populates user context when a valid token is present but
// never rejects the request.
func (m *Middleware) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := extractToken(c)
			if err != nil {
				return next(c)
			}
			if claims, err := m.authService.ValidateToken(tokenString); err == nil {
				setUserContext(c, claims)
			}
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		cookie, err := c.Cookie("access_token")
		if err != nil {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
		}
		auth = "Bearer " + cookie.Value
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authentication format")
	}
	return parts[1], nil
}

func setUserContext(c echo.Context, claims *Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("email", claims.Email)
	c.Set("is_admin", claims.IsAdmin)
}
