package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
)

// Security sets response security headers. Profile pages are served to
// third-party browsers on tenant domains, so the header set leans
// restrictive.
func Security(cfg *viper.Viper) echo.MiddlewareFunc {
	csp := buildCSP(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response().Header()

			res.Set("Content-Security-Policy", csp)
			res.Set("X-Content-Type-Options", "nosniff")
			res.Set("X-Frame-Options", "DENY")
			res.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			res.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https" {
				res.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			return next(c)
		}
	}
}

func buildCSP(cfg *viper.Viper) string {
	directives := []string{
		"default-src 'self'",
		"img-src 'self' data: https:",
		"object-src 'none'",
		"frame-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	if extra := cfg.GetStringSlice("security.csp.connect_domains"); len(extra) > 0 {
		directives = append(directives, "connect-src 'self' "+strings.Join(extra, " "))
	} else {
		directives = append(directives, "connect-src 'self'")
	}
	return strings.Join(directives, "; ")
}
