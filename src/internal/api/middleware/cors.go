package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
)

// CORS returns cross-origin middleware configured from settings. The
// management API is restricted to configured origins; the public read
// surface (profile JSON, health) is open to any origin so tenant pages
// hosted on custom domains can fetch it.
func CORS(cfg *viper.Viper) echo.MiddlewareFunc {
	allowedOrigins := cfg.GetStringSlice("cors.allowed_origins")
	if len(allowedOrigins) == 0 {
		platform := cfg.GetString("platform.domain")
		allowedOrigins = []string{
			"https://" + platform,
			"https://*." + platform,
		}
	}

	methods := cfg.GetString("cors.allowed_methods")
	if methods == "" {
		methods = "GET, HEAD, POST, PUT, DELETE, OPTIONS"
	}
	headers := cfg.GetString("cors.allowed_headers")
	if headers == "" {
		headers = "Authorization, Content-Type"
	}
	maxAge := cfg.GetInt("cors.max_age")
	if maxAge <= 0 {
		maxAge = 600
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			origin := req.Header.Get("Origin")
			if origin == "" {
				return next(c)
			}

			allowed := originAllowed(origin, allowedOrigins) || isPublicReadRequest(req)
			if !allowed {
				return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
			}

			res.Header().Set("Access-Control-Allow-Origin", origin)
			res.Header().Add("Vary", "Origin")
			res.Header().Set("Access-Control-Allow-Methods", methods)
			res.Header().Set("Access-Control-Allow-Headers", headers)
			res.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			if cfg.GetBool("cors.allow_credentials") {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

func originAllowed(origin string, allowedOrigins []string) bool {
	for _, allowedOrigin := range allowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}

		// "https://*.example.com" admits any subdomain but not the
		// apex and not lookalike suffixes.
		if scheme, pattern, ok := strings.Cut(allowedOrigin, "://"); ok && strings.HasPrefix(pattern, "*.") {
			if strings.HasPrefix(origin, scheme+"://") &&
				strings.HasSuffix(origin, "."+strings.TrimPrefix(pattern, "*.")) {
				return true
			}
		}
	}
	return false
}

// isPublicReadRequest matches the anonymous read surface: public
// profile JSON and the health probes.
func isPublicReadRequest(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}

	path := req.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/profiles/"),
		path == "/health",
		path == "/healthz":
		return true
	}
	return false
}
