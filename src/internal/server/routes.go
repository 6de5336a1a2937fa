package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apiMiddleware "github.com/casapps/caslinks/src/internal/api/middleware"
	v1 "github.com/casapps/caslinks/src/internal/api/v1"
	"github.com/casapps/caslinks/src/internal/auth"
	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/profiles"
	"github.com/casapps/caslinks/src/internal/routing"
)

// setupRoutes configures all application routes
func (s *Server) setupRoutes() {
	authMiddleware := auth.NewMiddleware(s.authService)

	healthHandler := v1.NewHealthHandler(s.db)
	s.echo.GET("/health", healthHandler.Health)
	s.echo.GET("/healthz", healthHandler.Healthz)

	apiV1 := s.echo.Group("/api/v1")

	// Authentication
	authHandler := v1.NewAuthHandler(s.db, s.authService)
	authGroup := apiV1.Group("/auth")
	authHandler.RegisterRoutes(authGroup)
	authGroup.GET("/me", authHandler.Me, authMiddleware.Auth())

	// Profile management (owner) and public profile reads
	profileHandler := v1.NewProfileHandler(s.profileService, s.domainService)
	profileGroup := apiV1.Group("/profiles", authMiddleware.Auth())
	profileHandler.RegisterRoutes(profileGroup)
	apiV1.GET("/profiles/:username", profileHandler.GetPublic)

	// Custom domain management
	claimLimit := apiMiddleware.RateLimit(s.rateLimit("ratelimit.domain_claims", 10))
	verifyLimit := apiMiddleware.RateLimit(s.rateLimit("ratelimit.domain_verifies", 30))
	domainHandler := v1.NewDomainHandler(s.domainService)
	domainGroup := apiV1.Group("/domains", authMiddleware.Auth())
	domainHandler.RegisterRoutes(domainGroup, authMiddleware.RequireAdmin(), claimLimit, verifyLimit)

	// Public serving surface. On the platform domain "/" is a landing
	// response and "/:username" a published profile; on an active
	// custom domain "/" serves the owning tenant's profile.
	s.echo.GET("/", s.handleRoot)
	s.echo.HEAD("/", s.handleRoot)
	s.echo.GET("/:username", s.handleProfilePage)
	s.echo.HEAD("/:username", s.handleProfilePage)
}

func (s *Server) rateLimit(key string, fallback int) int {
	perMinute := s.config.GetInt(key)
	if perMinute <= 0 {
		perMinute = fallback
	}
	return perMinute
}

func (s *Server) handleRoot(c echo.Context) error {
	cl, ok := routing.GetClassification(c)
	if ok && cl.Kind == routing.KindCustomDomain {
		// The routing middleware already redirected or rejected
		// non-active domains; anything reaching here serves content.
		return s.serveOwnerProfile(c, cl.OwnerID)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":    s.config.GetString("app.name"),
		"version": s.config.GetString("app.version"),
	})
}

func (s *Server) handleProfilePage(c echo.Context) error {
	cl, ok := routing.GetClassification(c)
	if ok && cl.Kind == routing.KindCustomDomain {
		// Custom domains serve a single profile at "/" only.
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	username := c.Param("username")
	profile, user, err := s.profileService.GetByUsername(username)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "profile not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
	}

	// One canonical public URL per tenant: platform profile requests
	// bounce to the active primary custom domain when one exists. A
	// lookup failure degrades to serving on the platform host.
	primary, err := s.domainService.ActivePrimaryDomain(user.ID)
	if err != nil {
		slog.Warn("primary domain lookup failed, serving on platform host",
			"username", username, "error", err)
	} else if primary != "" {
		if d := s.policy.DecidePlatformProfile(c.Request(), primary); d.Decision == routing.DecisionRedirect {
			return c.Redirect(d.Code, d.Location)
		}
	}

	return s.renderProfile(c, profile, user.Username)
}

func (s *Server) serveOwnerProfile(c echo.Context, ownerID uuid.UUID) error {
	profile, user, err := s.profileService.GetPublishedByOwner(ownerID)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "profile not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
	}
	return s.renderProfile(c, profile, user.Username)
}

func (s *Server) renderProfile(c echo.Context, profile *models.Profile, username string) error {
	return c.JSON(http.StatusOK, profiles.NewPublicProfile(profile, username))
}
