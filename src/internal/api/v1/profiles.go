package v1

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/profiles"
)

// ProfileHandler exposes profile management endpoints.
type ProfileHandler struct {
	service *profiles.Service
	domains domainLookup
}

// domainLookup is the subset of the domain service the profile handler
// needs to report a tenant's primary domain.
type domainLookup interface {
	ActivePrimaryDomain(userID uuid.UUID) (string, error)
}

func NewProfileHandler(service *profiles.Service, domains domainLookup) *ProfileHandler {
	return &ProfileHandler{service: service, domains: domains}
}

// RegisterRoutes mounts profile routes. The group must require
// authentication; public profile reads are registered separately.
func (h *ProfileHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/me", h.GetOwn)
	g.PUT("/me", h.Update)
	g.POST("/me/links", h.AddLink)
	g.DELETE("/me/links/:id", h.RemoveLink)
}

type updateProfileRequest struct {
	DisplayName         *string `json:"display_name" validate:"omitempty,max=100"`
	Bio                 *string `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL           *string `json:"avatar_url" validate:"omitempty,max=500"`
	Theme               *string `json:"theme" validate:"omitempty,max=50"`
	CanonicalPreference *string `json:"canonical_preference" validate:"omitempty,oneof=auto www non-www"`
	ForceHTTPS          *bool   `json:"force_https"`
	Published           *bool   `json:"published"`
}

type addLinkRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	URL   string `json:"url" validate:"required,url,max=2000"`
}

type profileResponse struct {
	DisplayName         string         `json:"display_name"`
	Bio                 string         `json:"bio"`
	AvatarURL           string         `json:"avatar_url"`
	Theme               string         `json:"theme"`
	CanonicalPreference string         `json:"canonical_preference"`
	ForceHTTPS          bool           `json:"force_https"`
	Published           bool           `json:"published"`
	Links               []linkResponse `json:"links"`
}

type linkResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

func toProfileResponse(p *models.Profile) profileResponse {
	resp := profileResponse{
		DisplayName:         p.DisplayName,
		Bio:                 p.Bio,
		AvatarURL:           p.AvatarURL,
		Theme:               p.Theme,
		CanonicalPreference: string(p.CanonicalPreference),
		ForceHTTPS:          p.ForceHTTPS,
		Published:           p.Published,
		Links:               make([]linkResponse, 0, len(p.Links)),
	}
	for _, link := range p.Links {
		resp.Links = append(resp.Links, linkResponse{
			ID:       link.ID.String(),
			Title:    link.Title,
			URL:      link.URL,
			Position: link.Position,
		})
	}
	return resp
}

// GetOwn returns the current user's profile.
func (h *ProfileHandler) GetOwn(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	profile, err := h.service.GetByOwner(userID)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return c.JSON(http.StatusOK, toProfileResponse(&models.Profile{
				CanonicalPreference: models.CanonicalAuto,
			}))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(http.StatusOK, toProfileResponse(profile))
}

// Update applies partial profile updates.
func (h *ProfileHandler) Update(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	input := profiles.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		Theme:       req.Theme,
		ForceHTTPS:  req.ForceHTTPS,
		Published:   req.Published,
	}
	if req.CanonicalPreference != nil {
		pref := models.CanonicalPreference(*req.CanonicalPreference)
		input.CanonicalPreference = &pref
	}

	profile, err := h.service.Update(userID, input)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, toProfileResponse(profile))
}

// AddLink appends a link to the current user's profile.
func (h *ProfileHandler) AddLink(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req addLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	link, err := h.service.AddLink(userID, req.Title, req.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to add link")
	}
	return c.JSON(http.StatusCreated, linkResponse{
		ID:       link.ID.String(),
		Title:    link.Title,
		URL:      link.URL,
		Position: link.Position,
	})
}

// RemoveLink deletes a link from the current user's profile.
func (h *ProfileHandler) RemoveLink(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid link id")
	}

	if err := h.service.RemoveLink(userID, linkID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to remove link")
	}
	return c.NoContent(http.StatusNoContent)
}

// GetPublic serves a published profile by username.
func (h *ProfileHandler) GetPublic(c echo.Context) error {
	username := c.Param("username")

	profile, user, err := h.service.GetByUsername(username)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "profile not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
	}

	resp := map[string]interface{}{
		"username": user.Username,
		"profile":  toProfileResponse(profile),
	}
	if primary, err := h.domains.ActivePrimaryDomain(user.ID); err == nil && primary != "" {
		resp["primary_domain"] = primary
	}
	return c.JSON(http.StatusOK, resp)
}
