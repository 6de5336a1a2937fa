package v1

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/domains"
)

// DomainHandler exposes custom domain management endpoints.
type DomainHandler struct {
	service *domains.Service
}

func NewDomainHandler(service *domains.Service) *DomainHandler {
	return &DomainHandler{service: service}
}

// RegisterRoutes mounts the domain routes on the given group. The group
// is expected to already require authentication. Claim and verify get
// their own rate limits since both hit external state (the store's
// unique index and the resolver).
func (h *DomainHandler) RegisterRoutes(g *echo.Group, admin, claimLimit, verifyLimit echo.MiddlewareFunc) {
	g.POST("", h.Claim, claimLimit)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/instructions", h.Instructions)
	g.POST("/:id/verify", h.Verify, verifyLimit)
	g.POST("/:id/primary", h.SetPrimary)
	g.POST("/:id/regenerate", h.Regenerate, claimLimit)
	g.POST("/:id/retry", h.Retry)
	g.DELETE("/:id", h.Remove)

	g.POST("/:id/activate", h.Activate, admin)
	g.POST("/:id/reject", h.Reject, admin)
}

type claimDomainRequest struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

type domainResponse struct {
	ID                string  `json:"id"`
	Domain            string  `json:"domain"`
	Status            string  `json:"status"`
	VerificationToken string  `json:"verification_token"`
	DNSVerified       bool    `json:"dns_verified"`
	IsPrimary         bool    `json:"is_primary"`
	FailureCount      int     `json:"failure_count"`
	LastCheckedAt     *string `json:"last_checked_at,omitempty"`
	VerifiedAt        *string `json:"verified_at,omitempty"`
}

func toDomainResponse(d *models.CustomDomain) domainResponse {
	resp := domainResponse{
		ID:                d.ID.String(),
		Domain:            d.Domain,
		Status:            string(d.Status),
		VerificationToken: d.VerificationToken,
		DNSVerified:       d.DNSVerified,
		IsPrimary:         d.IsPrimary,
		FailureCount:      d.FailureCount,
	}
	if d.LastCheckedAt != nil {
		t := d.LastCheckedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.LastCheckedAt = &t
	}
	if d.VerifiedAt != nil {
		t := d.VerifiedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.VerifiedAt = &t
	}
	return resp
}

// Claim registers a new custom domain for the current user.
func (h *DomainHandler) Claim(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req claimDomainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	record, err := h.service.Claim(userID, req.Domain)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"domain":       toDomainResponse(record),
		"instructions": h.service.Instructions(record),
	})
}

// List returns all domains owned by the current user.
func (h *DomainHandler) List(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	records, err := h.service.ListByOwner(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list domains")
	}

	out := make([]domainResponse, 0, len(records))
	for i := range records {
		out = append(out, toDomainResponse(&records[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"domains": out,
		"total":   len(out),
	})
}

// Get returns a single domain owned by the current user.
func (h *DomainHandler) Get(c echo.Context) error {
	record, err := h.ownedDomain(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDomainResponse(record))
}

// Instructions returns the DNS records the tenant must create.
func (h *DomainHandler) Instructions(c echo.Context) error {
	record, err := h.ownedDomain(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"domain":  record.Domain,
		"records": h.service.Instructions(record),
	})
}

// Verify triggers an immediate DNS check for the domain.
func (h *DomainHandler) Verify(c echo.Context) error {
	record, err := h.ownedDomain(c)
	if err != nil {
		return err
	}

	updated, verr := h.service.VerifyNow(c.Request().Context(), record.ID)
	if updated == nil {
		return domainError(verr)
	}

	resp := map[string]interface{}{
		"domain":   toDomainResponse(updated),
		"verified": updated.DNSVerified,
	}
	if verr != nil {
		resp["reason"] = verr.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// SetPrimary marks an active domain as the user's primary domain.
func (h *DomainHandler) SetPrimary(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseDomainID(c)
	if err != nil {
		return err
	}

	record, err := h.service.SetPrimary(id, userID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, toDomainResponse(record))
}

// Regenerate issues a fresh verification token and resets the domain to
// pending verification.
func (h *DomainHandler) Regenerate(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseDomainID(c)
	if err != nil {
		return err
	}

	record, err := h.service.RegenerateToken(id, userID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"domain":       toDomainResponse(record),
		"instructions": h.service.Instructions(record),
	})
}

// Retry moves a failed domain back into the verification queue.
func (h *DomainHandler) Retry(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseDomainID(c)
	if err != nil {
		return err
	}

	record, err := h.service.Retry(id, userID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, toDomainResponse(record))
}

// Remove deletes a domain record. Removal is idempotent.
func (h *DomainHandler) Remove(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseDomainID(c)
	if err != nil {
		return err
	}

	if err := h.service.Remove(id, userID); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Activate approves a DNS-verified domain for serving. Admin only.
func (h *DomainHandler) Activate(c echo.Context) error {
	id, err := parseDomainID(c)
	if err != nil {
		return err
	}

	makePrimary := c.QueryParam("primary") == "true"
	record, err := h.service.Activate(id, makePrimary)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, toDomainResponse(record))
}

// Reject permanently rejects a domain. Admin only.
func (h *DomainHandler) Reject(c echo.Context) error {
	id, err := parseDomainID(c)
	if err != nil {
		return err
	}

	record, err := h.service.Reject(id)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, toDomainResponse(record))
}

func (h *DomainHandler) ownedDomain(c echo.Context) (*models.CustomDomain, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}
	id, err := parseDomainID(c)
	if err != nil {
		return nil, err
	}

	record, err := h.service.GetByID(id)
	if err != nil {
		return nil, domainError(err)
	}
	if record.UserID != userID {
		isAdmin, _ := c.Get("is_admin").(bool)
		if !isAdmin {
			return nil, echo.NewHTTPError(http.StatusNotFound, "domain not found")
		}
	}
	return record, nil
}

func parseDomainID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid domain id")
	}
	return id, nil
}

// domainError maps service errors to HTTP status codes.
func domainError(err error) error {
	switch {
	case errors.Is(err, domains.ErrDomainNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domains.ErrNotOwner):
		return echo.NewHTTPError(http.StatusNotFound, "domain not found")
	case errors.Is(err, domains.ErrDomainAlreadyClaimed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, domains.ErrInvalidDomainSyntax),
		errors.Is(err, domains.ErrPrimaryConflict),
		errors.Is(err, domains.ErrIllegalTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domains.ErrDNSNotPropagated),
		errors.Is(err, domains.ErrTokenMismatch),
		errors.Is(err, domains.ErrVerificationTimedOut):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
