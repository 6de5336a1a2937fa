package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/casapps/caslinks/src/internal/auth"
	"github.com/casapps/caslinks/src/internal/database/models"
)

// AuthHandler exposes registration and login endpoints.
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
}

func NewAuthHandler(db *gorm.DB, authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{db: db, authService: authService}
}

// RegisterRoutes mounts the public auth routes on the given group.
func (h *AuthHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=39,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsAdmin:     u.IsAdmin,
	}
}

// Register creates a new user account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := h.db.Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to check user")
	}
	if count > 0 {
		return echo.NewHTTPError(http.StatusConflict, "username or email already taken")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}

	tokens, err := h.issueTokens(&user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue tokens")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"user":   toUserResponse(&user),
		"tokens": tokens,
	})
}

// Login authenticates by username or email.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	login := strings.ToLower(strings.TrimSpace(req.Login))

	var user models.User
	err := h.db.First(&user, "username = ? OR email = ?", login, login).Error
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	}
	if !user.IsActive {
		return echo.NewHTTPError(http.StatusForbidden, auth.ErrUserInactive.Error())
	}

	tokens, err := h.issueTokens(&user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue tokens")
	}

	h.db.Model(&user).UpdateColumn("last_login_at", gorm.Expr("CURRENT_TIMESTAMP"))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":   toUserResponse(&user),
		"tokens": tokens,
	})
}

// Refresh redeems a refresh token for a fresh token pair. Grants are
// single use: the presented token is revoked before the new pair is
// issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var session models.Session
	err := h.db.First(&session, "token_hash = ?", auth.HashRefreshToken(req.RefreshToken)).Error
	if err != nil || session.Expired() {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error())
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", session.UserID).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error())
	}
	if !user.IsActive {
		return echo.NewHTTPError(http.StatusForbidden, auth.ErrUserInactive.Error())
	}

	if err := h.db.Delete(&session).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to rotate session")
	}

	tokens, err := h.issueTokens(&user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue tokens")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tokens": tokens,
	})
}

func (h *AuthHandler) issueTokens(user *models.User) (*auth.TokenPair, error) {
	tokens, err := h.authService.GenerateTokenPair(user.ID, user.Username, user.Email, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	session := models.Session{
		UserID:    user.ID,
		TokenHash: auth.HashRefreshToken(tokens.RefreshToken),
		ExpiresAt: time.Now().Add(h.authService.RefreshTokenTTL()),
	}
	if err := h.db.Create(&session).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, toUserResponse(&user))
}
