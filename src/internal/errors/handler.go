package errors

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// ErrorResponse is the standardized error body all endpoints return.
type ErrorResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"status_code"`
}

// Handler converts errors escaping handlers into ErrorResponse bodies.
type Handler struct {
	production bool
}

func NewHandler(cfg *viper.Viper) *Handler {
	return &Handler{
		production: cfg.GetString("environment") == "production",
	}
}

// HandleError is installed as echo's HTTPErrorHandler.
func (h *Handler) HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		code = http.StatusNotFound
		message = "not found"
	}

	if code >= http.StatusInternalServerError {
		slog.Error("request failed",
			"error", err,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"request_id", requestID(c))
		if h.production {
			message = "internal server error"
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	_ = c.JSON(code, ErrorResponse{
		Error:      http.StatusText(code),
		Message:    message,
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID(c),
		Path:       c.Request().URL.Path,
		StatusCode: code,
	})
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
