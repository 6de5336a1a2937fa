package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsConfig() *viper.Viper {
	v := viper.New()
	v.Set("platform.domain", "caslinks.test")
	return v
}

func runCORS(t *testing.T, method, path, origin string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := CORS(corsConfig())(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := handler(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestCORSSameOriginPassesThrough(t *testing.T) {
	rec := runCORS(t, http.MethodGet, "/api/v1/domains", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPlatformOriginsAllowed(t *testing.T) {
	for _, origin := range []string{"https://caslinks.test", "https://app.caslinks.test"} {
		rec := runCORS(t, http.MethodPost, "/api/v1/domains", origin)
		require.Equal(t, http.StatusOK, rec.Code, origin)
		assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestCORSForeignOriginRejectedOnManagementAPI(t *testing.T) {
	for _, origin := range []string{
		"https://evil.example.com",
		"https://notcaslinks.test",
	} {
		rec := runCORS(t, http.MethodPost, "/api/v1/domains", origin)
		assert.Equal(t, http.StatusForbidden, rec.Code, origin)
	}
}

func TestCORSPublicReadsOpenToAnyOrigin(t *testing.T) {
	for _, path := range []string{"/api/v1/profiles/alice", "/health", "/healthz"} {
		rec := runCORS(t, http.MethodGet, path, "https://tenant-site.example.com")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "https://tenant-site.example.com", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}

	// Writes stay restricted even on public paths.
	rec := runCORS(t, http.MethodPost, "/api/v1/profiles/alice", "https://tenant-site.example.com")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	rec := runCORS(t, http.MethodOptions, "/api/v1/domains", "https://caslinks.test")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}
