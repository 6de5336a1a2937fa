package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/casapps/caslinks/src/internal/auth"
	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/server"
)

// Suite boots a full server against an in-memory database for
// HTTP-level tests.
type Suite struct {
	suite.Suite

	DB         *gorm.DB
	Config     *viper.Viper
	Echo       *echo.Echo
	Server     *server.Server
	TestServer *httptest.Server
}

// dbSeq keeps each test's shared in-memory database distinct.
var dbSeq atomic.Int64

func (s *Suite) SetupTest() {
	dsn := fmt.Sprintf("file:suite%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), db.AutoMigrate(models.GetAllModels()...))
	s.DB = db

	s.Config = TestConfig()

	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Server = server.New(s.Echo, s.Config, db)
	s.TestServer = httptest.NewServer(s.Echo)
}

func (s *Suite) TearDownTest() {
	if s.TestServer != nil {
		s.TestServer.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// TestConfig returns configuration suitable for tests: in-memory
// stores, email off, a fixed platform domain.
func TestConfig() *viper.Viper {
	v := viper.New()
	v.Set("app.name", "caslinks")
	v.Set("environment", "test")
	v.Set("platform.domain", "caslinks.test")
	v.Set("platform.server_ip", "192.0.2.10")
	v.Set("security.secret_key", "test-secret-key-for-suite-only")
	v.Set("database.type", "sqlite")
	v.Set("email.enabled", false)
	v.Set("redis.enabled", false)
	v.Set("domains.check_interval", "1h")
	v.Set("ratelimit.domain_claims", 1000)
	v.Set("ratelimit.domain_verifies", 1000)
	return v
}

// CreateUser inserts a user with a known password and returns it with
// a valid access token.
func (s *Suite) CreateUser(username string, admin bool) (*models.User, string) {
	hash, err := auth.HashPassword("test-password-123")
	require.NoError(s.T(), err)

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsAdmin:      admin,
		IsActive:     true,
	}
	require.NoError(s.T(), s.DB.Create(user).Error)

	authService := auth.NewAuthService(s.Config)
	tokens, err := authService.GenerateTokenPair(user.ID, user.Username, user.Email, user.IsAdmin)
	require.NoError(s.T(), err)

	return user, tokens.AccessToken
}

// Request performs an HTTP request against the test server and decodes
// the JSON response body into out when out is non-nil.
func (s *Suite) Request(method, path, token string, body interface{}, out interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.TestServer.URL+path, reader)
	require.NoError(s.T(), err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.T(), err)

	if out != nil {
		defer resp.Body.Close()
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// RequestHost is Request with an explicit Host header, for exercising
// hostname classification.
func (s *Suite) RequestHost(t *testing.T, method, path, host string) *http.Response {
	req, err := http.NewRequest(method, s.TestServer.URL+path, nil)
	require.NoError(t, err)
	req.Host = host

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// Addr returns the test server host:port for building expected URLs.
func (s *Suite) Addr() string {
	return s.TestServer.Listener.Addr().String()
}
