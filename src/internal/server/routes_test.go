package server_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/casapps/caslinks/src/internal/database/models"
	apptesting "github.com/casapps/caslinks/src/internal/testing"
)

type RoutesSuite struct {
	apptesting.Suite
}

func TestRoutesSuite(t *testing.T) {
	suite.Run(t, new(RoutesSuite))
}

func (s *RoutesSuite) TestHealth() {
	resp := s.Request(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
}

func (s *RoutesSuite) TestRegisterLoginAndMe() {
	var registered struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	resp := s.Request(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "a-long-password",
	}, &registered)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	assert.Equal(s.T(), "alice", registered.User.Username)
	require.NotEmpty(s.T(), registered.Tokens.AccessToken)

	var me struct {
		Username string `json:"username"`
	}
	resp = s.Request(http.MethodGet, "/api/v1/auth/me", registered.Tokens.AccessToken, nil, &me)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "alice", me.Username)

	// Duplicate registration conflicts.
	resp = s.Request(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "a-long-password",
	}, nil)
	assert.Equal(s.T(), http.StatusConflict, resp.StatusCode)

	var loggedIn struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	resp = s.Request(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    "alice@example.com",
		"password": "a-long-password",
	}, &loggedIn)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.NotEmpty(s.T(), loggedIn.Tokens.AccessToken)
	require.NotEmpty(s.T(), loggedIn.Tokens.RefreshToken)

	// A refresh grant is single use.
	var refreshed struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	resp = s.Request(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": loggedIn.Tokens.RefreshToken,
	}, &refreshed)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.NotEmpty(s.T(), refreshed.Tokens.AccessToken)

	resp = s.Request(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": loggedIn.Tokens.RefreshToken,
	}, nil)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	resp = s.Request(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    "alice",
		"password": "wrong",
	}, nil)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *RoutesSuite) TestDomainClaimFlow() {
	_, token := s.CreateUser("bob", false)

	var claimed struct {
		Domain struct {
			ID     string `json:"id"`
			Domain string `json:"domain"`
			Status string `json:"status"`
		} `json:"domain"`
		Instructions []struct {
			Type string `json:"type"`
		} `json:"instructions"`
	}
	resp := s.Request(http.MethodPost, "/api/v1/domains", token, map[string]string{
		"domain": "Bob-Links.example.com",
	}, &claimed)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	assert.Equal(s.T(), "bob-links.example.com", claimed.Domain.Domain)
	assert.Equal(s.T(), "pending_dns", claimed.Domain.Status)
	assert.Len(s.T(), claimed.Instructions, 3)

	// Claiming again conflicts, also for another tenant.
	resp = s.Request(http.MethodPost, "/api/v1/domains", token, map[string]string{
		"domain": "bob-links.example.com",
	}, nil)
	assert.Equal(s.T(), http.StatusConflict, resp.StatusCode)

	_, otherToken := s.CreateUser("carol", false)
	resp = s.Request(http.MethodPost, "/api/v1/domains", otherToken, map[string]string{
		"domain": "bob-links.example.com",
	}, nil)
	assert.Equal(s.T(), http.StatusConflict, resp.StatusCode)

	// Claims on the platform domain are rejected.
	resp = s.Request(http.MethodPost, "/api/v1/domains", token, map[string]string{
		"domain": "bob.caslinks.test",
	}, nil)
	assert.Equal(s.T(), http.StatusUnprocessableEntity, resp.StatusCode)

	var listed struct {
		Total int `json:"total"`
	}
	resp = s.Request(http.MethodGet, "/api/v1/domains", token, nil, &listed)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), 1, listed.Total)

	// Another tenant cannot see or touch the record.
	resp = s.Request(http.MethodGet, "/api/v1/domains/"+claimed.Domain.ID, otherToken, nil, nil)
	assert.Equal(s.T(), http.StatusNotFound, resp.StatusCode)

	resp = s.Request(http.MethodDelete, "/api/v1/domains/"+claimed.Domain.ID, token, nil, nil)
	assert.Equal(s.T(), http.StatusNoContent, resp.StatusCode)
	// Idempotent removal.
	resp = s.Request(http.MethodDelete, "/api/v1/domains/"+claimed.Domain.ID, token, nil, nil)
	assert.Equal(s.T(), http.StatusNoContent, resp.StatusCode)
}

func (s *RoutesSuite) TestDomainAdminEndpointsRequireAdmin() {
	user, token := s.CreateUser("dave", false)

	domain := s.createDomain(user.ID, "dave.example.com", models.DomainStatusVerifiedDNS, false)

	resp := s.Request(http.MethodPost, "/api/v1/domains/"+domain.ID.String()+"/activate", token, nil, nil)
	assert.Equal(s.T(), http.StatusForbidden, resp.StatusCode)

	_, adminToken := s.CreateUser("root", true)
	resp = s.Request(http.MethodPost, "/api/v1/domains/"+domain.ID.String()+"/activate?primary=true", adminToken, nil, nil)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	reloaded := s.loadDomain(domain.ID.String())
	assert.Equal(s.T(), models.DomainStatusActive, reloaded.Status)
	assert.True(s.T(), reloaded.IsPrimary)
}

func (s *RoutesSuite) TestPlatformProfileServing() {
	user, token := s.CreateUser("erin", false)

	resp := s.Request(http.MethodPut, "/api/v1/profiles/me", token, map[string]interface{}{
		"display_name": "Erin",
		"published":    true,
	}, nil)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var view struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	resp = s.Request(http.MethodGet, "/erin", "", nil, &view)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "erin", view.Username)
	assert.Equal(s.T(), "Erin", view.DisplayName)

	resp = s.Request(http.MethodGet, "/nobody", "", nil, nil)
	assert.Equal(s.T(), http.StatusNotFound, resp.StatusCode)

	// With an active primary custom domain, the platform profile URL
	// redirects once to the canonical home.
	s.createDomain(user.ID, "erin.example.com", models.DomainStatusActive, true)

	r := s.RequestHost(s.T(), http.MethodGet, "/erin", "caslinks.test")
	assert.Equal(s.T(), http.StatusFound, r.StatusCode)
	assert.Equal(s.T(), "https://erin.example.com/erin", r.Header.Get("Location"))
}

func (s *RoutesSuite) TestCustomDomainServing() {
	user, token := s.CreateUser("frank", false)
	resp := s.Request(http.MethodPut, "/api/v1/profiles/me", token, map[string]interface{}{
		"display_name": "Frank",
		"published":    true,
		"force_https":  false,
	}, nil)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	// Unknown custom domain: 404, never platform content.
	r := s.RequestHost(s.T(), http.MethodGet, "/", "stranger.example.net")
	assert.Equal(s.T(), http.StatusNotFound, r.StatusCode)

	// Pending domain: temporary redirect to the platform equivalent.
	s.createDomain(user.ID, "pending.example.com", models.DomainStatusPendingDNS, false)
	r = s.RequestHost(s.T(), http.MethodGet, "/", "pending.example.com")
	assert.Equal(s.T(), http.StatusFound, r.StatusCode)
	assert.Equal(s.T(), "https://caslinks.test/", r.Header.Get("Location"))

	// Active domain: serves the owner's profile.
	s.createDomain(user.ID, "frank.example.com", models.DomainStatusActive, false)
	r = s.RequestHost(s.T(), http.MethodGet, "/", "frank.example.com")
	assert.Equal(s.T(), http.StatusOK, r.StatusCode)

	// Paths other than "/" on a custom domain do not resolve usernames.
	r = s.RequestHost(s.T(), http.MethodGet, "/frank", "frank.example.com")
	assert.Equal(s.T(), http.StatusNotFound, r.StatusCode)
}

func (s *RoutesSuite) createDomain(ownerID uuid.UUID, domain string, status models.DomainStatus, primary bool) *models.CustomDomain {
	record := &models.CustomDomain{
		Domain:            domain,
		UserID:            ownerID,
		Status:            status,
		VerificationToken: "test-token",
		DNSVerified:       status == models.DomainStatusVerifiedDNS || status == models.DomainStatusActive,
		IsPrimary:         primary,
	}
	require.NoError(s.T(), s.DB.Create(record).Error)
	return record
}

func (s *RoutesSuite) loadDomain(id string) *models.CustomDomain {
	var record models.CustomDomain
	require.NoError(s.T(), s.DB.First(&record, "id = ?", id).Error)
	return &record
}
