package routing

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/casapps/caslinks/src/internal/database/models"
)

func testPolicy() *Policy {
	return NewPolicy(classifierConfig())
}

func customClassification(status models.DomainStatus, host, domain string) Classification {
	return Classification{
		Kind:    KindCustomDomain,
		Host:    host,
		Known:   true,
		Domain:  domain,
		OwnerID: uuid.New(),
		Status:  status,
	}
}

func request(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func TestDecideUnknownDomain(t *testing.T) {
	cl := Classification{Kind: KindCustomDomain, Host: "stranger.net", Known: false}
	d := testPolicy().DecideCustomDomain(cl, request(http.MethodGet, "http://stranger.net/"), models.CanonicalAuto, false)
	assert.Equal(t, DecisionNotFound, d.Decision)
}

func TestDecidePendingDomainRedirectsToPlatform(t *testing.T) {
	cl := customClassification(models.DomainStatusPendingDNS, "example.com", "example.com")

	d := testPolicy().DecideCustomDomain(cl, request(http.MethodGet, "http://example.com/about?tab=links"), models.CanonicalAuto, false)
	assert.Equal(t, DecisionRedirect, d.Decision)
	assert.Equal(t, http.StatusFound, d.Code)
	assert.Equal(t, "https://caslinks.test/about?tab=links", d.Location)

	// Never a valid redirect target for a write.
	d = testPolicy().DecideCustomDomain(cl, request(http.MethodPost, "http://example.com/"), models.CanonicalAuto, false)
	assert.Equal(t, DecisionNotFound, d.Decision)
}

func TestDecidePendingRedirectCarriesNoToken(t *testing.T) {
	cl := customClassification(models.DomainStatusVerifiedDNS, "example.com", "example.com")

	d := testPolicy().DecideCustomDomain(cl, request(http.MethodGet, "http://example.com/"), models.CanonicalAuto, false)
	assert.Equal(t, DecisionRedirect, d.Decision)
	assert.NotContains(t, d.Location, "token")
	assert.NotContains(t, d.Location, "verify")
}

func TestDecideActiveServesOnCanonicalHost(t *testing.T) {
	cl := customClassification(models.DomainStatusActive, "example.com", "example.com")

	req := request(http.MethodGet, "https://example.com/")
	req.TLS = &tls.ConnectionState{}
	d := testPolicy().DecideCustomDomain(cl, req, models.CanonicalAuto, true)
	assert.Equal(t, DecisionServe, d.Decision)
}

func TestDecideActiveCanonicalHostRedirect(t *testing.T) {
	// Claim is on the bare domain; tenant prefers www.
	cl := customClassification(models.DomainStatusActive, "example.com", "example.com")

	req := request(http.MethodGet, "https://example.com/links?x=1")
	req.TLS = &tls.ConnectionState{}
	d := testPolicy().DecideCustomDomain(cl, req, models.CanonicalWWW, true)
	assert.Equal(t, DecisionRedirect, d.Decision)
	assert.Equal(t, http.StatusMovedPermanently, d.Code)
	assert.Equal(t, "https://www.example.com/links?x=1", d.Location)
}

func TestDecideActiveNonWWWPreference(t *testing.T) {
	// Request arrived on www; tenant prefers the bare form.
	cl := customClassification(models.DomainStatusActive, "www.example.com", "example.com")

	req := request(http.MethodGet, "https://www.example.com/")
	req.TLS = &tls.ConnectionState{}
	d := testPolicy().DecideCustomDomain(cl, req, models.CanonicalNonWWW, true)
	assert.Equal(t, DecisionRedirect, d.Decision)
	assert.Equal(t, "https://example.com/", d.Location)
}

func TestDecideActiveForcedHTTPS(t *testing.T) {
	cl := customClassification(models.DomainStatusActive, "example.com", "example.com")

	d := testPolicy().DecideCustomDomain(cl, request(http.MethodGet, "http://example.com/page"), models.CanonicalAuto, true)
	assert.Equal(t, DecisionRedirect, d.Decision)
	assert.Equal(t, http.StatusMovedPermanently, d.Code)
	assert.Equal(t, "https://example.com/page", d.Location)

	// Without the preference plain HTTP serves as-is.
	d = testPolicy().DecideCustomDomain(cl, request(http.MethodGet, "http://example.com/page"), models.CanonicalAuto, false)
	assert.Equal(t, DecisionServe, d.Decision)
}

func TestDecideActiveNonIdempotentNeverRedirects(t *testing.T) {
	cl := customClassification(models.DomainStatusActive, "example.com", "example.com")

	d := testPolicy().DecideCustomDomain(cl, request(http.MethodPost, "http://example.com/api"), models.CanonicalAuto, true)
	assert.Equal(t, DecisionServe, d.Decision)
}

func TestDecidePlatformProfile(t *testing.T) {
	p := testPolicy()

	d := p.DecidePlatformProfile(request(http.MethodGet, "http://caslinks.test/alice?ref=home"), "alice.example.com")
	assert.Equal(t, DecisionRedirect, d.Decision)
	assert.Equal(t, http.StatusFound, d.Code)
	assert.Equal(t, "https://alice.example.com/alice?ref=home", d.Location)

	d = p.DecidePlatformProfile(request(http.MethodGet, "http://caslinks.test/alice"), "")
	assert.Equal(t, DecisionServe, d.Decision)

	d = p.DecidePlatformProfile(request(http.MethodPost, "http://caslinks.test/alice"), "alice.example.com")
	assert.Equal(t, DecisionServe, d.Decision)
}

func TestCanonicalHost(t *testing.T) {
	assert.Equal(t, "example.com", CanonicalHost("example.com", models.CanonicalAuto))
	assert.Equal(t, "www.example.com", CanonicalHost("example.com", models.CanonicalWWW))
	assert.Equal(t, "www.example.com", CanonicalHost("www.example.com", models.CanonicalWWW))
	assert.Equal(t, "example.com", CanonicalHost("www.example.com", models.CanonicalNonWWW))
}
