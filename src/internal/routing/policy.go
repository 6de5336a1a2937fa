package routing

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/domains"
)

// Decision says what to do with a classified request.
type Decision int

const (
	DecisionServe Decision = iota
	DecisionRedirect
	DecisionNotFound
)

// RouteDecision is the policy's verdict for one request. Redirect
// targets always preserve path and query and never carry verification
// tokens or other secrets.
type RouteDecision struct {
	Decision Decision
	Code     int
	Location string
}

// Policy decides between serving content directly and redirecting to
// the canonical URL. It is pure over its inputs; no lookups happen
// here.
type Policy struct {
	platformDomain string
}

// NewPolicy creates a routing policy
func NewPolicy(cfg *viper.Viper) *Policy {
	return &Policy{
		platformDomain: domains.NormalizeDomain(cfg.GetString("platform.domain")),
	}
}

// DecideCustomDomain applies the safety rules for a request that
// arrived on a candidate custom domain:
//
//   - unknown domain: not found, never platform routing
//   - known but not active: redirect to the platform equivalent, so a
//     domain is unreachable until ownership is proven
//   - active: enforce the tenant's canonical host form and HTTPS
//     preference, otherwise serve
//
// Only GET and HEAD are redirected; other methods on a host that is
// not servable get a not-found response.
func (p *Policy) DecideCustomDomain(cl Classification, r *http.Request, pref models.CanonicalPreference, forceHTTPS bool) RouteDecision {
	if cl.Kind != KindCustomDomain {
		return RouteDecision{Decision: DecisionServe}
	}

	if !cl.Known {
		return RouteDecision{Decision: DecisionNotFound}
	}

	redirectable := r.Method == http.MethodGet || r.Method == http.MethodHead

	if cl.Status != models.DomainStatusActive {
		if !redirectable {
			return RouteDecision{Decision: DecisionNotFound}
		}
		return RouteDecision{
			Decision: DecisionRedirect,
			Code:     http.StatusFound,
			Location: buildURL("https", p.platformDomain, r.URL),
		}
	}

	scheme := requestScheme(r)
	canonicalHost := CanonicalHost(cl.Domain, pref)
	canonicalScheme := scheme
	if forceHTTPS {
		canonicalScheme = "https"
	}

	if cl.Host != canonicalHost || scheme != canonicalScheme {
		if !redirectable {
			return RouteDecision{Decision: DecisionServe}
		}
		return RouteDecision{
			Decision: DecisionRedirect,
			Code:     http.StatusMovedPermanently,
			Location: buildURL(canonicalScheme, canonicalHost, r.URL),
		}
	}

	return RouteDecision{Decision: DecisionServe}
}

// DecidePlatformProfile handles a profile request on the platform
// domain for a tenant that may own an active primary custom domain: a
// single redirect to the custom domain keeps one canonical public URL
// per tenant. primaryDomain is empty when the tenant has none.
func (p *Policy) DecidePlatformProfile(r *http.Request, primaryDomain string) RouteDecision {
	if primaryDomain == "" {
		return RouteDecision{Decision: DecisionServe}
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return RouteDecision{Decision: DecisionServe}
	}
	return RouteDecision{
		Decision: DecisionRedirect,
		Code:     http.StatusFound,
		Location: buildURL("https", primaryDomain, r.URL),
	}
}

// CanonicalHost returns the host form a tenant has designated as
// authoritative for their claimed domain.
func CanonicalHost(domain string, pref models.CanonicalPreference) string {
	switch pref {
	case models.CanonicalWWW:
		if strings.HasPrefix(domain, "www.") {
			return domain
		}
		return "www." + domain
	case models.CanonicalNonWWW:
		return strings.TrimPrefix(domain, "www.")
	default:
		return domain
	}
}

// buildURL assembles a redirect target preserving path and query.
func buildURL(scheme, host string, u *url.URL) string {
	target := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}
	return target.String()
}

// requestScheme determines the effective scheme, honoring proxy
// headers the way echo does.
func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
