package routing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/casapps/caslinks/src/internal/cache"
	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/domains"
)

// Kind classifies where a Host header points.
type Kind int

const (
	// KindPlatform is the platform's own domain or one of its subdomains.
	KindPlatform Kind = iota
	// KindLocalDev is localhost and friends.
	KindLocalDev
	// KindCustomDomain is anything else; Known tells whether a claim
	// exists for it.
	KindCustomDomain
)

// Classification is the immutable result of classifying one request's
// Host header. It is computed once at the edge and threaded through
// request handling; nothing re-derives it deeper in the stack.
type Classification struct {
	Kind      Kind
	Host      string
	Known     bool
	Domain    string
	OwnerID   uuid.UUID
	Status    models.DomainStatus
	IsPrimary bool
}

// Active reports whether the classified host is a custom domain that
// may serve tenant content.
func (c Classification) Active() bool {
	return c.Kind == KindCustomDomain && c.Known && c.Status == models.DomainStatusActive
}

// DomainLookup resolves a normalized domain string to its record.
type DomainLookup interface {
	GetByDomain(domain string) (*models.CustomDomain, error)
}

// cachedDomain is the slice of a domain record the classifier caches.
type cachedDomain struct {
	Known     bool      `json:"known"`
	Domain    string    `json:"domain"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Status    string    `json:"status"`
	IsPrimary bool      `json:"is_primary"`
}

// Classifier decides whether a Host header is the platform, local
// development, or a candidate custom domain, and resolves candidates
// to their owning tenant. Classify is total: any string, including
// empty and malformed ones, yields a classification.
type Classifier struct {
	platformDomain string
	lookup         DomainLookup
	cache          *cache.CacheManager
	cacheTTL       time.Duration
}

// NewClassifier creates a hostname classifier
func NewClassifier(cfg *viper.Viper, lookup DomainLookup, cacheManager *cache.CacheManager) *Classifier {
	ttl := cfg.GetDuration("domains.classifier_cache_ttl")
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Classifier{
		platformDomain: domains.NormalizeDomain(cfg.GetString("platform.domain")),
		lookup:         lookup,
		cache:          cacheManager,
		cacheTTL:       ttl,
	}
}

// Classify maps a raw Host header onto a classification. A store
// lookup failure is returned as an error and must never degrade into
// "treat as platform": that would let a spoofed Host header reach the
// wrong tenant's routing.
func (c *Classifier) Classify(ctx context.Context, hostHeader string) (Classification, error) {
	host := NormalizeHost(hostHeader)

	if host == "" {
		return Classification{Kind: KindCustomDomain, Host: host, Known: false}, nil
	}

	if host == c.platformDomain || strings.HasSuffix(host, "."+c.platformDomain) {
		return Classification{Kind: KindPlatform, Host: host}, nil
	}

	if isLocalDev(host) {
		return Classification{Kind: KindLocalDev, Host: host}, nil
	}

	record, err := c.resolve(ctx, host)
	if err != nil {
		return Classification{}, err
	}

	cl := Classification{Kind: KindCustomDomain, Host: host}
	if record != nil {
		cl.Known = true
		cl.Domain = record.Domain
		cl.OwnerID = record.OwnerID
		cl.Status = models.DomainStatus(record.Status)
		cl.IsPrimary = record.IsPrimary
	}
	return cl, nil
}

// resolve looks a host up in the domain store, falling back between
// the www and bare forms so an active claim on either serves both.
// Results, including misses, are cached briefly.
func (c *Classifier) resolve(ctx context.Context, host string) (*cachedDomain, error) {
	if cached, ok := c.fromCache(ctx, host); ok {
		if !cached.Known {
			return nil, nil
		}
		return cached, nil
	}

	record, err := c.lookupOne(host)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Try the alternate www form of the same name.
		alt := "www." + host
		if strings.HasPrefix(host, "www.") {
			alt = strings.TrimPrefix(host, "www.")
		}
		record, err = c.lookupOne(alt)
		if err != nil {
			return nil, err
		}
	}

	cached := &cachedDomain{Known: false}
	if record != nil {
		cached = &cachedDomain{
			Known:     true,
			Domain:    record.Domain,
			OwnerID:   record.UserID,
			Status:    string(record.Status),
			IsPrimary: record.IsPrimary,
		}
	}
	c.toCache(ctx, host, cached)

	if !cached.Known {
		return nil, nil
	}
	return cached, nil
}

func (c *Classifier) lookupOne(host string) (*models.CustomDomain, error) {
	record, err := c.lookup.GetByDomain(host)
	if err != nil {
		if errors.Is(err, domains.ErrDomainNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("domain lookup failed for %s: %w", host, err)
	}
	return record, nil
}

func (c *Classifier) fromCache(ctx context.Context, host string) (*cachedDomain, bool) {
	if c.cache == nil {
		return nil, false
	}
	var cached cachedDomain
	if err := c.cache.GetJSON(ctx, "hostmap:"+host, &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

func (c *Classifier) toCache(ctx context.Context, host string, cached *cachedDomain) {
	if c.cache == nil {
		return
	}
	_ = c.cache.SetJSON(ctx, "hostmap:"+host, cached, c.cacheTTL)
}

// Invalidate drops a host's cached classification. Called after
// lifecycle changes so activation and removal take effect promptly.
func (c *Classifier) Invalidate(ctx context.Context, domain string) {
	if c.cache == nil {
		return
	}
	host := domains.NormalizeDomain(domain)
	_ = c.cache.Delete(ctx, "hostmap:"+host)
	_ = c.cache.Delete(ctx, "hostmap:www."+host)
	_ = c.cache.Delete(ctx, "hostmap:"+strings.TrimPrefix(host, "www."))
}

// NormalizeHost strips the port and case-folds a raw Host header.
func NormalizeHost(hostHeader string) string {
	host := strings.TrimSpace(hostHeader)
	if host == "" {
		return ""
	}
	// Bracketed IPv6 literals and host:port forms.
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else {
		host = strings.Trim(host, "[]")
	}
	host = strings.ToLower(host)
	host = strings.TrimSuffix(host, ".")
	return host
}

// isLocalDev recognizes hosts used during local development.
func isLocalDev(host string) bool {
	if host == "localhost" || host == "127.0.0.1" || host == "::1" || host == "0.0.0.0" {
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}
