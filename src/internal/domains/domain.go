package domains

import (
	"fmt"
	"regexp"
	"strings"
)

// hostnameRegex accepts dotted labels of letters, digits and hyphens
// with a two-letter-plus TLD. Wildcards and bare hostnames are rejected
// separately for clearer errors.
var hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// NormalizeDomain lowercases a domain string and strips surrounding
// whitespace and the trailing DNS root dot.
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.ToLower(domain)
	domain = strings.TrimSuffix(domain, ".")
	return domain
}

// ValidateDomainName checks FQDN syntax and rejects names that collide
// with the platform's own domain. The input is expected to be
// normalized already.
func ValidateDomainName(domain, platformDomain string) error {
	if domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidDomainSyntax)
	}
	if len(domain) > 253 {
		return fmt.Errorf("%w: domain exceeds 253 characters", ErrInvalidDomainSyntax)
	}
	if strings.Contains(domain, "*") {
		return fmt.Errorf("%w: wildcard domains are not supported", ErrInvalidDomainSyntax)
	}
	if strings.Contains(domain, "://") || strings.Contains(domain, "/") {
		return fmt.Errorf("%w: domain must not include a scheme or path", ErrInvalidDomainSyntax)
	}
	if !hostnameRegex.MatchString(domain) {
		return fmt.Errorf("%w: %s", ErrInvalidDomainSyntax, domain)
	}
	platform := NormalizeDomain(platformDomain)
	if domain == platform || strings.HasSuffix(domain, "."+platform) {
		return fmt.Errorf("%w: %s is part of the platform domain", ErrInvalidDomainSyntax, domain)
	}
	return nil
}

// TXTRecordHost returns the namespaced TXT record host the tenant must
// publish, e.g. _caslinks.example.com.
func TXTRecordHost(appName, domain string) string {
	return "_" + appName + "." + NormalizeDomain(domain)
}

// TXTRecordValue returns the expected TXT record value for a token,
// e.g. caslinks_verify=<token>.
func TXTRecordValue(appName, token string) string {
	return appName + "_verify=" + token
}
